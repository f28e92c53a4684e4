package visual

import (
	"image/color"

	"github.com/gogpu/uir/chain"
	"github.com/gogpu/uir/gfx"
	"github.com/gogpu/uir/tess"
)

// Content is one paint step of an element.
type Content interface {
	Paint(p *chain.Painter, l chain.Layout)
}

// Box fills the element rect with the element color.
type Box struct {
	Radii tess.Radii
	// AA selects the edges that get an antialiasing skirt. Ignored for
	// rounded boxes.
	AA      tess.Edges
	Texture gfx.TextureID
	UV      gfx.Rect
}

func (b Box) Paint(p *chain.Painter, l chain.Layout) {
	p.Rect(tess.RectParams{
		Rect:    l.Rect,
		Tint:    p.Tint(),
		Radii:   b.Radii,
		Texture: b.Texture,
		UV:      b.UV,
		AAEdges: b.AA,
	})
}

// Border strokes the inside of the element rect.
type Border struct {
	Widths [4]float32
	Colors [4]color.Color
	Radii  tess.Radii
}

func (b Border) Paint(p *chain.Painter, l chain.Layout) {
	bp := tess.BorderParams{Rect: l.Rect, Widths: b.Widths, Radii: b.Radii}
	for i, c := range b.Colors {
		if c != nil {
			bp.Colors[i] = p.Color(c)
		}
	}
	p.Border(bp)
}

// Text draws glyph quads resolved against a font atlas.
type Text struct {
	Glyphs []tess.Glyph
	Atlas  gfx.TextureID
	Color  color.Color
}

func (t Text) Paint(p *chain.Painter, _ chain.Layout) {
	c := t.Color
	if c == nil {
		c = color.White
	}
	p.Text(t.Glyphs, c, t.Atlas)
}

// Image draws a vector image into the element rect.
type Image struct {
	Image   tess.VectorImage
	Mode    tess.ScaleMode
	Slices  tess.Slices
	Texture gfx.TextureID
}

func (i Image) Paint(p *chain.Painter, l chain.Layout) {
	p.VectorImage(i.Image, l.Rect, i.Mode, i.Slices, i.Texture)
}

// NineSlice draws a 9-sliced texture region stretched over the element
// rect.
type NineSlice struct {
	UV      gfx.Rect
	TexSize [2]float32
	Slices  tess.Slices
	Texture gfx.TextureID
	Color   color.Color
}

func (n NineSlice) Paint(p *chain.Painter, l chain.Layout) {
	c := n.Color
	if c == nil {
		c = color.White
	}
	p.NineSlice(l.Rect, n.UV, n.TexSize, n.Slices, c, n.Texture)
}

// Shape fills a path given in element space.
type Shape struct {
	Path  *tess.Path
	Color color.Color
}

func (s Shape) Paint(p *chain.Painter, _ chain.Layout) {
	if s.Path != nil {
		p.Path(s.Path, s.Color)
	}
}

// Immediate runs a callback in paint order.
type Immediate gfx.ImmediateFunc

func (fn Immediate) Paint(p *chain.Painter, _ chain.Layout) {
	p.Immediate(gfx.ImmediateFunc(fn))
}

// Material switches the material of the following content.
type Material gfx.MaterialID

func (m Material) Paint(p *chain.Painter, _ chain.Layout) {
	p.SetMaterial(gfx.MaterialID(m))
}

func hasText(cs []Content) bool {
	for _, c := range cs {
		if _, ok := c.(Text); ok {
			return true
		}
	}
	return false
}
