package tess

import (
	"image/color"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/uir/gfx"
)

// ScaleMode selects how a vector image is fitted into its rect.
type ScaleMode int

const (
	// StretchToFill scales each axis independently.
	StretchToFill ScaleMode = iota
	// ScaleToFit scales uniformly so the image fits, centered.
	ScaleToFit
	// ScaleAndCrop scales uniformly so the image covers the rect and clips
	// what falls outside.
	ScaleAndCrop
)

// VectorImage is a pre-triangulated mesh authored in a Size box with the
// origin at its top left.
type VectorImage struct {
	Vertices []gfx.Vertex
	Indices  []uint16
	Size     [2]float32
}

// Glyph is one positioned quad of a text run.
type Glyph struct {
	Rect gfx.Rect
	UV   gfx.Rect
}

// MeshBuilder turns paint instructions into meshes. Storage comes from
// Alloc after a counting pass; every vertex receives the shader info
// coordinates of the template passed to each call.
type MeshBuilder struct {
	Alloc AllocFunc
	// Linear converts tints from sRGB to linear space.
	Linear bool
}

// Color converts c to a vertex tint in the builder's color space.
func (b *MeshBuilder) Color(c color.Color) [4]uint8 { return VertexColor(c, b.Linear) }

// Rect builds a filled rectangle.
func (b *MeshBuilder) Rect(template gfx.Vertex, p RectParams) (*MeshWriteData, error) {
	return generate(b.Alloc, template, func(w *MeshWriteData) error {
		TessellateRect(w, p)
		return nil
	})
}

// Border builds the border ring of a rectangle.
func (b *MeshBuilder) Border(template gfx.Vertex, p BorderParams) (*MeshWriteData, error) {
	return generate(b.Alloc, template, func(w *MeshWriteData) error {
		TessellateBorder(w, p)
		return nil
	})
}

// Path fills a path.
func (b *MeshBuilder) Path(template gfx.Vertex, p *Path, tint [4]uint8) (*MeshWriteData, error) {
	return generate(b.Alloc, template, func(w *MeshWriteData) error {
		return FillPath(w, p, tint)
	})
}

// NineSliceQuad builds a textured rect whose texture margins, given in
// texels of a texture of texSize, keep their size while the middle
// stretches.
func (b *MeshBuilder) NineSliceQuad(template gfx.Vertex, rect, uv gfx.Rect, texSize [2]float32, s Slices, tint [4]uint8, texture gfx.TextureID) (*MeshWriteData, error) {
	if rect.Empty() {
		return nil, ErrNoGeometry
	}
	if texSize[0] <= 0 || texSize[1] <= 0 {
		return nil, errors.Newf("tess: invalid texture size %v", texSize)
	}
	xs := sliceStops(rect.X, rect.W, s.Left, s.Right)
	ys := sliceStops(rect.Y, rect.H, s.Top, s.Bottom)
	us := [4]float32{uv.X, uv.X + s.Left/texSize[0], uv.X + uv.W - s.Right/texSize[0], uv.X + uv.W}
	vs := [4]float32{uv.Y, uv.Y + s.Top/texSize[1], uv.Y + uv.H - s.Bottom/texSize[1], uv.Y + uv.H}

	var proto gfx.Vertex
	proto.Flags[0] = gfx.VertexTextured
	proto.TextureID = float32(texture)
	proto.Tint = tint
	return generate(b.Alloc, template, func(w *MeshWriteData) error {
		first := uint16(w.VertexCount())
		for j := range ys {
			for i := range xs {
				v := proto
				v.Position = [3]float32{xs[i], ys[j], 0}
				v.UV = [2]float32{us[i], vs[j]}
				w.SetNextVertex(v)
			}
		}
		for j := 0; j < 3; j++ {
			for i := 0; i < 3; i++ {
				if xs[i+1]-xs[i] < epsilon || ys[j+1]-ys[j] < epsilon {
					continue
				}
				a := first + uint16(j*4+i)
				w.Triangle(a, a+1, a+5)
				w.Triangle(a, a+5, a+4)
			}
		}
		return nil
	})
}

// sliceStops returns the four coordinates of a sliced span, shrinking the
// margins when the span is smaller than both together.
func sliceStops(origin, size, lo, hi float32) [4]float32 {
	if lo+hi > size && lo+hi > 0 {
		scale := size / (lo + hi)
		lo, hi = lo*scale, hi*scale
	}
	return [4]float32{origin, origin + lo, origin + size - hi, origin + size}
}

// VectorImage fits img into rect. Non-zero slices 9-slice the image
// instead of scaling it.
func (b *MeshBuilder) VectorImage(template gfx.Vertex, img VectorImage, rect gfx.Rect, mode ScaleMode, s Slices) (*MeshWriteData, error) {
	if len(img.Indices) == 0 || rect.Empty() {
		return nil, ErrNoGeometry
	}
	if img.Size[0] <= 0 || img.Size[1] <= 0 {
		return nil, errors.Newf("tess: vector image has invalid size %v", img.Size)
	}
	if !s.IsZero() {
		return generate(b.Alloc, template, func(w *MeshWriteData) error {
			return SliceMesh(w, img.Vertices, img.Indices, img.Size, s, rect)
		})
	}

	sx, sy := rect.W/img.Size[0], rect.H/img.Size[1]
	switch mode {
	case ScaleToFit:
		sx = min(sx, sy)
		sy = sx
	case ScaleAndCrop:
		sx = max(sx, sy)
		sy = sx
	}
	ox := rect.X + (rect.W-img.Size[0]*sx)/2
	oy := rect.Y + (rect.H-img.Size[1]*sy)/2
	placed := make([]gfx.Vertex, len(img.Vertices))
	for i, v := range img.Vertices {
		v.Position[0] = ox + v.Position[0]*sx
		v.Position[1] = oy + v.Position[1]*sy
		placed[i] = v
	}
	return generate(b.Alloc, template, func(w *MeshWriteData) error {
		if mode == ScaleAndCrop {
			return ClipMesh(w, placed, img.Indices, rect)
		}
		first := uint16(w.VertexCount())
		for _, v := range placed {
			w.SetNextVertex(v)
		}
		for _, i := range img.Indices {
			if int(i) >= len(placed) {
				return errors.Newf("tess: index %d out of %d vertices", i, len(placed))
			}
			w.SetNextIndex(first + i)
		}
		return nil
	})
}

// Glyphs builds the quads of a text run sampling the atlas texture.
func (b *MeshBuilder) Glyphs(template gfx.Vertex, glyphs []Glyph, tint [4]uint8, atlas gfx.TextureID) (*MeshWriteData, error) {
	var proto gfx.Vertex
	proto.Flags[0] = gfx.VertexText
	proto.TextureID = float32(atlas)
	return generate(b.Alloc, template, func(w *MeshWriteData) error {
		for _, g := range glyphs {
			if g.Rect.Empty() {
				continue
			}
			e := newEmitter(w, vertexMaker(g.Rect, g.UV, proto))
			plainQuad(e, g.Rect, tint)
		}
		return nil
	})
}
