package chain

import (
	"image/color"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/uir/device"
	"github.com/gogpu/uir/gfx"
	"github.com/gogpu/uir/shaderinfo"
	"github.com/gogpu/uir/tess"
)

type paintedDraw struct {
	mesh      *device.MeshHandle
	state     device.DrawState
	immediate gfx.ImmediateFunc
}

// Painter receives the paint instructions of one element. Geometry is in
// element space; meshes of the previous paint are reused through
// Device.Update where possible.
type Painter struct {
	c        *Chain
	layout   Layout
	template gfx.Vertex
	material gfx.MaterialID

	reuse  []*device.MeshHandle
	next   int
	meshes []*device.MeshHandle
	draws  []paintedDraw
	err    error
}

// Layout returns the layout of the element being painted.
func (p *Painter) Layout() Layout { return p.layout }

// Color converts c to a vertex tint in the chain's color space.
func (p *Painter) Color(c color.Color) [4]uint8 { return tess.VertexColor(c, p.c.cfg.LinearColor) }

// Tint returns the element color as a vertex tint. Elements with a
// dynamic color paint white and take their color from the color slot.
func (p *Painter) Tint() [4]uint8 {
	if p.layout.Hints&HintDynamicColor != 0 {
		return [4]uint8{255, 255, 255, 255}
	}
	return p.Color(p.layout.Color)
}

// SetMaterial sets the material of the following draws. MaterialDefault
// inherits the innermost pushed default material.
func (p *Painter) SetMaterial(m gfx.MaterialID) { p.material = m }

// Err returns the first paint error.
func (p *Painter) Err() error { return p.err }

func (p *Painter) alloc(v, i int) (*tess.MeshWriteData, error) {
	var (
		h   *device.MeshHandle
		md  device.MeshData
		err error
	)
	if p.next < len(p.reuse) {
		h = p.reuse[p.next]
		p.next++
		md, err = p.c.dev.Update(h, v, i)
		if err != nil {
			return nil, errors.CombineErrors(err, p.c.dev.Free(h))
		}
	} else {
		h, md, err = p.c.dev.Allocate(v, i)
	}
	if err != nil {
		return nil, err
	}
	p.meshes = append(p.meshes, h)
	return tess.NewMeshWriteData(md.Vertices, md.Indices, md.IndexOffset), nil
}

func (p *Painter) emit(build func(b *tess.MeshBuilder) (*tess.MeshWriteData, error), state device.DrawState) {
	if p.err != nil {
		return
	}
	b := p.c.builder
	b.Alloc = p.alloc
	before := len(p.meshes)
	_, err := build(&b)
	if errors.Is(err, tess.ErrNoGeometry) {
		return
	}
	if err != nil {
		p.err = err
		return
	}
	state.Material = p.material
	p.draws = append(p.draws, paintedDraw{mesh: p.meshes[before], state: state})
}

// Rect paints a filled rectangle.
func (p *Painter) Rect(r tess.RectParams) {
	p.emit(func(b *tess.MeshBuilder) (*tess.MeshWriteData, error) {
		return b.Rect(p.template, r)
	}, device.DrawState{Texture: r.Texture})
}

// Border paints a border ring.
func (p *Painter) Border(r tess.BorderParams) {
	p.emit(func(b *tess.MeshBuilder) (*tess.MeshWriteData, error) {
		return b.Border(p.template, r)
	}, device.DrawState{})
}

// Path fills a path.
func (p *Painter) Path(path *tess.Path, c color.Color) {
	tint := p.Color(c)
	p.emit(func(b *tess.MeshBuilder) (*tess.MeshWriteData, error) {
		return b.Path(p.template, path, tint)
	}, device.DrawState{})
}

// VectorImage paints a pre-triangulated image fitted into r.
func (p *Painter) VectorImage(img tess.VectorImage, r gfx.Rect, mode tess.ScaleMode, s tess.Slices, texture gfx.TextureID) {
	p.emit(func(b *tess.MeshBuilder) (*tess.MeshWriteData, error) {
		return b.VectorImage(p.template, img, r, mode, s)
	}, device.DrawState{Texture: texture})
}

// NineSlice paints a textured 9-sliced rect.
func (p *Painter) NineSlice(r, uv gfx.Rect, texSize [2]float32, s tess.Slices, c color.Color, texture gfx.TextureID) {
	tint := p.Color(c)
	p.emit(func(b *tess.MeshBuilder) (*tess.MeshWriteData, error) {
		return b.NineSliceQuad(p.template, r, uv, texSize, s, tint, texture)
	}, device.DrawState{Texture: texture})
}

// Text paints resolved glyph quads sampling the font atlas.
func (p *Painter) Text(glyphs []tess.Glyph, c color.Color, atlas gfx.TextureID) {
	tint := p.Color(c)
	p.emit(func(b *tess.MeshBuilder) (*tess.MeshWriteData, error) {
		return b.Glyphs(p.template, glyphs, tint, atlas)
	}, device.DrawState{Font: atlas})
}

// Immediate adds an immediate-mode callback at the current position.
func (p *Painter) Immediate(fn gfx.ImmediateFunc) {
	if p.err == nil && fn != nil {
		p.draws = append(p.draws, paintedDraw{immediate: fn})
	}
}

// ResetFontAtlas reports that painting invalidated the font atlas. Every
// text element is regenerated before the chain renders.
func (p *Painter) ResetFontAtlas() { p.c.ResetFontAtlas() }

// repaint rebuilds the meshes and commands of id from its Paint output.
func (c *Chain) repaint(id NodeID) error {
	n := c.node(id)
	l := n.elem.Layout()

	ownText := l.Text && l.TextSettings != (gfx.Texel{})
	if _, err := c.assignSlot(gfx.ShaderInfoTextSettings, &n.slots.TextSettings, ownText, shaderinfo.Default()); err != nil {
		return err
	}
	if ownText {
		c.info.SetTextSettings(n.slots.TextSettings, l.TextSettings)
	}

	p := &Painter{c: c, layout: l, reuse: n.meshes}
	n.slots.Pack(&p.template)
	if !l.Hidden {
		n.elem.Paint(p)
	}
	var errs error
	for _, m := range n.meshes[p.next:] {
		errs = errors.CombineErrors(errs, c.dev.Free(m))
	}
	n.meshes = p.meshes
	errs = errors.CombineErrors(errs, p.err)

	if err := c.paintMask(n, l, p.template); err != nil {
		errs = errors.CombineErrors(errs, err)
	}
	opening, closing := c.buildCommands(id, n, l, p.draws)
	c.setCommands(id, opening, closing)
	c.clearTextDirty(n)
	if errs != nil {
		return errors.Wrapf(errs, "chain: repaint element %d", id)
	}
	return nil
}

// paintMask keeps the stencil mask mesh of a stencil clipping element.
func (c *Chain) paintMask(n *node, l Layout, template gfx.Vertex) error {
	if n.clipMethod != ClipStencil || l.Rect.Empty() {
		if n.mask == nil {
			return nil
		}
		err := c.dev.Free(n.mask)
		n.mask = nil
		return err
	}
	b := c.builder
	b.Alloc = func(v, i int) (*tess.MeshWriteData, error) {
		var (
			md  device.MeshData
			err error
		)
		if n.mask != nil {
			md, err = c.dev.Update(n.mask, v, i)
		} else {
			n.mask, md, err = c.dev.Allocate(v, i)
		}
		if err != nil {
			return nil, err
		}
		return tess.NewMeshWriteData(md.Vertices, md.Indices, md.IndexOffset), nil
	}
	w, err := b.Rect(template, tess.RectParams{Rect: l.Rect, Tint: [4]uint8{255, 255, 255, 255}})
	if err != nil {
		return err
	}
	vs := w.Vertices()
	for i := range vs {
		vs[i].Flags[0] = gfx.VertexStencilMask
	}
	return nil
}

func (c *Chain) newCommand(id NodeID, t device.CommandType, closing bool) *device.Command {
	cmd := c.allocCommand()
	cmd.Type = t
	cmd.Owner = int32(id)
	cmd.Closing = closing
	return cmd
}

// buildCommands returns the commands of an element. Opening commands push
// the render target, default material and view, then draw the element and
// open its clip; closing commands undo them in reverse.
func (c *Chain) buildCommands(id NodeID, n *node, l Layout, draws []paintedDraw) (opening, closing []*device.Command) {
	if n.hints&HintRenderTexture != 0 {
		cmd := c.newCommand(id, device.CommandPushRenderTexture, false)
		cmd.State.Texture = l.RenderTarget
		opening = append(opening, cmd)
	}
	if l.Material != gfx.MaterialDefault {
		cmd := c.newCommand(id, device.CommandPushDefaultMaterial, false)
		cmd.State.Material = l.Material
		opening = append(opening, cmd)
	}
	if n.hints&HintGroupTransform != 0 {
		cmd := c.newCommand(id, device.CommandPushView, false)
		cmd.Transform = n.view
		opening = append(opening, cmd)
	}
	for _, d := range draws {
		if d.immediate != nil {
			cmd := c.newCommand(id, device.CommandImmediate, false)
			cmd.Immediate = d.immediate
			opening = append(opening, cmd)
			continue
		}
		cmd := c.newCommand(id, device.CommandDraw, false)
		cmd.Mesh = d.mesh
		cmd.State = d.state
		cmd.State.StencilRef = n.stencilRef
		opening = append(opening, cmd)
	}
	switch {
	case n.clipMethod == ClipScissor:
		cmd := c.newCommand(id, device.CommandPushScissor, false)
		cmd.Scissor = n.worldClip
		opening = append(opening, cmd)
		closing = append(closing, c.newCommand(id, device.CommandPopScissor, true))
	case n.clipMethod == ClipStencil && n.mask != nil:
		push := c.newCommand(id, device.CommandDraw, false)
		push.Mesh = n.mask
		push.State = device.DrawState{Material: gfx.MaterialStencilPush, StencilRef: n.stencilRef}
		opening = append(opening, push)
		pop := c.newCommand(id, device.CommandDraw, true)
		pop.Mesh = n.mask
		pop.State = device.DrawState{Material: gfx.MaterialStencilPop, StencilRef: n.stencilRef + 1}
		closing = append(closing, pop)
	}
	if n.hints&HintGroupTransform != 0 {
		closing = append(closing, c.newCommand(id, device.CommandPopView, true))
	}
	if l.Material != gfx.MaterialDefault {
		closing = append(closing, c.newCommand(id, device.CommandPopDefaultMaterial, true))
	}
	if n.hints&HintRenderTexture != 0 {
		closing = append(closing, c.newCommand(id, device.CommandPopRenderTexture, true))
	}
	return opening, closing
}
