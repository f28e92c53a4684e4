// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package halgfx

import (
	_ "embed"
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/uir/gfx"
	"github.com/gogpu/uir/shaderinfo"
)

//go:embed shader.wgsl
var shaderWGSL string

const (
	texelSize = 16

	// View records are bound with a dynamic offset, which must be a
	// multiple of 256.
	viewRecordStride = 256
	viewRecordFloats = 20

	textureBindings = gfx.TextureSlotCount + 1
	samplerBinding  = textureBindings
)

// table is one shader info storage buffer with a CPU copy of its texels.
type table struct {
	buf    hal.Buffer
	shadow []gfx.Texel
}

type resources struct {
	module         hal.ShaderModule
	infoLayout     hal.BindGroupLayout
	textureLayout  hal.BindGroupLayout
	pipelineLayout hal.PipelineLayout
	builtin        []hal.RenderPipeline

	views        hal.Buffer
	sampler      hal.Sampler
	white        hal.Texture
	whiteView    hal.TextureView
	infoGroup    hal.BindGroup
	textureGroup hal.BindGroup

	infoGroupStale bool
}

// VertexLayout returns the vertex buffer layout of gfx.Vertex. Custom
// material pipelines must use it.
func VertexLayout() gputypes.VertexBufferLayout {
	return gputypes.VertexBufferLayout{
		ArrayStride: gfx.VertexSize,
		StepMode:    gputypes.VertexStepModeVertex,
		Attributes: []gputypes.VertexAttribute{
			{Format: gputypes.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
			{Format: gputypes.VertexFormatUnorm8x4, Offset: 12, ShaderLocation: 1},
			{Format: gputypes.VertexFormatFloat32x2, Offset: 16, ShaderLocation: 2},
			{Format: gputypes.VertexFormatUint8x4, Offset: 24, ShaderLocation: 3},
			{Format: gputypes.VertexFormatUint8x4, Offset: 28, ShaderLocation: 4},
			{Format: gputypes.VertexFormatUint8x4, Offset: 32, ShaderLocation: 5},
			{Format: gputypes.VertexFormatUint8x4, Offset: 36, ShaderLocation: 6},
			{Format: gputypes.VertexFormatUint8x4, Offset: 40, ShaderLocation: 7},
			{Format: gputypes.VertexFormatFloat32x4, Offset: 44, ShaderLocation: 8},
			{Format: gputypes.VertexFormatFloat32, Offset: 60, ShaderLocation: 9},
		},
	}
}

// PipelineLayout returns the layout custom material pipelines must be
// created with: group 0 holds the shader info tables and the view record,
// group 1 the texture slots, the font atlas and a sampler.
func (b *Backend) PipelineLayout() hal.PipelineLayout { return b.res.pipelineLayout }

// RegisterMaterial makes a pipeline available to BindMaterial. The
// built-in materials cannot be replaced. The pipeline stays owned by the
// caller.
func (b *Backend) RegisterMaterial(id gfx.MaterialID, p hal.RenderPipeline) error {
	if id <= gfx.MaterialStencilPop {
		return errors.Newf("halgfx: material %d is built in", id)
	}
	if p == nil {
		return errors.Newf("halgfx: nil pipeline for material %d", id)
	}
	b.materials[id] = p
	if b.fr.material == id {
		b.fr.pipelineStale = true
	}
	return nil
}

// compileShader compiles WGSL to SPIR-V words.
func compileShader(src string) ([]uint32, error) {
	spirv, err := naga.Compile(src)
	if err != nil {
		return nil, errors.Wrap(err, "halgfx: compile shader")
	}
	words := make([]uint32, len(spirv)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirv[i*4:])
	}
	return words, nil
}

func (b *Backend) init() error {
	spirv, err := compileShader(shaderWGSL)
	if err != nil {
		return err
	}
	r := &b.res
	r.module, err = b.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  b.label("shader"),
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return errors.Wrap(err, "halgfx: create shader module")
	}
	if err := b.createLayouts(); err != nil {
		return err
	}
	if err := b.createPipelines(); err != nil {
		return err
	}
	if err := b.createTextures(); err != nil {
		return err
	}

	r.views, err = b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: b.label("view records"),
		Size:  uint64(b.opts.ViewRecords) * viewRecordStride,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return errors.Wrap(err, "halgfx: create view records")
	}
	for k := range b.tables {
		if err := b.growTable(gfx.ShaderInfoKind(k), 0); err != nil {
			return err
		}
	}
	b.fr.textureGroupStale = true
	return nil
}

func (b *Backend) createLayouts() error {
	r := &b.res
	stages := gputypes.ShaderStageVertex | gputypes.ShaderStageFragment

	info := make([]gputypes.BindGroupLayoutEntry, 0, gfx.NumShaderInfoKinds+1)
	for k := range gfx.NumShaderInfoKinds {
		info = append(info, gputypes.BindGroupLayoutEntry{
			Binding:    uint32(k),
			Visibility: stages,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage},
		})
	}
	info = append(info, gputypes.BindGroupLayoutEntry{
		Binding:    uint32(gfx.NumShaderInfoKinds),
		Visibility: stages,
		Buffer: &gputypes.BufferBindingLayout{
			Type:             gputypes.BufferBindingTypeUniform,
			HasDynamicOffset: true,
			MinBindingSize:   viewRecordFloats * 4,
		},
	})
	var err error
	r.infoLayout, err = b.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   b.label("shader info layout"),
		Entries: info,
	})
	if err != nil {
		return errors.Wrap(err, "halgfx: create shader info layout")
	}

	tex := make([]gputypes.BindGroupLayoutEntry, 0, textureBindings+1)
	for i := range textureBindings {
		tex = append(tex, gputypes.BindGroupLayoutEntry{
			Binding:    uint32(i),
			Visibility: gputypes.ShaderStageFragment,
			Texture: &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			},
		})
	}
	tex = append(tex, gputypes.BindGroupLayoutEntry{
		Binding:    samplerBinding,
		Visibility: gputypes.ShaderStageFragment,
		Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
	})
	r.textureLayout, err = b.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   b.label("texture layout"),
		Entries: tex,
	})
	if err != nil {
		return errors.Wrap(err, "halgfx: create texture layout")
	}

	r.pipelineLayout, err = b.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            b.label("pipeline layout"),
		BindGroupLayouts: []hal.BindGroupLayout{r.infoLayout, r.textureLayout},
	})
	return errors.Wrap(err, "halgfx: create pipeline layout")
}

// stencilFace builds the stencil state of the built-in materials. Every
// material draws only where the stencil equals the reference; the mask
// materials then move the stencil value on pass.
func stencilFace(pass hal.StencilOperation) hal.StencilFaceState {
	return hal.StencilFaceState{
		Compare:     gputypes.CompareFunctionEqual,
		FailOp:      hal.StencilOperationKeep,
		DepthFailOp: hal.StencilOperationKeep,
		PassOp:      pass,
	}
}

func (b *Backend) createPipelines() error {
	builtins := []struct {
		id    gfx.MaterialID
		name  string
		pass  hal.StencilOperation
		color bool
	}{
		{gfx.MaterialDefault, "default", hal.StencilOperationKeep, true},
		{gfx.MaterialStencilPush, "stencil push", hal.StencilOperationIncrementClamp, false},
		{gfx.MaterialStencilPop, "stencil pop", hal.StencilOperationDecrementClamp, false},
	}
	blend := gputypes.BlendStatePremultiplied()
	for _, m := range builtins {
		face := stencilFace(m.pass)
		target := gputypes.ColorTargetState{Format: b.opts.Format, Blend: &blend, WriteMask: gputypes.ColorWriteMaskAll}
		if !m.color {
			target.Blend = nil
			target.WriteMask = gputypes.ColorWriteMaskNone
		}
		p, err := b.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
			Label:  b.label(m.name + " pipeline"),
			Layout: b.res.pipelineLayout,
			Vertex: hal.VertexState{
				Module:     b.res.module,
				EntryPoint: "vs_main",
				Buffers:    []gputypes.VertexBufferLayout{VertexLayout()},
			},
			Primitive: gputypes.PrimitiveState{
				Topology: gputypes.PrimitiveTopologyTriangleList,
				CullMode: gputypes.CullModeNone,
			},
			DepthStencil: &hal.DepthStencilState{
				Format:           gputypes.TextureFormatDepth24PlusStencil8,
				DepthCompare:     gputypes.CompareFunctionAlways,
				StencilFront:     face,
				StencilBack:      face,
				StencilReadMask:  0xff,
				StencilWriteMask: 0xff,
			},
			Multisample: gputypes.MultisampleState{Count: 1, Mask: 0xffffffff},
			Fragment: &hal.FragmentState{
				Module:     b.res.module,
				EntryPoint: "fs_main",
				Targets:    []gputypes.ColorTargetState{target},
			},
		})
		if err != nil {
			return errors.Wrapf(err, "halgfx: create %s pipeline", m.name)
		}
		b.res.builtin = append(b.res.builtin, p)
		b.materials[m.id] = p
	}
	return nil
}

func (b *Backend) createTextures() error {
	r := &b.res
	var err error
	r.sampler, err = b.device.CreateSampler(&hal.SamplerDescriptor{
		Label:        b.label("sampler"),
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeNearest,
		LodMaxClamp:  32,
	})
	if err != nil {
		return errors.Wrap(err, "halgfx: create sampler")
	}
	size := hal.Extent3D{Width: 1, Height: 1, DepthOrArrayLayers: 1}
	r.white, err = b.device.CreateTexture(&hal.TextureDescriptor{
		Label:         b.label("white"),
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return errors.Wrap(err, "halgfx: create white texture")
	}
	r.whiteView, err = b.device.CreateTextureView(r.white, &hal.TextureViewDescriptor{Label: b.label("white view")})
	if err != nil {
		return errors.Wrap(err, "halgfx: create white view")
	}
	err = b.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: r.white, Aspect: gputypes.TextureAspectAll},
		[]byte{0xff, 0xff, 0xff, 0xff},
		&hal.ImageDataLayout{BytesPerRow: 4, RowsPerImage: 1},
		&size,
	)
	return errors.Wrap(err, "halgfx: upload white texture")
}

// growTable replaces the storage buffer of kind with one holding at least
// need texels, rounded up to whole pages, and re-uploads the CPU copy.
func (b *Backend) growTable(kind gfx.ShaderInfoKind, need int) error {
	page := shaderinfo.EntriesPerPage * shaderinfo.EntryWidth(kind)
	n := max(page, len(b.tables[kind].shadow))
	for n < need {
		n *= 2
	}
	n = (n + page - 1) / page * page

	buf, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: b.label(kind.String() + " table"),
		Size:  uint64(n) * texelSize,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return errors.Wrapf(err, "halgfx: grow %s table to %d texels", kind, n)
	}
	t := &b.tables[kind]
	shadow := make([]gfx.Texel, n)
	copy(shadow, t.shadow)
	if len(t.shadow) > 0 {
		if err := b.queue.WriteBuffer(buf, 0, texelBytes(t.shadow)); err != nil {
			b.device.DestroyBuffer(buf)
			return errors.Wrapf(err, "halgfx: copy %s table", kind)
		}
	}
	if old := t.buf; old != nil {
		b.retire(func() { b.device.DestroyBuffer(old) })
	}
	t.buf, t.shadow = buf, shadow
	b.res.infoGroupStale = true
	slogger().Debug("halgfx: shader info table grown", "kind", kind, "texels", n)
	return nil
}

func (b *Backend) rebuildInfoGroup() error {
	entries := make([]gputypes.BindGroupEntry, 0, gfx.NumShaderInfoKinds+1)
	for k := range b.tables {
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  uint32(k),
			Resource: gputypes.BufferBinding{Buffer: b.tables[k].buf.NativeHandle()},
		})
	}
	entries = append(entries, gputypes.BindGroupEntry{
		Binding:  uint32(gfx.NumShaderInfoKinds),
		Resource: gputypes.BufferBinding{Buffer: b.res.views.NativeHandle(), Size: viewRecordFloats * 4},
	})
	g, err := b.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   b.label("shader info"),
		Layout:  b.res.infoLayout,
		Entries: entries,
	})
	if err != nil {
		return errors.Wrap(err, "halgfx: create shader info bind group")
	}
	b.replaceGroup(&b.res.infoGroup, g)
	b.res.infoGroupStale = false
	return nil
}

func (b *Backend) rebuildTextureGroup() error {
	entries := make([]gputypes.BindGroupEntry, 0, textureBindings+1)
	for i, id := range b.slots {
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  uint32(i),
			Resource: gputypes.TextureViewBinding{TextureView: b.textureView(id).NativeHandle()},
		})
	}
	entries = append(entries,
		gputypes.BindGroupEntry{
			Binding:  gfx.TextureSlotCount,
			Resource: gputypes.TextureViewBinding{TextureView: b.textureView(b.font).NativeHandle()},
		},
		gputypes.BindGroupEntry{
			Binding:  samplerBinding,
			Resource: gputypes.SamplerBinding{Sampler: b.res.sampler.NativeHandle()},
		},
	)
	g, err := b.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   b.label("textures"),
		Layout:  b.res.textureLayout,
		Entries: entries,
	})
	if err != nil {
		return errors.Wrap(err, "halgfx: create texture bind group")
	}
	b.replaceGroup(&b.res.textureGroup, g)
	return nil
}

func (b *Backend) replaceGroup(slot *hal.BindGroup, g hal.BindGroup) {
	if old := *slot; old != nil {
		b.retire(func() { b.device.DestroyBindGroup(old) })
	}
	*slot = g
}

func (b *Backend) destroyResources() {
	d := b.device
	r := &b.res
	if r.infoGroup != nil {
		d.DestroyBindGroup(r.infoGroup)
	}
	if r.textureGroup != nil {
		d.DestroyBindGroup(r.textureGroup)
	}
	for k := range b.tables {
		if buf := b.tables[k].buf; buf != nil {
			d.DestroyBuffer(buf)
		}
		b.tables[k] = table{}
	}
	if r.views != nil {
		d.DestroyBuffer(r.views)
	}
	if r.whiteView != nil {
		d.DestroyTextureView(r.whiteView)
	}
	if r.white != nil {
		d.DestroyTexture(r.white)
	}
	if r.sampler != nil {
		d.DestroySampler(r.sampler)
	}
	for _, p := range r.builtin {
		d.DestroyRenderPipeline(p)
	}
	if r.pipelineLayout != nil {
		d.DestroyPipelineLayout(r.pipelineLayout)
	}
	if r.textureLayout != nil {
		d.DestroyBindGroupLayout(r.textureLayout)
	}
	if r.infoLayout != nil {
		d.DestroyBindGroupLayout(r.infoLayout)
	}
	if r.module != nil {
		d.DestroyShaderModule(r.module)
	}
	*r = resources{}
	clear(b.materials)
}
