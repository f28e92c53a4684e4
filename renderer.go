package uir

import (
	"github.com/cockroachdb/errors"

	"github.com/gogpu/uir/chain"
	"github.com/gogpu/uir/device"
	"github.com/gogpu/uir/gfx"
)

// ErrClosed is returned by calls on a closed Renderer.
var ErrClosed = errors.New("uir: renderer closed")

// Renderer drives one element tree through a graphics backend. It owns a
// device and a chain and runs the per-frame sequence in Frame.
//
// A Renderer is not safe for concurrent use.
type Renderer struct {
	backend  gfx.Backend
	dev      *device.Device
	chain    *chain.Chain
	registry *chain.Registry
	cfg      Config
	frames   uint64
	closed   bool
}

// New creates a renderer drawing through b.
func New(b gfx.Backend, opts ...Option) (*Renderer, error) {
	if b == nil {
		return nil, errors.New("uir: nil backend")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	dev, err := device.New(b, o.cfg.deviceConfig())
	if err != nil {
		return nil, errors.Wrap(err, "uir: create device")
	}
	reg := o.registry
	if reg == nil {
		reg = &chain.Registry{}
	}
	ccfg := o.cfg.chainConfig()
	ccfg.Registry = reg
	c, err := chain.New(dev, ccfg, o.events)
	if err != nil {
		return nil, errors.CombineErrors(errors.Wrap(err, "uir: create chain"), dev.Dispose())
	}
	Logger().Info("uir: renderer created", "device", dev.ID())
	return &Renderer{backend: b, dev: dev, chain: c, registry: reg, cfg: o.cfg}, nil
}

// Device returns the geometry device.
func (r *Renderer) Device() *device.Device { return r.dev }

// Chain returns the render chain of the element tree.
func (r *Renderer) Chain() *chain.Chain { return r.chain }

// Registry returns the registry holding the renderer's chain. The chain
// leaves it on Close.
func (r *Renderer) Registry() *chain.Registry { return r.registry }

// Config returns the active configuration.
func (r *Renderer) Config() Config { return r.cfg }

// SetRoot replaces the element tree. nil clears it.
func (r *Renderer) SetRoot(e chain.Element) error {
	if r.closed {
		return ErrClosed
	}
	return r.chain.SetRoot(e)
}

// Apply takes over the settings of cfg that can change while rendering:
// break_batches and text_regen_per_frame. The rest only apply to new
// renderers.
func (r *Renderer) Apply(cfg Config) error {
	if r.closed {
		return ErrClosed
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.chain.SetBreakBatches(cfg.BreakBatches)
	r.chain.SetTextRegenPerFrame(cfg.TextRegenPerFrame)
	r.cfg.BreakBatches = cfg.BreakBatches
	r.cfg.TextRegenPerFrame = cfg.TextRegenPerFrame
	return nil
}

// Frame renders one frame: it advances the device frame ring, processes
// the pending element changes and draws the command list between
// BeginFrame and EndFrame. The frame is always ended once begun.
func (r *Renderer) Frame() error {
	if r.closed {
		return ErrClosed
	}
	if err := r.dev.AdvanceFrame(); err != nil {
		return errors.Wrap(err, "uir: advance frame")
	}
	device.DrainDisposed()
	if err := r.chain.ProcessChanges(); err != nil {
		return errors.Wrap(err, "uir: process changes")
	}
	if err := r.backend.BeginFrame(); err != nil {
		return errors.Wrap(err, "uir: begin frame")
	}
	err := errors.Wrap(r.chain.Render(), "uir: render")
	if eerr := r.backend.EndFrame(); eerr != nil {
		err = errors.CombineErrors(err, errors.Wrap(eerr, "uir: end frame"))
	}
	r.frames++
	return err
}

// Stats returns the counters of the last frame.
func (r *Renderer) Stats() Stats {
	return Stats{
		Frames:     r.frames,
		Draw:       r.dev.GatherDrawStatistics(),
		Chain:      r.chain.Stats(),
		Allocation: r.dev.GatherAllocationStatistics(),
	}
}

// Close releases the element tree and the device. The backend belongs to
// the caller.
func (r *Renderer) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	err := r.chain.Close()
	if derr := r.dev.Dispose(); derr != nil {
		err = errors.CombineErrors(err, derr)
	}
	Logger().Info("uir: renderer closed", "frames", r.frames)
	return errors.Wrap(err, "uir: close")
}
