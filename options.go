package uir

import "github.com/gogpu/uir/chain"

// Option configures a Renderer during creation.
//
// Example:
//
//	r, err := uir.New(backend,
//	    uir.WithConfig(cfg),
//	    uir.WithLinearColor(true),
//	)
type Option func(*options)

type options struct {
	cfg      Config
	events   chain.Events
	registry *chain.Registry
}

func defaultOptions() options {
	return options{cfg: DefaultConfig()}
}

// WithConfig replaces the whole configuration. Options after it still
// apply on top.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.cfg = cfg
	}
}

// WithEvents installs custom element processing hooks. nil keeps
// chain.DefaultEvents.
func WithEvents(ev chain.Events) Option {
	return func(o *options) {
		o.events = ev
	}
}

// WithRegistry registers the renderer's chain in reg instead of a
// registry private to the renderer.
func WithRegistry(reg *chain.Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// WithBreakBatches disables draw coalescing.
func WithBreakBatches(on bool) Option {
	return func(o *options) {
		o.cfg.BreakBatches = on
	}
}

// WithLinearColor converts element colors to linear space before they
// reach the GPU.
func WithLinearColor(on bool) Option {
	return func(o *options) {
		o.cfg.LinearColor = on
	}
}
