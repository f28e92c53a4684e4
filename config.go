package uir

import (
	"bytes"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"

	"github.com/gogpu/uir/chain"
	"github.com/gogpu/uir/device"
)

// Config holds the renderer settings. It maps onto a TOML document:
//
//	initial_vertex_capacity = 2048
//	large_mesh_vertex_count = 32768
//	max_vertices_per_page = 65536
//	prune_empty_frames = 60
//	break_batches = false
//	text_regen_per_frame = 50
//	synchronous_shutdown = false
//	linear_color = false
type Config struct {
	InitialVertexCapacity uint32 `toml:"initial_vertex_capacity"`
	LargeMeshVertexCount  uint32 `toml:"large_mesh_vertex_count"`
	MaxVerticesPerPage    uint32 `toml:"max_vertices_per_page"`
	PruneEmptyFrames      int    `toml:"prune_empty_frames"`

	// BreakBatches submits every draw on its own. Debugging aid.
	BreakBatches bool `toml:"break_batches"`

	// TextRegenPerFrame bounds the text elements regenerated per frame
	// outside of a font atlas reset.
	TextRegenPerFrame int `toml:"text_regen_per_frame"`

	SynchronousShutdown bool `toml:"synchronous_shutdown"`

	// LinearColor converts element colors from sRGB to linear space.
	LinearColor bool `toml:"linear_color"`
}

// DefaultConfig returns the default settings.
func DefaultConfig() Config {
	d := device.DefaultConfig()
	return Config{
		InitialVertexCapacity: d.InitialVertexCapacity,
		LargeMeshVertexCount:  d.LargeMeshVertexCount,
		MaxVerticesPerPage:    d.MaxVerticesPerPage,
		PruneEmptyFrames:      d.PruneEmptyFrames,
		TextRegenPerFrame:     chain.DefaultTextRegenPerFrame,
	}
}

// ParseConfig decodes a TOML document. Keys left out keep their default
// values; unknown keys are an error.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "uir: parse config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and decodes the TOML file at path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "uir: load config")
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, errors.Wrapf(err, "%s", path)
	}
	return cfg, nil
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if err := c.deviceConfig().Validate(); err != nil {
		return errors.Wrap(err, "uir: invalid config")
	}
	if c.TextRegenPerFrame <= 0 {
		return errors.Newf("uir: invalid config: text_regen_per_frame %d must be positive", c.TextRegenPerFrame)
	}
	return nil
}

// Marshal encodes the configuration as TOML.
func (c Config) Marshal() ([]byte, error) {
	data, err := toml.Marshal(c)
	return data, errors.Wrap(err, "uir: marshal config")
}

func (c Config) deviceConfig() device.Config {
	return device.Config{
		InitialVertexCapacity: c.InitialVertexCapacity,
		LargeMeshVertexCount:  c.LargeMeshVertexCount,
		MaxVerticesPerPage:    c.MaxVerticesPerPage,
		PruneEmptyFrames:      c.PruneEmptyFrames,
		BreakBatches:          c.BreakBatches,
		SynchronousShutdown:   c.SynchronousShutdown,
	}
}

func (c Config) chainConfig() chain.Config {
	cfg := chain.DefaultConfig()
	cfg.TextRegenPerFrame = c.TextRegenPerFrame
	cfg.LinearColor = c.LinearColor
	cfg.BreakBatches = c.BreakBatches
	return cfg
}
