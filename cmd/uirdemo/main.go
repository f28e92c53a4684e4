// Command uirdemo renders an animated element tree through the recording
// backend and prints renderer statistics.
//
// Usage:
//
//	uirdemo [-config uir.toml [-watch]] [-frames 600] [-elements 64] [-v]
package main

import (
	"flag"
	"fmt"
	"image/color"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/gogpu/uir"
	"github.com/gogpu/uir/chain"
	"github.com/gogpu/uir/gfx"
	"github.com/gogpu/uir/gfx/recorder"
	"github.com/gogpu/uir/tess"
	"github.com/gogpu/uir/visual"
)

func main() {
	var (
		configPath = flag.String("config", "", "TOML configuration file")
		watch      = flag.Bool("watch", false, "reload the configuration file when it changes")
		frames     = flag.Int("frames", 600, "number of frames to render")
		elements   = flag.Int("elements", 64, "number of animated cards")
		every      = flag.Int("stats", 120, "print statistics every N frames")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Prefix:          "uirdemo",
	})
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}
	uir.SetLogger(slog.New(logger))

	if err := run(logger, *configPath, *watch, *frames, *elements, *every); err != nil {
		logger.Fatal("demo failed", "err", err)
	}
}

func run(logger *log.Logger, configPath string, watch bool, frames, elements, every int) error {
	cfg := uir.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = uir.LoadConfig(configPath); err != nil {
			return err
		}
	}

	r, err := uir.New(recorder.New(2), uir.WithConfig(cfg))
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	var reloads <-chan uir.Config
	if watch && configPath != "" {
		w, ch, err := watchConfig(logger, configPath)
		if err != nil {
			return err
		}
		defer func() { _ = w.Close() }()
		reloads = ch
	}

	scene := newScene(elements)
	if err := r.SetRoot(scene.root); err != nil {
		return err
	}

	for i := 0; i < frames; i++ {
		select {
		case c := <-reloads:
			if err := r.Apply(c); err != nil {
				logger.Error("config rejected", "err", err)
			} else {
				logger.Info("config applied", "break_batches", c.BreakBatches, "text_regen_per_frame", c.TextRegenPerFrame)
			}
		default:
		}

		if err := scene.animate(float32(i) / 60); err != nil {
			return err
		}
		if err := r.Frame(); err != nil {
			return err
		}
		if every > 0 && (i+1)%every == 0 {
			fmt.Println(r.Stats())
		}
	}

	data, err := r.Stats().Allocation.MarshalJSON()
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// watchConfig sends a freshly parsed configuration whenever path is
// written. The directory is watched so editors that replace the file are
// picked up.
func watchConfig(logger *log.Logger, path string) (*fsnotify.Watcher, <-chan uir.Config, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return nil, nil, err
	}
	ch := make(chan uir.Config, 1)
	name := filepath.Clean(path)
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != name || !ev.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				cfg, err := uir.LoadConfig(path)
				if err != nil {
					logger.Warn("config reload failed", "err", err)
					continue
				}
				select {
				case <-ch:
				default:
				}
				ch <- cfg
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("watcher error", "err", err)
			}
		}
	}()
	return w, ch, nil
}

type scene struct {
	root  *visual.Element
	cards []*visual.Element
}

const (
	sceneWidth  = 1280
	sceneHeight = 720
	cardSize    = 72
)

func newScene(n int) *scene {
	s := &scene{root: visual.New(gfx.Rect{W: sceneWidth, H: sceneHeight}, visual.Box{})}
	_ = s.root.SetColor(colorful.Hsv(220, 0.3, 0.15))

	cols := int(math.Max(1, math.Floor(sceneWidth/(cardSize*1.5))))
	for i := 0; i < n; i++ {
		x := float32(i%cols) * cardSize * 1.5
		y := float32(i/cols) * cardSize * 1.5
		card := visual.New(gfx.Rect{X: x + 16, Y: y + 16, W: cardSize, H: cardSize},
			visual.Box{Radii: tess.UniformRadii(8)},
			visual.Border{Widths: [4]float32{2, 2, 2, 2}, Colors: [4]color.Color{color.White, color.White, color.White, color.White}},
		)
		_ = card.SetHints(chain.HintDynamicColor)
		if i%4 == 0 {
			_ = card.SetClip(true)
			_ = card.Add(visual.New(gfx.Rect{X: 24, Y: 24, W: cardSize, H: cardSize}, visual.Box{}))
		}
		_ = s.root.Add(card)
		s.cards = append(s.cards, card)
	}
	return s
}

// animate cycles card colors through the hue wheel and bobs every other
// card vertically.
func (s *scene) animate(t float32) error {
	for i, card := range s.cards {
		hue := math.Mod(float64(t)*60+float64(i)*360/float64(len(s.cards)), 360)
		if err := card.SetColor(colorful.Hsv(hue, 0.7, 0.9)); err != nil {
			return err
		}
		if i%2 == 1 {
			dy := 6 * float32(math.Sin(float64(t)*3+float64(i)))
			if err := card.SetTransform(gfx.Translate(0, dy)); err != nil {
				return err
			}
		}
	}
	return nil
}
