package uir

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/uir/chain"
	"github.com/gogpu/uir/device"
	"github.com/gogpu/uir/gfx/halgfx"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for uir and all its sub-packages.
// By default uir produces no log output. Pass nil to restore silence.
//
// Log levels used by uir:
//   - [slog.LevelDebug]: page creation and pruning, batch flushes, table growth
//   - [slog.LevelInfo]: device and backend lifecycle
//   - [slog.LevelWarn]: recovered immediate callback failures, text
//     regeneration that does not converge
//
// Example:
//
//	uir.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	device.SetLogger(l)
	chain.SetLogger(l)
	halgfx.SetLogger(l)
}

// Logger returns the current logger used by uir.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
