// Package logging wraps log/slog with the timestamp and level formatting
// the core uses on its serial console, so a fatal-trap dump reads the same
// whether it lands on a UART or on stderr during a hosted test run.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Handler formats records as "HH:MM:SS.mmm LEVEL message key=val ...",
// one line per record, guarded by a mutex since the logger may be reached
// from the core-0 dispatcher and, for advisory messages, from the logger
// core mentioned in spec.md §5.
type Handler struct {
	out   io.Writer
	attrs []slog.Attr
	mu    *sync.Mutex
}

// New returns a Handler writing to out.
func New(out io.Writer) *Handler {
	return &Handler{out: out, mu: &sync.Mutex{}}
}

// Default returns a Handler writing to os.Stderr, suitable for tests and
// for any host build that has not wired a serial console yet.
func Default() *Handler {
	return New(os.Stderr)
}

func (h *Handler) Enabled(context.Context, slog.Level) bool { return true }

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	na := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	na = append(na, h.attrs...)
	na = append(na, attrs...)
	return &Handler{out: h.out, attrs: na, mu: h.mu}
}

func (h *Handler) WithGroup(string) slog.Handler { return h }

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Time.Format("15:04:05.000"))
	b.WriteByte(' ')
	b.WriteString(r.Level.String())
	b.WriteByte(' ')
	b.WriteString(r.Message)
	for _, a := range h.attrs {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value.Any())
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value.Any())
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, b.String())
	return err
}

// NewLogger returns a ready-to-use *slog.Logger bound to out.
func NewLogger(out io.Writer) *slog.Logger {
	return slog.New(New(out))
}

// Uptime is a monotonic helper used to stamp fatal dumps with how long the
// core has been running, since wall-clock time means little on a headless
// board.
func Uptime(start time.Time) time.Duration {
	return time.Since(start)
}
