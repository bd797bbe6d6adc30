// Package logging builds the slog.Logger used by every client, node, and
// sidecar process in transcodefleet, with a console/JSON handler split and
// a single sink per process since this system has no long-running session
// log to archive.
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

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Options configures logger construction.
type Options struct {
	// Level is one of "debug", "info", "warn", "error". Defaults to "info".
	Level string
	// Format is "console" or "json". Defaults to "console".
	Format string
	// Output is the sink; defaults to os.Stderr when nil.
	Output io.Writer
}

// New constructs a slog.Logger per Options.
func New(opts Options) *slog.Logger {
	level := parseLevel(opts.Level)
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	format := strings.ToLower(strings.TrimSpace(opts.Format))
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	} else {
		handler = newConsoleHandler(out, level)
	}
	return slog.New(handler)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// consoleHandler renders human-friendly, optionally colorized lines. Color
// is enabled only when the sink is a real terminal.
type consoleHandler struct {
	mu     *sync.Mutex
	out    io.Writer
	level  slog.Level
	color  bool
	attrs  []slog.Attr
}

func newConsoleHandler(out io.Writer, level slog.Level) *consoleHandler {
	colorEnabled := false
	if f, ok := out.(*os.File); ok {
		colorEnabled = isatty.IsTerminal(f.Fd()) && os.Getenv("NO_COLOR") == ""
	}
	return &consoleHandler{mu: &sync.Mutex{}, out: out, level: level, color: colorEnabled}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	levelStr, paint := levelLabel(r.Level)
	ts := r.Time.Format(time.RFC3339)

	var b strings.Builder
	b.WriteString(ts)
	b.WriteByte(' ')
	if h.color {
		b.WriteString(paint(levelStr))
	} else {
		b.WriteString(levelStr)
	}
	b.WriteByte(' ')
	b.WriteString(r.Message)

	for _, a := range h.attrs {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, b.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

func (h *consoleHandler) WithGroup(_ string) slog.Handler {
	return h
}

func levelLabel(level slog.Level) (string, func(string) string) {
	wrap := func(c *color.Color) func(string) string {
		return func(s string) string { return c.Sprint(s) }
	}
	switch {
	case level >= slog.LevelError:
		return "ERROR", wrap(color.New(color.FgRed, color.Bold))
	case level >= slog.LevelWarn:
		return "WARN ", wrap(color.New(color.FgYellow, color.Bold))
	case level >= slog.LevelInfo:
		return "INFO ", wrap(color.New(color.FgCyan))
	default:
		return "DEBUG", wrap(color.New(color.FgMagenta))
	}
}
