package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// BracketHandler is a slog.Handler that writes
// [LEVEL] [system] [HH:MM:SS] message key=value lines. Colors are enabled
// only when the writer is a terminal.
type BracketHandler struct {
	w         io.Writer
	level     slog.Level
	mu        *sync.Mutex
	system    string
	useColors bool
	attrs     []slog.Attr
}

// NewBracketHandler creates a bracket-style handler.
func NewBracketHandler(w io.Writer, opts *slog.HandlerOptions) *BracketHandler {
	h := &BracketHandler{
		w:         w,
		level:     slog.LevelInfo,
		mu:        &sync.Mutex{},
		useColors: isTerminal(w),
	}
	if opts != nil && opts.Level != nil {
		h.level = opts.Level.Level()
	}
	return h
}

func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}

// Enabled reports whether the handler handles records at the given level.
func (h *BracketHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle formats and writes a log record.
func (h *BracketHandler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder

	h.colorize(&buf, h.levelColor(r.Level), "["+levelString(r.Level)+"]")
	if h.system != "" {
		buf.WriteString(" [" + h.system + "]")
	}
	h.colorize(&buf, colorGray, " ["+r.Time.Format("15:04:05")+"]")

	buf.WriteString(" ")
	buf.WriteString(r.Message)

	for _, attr := range h.attrs {
		h.appendAttr(&buf, attr)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.appendAttr(&buf, a)
		return true
	})

	buf.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, buf.String())
	return err
}

func (h *BracketHandler) colorize(buf *strings.Builder, color, s string) {
	if h.useColors {
		buf.WriteString(color)
		buf.WriteString(s)
		buf.WriteString(colorReset)
		return
	}
	buf.WriteString(s)
}

// appendAttr appends a key=value pair; the system attr already appears in
// its own bracket.
func (h *BracketHandler) appendAttr(buf *strings.Builder, a slog.Attr) {
	if a.Key == "system" {
		return
	}
	fmt.Fprintf(buf, " %s=%v", a.Key, a.Value.Any())
}

// WithAttrs returns a new handler carrying the extra attributes.
func (h *BracketHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	for _, attr := range attrs {
		if attr.Key == "system" {
			clone.system = attr.Value.String()
		}
	}
	return &clone
}

// WithGroup is accepted but groups are not reflected in the output format.
func (h *BracketHandler) WithGroup(string) slog.Handler {
	clone := *h
	return &clone
}

func (h *BracketHandler) levelColor(level slog.Level) string {
	switch level {
	case slog.LevelDebug:
		return colorGray
	case slog.LevelWarn:
		return colorYellow
	case slog.LevelError:
		return colorRed
	default:
		return colorCyan
	}
}

func levelString(level slog.Level) string {
	switch level {
	case slog.LevelDebug:
		return "DEBUG"
	case slog.LevelWarn:
		return "WARN"
	case slog.LevelError:
		return "ERROR"
	case slog.LevelInfo:
		return "INFO"
	default:
		return fmt.Sprintf("LEVEL(%d)", level)
	}
}
