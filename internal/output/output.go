// Package output renders command results as styled text or JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Result is anything a command can print in both human and JSON form.
type Result interface {
	Text(w io.Writer) error
	JSON() any
}

// Formatter writes command output in the selected mode.
type Formatter struct {
	w        io.Writer
	jsonMode bool
	indent   bool
}

// Option configures a Formatter.
type Option func(*Formatter)

// WithJSON switches the formatter to JSON output.
func WithJSON(enabled bool) Option {
	return func(f *Formatter) { f.jsonMode = enabled }
}

// WithWriter directs output to w instead of stdout.
func WithWriter(w io.Writer) Option {
	return func(f *Formatter) { f.w = w }
}

// WithIndent controls JSON pretty-printing.
func WithIndent(enabled bool) Option {
	return func(f *Formatter) { f.indent = enabled }
}

// New creates a Formatter. Defaults: stdout, text mode, indented JSON.
func New(opts ...Option) *Formatter {
	f := &Formatter{w: os.Stdout, indent: true}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// IsJSON reports whether the formatter is in JSON mode.
func (f *Formatter) IsJSON() bool { return f.jsonMode }

// Output renders r in the formatter's mode.
func (f *Formatter) Output(r Result) error {
	if f.jsonMode {
		return f.JSON(r.JSON())
	}
	return r.Text(f.w)
}

// JSON writes v as JSON regardless of mode.
func (f *Formatter) JSON(v any) error {
	return WriteJSON(f.w, v, f.indent)
}

// WriteJSON encodes v to w, optionally indented.
func WriteJSON(w io.Writer, v any, indent bool) error {
	enc := json.NewEncoder(w)
	if indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// Timestamp returns the instant stamped onto generated responses.
func Timestamp() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// noColor is process-wide so a --no-color flag reaches every renderer.
var noColor atomic.Bool

// SetNoColor disables styled output for the whole process.
func SetNoColor(disabled bool) { noColor.Store(disabled) }

// colorEnabled reports whether styled output should be used for w.
func colorEnabled(w io.Writer) bool {
	if noColor.Load() || termenv.EnvNoColor() {
		return false
	}
	return isTerminal(w)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// textWidth reports the render width for w, defaulting to 80 columns.
func textWidth(w io.Writer) int {
	if f, ok := w.(*os.File); ok && isTerminal(w) {
		if cols, _, err := term.GetSize(int(f.Fd())); err == nil && cols > 0 {
			return cols
		}
	}
	return 80
}
