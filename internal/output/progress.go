package output

import (
	"fmt"
	"io"
)

const (
	iconOK   = "✓"
	iconFail = "✗"
	iconWarn = "⚠"
	iconInfo = "ℹ"
)

// ProgressMsg writes step-by-step progress lines with status icons.
type ProgressMsg struct {
	w      io.Writer
	indent string
}

// ProgressWriter builds a ProgressMsg targeting w.
func ProgressWriter(w io.Writer) *ProgressMsg {
	return &ProgressMsg{w: w}
}

// SetIndent prefixes every line with the given indent.
func (p *ProgressMsg) SetIndent(indent string) *ProgressMsg {
	p.indent = indent
	return p
}

func (p *ProgressMsg) line(icon, msg string) {
	if icon == "" {
		fmt.Fprintf(p.w, "%s%s\n", p.indent, msg)
		return
	}
	fmt.Fprintf(p.w, "%s%s %s\n", p.indent, icon, msg)
}

// Successf prints a completed-step line.
func (p *ProgressMsg) Successf(format string, args ...any) {
	p.line(iconOK, fmt.Sprintf(format, args...))
}

// Errorf prints a failed-step line.
func (p *ProgressMsg) Errorf(format string, args ...any) {
	p.line(iconFail, fmt.Sprintf(format, args...))
}

// Warningf prints a warning line.
func (p *ProgressMsg) Warningf(format string, args ...any) {
	p.line(iconWarn, fmt.Sprintf(format, args...))
}

// Infof prints an informational line.
func (p *ProgressMsg) Infof(format string, args ...any) {
	p.line(iconInfo, fmt.Sprintf(format, args...))
}

// Printf prints an unadorned line.
func (p *ProgressMsg) Printf(format string, args ...any) {
	p.line("", fmt.Sprintf(format, args...))
}
