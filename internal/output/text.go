package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/wordwrap"
)

// styles bundles the lipgloss styles used by text rendering.
type styles struct {
	title lipgloss.Style
	ok    lipgloss.Style
	warn  lipgloss.Style
	bad   lipgloss.Style
	muted lipgloss.Style
}

func newStyles(w io.Writer) styles {
	if !colorEnabled(w) {
		plain := lipgloss.NewStyle()
		return styles{title: plain, ok: plain, warn: plain, bad: plain, muted: plain}
	}
	return styles{
		title: lipgloss.NewStyle().Bold(true),
		ok:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		warn:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		bad:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		muted: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	}
}

// Print writes arguments to the formatter's writer without styling.
func (f *Formatter) Print(args ...any) {
	fmt.Fprint(f.w, args...)
}

// Printf writes formatted text to the formatter's writer.
func (f *Formatter) Printf(format string, args ...any) {
	fmt.Fprintf(f.w, format, args...)
}

// wrap re-flows text to the writer's width with a small right margin.
func wrap(w io.Writer, text string) string {
	width := textWidth(w) - 2
	if width < 20 {
		width = 20
	}
	return wordwrap.String(text, width)
}

// pad right-pads s with spaces to the given display width.
func pad(s string, width int) string {
	return runewidth.FillRight(s, width)
}

// tableRow renders cells padded to the column widths.
func tableRow(cells []string, widths []int) string {
	parts := make([]string, len(cells))
	for i, c := range cells {
		parts[i] = pad(c, widths[i])
	}
	return strings.TrimRight(strings.Join(parts, "  "), " ")
}

// Truncate shortens s to at most maxLen bytes, cutting on a rune
// boundary and ellipsizing when there is room for it.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	target := maxLen - 3
	ellipsis := "..."
	if maxLen <= 3 {
		target = maxLen
		ellipsis = ""
	}
	last := 0
	for i := range s {
		if i > target {
			break
		}
		last = i
	}
	return s[:last] + ellipsis
}

// columnWidths computes per-column display widths over header and rows.
func columnWidths(header []string, rows [][]string) []int {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}
	return widths
}
