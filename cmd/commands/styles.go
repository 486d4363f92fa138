package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// =============================================================================
// Color Palette
// =============================================================================

const (
	ColorDay     = "#F59E0B" // Amber - day badge
	ColorNight   = "#7C3AED" // Violet - night badge
	ColorSuccess = "#10B981" // Emerald - ok
	ColorAccent  = "#60A5FA" // Blue - labels
	ColorWarning = "#F59E0B" // Amber - fallbacks
	ColorError   = "#EF4444" // Red - errors
	ColorMuted   = "#6B7280" // Gray - hints
	ColorBadgeFg = "#FFFFFF"
)

var (
	dayBadgeStyle = lipgloss.NewStyle().
			Background(lipgloss.Color(ColorDay)).
			Foreground(lipgloss.Color(ColorBadgeFg)).
			Bold(true).
			Padding(0, 1)

	nightBadgeStyle = lipgloss.NewStyle().
			Background(lipgloss.Color(ColorNight)).
			Foreground(lipgloss.Color(ColorBadgeFg)).
			Bold(true).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorAccent)).
			Bold(true)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color(ColorSuccess))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorWarning))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorError)).
			Bold(true)

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#4B5563", Dark: ColorMuted}).
			Italic(true)
)

// printer writes styled output when stdout is a terminal and plain text
// otherwise.
type printer struct {
	w      io.Writer
	styled bool
}

func newPrinter() *printer {
	return &printer{
		w:      os.Stdout,
		styled: term.IsTerminal(int(os.Stdout.Fd())),
	}
}

func (p *printer) render(s lipgloss.Style, text string) string {
	if !p.styled {
		return text
	}
	return s.Render(text)
}

func (p *printer) badge(period string) string {
	switch period {
	case "night":
		return p.render(nightBadgeStyle, "NIGHT")
	case "day":
		return p.render(dayBadgeStyle, "DAY")
	default:
		return period
	}
}

// field prints an aligned "label: value" line.
func (p *printer) field(label string, value any) {
	fmt.Fprintf(p.w, "%s %v\n", p.render(labelStyle, fmt.Sprintf("%-12s", label+":")), value)
}

func (p *printer) line(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) ok(text string) string { return p.render(okStyle, text) }
func (p *printer) warn(text string) string { return p.render(warnStyle, text) }
func (p *printer) fail(text string) string { return p.render(errorStyle, text) }
func (p *printer) hint(text string) string { return p.render(hintStyle, text) }
