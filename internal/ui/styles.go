// Package ui provides terminal styling for ticketledger CLI output.
// Uses the Ayu color theme with adaptive light/dark mode support.
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/steveyegge/ticketledger/internal/types"
)

// Ayu theme color palette
var (
	ColorPass = lipgloss.AdaptiveColor{
		Light: "#86b300",
		Dark:  "#c2d94c",
	}
	ColorWarn = lipgloss.AdaptiveColor{
		Light: "#f2ae49",
		Dark:  "#ffb454",
	}
	ColorFail = lipgloss.AdaptiveColor{
		Light: "#f07171",
		Dark:  "#f07178",
	}
	ColorMuted = lipgloss.AdaptiveColor{
		Light: "#828c99",
		Dark:  "#6c7680",
	}
	ColorAccent = lipgloss.AdaptiveColor{
		Light: "#399ee6",
		Dark:  "#59c2ff",
	}
)

var (
	PassStyle   = lipgloss.NewStyle().Foreground(ColorPass)
	WarnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	FailStyle   = lipgloss.NewStyle().Foreground(ColorFail)
	MutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	AccentStyle = lipgloss.NewStyle().Foreground(ColorAccent)

	// CategoryStyle for section headers
	CategoryStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
)

const (
	IconPass = "✓"
	IconWarn = "⚠"
	IconFail = "✗"
	IconSkip = "-"
	IconInfo = "ℹ"
)

const (
	TreeLast   = "└─ "
	TreeIndent = "  "
)

const SeparatorLight = "──────────────────────────────────────────"

func RenderPass(s string) string   { return PassStyle.Render(s) }
func RenderWarn(s string) string   { return WarnStyle.Render(s) }
func RenderFail(s string) string   { return FailStyle.Render(s) }
func RenderMuted(s string) string  { return MutedStyle.Render(s) }
func RenderAccent(s string) string { return AccentStyle.Render(s) }

// RenderCategory renders a category header in uppercase with accent color
func RenderCategory(s string) string {
	return CategoryStyle.Render(strings.ToUpper(s))
}

// RenderSeparator renders the light separator line in muted color
func RenderSeparator() string {
	return MutedStyle.Render(SeparatorLight)
}

// OutcomeStyle picks the style for a test outcome: green for SUCCESS, red
// for FAILURE and ERROR, yellow for PENDING and muted for the rest.
func OutcomeStyle(o types.Outcome) lipgloss.Style {
	switch o {
	case types.OutcomeSuccess:
		return PassStyle
	case types.OutcomeFailure, types.OutcomeError:
		return FailStyle
	case types.OutcomePending:
		return WarnStyle
	default:
		return MutedStyle
	}
}

// OutcomeIcon returns the icon matching OutcomeStyle.
func OutcomeIcon(o types.Outcome) string {
	switch o {
	case types.OutcomeSuccess:
		return IconPass
	case types.OutcomeFailure, types.OutcomeError:
		return IconFail
	case types.OutcomePending:
		return IconWarn
	default:
		return IconSkip
	}
}

// RenderOutcome renders an outcome name with its icon and color.
func RenderOutcome(o types.Outcome) string {
	return OutcomeStyle(o).Render(OutcomeIcon(o) + " " + o.String())
}
