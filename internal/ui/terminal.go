package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// ShouldUseColor follows the NO_COLOR and CLICOLOR conventions: NO_COLOR
// always disables color, CLICOLOR_FORCE enables it even without a terminal,
// CLICOLOR=0 disables it, and otherwise color is used on a terminal.
func ShouldUseColor() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if v := os.Getenv("CLICOLOR_FORCE"); v != "" && v != "0" {
		return true
	}
	if os.Getenv("CLICOLOR") == "0" {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// ApplyColorProfile turns styling off when ShouldUseColor is false.
func ApplyColorProfile() {
	if !ShouldUseColor() {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}
