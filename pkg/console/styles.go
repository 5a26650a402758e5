// Package console is the terminal host: it draws decorations next to the
// manifest source and renders trees and tables with lipgloss.
package console

import "github.com/charmbracelet/lipgloss"

var (
	colorPrimary   = lipgloss.Color("#7D56F4")
	colorSecondary = lipgloss.Color("#04B575")
	colorError     = lipgloss.Color("#FF4672")
	colorWarning   = lipgloss.Color("#FFC857")
	colorSubtle    = lipgloss.Color("#6B6B6B")
)

var (
	styleTitle   = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	styleSubtle  = lipgloss.NewStyle().Foreground(colorSubtle)
	styleError   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	styleWarning = lipgloss.NewStyle().Foreground(colorWarning)
	styleLink    = lipgloss.NewStyle().Foreground(colorSecondary).Underline(true)
)

// colorFor maps decoration color names onto the palette.
func colorFor(name string) lipgloss.TerminalColor {
	switch name {
	case "red":
		return colorError
	case "green":
		return colorSecondary
	case "purple":
		return colorPrimary
	case "yellow":
		return colorWarning
	case "gray", "grey":
		return colorSubtle
	}
	return lipgloss.NoColor{}
}
