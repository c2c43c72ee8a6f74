package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/dgnsrekt/narrate/internal/narration"
)

var (
	fuchsia   = lipgloss.Color("#EE6FF8")
	mintGreen = lipgloss.AdaptiveColor{Light: "#89F0CB", Dark: "#89F0CB"}
	darkGreen = lipgloss.AdaptiveColor{Light: "#1C8760", Dark: "#1C8760"}
	red       = lipgloss.AdaptiveColor{Light: "#FF4672", Dark: "#ED567A"}
	dimFg     = lipgloss.AdaptiveColor{Light: "#656565", Dark: "#7D7D7D"}

	logoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ECFD65")).
			Background(fuchsia).
			Bold(true).
			Padding(0, 1)

	headerNoteStyle = lipgloss.NewStyle().
			Foreground(dimFg)

	sectionStyle = lipgloss.NewStyle().
			Foreground(fuchsia).
			Bold(true)

	currentItemStyle = lipgloss.NewStyle().
				Foreground(fuchsia).
				Bold(true)

	itemStyle = lipgloss.NewStyle()

	itemSourceStyle = lipgloss.NewStyle().
			Foreground(dimFg)

	statusBarMessageStyle = lipgloss.NewStyle().
				Foreground(mintGreen).
				Background(darkGreen).
				Render

	statusBarErrorStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FFFDF5")).
				Background(red).
				Render
)

func stateIcon(s narration.State) string {
	switch s {
	case narration.StatePlaying:
		return "▶"
	case narration.StatePaused:
		return "⏸"
	default:
		return "■"
	}
}

func stateStyle(s narration.State) lipgloss.Style {
	switch s {
	case narration.StatePlaying:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	case narration.StatePaused:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	}
}
