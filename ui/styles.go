package ui

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	ColorPrimary    = lipgloss.Color("#7C3AED") // Purple
	ColorBarStrong  = lipgloss.Color("#F59E0B") // Amber — downbeat
	ColorGroupMed   = lipgloss.Color("#10B981") // Green — grouped accent
	ColorSubdivWeak = lipgloss.Color("#3B82F6") // Blue — weak subdivision
	ColorMuted      = lipgloss.Color("#EF4444") // Red — muted slot
	ColorBackground = lipgloss.Color("#1F2937") // Dark gray
	ColorSurface    = lipgloss.Color("#374151") // Medium gray
	ColorText       = lipgloss.Color("#F9FAFB") // Light gray
	ColorTextDim    = lipgloss.Color("#9CA3AF") // Dimmed text
	ColorPlayhead   = lipgloss.Color("#4ADE80") // Bright green
)

// Styles
var (
	BaseStyle = lipgloss.NewStyle().
			Background(ColorBackground).
			Foreground(ColorText)

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			Padding(0, 1).
			MarginBottom(1)

	// Bar strip container
	BarStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorSurface).
			Padding(1).
			Width(14).
			Align(lipgloss.Center)

	SelectedBarStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(ColorPrimary).
				Padding(1).
				Width(14).
				Align(lipgloss.Center)

	BarNameStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorText).
			Align(lipgloss.Center)

	ValueStyle = lipgloss.NewStyle().
			Foreground(ColorTextDim).
			Align(lipgloss.Center)

	MuteActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBackground).
			Background(ColorMuted).
			Padding(0, 1)

	MuteInactiveStyle = lipgloss.NewStyle().
				Foreground(ColorTextDim).
				Padding(0, 1)

	HelpStyle = lipgloss.NewStyle().
			Foreground(ColorTextDim).
			MarginTop(1)

	StatusStyle = lipgloss.NewStyle().
			Foreground(ColorTextDim).
			MarginTop(1)

	// Tempo readout
	TempoStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(ColorBarStrong).
			Padding(1).
			Width(12).
			Align(lipgloss.Center)
)
