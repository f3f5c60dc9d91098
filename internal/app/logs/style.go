package logs

import "github.com/charmbracelet/lipgloss"

// Output layout constants
const (
	DefaultMaxLabelLen = 10
	DefaultTermWidth   = 80
	MinTermWidth       = 40
	BannerMaxShown     = 5
	TimestampFormat    = "2006-01-02 15:04:05.000"
)

// Terminal colors
const (
	FgPrimary       = lipgloss.Color("#7D56F4")
	FgMuted         = lipgloss.Color("7")
	FgBorder        = lipgloss.Color("8")
	FgStatusRunning = lipgloss.Color("10")
	FgStatusWarning = lipgloss.Color("11")
	FgStatusError   = lipgloss.Color("9")
	FgStatusStopped = lipgloss.Color("8")
)

// SeparatorColor is the adaptive color for the label separator
var SeparatorColor = lipgloss.AdaptiveColor{Light: "#737373", Dark: "#a3a3a3"}

// LabelPalette provides distinct colors for instance labels
var LabelPalette = []lipgloss.AdaptiveColor{
	{Light: "#0891b2", Dark: "#22d3ee"}, // Cyan
	{Light: "#d97706", Dark: "#fbbf24"}, // Amber
	{Light: "#059669", Dark: "#34d399"}, // Emerald
	{Light: "#7c3aed", Dark: "#a78bfa"}, // Violet
	{Light: "#db2777", Dark: "#f472b6"}, // Pink
	{Light: "#2563eb", Dark: "#60a5fa"}, // Blue
	{Light: "#dc2626", Dark: "#f87171"}, // Red
	{Light: "#65a30d", Dark: "#a3e635"}, // Lime
	{Light: "#0d9488", Dark: "#2dd4bf"}, // Teal
	{Light: "#ea580c", Dark: "#fb923c"}, // Orange
	{Light: "#4f46e5", Dark: "#818cf8"}, // Indigo
	{Light: "#0284c7", Dark: "#38bdf8"}, // Sky
	{Light: "#15803d", Dark: "#86efac"}, // Green
	{Light: "#9333ea", Dark: "#e879f9"}, // Magenta
	{Light: "#b45309", Dark: "#fcd34d"}, // Gold
	{Light: "#047857", Dark: "#6ee7b7"}, // Mint
}

var (
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(FgBorder).
			Padding(0, 1)

	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(FgPrimary)
	mutedStyle     = lipgloss.NewStyle().Foreground(FgMuted)
	boldStyle      = lipgloss.NewStyle().Bold(true)
	helpKeyStyle   = lipgloss.NewStyle().Foreground(FgPrimary)
	helpDescStyle  = lipgloss.NewStyle().Foreground(FgBorder)
	timestampStyle = lipgloss.NewStyle().Foreground(FgBorder)
)

// statusStyle picks the color of a state line
func statusStyle(color lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(color).Bold(true)
}
