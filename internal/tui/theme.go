package tui

import "github.com/charmbracelet/lipgloss"

// Theme defines the color palette for the TUI.
// Inspired by btop and Tokyo Night color scheme.
type Theme struct {
	BgDark   lipgloss.Color
	BgAccent lipgloss.Color

	TextPrimary lipgloss.Color
	TextDim     lipgloss.Color
	TextMuted   lipgloss.Color

	Border        lipgloss.Color
	BorderFocused lipgloss.Color

	Accent  lipgloss.Color
	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color
	Running lipgloss.Color
}

// DefaultTheme returns the default dark theme inspired by btop/Tokyo Night.
var DefaultTheme = Theme{
	BgDark:   lipgloss.Color("#1a1b26"),
	BgAccent: lipgloss.Color("#414868"),

	TextPrimary: lipgloss.Color("#c0caf5"),
	TextDim:     lipgloss.Color("#565f89"),
	TextMuted:   lipgloss.Color("#414868"),

	Border:        lipgloss.Color("#414868"),
	BorderFocused: lipgloss.Color("#7aa2f7"),

	Accent:  lipgloss.Color("#7aa2f7"), // Blue
	Success: lipgloss.Color("#9ece6a"), // Green
	Warning: lipgloss.Color("#e0af68"), // Amber
	Error:   lipgloss.Color("#f7768e"), // Red/Pink
	Running: lipgloss.Color("#e0af68"), // Amber for running
}

// Styles provides pre-configured lipgloss styles using the theme.
type Styles struct {
	Base    lipgloss.Style
	Dim     lipgloss.Style
	Bold    lipgloss.Style
	Title   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Running lipgloss.Style

	Panel      lipgloss.Style
	PanelTitle lipgloss.Style
	KeyBinding lipgloss.Style
	KeyHint    lipgloss.Style
	Footer     lipgloss.Style
}

// NewStyles creates a new Styles instance from a Theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Base: lipgloss.NewStyle().Foreground(t.TextPrimary),
		Dim:  lipgloss.NewStyle().Foreground(t.TextDim),
		Bold: lipgloss.NewStyle().Foreground(t.TextPrimary).Bold(true),
		Title: lipgloss.NewStyle().
			Foreground(t.Accent).
			Bold(true).
			Padding(0, 1),
		Success: lipgloss.NewStyle().Foreground(t.Success),
		Warning: lipgloss.NewStyle().Foreground(t.Warning),
		Error:   lipgloss.NewStyle().Foreground(t.Error),
		Running: lipgloss.NewStyle().Foreground(t.Running).Bold(true),

		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(t.Border).
			Padding(1, 2),
		PanelTitle: lipgloss.NewStyle().
			Foreground(t.Accent).
			Bold(true).
			Padding(0, 1),
		KeyBinding: lipgloss.NewStyle().
			Foreground(t.Accent).
			Bold(true),
		KeyHint: lipgloss.NewStyle().
			Foreground(t.TextDim),
		Footer: lipgloss.NewStyle().
			Foreground(t.TextDim),
	}
}

// DefaultStyles returns styles using the default theme.
var DefaultStyles = NewStyles(DefaultTheme)

// OutcomeIcon returns a colored indicator for a conversation outcome.
// The glyphs stay distinct even when the terminal strips color.
func OutcomeIcon(outcome string, s Styles) string {
	switch outcome {
	case "PASS":
		return s.Success.Render("✓")
	case "XFAIL":
		return s.Warning.Render("~")
	case "FAIL", "XPASS":
		return s.Error.Render("✗")
	default:
		return s.Dim.Render("○")
	}
}
