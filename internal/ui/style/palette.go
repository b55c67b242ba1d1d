package style

import "github.com/charmbracelet/lipgloss"

var (
	Cyan    = lipgloss.Color("#00E5FF")
	Magenta = lipgloss.Color("#FF1B6B")
	Yellow  = lipgloss.Color("#FFB500")
	Green   = lipgloss.Color("#2AFFAA")
	Red     = lipgloss.Color("#FF5555")

	Base01 = lipgloss.Color("#6C7280") // Muted text
	Base2  = lipgloss.Color("#ECEFF4") // Primary text

	// Trade sides
	HypeColor   = Green
	UnhypeColor = Red
)

// Palette groups the report colours.
type Palette struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Success   lipgloss.Color
	Error     lipgloss.Color
	Warning   lipgloss.Color
	Text      lipgloss.Color
	TextMuted lipgloss.Color

	Hype   lipgloss.Color
	Unhype lipgloss.Color
}

// DefaultPalette returns the default color palette
func DefaultPalette() Palette {
	return Palette{
		Primary:   Cyan,
		Secondary: Magenta,
		Success:   Green,
		Error:     Red,
		Warning:   Yellow,
		Text:      Base2,
		TextMuted: Base01,

		Hype:   HypeColor,
		Unhype: UnhypeColor,
	}
}

// Styles are the lipgloss styles shared by the report views.
type Styles struct {
	Title  lipgloss.Style
	Header lipgloss.Style
	Label  lipgloss.Style
	Value  lipgloss.Style
	Muted  lipgloss.Style
	Good   lipgloss.Style
	Bad    lipgloss.Style
	Box    lipgloss.Style
}

func DefaultStyles() Styles {
	p := DefaultPalette()
	return Styles{
		Title:  lipgloss.NewStyle().Bold(true).Foreground(p.Primary),
		Header: lipgloss.NewStyle().Bold(true).Foreground(p.Secondary),
		Label:  lipgloss.NewStyle().Foreground(p.TextMuted),
		Value:  lipgloss.NewStyle().Foreground(p.Text),
		Muted:  lipgloss.NewStyle().Foreground(p.TextMuted).Italic(true),
		Good:   lipgloss.NewStyle().Foreground(p.Hype),
		Bad:    lipgloss.NewStyle().Foreground(p.Unhype),
		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(p.Primary).
			Padding(0, 1),
	}
}
