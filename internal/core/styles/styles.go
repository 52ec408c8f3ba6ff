// Package styles provides shared lipgloss styles for CLI output.
package styles

import (
	"sort"

	"github.com/charmbracelet/lipgloss"
)

// Palette defines a minimal semantic theme palette.
type Palette struct {
	Primary    lipgloss.Color
	Foreground lipgloss.Color
	Muted      lipgloss.Color
	Highlight  lipgloss.Color
	Success    lipgloss.Color
	Warning    lipgloss.Color
	Error      lipgloss.Color
}

// DefaultTheme is the name of the default theme.
const DefaultTheme = "tokyo-night"

var themes = map[string]Palette{
	"tokyo-night": {
		Primary:    lipgloss.Color("#7aa2f7"),
		Foreground: lipgloss.Color("#c0caf5"),
		Muted:      lipgloss.Color("#565f89"),
		Highlight:  lipgloss.Color("#3b4261"),
		Success:    lipgloss.Color("#9ece6a"),
		Warning:    lipgloss.Color("#e0af68"),
		Error:      lipgloss.Color("#f7768e"),
	},
	"gruvbox": {
		Primary:    lipgloss.Color("#83a598"),
		Foreground: lipgloss.Color("#ebdbb2"),
		Muted:      lipgloss.Color("#665c54"),
		Highlight:  lipgloss.Color("#504945"),
		Success:    lipgloss.Color("#b8bb26"),
		Warning:    lipgloss.Color("#fabd2f"),
		Error:      lipgloss.Color("#fb4934"),
	},
	"plain": {},
}

// ThemeNames returns sorted names of all built-in themes.
func ThemeNames() []string {
	names := make([]string, 0, len(themes))
	for name := range themes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPalette returns the palette for the given theme name.
func GetPalette(name string) (Palette, bool) {
	p, ok := themes[name]
	return p, ok
}

// CurrentPalette holds the active theme palette.
var CurrentPalette Palette

var (
	HeaderStyle  lipgloss.Style
	TextStyle    lipgloss.Style
	MutedStyle   lipgloss.Style
	DividerStyle lipgloss.Style

	// ChangedStyle marks todo items whose status changed since the previous
	// list.
	ChangedStyle lipgloss.Style

	SuccessStyle lipgloss.Style
	WarningStyle lipgloss.Style
	ErrorStyle   lipgloss.Style
)

// SetTheme sets the active palette and rebuilds all global styles.
func SetTheme(p Palette) {
	CurrentPalette = p

	HeaderStyle = lipgloss.NewStyle().Foreground(p.Primary).Bold(true)
	TextStyle = lipgloss.NewStyle().Foreground(p.Foreground)
	MutedStyle = lipgloss.NewStyle().Foreground(p.Muted)
	DividerStyle = lipgloss.NewStyle().Foreground(p.Muted)
	ChangedStyle = lipgloss.NewStyle().Background(p.Highlight).Bold(true)
	SuccessStyle = lipgloss.NewStyle().Foreground(p.Success)
	WarningStyle = lipgloss.NewStyle().Foreground(p.Warning)
	ErrorStyle = lipgloss.NewStyle().Foreground(p.Error)
}

// UseTheme activates a built-in theme by name and reports whether it exists.
// Unknown names leave the current theme in place.
func UseTheme(name string) bool {
	p, ok := GetPalette(name)
	if ok {
		SetTheme(p)
	}
	return ok
}

func init() {
	SetTheme(themes[DefaultTheme])
}
