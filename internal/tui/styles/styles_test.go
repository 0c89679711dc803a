package styles

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func TestOptionColor(t *testing.T) {
	tests := []struct {
		name string
		want lipgloss.TerminalColor
	}{
		{"gold", lipgloss.Color("#FFAA00")},
		{"aqua", lipgloss.Color("#55FFFF")},
		{"", PrimaryColor},
		{"mauve", PrimaryColor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OptionColor(tt.name).GetForeground(); got != tt.want {
				t.Errorf("OptionColor(%q) foreground = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"castle", 10, "castle"},
		{"castle", 6, "castle"},
		{"castle keep", 6, "castl…"},
		{"anything", 0, "anything"},
		{Primary.Render("castle"), 10, Primary.Render("castle")},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.width); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}
