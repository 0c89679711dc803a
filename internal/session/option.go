package session

// DefaultOptionColor is used for options created without a color.
const DefaultOptionColor = "aqua"

// Option is one choice of a vote. Options are equal when their names are.
type Option struct {
	// Name is what voters type.
	Name string `json:"name"`
	// Label is the display text.
	Label string `json:"label"`
	// Color is a display hint.
	Color string `json:"color"`
}

// NewOption builds an option; an empty label defaults to the name and an
// empty color to DefaultOptionColor.
func NewOption(name, label, color string) Option {
	if label == "" {
		label = name
	}
	if color == "" {
		color = DefaultOptionColor
	}
	return Option{Name: name, Label: label, Color: color}
}

// Equal compares options by name.
func (o Option) Equal(other Option) bool {
	return o.Name == other.Name
}

func indexOption(options []Option, name string) int {
	for i, o := range options {
		if o.Name == name {
			return i
		}
	}
	return -1
}

func optionNames(options []Option) []string {
	names := make([]string, len(options))
	for i, o := range options {
		names[i] = o.Name
	}
	return names
}
