package model

// TaskColor is one of the fixed palette entries used to tag tasks.
// Colors are cosmetic only and carry no semantic effect.
type TaskColor struct {
	Value string `json:"value"` // Hex value stored on the task
	Name  string `json:"name"`
}

// Palette is the fixed set of task tag colors.
var Palette = []TaskColor{
	{Value: "#EEF2FF", Name: "Lavender"},
	{Value: "#ECFDF5", Name: "Mint"},
	{Value: "#FFF7ED", Name: "Peach"},
	{Value: "#FDF2F8", Name: "Rose"},
	{Value: "#E0F2FE", Name: "Sky"},
}

// DefaultColor returns the palette entry applied when no color is chosen.
func DefaultColor() string {
	return Palette[0].Value
}

// NormalizeColor maps an unknown or empty color value to the default.
func NormalizeColor(value string) string {
	for _, c := range Palette {
		if c.Value == value {
			return value
		}
	}
	return DefaultColor()
}

// ColorName returns the display name for a palette value, or the raw
// value if it is not in the palette.
func ColorName(value string) string {
	for _, c := range Palette {
		if c.Value == value {
			return c.Name
		}
	}
	return value
}
