package domain

import "slices"

// Defaults for a newly added rule
const (
	DefaultPattern    = "New Filter"
	DefaultForeground = "black"
	DefaultBackground = "white"
)

// Palette is the list of named colors offered for rule styles
var Palette = []string{
	"black", "white", "maroon", "red", "purple", "fuchsia", "green", "lime",
	"olive", "yellow", "navy", "blue", "teal", "aqua", "gainsboro", "lightgrey",
	"silver", "darkgrey", "grey", "dimgrey", "tomato", "orangered", "orange",
	"crimson", "darkred", "greenyellow", "lightgreen", "darkgreen",
	"lightseagreen", "lightcyan", "darkturquoise", "steelblue", "lightblue",
	"royalblue", "darkblue", "midnightblue", "bisque", "tan", "sandybrown",
	"chocolate",
}

// InPalette reports whether name is one of the palette colors
func InPalette(name string) bool {
	return slices.Contains(Palette, name)
}
