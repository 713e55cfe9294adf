package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/freewebtopdf/logfilters/internal/domain"
	"github.com/freewebtopdf/logfilters/internal/registry"
	"github.com/freewebtopdf/logfilters/internal/workingset"
)

// paletteHex maps palette names to terminal colors
var paletteHex = map[string]string{
	"black":         "#000000",
	"white":         "#ffffff",
	"maroon":        "#800000",
	"red":           "#ff0000",
	"purple":        "#800080",
	"fuchsia":       "#ff00ff",
	"green":         "#008000",
	"lime":          "#00ff00",
	"olive":         "#808000",
	"yellow":        "#ffff00",
	"navy":          "#000080",
	"blue":          "#0000ff",
	"teal":          "#008080",
	"aqua":          "#00ffff",
	"gainsboro":     "#dcdcdc",
	"lightgrey":     "#d3d3d3",
	"silver":        "#c0c0c0",
	"darkgrey":      "#a9a9a9",
	"grey":          "#808080",
	"dimgrey":       "#696969",
	"tomato":        "#ff6347",
	"orangered":     "#ff4500",
	"orange":        "#ffa500",
	"crimson":       "#dc143c",
	"darkred":       "#8b0000",
	"greenyellow":   "#adff2f",
	"lightgreen":    "#90ee90",
	"darkgreen":     "#006400",
	"lightseagreen": "#20b2aa",
	"lightcyan":     "#e0ffff",
	"darkturquoise": "#00ced1",
	"steelblue":     "#4682b4",
	"lightblue":     "#add8e6",
	"royalblue":     "#4169e1",
	"darkblue":      "#00008b",
	"midnightblue":  "#191970",
	"bisque":        "#ffe4c4",
	"tan":           "#d2b48c",
	"sandybrown":    "#f4a460",
	"chocolate":     "#d2691e",
}

var (
	mutedStyle   = lipgloss.NewStyle().Faint(true)
	warningStyle = lipgloss.NewStyle().Bold(true)
)

// color resolves a palette name; anything else is handed to lipgloss as is
func color(name string) lipgloss.Color {
	if hex, ok := paletteHex[strings.ToLower(name)]; ok {
		return lipgloss.Color(hex)
	}
	return lipgloss.Color(name)
}

func newRenderer(out io.Writer) *lipgloss.Renderer {
	return lipgloss.NewRenderer(out)
}

func styleFor(r *lipgloss.Renderer, style domain.Style) lipgloss.Style {
	return r.NewStyle().
		Foreground(color(style.Foreground)).
		Background(color(style.Background))
}

func entryLine(r *lipgloss.Renderer, reg *registry.Registry, e workingset.Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%3d  %s", e.Index, styleFor(r, e.Rule.Style()).Render(e.Rule.Pattern))

	details := []string{e.Rule.Foreground + " on " + e.Rule.Background}
	if e.Rule.IgnoreCase {
		details = append(details, "ignore case")
	}
	if !e.Rule.Enabled {
		details = append(details, "disabled")
	}
	if e.Rule.Origin != nil {
		name := fmt.Sprintf("source %d", e.Rule.Origin.Source)
		if src := reg.Source(e.Rule.Origin.Source); src != nil {
			name = src.Name
		}
		details = append(details, fmt.Sprintf("from %s#%d", name, e.Rule.Origin.Offset))
	}
	fmt.Fprintf(&b, "  %s", r.NewStyle().Inherit(mutedStyle).Render("("+strings.Join(details, ", ")+")"))

	if e.Modified {
		fmt.Fprintf(&b, "  %s", r.NewStyle().Inherit(warningStyle).Render("modified"))
	}
	return b.String()
}

func sourceLine(r *lipgloss.Renderer, s registry.Summary, modified bool) string {
	flags := []string{}
	if s.Auto {
		flags = append(flags, "auto")
	}
	if s.Missing {
		flags = append(flags, "missing")
	}
	if s.Dirty {
		flags = append(flags, "unsaved")
	}
	if modified {
		flags = append(flags, "modified")
	}

	line := fmt.Sprintf("%3d  %s  %d rules", s.ID, s.Name, s.RuleCount)
	if len(flags) > 0 {
		line += "  " + r.NewStyle().Inherit(warningStyle).Render("["+strings.Join(flags, ", ")+"]")
	}
	return line
}

// swatch renders a palette color name on its own background
func swatch(r *lipgloss.Renderer, name string) string {
	fg := "black"
	switch name {
	case "black", "maroon", "purple", "green", "olive", "navy", "teal", "grey", "dimgrey",
		"crimson", "darkred", "darkgreen", "steelblue", "royalblue", "darkblue", "midnightblue", "chocolate":
		fg = "white"
	}
	return styleFor(r, domain.Style{Foreground: fg, Background: name}).Render(fmt.Sprintf(" %-14s", name))
}

// errorLine formats err for the terminal
func errorLine(err error) string {
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return fmt.Sprintf("Error: %s (%s)", appErr.Message, appErr.Code)
	}
	return "Error: " + err.Error()
}
