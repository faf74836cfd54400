// Package ui's CustomTheme gives Witra's desktop window a slightly calmer
// palette than Fyne's default, grounded verbatim on the teacher's
// internal/ui/theme.go.
package ui

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/theme"
)

// CustomTheme overrides a handful of colors and sizes on top of Fyne's
// default theme.
type CustomTheme struct {
	fyne.Theme
}

// NewCustomTheme wraps the default theme.
func NewCustomTheme() *CustomTheme {
	return &CustomTheme{
		Theme: theme.DefaultTheme(),
	}
}

// Color returns Witra's palette for the names it overrides, falling
// through to the wrapped theme for everything else.
func (t *CustomTheme) Color(name fyne.ThemeColorName, variant fyne.ThemeVariant) color.Color {
	switch name {
	case theme.ColorNamePrimary:
		return color.RGBA{R: 0, G: 102, B: 204, A: 255}
	case theme.ColorNameSuccess:
		return color.RGBA{R: 0, G: 153, B: 0, A: 255}
	case theme.ColorNameWarning:
		return color.RGBA{R: 255, G: 153, B: 0, A: 255}
	case theme.ColorNameError:
		return color.RGBA{R: 204, G: 0, B: 0, A: 255}
	case theme.ColorNameBackground:
		return color.RGBA{R: 248, G: 249, B: 250, A: 255}
	case theme.ColorNameForeground:
		return color.RGBA{R: 33, G: 37, B: 41, A: 255}
	default:
		return t.Theme.Color(name, variant)
	}
}

// Font defers to the wrapped theme; Witra does not ship custom fonts.
func (t *CustomTheme) Font(style fyne.TextStyle) fyne.Resource {
	return t.Theme.Font(style)
}

// Icon defers to the wrapped theme; Witra does not ship custom icons.
func (t *CustomTheme) Icon(name fyne.ThemeIconName) fyne.Resource {
	return t.Theme.Icon(name)
}

// Size overrides a handful of spacing/border sizes.
func (t *CustomTheme) Size(name fyne.ThemeSizeName) float32 {
	switch name {
	case theme.SizeNamePadding:
		return 8
	case theme.SizeNameScrollBar:
		return 12
	case theme.SizeNameScrollBarSmall:
		return 8
	case theme.SizeNameSeparatorThickness:
		return 1
	case theme.SizeNameInputBorder:
		return 1
	case theme.SizeNameInputRadius:
		return 4
	default:
		return t.Theme.Size(name)
	}
}
