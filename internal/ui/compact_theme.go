package ui

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/theme"
)

// Brand palette
var (
	colorPink    = color.RGBA{R: 251, G: 114, B: 153, A: 255}
	colorBlue    = color.RGBA{R: 0, G: 161, B: 214, A: 255}
	colorSuccess = color.RGBA{R: 46, G: 160, B: 67, A: 255}
	colorError   = color.RGBA{R: 198, G: 40, B: 40, A: 255}
	colorWarning = color.RGBA{R: 255, G: 179, B: 0, A: 255}
)

// CompactTheme trims paddings and text sizes of the default theme and uses
// the brand colors for accents.
type CompactTheme struct{}

// NewCompactTheme creates the application theme
func NewCompactTheme() fyne.Theme {
	return &CompactTheme{}
}

// Color returns theme colors
func (t *CompactTheme) Color(name fyne.ThemeColorName, variant fyne.ThemeVariant) color.Color {
	switch name {
	case theme.ColorNamePrimary, theme.ColorNameFocus:
		return colorPink
	case theme.ColorNameHyperlink:
		return colorBlue
	case theme.ColorNameSuccess:
		return colorSuccess
	case theme.ColorNameError:
		return colorError
	case theme.ColorNameWarning:
		return colorWarning
	}
	return theme.DefaultTheme().Color(name, variant)
}

// Font returns theme fonts
func (t *CompactTheme) Font(style fyne.TextStyle) fyne.Resource {
	return theme.DefaultTheme().Font(style)
}

// Icon returns theme icons
func (t *CompactTheme) Icon(name fyne.ThemeIconName) fyne.Resource {
	return theme.DefaultTheme().Icon(name)
}

// compactSizes overrides the default sizes
var compactSizes = map[fyne.ThemeSizeName]float32{
	theme.SizeNamePadding:         3,
	theme.SizeNameInnerPadding:    6,
	theme.SizeNameLineSpacing:     2,
	theme.SizeNameScrollBar:       12,
	theme.SizeNameText:            13,
	theme.SizeNameHeadingText:     16,
	theme.SizeNameSubHeadingText:  13,
	theme.SizeNameCaptionText:     10,
	theme.SizeNameInputRadius:     3,
	theme.SizeNameSelectionRadius: 2,
}

// Size returns theme sizes
func (t *CompactTheme) Size(name fyne.ThemeSizeName) float32 {
	if v, ok := compactSizes[name]; ok {
		return v
	}
	return theme.DefaultTheme().Size(name)
}
