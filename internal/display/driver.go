// Package display renders weather pages to a 240x240 round panel and
// schedules the rotation between them. The panel is write-only; nothing
// is ever read back, so every page paints the full region it owns.
package display

import "math"

// Panel geometry.
const (
	Width  = 240
	Height = 240
)

// Color is a packed RGB565 pixel value, the panel's native format.
type Color uint16

// Color565 packs 8-bit channels into RGB565.
func Color565(r, g, b uint8) Color {
	return Color((uint16(r)&0xF8)<<8 | (uint16(g)&0xFC)<<3 | uint16(b)>>3)
}

// Font selects one of the panel's baked-in font sizes.
type Font int

const (
	FontSmall Font = iota
	FontLarge
	FontHuge
)

// fontWidths holds the fixed glyph advance per font, used for centering.
var fontWidths = map[Font]int{
	FontSmall: 8,
	FontLarge: 14,
	FontHuge:  16,
}

// GlyphWidth returns the pixel advance of one glyph in the font.
func GlyphWidth(f Font) int {
	return fontWidths[f]
}

// Driver is the write-only surface the renderer draws on. Implementations
// are the serial panel adapter and an in-memory fake for tests.
type Driver interface {
	Fill(c Color) error
	FillRect(x, y, w, h int, c Color) error
	Text(f Font, s string, x, y int, fg Color) error
	// DrawIcon blits a raw RGB565 asset by name at the given position.
	DrawIcon(name string, x, y, w, h int) error
}

// CenterX returns the x position that centers s horizontally in the font.
func CenterX(f Font, s string) int {
	w := len(s) * GlyphWidth(f)
	if w >= Width {
		return 0
	}
	return (Width - w) / 2
}

// VisibleWidth returns the chord width of the round panel at row y. Text
// placed wider than this is clipped by the bezel even though the
// framebuffer is square.
func VisibleWidth(y int) int {
	r := float64(Height) / 2
	d := float64(y) - r
	if d < -r || d > r {
		return 0
	}
	return int(2 * math.Sqrt(r*r-d*d))
}
