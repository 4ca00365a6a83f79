package display

import (
	"fmt"

	"github.com/sagecircuit/forecaster/internal/clock"
	"github.com/sagecircuit/forecaster/internal/weather"
)

// Page layout rows. The header (time and date) owns rows 0-59; weather
// pages own the rest and must never repaint the header.
const (
	headerHeight = 60
	labelY       = 125
	iconY        = 60
	conditionY   = 140
	tempY        = 175
)

// Palette.
var (
	colorBlack     = Color565(0, 0, 0)
	colorLabel     = Color565(220, 170, 240)
	colorCondition = Color565(255, 255, 0)
	colorHigh      = Color565(255, 100, 100)
	colorLow       = Color565(144, 213, 255)
	colorHumidity  = Color565(100, 255, 100)
	colorThen      = Color565(150, 200, 255)
	colorSunrise   = Color565(255, 255, 0)
	colorSunset    = Color565(255, 160, 0)
	colorTime      = Color565(255, 255, 255)
	colorStatus    = Color565(0, 255, 0)
)

const iconSize = 64

// Renderer paints pages. It owns no state beyond the driver; the
// scheduler decides what to show and when.
type Renderer struct {
	drv Driver
}

func NewRenderer(drv Driver) *Renderer {
	return &Renderer{drv: drv}
}

func (r *Renderer) centerText(f Font, s string, y int, fg Color) {
	r.drv.Text(f, s, CenterX(f, s), y, fg)
}

func (r *Renderer) clearBody() {
	r.drv.FillRect(0, headerHeight, Width, Height-headerHeight, colorBlack)
}

// RenderForecast paints a period's first condition: label, icon,
// condition text, and the high or low temperature.
func (r *Renderer) RenderForecast(p weather.Period) {
	r.clearBody()
	r.centerText(FontLarge, p.Label, labelY, colorLabel)
	r.drv.DrawIcon(p.Icon, (Width-iconSize)/2, iconY, iconSize, iconSize)
	r.centerText(FontHuge, p.ShortText, conditionY, colorCondition)

	if p.HumidityPct > 0 {
		r.drv.Text(FontHuge, fmt.Sprintf("%dF", p.TempF), 50, tempY, colorHigh)
		r.drv.Text(FontHuge, fmt.Sprintf("%d%%", p.HumidityPct), 130, tempY, colorHumidity)
		return
	}

	if p.IsDaytime {
		r.centerText(FontHuge, fmt.Sprintf("High: %dF", p.TempF), tempY, colorHigh)
	} else {
		r.centerText(FontHuge, fmt.Sprintf("Low: %dF", p.TempF), tempY, colorLow)
	}
}

// RenderThen paints the transition cue between a period's two
// conditions. Only the condition row is cleared.
func (r *Renderer) RenderThen() {
	r.drv.FillRect(0, conditionY, Width, 32, colorBlack)
	r.centerText(FontLarge, "Then", conditionY+8, colorThen)
}

// RenderFollowup paints the period's second condition in place of the
// first, keeping label and temperature.
func (r *Renderer) RenderFollowup(p weather.Period) {
	r.drv.FillRect(0, iconY, Width, iconSize, colorBlack)
	r.drv.FillRect(0, conditionY, Width, 32, colorBlack)
	r.drv.DrawIcon(weather.IconFor(p.ThenText, p.IsDaytime), (Width-iconSize)/2, iconY, iconSize, iconSize)
	r.centerText(FontHuge, p.ThenText, conditionY, colorCondition)
}

// RenderSun paints the sunrise/sunset page. Callers pass display-local
// times; this renderer does no timezone math.
func (r *Renderer) RenderSun(sun *weather.SunTimes) {
	r.clearBody()
	if sun == nil {
		r.centerText(FontHuge, "N/A", conditionY, colorCondition)
		return
	}
	r.drv.DrawIcon("icons/sunrise_rgb565.raw", 20, 70, 48, 48)
	r.drv.Text(FontLarge, "Sunrise:", 80, 70, colorSunrise)
	r.drv.Text(FontHuge, clock.FormatTime(sun.Sunrise), 80, 90, colorSunrise)

	r.drv.DrawIcon("icons/sunset_rgb565.raw", 20, 140, 48, 48)
	r.drv.Text(FontLarge, "Sunset:", 80, 140, colorSunset)
	r.drv.Text(FontHuge, clock.FormatTime(sun.Sunset), 80, 160, colorSunset)
}

// RenderUnavailable paints the no-data page shown before any fetch has
// ever succeeded.
func (r *Renderer) RenderUnavailable() {
	r.clearBody()
	r.centerText(FontLarge, "N/A", labelY, colorLabel)
	r.centerText(FontHuge, "N/A", conditionY, colorCondition)
}

// RenderTime repaints only the clock row.
func (r *Renderer) RenderTime(timeStr string) {
	r.drv.FillRect(0, 10, Width, 24, colorBlack)
	r.centerText(FontHuge, timeStr, 12, colorTime)
}

// RenderDate repaints only the date row.
func (r *Renderer) RenderDate(dateStr string) {
	r.drv.FillRect(0, 36, Width, 20, colorBlack)
	r.centerText(FontLarge, dateStr, 38, colorTime)
}

// RenderStatus clears the panel and shows centered status lines, used
// during setup and updates.
func (r *Renderer) RenderStatus(lines ...string) {
	r.drv.Fill(colorBlack)
	y := 60
	for _, line := range lines {
		r.centerText(FontLarge, line, y, colorStatus)
		y += 20
	}
}
