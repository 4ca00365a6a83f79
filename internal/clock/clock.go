// Package clock derives local display time from UTC using the configured
// US timezone and DST rules. The device has no system timezone database;
// offsets are applied directly the way the settings describe them.
package clock

import (
	"context"
	"fmt"
	"time"

	"github.com/sagecircuit/forecaster/pkg/config"
)

// Standard US timezone offsets from UTC, without DST applied.
var timezoneOffsets = map[string]float64{
	"Eastern":  -5,
	"Central":  -6,
	"Mountain": -7,
	"Pacific":  -8,
	"Alaska":   -9,
	"Hawaii":   -10,
}

// SyncFunc confirms the wall clock against an external reference. It is
// used as the auxiliary check gating the transition to operational mode.
type SyncFunc func(ctx context.Context) error

// Clock computes local time for the configured timezone.
type Clock struct {
	timezoneID   string
	useDST       bool
	manualOffset float64
	now          func() time.Time
}

// New creates a Clock from the device configuration.
func New(cfg *config.DeviceConfig) *Clock {
	return &Clock{
		timezoneID:   cfg.TimezoneID,
		useDST:       cfg.UseDST,
		manualOffset: cfg.ManualOffset,
		now:          time.Now,
	}
}

// OffsetHours returns the UTC offset currently in effect, including DST.
func (c *Clock) OffsetHours() float64 {
	return c.offsetAt(c.now().UTC())
}

func (c *Clock) offsetAt(utc time.Time) float64 {
	if c.timezoneID == "Manual" {
		return c.manualOffset
	}
	offset, ok := timezoneOffsets[c.timezoneID]
	if !ok {
		return 0
	}
	if c.useDST && isUSDST(utc) {
		offset++
	}
	return offset
}

// At converts a UTC instant to local display time.
func (c *Clock) At(utc time.Time) time.Time {
	return utc.Add(time.Duration(c.offsetAt(utc) * float64(time.Hour)))
}

// Now returns the current local time for the configured zone.
func (c *Clock) Now() time.Time {
	return c.At(c.now().UTC())
}

// FormatTime renders t as a 12-hour clock string, e.g. " 3:07 PM".
func FormatTime(t time.Time) string {
	hour := t.Hour()
	amPM := "AM"
	switch {
	case hour == 0:
		hour = 12
	case hour == 12:
		amPM = "PM"
	case hour > 12:
		hour -= 12
		amPM = "PM"
	}
	return fmt.Sprintf("%2d:%02d %s", hour, t.Minute(), amPM)
}

// FormatDate renders t as "Jan 2".
func FormatDate(t time.Time) string {
	return t.Format("Jan 2")
}

// isUSDST reports whether t falls inside the US DST period: 2 AM on the
// second Sunday of March through 2 AM on the first Sunday of November.
func isUSDST(t time.Time) bool {
	year := t.Year()
	start := nthSunday(year, time.March, 2).Add(2 * time.Hour)
	end := nthSunday(year, time.November, 1).Add(2 * time.Hour)
	return !t.Before(start) && t.Before(end)
}

func nthSunday(year int, month time.Month, n int) time.Time {
	d := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	count := 0
	for {
		if d.Weekday() == time.Sunday {
			count++
			if count == n {
				return d
			}
		}
		d = d.AddDate(0, 0, 1)
	}
}
