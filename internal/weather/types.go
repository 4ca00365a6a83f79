// Package weather retrieves forecast data from the National Weather
// Service with tiered fallback and publishes immutable snapshots for the
// display to read.
package weather

import (
	"errors"
	"time"
)

// SourceTier identifies which data source produced a snapshot, in
// decreasing order of detail.
type SourceTier string

const (
	TierForecast    SourceTier = "forecast"
	TierHourly      SourceTier = "hourly"
	TierObservation SourceTier = "observation"
)

// ErrAllSourcesUnavailable indicates every tier failed. The previously
// cached snapshot remains the value presented to the display.
var ErrAllSourcesUnavailable = errors.New("all weather sources unavailable")

// ErrNetworkUnavailable wraps transport-level failures so callers can
// schedule a retry rather than surface a hard error.
var ErrNetworkUnavailable = errors.New("network unavailable")

// Period is a single forecast interval ready for display: the label and
// text have already been shortened to the display's 14-character budget.
type Period struct {
	Label       string `json:"label" msgpack:"label"`
	TempF       int    `json:"temp_f" msgpack:"temp_f"`
	Icon        string `json:"icon" msgpack:"icon"`
	ShortText   string `json:"short_text" msgpack:"short_text"`
	ThenText    string `json:"then_text,omitempty" msgpack:"then_text"`
	IsDaytime   bool   `json:"is_daytime" msgpack:"is_daytime"`
	HumidityPct int    `json:"humidity_pct,omitempty" msgpack:"humidity_pct"`
}

// Snapshot is an immutable, wholesale-replaced view of the latest
// successful fetch.
type Snapshot struct {
	Tier      SourceTier `json:"source_tier" msgpack:"source_tier"`
	Periods   []Period   `json:"periods" msgpack:"periods"`
	FetchedAt time.Time  `json:"fetched_at" msgpack:"fetched_at"`
}

// SunTimes carries the day's sunrise and sunset in local time.
type SunTimes struct {
	Sunrise time.Time `msgpack:"sunrise"`
	Sunset  time.Time `msgpack:"sunset"`
}
