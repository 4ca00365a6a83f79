package config

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

var zipPattern = regexp.MustCompile(`^[0-9]{5}$`)

// coverageBox is an inclusive lat/lon bounding box of NWS coverage.
type coverageBox struct {
	name                   string
	latMin, latMax         float64
	lonMin, lonMax         float64
}

// NWS serves the continental US, Alaska, Hawaii, and Puerto Rico / USVI.
var coverageBoxes = []coverageBox{
	{"continental US", 24.5, 49.5, -125.0, -66.9},
	{"Alaska", 51.0, 72.0, -170.0, -129.0},
	{"Hawaii", 18.5, 22.5, -161.0, -154.0},
	{"Puerto Rico", 17.5, 18.6, -68.0, -64.5},
}

// WithinCoverage reports whether a lat/lon pair falls inside NWS coverage.
func WithinCoverage(lat, lon float64) bool {
	for _, box := range coverageBoxes {
		if lat >= box.latMin && lat <= box.latMax && lon >= box.lonMin && lon <= box.lonMax {
			return true
		}
	}
	return false
}

// Validate checks a DeviceConfig for completeness and coverage. It returns
// ErrConfigInvalid or ErrLocationOutOfCoverage wrapped with a specific,
// user-presentable reason.
func Validate(cfg *DeviceConfig) error {
	if err := validate.Struct(cfg); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			return fmt.Errorf("%w: field %s failed %s check", ErrConfigInvalid, errs[0].Field(), errs[0].Tag())
		}
		return fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}

	switch cfg.LocationSource {
	case LocationSourceZip:
		if !zipPattern.MatchString(cfg.ZipCode) {
			return fmt.Errorf("%w: ZIP code must be five digits", ErrConfigInvalid)
		}
	case LocationSourceLatLon:
		if !cfg.HasLatLon() {
			return fmt.Errorf("%w: latitude and longitude required", ErrConfigInvalid)
		}
	}

	// Coordinates may also be present alongside a ZIP source once the
	// ZIP has been resolved; check coverage whenever they are set.
	if cfg.HasLatLon() && !WithinCoverage(cfg.Latitude, cfg.Longitude) {
		return fmt.Errorf("%w: %.4f,%.4f", ErrLocationOutOfCoverage, cfg.Latitude, cfg.Longitude)
	}

	if !knownTimezone(cfg.TimezoneID) {
		return fmt.Errorf("%w: unknown timezone %q", ErrConfigInvalid, cfg.TimezoneID)
	}
	if cfg.TimezoneID == "Manual" && (cfg.ManualOffset < -12 || cfg.ManualOffset > 14) {
		return fmt.Errorf("%w: manual UTC offset out of range", ErrConfigInvalid)
	}

	return nil
}

func knownTimezone(id string) bool {
	for _, tz := range TimezoneIDs {
		if tz == id {
			return true
		}
	}
	return false
}
