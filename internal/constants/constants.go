// Package constants holds shared constants used across the application.
package constants

import "time"

const (
	// Version is the firmware version reported by /version and compared
	// against manifest target versions during update checks.
	Version = "1.0.0"

	// APName is the SSID advertised while the device runs as a setup
	// access point.
	APName = "S&C Forecaster"

	// APDomain is the hostname the captive portal redirects clients to.
	APDomain = "scforecaster.net"

	// WiFiMaxAttempts bounds connection retries before falling back to
	// setup mode.
	WiFiMaxAttempts = 3

	// ClockSyncInterval is how often the clock is re-synced while
	// operational.
	ClockSyncInterval = time.Hour

	// WeatherRefreshInterval is how often forecasts are refreshed.
	WeatherRefreshInterval = 30 * time.Minute

	// NWSUserAgent identifies the device to the National Weather Service
	// API, which requires a contact User-Agent.
	NWSUserAgent = "SCForecastDisplay (support@scforecaster.net)"
)
