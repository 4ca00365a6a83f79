// Package config provides device configuration storage with pluggable
// backends. The stored DeviceConfig is either fully absent or fully valid;
// saves are atomic save-or-discard so a reader never observes a partial
// write.
package config

import "errors"

// Location source values for DeviceConfig.LocationSource.
const (
	LocationSourceZip    = "zip"
	LocationSourceLatLon = "latlon"
)

// Timezone identifiers accepted in DeviceConfig.TimezoneID. "Manual"
// requires ManualOffset to be set.
var TimezoneIDs = []string{"Eastern", "Central", "Mountain", "Pacific", "Alaska", "Hawaii", "Manual"}

var (
	// ErrConfigMissing indicates no configuration has been saved yet.
	// The device boots into setup mode.
	ErrConfigMissing = errors.New("device configuration missing")

	// ErrConfigCorrupt indicates the persisted configuration exists but
	// cannot be read. Treated as fatal storage corruption: the device
	// falls back to setup mode.
	ErrConfigCorrupt = errors.New("device configuration corrupt")

	// ErrConfigInvalid indicates a submitted configuration failed
	// validation. The previously stored configuration is left unchanged.
	ErrConfigInvalid = errors.New("device configuration invalid")

	// ErrLocationOutOfCoverage indicates the configured location falls
	// outside National Weather Service coverage. Rejected at save time.
	ErrLocationOutOfCoverage = errors.New("location outside US weather coverage")
)

// DeviceConfig holds the complete persisted device configuration.
type DeviceConfig struct {
	WiFiSSID       string  `json:"ssid" yaml:"ssid" validate:"required,max=32"`
	WiFiPSK        string  `json:"psk,omitempty" yaml:"psk,omitempty"` // empty allowed for open networks
	LocationSource string  `json:"location_source" yaml:"location_source" validate:"required,oneof=zip latlon"`
	ZipCode        string  `json:"zip,omitempty" yaml:"zip,omitempty"`
	Latitude       float64 `json:"lat,omitempty" yaml:"lat,omitempty"`
	Longitude      float64 `json:"lon,omitempty" yaml:"lon,omitempty"`
	TimezoneID     string  `json:"timezone" yaml:"timezone" validate:"required"`
	UseDST         bool    `json:"use_dst" yaml:"use_dst"`
	ManualOffset   float64 `json:"manual_offset,omitempty" yaml:"manual_offset,omitempty"`

	// FirmwareVersion mirrors the version marker and is refreshed at
	// boot. It is informational; the marker file owned by the update
	// pipeline is authoritative.
	FirmwareVersion string `json:"firmware_version,omitempty" yaml:"firmware_version,omitempty"`
}

// HasLatLon reports whether the config carries resolved coordinates.
func (c *DeviceConfig) HasLatLon() bool {
	return c.Latitude != 0 || c.Longitude != 0
}

// Provider defines the interface for configuration data sources
type Provider interface {
	// LoadDeviceConfig returns the stored configuration.
	// Returns ErrConfigMissing if nothing has been saved yet and
	// ErrConfigCorrupt if the store exists but cannot be read.
	LoadDeviceConfig() (*DeviceConfig, error)

	// SaveDeviceConfig validates and atomically persists the
	// configuration. On validation failure the stored configuration is
	// left untouched.
	SaveDeviceConfig(*DeviceConfig) error

	// ClearDeviceConfig removes the stored configuration.
	ClearDeviceConfig() error

	IsReadOnly() bool
	Close() error
}
