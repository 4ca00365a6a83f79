package config

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() *DeviceConfig {
	return &DeviceConfig{
		WiFiSSID:       "homenet",
		WiFiPSK:        "hunter22",
		LocationSource: LocationSourceZip,
		ZipCode:        "80301",
		TimezoneID:     "Mountain",
		UseDST:         true,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*DeviceConfig)
		wantErr error
	}{
		{"valid zip config", func(c *DeviceConfig) {}, nil},
		{"open network allowed", func(c *DeviceConfig) { c.WiFiPSK = "" }, nil},
		{"missing ssid", func(c *DeviceConfig) { c.WiFiSSID = "" }, ErrConfigInvalid},
		{"bad zip", func(c *DeviceConfig) { c.ZipCode = "8030" }, ErrConfigInvalid},
		{"unknown timezone", func(c *DeviceConfig) { c.TimezoneID = "Lunar" }, ErrConfigInvalid},
		{
			"latlon inside coverage",
			func(c *DeviceConfig) {
				c.LocationSource = LocationSourceLatLon
				c.Latitude, c.Longitude = 40.015, -105.27
			},
			nil,
		},
		{
			"latlon outside coverage",
			func(c *DeviceConfig) {
				c.LocationSource = LocationSourceLatLon
				c.Latitude, c.Longitude = 51.5, -0.12 // London
			},
			ErrLocationOutOfCoverage,
		},
		{
			"latlon missing coordinates",
			func(c *DeviceConfig) { c.LocationSource = LocationSourceLatLon },
			ErrConfigInvalid,
		},
		{
			"manual timezone offset out of range",
			func(c *DeviceConfig) {
				c.TimezoneID = "Manual"
				c.ManualOffset = 30
			},
			ErrConfigInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == nil {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestWithinCoverage(t *testing.T) {
	if !WithinCoverage(64.8, -147.7) {
		t.Error("Fairbanks should be inside Alaska coverage")
	}
	if !WithinCoverage(21.3, -157.8) {
		t.Error("Honolulu should be inside Hawaii coverage")
	}
	if WithinCoverage(48.85, 2.35) {
		t.Error("Paris should be outside coverage")
	}
}

func TestYAMLProviderRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	p := NewYAMLProvider(path)

	_, err := p.LoadDeviceConfig()
	require.ErrorIs(t, err, ErrConfigMissing)

	cfg := validConfig()
	require.NoError(t, p.SaveDeviceConfig(cfg))

	loaded, err := p.LoadDeviceConfig()
	require.NoError(t, err)
	require.Equal(t, cfg.WiFiSSID, loaded.WiFiSSID)
	require.Equal(t, cfg.ZipCode, loaded.ZipCode)
	require.Equal(t, cfg.TimezoneID, loaded.TimezoneID)

	require.NoError(t, p.ClearDeviceConfig())
	_, err = p.LoadDeviceConfig()
	require.ErrorIs(t, err, ErrConfigMissing)
}

func TestYAMLProviderInvalidSaveLeavesConfigUnchanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	p := NewYAMLProvider(path)

	require.NoError(t, p.SaveDeviceConfig(validConfig()))

	bad := validConfig()
	bad.LocationSource = LocationSourceLatLon
	bad.Latitude, bad.Longitude = -33.87, 151.21 // Sydney
	err := p.SaveDeviceConfig(bad)
	require.ErrorIs(t, err, ErrLocationOutOfCoverage)

	loaded, err := p.LoadDeviceConfig()
	require.NoError(t, err)
	require.Equal(t, "80301", loaded.ZipCode)
}

func TestSQLiteProviderRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.db")
	p, err := NewSQLiteProvider(path)
	require.NoError(t, err)
	defer p.Close()

	_, err = p.LoadDeviceConfig()
	require.ErrorIs(t, err, ErrConfigMissing)

	cfg := validConfig()
	require.NoError(t, p.SaveDeviceConfig(cfg))

	loaded, err := p.LoadDeviceConfig()
	require.NoError(t, err)
	require.Equal(t, cfg.WiFiSSID, loaded.WiFiSSID)
	require.Equal(t, cfg.UseDST, loaded.UseDST)

	// Saving again replaces the single row.
	cfg.ZipCode = "10001"
	require.NoError(t, p.SaveDeviceConfig(cfg))
	loaded, err = p.LoadDeviceConfig()
	require.NoError(t, err)
	require.Equal(t, "10001", loaded.ZipCode)

	require.NoError(t, p.ClearDeviceConfig())
	_, err = p.LoadDeviceConfig()
	require.True(t, errors.Is(err, ErrConfigMissing))
}
