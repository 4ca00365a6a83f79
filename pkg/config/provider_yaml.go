package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// YAMLProvider implements Provider for YAML configuration files
type YAMLProvider struct {
	filename string
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// LoadDeviceConfig reads and validates the YAML configuration file
func (y *YAMLProvider) LoadDeviceConfig() (*DeviceConfig, error) {
	data, err := os.ReadFile(y.filename)
	if os.IsNotExist(err) {
		return nil, ErrConfigMissing
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigCorrupt, err)
	}

	var cfg DeviceConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigCorrupt, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigCorrupt, err)
	}

	return &cfg, nil
}

// SaveDeviceConfig validates the config and writes it to a temporary file
// before renaming it into place, so a power loss mid-write never leaves a
// partially written config visible
func (y *YAMLProvider) SaveDeviceConfig(cfg *DeviceConfig) error {
	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal device config: %w", err)
	}

	tmp := y.filename + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write device config: %w", err)
	}
	if err := os.Rename(tmp, y.filename); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace device config: %w", err)
	}
	return nil
}

// ClearDeviceConfig removes the configuration file
func (y *YAMLProvider) ClearDeviceConfig() error {
	err := os.Remove(y.filename)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove device config: %w", err)
	}
	return nil
}

// IsReadOnly returns false; the YAML file is rewritten on save
func (y *YAMLProvider) IsReadOnly() bool {
	return false
}

// Close is a no-op for YAML providers
func (y *YAMLProvider) Close() error {
	return nil
}

// DefaultConfigPath returns the conventional on-device config location
// rooted at dir.
func DefaultConfigPath(dir string) string {
	return filepath.Join(dir, "settings.yaml")
}
