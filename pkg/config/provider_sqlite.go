package config

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteProvider implements Provider for SQLite-backed configuration
type SQLiteProvider struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteProvider creates a new SQLite configuration provider
func NewSQLiteProvider(dbPath string) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	p := &SQLiteProvider{
		db:     db,
		dbPath: dbPath,
	}
	if err := p.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	return p, nil
}

func (s *SQLiteProvider) createTables() error {
	schema := `
		CREATE TABLE IF NOT EXISTS device_config (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			wifi_ssid TEXT NOT NULL,
			wifi_psk TEXT,
			location_source TEXT NOT NULL,
			zip_code TEXT,
			latitude REAL,
			longitude REAL,
			timezone_id TEXT NOT NULL,
			use_dst INTEGER NOT NULL DEFAULT 0,
			manual_offset REAL,
			firmware_version TEXT
		)
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create device_config table: %w", err)
	}
	return nil
}

// LoadDeviceConfig returns the single stored device configuration row
func (s *SQLiteProvider) LoadDeviceConfig() (*DeviceConfig, error) {
	query := `
		SELECT wifi_ssid, wifi_psk, location_source, zip_code,
		       latitude, longitude, timezone_id, use_dst,
		       manual_offset, firmware_version
		FROM device_config WHERE id = 1
	`

	var cfg DeviceConfig
	var psk, zip, fwVersion sql.NullString
	var lat, lon, manualOffset sql.NullFloat64

	err := s.db.QueryRow(query).Scan(
		&cfg.WiFiSSID, &psk, &cfg.LocationSource, &zip,
		&lat, &lon, &cfg.TimezoneID, &cfg.UseDST,
		&manualOffset, &fwVersion,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConfigMissing
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigCorrupt, err)
	}

	if psk.Valid {
		cfg.WiFiPSK = psk.String
	}
	if zip.Valid {
		cfg.ZipCode = zip.String
	}
	if lat.Valid {
		cfg.Latitude = lat.Float64
	}
	if lon.Valid {
		cfg.Longitude = lon.Float64
	}
	if manualOffset.Valid {
		cfg.ManualOffset = manualOffset.Float64
	}
	if fwVersion.Valid {
		cfg.FirmwareVersion = fwVersion.String
	}

	if err := Validate(&cfg); err != nil {
		// A stored row that no longer validates is storage corruption,
		// not user error.
		return nil, fmt.Errorf("%w: %v", ErrConfigCorrupt, err)
	}

	return &cfg, nil
}

// SaveDeviceConfig validates and persists the configuration in a single
// transaction so the row is replaced whole or not at all
func (s *SQLiteProvider) SaveDeviceConfig(cfg *DeviceConfig) error {
	if err := Validate(cfg); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	upsert := `
		INSERT INTO device_config (
			id, wifi_ssid, wifi_psk, location_source, zip_code,
			latitude, longitude, timezone_id, use_dst,
			manual_offset, firmware_version
		) VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			wifi_ssid = excluded.wifi_ssid,
			wifi_psk = excluded.wifi_psk,
			location_source = excluded.location_source,
			zip_code = excluded.zip_code,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			timezone_id = excluded.timezone_id,
			use_dst = excluded.use_dst,
			manual_offset = excluded.manual_offset,
			firmware_version = excluded.firmware_version
	`
	_, err = tx.Exec(upsert,
		cfg.WiFiSSID, cfg.WiFiPSK, cfg.LocationSource, cfg.ZipCode,
		cfg.Latitude, cfg.Longitude, cfg.TimezoneID, cfg.UseDST,
		cfg.ManualOffset, cfg.FirmwareVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to save device config: %w", err)
	}

	return tx.Commit()
}

// ClearDeviceConfig removes the stored configuration row
func (s *SQLiteProvider) ClearDeviceConfig() error {
	if _, err := s.db.Exec(`DELETE FROM device_config WHERE id = 1`); err != nil {
		return fmt.Errorf("failed to clear device config: %w", err)
	}
	return nil
}

// IsReadOnly returns false; SQLite configs support modification
func (s *SQLiteProvider) IsReadOnly() bool {
	return false
}

// Close closes the database connection
func (s *SQLiteProvider) Close() error {
	return s.db.Close()
}
