// Package bootmode decides which mode the device runs in: the captive
// setup portal, the connecting sequence, normal operation, or the
// settings editor reached from normal operation.
package bootmode

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sagecircuit/forecaster/internal/clock"
	"github.com/sagecircuit/forecaster/internal/constants"
	"github.com/sagecircuit/forecaster/internal/netlink"
	"github.com/sagecircuit/forecaster/pkg/config"
	"go.uber.org/zap"
)

// Mode is the device's operating mode.
type Mode string

const (
	// ModeSetup runs the captive portal; only Wi-Fi and location
	// capture are exposed.
	ModeSetup Mode = "setup"
	// ModeConnecting is the transient state while the link comes up.
	ModeConnecting Mode = "connecting"
	// ModeOperational is normal weather operation.
	ModeOperational Mode = "operational"
	// ModeSettingsEdit is the settings editor reached from operational
	// mode; full capabilities including updates.
	ModeSettingsEdit Mode = "settings"
)

// retryDelay spaces the bounded connect attempts.
var retryDelay = 2 * time.Second

// Controller owns the mode state machine. Configuration is never wiped
// by a failed transition; Setup mode is entered with the config intact
// and a reason the portal can show.
type Controller struct {
	provider  config.Provider
	link      netlink.Manager
	syncClock clock.SyncFunc
	logger    *zap.SugaredLogger

	mu     sync.Mutex
	mode   Mode
	reason string
	cfg    *config.DeviceConfig
}

// New creates a Controller. syncClock is the auxiliary check gating the
// transition to operational mode; pass nil to skip it.
func New(provider config.Provider, link netlink.Manager, syncClock clock.SyncFunc, logger *zap.SugaredLogger) *Controller {
	return &Controller{
		provider:  provider,
		link:      link,
		syncClock: syncClock,
		logger:    logger,
		mode:      ModeSetup,
	}
}

// Mode returns the current mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Reason explains why the device is in Setup mode, empty otherwise.
func (c *Controller) Reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Config returns the loaded device configuration, nil in Setup mode
// when none exists.
func (c *Controller) Config() *config.DeviceConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

func (c *Controller) setMode(m Mode, reason string) {
	c.mu.Lock()
	c.mode = m
	c.reason = reason
	c.mu.Unlock()
	if reason != "" {
		c.logger.Infof("mode -> %s (%s)", m, reason)
	} else {
		c.logger.Infof("mode -> %s", m)
	}
}

// DetermineBootMode loads config and drives the Connecting sequence,
// returning the mode the device should run in.
func (c *Controller) DetermineBootMode(ctx context.Context) Mode {
	cfg, err := c.provider.LoadDeviceConfig()
	switch {
	case errors.Is(err, config.ErrConfigMissing):
		c.setMode(ModeSetup, "no configuration saved")
		return ModeSetup
	case errors.Is(err, config.ErrConfigCorrupt), errors.Is(err, config.ErrConfigInvalid):
		c.setMode(ModeSetup, "saved configuration is not usable")
		return ModeSetup
	case err != nil:
		c.setMode(ModeSetup, "configuration could not be read")
		return ModeSetup
	}

	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()

	return c.Connect(ctx)
}

// Connect runs the bounded connection attempt sequence. An attempt only
// counts as successful once the auxiliary check passes. Credential
// rejection stops retrying immediately; link-level and check failures
// retry up to the attempt budget. Either way the saved config survives.
func (c *Controller) Connect(ctx context.Context) Mode {
	c.mu.Lock()
	cfg := c.cfg
	c.mu.Unlock()
	if cfg == nil {
		c.setMode(ModeSetup, "no configuration loaded")
		return ModeSetup
	}

	c.setMode(ModeConnecting, "")

	var lastErr error
	for attempt := 1; attempt <= constants.WiFiMaxAttempts; attempt++ {
		if ctx.Err() != nil {
			c.setMode(ModeSetup, "startup cancelled")
			return ModeSetup
		}

		err := c.link.Connect(ctx, cfg.WiFiSSID, cfg.WiFiPSK)
		if err == nil {
			if err = c.auxiliaryCheck(ctx); err == nil {
				c.setMode(ModeOperational, "")
				return ModeOperational
			}
			// The link associated but the reference service is not
			// reachable yet; treat it like a link-level failure.
			c.logger.Warnf("auxiliary check failed: %v", err)
			c.link.Disconnect()
		}
		lastErr = err

		if errors.Is(err, netlink.ErrAuthFailed) {
			// Wrong credentials will not improve with retries.
			c.setMode(ModeSetup, "network rejected the saved Wi-Fi password")
			return ModeSetup
		}

		c.logger.Warnf("connect attempt %d/%d failed: %v", attempt, constants.WiFiMaxAttempts, err)
		if attempt < constants.WiFiMaxAttempts {
			select {
			case <-ctx.Done():
				c.setMode(ModeSetup, "startup cancelled")
				return ModeSetup
			case <-time.After(retryDelay):
			}
		}
	}

	c.logger.Warnf("giving up after %d attempts: %v", constants.WiFiMaxAttempts, lastErr)
	c.setMode(ModeSetup, "network checks failed, settings kept")
	return ModeSetup
}

// auxiliaryCheck gates the promotion to operational: associating is not
// enough, the clock sync against the reference service must also go
// through once. Controllers built without a sync function skip it.
func (c *Controller) auxiliaryCheck(ctx context.Context) error {
	if c.syncClock == nil {
		return nil
	}
	return c.syncClock(ctx)
}

// EnterSettings switches from operational mode to the settings editor.
func (c *Controller) EnterSettings() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != ModeOperational {
		return errors.New("settings editor is only reachable from operational mode")
	}
	c.mode = ModeSettingsEdit
	c.logger.Info("mode -> settings")
	return nil
}

// LeaveSettings returns to operational mode without applying changes.
func (c *Controller) LeaveSettings() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == ModeSettingsEdit {
		c.mode = ModeOperational
		c.logger.Info("mode -> operational")
	}
}

// ApplyConfig saves a new configuration and re-runs the connect
// sequence. The save is atomic; a validation failure leaves the old
// config in place and the mode unchanged.
func (c *Controller) ApplyConfig(ctx context.Context, cfg *config.DeviceConfig) (Mode, error) {
	if err := c.provider.SaveDeviceConfig(cfg); err != nil {
		return c.Mode(), err
	}
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
	return c.Connect(ctx), nil
}
