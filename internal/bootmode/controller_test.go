package bootmode

import (
	"context"
	"errors"
	"testing"

	"github.com/sagecircuit/forecaster/internal/constants"
	"github.com/sagecircuit/forecaster/internal/netlink"
	"github.com/sagecircuit/forecaster/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProvider struct {
	cfg     *config.DeviceConfig
	loadErr error
	saveErr error
}

func (f *fakeProvider) LoadDeviceConfig() (*config.DeviceConfig, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.cfg, nil
}

func (f *fakeProvider) SaveDeviceConfig(cfg *config.DeviceConfig) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.cfg = cfg
	return nil
}

func (f *fakeProvider) ClearDeviceConfig() error { f.cfg = nil; return nil }
func (f *fakeProvider) IsReadOnly() bool         { return false }
func (f *fakeProvider) Close() error             { return nil }

type fakeLink struct {
	errs     []error
	attempts int
}

func (f *fakeLink) Connect(ctx context.Context, ssid, psk string) error {
	f.attempts++
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *fakeLink) Status() netlink.LinkStatus { return netlink.LinkStatus{} }
func (f *fakeLink) Disconnect() error          { return nil }

func validConfig() *config.DeviceConfig {
	return &config.DeviceConfig{
		WiFiSSID:       "homenet",
		WiFiPSK:        "hunter22",
		LocationSource: config.LocationSourceZip,
		ZipCode:        "80301",
		TimezoneID:     "Mountain",
		UseDST:         true,
	}
}

func testController(provider config.Provider, link netlink.Manager) *Controller {
	retryDelay = 0 // no point waiting between attempts in tests
	return New(provider, link, nil, zap.NewNop().Sugar())
}

func TestMissingConfigGoesToSetup(t *testing.T) {
	c := testController(&fakeProvider{loadErr: config.ErrConfigMissing}, &fakeLink{})
	assert.Equal(t, ModeSetup, c.DetermineBootMode(context.Background()))
	assert.NotEmpty(t, c.Reason())
}

func TestCorruptConfigGoesToSetup(t *testing.T) {
	c := testController(&fakeProvider{loadErr: config.ErrConfigCorrupt}, &fakeLink{})
	assert.Equal(t, ModeSetup, c.DetermineBootMode(context.Background()))
}

func TestValidConfigConnectsToOperational(t *testing.T) {
	link := &fakeLink{}
	c := testController(&fakeProvider{cfg: validConfig()}, link)
	assert.Equal(t, ModeOperational, c.DetermineBootMode(context.Background()))
	assert.Equal(t, 1, link.attempts)
}

func TestUnreachableAPRetriesThenSetupKeepingConfig(t *testing.T) {
	provider := &fakeProvider{cfg: validConfig()}
	link := &fakeLink{errs: []error{
		netlink.ErrAPUnreachable,
		netlink.ErrAPUnreachable,
		netlink.ErrAPUnreachable,
	}}
	c := testController(provider, link)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mode := c.DetermineBootMode(ctx)
	assert.Equal(t, ModeSetup, mode)
	assert.Equal(t, 3, link.attempts, "retry budget is three attempts")
	require.NotNil(t, provider.cfg, "transient link failure must not wipe the config")
	assert.Equal(t, "homenet", provider.cfg.WiFiSSID)
}

func TestAuthFailureStopsRetryingImmediately(t *testing.T) {
	provider := &fakeProvider{cfg: validConfig()}
	link := &fakeLink{errs: []error{netlink.ErrAuthFailed}}
	c := testController(provider, link)

	assert.Equal(t, ModeSetup, c.DetermineBootMode(context.Background()))
	assert.Equal(t, 1, link.attempts, "credential rejection must not retry")
	assert.NotNil(t, provider.cfg, "rejected credentials flag the config, never wipe it")
}

func TestTransientFailureThenSuccess(t *testing.T) {
	link := &fakeLink{errs: []error{netlink.ErrAPUnreachable}}
	c := testController(&fakeProvider{cfg: validConfig()}, link)
	assert.Equal(t, ModeOperational, c.DetermineBootMode(context.Background()))
	assert.Equal(t, 2, link.attempts)
}

func TestSettingsEditOnlyFromOperational(t *testing.T) {
	c := testController(&fakeProvider{cfg: validConfig()}, &fakeLink{})

	assert.Error(t, c.EnterSettings(), "settings editor unreachable before operational")

	require.Equal(t, ModeOperational, c.DetermineBootMode(context.Background()))
	require.NoError(t, c.EnterSettings())
	assert.Equal(t, ModeSettingsEdit, c.Mode())

	c.LeaveSettings()
	assert.Equal(t, ModeOperational, c.Mode())
}

func TestApplyConfigRejectsInvalidWithoutModeChange(t *testing.T) {
	provider := &fakeProvider{cfg: validConfig()}
	c := testController(provider, &fakeLink{})
	require.Equal(t, ModeOperational, c.DetermineBootMode(context.Background()))

	provider.saveErr = config.ErrLocationOutOfCoverage
	mode, err := c.ApplyConfig(context.Background(), validConfig())
	assert.ErrorIs(t, err, config.ErrLocationOutOfCoverage)
	assert.Equal(t, ModeOperational, mode, "failed save leaves the mode unchanged")
}

func TestClockSyncRequiredForOperational(t *testing.T) {
	retryDelay = 0
	calls := 0
	syncErr := func(ctx context.Context) error {
		calls++
		return errors.New("reference service unreachable")
	}
	provider := &fakeProvider{cfg: validConfig()}
	link := &fakeLink{}
	c := New(provider, link, syncErr, zap.NewNop().Sugar())

	mode := c.DetermineBootMode(context.Background())
	assert.Equal(t, ModeSetup, mode, "link without a passing check must not promote")
	assert.Equal(t, constants.WiFiMaxAttempts, calls, "check failures consume the retry budget")
	assert.NotNil(t, provider.cfg, "check failure must not wipe the config")
}

func TestClockSyncTransientFailureThenPromotes(t *testing.T) {
	retryDelay = 0
	calls := 0
	sync := func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("reference service unreachable")
		}
		return nil
	}
	link := &fakeLink{}
	c := New(&fakeProvider{cfg: validConfig()}, link, sync, zap.NewNop().Sugar())

	assert.Equal(t, ModeOperational, c.DetermineBootMode(context.Background()))
	assert.Equal(t, 2, link.attempts, "failed check reconnects before the next try")
}
