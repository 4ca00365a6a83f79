// Package app wires the device's controllers together and owns the
// process lifecycle, including the reboot-by-exit convention the
// supervisor relies on.
package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sagecircuit/forecaster/internal/bootmode"
	"github.com/sagecircuit/forecaster/internal/clock"
	"github.com/sagecircuit/forecaster/internal/constants"
	"github.com/sagecircuit/forecaster/internal/controllers/portal"
	"github.com/sagecircuit/forecaster/internal/display"
	"github.com/sagecircuit/forecaster/internal/netlink"
	"github.com/sagecircuit/forecaster/internal/ota"
	"github.com/sagecircuit/forecaster/internal/weather"
	"github.com/sagecircuit/forecaster/pkg/config"
	"go.uber.org/zap"
)

// RebootExitCode tells the supervisor to restart the process, standing
// in for a hardware reset.
const RebootExitCode = 10

// ErrRebootRequested is returned from Run when a controller asked for a
// restart; main translates it into RebootExitCode.
var ErrRebootRequested = errors.New("reboot requested")

// Options configures the application.
type Options struct {
	Provider      config.Provider
	Link          netlink.Manager
	InstallDir    string
	ManifestURL   string
	PortalAddr    string
	PortalPort    int
	DisplayDevice string
	DisplayBaud   int
}

// App represents the device application.
type App struct {
	opts   Options
	logger *zap.SugaredLogger

	rebootCh chan struct{}
	once     sync.Once
}

// New creates a new application instance.
func New(opts Options, logger *zap.SugaredLogger) *App {
	return &App{
		opts:     opts,
		logger:   logger,
		rebootCh: make(chan struct{}),
	}
}

// RequestReboot asks the process to shut down cleanly and signal the
// supervisor to start it again.
func (a *App) RequestReboot() {
	a.once.Do(func() { close(a.rebootCh) })
}

// Run starts the application and blocks until shutdown.
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pipeline := ota.NewPipeline(a.opts.InstallDir, a.opts.ManifestURL, a.logger)
	pipeline.SetRebootFunc(a.RequestReboot)
	if err := pipeline.RecoverAtBoot(); err != nil {
		// The installed tree may be mixed; operator attention needed but
		// the device can still serve the portal.
		a.logger.Errorf("update recovery failed: %v", err)
	}

	bootCtrl := bootmode.New(a.opts.Provider, a.opts.Link, a.checkClock, a.logger)
	mode := bootCtrl.DetermineBootMode(ctx)

	driver, err := a.openDisplay()
	if err != nil {
		return err
	}
	renderer := display.NewRenderer(driver)

	var engine *weather.Engine
	var sched *display.Scheduler

	if mode == bootmode.ModeOperational {
		cfg := bootCtrl.Config()
		engine, err = a.startWeather(ctx, &wg, cfg, renderer, pipeline)
		if err != nil {
			// Config stays intact; the portal is still up so the user
			// can correct the location.
			a.logger.Errorf("weather startup failed: %v", err)
			renderer.RenderStatus("Weather Setup", "Needs Attention", "Open "+constants.APDomain)
		} else {
			clk := clock.New(cfg)
			sched = display.NewScheduler(renderer, clk, engine.Snapshot, engine.Sun, pipeline.Busy, a.logger)
			sched.StartController(ctx, &wg)
		}
		a.reconcileFirmwareVersion(cfg, pipeline)
		a.startClockSync(ctx, &wg)
	} else {
		renderer.RenderStatus("Setup Mode", "Join "+constants.APName, "Open "+constants.APDomain)
	}

	phaseFn := func() display.PhaseState {
		if sched == nil {
			return display.PhaseState{}
		}
		return sched.State()
	}
	snapshotFn := func() *weather.Snapshot {
		if engine == nil {
			return nil
		}
		return engine.Snapshot()
	}

	portalCtrl, err := portal.NewController(ctx, &wg, portal.Config{
		ListenAddr: a.opts.PortalAddr,
		Port:       a.opts.PortalPort,
	}, portal.Deps{
		BootCtrl: bootCtrl,
		Provider: a.opts.Provider,
		Pipeline: pipeline,
		Snapshot: snapshotFn,
		Phase:    phaseFn,
		Reboot:   a.RequestReboot,
	}, a.logger)
	if err != nil {
		return err
	}
	if err := portalCtrl.StartController(); err != nil {
		return err
	}

	a.logger.Info("application started")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	rebooting := false
	select {
	case <-sigs:
		a.logger.Info("shutdown signal received, initiating graceful shutdown...")
	case <-a.rebootCh:
		a.logger.Info("reboot requested, shutting down for restart...")
		rebooting = true
	case <-ctx.Done():
		a.logger.Info("context cancelled, shutting down...")
	}

	cancel()
	a.logger.Info("waiting for all workers to terminate...")
	wg.Wait()
	a.logger.Info("shutdown complete")

	if rebooting {
		return ErrRebootRequested
	}
	return nil
}

// startWeather resolves the configured location and spins up the fetch
// engine and its refresh loop.
func (a *App) startWeather(ctx context.Context, wg *sync.WaitGroup, cfg *config.DeviceConfig, renderer *display.Renderer, pipeline *ota.Pipeline) (*weather.Engine, error) {
	lat, lon := cfg.Latitude, cfg.Longitude
	if cfg.LocationSource == config.LocationSourceZip {
		resolveCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()

		var place string
		var err error
		lat, lon, place, err = weather.NewGeoResolver().Resolve(resolveCtx, cfg.ZipCode)
		if err != nil {
			return nil, fmt.Errorf("could not resolve ZIP %s: %w", cfg.ZipCode, err)
		}
		a.logger.Infof("ZIP %s resolved to %s (%.4f, %.4f)", cfg.ZipCode, place, lat, lon)
	}

	engine := weather.NewEngine(weather.NewClient(a.logger), weather.NewSunClient(),
		a.opts.InstallDir, lat, lon, a.logger)
	engine.LoadCached()

	resolveCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := engine.ResolveLocation(resolveCtx); err != nil {
		if errors.Is(err, config.ErrLocationOutOfCoverage) {
			return nil, err
		}
		// Transient; the refresh loop keeps retrying.
		a.logger.Warnf("location metadata not yet available: %v", err)
	}

	engine.StartController(ctx, wg)
	return engine, nil
}

// openDisplay opens the serial panel, or the in-memory driver when no
// device is configured (development hosts).
func (a *App) openDisplay() (display.Driver, error) {
	if a.opts.DisplayDevice == "" {
		a.logger.Info("no display device configured, using in-memory driver")
		return display.NewMemoryDriver(), nil
	}
	baud := a.opts.DisplayBaud
	if baud == 0 {
		baud = 921600
	}
	drv, err := display.OpenSerial(a.opts.DisplayDevice, baud)
	if err != nil {
		return nil, err
	}
	return drv, nil
}

// startClockSync re-runs the clock check on an hourly cadence so drift
// gets noticed even on long uptimes.
func (a *App) startClockSync(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(constants.ClockSyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := a.checkClock(ctx); err != nil {
					a.logger.Warnf("clock check failed: %v", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// checkClock is the auxiliary check gating operational mode: it compares
// the wall clock against the weather API's Date header, since the
// device's time only matters relative to that service.
func (a *App) checkClock(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, "https://api.weather.gov/", nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", constants.NWSUserAgent)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	serverTime, err := time.Parse(http.TimeFormat, resp.Header.Get("Date"))
	if err != nil {
		return fmt.Errorf("no usable Date header: %w", err)
	}

	skew := time.Since(serverTime)
	if math.Abs(skew.Minutes()) > 5 {
		a.logger.Warnf("wall clock skewed %v from reference", skew.Round(time.Second))
	}
	return nil
}

// reconcileFirmwareVersion mirrors the authoritative version marker into
// the stored config so the settings page can show it without touching
// the pipeline.
func (a *App) reconcileFirmwareVersion(cfg *config.DeviceConfig, pipeline *ota.Pipeline) {
	installed := pipeline.InstalledVersion()
	if installed == "" {
		installed = constants.Version
	}
	if cfg.FirmwareVersion == installed || a.opts.Provider.IsReadOnly() {
		return
	}
	cfg.FirmwareVersion = installed
	if err := a.opts.Provider.SaveDeviceConfig(cfg); err != nil {
		a.logger.Warnf("could not record firmware version in config: %v", err)
	}
}
