package weather

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sagecircuit/forecaster/internal/constants"
	"github.com/sagecircuit/forecaster/pkg/config"
	"go.uber.org/zap"
)

// apiClient is the slice of Client the engine depends on, kept narrow so
// tests can substitute a fake.
type apiClient interface {
	PointsMetadata(ctx context.Context, lat, lon float64) (*PointsMetadata, error)
	FetchForecast(ctx context.Context, forecastURL string) ([]Period, error)
	FetchHourly(ctx context.Context, hourlyURL string) ([]Period, error)
	FetchObservation(ctx context.Context, stationID string) ([]Period, error)
}

// sunSource mirrors SunClient for the engine's sun page data.
type sunSource interface {
	Times(ctx context.Context, lat, lon float64, day time.Time) (*SunTimes, error)
}

// Engine fetches weather on a schedule and publishes immutable snapshots.
// Readers load the current snapshot without locking; a refresh replaces
// it wholesale or leaves the previous one in place on total failure.
type Engine struct {
	client apiClient
	sun    sunSource
	cache  *snapshotCache
	logger *zap.SugaredLogger

	lat float64
	lon float64

	metaMu   sync.Mutex
	metadata *PointsMetadata

	current  atomic.Pointer[Snapshot]
	sunTimes atomic.Pointer[SunTimes]

	wg     *sync.WaitGroup
	cancel context.CancelFunc
}

// NewEngine creates an Engine for a resolved location. cacheDir holds the
// persisted last-good snapshot.
func NewEngine(client apiClient, sun sunSource, cacheDir string, lat, lon float64, logger *zap.SugaredLogger) *Engine {
	return &Engine{
		client: client,
		sun:    sun,
		cache:  newSnapshotCache(cacheDir),
		logger: logger,
		lat:    lat,
		lon:    lon,
	}
}

// LoadCached primes the published snapshot from disk so the display has
// data immediately after a reboot, before the first fetch completes.
func (e *Engine) LoadCached() {
	state, err := e.cache.Load()
	if err != nil {
		e.logger.Warnf("weather cache unreadable: %v", err)
		return
	}
	if state == nil || state.Snapshot == nil {
		return
	}
	e.current.Store(state.Snapshot)
	if state.Sun != nil {
		e.sunTimes.Store(state.Sun)
	}
	e.logger.Infof("restored cached %s snapshot from %s", state.Snapshot.Tier,
		state.Snapshot.FetchedAt.Format(time.RFC3339))
}

// Snapshot returns the most recent successful snapshot, or nil when no
// fetch has ever succeeded and no cache was restored.
func (e *Engine) Snapshot() *Snapshot {
	return e.current.Load()
}

// Sun returns the most recently fetched sunrise/sunset times, or nil.
func (e *Engine) Sun() *SunTimes {
	return e.sunTimes.Load()
}

// ResolveLocation validates the location against the forecast coverage
// area and caches the per-location URLs. Called once during startup and
// when the location changes.
func (e *Engine) ResolveLocation(ctx context.Context) error {
	md, err := e.client.PointsMetadata(ctx, e.lat, e.lon)
	if err != nil {
		return err
	}
	e.metaMu.Lock()
	e.metadata = md
	e.metaMu.Unlock()
	return nil
}

// Refresh attempts each source tier in order of detail and publishes the
// first success. When every tier fails the previous snapshot stays
// published and ErrAllSourcesUnavailable is returned.
func (e *Engine) Refresh(ctx context.Context) error {
	md, err := e.ensureMetadata(ctx)
	if err != nil {
		if errors.Is(err, config.ErrLocationOutOfCoverage) {
			return err
		}
		e.logger.Warnf("metadata unavailable: %v", err)
		return ErrAllSourcesUnavailable
	}

	type tier struct {
		name  SourceTier
		fetch func(context.Context) ([]Period, error)
	}
	tiers := []tier{}
	if md.ForecastURL != "" {
		tiers = append(tiers, tier{TierForecast, func(ctx context.Context) ([]Period, error) {
			return e.client.FetchForecast(ctx, md.ForecastURL)
		}})
	}
	if md.HourlyURL != "" {
		tiers = append(tiers, tier{TierHourly, func(ctx context.Context) ([]Period, error) {
			return e.client.FetchHourly(ctx, md.HourlyURL)
		}})
	}
	if md.StationID != "" {
		tiers = append(tiers, tier{TierObservation, func(ctx context.Context) ([]Period, error) {
			return e.client.FetchObservation(ctx, md.StationID)
		}})
	}

	for _, t := range tiers {
		periods, err := t.fetch(ctx)
		if err != nil {
			e.logger.Warnf("%s tier failed: %v", t.name, err)
			continue
		}
		snap := &Snapshot{
			Tier:      t.name,
			Periods:   periods,
			FetchedAt: time.Now().UTC(),
		}
		e.publish(snap)
		if t.name != TierForecast {
			e.logger.Infof("degraded to %s tier", t.name)
		}
		return nil
	}

	return ErrAllSourcesUnavailable
}

// RefreshSun updates sunrise/sunset for today. Failures keep the previous
// value; the sun page shows N/A only when nothing was ever fetched.
func (e *Engine) RefreshSun(ctx context.Context) {
	if e.sun == nil {
		return
	}
	times, err := e.sun.Times(ctx, e.lat, e.lon, time.Now())
	if err != nil {
		e.logger.Debugf("sun times unavailable: %v", err)
		return
	}
	e.sunTimes.Store(times)
}

func (e *Engine) publish(snap *Snapshot) {
	e.current.Store(snap)
	state := &cachedState{Snapshot: snap, Sun: e.sunTimes.Load()}
	if err := e.cache.Save(state); err != nil {
		e.logger.Warnf("could not persist weather cache: %v", err)
	}
}

func (e *Engine) ensureMetadata(ctx context.Context) (*PointsMetadata, error) {
	e.metaMu.Lock()
	md := e.metadata
	e.metaMu.Unlock()
	if md != nil {
		return md, nil
	}
	if err := e.ResolveLocation(ctx); err != nil {
		return nil, err
	}
	e.metaMu.Lock()
	defer e.metaMu.Unlock()
	return e.metadata, nil
}

// StartController begins the periodic refresh loop. An immediate refresh
// runs first so the display is not stale for a whole interval after boot.
func (e *Engine) StartController(ctx context.Context, wg *sync.WaitGroup) {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.wg = wg

	wg.Add(1)
	go func() {
		defer wg.Done()

		e.refreshOnce(ctx)

		ticker := time.NewTicker(constants.WeatherRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.refreshOnce(ctx)
			}
		}
	}()
}

// Stop halts the refresh loop.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Engine) refreshOnce(ctx context.Context) {
	if err := e.Refresh(ctx); err != nil {
		e.logger.Warnf("weather refresh failed: %v", err)
	}
	e.RefreshSun(ctx)
}
