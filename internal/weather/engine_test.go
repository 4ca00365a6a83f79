package weather

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAPI struct {
	metadata       *PointsMetadata
	metadataErr    error
	forecastErr    error
	hourlyErr      error
	observationErr error
}

func (f *fakeAPI) PointsMetadata(ctx context.Context, lat, lon float64) (*PointsMetadata, error) {
	if f.metadataErr != nil {
		return nil, f.metadataErr
	}
	return f.metadata, nil
}

func (f *fakeAPI) FetchForecast(ctx context.Context, url string) ([]Period, error) {
	if f.forecastErr != nil {
		return nil, f.forecastErr
	}
	return []Period{{Label: "Today", TempF: 72, ShortText: "Sunny"}}, nil
}

func (f *fakeAPI) FetchHourly(ctx context.Context, url string) ([]Period, error) {
	if f.hourlyErr != nil {
		return nil, f.hourlyErr
	}
	return []Period{{Label: "Now", TempF: 68, ShortText: "Partly Cloudy"}}, nil
}

func (f *fakeAPI) FetchObservation(ctx context.Context, stationID string) ([]Period, error) {
	if f.observationErr != nil {
		return nil, f.observationErr
	}
	return []Period{{Label: "Now", TempF: 65, ShortText: "Cloudy", HumidityPct: 40}}, nil
}

func fullMetadata() *PointsMetadata {
	return &PointsMetadata{
		ForecastURL: "http://example/forecast",
		HourlyURL:   "http://example/hourly",
		StationID:   "KBDU",
	}
}

func testEngine(t *testing.T, api *fakeAPI) *Engine {
	t.Helper()
	return NewEngine(api, nil, t.TempDir(), 40.0, -105.0, zap.NewNop().Sugar())
}

func TestRefreshPrefersForecastTier(t *testing.T) {
	e := testEngine(t, &fakeAPI{metadata: fullMetadata()})

	require.NoError(t, e.Refresh(context.Background()))
	snap := e.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, TierForecast, snap.Tier)
	assert.Equal(t, "Today", snap.Periods[0].Label)
}

func TestRefreshFallsThroughTiers(t *testing.T) {
	upstream := errors.New("upstream down")

	e := testEngine(t, &fakeAPI{metadata: fullMetadata(), forecastErr: upstream})
	require.NoError(t, e.Refresh(context.Background()))
	assert.Equal(t, TierHourly, e.Snapshot().Tier)

	e = testEngine(t, &fakeAPI{metadata: fullMetadata(), forecastErr: upstream, hourlyErr: upstream})
	require.NoError(t, e.Refresh(context.Background()))
	assert.Equal(t, TierObservation, e.Snapshot().Tier)
}

func TestRefreshAllTiersFailKeepsPreviousSnapshot(t *testing.T) {
	api := &fakeAPI{metadata: fullMetadata()}
	e := testEngine(t, api)

	require.NoError(t, e.Refresh(context.Background()))
	before := e.Snapshot()
	require.NotNil(t, before)

	upstream := errors.New("upstream down")
	api.forecastErr = upstream
	api.hourlyErr = upstream
	api.observationErr = upstream

	err := e.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrAllSourcesUnavailable)
	assert.Same(t, before, e.Snapshot(), "failed refresh must not disturb the published snapshot")
}

func TestCacheSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	logger := zap.NewNop().Sugar()
	api := &fakeAPI{metadata: fullMetadata()}

	e := NewEngine(api, nil, dir, 40.0, -105.0, logger)
	require.NoError(t, e.Refresh(context.Background()))
	fetched := e.Snapshot().FetchedAt

	e2 := NewEngine(api, nil, dir, 40.0, -105.0, logger)
	require.Nil(t, e2.Snapshot())
	e2.LoadCached()

	restored := e2.Snapshot()
	require.NotNil(t, restored)
	assert.Equal(t, TierForecast, restored.Tier)
	assert.True(t, restored.FetchedAt.Equal(fetched))
	assert.Equal(t, "Today", restored.Periods[0].Label)
}

func TestSnapshotIsNilBeforeFirstFetch(t *testing.T) {
	e := testEngine(t, &fakeAPI{metadata: fullMetadata()})
	assert.Nil(t, e.Snapshot())
}

type fakeSun struct {
	times *SunTimes
	err   error
	calls int
}

func (f *fakeSun) Times(ctx context.Context, lat, lon float64, day time.Time) (*SunTimes, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.times, nil
}

func TestRefreshSunKeepsPreviousOnFailure(t *testing.T) {
	sun := &fakeSun{times: &SunTimes{
		Sunrise: time.Date(2025, 6, 1, 11, 30, 0, 0, time.UTC),
		Sunset:  time.Date(2025, 6, 2, 2, 15, 0, 0, time.UTC),
	}}
	e := NewEngine(&fakeAPI{metadata: fullMetadata()}, sun, t.TempDir(), 40.0, -105.0, zap.NewNop().Sugar())

	e.RefreshSun(context.Background())
	require.NotNil(t, e.Sun())

	sun.err = errors.New("upstream down")
	e.RefreshSun(context.Background())
	assert.NotNil(t, e.Sun(), "failed sun refresh must keep the previous value")
}
