package weather

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sagecircuit/forecaster/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testClient(baseURL string) *Client {
	c := NewClient(zap.NewNop().Sugar())
	c.baseURL = baseURL
	return c
}

func TestPointsMetadataResolvesURLs(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/points/40.0150,-105.2700":
			fmt.Fprintf(w, `{"properties":{
				"forecast":"%[1]s/gridpoints/BOU/52,75/forecast",
				"forecastHourly":"%[1]s/gridpoints/BOU/52,75/forecast/hourly",
				"observationStations":"%[1]s/gridpoints/BOU/52,75/stations"}}`, srv.URL)
		case "/gridpoints/BOU/52,75/stations":
			fmt.Fprint(w, `{"features":[{"properties":{"stationIdentifier":"KBDU"}}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	md, err := testClient(srv.URL).PointsMetadata(context.Background(), 40.015, -105.27)
	require.NoError(t, err)
	assert.Contains(t, md.ForecastURL, "/forecast")
	assert.Contains(t, md.HourlyURL, "/hourly")
	assert.Equal(t, "KBDU", md.StationID)
}

func TestPointsMetadataOutOfCoverage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"type":"https://api.weather.gov/problems/InvalidPoint",
			"title":"Invalid Point",
			"detail":"Unable to provide data for requested point 48.8566,2.3522"}`)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).PointsMetadata(context.Background(), 48.8566, 2.3522)
	assert.ErrorIs(t, err, config.ErrLocationOutOfCoverage)
}

func TestFetchForecastShapesPeriods(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"properties":{"periods":[
			{"name":"Monday","temperature":75,"isDaytime":true,"shortForecast":"Mostly Sunny then Slight Chance Rain Showers"},
			{"name":"Monday Night","temperature":52,"isDaytime":false,"shortForecast":"Partly Cloudy"}
		]}}`)
	}))
	defer srv.Close()

	periods, err := testClient(srv.URL).FetchForecast(context.Background(), srv.URL+"/forecast")
	require.NoError(t, err)
	require.Len(t, periods, 2)

	assert.Equal(t, "Monday", periods[0].Label)
	assert.Equal(t, 75, periods[0].TempF)
	assert.Equal(t, "Mostly Sunny", periods[0].ShortText)
	assert.Equal(t, "Chance Showers", periods[0].ThenText)
	assert.Equal(t, "icons/clear_day_rgb565.raw", periods[0].Icon)

	assert.Equal(t, "Mon Night", periods[1].Label)
	assert.False(t, periods[1].IsDaytime)
	assert.Equal(t, "icons/part_cloudy_night_rgb565.raw", periods[1].Icon)
}

func TestFetchObservationConvertsUnits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stations/KBDU/observations/latest", r.URL.Path)
		fmt.Fprint(w, `{"properties":{
			"textDescription":"Mostly Cloudy",
			"temperature":{"value":21.0},
			"relativeHumidity":{"value":43.7}}}`)
	}))
	defer srv.Close()

	periods, err := testClient(srv.URL).FetchObservation(context.Background(), "KBDU")
	require.NoError(t, err)
	require.Len(t, periods, 1)
	assert.Equal(t, 70, periods[0].TempF)
	assert.Equal(t, 44, periods[0].HumidityPct)
	assert.Equal(t, "Mostly Cloudy", periods[0].ShortText)
}

func TestGeoResolver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/80301":
			fmt.Fprint(w, `{"places":[{"place name":"Boulder","latitude":"40.0150","longitude":"-105.2705"}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	g := NewGeoResolver()
	g.baseURL = srv.URL

	lat, lon, place, err := g.Resolve(context.Background(), "80301")
	require.NoError(t, err)
	assert.InDelta(t, 40.015, lat, 0.001)
	assert.InDelta(t, -105.2705, lon, 0.001)
	assert.Equal(t, "Boulder", place)

	_, _, _, err = g.Resolve(context.Background(), "00000")
	assert.ErrorIs(t, err, ErrZipNotFound)
}
