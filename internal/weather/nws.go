package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/sagecircuit/forecaster/internal/constants"
	"github.com/sagecircuit/forecaster/pkg/config"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const defaultNWSBase = "https://api.weather.gov"

// Client talks to the National Weather Service API. Only the fields this
// device consumes are decoded; unknown manifest fields are ignored so the
// client stays forward-compatible with schema additions.
type Client struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.SugaredLogger
}

// NewClient creates an NWS API client.
func NewClient(logger *zap.SugaredLogger) *Client {
	return &Client{
		baseURL: defaultNWSBase,
		client:  &http.Client{Timeout: 10 * time.Second},
		breaker: newBreaker("nws"),
		logger:  logger,
	}
}

// PointsMetadata holds the per-location URLs resolved from the NWS points
// endpoint. Fetched once per location and cached by the engine.
type PointsMetadata struct {
	ForecastURL string
	HourlyURL   string
	StationID   string
	StationsURL string
}

type pointsResponse struct {
	Properties struct {
		Forecast            string `json:"forecast"`
		ForecastHourly      string `json:"forecastHourly"`
		ObservationStations string `json:"observationStations"`
		GridID              string `json:"gridId"`
		GridX               int    `json:"gridX"`
		GridY               int    `json:"gridY"`
	} `json:"properties"`
}

type nwsErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

type forecastResponse struct {
	Properties struct {
		Periods []struct {
			Name          string `json:"name"`
			Temperature   int    `json:"temperature"`
			IsDaytime     bool   `json:"isDaytime"`
			ShortForecast string `json:"shortForecast"`
			StartTime     string `json:"startTime"`
		} `json:"periods"`
	} `json:"properties"`
}

type stationsResponse struct {
	Features []struct {
		Properties struct {
			StationIdentifier string `json:"stationIdentifier"`
		} `json:"properties"`
	} `json:"features"`
}

type observationResponse struct {
	Properties struct {
		TextDescription string `json:"textDescription"`
		Temperature     struct {
			Value *float64 `json:"value"` // degrees C, may be null
		} `json:"temperature"`
		RelativeHumidity struct {
			Value *float64 `json:"value"`
		} `json:"relativeHumidity"`
	} `json:"properties"`
}

// PointsMetadata resolves the forecast, hourly, and observation-station
// URLs for a location. A 404 whose detail marks the point as outside the
// forecast area is reported as ErrLocationOutOfCoverage so it can be
// rejected at configuration time.
func (c *Client) PointsMetadata(ctx context.Context, lat, lon float64) (*PointsMetadata, error) {
	url := fmt.Sprintf("%s/points/%.4f,%.4f", c.baseURL, lat, lon)

	var points pointsResponse
	if err := c.getJSON(ctx, url, &points); err != nil {
		var se *statusError
		if asStatusError(err, &se) && se.code == http.StatusNotFound {
			var nwsErr nwsErrorResponse
			if json.Unmarshal(se.body, &nwsErr) == nil && isOutOfCoverage(nwsErr) {
				return nil, config.ErrLocationOutOfCoverage
			}
			return nil, fmt.Errorf("%w: points lookup returned 404", ErrNetworkUnavailable)
		}
		return nil, err
	}

	md := &PointsMetadata{
		ForecastURL: points.Properties.Forecast,
		HourlyURL:   points.Properties.ForecastHourly,
		StationsURL: points.Properties.ObservationStations,
	}

	// The hourly URL is occasionally absent from the points payload but
	// derivable from the grid coordinates.
	if md.HourlyURL == "" && points.Properties.GridID != "" {
		md.HourlyURL = fmt.Sprintf("%s/gridpoints/%s/%d,%d/forecast/hourly",
			c.baseURL, points.Properties.GridID, points.Properties.GridX, points.Properties.GridY)
	}

	if md.StationsURL != "" {
		stationID, err := c.firstStationID(ctx, md.StationsURL)
		if err != nil {
			c.logger.Debugf("could not resolve observation station: %v", err)
		} else {
			md.StationID = stationID
		}
	}

	if md.ForecastURL == "" && md.HourlyURL == "" && md.StationID == "" {
		return nil, fmt.Errorf("%w: points metadata carried no usable URLs", ErrNetworkUnavailable)
	}

	return md, nil
}

func isOutOfCoverage(e nwsErrorResponse) bool {
	detail := strings.ToLower(e.Detail)
	return strings.Contains(detail, "outside the forecast area") ||
		strings.Contains(detail, "unable to provide data") ||
		strings.Contains(strings.ToLower(e.Title), "invalid point") ||
		strings.Contains(strings.ToLower(e.Type), "invalidpoint")
}

func (c *Client) firstStationID(ctx context.Context, stationsURL string) (string, error) {
	var stations stationsResponse
	if err := c.getJSON(ctx, stationsURL, &stations); err != nil {
		return "", err
	}
	for _, f := range stations.Features {
		if f.Properties.StationIdentifier != "" {
			return f.Properties.StationIdentifier, nil
		}
	}
	return "", fmt.Errorf("no observation stations listed")
}

// maxDayPeriods and maxNightPeriods bound how much forecast data is kept;
// the display cycles through at most a week of days and a few nights.
const (
	maxDayPeriods   = 7
	maxNightPeriods = 3
)

// FetchForecast retrieves the multi-day forecast and shapes each period
// for the display.
func (c *Client) FetchForecast(ctx context.Context, forecastURL string) ([]Period, error) {
	var forecast forecastResponse
	if err := c.getJSON(ctx, forecastURL, &forecast); err != nil {
		return nil, err
	}

	var periods []Period
	dayCount, nightCount := 0, 0
	for _, p := range forecast.Properties.Periods {
		if p.IsDaytime {
			if dayCount >= maxDayPeriods {
				continue
			}
			dayCount++
		} else {
			if nightCount >= maxNightPeriods {
				continue
			}
			nightCount++
		}

		first, then := SplitForecast(p.ShortForecast)
		period := Period{
			Label:     ShortenPeriodName(p.Name),
			TempF:     p.Temperature,
			ShortText: Simplify(first),
			IsDaytime: p.IsDaytime,
		}
		if then != "" {
			period.ThenText = Simplify(then)
		}
		period.Icon = IconFor(period.ShortText, p.IsDaytime)
		periods = append(periods, period)
	}

	if len(periods) == 0 {
		return nil, fmt.Errorf("forecast payload contained no periods")
	}
	return periods, nil
}

// FetchHourly retrieves the hourly forecast and keeps the next few hours.
func (c *Client) FetchHourly(ctx context.Context, hourlyURL string) ([]Period, error) {
	var forecast forecastResponse
	if err := c.getJSON(ctx, hourlyURL, &forecast); err != nil {
		return nil, err
	}

	const maxHours = 6
	var periods []Period
	for _, p := range forecast.Properties.Periods {
		if len(periods) >= maxHours {
			break
		}
		label := "Now"
		if t, err := time.Parse(time.RFC3339, p.StartTime); err == nil && len(periods) > 0 {
			label = t.Format("3 PM")
		}
		text := Simplify(p.ShortForecast)
		periods = append(periods, Period{
			Label:     label,
			TempF:     p.Temperature,
			ShortText: text,
			Icon:      IconFor(text, p.IsDaytime),
			IsDaytime: p.IsDaytime,
		})
	}

	if len(periods) == 0 {
		return nil, fmt.Errorf("hourly payload contained no periods")
	}
	return periods, nil
}

// FetchObservation retrieves the latest observation from the resolved
// station as a single current-conditions period. Least detailed tier.
func (c *Client) FetchObservation(ctx context.Context, stationID string) ([]Period, error) {
	if stationID == "" {
		return nil, fmt.Errorf("no observation station resolved")
	}

	url := fmt.Sprintf("%s/stations/%s/observations/latest", c.baseURL, stationID)
	var obs observationResponse
	if err := c.getJSON(ctx, url, &obs); err != nil {
		return nil, err
	}

	if obs.Properties.Temperature.Value == nil {
		return nil, fmt.Errorf("observation carried no temperature")
	}

	tempF := int(math.Round(*obs.Properties.Temperature.Value*9/5 + 32))
	text := Simplify(obs.Properties.TextDescription)
	period := Period{
		Label:     "Now",
		TempF:     tempF,
		ShortText: text,
		Icon:      IconFor(text, true),
		IsDaytime: true,
	}
	if obs.Properties.RelativeHumidity.Value != nil {
		period.HumidityPct = int(math.Round(*obs.Properties.RelativeHumidity.Value))
	}

	return []Period{period}, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out interface{}) error {
	resp, err := doRequestWithResilience(ctx, c.client, c.breaker, defaultBackoff, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", constants.NWSUserAgent)
		req.Header.Set("Accept", "application/geo+json")
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &statusError{code: resp.StatusCode, body: body}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("unable to decode response from %s: %w", url, err)
	}
	return nil
}

func asStatusError(err error, target **statusError) bool {
	se, ok := err.(*statusError)
	if ok {
		*target = se
	}
	return ok
}
