package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

const defaultSunBase = "https://api.sunrise-sunset.org/json"

// SunClient fetches sunrise and sunset times from sunrise-sunset.org.
// Results are cached per calendar day; the sun does not move between
// refresh cycles.
type SunClient struct {
	baseURL string
	client  *http.Client

	mu        sync.Mutex
	cachedDay string
	cached    *SunTimes
}

func NewSunClient() *SunClient {
	return &SunClient{
		baseURL: defaultSunBase,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

type sunResponse struct {
	Status  string `json:"status"`
	Results struct {
		Sunrise string `json:"sunrise"`
		Sunset  string `json:"sunset"`
	} `json:"results"`
}

// Times returns sunrise and sunset for the location on the given UTC day.
func (s *SunClient) Times(ctx context.Context, lat, lon float64, day time.Time) (*SunTimes, error) {
	dayKey := day.UTC().Format("2006-01-02")

	s.mu.Lock()
	if s.cached != nil && s.cachedDay == dayKey {
		cached := *s.cached
		s.mu.Unlock()
		return &cached, nil
	}
	s.mu.Unlock()

	url := fmt.Sprintf("%s?lat=%.4f&lng=%.4f&date=%s&formatted=0", s.baseURL, lat, lon, dayKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: sun lookup returned status %d", ErrNetworkUnavailable, resp.StatusCode)
	}

	var sr sunResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("unable to decode sun lookup response: %w", err)
	}
	if sr.Status != "OK" {
		return nil, fmt.Errorf("sun lookup returned status %q", sr.Status)
	}

	sunrise, err := time.Parse(time.RFC3339, sr.Results.Sunrise)
	if err != nil {
		return nil, fmt.Errorf("unparseable sunrise %q: %w", sr.Results.Sunrise, err)
	}
	sunset, err := time.Parse(time.RFC3339, sr.Results.Sunset)
	if err != nil {
		return nil, fmt.Errorf("unparseable sunset %q: %w", sr.Results.Sunset, err)
	}

	times := &SunTimes{Sunrise: sunrise, Sunset: sunset}

	s.mu.Lock()
	s.cachedDay = dayKey
	s.cached = times
	s.mu.Unlock()

	return times, nil
}
