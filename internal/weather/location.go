package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const defaultZipBase = "https://api.zippopotam.us/us"

// ErrZipNotFound indicates the ZIP code does not resolve to a US place.
var ErrZipNotFound = errors.New("zip code not found")

// GeoResolver turns a US ZIP code into coordinates via zippopotam.us.
type GeoResolver struct {
	baseURL string
	client  *http.Client
}

func NewGeoResolver() *GeoResolver {
	return &GeoResolver{
		baseURL: defaultZipBase,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

type zipResponse struct {
	Places []struct {
		PlaceName string `json:"place name"`
		Latitude  string `json:"latitude"`
		Longitude string `json:"longitude"`
	} `json:"places"`
}

// Resolve looks up lat/lon and place name for a ZIP code.
func (g *GeoResolver) Resolve(ctx context.Context, zip string) (lat, lon float64, place string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s", g.baseURL, zip), nil)
	if err != nil {
		return 0, 0, "", err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, 0, "", fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, 0, "", fmt.Errorf("%w: %s", ErrZipNotFound, zip)
	}
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return 0, 0, "", fmt.Errorf("%w: zip lookup returned status %d", ErrNetworkUnavailable, resp.StatusCode)
	}

	var zr zipResponse
	if err := json.NewDecoder(resp.Body).Decode(&zr); err != nil {
		return 0, 0, "", fmt.Errorf("unable to decode zip lookup response: %w", err)
	}
	if len(zr.Places) == 0 {
		return 0, 0, "", fmt.Errorf("%w: %s", ErrZipNotFound, zip)
	}

	p := zr.Places[0]
	lat, err = strconv.ParseFloat(p.Latitude, 64)
	if err != nil {
		return 0, 0, "", fmt.Errorf("zip lookup returned unparseable latitude %q: %w", p.Latitude, err)
	}
	lon, err = strconv.ParseFloat(p.Longitude, 64)
	if err != nil {
		return 0, 0, "", fmt.Errorf("zip lookup returned unparseable longitude %q: %w", p.Longitude, err)
	}
	return lat, lon, p.PlaceName, nil
}
