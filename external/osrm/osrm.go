package osrm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"merceria/backend/internal/delivery"
)

// Client resolves driving distances against an OSRM instance, geocoding the
// free-text destination through a Nominatim-compatible endpoint first.
type Client struct {
	baseURL    string
	geocodeURL string
	client     *http.Client
}

func New(baseURL string) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("OSRM base URL not set")
	}

	return &Client{
		baseURL:    baseURL,
		geocodeURL: "https://nominatim.openstreetmap.org/search",
		client:     &http.Client{Timeout: 5 * time.Second},
	}, nil
}

type geocodeResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

type routeResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"` // meters
	} `json:"routes"`
}

// ResolveDistanceKm geocodes destination, then asks OSRM for the driving
// route from origin. Destinations are biased to Paraguay.
func (c *Client) ResolveDistanceKm(ctx context.Context, origin delivery.LatLng, destination string) (float64, error) {
	dest, err := c.geocode(ctx, destination)
	if err != nil {
		return 0, err
	}

	u := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?overview=false",
		c.baseURL, origin.Lng, origin.Lat, dest.Lng, dest.Lat)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("routing service error: %s", resp.Status)
	}

	var out routeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	if out.Code != "Ok" || len(out.Routes) == 0 {
		return 0, fmt.Errorf("no route found (code %s)", out.Code)
	}

	return out.Routes[0].Distance / 1000, nil
}

func (c *Client) geocode(ctx context.Context, destination string) (delivery.LatLng, error) {
	u, _ := url.Parse(c.geocodeURL)
	q := u.Query()
	q.Set("q", destination)
	q.Set("format", "json")
	q.Set("limit", "1")
	q.Set("countrycodes", "py")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return delivery.LatLng{}, err
	}
	req.Header.Set("User-Agent", "merceria-backend/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return delivery.LatLng{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return delivery.LatLng{}, fmt.Errorf("geocoding service error: %s", resp.Status)
	}

	var results []geocodeResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return delivery.LatLng{}, err
	}
	if len(results) == 0 {
		return delivery.LatLng{}, errors.New("destination not found")
	}

	var out delivery.LatLng
	if _, err := fmt.Sscanf(results[0].Lat, "%f", &out.Lat); err != nil {
		return delivery.LatLng{}, err
	}
	if _, err := fmt.Sscanf(results[0].Lon, "%f", &out.Lng); err != nil {
		return delivery.LatLng{}, err
	}
	return out, nil
}
