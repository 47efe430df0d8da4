package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-stream/internal/weather"
)

const nominatimUpstream = "nominatim"

var zipPattern = regexp.MustCompile(`^\d{5}$`)

// IsZipCode reports whether query looks like a 5-digit US ZIP code.
func IsZipCode(query string) bool {
	return zipPattern.MatchString(strings.TrimSpace(query))
}

// NominatimGeocoder resolves US place names and ZIP codes through the
// OpenStreetMap Nominatim search API.
type NominatimGeocoder struct {
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewNominatimGeocoder(client *http.Client, baseURL, userAgent string) *NominatimGeocoder {
	if baseURL == "" {
		baseURL = "https://nominatim.openstreetmap.org"
	}
	return &NominatimGeocoder{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpCfg: HTTPClientConfig{
			Client:    client,
			UserAgent: userAgent,
			Backoff:   DefaultBackoff,
		},
		circuit: newCircuitBreaker(nominatimUpstream),
	}
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Geocode returns one match for a ZIP code and up to ten otherwise.
func (g *NominatimGeocoder) Geocode(ctx context.Context, query string) ([]weather.LocationRecord, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty geocoding query", weather.ErrInvalidArgument)
	}

	limit := 10
	if IsZipCode(query) {
		limit = 1
	}

	values := url.Values{}
	values.Set("q", query+", USA")
	values.Set("format", "json")
	values.Set("limit", strconv.Itoa(limit))
	values.Set("countrycodes", "us")

	var places []nominatimPlace
	u := fmt.Sprintf("%s/search?%s", g.baseURL, values.Encode())
	if err := getJSON(ctx, g.httpCfg, g.circuit, nominatimUpstream, "search", u, &places); err != nil {
		return nil, fmt.Errorf("geocode %q: %w", query, err)
	}

	out := make([]weather.LocationRecord, 0, len(places))
	for _, p := range places {
		lat, err := strconv.ParseFloat(p.Lat, 64)
		if err != nil {
			continue
		}
		lon, err := strconv.ParseFloat(p.Lon, 64)
		if err != nil {
			continue
		}

		name, region := splitDisplayName(p.DisplayName)
		out = append(out, weather.LocationRecord{
			Key:       weather.FormatLocationKey(lat, lon),
			Name:      name,
			Region:    region,
			Country:   "US",
			Latitude:  lat,
			Longitude: lon,
		})
	}
	return out, nil
}

// splitDisplayName keeps the first two comma-separated parts as the name and
// returns the second part as the region.
func splitDisplayName(display string) (name, region string) {
	parts := strings.Split(display, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	switch {
	case len(parts) >= 2:
		return parts[0] + ", " + parts[1], parts[1]
	case len(parts) == 1 && parts[0] != "":
		return parts[0], ""
	default:
		return "Unknown", ""
	}
}
