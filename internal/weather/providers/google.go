package providers

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/weather-stream/internal/metrics"
	"github.com/i474232898/weather-stream/internal/weather"
)

// geocoder.ApiKey is package-global state.
var googleKeyMu sync.Mutex

// GoogleGeocoder resolves places through the Google Geocoding API. It returns
// at most one match per query.
type GoogleGeocoder struct {
	apiKey string

	// lookup and reverse are swapped out in tests.
	lookup  func(geocoder.Address) (geocoder.Location, error)
	reverse func(geocoder.Location) ([]geocoder.Address, error)
}

func NewGoogleGeocoder(apiKey string) *GoogleGeocoder {
	return &GoogleGeocoder{
		apiKey:  apiKey,
		lookup:  geocoder.Geocoding,
		reverse: geocoder.GeocodingReverse,
	}
}

type googleResult struct {
	loc weather.LocationRecord
	err error
}

func (g *GoogleGeocoder) Geocode(ctx context.Context, query string) ([]weather.LocationRecord, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty geocoding query", weather.ErrInvalidArgument)
	}
	if g.apiKey == "" {
		return nil, fmt.Errorf("google geocoder api key is not configured")
	}

	addr := geocoder.Address{Country: "United States"}
	if IsZipCode(query) {
		addr.PostalCode = query
	} else {
		addr.City = query
	}

	// The client library takes no context, so the call is raced against ctx.
	done := make(chan googleResult, 1)
	go func() {
		googleKeyMu.Lock()
		geocoder.ApiKey = g.apiKey
		loc, err := g.lookup(addr)
		var name string
		if err == nil {
			name = query
			if addrs, rerr := g.reverse(loc); rerr == nil && len(addrs) > 0 && addrs[0].FormattedAddress != "" {
				name = addrs[0].FormattedAddress
			}
		}
		googleKeyMu.Unlock()

		if err != nil {
			done <- googleResult{err: err}
			return
		}
		n, region := splitDisplayName(name)
		done <- googleResult{loc: weather.LocationRecord{
			Key:       weather.FormatLocationKey(loc.Latitude, loc.Longitude),
			Name:      n,
			Region:    region,
			Country:   "US",
			Latitude:  loc.Latitude,
			Longitude: loc.Longitude,
		}}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		if res.err != nil {
			metrics.UpstreamRequestsTotal.WithLabelValues("google", "geocode", "failure").Inc()
			// The library reports "no results" as an error.
			if strings.Contains(strings.ToLower(res.err.Error()), "zero_results") {
				return nil, nil
			}
			return nil, fmt.Errorf("geocode %q: %w", query, res.err)
		}
		metrics.UpstreamRequestsTotal.WithLabelValues("google", "geocode", "success").Inc()
		return []weather.LocationRecord{res.loc}, nil
	}
}
