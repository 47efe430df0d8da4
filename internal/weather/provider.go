package weather

import (
	"context"
	"errors"
)

var (
	// ErrLocationNotFound is returned when a query does not resolve to any location.
	ErrLocationNotFound = errors.New("location not found")

	// ErrInvalidArgument is returned for malformed keys or out-of-range parameters.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNoData is returned when the upstream answered but had nothing usable.
	ErrNoData = errors.New("no weather data available")
)

// Provider abstracts the geocoding + observation/forecast service (e.g. the
// National Weather Service backed by Nominatim).
type Provider interface {
	Name() string
	SearchLocations(ctx context.Context, query, language string) ([]LocationRecord, error)
	CurrentWeather(ctx context.Context, locationKey string) (CurrentWeather, error)
	DailyForecast(ctx context.Context, locationKey string, days int) ([]DailyForecast, error)
	HourlyForecast(ctx context.Context, locationKey string, hours int) ([]HourlyForecast, error)
	ActiveAlerts(ctx context.Context, locationKey string) ([]Alert, error)
}

// Geocoder turns a free-text query (place name or ZIP code) into locations.
type Geocoder interface {
	Geocode(ctx context.Context, query string) ([]LocationRecord, error)
}
