package weather

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	MaxForecastDays  = 7
	MaxForecastHours = 168

	defaultLanguage = "en-us"
)

// Service is the request/response layer shared by the REST routes and the
// MCP tools. It validates arguments and delegates to the Provider.
type Service struct {
	provider Provider
	logger   *zap.Logger
}

// NewService creates a new Service.
func NewService(provider Provider, logger *zap.Logger) *Service {
	return &Service{
		provider: provider,
		logger:   logger.Named("weather"),
	}
}

// ProviderName reports which upstream backs this service.
func (s *Service) ProviderName() string {
	return s.provider.Name()
}

// SearchLocations returns every location matching query.
func (s *Service) SearchLocations(ctx context.Context, query, language string) ([]LocationRecord, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query must not be empty", ErrInvalidArgument)
	}
	if language == "" {
		language = defaultLanguage
	}
	return s.provider.SearchLocations(ctx, query, language)
}

// ResolveLocation returns the best match for query.
func (s *Service) ResolveLocation(ctx context.Context, query string) (LocationRecord, error) {
	locs, err := s.SearchLocations(ctx, query, defaultLanguage)
	if err != nil {
		return LocationRecord{}, err
	}
	if len(locs) == 0 {
		return LocationRecord{}, fmt.Errorf("%w: %q", ErrLocationNotFound, query)
	}

	s.logger.Debug("resolved location",
		zap.String("query", query),
		zap.String("key", locs[0].Key),
		zap.String("name", locs[0].Name))
	return locs[0], nil
}

// CurrentWeather returns the latest conditions for a location key.
func (s *Service) CurrentWeather(ctx context.Context, locationKey string) (CurrentWeather, error) {
	if _, _, err := ParseLocationKey(locationKey); err != nil {
		return CurrentWeather{}, err
	}
	return s.provider.CurrentWeather(ctx, locationKey)
}

// DailyForecast returns up to days (1..7) daily entries.
func (s *Service) DailyForecast(ctx context.Context, locationKey string, days int) ([]DailyForecast, error) {
	if days < 1 || days > MaxForecastDays {
		return nil, fmt.Errorf("%w: days must be between 1 and %d", ErrInvalidArgument, MaxForecastDays)
	}
	if _, _, err := ParseLocationKey(locationKey); err != nil {
		return nil, err
	}

	forecast, err := s.provider.DailyForecast(ctx, locationKey, days)
	if err != nil {
		return nil, err
	}
	if len(forecast) > days {
		forecast = forecast[:days]
	}
	return forecast, nil
}

// HourlyForecast returns up to hours (1..168) hourly entries.
func (s *Service) HourlyForecast(ctx context.Context, locationKey string, hours int) ([]HourlyForecast, error) {
	if hours < 1 || hours > MaxForecastHours {
		return nil, fmt.Errorf("%w: hours must be between 1 and %d", ErrInvalidArgument, MaxForecastHours)
	}
	if _, _, err := ParseLocationKey(locationKey); err != nil {
		return nil, err
	}

	forecast, err := s.provider.HourlyForecast(ctx, locationKey, hours)
	if err != nil {
		return nil, err
	}
	if len(forecast) > hours {
		forecast = forecast[:hours]
	}
	return forecast, nil
}

// Alerts returns the active alerts for a location key.
func (s *Service) Alerts(ctx context.Context, locationKey string) ([]Alert, error) {
	if _, _, err := ParseLocationKey(locationKey); err != nil {
		return nil, err
	}
	return s.provider.ActiveAlerts(ctx, locationKey)
}

// WeatherFor resolves query (ZIP code or place name) and returns its current weather.
func (s *Service) WeatherFor(ctx context.Context, query string) (LocationRecord, CurrentWeather, error) {
	loc, err := s.ResolveLocation(ctx, query)
	if err != nil {
		return LocationRecord{}, CurrentWeather{}, err
	}
	cw, err := s.provider.CurrentWeather(ctx, loc.Key)
	if err != nil {
		return loc, CurrentWeather{}, err
	}
	return loc, cw, nil
}

// ForecastFor resolves query and returns its daily forecast.
func (s *Service) ForecastFor(ctx context.Context, query string, days int) (LocationRecord, []DailyForecast, error) {
	loc, err := s.ResolveLocation(ctx, query)
	if err != nil {
		return LocationRecord{}, nil, err
	}
	forecast, err := s.DailyForecast(ctx, loc.Key, days)
	if err != nil {
		return loc, nil, err
	}
	return loc, forecast, nil
}

// AlertsFor resolves query and returns its active alerts.
func (s *Service) AlertsFor(ctx context.Context, query string) (LocationRecord, []Alert, error) {
	loc, err := s.ResolveLocation(ctx, query)
	if err != nil {
		return LocationRecord{}, nil, err
	}
	alerts, err := s.provider.ActiveAlerts(ctx, loc.Key)
	if err != nil {
		return loc, nil, err
	}
	return loc, alerts, nil
}
