// Package weathertest provides an in-memory weather.Provider for tests.
package weathertest

import (
	"context"
	"errors"
	"sync"

	"github.com/i474232898/weather-stream/internal/weather"
)

// ErrUnavailable is the default failure returned when a fake is told to fail.
var ErrUnavailable = errors.New("provider unavailable")

// Provider is a scriptable weather.Provider. Zero value is usable; every
// method returns empty results until configured. Safe for concurrent use.
type Provider struct {
	mu sync.Mutex

	Locations map[string][]weather.LocationRecord
	Current   map[string]weather.CurrentWeather
	Daily     map[string][]weather.DailyForecast
	Hourly    map[string][]weather.HourlyForecast

	// alerts holds a queue of responses per location; the last one repeats.
	alerts    map[string][][]weather.Alert
	alertErrs map[string]error

	CurrentErr error
	AlertsErr  error
	SearchErr  error

	calls map[string]int
}

// New returns an empty fake provider.
func New() *Provider {
	return &Provider{
		Locations: make(map[string][]weather.LocationRecord),
		Current:   make(map[string]weather.CurrentWeather),
		Daily:     make(map[string][]weather.DailyForecast),
		Hourly:    make(map[string][]weather.HourlyForecast),
		alerts:    make(map[string][][]weather.Alert),
		alertErrs: make(map[string]error),
		calls:     make(map[string]int),
	}
}

// SetCurrent sets the current weather for key.
func (p *Provider) SetCurrent(key string, cw weather.CurrentWeather) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Current[key] = cw
}

// SetAlerts queues successive ActiveAlerts responses for key. Once the queue
// drains to its final element that response is repeated.
func (p *Provider) SetAlerts(key string, responses ...[]weather.Alert) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts[key] = responses
}

// FailCurrent makes CurrentWeather fail with err (nil clears).
func (p *Provider) FailCurrent(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CurrentErr = err
}

// FailAlerts makes ActiveAlerts fail with err (nil clears).
func (p *Provider) FailAlerts(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.AlertsErr = err
}

// FailAlertsFor makes ActiveAlerts fail with err for key only (nil clears).
func (p *Provider) FailAlertsFor(key string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.alertErrs, key)
		return
	}
	p.alertErrs[key] = err
}

// Calls returns how many times op was invoked.
func (p *Provider) Calls(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[op]
}

func (p *Provider) Name() string { return "fake" }

func (p *Provider) SearchLocations(_ context.Context, query, _ string) ([]weather.LocationRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["search"]++
	if p.SearchErr != nil {
		return nil, p.SearchErr
	}
	return p.Locations[query], nil
}

func (p *Provider) CurrentWeather(_ context.Context, key string) (weather.CurrentWeather, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["current"]++
	if p.CurrentErr != nil {
		return weather.CurrentWeather{}, p.CurrentErr
	}
	cw, ok := p.Current[key]
	if !ok {
		return weather.CurrentWeather{}, weather.ErrNoData
	}
	return cw, nil
}

func (p *Provider) DailyForecast(_ context.Context, key string, _ int) ([]weather.DailyForecast, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["daily"]++
	return p.Daily[key], nil
}

func (p *Provider) HourlyForecast(_ context.Context, key string, _ int) ([]weather.HourlyForecast, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["hourly"]++
	return p.Hourly[key], nil
}

func (p *Provider) ActiveAlerts(_ context.Context, key string) ([]weather.Alert, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["alerts"]++
	if p.AlertsErr != nil {
		return nil, p.AlertsErr
	}
	if err := p.alertErrs[key]; err != nil {
		return nil, err
	}
	queue := p.alerts[key]
	if len(queue) == 0 {
		return nil, nil
	}
	next := queue[0]
	if len(queue) > 1 {
		p.alerts[key] = queue[1:]
	}
	out := make([]weather.Alert, len(next))
	copy(out, next)
	return out, nil
}
