package store

import (
	"context"
	"sync"

	"github.com/i474232898/weather-stream/internal/weather"
)

// MemoryAlertCache is a concurrency-safe in-memory AlertCache.
type MemoryAlertCache struct {
	mu sync.RWMutex

	// key: location key, value: alerts as of the last successful check
	data map[string][]weather.Alert
}

// NewMemoryAlertCache creates an empty MemoryAlertCache.
func NewMemoryAlertCache() *MemoryAlertCache {
	return &MemoryAlertCache{
		data: make(map[string][]weather.Alert),
	}
}

// Get returns a copy of the cached alerts for a location.
func (s *MemoryAlertCache) Get(_ context.Context, locationKey string) ([]weather.Alert, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	alerts, ok := s.data[locationKey]
	if !ok {
		return nil, false, nil
	}
	return cloneAlerts(alerts), true, nil
}

// Replace overwrites the entry for a location with alerts.
func (s *MemoryAlertCache) Replace(_ context.Context, locationKey string, alerts []weather.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[locationKey] = cloneAlerts(alerts)
	return nil
}

func cloneAlerts(alerts []weather.Alert) []weather.Alert {
	out := make([]weather.Alert, len(alerts))
	copy(out, alerts)
	return out
}
