package stream

import (
	"context"
	"fmt"
	"sync"

	"github.com/i474232898/weather-stream/internal/metrics"
	"github.com/i474232898/weather-stream/internal/store"
	"github.com/i474232898/weather-stream/internal/weather"
)

// NewAlerts returns the alerts in fresh whose id is not in cached, in fresh's order.
func NewAlerts(cached, fresh []weather.Alert) []weather.Alert {
	seen := make(map[string]struct{}, len(cached)+len(fresh))
	for _, a := range cached {
		seen[a.ID] = struct{}{}
	}

	var out []weather.Alert
	for _, a := range fresh {
		if _, ok := seen[a.ID]; ok {
			continue
		}
		seen[a.ID] = struct{}{}
		out = append(out, a)
	}
	return out
}

// AlertTracker computes alert deltas against an AlertCache. Diff and replace
// for one location run under that location's lock, so two concurrent checks
// never both report the same alert as new.
type AlertTracker struct {
	cache store.AlertCache

	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewAlertTracker creates a tracker over cache.
func NewAlertTracker(cache store.AlertCache) *AlertTracker {
	return &AlertTracker{
		cache: cache,
		locks: make(map[string]*keyLock),
	}
}

// Reconcile replaces the cached list for locationKey with fresh and returns
// the alerts that were not cached before.
func (t *AlertTracker) Reconcile(ctx context.Context, locationKey string, fresh []weather.Alert) ([]weather.Alert, error) {
	unlock := t.lock(locationKey)
	defer unlock()

	cached, ok, err := t.cache.Get(ctx, locationKey)
	if err != nil {
		metrics.CacheOperationsTotal.WithLabelValues("alerts", "error").Inc()
		return nil, fmt.Errorf("read alert cache for %s: %w", locationKey, err)
	}
	if ok {
		metrics.CacheOperationsTotal.WithLabelValues("alerts", "hit").Inc()
	} else {
		metrics.CacheOperationsTotal.WithLabelValues("alerts", "miss").Inc()
	}

	added := NewAlerts(cached, fresh)

	if err := t.cache.Replace(ctx, locationKey, fresh); err != nil {
		metrics.CacheOperationsTotal.WithLabelValues("alerts", "error").Inc()
		return nil, fmt.Errorf("write alert cache for %s: %w", locationKey, err)
	}

	return added, nil
}

// Cached returns the alerts last stored for locationKey.
func (t *AlertTracker) Cached(ctx context.Context, locationKey string) ([]weather.Alert, bool, error) {
	return t.cache.Get(ctx, locationKey)
}

func (t *AlertTracker) lock(key string) func() {
	t.mu.Lock()
	l, ok := t.locks[key]
	if !ok {
		l = &keyLock{}
		t.locks[key] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, key)
		}
		t.mu.Unlock()
	}
}
