package stream

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/weather-stream/internal/metrics"
	"github.com/i474232898/weather-stream/internal/notify"
	"github.com/i474232898/weather-stream/internal/weather"
)

// Source is the part of weather.Provider the stream consumes.
type Source interface {
	CurrentWeather(ctx context.Context, locationKey string) (weather.CurrentWeather, error)
	ActiveAlerts(ctx context.Context, locationKey string) ([]weather.Alert, error)
}

const (
	originMonitor = "monitor"
	originSession = "session"
)

// AlertMonitor polls every watched location for alerts and fans new ones out
// to the location's subscribers.
type AlertMonitor struct {
	registry    *Registry
	source      Source
	tracker     *AlertTracker
	publisher   notify.Publisher
	concurrency int
	now         func() time.Time
	logger      *zap.Logger
}

// NewAlertMonitor wires a monitor. concurrency bounds parallel location polls.
func NewAlertMonitor(registry *Registry, source Source, tracker *AlertTracker, publisher notify.Publisher, concurrency int, logger *zap.Logger) *AlertMonitor {
	if publisher == nil {
		publisher = notify.Nop{}
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &AlertMonitor{
		registry:    registry,
		source:      source,
		tracker:     tracker,
		publisher:   publisher,
		concurrency: concurrency,
		now:         registry.now,
		logger:      logger.Named("alert_monitor"),
	}
}

// Tick runs one monitoring cycle over the currently watched locations. A
// failure for one location does not stop the others.
func (m *AlertMonitor) Tick(ctx context.Context) {
	locations := m.registry.DistinctLocations()
	if len(locations) == 0 {
		return
	}

	var g errgroup.Group
	g.SetLimit(m.concurrency)

	for _, key := range locations {
		key := key
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("alert check panicked", zap.String("location", key), zap.Any("panic", r))
				}
			}()

			if _, err := m.Check(ctx, key, originMonitor, ""); err != nil {
				m.logger.Warn("alert check failed", zap.String("location", key), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	m.logger.Debug("alert monitor cycle complete", zap.Int("locations", len(locations)))
}

// Check fetches alerts for one location, updates the cache and broadcasts the
// new ones to every subscriber except exclude. It returns the new alerts.
func (m *AlertMonitor) Check(ctx context.Context, locationKey, origin, exclude string) ([]weather.Alert, error) {
	alerts, err := m.source.ActiveAlerts(ctx, locationKey)
	if err != nil {
		metrics.AlertChecksTotal.WithLabelValues(origin, "failure").Inc()
		return nil, fmt.Errorf("fetch alerts: %w", err)
	}
	return m.apply(ctx, locationKey, origin, exclude, alerts)
}

// apply reconciles an already fetched alert list.
func (m *AlertMonitor) apply(ctx context.Context, locationKey, origin, exclude string, alerts []weather.Alert) ([]weather.Alert, error) {
	added, err := m.tracker.Reconcile(ctx, locationKey, alerts)
	if err != nil {
		metrics.AlertChecksTotal.WithLabelValues(origin, "failure").Inc()
		return nil, err
	}
	metrics.AlertChecksTotal.WithLabelValues(origin, "success").Inc()

	if len(added) == 0 {
		return nil, nil
	}

	metrics.NewAlertsTotal.Add(float64(len(added)))
	m.logger.Info("new alerts detected",
		zap.String("location", locationKey),
		zap.Strings("alert_ids", weather.AlertIDs(added)))

	if err := m.publisher.PublishAlerts(ctx, locationKey, added); err != nil {
		m.logger.Warn("publish alerts failed", zap.String("location", locationKey), zap.Error(err))
	}

	m.Broadcast(locationKey, added, exclude)
	return added, nil
}

// Broadcast delivers alerts to each subscriber of locationKey, filtered by the
// subscriber's categories. Subscribers with nothing matching get nothing.
func (m *AlertMonitor) Broadcast(locationKey string, alerts []weather.Alert, exclude string) int {
	delivered := 0
	for _, id := range m.registry.SubscribersFor(locationKey) {
		if id == exclude {
			continue
		}
		conn, ok := m.registry.Get(id)
		if !ok {
			continue
		}
		matching := conn.Filter(alerts)
		if len(matching) == 0 {
			continue
		}

		ev := AlertBatchEvent{
			LocationKey: locationKey,
			Timestamp:   m.now().UTC(),
			Alerts:      matching,
		}
		if m.registry.Deliver(id, ev) {
			delivered++
			metrics.AlertDeliveriesTotal.WithLabelValues("delivered").Inc()
		} else {
			metrics.AlertDeliveriesTotal.WithLabelValues("dropped").Inc()
			m.logger.Warn("alert delivery dropped", zap.String("connection_id", id))
		}
	}
	return delivered
}
