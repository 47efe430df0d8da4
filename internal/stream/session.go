package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/i474232898/weather-stream/internal/metrics"
	"github.com/i474232898/weather-stream/internal/weather"
)

// EmitFunc hands one event to the transport. A non-nil error ends the session.
type EmitFunc func(Event) error

// errSessionOver ends a session after its terminal event was emitted.
var errSessionOver = errors.New("session over")

type session struct {
	m      *Manager
	conn   Connection
	outbox <-chan Event
	emit   EmitFunc
	logger *zap.Logger

	lastAlertCheck time.Time
	lastWeather    time.Time

	// shown holds the alert ids sent in the opening snapshot until the first
	// periodic check, so a concurrent broadcast of the same ids is dropped.
	shown map[string]struct{}
}

// Stream runs the session for a registered connection: the initial weather
// and alert snapshot, then heartbeats, alert deltas and weather refreshes
// until the context is cancelled, the connection is evicted, a fetch fails
// or the manager stops. The connection is removed when Stream returns.
func (m *Manager) Stream(ctx context.Context, id string, emit EmitFunc) error {
	conn, ok := m.registry.Get(id)
	if !ok {
		return ErrConnectionNotFound
	}
	outbox, ok := m.registry.events(id)
	if !ok {
		return ErrConnectionNotFound
	}

	s := &session{
		m:      m,
		conn:   conn,
		outbox: outbox,
		emit:   emit,
		logger: m.logger.With(zap.String("connection_id", id), zap.String("location", conn.LocationKey)),
	}
	defer s.close()

	err := s.open(ctx)
	if err == nil {
		err = s.run(ctx)
	}
	if errors.Is(err, errSessionOver) {
		return nil
	}
	return err
}

func (s *session) now() time.Time {
	return s.m.opts.Now()
}

func (s *session) close() {
	if s.m.registry.release(s.conn.ID, s.outbox) {
		metrics.ConnectionsTotal.WithLabelValues("closed").Inc()
	}
	s.logger.Info("stream closed")
}

func (s *session) fail(msg string, err error) error {
	s.logger.Warn(msg, zap.Error(err))
	if emitErr := s.emit(ErrorEvent{
		Timestamp: s.now().UTC(),
		Message:   fmt.Sprintf("%s: %v", msg, err),
	}); emitErr != nil {
		return emitErr
	}
	return errSessionOver
}

// open emits the initial snapshot. Only a failed weather fetch is fatal.
func (s *session) open(ctx context.Context) error {
	key := s.conn.LocationKey

	cw, err := s.m.source.CurrentWeather(ctx, key)
	if err != nil {
		return s.fail("failed to get initial weather data", err)
	}
	now := s.now()
	if err := s.emit(CurrentWeatherEvent{LocationKey: key, Timestamp: now.UTC(), Weather: cw}); err != nil {
		return err
	}
	s.lastWeather = now
	s.lastAlertCheck = now

	alerts, err := s.m.source.ActiveAlerts(ctx, key)
	if err != nil {
		metrics.AlertChecksTotal.WithLabelValues(originSession, "failure").Inc()
		s.logger.Warn("initial alert check failed", zap.Error(err))
		return s.emit(AlertStatusEvent{
			LocationKey: key,
			Timestamp:   s.now().UTC(),
			Message:     "Alert data is currently unavailable",
			Status:      StatusInfo,
		})
	}

	matching := s.conn.Filter(alerts)
	if len(matching) > 0 {
		if err := s.emit(AlertBatchEvent{LocationKey: key, Timestamp: s.now().UTC(), Alerts: matching}); err != nil {
			return err
		}
		s.shown = make(map[string]struct{}, len(matching))
		for _, a := range matching {
			s.shown[a.ID] = struct{}{}
		}
	}

	// Seed the cache with the unfiltered list. Alerts new to the cache also
	// go to the location's other subscribers.
	if _, err := s.m.monitor.apply(ctx, key, originSession, s.conn.ID, alerts); err != nil {
		s.logger.Warn("seeding alert cache failed", zap.Error(err))
	}

	status := AlertStatusEvent{LocationKey: key, Timestamp: s.now().UTC()}
	if len(matching) > 0 {
		status.Status = StatusSuccess
		status.Message = fmt.Sprintf("Found %d active alert(s)", len(matching))
	} else {
		status.Status = StatusInfo
		status.Message = "No active alerts available"
	}
	return s.emit(status)
}

func (s *session) run(ctx context.Context) error {
	done := s.m.doneChan()

	ticker := time.NewTicker(s.m.opts.SessionTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			return nil
		case ev, ok := <-s.outbox:
			if !ok {
				s.logger.Info("connection no longer registered")
				return nil
			}
			if ev = s.unseen(ev); ev == nil {
				continue
			}
			if err := s.emit(ev); err != nil {
				return err
			}
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				return err
			}
		}
	}
}

func (s *session) tick(ctx context.Context) error {
	id := s.conn.ID
	if !s.m.registry.Contains(id) {
		return errSessionOver
	}

	now := s.now()
	if err := s.emit(HeartbeatEvent{Timestamp: now.UTC(), ConnectionID: id}); err != nil {
		return err
	}
	s.m.registry.UpdateHeartbeat(id)

	if now.Sub(s.lastAlertCheck) >= s.m.opts.AlertCheckInterval {
		if _, err := s.m.monitor.Check(ctx, s.conn.LocationKey, originSession, ""); err != nil {
			return s.fail("alert check failed", err)
		}
		s.lastAlertCheck = now
		s.shown = nil
	}

	if now.Sub(s.lastWeather) >= s.m.opts.WeatherRefreshInterval {
		cw, err := s.m.source.CurrentWeather(ctx, s.conn.LocationKey)
		if err != nil {
			return s.fail("weather refresh failed", err)
		}
		if err := s.emit(CurrentWeatherEvent{LocationKey: s.conn.LocationKey, Timestamp: now.UTC(), Weather: cw}); err != nil {
			return err
		}
		s.lastWeather = now
	}

	return nil
}

// unseen strips alerts already sent in the opening snapshot from an alert
// batch. It returns nil when nothing is left to send.
func (s *session) unseen(ev Event) Event {
	batch, ok := ev.(AlertBatchEvent)
	if !ok || len(s.shown) == 0 {
		return ev
	}

	fresh := make([]weather.Alert, 0, len(batch.Alerts))
	for _, a := range batch.Alerts {
		if _, dup := s.shown[a.ID]; !dup {
			fresh = append(fresh, a)
		}
	}
	if len(fresh) == 0 {
		s.logger.Debug("dropped alert batch already in snapshot", zap.Strings("alert_ids", weather.AlertIDs(batch.Alerts)))
		return nil
	}
	batch.Alerts = fresh
	return batch
}
