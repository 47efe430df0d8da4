// Package stream implements live weather streams: the connection registry,
// alert deduplication, the background heartbeat sweeper and alert monitor,
// and the per-connection session that produces a stream's events.
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/i474232898/weather-stream/internal/metrics"
	"github.com/i474232898/weather-stream/internal/notify"
	"github.com/i474232898/weather-stream/internal/scheduler"
	"github.com/i474232898/weather-stream/internal/store"
)

var (
	// ErrConnectionNotFound is returned by Stream for an id that is not registered.
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrTooManyConnections is returned by Register when the connection cap is reached.
	ErrTooManyConnections = errors.New("too many stream connections")
)

// Options tunes the manager's timers. Zero fields take DefaultOptions values.
type Options struct {
	// HeartbeatInterval is the sweeper period.
	HeartbeatInterval time.Duration
	// ExpiryTimeout is how long a connection may go without a heartbeat.
	ExpiryTimeout time.Duration
	// AlertPollInterval is the alert monitor period.
	AlertPollInterval time.Duration

	// SessionTick is how often a session emits a heartbeat.
	SessionTick time.Duration
	// AlertCheckInterval is the minimum time between a session's alert checks.
	AlertCheckInterval time.Duration
	// WeatherRefreshInterval is the minimum time between weather refreshes.
	WeatherRefreshInterval time.Duration

	// MaxConnections caps live connections; zero means unlimited.
	MaxConnections int
	// OutboxSize is the per-connection queue for broadcast events.
	OutboxSize int
	// MonitorConcurrency bounds parallel location polls per monitor cycle.
	MonitorConcurrency int

	// PublishQueueSize bounds new-alert batches waiting for the publisher.
	PublishQueueSize int
	// PublishTimeout bounds one downstream publish.
	PublishTimeout time.Duration

	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// DefaultOptions returns the production timer settings.
func DefaultOptions() Options {
	return Options{
		HeartbeatInterval:      30 * time.Second,
		ExpiryTimeout:          300 * time.Second,
		AlertPollInterval:      60 * time.Second,
		SessionTick:            30 * time.Second,
		AlertCheckInterval:     60 * time.Second,
		WeatherRefreshInterval: 120 * time.Second,
		MaxConnections:         100,
		OutboxSize:             16,
		MonitorConcurrency:     8,
		PublishQueueSize:       256,
		PublishTimeout:         10 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = def.HeartbeatInterval
	}
	if o.ExpiryTimeout <= 0 {
		o.ExpiryTimeout = def.ExpiryTimeout
	}
	if o.AlertPollInterval <= 0 {
		o.AlertPollInterval = def.AlertPollInterval
	}
	if o.SessionTick <= 0 {
		o.SessionTick = def.SessionTick
	}
	if o.AlertCheckInterval <= 0 {
		o.AlertCheckInterval = def.AlertCheckInterval
	}
	if o.WeatherRefreshInterval <= 0 {
		o.WeatherRefreshInterval = def.WeatherRefreshInterval
	}
	if o.OutboxSize <= 0 {
		o.OutboxSize = def.OutboxSize
	}
	if o.MonitorConcurrency <= 0 {
		o.MonitorConcurrency = def.MonitorConcurrency
	}
	if o.PublishQueueSize <= 0 {
		o.PublishQueueSize = def.PublishQueueSize
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = def.PublishTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Status is the administrative view of the manager.
type Status struct {
	Running            bool `json:"running"`
	ActiveConnections  int  `json:"active_connections"`
	MonitoredLocations int  `json:"monitored_locations"`
	MaxConnections     int  `json:"max_connections"`
}

// Manager owns the registry, the alert cache and the two background jobs.
// Construct one per process and inject it into the transport.
type Manager struct {
	opts      Options
	source    Source
	registry  *Registry
	tracker   *AlertTracker
	monitor   *AlertMonitor
	sweeper   *HeartbeatSweeper
	scheduler *scheduler.Scheduler
	publisher notify.Publisher
	logger    *zap.Logger

	// registerMu makes the connection cap check and insert atomic.
	registerMu sync.Mutex

	mu      sync.Mutex
	running bool
	// done is closed whenever the manager is not running.
	done chan struct{}
}

// NewManager builds a stopped manager. A real publisher is wrapped in a
// notify.Async owned by the manager and closed by Close.
func NewManager(source Source, cache store.AlertCache, publisher notify.Publisher, opts Options, logger *zap.Logger) *Manager {
	opts = opts.withDefaults()
	logger = logger.Named("stream")

	switch publisher.(type) {
	case nil, notify.Nop:
		publisher = notify.Nop{}
	default:
		publisher = notify.NewAsync(publisher, opts.PublishQueueSize, opts.PublishTimeout, logger)
	}

	registry := NewRegistry(opts.Now, opts.OutboxSize)
	tracker := NewAlertTracker(cache)

	m := &Manager{
		opts:      opts,
		source:    source,
		registry:  registry,
		tracker:   tracker,
		monitor:   NewAlertMonitor(registry, source, tracker, publisher, opts.MonitorConcurrency, logger),
		sweeper:   NewHeartbeatSweeper(registry, opts.ExpiryTimeout, logger),
		scheduler: scheduler.New(logger),
		publisher: publisher,
		logger:    logger,
		done:      closedChan(),
	}

	m.scheduler.Add("heartbeat_sweeper", opts.HeartbeatInterval, func(context.Context) {
		m.sweeper.Sweep()
	})
	m.scheduler.Add("alert_monitor", opts.AlertPollInterval, func(ctx context.Context) {
		m.monitor.Tick(ctx)
	})

	return m
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Start launches the background jobs. Starting a running manager is a no-op.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}
	if err := m.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start stream jobs: %w", err)
	}

	m.done = make(chan struct{})
	m.running = true

	m.logger.Info("stream manager started",
		zap.Duration("heartbeat_interval", m.opts.HeartbeatInterval),
		zap.Duration("alert_poll_interval", m.opts.AlertPollInterval))
	return nil
}

// Stop ends every session's active loop, cancels both background jobs and
// waits for them to finish. Stopping a stopped manager is a no-op.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.done)
	m.mu.Unlock()

	m.scheduler.Stop()
	m.logger.Info("stream manager stopped")
}

// Close stops the manager and flushes and closes the publisher.
func (m *Manager) Close() error {
	m.Stop()
	if err := m.publisher.Close(); err != nil {
		return fmt.Errorf("close publisher: %w", err)
	}
	return nil
}

// Running reports whether Start has been called without a matching Stop.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) doneChan() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}

// Register adds a connection for locationKey. An empty id gets a generated one.
func (m *Manager) Register(id, locationKey string, meta Meta, categories []string) (Connection, error) {
	if id == "" {
		id = uuid.NewString()
	}

	m.registerMu.Lock()
	defer m.registerMu.Unlock()

	if m.opts.MaxConnections > 0 && !m.registry.Contains(id) && m.registry.Count() >= m.opts.MaxConnections {
		metrics.ConnectionsTotal.WithLabelValues("rejected").Inc()
		return Connection{}, ErrTooManyConnections
	}

	conn := m.registry.Add(id, locationKey, meta, categories)
	metrics.ConnectionsTotal.WithLabelValues("opened").Inc()

	m.logger.Info("connection registered",
		zap.String("connection_id", conn.ID),
		zap.String("location", locationKey),
		zap.Strings("alert_categories", conn.AlertCategories))
	return conn, nil
}

// Heartbeat records a client heartbeat. Unknown ids are ignored; the result
// reports whether the id was known.
func (m *Manager) Heartbeat(id string) bool {
	return m.registry.UpdateHeartbeat(id)
}

// Status returns connection counts and the running flag.
func (m *Manager) Status() Status {
	return Status{
		Running:            m.Running(),
		ActiveConnections:  m.registry.Count(),
		MonitoredLocations: m.registry.LocationCount(),
		MaxConnections:     m.opts.MaxConnections,
	}
}

// Registry exposes the connection registry for read access.
func (m *Manager) Registry() *Registry { return m.registry }

// Monitor exposes the alert monitor.
func (m *Manager) Monitor() *AlertMonitor { return m.monitor }

// Sweeper exposes the heartbeat sweeper.
func (m *Manager) Sweeper() *HeartbeatSweeper { return m.sweeper }

// Tracker exposes the alert tracker.
func (m *Manager) Tracker() *AlertTracker { return m.tracker }
