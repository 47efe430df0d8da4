package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/i474232898/weather-stream/internal/metrics"
	"github.com/i474232898/weather-stream/internal/weather"
)

// ErrQueueFull is returned by Async.PublishAlerts when the queue has no room.
var ErrQueueFull = errors.New("publish queue full")

// ErrClosed is returned by Async.PublishAlerts after Close.
var ErrClosed = errors.New("publisher closed")

type batch struct {
	locationKey string
	alerts      []weather.Alert
}

// Async hands batches to a single worker that publishes them through next,
// so callers never wait on the downstream system.
type Async struct {
	next    Publisher
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.RWMutex
	queue  chan batch
	closed bool

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewAsync starts the worker. size bounds queued batches and timeout bounds
// each downstream publish.
func NewAsync(next Publisher, size int, timeout time.Duration, logger *zap.Logger) *Async {
	if size <= 0 {
		size = 1
	}
	a := &Async{
		next:    next,
		timeout: timeout,
		logger:  logger.Named("publisher"),
		queue:   make(chan batch, size),
		done:    make(chan struct{}),
	}
	go a.loop()
	return a
}

// PublishAlerts enqueues a copy of alerts. The context is not used for the
// downstream write.
func (a *Async) PublishAlerts(_ context.Context, locationKey string, alerts []weather.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}

	b := batch{locationKey: locationKey, alerts: append([]weather.Alert(nil), alerts...)}
	select {
	case a.queue <- b:
		return nil
	default:
		metrics.AlertPublishesTotal.WithLabelValues("dropped").Inc()
		return ErrQueueFull
	}
}

func (a *Async) loop() {
	defer close(a.done)
	for b := range a.queue {
		a.publish(b)
	}
}

func (a *Async) publish(b batch) {
	ctx := context.Background()
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	if err := a.next.PublishAlerts(ctx, b.locationKey, b.alerts); err != nil {
		metrics.AlertPublishesTotal.WithLabelValues("failure").Inc()
		a.logger.Warn("publish alerts failed",
			zap.String("location", b.locationKey),
			zap.Strings("alert_ids", weather.AlertIDs(b.alerts)),
			zap.Error(err))
		return
	}
	metrics.AlertPublishesTotal.WithLabelValues("success").Inc()
}

// Close stops accepting batches, waits for the queued ones to be published
// and closes next.
func (a *Async) Close() error {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.queue)
		a.mu.Unlock()

		<-a.done
		a.closeErr = a.next.Close()
	})
	return a.closeErr
}
