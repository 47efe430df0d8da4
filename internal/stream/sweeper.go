package stream

import (
	"time"

	"go.uber.org/zap"

	"github.com/i474232898/weather-stream/internal/metrics"
)

// HeartbeatSweeper evicts connections that have not sent a heartbeat within
// the timeout.
type HeartbeatSweeper struct {
	registry *Registry
	timeout  time.Duration
	logger   *zap.Logger
}

func NewHeartbeatSweeper(registry *Registry, timeout time.Duration, logger *zap.Logger) *HeartbeatSweeper {
	return &HeartbeatSweeper{
		registry: registry,
		timeout:  timeout,
		logger:   logger.Named("heartbeat_sweeper"),
	}
}

// Sweep removes every expired connection and returns their ids.
func (s *HeartbeatSweeper) Sweep() []string {
	var removed []string
	for _, conn := range s.registry.Snapshot() {
		if !s.registry.IsExpired(conn, s.timeout) {
			continue
		}
		if s.registry.RemoveIfExpired(conn.ID, s.timeout) {
			removed = append(removed, conn.ID)
			metrics.ConnectionsTotal.WithLabelValues("expired").Inc()
		}
	}

	if len(removed) > 0 {
		s.logger.Info("removed expired connections", zap.Strings("connection_ids", removed))
	}
	return removed
}
