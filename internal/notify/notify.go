// Package notify publishes newly detected alerts to downstream systems.
package notify

import (
	"context"

	"github.com/i474232898/weather-stream/internal/weather"
)

// Publisher receives each batch of new alerts once per detection, regardless
// of how many stream connections the batch is fanned out to.
type Publisher interface {
	PublishAlerts(ctx context.Context, locationKey string, alerts []weather.Alert) error
	Close() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) PublishAlerts(context.Context, string, []weather.Alert) error { return nil }
func (Nop) Close() error                                                 { return nil }
