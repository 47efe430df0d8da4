// Package store holds the per-location alert cache used for alert
// deduplication.
package store

import (
	"context"

	"github.com/i474232898/weather-stream/internal/weather"
)

// AlertCache maps a location key to the alerts seen on the last successful
// check for it. Entries are always replaced wholesale, never merged.
type AlertCache interface {
	// Get returns the cached alerts and whether an entry exists.
	Get(ctx context.Context, locationKey string) ([]weather.Alert, bool, error)
	// Replace overwrites the entry for locationKey.
	Replace(ctx context.Context, locationKey string, alerts []weather.Alert) error
}
