// Package redis provides a Redis-backed store.AlertCache so that several
// stream instances can share deduplication state.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/i474232898/weather-stream/internal/weather"
)

const prefixAlerts = "weather-stream:alerts:"

// Options configures NewAlertCache.
type Options struct {
	Addr     string
	Password string
	DB       int
	// TTL bounds how long an entry outlives its last replacement. Zero keeps
	// entries until they are replaced or deleted.
	TTL time.Duration
}

// AlertCache implements store.AlertCache using Redis string keys holding the
// JSON-encoded alert list.
type AlertCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewAlertCache connects to Redis and verifies the connection.
func NewAlertCache(ctx context.Context, opts Options) (*AlertCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &AlertCache{client: client, ttl: opts.TTL}, nil
}

func alertsKey(locationKey string) string {
	return prefixAlerts + locationKey
}

// Get returns the cached alerts for a location.
func (c *AlertCache) Get(ctx context.Context, locationKey string) ([]weather.Alert, bool, error) {
	data, err := c.client.Get(ctx, alertsKey(locationKey)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get alerts: %w", err)
	}

	var alerts []weather.Alert
	if err := json.Unmarshal(data, &alerts); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal alerts: %w", err)
	}

	return alerts, true, nil
}

// Replace overwrites the cached alerts for a location.
func (c *AlertCache) Replace(ctx context.Context, locationKey string, alerts []weather.Alert) error {
	if alerts == nil {
		alerts = []weather.Alert{}
	}
	data, err := json.Marshal(alerts)
	if err != nil {
		return fmt.Errorf("failed to marshal alerts: %w", err)
	}

	if err := c.client.Set(ctx, alertsKey(locationKey), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set alerts: %w", err)
	}

	return nil
}

// Ping checks connectivity; used by the readiness probe.
func (c *AlertCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (c *AlertCache) Close() error {
	return c.client.Close()
}
