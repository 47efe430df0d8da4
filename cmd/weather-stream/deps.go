package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	httpapi "github.com/i474232898/weather-stream/internal/api/http"
	"github.com/i474232898/weather-stream/internal/config"
	"github.com/i474232898/weather-stream/internal/logging"
	"github.com/i474232898/weather-stream/internal/notify"
	"github.com/i474232898/weather-stream/internal/store"
	redisstore "github.com/i474232898/weather-stream/internal/store/redis"
	"github.com/i474232898/weather-stream/internal/weather"
	"github.com/i474232898/weather-stream/internal/weather/providers"
)

// deps holds the process-wide components shared by every subcommand.
type deps struct {
	cfg      *config.AppConfig
	logger   *zap.Logger
	provider *providers.NWSProvider
	service  *weather.Service
	closers  []func() error
}

func loadDeps() (*deps, error) {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Debug)
	if err != nil {
		return nil, err
	}

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	var geocoder weather.Geocoder
	if cfg.GoogleGeocoderAPIKey != "" {
		geocoder = providers.NewGoogleGeocoder(cfg.GoogleGeocoderAPIKey)
	} else {
		geocoder = providers.NewNominatimGeocoder(httpClient, cfg.GeocoderBaseURL, cfg.UserAgent)
	}

	// NWS provider with resilience (backoff + circuit breaker).
	provider, err := providers.NewNWSProvider(httpClient, geocoder, providers.NWSOptions{
		BaseURL:       cfg.NWSBaseURL,
		UserAgent:     cfg.UserAgent,
		GridCacheSize: cfg.CacheMaxSize,
	}, logger)
	if err != nil {
		return nil, err
	}

	return &deps{
		cfg:      cfg,
		logger:   logger,
		provider: provider,
		service:  weather.NewService(provider, logger),
	}, nil
}

// alertCache builds the configured alert cache backend. Redis also yields a
// readiness check.
func (d *deps) alertCache(ctx context.Context) (store.AlertCache, []httpapi.ReadinessCheck, error) {
	switch d.cfg.AlertCacheBackend {
	case "redis":
		cache, err := redisstore.NewAlertCache(ctx, redisstore.Options{
			Addr:     d.cfg.RedisAddr,
			Password: d.cfg.RedisPassword,
			DB:       d.cfg.RedisDB,
			TTL:      24 * time.Hour,
		})
		if err != nil {
			return nil, nil, err
		}
		d.closers = append(d.closers, cache.Close)
		d.logger.Info("using redis alert cache", zap.String("addr", d.cfg.RedisAddr))
		return cache, []httpapi.ReadinessCheck{{Name: "redis", Check: cache.Ping}}, nil
	case "memory":
		return store.NewMemoryAlertCache(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown alert cache backend %q", d.cfg.AlertCacheBackend)
	}
}

func (d *deps) publisher() notify.Publisher {
	if len(d.cfg.KafkaBrokers) == 0 {
		return notify.Nop{}
	}
	// The stream manager owns the publisher and closes it.
	p := notify.NewKafkaPublisher(d.cfg.KafkaBrokers, d.cfg.KafkaAlertTopic)
	d.logger.Info("publishing new alerts to kafka",
		zap.Strings("brokers", d.cfg.KafkaBrokers),
		zap.String("topic", d.cfg.KafkaAlertTopic))
	return p
}

func (d *deps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			d.logger.Warn("error during shutdown", zap.Error(err))
		}
	}
	_ = d.logger.Sync()
}
