package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/i474232898/weather-stream/internal/common"
)

var validate = validator.New()

type AppConfig struct {
	Host string `validate:"required"`
	Port int    `validate:"min=1,max=65535"`

	NWSBaseURL           string `validate:"required,url"`
	GeocoderBaseURL      string `validate:"required,url"`
	GoogleGeocoderAPIKey string
	UserAgent            string        `validate:"required"`
	HTTPTimeout          time.Duration `validate:"gt=0"`

	LogLevel string `validate:"oneof=DEBUG INFO WARNING ERROR CRITICAL"`
	Debug    bool

	// SSEHeartbeatInterval is how often idle stream connections are swept.
	SSEHeartbeatInterval time.Duration `validate:"gt=0"`
	SSEMaxConnections    int           `validate:"min=1"`

	// CacheMaxSize bounds the NWS grid-point cache.
	CacheMaxSize int `validate:"min=1"`

	AlertCacheBackend string `validate:"oneof=memory redis"`
	RedisAddr         string `validate:"required_if=AlertCacheBackend redis"`
	RedisPassword     string
	RedisDB           int `validate:"min=0"`

	// KafkaBrokers enables new-alert publication when non-empty.
	KafkaBrokers    []string
	KafkaAlertTopic string `validate:"required_with=KafkaBrokers"`
}

// Addr returns the HTTP listen address.
func (c *AppConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Load reads configuration from the environment (and a .env file if present)
// with sensible defaults, then validates it.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from the current environment only.
func FromEnv() (*AppConfig, error) {
	cfg := &AppConfig{
		Host:                 getenvDefault("HOST", "0.0.0.0"),
		Port:                 getenvInt("PORT", 8080),
		NWSBaseURL:           getenvDefault("NWS_BASE_URL", "https://api.weather.gov"),
		GeocoderBaseURL:      getenvDefault("GEOCODER_BASE_URL", "https://nominatim.openstreetmap.org"),
		GoogleGeocoderAPIKey: os.Getenv("GOOGLE_GEOCODER_API_KEY"),
		UserAgent:            getenvDefault("USER_AGENT", "weather-stream/1.0 (github.com/i474232898/weather-stream)"),
		LogLevel:             strings.ToUpper(getenvDefault("LOG_LEVEL", "INFO")),
		Debug:                getenvBool("DEBUG", false),
		SSEMaxConnections:    getenvInt("SSE_MAX_CONNECTIONS", 100),
		CacheMaxSize:         getenvInt("CACHE_MAX_SIZE", 1000),
		AlertCacheBackend:    strings.ToLower(getenvDefault("ALERT_CACHE_BACKEND", "memory")),
		RedisAddr:            getenvDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              getenvInt("REDIS_DB", 0),
		KafkaBrokers:         common.SplitCSV(os.Getenv("KAFKA_BROKERS")),
		KafkaAlertTopic:      getenvDefault("KAFKA_ALERT_TOPIC", "weather-alerts"),
	}

	var err error
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.SSEHeartbeatInterval, err = getenvDuration("SSE_HEARTBEAT_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

// getenvDuration accepts Go duration strings ("45s") or plain seconds ("45").
func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
