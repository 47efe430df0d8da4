package stream

import (
	"time"

	"github.com/i474232898/weather-stream/internal/weather"
)

// EventKind names a stream event; transports use it as the SSE event name.
type EventKind string

const (
	KindCurrentWeather EventKind = "current_weather"
	KindWeatherAlert   EventKind = "weather_alert"
	KindAlertStatus    EventKind = "alert_status"
	KindHeartbeat      EventKind = "heartbeat"
	KindError          EventKind = "error"
)

// Event is one typed item of a connection's stream. Framing is left to the
// transport.
type Event interface {
	Kind() EventKind
	At() time.Time
}

// AlertStatus tags an AlertStatusEvent.
type AlertStatus string

const (
	StatusSuccess AlertStatus = "success"
	StatusInfo    AlertStatus = "info"
)

type CurrentWeatherEvent struct {
	LocationKey string                 `json:"location_key"`
	Timestamp   time.Time              `json:"timestamp"`
	Weather     weather.CurrentWeather `json:"weather"`
}

func (e CurrentWeatherEvent) Kind() EventKind { return KindCurrentWeather }
func (e CurrentWeatherEvent) At() time.Time   { return e.Timestamp }

type AlertBatchEvent struct {
	LocationKey string          `json:"location_key"`
	Timestamp   time.Time       `json:"timestamp"`
	Alerts      []weather.Alert `json:"alerts"`
}

func (e AlertBatchEvent) Kind() EventKind { return KindWeatherAlert }
func (e AlertBatchEvent) At() time.Time   { return e.Timestamp }

type AlertStatusEvent struct {
	LocationKey string      `json:"location_key"`
	Timestamp   time.Time   `json:"timestamp"`
	Message     string      `json:"message"`
	Status      AlertStatus `json:"status"`
}

func (e AlertStatusEvent) Kind() EventKind { return KindAlertStatus }
func (e AlertStatusEvent) At() time.Time   { return e.Timestamp }

type HeartbeatEvent struct {
	Timestamp    time.Time `json:"timestamp"`
	ConnectionID string    `json:"connection_id"`
}

func (e HeartbeatEvent) Kind() EventKind { return KindHeartbeat }
func (e HeartbeatEvent) At() time.Time   { return e.Timestamp }

type ErrorEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"error"`
}

func (e ErrorEvent) Kind() EventKind { return KindError }
func (e ErrorEvent) At() time.Time   { return e.Timestamp }
