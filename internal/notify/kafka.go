package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/i474232898/weather-stream/internal/weather"
)

// AlertMessage is the JSON value written for each new alert.
type AlertMessage struct {
	LocationKey string        `json:"location_key"`
	DetectedAt  time.Time     `json:"detected_at"`
	Alert       weather.Alert `json:"alert"`
}

// messageWriter is the subset of *kafka.Writer we use.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one message per new alert, keyed by location so that
// alerts for a location stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
	now    func() time.Time
}

// NewKafkaPublisher creates a publisher for topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &KafkaPublisher{writer: writer, now: time.Now}
}

func (p *KafkaPublisher) PublishAlerts(ctx context.Context, locationKey string, alerts []weather.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	detected := p.now().UTC()
	msgs := make([]kafka.Message, 0, len(alerts))
	for _, a := range alerts {
		value, err := json.Marshal(AlertMessage{
			LocationKey: locationKey,
			DetectedAt:  detected,
			Alert:       a,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal alert %s: %w", a.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(locationKey),
			Value: value,
			Headers: []kafka.Header{
				{Key: "alert_id", Value: []byte(a.ID)},
				{Key: "severity", Value: []byte(a.Severity)},
			},
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to write alerts to kafka: %w", err)
	}
	return nil
}

// Close closes the Kafka writer.
func (p *KafkaPublisher) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}
