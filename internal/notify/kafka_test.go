package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-stream/internal/weather"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisherPublishAlerts(t *testing.T) {
	w := &recordingWriter{}
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p := &KafkaPublisher{writer: w, now: func() time.Time { return fixed }}

	err := p.PublishAlerts(context.Background(), "40.7128,-74.0060", []weather.Alert{
		{ID: "X1", Severity: "Severe"},
		{ID: "X2", Severity: "Minor"},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 2)

	assert.Equal(t, "40.7128,-74.0060", string(w.msgs[0].Key))
	assert.Equal(t, "alert_id", w.msgs[1].Headers[0].Key)
	assert.Equal(t, "X2", string(w.msgs[1].Headers[0].Value))

	var decoded AlertMessage
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, "X1", decoded.Alert.ID)
	assert.True(t, fixed.Equal(decoded.DetectedAt))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisherSkipsEmptyBatch(t *testing.T) {
	w := &recordingWriter{err: errors.New("should not be called")}
	p := &KafkaPublisher{writer: w, now: time.Now}

	assert.NoError(t, p.PublishAlerts(context.Background(), "k", nil))
}

func TestKafkaPublisherWrapsWriteError(t *testing.T) {
	boom := errors.New("broker down")
	p := &KafkaPublisher{writer: &recordingWriter{err: boom}, now: time.Now}

	err := p.PublishAlerts(context.Background(), "k", []weather.Alert{{ID: "A"}})
	assert.ErrorIs(t, err, boom)
}
