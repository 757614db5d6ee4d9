package events

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cityzen/config"
	"cityzen/logx"
	"cityzen/models"
)

func sampleEvent() models.OutboxEvent {
	return models.OutboxEvent{
		ID:            "6f1c2f5e-2d7a-4c44-9d0b-1d8e0f1a2b3c",
		AggregateType: "complaint",
		AggregateID:   "42",
		EventType:     models.EventComplaintStatusChanged,
		Payload:       json.RawMessage(`{"complaintId":42,"from":"pending","to":"accepted"}`),
		CreatedAt:     time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
}

func TestMessageCarriesEnvelopeAndKey(t *testing.T) {
	msg, err := message("cityzen.events", sampleEvent())
	require.NoError(t, err)

	assert.Equal(t, "cityzen.events", msg.Topic)
	assert.Equal(t, "complaint:42", string(msg.Key))
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "event-type", msg.Headers[1].Key)
	assert.Equal(t, models.EventComplaintStatusChanged, string(msg.Headers[1].Value))

	var env Envelope
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	assert.Equal(t, "complaint.status_changed", env.Type)
	assert.JSONEq(t, `{"complaintId":42,"from":"pending","to":"accepted"}`, string(env.Payload))
}

func TestEnvelopeDefaultsEmptyPayload(t *testing.T) {
	e := sampleEvent()
	e.Payload = nil
	assert.Equal(t, "{}", string(envelope(e).Payload))
}

func TestNewKafkaPublisherRequiresBrokers(t *testing.T) {
	_, err := NewKafkaPublisher(config.KafkaConfig{Topic: "cityzen.events"})
	assert.Error(t, err)

	p, err := NewKafkaPublisher(config.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "cityzen.events"})
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(logx.NewWithWriter(&buf, "cityzen", "test", "", "info"))

	require.NoError(t, p.Publish(context.Background(), sampleEvent()))

	assert.Contains(t, buf.String(), `"event":"event_published"`)
	assert.Contains(t, buf.String(), `"aggregate":"complaint:42"`)
}
