package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"concierge/pkg/kafka"
	"concierge/pkg/logger"
	"concierge/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProducer struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeProducer) Publish(ctx context.Context, msg kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeProducer) Close() error { return nil }

func TestKafkaPublisher_Publish(t *testing.T) {
	fp := &fakeProducer{}
	p := &KafkaPublisher{producer: fp}

	change := model.StatusChange{
		Type:       model.EventJourneyStatusChanged,
		EntityID:   "j1",
		JourneyID:  "j1",
		From:       model.JourneyRequesting,
		To:         model.JourneyConfirmed,
		OccurredAt: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.Publish(context.Background(), change))
	require.Len(t, fp.msgs, 1)

	msg := fp.msgs[0]
	assert.Equal(t, "j1", msg.Key)
	assert.Equal(t, model.EventJourneyStatusChanged, msg.GetEventType())
	assert.Equal(t, "j1", msg.GetCorrelationID())
	assert.Equal(t, Source, msg.Headers[kafka.HeaderSource])
	assert.NotEmpty(t, msg.GetEventID())

	decoded, err := Decode(msg)
	require.NoError(t, err)
	assert.Equal(t, change, decoded)
}

func TestKafkaPublisher_PropagatesError(t *testing.T) {
	p := &KafkaPublisher{producer: &fakeProducer{err: errors.New("leader not available")}}
	err := p.Publish(context.Background(), model.StatusChange{Type: model.EventStepStatusChanged, JourneyID: "j1"})
	assert.ErrorContains(t, err, "leader not available")
}

func TestDecode_InvalidPayload(t *testing.T) {
	_, err := Decode(kafka.Message{Value: []byte("not json")})
	assert.Error(t, err)
}

func TestLogPublisher(t *testing.T) {
	p := NewLogPublisher(logger.Discard())
	assert.NoError(t, p.Publish(context.Background(), model.StatusChange{Type: model.EventStepStatusChanged}))
}
