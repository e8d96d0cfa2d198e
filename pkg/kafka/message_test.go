package kafka

import (
	"errors"
	"math"
	"testing"
)

func TestMessageBuilder(t *testing.T) {
	msg, err := NewMessage().
		WithKey("journey-1").
		WithValue(map[string]string{"to": "confirmed"}).
		WithEventType("journey.status_changed").
		WithCorrelationID("req-1").
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if msg.Key != "journey-1" {
		t.Errorf("Key = %q", msg.Key)
	}
	if msg.GetEventID() == "" {
		t.Error("expected generated event id")
	}
	if msg.GetEventType() != "journey.status_changed" {
		t.Errorf("event type = %q", msg.GetEventType())
	}
	var decoded map[string]string
	if err := msg.DecodeValue(&decoded); err != nil || decoded["to"] != "confirmed" {
		t.Errorf("DecodeValue() = %v, %v", decoded, err)
	}
}

func TestMessageBuilder_EncodingFailure(t *testing.T) {
	_, err := NewMessage().WithKey("k").WithValue(math.Inf(1)).Build()
	if !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("expected ErrInvalidMessage, got %v", err)
	}
}

func TestRetryCount(t *testing.T) {
	msg := Message{Headers: map[string]string{}}
	for i := 0; i < 12; i++ {
		msg.IncrementRetryCount()
	}
	if got := msg.GetRetryCount(); got != 12 {
		t.Errorf("GetRetryCount() = %d, want 12", got)
	}
}
