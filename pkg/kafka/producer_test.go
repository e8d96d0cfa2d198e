package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestProducer_PublishRunsMiddlewareInOrder(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w, topic: "events"}

	var order []string
	p.Use(func(ctx context.Context, msg Message, next func(context.Context, Message) error) error {
		order = append(order, "outer")
		return next(ctx, msg)
	})
	p.Use(func(ctx context.Context, msg Message, next func(context.Context, Message) error) error {
		order = append(order, "inner")
		if msg.Topic != "events" {
			t.Errorf("topic = %q", msg.Topic)
		}
		return next(ctx, msg)
	})

	msg, _ := NewMessage().WithKey("j1").WithValue("x").Build()
	if err := p.Publish(context.Background(), msg); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(order) != 2 || order[0] != "outer" || order[1] != "inner" {
		t.Errorf("middleware order = %v", order)
	}
	if len(w.msgs) != 1 || string(w.msgs[0].Key) != "j1" {
		t.Errorf("written = %+v", w.msgs)
	}
}

func TestProducer_RejectsInvalid(t *testing.T) {
	p := &Producer{writer: &fakeWriter{}, topic: "events"}

	if err := p.Publish(context.Background(), Message{Value: []byte("x")}); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("expected ErrEmptyKey, got %v", err)
	}
	if err := p.Publish(context.Background(), Message{Key: "k"}); !errors.Is(err, ErrEmptyValue) {
		t.Errorf("expected ErrEmptyValue, got %v", err)
	}

	_ = p.Close()
	if err := p.Publish(context.Background(), Message{Key: "k", Value: []byte("x")}); !errors.Is(err, ErrProducerClosed) {
		t.Errorf("expected ErrProducerClosed, got %v", err)
	}
}

func TestProducer_FailedWriteGoesToDLQ(t *testing.T) {
	writeErr := errors.New("leader not available")
	dlq := &fakeWriter{}
	p := &Producer{writer: &fakeWriter{err: writeErr}, dlqWriter: dlq, topic: "events"}

	msg, _ := NewMessage().WithKey("j1").WithValue("x").Build()
	err := p.Publish(context.Background(), msg)
	if !errors.Is(err, writeErr) {
		t.Fatalf("expected original error, got %v", err)
	}
	if len(dlq.msgs) != 1 {
		t.Fatalf("dlq got %d messages", len(dlq.msgs))
	}
	if got := header(dlq.msgs[0], HeaderOriginalTopic); got != "events" {
		t.Errorf("original-topic header = %q", got)
	}
	if _, ok := msg.Headers[HeaderOriginalTopic]; ok {
		t.Error("caller's headers were mutated")
	}
}
