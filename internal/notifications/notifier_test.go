package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"concierge/pkg/logger"
	"concierge/pkg/model"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	published []amqp.Publishing
	keys      []string
	failNext  error
	closed    bool
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func newTestNotifier(channels ...*fakeChannel) *AMQPNotifier {
	n := &AMQPNotifier{queue: "concierge.notifications", log: logger.Discard()}
	i := 0
	n.dial = func() (publisher, error) {
		if i >= len(channels) {
			return nil, errors.New("broker unreachable")
		}
		ch := channels[i]
		i++
		return ch, nil
	}
	return n
}

func TestAMQPNotifier_PublishesPersistentJSON(t *testing.T) {
	ch := &fakeChannel{}
	n := newTestNotifier(ch)

	msg := model.Notification{Recipient: "concierge-1", Title: "Request accepted", Body: "hello"}
	require.NoError(t, n.Notify(context.Background(), msg))

	require.Len(t, ch.published, 1)
	assert.Equal(t, "concierge.notifications", ch.keys[0])
	assert.Equal(t, "application/json", ch.published[0].ContentType)
	assert.Equal(t, amqp.Persistent, ch.published[0].DeliveryMode)

	var got model.Notification
	require.NoError(t, json.Unmarshal(ch.published[0].Body, &got))
	assert.Equal(t, msg, got)
}

func TestAMQPNotifier_ReopensChannelAfterFailure(t *testing.T) {
	first := &fakeChannel{failNext: errors.New("channel closed")}
	second := &fakeChannel{}
	n := newTestNotifier(first, second)

	err := n.Notify(context.Background(), model.Notification{Recipient: "c"})
	require.Error(t, err)
	assert.True(t, first.closed)

	require.NoError(t, n.Notify(context.Background(), model.Notification{Recipient: "c"}))
	assert.Len(t, second.published, 1)
}

func TestAMQPNotifier_DialFailure(t *testing.T) {
	n := newTestNotifier()
	err := n.Notify(context.Background(), model.Notification{Recipient: "c"})
	assert.ErrorContains(t, err, "broker unreachable")
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier(logger.Discard())
	assert.NoError(t, n.Notify(context.Background(), model.Notification{Recipient: "c"}))
	assert.NoError(t, n.Close())
}

func TestAcceptanceNotice(t *testing.T) {
	price := 95.5
	note := "Table for two at 20:00"
	journey := &model.Journey{ID: "j1", Title: "Lyon weekend", ConciergeID: "concierge-7"}
	step := &model.Step{ID: "s1", Universe: "restaurant", Description: "Saturday dinner"}
	req := &model.StepRequest{ID: "r1", EstablishmentID: "est-1", ProposedPrice: &price, ResponseNote: &note}
	est := &model.Establishment{ID: "est-1", Name: "Le Bouchon", ContactPhone: "04 72 00 00 00"}

	n := AcceptanceNotice(journey, step, req, est)

	assert.Equal(t, "concierge-7", n.Recipient)
	assert.Equal(t, "Request accepted", n.Title)
	assert.True(t, strings.HasPrefix(n.Body, `Le Bouchon accepted "Saturday dinner" for Lyon weekend at 95.50`))
	assert.Contains(t, n.Body, note)
	assert.Equal(t, "Le Bouchon", n.Data["vendor_name"])
	assert.Equal(t, "+33472000000", n.Data["vendor_phone"])
	assert.Equal(t, "95.50", n.Data["proposed_price"])
	assert.Equal(t, "r1", n.Data["request_id"])
}

func TestAcceptanceNotice_MissingEstablishment(t *testing.T) {
	journey := &model.Journey{ID: "j1", Title: "Trip", ConciergeID: "c"}
	step := &model.Step{ID: "s1", Universe: "hotel"}
	req := &model.StepRequest{ID: "r1", EstablishmentID: "est-9"}

	n := AcceptanceNotice(journey, step, req, nil)

	assert.Equal(t, "est-9", n.Data["vendor_name"])
	assert.Equal(t, `est-9 accepted "hotel" for Trip`, n.Body)
	_, hasPrice := n.Data["proposed_price"]
	assert.False(t, hasPrice)
}
