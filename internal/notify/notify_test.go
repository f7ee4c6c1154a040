package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockChannel struct {
	mock.Mock
}

func (m *mockChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	return m.Called(exchange, key, msg).Error(0)
}

func (m *mockChannel) Close() error {
	return m.Called().Error(0)
}

func TestPublish_SendsPersistentJSON(t *testing.T) {
	ch := new(mockChannel)
	var sent amqp.Publishing
	ch.On("PublishWithContext", "enrichment", "enrichment.run.completed", mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(2).(amqp.Publishing) }).
		Return(nil)

	p := newPublisher(ch, "enrichment", "enrichment.run.completed", nil)
	err := p.Publish(context.Background(), "run-1", map[string]int{"failed": 2})

	require.NoError(t, err)
	assert.Equal(t, "application/json", sent.ContentType)
	assert.Equal(t, amqp.Persistent, sent.DeliveryMode)
	assert.Equal(t, "run-1", sent.MessageId)

	var body map[string]int
	require.NoError(t, json.Unmarshal(sent.Body, &body))
	assert.Equal(t, 2, body["failed"])
	ch.AssertExpectations(t)
}

func TestPublish_BrokerError(t *testing.T) {
	ch := new(mockChannel)
	ch.On("PublishWithContext", mock.Anything, mock.Anything, mock.Anything).Return(amqp.ErrClosed)

	err := newPublisher(ch, "enrichment", "key", nil).Publish(context.Background(), "run-2", struct{}{})

	assert.ErrorIs(t, err, amqp.ErrClosed)
}

func TestPublish_UnmarshalablePayload(t *testing.T) {
	ch := new(mockChannel)

	err := newPublisher(ch, "enrichment", "key", nil).Publish(context.Background(), "run-3", make(chan int))

	assert.Error(t, err)
	ch.AssertNotCalled(t, "PublishWithContext", mock.Anything, mock.Anything, mock.Anything)
}

func TestClose(t *testing.T) {
	ch := new(mockChannel)
	ch.On("Close").Return(errors.New("already closed"))

	assert.EqualError(t, newPublisher(ch, "x", "y", nil).Close(), "already closed")
	assert.NoError(t, Noop{}.Close())
	assert.NoError(t, Noop{}.Publish(context.Background(), "id", nil))
}
