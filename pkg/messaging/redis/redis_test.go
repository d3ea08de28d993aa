package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attendsure/attendsure-api/pkg/messaging"
)

func newTestBroker(t *testing.T) messaging.Broker {
	t.Helper()

	mr := miniredis.RunT(t)
	broker, err := NewRedisBroker(Config{URL: "redis://" + mr.Addr()}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { broker.Close() })
	return broker
}

func TestRedisBrokerPublishSubscribe(t *testing.T) {
	broker := newTestBroker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msgs, err := broker.Subscribe(ctx, "CALL_DISPATCHED")
	require.NoError(t, err)

	// Give the subscriber goroutine a moment to attach.
	time.Sleep(50 * time.Millisecond)

	err = broker.Publish(ctx, "CALL_DISPATCHED", messaging.Message{
		Type:    "CALL_DISPATCHED",
		Payload: map[string]interface{}{"callId": 1},
	})
	require.NoError(t, err)

	select {
	case raw := <-msgs:
		var msg messaging.Message
		require.NoError(t, json.Unmarshal(raw, &msg))
		assert.Equal(t, "CALL_DISPATCHED", msg.Type)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestRedisBrokerSubscribeClosesOnCancel(t *testing.T) {
	broker := newTestBroker(t)

	ctx, cancel := context.WithCancel(context.Background())
	msgs, err := broker.Subscribe(ctx, "CALL_QUEUED")
	require.NoError(t, err)

	cancel()

	select {
	case _, open := <-msgs:
		assert.False(t, open)
	case <-time.After(3 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestNewRedisBrokerBadURL(t *testing.T) {
	_, err := NewRedisBroker(Config{URL: "not-a-url"}, zerolog.Nop())
	assert.Error(t, err)
}
