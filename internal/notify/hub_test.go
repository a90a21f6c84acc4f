package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubDeliversToUser(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	ch, cancel := hub.Subscribe(ctx, "u-1")
	defer cancel()
	other, cancelOther := hub.Subscribe(ctx, "u-2")
	defer cancelOther()

	require.NoError(t, hub.Notify(ctx, "u-1", "balance.updated", map[string]int64{"balance_cents": 10000}))

	select {
	case msg := <-ch:
		assert.Equal(t, "balance.updated", msg.Event)
		assert.Equal(t, "u-1", msg.UserID)
		var payload map[string]int64
		require.NoError(t, json.Unmarshal(msg.Payload, &payload))
		assert.Equal(t, int64(10000), payload["balance_cents"])
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}

	select {
	case msg := <-other:
		t.Fatalf("unexpected message for other user: %+v", msg)
	default:
	}
}

func TestHubNeverBlocksPublisher(t *testing.T) {
	hub := NewHub()
	_, cancel := hub.Subscribe(context.Background(), "u-1")
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*4; i++ {
			_ = hub.Notify(context.Background(), "u-1", "transaction.updated", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on a full subscriber")
	}
}

func TestHubUnsubscribe(t *testing.T) {
	hub := NewHub()
	ctx, stop := context.WithCancel(context.Background())

	ch, _ := hub.Subscribe(ctx, "u-1")
	assert.Equal(t, 1, hub.Subscribers("u-1"))

	stop()
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel closed after context cancel")
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
	assert.Equal(t, 0, hub.Subscribers("u-1"))

	// notifying with nobody listening is fine
	assert.NoError(t, hub.Notify(context.Background(), "u-1", "balance.updated", nil))
}

func TestHubRejectsUnmarshalablePayload(t *testing.T) {
	hub := NewHub()
	err := hub.Notify(context.Background(), "u-1", "x", make(chan int))
	assert.Error(t, err)
}
