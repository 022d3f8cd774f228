package local

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPubSubBasic(t *testing.T) {
	ps := NewPubSub(16)
	ctx := context.Background()

	ch, cancel, err := ps.Subscribe(ctx, "missions:1")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, ps.Publish(ctx, "missions:1", "hello"))

	select {
	case msg := <-ch:
		assert.Equal(t, "missions:1", msg.Channel)
		assert.Equal(t, "hello", msg.Payload)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for message")
	}
}

func TestPubSubUnsubscribe(t *testing.T) {
	ps := NewPubSub(16)
	ctx := context.Background()

	ch, cancel, err := ps.Subscribe(ctx, "ch")
	require.NoError(t, err)

	cancel()
	assert.NotPanics(t, cancel, "cancel must be idempotent")

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed after cancel")
	case <-time.After(100 * time.Millisecond):
		t.Fatal("channel not closed after cancel")
	}

	// Publishing with no subscribers must not block.
	require.NoError(t, ps.Publish(ctx, "ch", "msg"))
}

func TestPubSubOtherChannelNotDelivered(t *testing.T) {
	ps := NewPubSub(4)
	ctx := context.Background()

	ch, cancel, err := ps.Subscribe(ctx, "missions:1")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, ps.Publish(ctx, "missions:2", "nope"))
	select {
	case msg := <-ch:
		t.Fatalf("unexpected message %q", msg.Payload)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestPubSubFullBufferDrops(t *testing.T) {
	ps := NewPubSub(1)
	ctx := context.Background()

	ch, cancel, err := ps.Subscribe(ctx, "c")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, ps.Publish(ctx, "c", "first"))
	require.NoError(t, ps.Publish(ctx, "c", "second"))

	msg := <-ch
	assert.Equal(t, "first", msg.Payload)
	assert.Len(t, ch, 0)
}

func TestPubSubCancelDuringPublish(t *testing.T) {
	ps := NewPubSub(1)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		_, cancel, err := ps.Subscribe(ctx, "race")
		require.NoError(t, err)
		wg.Add(2)
		go func() { defer wg.Done(); _ = ps.Publish(ctx, "race", "x") }()
		go func() { defer wg.Done(); cancel() }()
	}
	wg.Wait()
}
