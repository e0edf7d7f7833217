package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroker_PublishSubscribe(t *testing.T) {
	broker := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := broker.Subscribe(ctx, " Status ")
	broker.Publish(TopicStatus, TypeProcessing, map[string]any{"processingPages": true})

	select {
	case event := <-ch:
		assert.Equal(t, "status", event.Topic)
		assert.Equal(t, TypeProcessing, event.Type)
		assert.Equal(t, int64(1), event.Seq)
		assert.Equal(t, true, event.Payload["processingPages"])
		assert.NotEmpty(t, event.Ts)
	case <-time.After(time.Second):
		t.Fatal("expected event")
	}
}

func TestBroker_TopicsAreIsolated(t *testing.T) {
	broker := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := broker.Subscribe(ctx, "thread-a")
	broker.Publish("thread-b", TypeResultsRefreshed, nil)

	select {
	case event := <-ch:
		t.Fatalf("unexpected event %+v", event)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBroker_UnsubscribeOnCancel(t *testing.T) {
	broker := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())

	ch := broker.Subscribe(ctx, TopicStatus)
	cancel()

	select {
	case _, ok := <-ch:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}

	broker.mu.RLock()
	defer broker.mu.RUnlock()
	assert.Empty(t, broker.subscribers)
}

func TestBroker_SlowSubscriberDoesNotBlock(t *testing.T) {
	broker := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker.Subscribe(ctx, TopicStatus)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			broker.Publish(TopicStatus, TypeModelStatus, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}
