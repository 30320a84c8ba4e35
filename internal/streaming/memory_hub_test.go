package streaming

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/nodeflow/pkg/schema"
)

func recv(t *testing.T, ch <-chan schema.WorkflowEvent) schema.WorkflowEvent {
	t.Helper()
	select {
	case got, ok := <-ch:
		require.True(t, ok, "channel closed unexpectedly")
		return got
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return schema.WorkflowEvent{}
}

func assertEmpty(t *testing.T, ch <-chan schema.WorkflowEvent) {
	t.Helper()
	select {
	case evt, ok := <-ch:
		if ok {
			t.Fatalf("unexpected event: %+v", evt)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishSubscribe(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel()

	event := schema.WorkflowEvent{
		Type:       schema.EventNodeComplete,
		WorkflowID: "wf-1",
		NodeID:     "node-1",
		Data:       map[string]any{"result": "ok"},
	}
	require.NoError(t, hub.Publish(ctx, event))

	got := recv(t, ch)
	assert.Equal(t, event.WorkflowID, got.WorkflowID)
	assert.Equal(t, event.NodeID, got.NodeID)
	assert.Equal(t, event.Type, got.Type)
}

func TestFilterByWorkflowAndRun(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{WorkflowID: "wf-1", RunID: "run-a"})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(ctx, schema.WorkflowEvent{WorkflowID: "wf-1", RunID: "run-a", Type: schema.EventNodeStart}))
	require.NoError(t, hub.Publish(ctx, schema.WorkflowEvent{WorkflowID: "wf-1", RunID: "run-b", Type: schema.EventNodeStart}))
	require.NoError(t, hub.Publish(ctx, schema.WorkflowEvent{WorkflowID: "wf-2", RunID: "run-a", Type: schema.EventNodeStart}))

	got := recv(t, ch)
	assert.Equal(t, "run-a", got.RunID)
	assertEmpty(t, ch)
}

func TestFilterByEventType(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{
		Types: []schema.EventType{schema.EventNodeComplete, schema.EventWorkflowFail},
	})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(ctx, schema.WorkflowEvent{WorkflowID: "wf-1", Type: schema.EventNodeComplete}))
	require.NoError(t, hub.Publish(ctx, schema.WorkflowEvent{WorkflowID: "wf-1", Type: schema.EventNodeStart}))
	require.NoError(t, hub.Publish(ctx, schema.WorkflowEvent{WorkflowID: "wf-1", Type: schema.EventWorkflowFail}))

	var received []schema.EventType
	for i := 0; i < 2; i++ {
		received = append(received, recv(t, ch).Type)
	}
	assert.Equal(t, []schema.EventType{schema.EventNodeComplete, schema.EventWorkflowFail}, received)
	assertEmpty(t, ch)
}

func TestFilterByNode(t *testing.T) {
	f := EventFilter{NodeID: "b"}
	assert.True(t, f.Match(schema.WorkflowEvent{NodeID: "b"}))
	assert.False(t, f.Match(schema.WorkflowEvent{NodeID: "a"}))
	assert.True(t, EventFilter{}.Match(schema.WorkflowEvent{}))
}

func TestMultipleSubscribers(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch1, cancel1, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel1()

	ch2, cancel2, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel2()

	require.NoError(t, hub.Publish(ctx, schema.WorkflowEvent{WorkflowID: "wf-1", Type: schema.EventWorkflowStart}))

	for _, ch := range []<-chan schema.WorkflowEvent{ch1, ch2} {
		got := recv(t, ch)
		assert.Equal(t, schema.EventWorkflowStart, got.Type)
	}
	assert.Equal(t, 2, hub.Subscribers())
}

func TestCancelSubscriptionClosesChannel(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)

	cancel()
	cancel() // idempotent

	require.NoError(t, hub.Publish(ctx, schema.WorkflowEvent{WorkflowID: "wf-1", Type: schema.EventNodeStart}))

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after cancel")
	assert.Zero(t, hub.Subscribers())
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	hub := NewMemoryHub()
	ctx, cancel := context.WithCancel(context.Background())

	ch, unsubscribe, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer unsubscribe()

	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription was not closed when its context ended")
	}
	assert.Eventually(t, func() bool { return hub.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}

func TestBackpressureDropsEvents(t *testing.T) {
	hub := NewMemoryHubWithBuffer(4)
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel()

	for i := 0; i < 10; i++ {
		require.NoError(t, hub.Publish(ctx, schema.WorkflowEvent{WorkflowID: "wf-1", Type: schema.EventNodeStart}))
	}

	drained := 0
	for len(ch) > 0 {
		<-ch
		drained++
	}
	assert.Equal(t, 4, drained)
	assert.Equal(t, uint64(6), hub.Dropped())
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()
	const goroutines = 20
	const eventsPerGoroutine = 50

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < eventsPerGoroutine; j++ {
				_ = hub.Publish(ctx, schema.WorkflowEvent{WorkflowID: "wf-concurrent", Type: schema.EventNodeStart})
			}
		}()
		go func() {
			defer wg.Done()
			ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
			if err != nil {
				return
			}
			for range 5 {
				select {
				case <-ch:
				case <-time.After(10 * time.Millisecond):
				}
			}
			cancel()
		}()
	}
	wg.Wait()
	assert.Zero(t, hub.Subscribers())
}

func TestPublishCancelledContext(t *testing.T) {
	hub := NewMemoryHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := hub.Publish(ctx, schema.WorkflowEvent{WorkflowID: "wf-1"})
	assert.ErrorIs(t, err, context.Canceled)

	_, _, err = hub.Subscribe(ctx, EventFilter{})
	assert.ErrorIs(t, err, context.Canceled)
}
