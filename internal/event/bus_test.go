package event

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillworks/quill/pkg/types"
)

func recvEvent(t *testing.T, ch <-chan types.StreamEvent) types.StreamEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return types.StreamEvent{}
	}
}

func TestPublishSubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, unsub, err := bus.Subscribe(context.Background(), "s1")
	require.NoError(t, err)
	defer unsub()

	bus.Publish("s1", types.StreamEvent{
		Type: types.StreamChunk,
		Data: types.ChunkData{Text: "hello"},
	})

	ev := recvEvent(t, ch)
	assert.Equal(t, types.StreamChunk, ev.Type)
}

func TestSubscriberIsolationByKey(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch1, unsub1, err := bus.Subscribe(context.Background(), "s1")
	require.NoError(t, err)
	defer unsub1()

	ch2, unsub2, err := bus.Subscribe(context.Background(), "s2")
	require.NoError(t, err)
	defer unsub2()

	bus.Publish("s1", types.StreamEvent{Type: types.StreamPing})

	ev := recvEvent(t, ch1)
	assert.Equal(t, types.StreamPing, ev.Type)

	select {
	case ev := <-ch2:
		t.Fatalf("unexpected event on other session: %v", ev.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTopicSurvivesNewSubscriber(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	// First subscriber attaches and detaches, as if a client
	// disconnected while the actor was recycled.
	_, unsub, err := bus.Subscribe(context.Background(), "s1")
	require.NoError(t, err)
	unsub()

	assert.True(t, bus.HasTopic("s1"))

	ch, unsub2, err := bus.Subscribe(context.Background(), "s1")
	require.NoError(t, err)
	defer unsub2()

	bus.Publish("s1", types.StreamEvent{Type: types.StreamDone})
	ev := recvEvent(t, ch)
	assert.Equal(t, types.StreamDone, ev.Type)
}

func TestEnsureTopicIdempotent(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	bus.EnsureTopic("s1")
	bus.EnsureTopic("s1")
	assert.True(t, bus.HasTopic("s1"))
	assert.False(t, bus.HasTopic("s2"))
}

func TestPublishDoesNotBlockWithoutSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish("orphan", types.StreamEvent{Type: types.StreamPing})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked with no subscribers")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, unsub, err := bus.Subscribe(context.Background(), "s1")
	require.NoError(t, err)

	unsub()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed after unsubscribe")
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after unsubscribe")
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, unsub, err := bus.Subscribe(context.Background(), "s1")
	require.NoError(t, err)
	defer unsub()

	bus.Publish("s1", types.StreamEvent{
		Type: types.StreamStateChanged,
		Data: types.StateChangedData{From: "idle", To: "running"},
	})

	ev := recvEvent(t, ch)
	require.Equal(t, types.StreamStateChanged, ev.Type)

	// Data crosses the bus as JSON and arrives as a generic map.
	data, ok := ev.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "idle", data["from"])
	assert.Equal(t, "running", data["to"])
}
