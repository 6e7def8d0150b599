package watch

import (
	"testing"
	"time"

	events "github.com/docker/go-events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch chan events.Event) events.Event {
	select {
	case ev := <-ch:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}
	return nil
}

func TestWatch(t *testing.T) {
	q := NewQueue()
	defer q.Close()

	ch, cancel := q.Watch()
	defer cancel()

	for i := 0; i < 5; i++ {
		q.Publish(i)
	}
	for i := 0; i < 5; i++ {
		assert.Equal(t, i, receive(t, ch))
	}
}

func TestCallbackWatch(t *testing.T) {
	q := NewQueue()
	defer q.Close()

	ch, cancel := q.CallbackWatch(events.MatcherFunc(func(ev events.Event) bool {
		s, ok := ev.(string)
		return ok && s != "skip"
	}))
	defer cancel()

	q.Publish("skip")
	q.Publish(1)
	q.Publish("keep")
	assert.Equal(t, "keep", receive(t, ch))
}

func TestCancelStopsDelivery(t *testing.T) {
	q := NewQueue()
	defer q.Close()

	ch, cancel := q.Watch()
	other, cancelOther := q.Watch()
	defer cancelOther()

	cancel()
	q.Publish("after")

	assert.Equal(t, "after", receive(t, other))
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %v after cancel", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCloseCancelsWatchers(t *testing.T) {
	q := NewQueue()
	_, cancel := q.Watch()
	require.NoError(t, q.Close())
	// canceling after close is harmless
	cancel()
}
