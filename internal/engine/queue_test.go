package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type marker struct{ id string }

func (marker) name() string { return "marker" }

func markerEvent(id string) Event { return Event{Intent: marker{id: id}} }

func TestEventQueue_FIFO(t *testing.T) {
	q := newEventQueue()
	for _, id := range []string{"A", "B", "C"} {
		require.True(t, q.Enqueue(markerEvent(id)))
	}

	for _, want := range []string{"A", "B", "C"} {
		e, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, e.Intent.(marker).id)
	}

	_, ok := q.TryDequeue()
	assert.False(t, ok, "empty queue")
}

func TestEventQueue_WaitSignalsAvailability(t *testing.T) {
	q := newEventQueue()

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Enqueue(markerEvent("late"))
	}()

	select {
	case <-q.Wait():
		e, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, "late", e.Intent.(marker).id)
	case <-time.After(time.Second):
		t.Fatal("no signal")
	}
}

func TestEventQueue_CloseRejectsAndWakes(t *testing.T) {
	q := newEventQueue()
	q.Close()
	q.Close()

	assert.False(t, q.Enqueue(markerEvent("x")))
	select {
	case _, open := <-q.Wait():
		assert.False(t, open)
	default:
		t.Fatal("closed queue should wake waiters")
	}
}

func TestEventQueue_DrainAndLen(t *testing.T) {
	q := newEventQueue()
	q.Enqueue(markerEvent("1"))
	q.Enqueue(markerEvent("2"))
	assert.Equal(t, 2, q.Len())

	got := q.Drain()
	assert.Len(t, got, 2)
	assert.Equal(t, 0, q.Len())
}

func TestEvent_RespondWithoutReplyIsNoop(t *testing.T) {
	assert.NotPanics(t, func() { markerEvent("x").respond(1, nil) })

	ch := make(chan outcome, 1)
	Event{Intent: marker{}, reply: ch}.respond("v", nil)
	assert.Equal(t, "v", (<-ch).value)
}

func TestEventQueue_ConcurrentProducers(t *testing.T) {
	q := newEventQueue()
	const producers, per = 10, 100

	var wg sync.WaitGroup
	for range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range per {
				q.Enqueue(markerEvent("p"))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, producers*per, q.Len())
}
