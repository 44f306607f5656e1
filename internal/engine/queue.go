package engine

import (
	"sync"

	"github.com/roach88/govbot/internal/ir"
)

// EventType distinguishes between refresh triggers.
type EventType int

const (
	// EventEntriesChanged reports entries upserted by a producer.
	EventEntriesChanged EventType = iota + 1
	// EventReindex asks for an index rebuild without a subscription refresh.
	EventReindex
)

func (t EventType) String() string {
	switch t {
	case EventEntriesChanged:
		return "entries_changed"
	case EventReindex:
		return "reindex"
	default:
		return "unknown"
	}
}

// Event is one refresh trigger.
type Event struct {
	Type EventType
	Keys []ir.Key // entries written, for EventEntriesChanged
}

// eventQueue is a thread-safe FIFO queue of refresh triggers.
//
// Producers enqueue from the notification socket handler while the Run loop
// drains. The loop takes everything pending at once, so a burst of upserts
// costs a single refresh pass.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // buffered, size 1
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.events = append(q.events, e)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// DrainAll removes and returns every pending event in FIFO order.
func (q *eventQueue) DrainAll() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return nil
	}
	out := q.events
	q.events = make([]Event, 0, cap(out))
	return out
}

// Wait returns a channel that signals when events may be available.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close stops further enqueues and wakes any waiter.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// summarize reports whether any event asks for a subscription refresh and
// how many entry keys the batch carries.
func summarize(events []Event) (refresh bool, keys int) {
	for _, e := range events {
		if e.Type == EventEntriesChanged {
			refresh = true
			keys += len(e.Keys)
		}
	}
	return refresh, keys
}
