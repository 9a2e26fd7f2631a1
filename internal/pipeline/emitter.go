package pipeline

import (
	"log"
	"sync/atomic"
	"time"
)

// EventEmitter delivers pipeline events to a single subscriber.
// It is safe for concurrent use; batch tasks share one emitter.
type EventEmitter struct {
	events       chan Event
	droppedCount atomic.Uint64
	sendTimeout  time.Duration
}

// NewEventEmitter creates a new EventEmitter with the given buffer size.
func NewEventEmitter(bufferSize int) *EventEmitter {
	return &EventEmitter{
		events:      make(chan Event, bufferSize),
		sendTimeout: 100 * time.Millisecond,
	}
}

// Emit sends an event to the events channel.
// If the channel is full, it waits briefly before dropping the event.
func (e *EventEmitter) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case e.events <- event:
		return
	default:
	}

	t := time.NewTimer(e.sendTimeout)
	defer t.Stop()
	select {
	case e.events <- event:
	case <-t.C:
		count := e.droppedCount.Add(1)
		if count%10 == 1 {
			log.Printf("[pipeline] WARNING: event channel full, dropped event (total dropped: %d): type=%s", count, event.Type)
		}
	}
}

// DroppedCount returns the total number of events that have been dropped.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns a read-only channel of events.
func (e *EventEmitter) Events() <-chan Event {
	return e.events
}

// Close closes the events channel. No Emit may follow.
func (e *EventEmitter) Close() {
	close(e.events)
}
