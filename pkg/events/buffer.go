package events

import "sync"

// bufferCapacity is the number of most-recent events retained per session
// for late SSE joiners, per spec §4.4 (~20 events).
const bufferCapacity = 20

// Buffer is a per-session bounded FIFO of the most recently emitted events.
// Written only by the owning session's processing goroutine; read under its
// mutex by SSE fan-out on subscribe, mirroring the teacher's single-writer/
// locked-reader split in pkg/events/manager.go.
type Buffer struct {
	mu     sync.Mutex
	events []Event
	nextID uint64
}

// NewBuffer constructs an empty event buffer for one session.
func NewBuffer() *Buffer {
	return &Buffer{events: make([]Event, 0, bufferCapacity)}
}

// NextEventID allocates the next monotonically increasing event id for this
// session without recording anything in the buffer yet.
func (b *Buffer) NextEventID() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	return b.nextID
}

// Append records e, evicting the oldest entry once the buffer is full.
func (b *Buffer) Append(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) >= bufferCapacity {
		copy(b.events, b.events[1:])
		b.events = b.events[:len(b.events)-1]
	}
	b.events = append(b.events, e)
}

// Snapshot returns a copy of the currently buffered events, oldest first,
// for handing to a newly-subscribed SSE connection before it starts
// receiving live events.
func (b *Buffer) Snapshot() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}
