package events

import "sync"

// Event represents a structured state change emitted by the engine.
type Event interface {
	EventType() string
}

// Attributed is implemented by events that expose a flat attribute map for
// indexers and streaming clients.
type Attributed interface {
	Event
	Attributes() map[string]string
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// AttributesOf returns the attribute map of ev, or an empty map when ev does
// not expose attributes.
func AttributesOf(ev Event) map[string]string {
	if attributed, ok := ev.(Attributed); ok {
		if attrs := attributed.Attributes(); attrs != nil {
			return attrs
		}
	}
	return map[string]string{}
}

// Buffer collects events until they are flushed to a downstream emitter.
// Transactions use it so that only committed work becomes visible.
type Buffer struct {
	pending []Event
}

// Emit appends the event to the buffer.
func (b *Buffer) Emit(ev Event) {
	if b == nil || ev == nil {
		return
	}
	b.pending = append(b.pending, ev)
}

// Events returns the buffered events in emission order.
func (b *Buffer) Events() []Event {
	if b == nil {
		return nil
	}
	out := make([]Event, len(b.pending))
	copy(out, b.pending)
	return out
}

// Flush forwards buffered events to dst and clears the buffer.
func (b *Buffer) Flush(dst Emitter) {
	if b == nil {
		return
	}
	if dst != nil {
		for _, ev := range b.pending {
			dst.Emit(ev)
		}
	}
	b.pending = nil
}

// Reset drops buffered events.
func (b *Buffer) Reset() {
	if b == nil {
		return
	}
	b.pending = nil
}

// Multi fans a single event out to several emitters.
type Multi []Emitter

// Emit implements the Emitter interface.
func (m Multi) Emit(ev Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(ev)
		}
	}
}

// Broadcaster delivers events to dynamic subscribers. Slow subscribers drop
// events rather than block the emitter.
type Broadcaster struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan Event
	buffer int
}

// NewBroadcaster constructs a broadcaster whose subscriber channels hold up to
// buffer pending events.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broadcaster{subs: make(map[int]chan Event), buffer: buffer}
}

// Emit implements the Emitter interface.
func (b *Broadcaster) Emit(ev Event) {
	if b == nil || ev == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel function must be
// called to release the subscription.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.buffer)
	b.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
}

// Subscribers reports the number of active subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
