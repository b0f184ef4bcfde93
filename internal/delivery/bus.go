package delivery

import (
	"sync"
	"time"
)

// Segment is one finalized utterance. Immutable once published; appended to
// history in publication order.
type Segment struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	SpeakerID string    `json:"speaker_id"`
	Text      string    `json:"text"`
}

// Bus carries transcript events from the recognition worker to the
// presentation layer. Single producer, single consumer. Live updates are
// coalesced because only the most recent one matters; segments are queued
// losslessly in order.
type Bus struct {
	mu       sync.Mutex
	live     string
	hasLive  bool
	segments []Segment
	closed   bool

	notify chan struct{}
}

func NewBus() *Bus {
	return &Bus{notify: make(chan struct{}, 1)}
}

// PublishLive replaces the pending current-line text. Never blocks.
func (b *Bus) PublishLive(text string) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.live = text
	b.hasLive = true
	b.wake()
	b.mu.Unlock()
}

// PublishSegment queues a finalized utterance. Segments are never coalesced
// or dropped. Never blocks.
func (b *Bus) PublishSegment(seg Segment) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.segments = append(b.segments, seg)
	b.wake()
	b.mu.Unlock()
}

// wake is called with b.mu held.
func (b *Bus) wake() {
	if b.closed {
		return
	}
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Drain returns the pending live text, if any, and up to max queued
// segments. Segments beyond the cap stay queued and re-arm the
// notification so the next drain cycle picks them up.
func (b *Bus) Drain(max int) (live string, hasLive bool, segs []Segment) {
	b.mu.Lock()
	live, hasLive = b.live, b.hasLive
	b.live, b.hasLive = "", false

	n := len(b.segments)
	if max > 0 && n > max {
		n = max
	}
	if n > 0 {
		segs = make([]Segment, n)
		copy(segs, b.segments[:n])
		b.segments = b.segments[n:]
	}
	if len(b.segments) > 0 {
		b.wake()
	}
	b.mu.Unlock()
	return live, hasLive, segs
}

// Notify signals that events are pending. Closed by Close once the producer
// is done; the consumer drains once more after the channel closes.
func (b *Bus) Notify() <-chan struct{} {
	return b.notify
}

// Close marks the producer side finished. Pending events remain drainable.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()
	close(b.notify)
}
