package audio

import (
	"sync"
	"sync/atomic"
)

// Frame is one fixed-duration block of captured PCM samples. The buffer is
// owned by the capture path until the recognition worker dequeues it and is
// never mutated afterwards.
type Frame struct {
	Seq uint64
	PCM []byte
}

// Queue is the bounded hand-off between the capture callback and the single
// recognition worker. Push never blocks: when the queue is full the oldest
// frame is evicted so the stream stays close to real time. Evictions are
// counted, never silent.
type Queue struct {
	frames  chan Frame
	dropped atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

func NewQueue(depth int) *Queue {
	if depth <= 0 {
		depth = 1
	}
	return &Queue{frames: make(chan Frame, depth)}
}

// Push enqueues a frame without blocking. It reports whether the frame was
// accepted without evicting an older one. Safe to call from the capture
// thread; a Push racing Close is a no-op.
func (q *Queue) Push(f Frame) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}

	select {
	case q.frames <- f:
		return true
	default:
	}

	// Full: evict the oldest frame, then retry once. The worker may have
	// raced us and drained the queue in between, in which case the retry
	// succeeds without a second eviction.
	select {
	case <-q.frames:
		q.dropped.Add(1)
	default:
	}
	select {
	case q.frames <- f:
	default:
		q.dropped.Add(1)
		return false
	}
	return false
}

// Frames exposes the consumer side. The channel is closed by Close after
// which the worker drains any buffered frames and exits.
func (q *Queue) Frames() <-chan Frame {
	return q.frames
}

// Dropped returns the number of frames evicted so far.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Close stops accepting frames and closes the consumer channel. Buffered
// frames remain readable.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.frames)
}
