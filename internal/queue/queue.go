// Package queue provides a fixed-capacity circular queue of CAN frames,
// used to hand frames from a Bus's own reception goroutine over to the
// single goroutine that is allowed to call Link.OnFrame/Link.Poll — the
// core itself stays single-threaded and cooperative (see pkg/isotp), this
// is purely host-side glue.
package queue

import (
	"sync"

	"github.com/samsamfire/go-isotp/pkg/can"
)

// FrameQueue is a circular buffer of can.Frame with a fixed capacity.
// Push drops the oldest frame when full rather than blocking, since the
// CAN reception goroutine must never stall waiting for the poll loop.
type FrameQueue struct {
	mu       sync.Mutex
	buffer   []can.Frame
	readPos  int
	writePos int
	occupied int
	dropped  uint64
}

// New creates a FrameQueue with room for capacity frames.
func New(capacity int) *FrameQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &FrameQueue{buffer: make([]can.Frame, capacity)}
}

// Push enqueues a frame, overwriting the oldest entry if full.
func (q *FrameQueue) Push(frame can.Frame) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.occupied == len(q.buffer) {
		// Full: drop the oldest frame to make room, matching a bounded
		// real-time queue rather than ever blocking the CAN reader.
		q.readPos = (q.readPos + 1) % len(q.buffer)
		q.occupied--
		q.dropped++
	}
	q.buffer[q.writePos] = frame
	q.writePos = (q.writePos + 1) % len(q.buffer)
	q.occupied++
}

// Pop removes and returns the oldest frame, if any.
func (q *FrameQueue) Pop() (can.Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.occupied == 0 {
		return can.Frame{}, false
	}
	frame := q.buffer[q.readPos]
	q.readPos = (q.readPos + 1) % len(q.buffer)
	q.occupied--
	return frame, true
}

// Drain pops every currently queued frame and calls fn for each, in FIFO
// order. Intended to be called once per poll tick.
func (q *FrameQueue) Drain(fn func(can.Frame)) {
	for {
		frame, ok := q.Pop()
		if !ok {
			return
		}
		fn(frame)
	}
}

// Len reports the number of frames currently queued.
func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.occupied
}

// Dropped reports how many frames have been evicted due to capacity.
func (q *FrameQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
