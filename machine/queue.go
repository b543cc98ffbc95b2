package machine

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultSignalCapacity is the number of signals a queue holds before it
// starts evicting the oldest one.
const DefaultSignalCapacity = 256

// SignalQueue is a bounded FIFO of signals. On overflow the oldest signal is
// dropped to admit the newest, so a slow consumer loses the earliest events.
type SignalQueue struct {
	mu         sync.Mutex
	buf        []Signal // ring buffer
	head       int
	size       int
	closed     bool
	dropped    int64
	notify     chan struct{} // closed and replaced on every push or interrupt
	generation uint64        // bumped by Interrupt and Close
}

// NewSignalQueue creates a queue holding at most capacity signals.
// A non-positive capacity selects DefaultSignalCapacity.
func NewSignalQueue(capacity int) *SignalQueue {
	if capacity <= 0 {
		capacity = DefaultSignalCapacity
	}
	return &SignalQueue{
		buf:    make([]Signal, capacity),
		notify: make(chan struct{}),
	}
}

// Capacity returns the maximum number of queued signals.
func (q *SignalQueue) Capacity() int { return len(q.buf) }

// Push enqueues a signal, evicting the oldest one when the queue is full.
// It returns false only once the queue is closed.
func (q *SignalQueue) Push(name string, args ...any) bool {
	s := NewSignal(name, args...)

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	if q.size == len(q.buf) {
		evicted := q.buf[q.head]
		q.buf[q.head] = Signal{}
		q.head = (q.head + 1) % len(q.buf)
		q.size--
		q.dropped++
		logrus.Debugf("signal queue full, dropped %q", evicted.Name())
	}
	q.buf[(q.head+q.size)%len(q.buf)] = s
	q.size++
	q.wakeLocked()
	return true
}

// TryPull dequeues the oldest signal without waiting.
func (q *SignalQueue) TryPull() (Signal, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

// Pull dequeues the oldest signal. With timeout <= 0 it waits until a
// signal arrives; otherwise it gives up after timeout. It also returns
// false when ctx is done or the wait is interrupted by Interrupt or Close.
func (q *SignalQueue) Pull(ctx context.Context, timeout time.Duration) (Signal, bool) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	q.mu.Lock()
	waiting := q.generation
	for {
		if s, ok := q.popLocked(); ok {
			q.mu.Unlock()
			return s, true
		}
		if q.closed || q.generation != waiting {
			q.mu.Unlock()
			return Signal{}, false
		}
		wait := q.notify
		q.mu.Unlock()

		select {
		case <-wait:
		case <-expired:
			return Signal{}, false
		case <-ctx.Done():
			return Signal{}, false
		}
		q.mu.Lock()
	}
}

// Pending returns the number of queued signals.
func (q *SignalQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Dropped returns how many signals were evicted by overflow.
func (q *SignalQueue) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Clear discards every queued signal.
func (q *SignalQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.buf {
		q.buf[i] = Signal{}
	}
	q.head, q.size = 0, 0
}

// Interrupt wakes every blocked Pull, which then returns no signal.
func (q *SignalQueue) Interrupt() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.generation++
	q.wakeLocked()
}

// Close interrupts waiters and makes further pushes fail.
func (q *SignalQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.generation++
	q.wakeLocked()
}

func (q *SignalQueue) popLocked() (Signal, bool) {
	if q.size == 0 {
		return Signal{}, false
	}
	s := q.buf[q.head]
	q.buf[q.head] = Signal{}
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	return s, true
}

func (q *SignalQueue) wakeLocked() {
	close(q.notify)
	q.notify = make(chan struct{})
}
