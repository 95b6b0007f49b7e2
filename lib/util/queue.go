package util

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Queue is an unbounded lock-free multi-producer single-consumer queue.
//
// Any number of goroutines may Push concurrently; exactly one goroutine is
// expected to drain Recv. Items pushed by one producer are delivered in the
// order that producer pushed them. Items of different producers interleave
// in the order their append succeeded.
//
// The dispatcher uses it to hand received frames from the transport's read
// loop to its single routing goroutine without holding the read loop up.
type Queue[T any] struct {
	head   atomic.Pointer[queueNode[T]]
	tail   atomic.Pointer[queueNode[T]]
	out    chan T
	closed atomic.Bool
	length atomic.Int64

	mu   sync.Mutex
	cond *sync.Cond
}

type queueNode[T any] struct {
	value T
	next  atomic.Pointer[queueNode[T]]
}

// NewQueue creates the queue and starts its delivery goroutine.
func NewQueue[T any]() *Queue[T] {
	sentinel := &queueNode[T]{}

	q := &Queue[T]{
		out: make(chan T),
	}
	q.cond = sync.NewCond(&q.mu)
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	go q.deliver()

	return q
}

// Push appends a value. It returns false once the queue is closed.
//
// Thread-safety: safe for concurrent use.
func (q *Queue[T]) Push(value T) bool {
	if q.closed.Load() {
		return false
	}

	n := &queueNode[T]{value: value}

	var spins uint8
	for {
		tail := q.tail.Load()
		next := tail.next.Load()

		if next == nil {
			if tail.next.CompareAndSwap(nil, n) {
				// a failed swap means another producer already advanced the tail
				q.tail.CompareAndSwap(tail, n)
				q.length.Add(1)

				q.mu.Lock()
				q.cond.Signal()
				q.mu.Unlock()
				return true
			}
		} else {
			// help a producer that appended but has not advanced the tail yet
			q.tail.CompareAndSwap(tail, next)
		}

		// back off under contention, spinning first and yielding later
		if spins < 10 {
			spins++
			for i := 0; i < 1<<spins; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// deliver moves values from the linked list to the output channel
func (q *Queue[T]) deliver() {
	defer close(q.out)

	var zero T
	for {
		head := q.head.Load()
		next := head.next.Load()

		if next != nil {
			value := next.value
			q.head.Store(next)
			q.out <- value
			q.length.Add(-1)

			// the old sentinel is unreachable now, drop the value reference
			next.value = zero
			continue
		}

		if q.closed.Load() {
			return
		}

		q.mu.Lock()
		if q.head.Load().next.Load() == nil && !q.closed.Load() {
			q.cond.Wait()
		}
		q.mu.Unlock()
	}
}

// Recv returns the channel the consumer drains. It is closed after Close
// once every pushed value was delivered.
func (q *Queue[T]) Recv() <-chan T {
	return q.out
}

// Close rejects further pushes. Values already queued are still delivered.
func (q *Queue[T]) Close() {
	q.closed.Store(true)

	q.mu.Lock()
	q.cond.Broadcast()
	q.mu.Unlock()
}

// IsClosed reports whether Close was called.
func (q *Queue[T]) IsClosed() bool {
	return q.closed.Load()
}

// Len returns the number of values pushed but not yet handed to the consumer.
func (q *Queue[T]) Len() int {
	return int(q.length.Load())
}
