package util

import (
	"runtime"
	"sync/atomic"
)

// node is a single element of the linked list
type node[T any] struct {
	value T
	next  atomic.Pointer[node[T]]
}

// LockFreeMPSC is a lock-free multi-producer queue whose items are handed out
// through a channel. Producers append to a linked list with CAS operations, a
// single internal goroutine moves the items into the channel.
//
// Any number of goroutines may receive from Recv() at the same time, which
// turns the queue into the task feed of a worker pool.
type LockFreeMPSC[T any] struct {
	head atomic.Pointer[node[T]]
	tail atomic.Pointer[node[T]]
	size atomic.Int64

	out    chan T
	wake   chan struct{}
	done   chan struct{}
	closed atomic.Bool
}

// NewLockFreeMPSC creates a new queue and starts its forwarding goroutine
func NewLockFreeMPSC[T any]() *LockFreeMPSC[T] {
	sentinel := &node[T]{}
	q := &LockFreeMPSC[T]{
		out:  make(chan T),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	go q.forward()
	return q
}

// Push appends an item. It returns false if the queue is already closed.
//
// Thread-safety: Push may be called from any number of goroutines.
func (q *LockFreeMPSC[T]) Push(value T) bool {
	if q.closed.Load() {
		return false
	}
	n := &node[T]{value: value}

	for spins := 0; ; spins++ {
		tail := q.tail.Load()
		next := tail.next.Load()
		if next != nil {
			// another producer linked a node but did not move the tail yet
			q.tail.CompareAndSwap(tail, next)
			continue
		}
		if tail.next.CompareAndSwap(nil, n) {
			q.tail.CompareAndSwap(tail, n)
			break
		}
		// contention, back off a little before retrying
		for i := 0; i < 1<<min(spins, 6); i++ {
			runtime.Gosched()
		}
	}

	q.size.Add(1)
	q.notify()
	return true
}

// Recv returns the channel the queued items are delivered on. It is closed
// after Close once every queued item has been received.
func (q *LockFreeMPSC[T]) Recv() <-chan T {
	return q.out
}

// Close rejects further pushes. Items already queued are still delivered.
func (q *LockFreeMPSC[T]) Close() {
	if q.closed.CompareAndSwap(false, true) {
		q.notify()
	}
}

// Done is closed when the forwarding goroutine has delivered everything and exited
func (q *LockFreeMPSC[T]) Done() <-chan struct{} {
	return q.done
}

// IsClosed returns true if the queue is closed
func (q *LockFreeMPSC[T]) IsClosed() bool {
	return q.closed.Load()
}

// Len returns the number of items not yet handed to a receiver
func (q *LockFreeMPSC[T]) Len() int {
	return int(q.size.Load())
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (q *LockFreeMPSC[T]) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// forward moves items from the list into the out channel
func (q *LockFreeMPSC[T]) forward() {
	defer close(q.done)
	defer close(q.out)

	var zero T
	for {
		head := q.head.Load()
		next := head.next.Load()
		if next == nil {
			if q.closed.Load() {
				// a producer may have linked a node between the two loads
				if head.next.Load() == nil {
					return
				}
				continue
			}
			<-q.wake
			continue
		}

		q.out <- next.value
		next.value = zero // the node becomes the new sentinel, drop the reference
		q.head.Store(next)
		q.size.Add(-1)
	}
}
