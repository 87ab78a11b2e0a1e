// Package domain contains the core tabu data structure. BoundedDedupQueue
// remembers the most recently inserted distinct elements up to a fixed
// capacity and evicts the oldest one first when full.
package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidCapacity is returned when a queue is constructed with a
// negative capacity.
var ErrInvalidCapacity = errors.New("capacity must be non-negative")

// maxSizeHint bounds the member map preallocation. Storage beyond it grows
// with inserts, so an empty high-capacity queue stays small.
const maxSizeHint = 1024

// BoundedDedupQueue is a fixed-capacity set with strict FIFO eviction.
// Membership queries never change eviction order, and re-inserting a
// resident element is a no-op.
//
// BoundedDedupQueue is not safe for concurrent use. Callers sharing a queue
// between goroutines must serialize all calls themselves.
type BoundedDedupQueue[T comparable] struct {
	capacity int
	// ring holds resident elements in insertion order starting at head.
	// It grows by append until it reaches capacity and then rotates.
	ring    []T
	head    int
	size    int
	members map[T]struct{}
}

// NewBoundedDedupQueue creates an empty queue holding at most capacity
// elements. A capacity of zero is legal: every insert evicts itself.
func NewBoundedDedupQueue[T comparable](capacity int) (*BoundedDedupQueue[T], error) {
	if capacity < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, capacity)
	}
	return &BoundedDedupQueue[T]{
		capacity: capacity,
		members:  make(map[T]struct{}, min(capacity, maxSizeHint)),
	}, nil
}

// Find reports whether e was inserted and has not been evicted yet.
func (q *BoundedDedupQueue[T]) Find(e T) bool {
	_, ok := q.members[e]
	return ok
}

// Insert adds e to the back of the queue. If e is already resident nothing
// changes. When the insert pushes the queue past its capacity the oldest
// element is removed and returned with ok set to true.
func (q *BoundedDedupQueue[T]) Insert(e T) (evicted T, ok bool) {
	if q.Find(e) {
		return evicted, false
	}

	if q.capacity == 0 {
		return e, true
	}

	// head stays at zero until the ring is full.
	if q.size < q.capacity {
		q.ring = append(q.ring, e)
		q.size++
		q.members[e] = struct{}{}
		return evicted, false
	}

	// Full: the slot at head holds the oldest element and becomes the back.
	evicted = q.ring[q.head]
	delete(q.members, evicted)
	q.ring[q.head] = e
	q.members[e] = struct{}{}
	q.head = (q.head + 1) % q.capacity

	return evicted, true
}

// Len returns the number of resident elements.
func (q *BoundedDedupQueue[T]) Len() int {
	return q.size
}

// Cap returns the fixed capacity.
func (q *BoundedDedupQueue[T]) Cap() int {
	return q.capacity
}

// Items returns a copy of the resident elements, oldest first.
func (q *BoundedDedupQueue[T]) Items() []T {
	items := make([]T, q.size)
	for i := range q.size {
		items[i] = q.ring[(q.head+i)%q.capacity]
	}
	return items
}
