package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	// ErrClosed is returned by Enqueue after Close, and by Dequeue once the
	// queue is closed and fully drained.
	ErrClosed = errors.New("queue closed")
	// ErrFull is returned by Enqueue on a full queue using OverflowFailFast.
	ErrFull = errors.New("queue full")
)

// OverflowPolicy decides what Enqueue does when a bounded queue is full.
type OverflowPolicy string

const (
	OverflowBlock      OverflowPolicy = "block"
	OverflowDropOldest OverflowPolicy = "drop_oldest"
	OverflowFailFast   OverflowPolicy = "fail_fast"
)

// ParseOverflowPolicy parses a policy name from configuration.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch p := OverflowPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return OverflowBlock, nil
	case OverflowBlock, OverflowDropOldest, OverflowFailFast:
		return p, nil
	default:
		return "", fmt.Errorf("unsupported overflow policy: %q", s)
	}
}

type Options[T any] struct {
	// Capacity <= 0 means unbounded.
	Capacity int
	Overflow OverflowPolicy
	// OnDrop is called with every item evicted by OverflowDropOldest.
	// It runs while the queue lock is held and must not call back into the queue.
	OnDrop func(T)
}

// Queue is a FIFO queue safe for concurrent producers and consumers.
// Items are dequeued in exactly the order they were enqueued.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	overflow OverflowPolicy
	onDrop   func(T)
	closed   bool

	notEmpty chan struct{}
	notFull  chan struct{}
	closeCh  chan struct{}
}

// New creates and returns a new Queue instance.
func New[T any](opts Options[T]) *Queue[T] {
	overflow := opts.Overflow
	if overflow == "" {
		overflow = OverflowBlock
	}
	return &Queue[T]{
		capacity: opts.Capacity,
		overflow: overflow,
		onDrop:   opts.OnDrop,
		notEmpty: make(chan struct{}, 1),
		notFull:  make(chan struct{}, 1),
		closeCh:  make(chan struct{}),
	}
}

// Enqueue appends an item to the tail of the queue. An unbounded queue never
// blocks. A bounded one applies its overflow policy when full; only
// OverflowBlock waits, and it gives up when ctx is done.
func (q *Queue[T]) Enqueue(ctx context.Context, item T) error {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return ErrClosed
		}
		if q.capacity <= 0 || len(q.items) < q.capacity {
			q.push(item)
			q.mu.Unlock()
			return nil
		}

		switch q.overflow {
		case OverflowFailFast:
			q.mu.Unlock()
			return ErrFull
		case OverflowDropOldest:
			var zero T
			dropped := q.items[0]
			q.items[0] = zero
			q.items = q.items[1:]
			if q.onDrop != nil {
				q.onDrop(dropped)
			}
			q.push(item)
			q.mu.Unlock()
			return nil
		}
		q.mu.Unlock()

		select {
		case <-q.notFull:
		case <-q.closeCh:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// push must be called with q.mu held.
func (q *Queue[T]) push(item T) {
	q.items = append(q.items, item)
	signal(q.notEmpty)
	if q.capacity > 0 && len(q.items) < q.capacity {
		signal(q.notFull)
	}
}

// Dequeue removes and returns the head of the queue, waiting until an item is
// available. It returns ErrClosed once the queue is closed and empty, or the
// context error if ctx is done first. A cancelled call never consumes an item.
func (q *Queue[T]) Dequeue(ctx context.Context) (T, error) {
	var zero T
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = zero
			q.items = q.items[1:]
			if len(q.items) > 0 {
				signal(q.notEmpty)
			}
			signal(q.notFull)
			q.mu.Unlock()
			return item, nil
		}
		if q.closed {
			q.mu.Unlock()
			return zero, ErrClosed
		}
		q.mu.Unlock()

		select {
		case <-q.notEmpty:
		case <-q.closeCh:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Close stops intake. Items already queued can still be dequeued.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.closeCh)
}

// Discard removes all queued items and returns them in queue order.
func (q *Queue[T]) Discard() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	signal(q.notFull)
	return items
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
