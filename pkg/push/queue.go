package push

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrQueueFull   = errors.New("submission queue full")
	ErrQueueClosed = errors.New("submission queue closed")
)

// Queue is the caller-facing submission queue: many producers, one consumer
// (the current generation's writer). Replayed notifications are pushed back
// at the front so they go out ahead of newer submissions.
type Queue struct {
	mu     sync.Mutex
	items  []Notification
	limit  int // 0 means unbounded
	closed bool

	// ready holds at most one wake-up for the single consumer.
	ready chan struct{}
}

func NewQueue(limit int) *Queue {
	if limit < 0 {
		limit = 0
	}
	return &Queue{limit: limit, ready: make(chan struct{}, 1)}
}

// Push appends n at the back.
func (q *Queue) Push(n Notification) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	if q.limit > 0 && len(q.items) >= q.limit {
		q.mu.Unlock()
		return ErrQueueFull
	}
	q.items = append(q.items, n)
	q.mu.Unlock()
	q.wake()
	return nil
}

// PushFront puts ns at the front, keeping their order. It ignores the limit
// and the closed flag: requeued notifications must never be lost here.
func (q *Queue) PushFront(ns []Notification) {
	if len(ns) == 0 {
		return
	}
	q.mu.Lock()
	items := make([]Notification, 0, len(ns)+len(q.items))
	items = append(items, ns...)
	q.items = append(items, q.items...)
	q.mu.Unlock()
	q.wake()
}

// Pop removes the front item, blocking until one is available, the queue is
// closed and empty (ErrQueueClosed), or ctx is done.
func (q *Queue) Pop(ctx context.Context) (Notification, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			n := q.items[0]
			q.items[0] = Notification{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return n, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return Notification{}, ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			return Notification{}, ctx.Err()
		case <-q.ready:
		}
	}
}

// Close stops admitting new submissions. Items already queued stay poppable.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

// Drain removes and returns everything still queued.
func (q *Queue) Drain() []Notification {
	q.mu.Lock()
	out := q.items
	q.items = nil
	q.mu.Unlock()
	return out
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) wake() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
