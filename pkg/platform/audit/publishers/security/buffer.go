package security

import (
	"sync"

	audit "citywalk/pkg/platform/audit"
)

// queue is a bounded FIFO of security events awaiting persistence. On overflow
// the oldest event is evicted; the caller decides how to account for it.
type queue struct {
	mu     sync.Mutex
	events []audit.SecurityEvent
	head   int // oldest event
	count  int
}

func newQueue(capacity int) *queue {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &queue{events: make([]audit.SecurityEvent, capacity)}
}

// push appends event. When the queue was full it returns the evicted oldest
// event and true.
func (q *queue) push(event audit.SecurityEvent) (audit.SecurityEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var evicted audit.SecurityEvent
	full := q.count == len(q.events)
	if full {
		evicted = q.events[q.head]
		q.head = (q.head + 1) % len(q.events)
		q.count--
	}
	q.events[(q.head+q.count)%len(q.events)] = event
	q.count++
	return evicted, full
}

// pushFront puts events that failed to persist back ahead of newer ones, in
// their original order. Events that no longer fit are the oldest and are not
// requeued; their number is returned.
func (q *queue) pushFront(batch []audit.SecurityEvent) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := len(batch) - 1; i >= 0; i-- {
		if q.count == len(q.events) {
			return i + 1
		}
		q.head = (q.head - 1 + len(q.events)) % len(q.events)
		q.events[q.head] = batch[i]
		q.count++
	}
	return 0
}

// pop removes up to n of the oldest events.
func (q *queue) pop(n int) []audit.SecurityEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	n = min(n, q.count)
	if n == 0 {
		return nil
	}
	out := make([]audit.SecurityEvent, n)
	for i := range out {
		out[i] = q.events[q.head]
		q.events[q.head] = audit.SecurityEvent{}
		q.head = (q.head + 1) % len(q.events)
	}
	q.count -= n
	return out
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}
