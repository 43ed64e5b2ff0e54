package analytics

import "sync"

const initialQueueCapacity = 64

// queue is an unbounded FIFO ring. It grows instead of dropping so Track never
// loses or blocks on an event.
type queue struct {
	mu     sync.Mutex
	events []Event
	head   int // next read position
	count  int
}

func newQueue() *queue {
	return &queue{events: make([]Event, initialQueueCapacity)}
}

func (q *queue) push(ev Event) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == len(q.events) {
		q.grow()
	}
	q.events[(q.head+q.count)%len(q.events)] = ev
	q.count++
	return q.count
}

// grow doubles capacity, unwrapping the ring so head is at index zero.
func (q *queue) grow() {
	next := make([]Event, len(q.events)*2)
	for i := 0; i < q.count; i++ {
		next[i] = q.events[(q.head+i)%len(q.events)]
	}
	q.events = next
	q.head = 0
}

// pop removes the oldest event. ok is false when the queue is empty.
func (q *queue) pop() (ev Event, remaining int, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return Event{}, 0, false
	}
	ev = q.events[q.head]
	q.events[q.head] = Event{}
	q.head = (q.head + 1) % len(q.events)
	q.count--
	return ev, q.count, true
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}
