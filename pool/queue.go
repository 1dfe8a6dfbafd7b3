package pool

import (
	"sync"
	"sync/atomic"
)

// WorkQueue is a FIFO buffer of pending tasks shared by all workers of a
// pool. Every mutation happens under mu; size mirrors len(items) so callers
// can read an advisory length without taking the lock.
type WorkQueue struct {
	mu    sync.Mutex
	items []Task
	head  int
	size  atomic.Int64

	// observe, when set, is told the new length under mu after every change
	observe func(int)
}

func NewWorkQueue() *WorkQueue {
	return &WorkQueue{}
}

func (q *WorkQueue) changed() {
	if q.observe != nil {
		q.observe(int(q.size.Load()))
	}
}

// Push appends t to the back of the queue. nil tasks are ignored.
func (q *WorkQueue) Push(t Task) {
	if t == nil {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, t)
	q.size.Add(1)
	q.changed()
}

// PushBatch appends tasks in order under a single lock acquisition and
// returns how many were queued.
func (q *WorkQueue) PushBatch(tasks ...Task) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, t := range tasks {
		if t == nil {
			continue
		}
		q.items = append(q.items, t)
		n++
	}
	q.size.Add(int64(n))
	q.changed()

	return n
}

// TryPop removes and returns the task at the front of the queue. It never
// blocks; ok is false when the queue is empty.
func (q *WorkQueue) TryPop() (t Task, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head == len(q.items) {
		return nil, false
	}

	t = q.items[q.head]
	q.items[q.head] = nil
	q.head++
	q.size.Add(-1)
	q.changed()

	// reclaim the consumed prefix once it dominates the backing array
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head >= 64 && q.head*2 >= len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}

	return t, true
}

// Drain removes every pending task and returns them in FIFO order.
func (q *WorkQueue) Drain() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Task, len(q.items)-q.head)
	copy(out, q.items[q.head:])

	q.items = nil
	q.head = 0
	q.size.Store(0)
	q.changed()

	return out
}

// Size is advisory: it is only exact while no other goroutine is pushing
// or popping.
func (q *WorkQueue) Size() int {
	return int(q.size.Load())
}
