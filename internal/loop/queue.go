package loop

import "sync"

// ingressQueue is a thread-safe FIFO of macrotasks posted from outside the
// loop goroutine (I/O and dynamic-import completions).
//
// The signal channel has a buffer of one so that repeated posts coalesce
// into a single wakeup; the loop always drains by TryDequeue after waking.
type ingressQueue struct {
	mu     sync.Mutex
	tasks  []task
	closed bool
	signal chan struct{}
}

func newIngressQueue() *ingressQueue {
	return &ingressQueue{
		tasks:  make([]task, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends t. Returns false once the queue is closed.
func (q *ingressQueue) Enqueue(t task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.tasks = append(q.tasks, t)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front task without blocking.
func (q *ingressQueue) TryDequeue() (task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return task{}, false
	}
	t := q.tasks[0]
	// Clear the slot so the closure can be collected.
	q.tasks[0] = task{}
	if len(q.tasks) == 1 {
		q.tasks = q.tasks[:0]
	} else {
		q.tasks = q.tasks[1:]
	}
	return t, true
}

// Wait returns a channel that fires when tasks may be available.
func (q *ingressQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued tasks.
func (q *ingressQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Close rejects further posts. Queued tasks are dropped by the caller.
func (q *ingressQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
