package loop

import (
	"container/heap"
	"time"
)

// TimerID identifies a scheduled timer for ClearTimeout.
type TimerID int64

type timer struct {
	id       TimerID
	deadline time.Time
	seq      int64
	task     task
	index    int
}

// timerHeap is a min-heap ordered by deadline, then by scheduling seq.
type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

func (h timerHeap) peek() (*timer, bool) {
	if len(h) == 0 {
		return nil, false
	}
	return h[0], true
}

// popDue removes and returns the earliest timer if its deadline is at or
// before now.
func (h *timerHeap) popDue(now time.Time) (*timer, bool) {
	t, ok := h.peek()
	if !ok || t.deadline.After(now) {
		return nil, false
	}
	return heap.Pop(h).(*timer), true
}
