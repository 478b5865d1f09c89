// Package par runs work items in parallel.
package par

import (
	"container/heap"
	"sync"
)

// Work is a set of items processed by a bounded number of goroutines, each
// item at most once. Items may be added while the set is being processed.
//
// Pending items are dispatched lowest Priority first; items of equal
// priority run in the order they were added.
type Work[T comparable] struct {
	// Priority orders pending items. When nil, items run in the order they
	// were added.
	Priority func(T) int

	mu      sync.Mutex
	cond    sync.Cond
	added   map[T]bool
	pending queue[T]
	seq     int
	active  int
	started bool
}

func (w *Work[T]) init() {
	if w.added == nil {
		w.added = make(map[T]bool)
		w.cond.L = &w.mu
	}
}

// Add adds item to the work set, if it hasn't already been added.
func (w *Work[T]) Add(item T) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.init()
	if w.added[item] {
		return
	}
	w.added[item] = true
	e := entry[T]{item: item, seq: w.seq}
	w.seq++
	if w.Priority != nil {
		e.prio = w.Priority(item)
	}
	heap.Push(&w.pending, e)
	w.cond.Signal()
}

// Added reports whether item has been added to the set.
func (w *Work[T]) Added(item T) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.added[item]
}

// Do calls f on every item of the set with at most n calls running at a
// time, and returns once no item is pending and no call is running. f may
// add new items. Do should only be used once on a given Work.
func (w *Work[T]) Do(n int, f func(item T)) {
	if n < 1 {
		panic("par.Work.Do: n < 1")
	}
	w.mu.Lock()
	w.init()
	if w.started {
		w.mu.Unlock()
		panic("par.Work.Do: already called Do")
	}
	w.started = true

	var wg sync.WaitGroup
	for {
		for w.pending.Len() == 0 || w.active == n {
			if w.pending.Len() == 0 && w.active == 0 {
				w.mu.Unlock()
				wg.Wait()
				return
			}
			w.cond.Wait()
		}
		item := heap.Pop(&w.pending).(entry[T]).item
		w.active++
		wg.Add(1)
		go func() {
			defer wg.Done()
			f(item)
			w.mu.Lock()
			w.active--
			w.cond.Signal()
			w.mu.Unlock()
		}()
	}
}

type entry[T any] struct {
	item T
	prio int
	seq  int
}

// queue is a min-heap of entries by priority, then insertion order.
type queue[T any] []entry[T]

func (q queue[T]) Len() int { return len(q) }

func (q queue[T]) Less(i, j int) bool {
	if q[i].prio != q[j].prio {
		return q[i].prio < q[j].prio
	}
	return q[i].seq < q[j].seq
}

func (q queue[T]) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *queue[T]) Push(x any) { *q = append(*q, x.(entry[T])) }

func (q *queue[T]) Pop() any {
	old := *q
	e := old[len(old)-1]
	*q = old[:len(old)-1]
	return e
}
