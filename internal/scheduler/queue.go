package scheduler

import (
	"sync"

	"github.com/steveyegge/katana/internal/unit"
)

// Item is one queued unit together with the cursor over its remaining
// cases. The zero Item is the poison pill that stops a worker.
type Item struct {
	Unit   unit.Unit
	Cursor unit.Cursor
}

// IsPoison reports whether the item is the worker stop sentinel.
func (i Item) IsPoison() bool {
	return i.Unit == nil && i.Cursor == nil
}

// Queue is a bounded FIFO with task accounting. Every Put increments the
// unfinished count and every TaskDone decrements it; Join blocks until the
// count reaches zero.
//
// Producers outside the pool block while the ready list is full. Workers
// also produce (they re-enqueue cursors and submit recursive units), and if
// every worker blocked on a full queue nothing would ever drain it. A worker
// therefore only blocks while at least one other worker is free; otherwise
// its item goes to an overflow list that Get promotes into the ready list
// one item at a time. Overflow is non-empty only while the ready list is
// full, so the ready list never holds more than capacity items.
type Queue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	allDone  *sync.Cond

	ready    []Item
	overflow []Item
	capacity int

	workers    int
	blocked    int
	unfinished int
	highWater  int
}

// NewQueue creates a queue holding at most capacity ready items, drained by
// the given number of workers.
func NewQueue(capacity, workers int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	if workers < 1 {
		workers = 1
	}
	q := &Queue{
		capacity: capacity,
		workers:  workers,
		ready:    make([]Item, 0, capacity),
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	q.allDone = sync.NewCond(&q.mu)
	return q
}

// Put enqueues item, blocking while the queue is full.
func (q *Queue) Put(item Item) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.ready) >= q.capacity {
		q.notFull.Wait()
	}
	q.push(item)
}

// PutFromWorker enqueues item on behalf of a worker goroutine.
func (q *Queue) PutFromWorker(item Item) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.ready) >= q.capacity {
		if q.blocked+1 >= q.workers {
			q.overflow = append(q.overflow, item)
			q.unfinished++
			return
		}
		q.blocked++
		q.notFull.Wait()
		q.blocked--
	}
	q.push(item)
}

func (q *Queue) push(item Item) {
	q.ready = append(q.ready, item)
	q.unfinished++
	if len(q.ready) > q.highWater {
		q.highWater = len(q.ready)
	}
	q.notEmpty.Signal()
}

// putPoison enqueues a stop sentinel without counting it as work.
func (q *Queue) putPoison() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.ready) >= q.capacity {
		q.notFull.Wait()
	}
	q.ready = append(q.ready, Item{})
	q.notEmpty.Signal()
}

// Get removes and returns the oldest ready item, blocking while the queue
// is empty.
func (q *Queue) Get() Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.ready) == 0 {
		q.notEmpty.Wait()
	}
	item := q.ready[0]
	q.ready[0] = Item{}
	q.ready = q.ready[1:]

	if len(q.overflow) > 0 {
		q.ready = append(q.ready, q.overflow[0])
		q.overflow[0] = Item{}
		q.overflow = q.overflow[1:]
	} else {
		q.notFull.Broadcast()
	}
	return item
}

// TaskDone marks one previously dequeued item as fully processed.
func (q *Queue) TaskDone() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.unfinished--
	if q.unfinished < 0 {
		panic("scheduler: TaskDone called more times than items were queued")
	}
	if q.unfinished == 0 {
		q.allDone.Broadcast()
	}
}

// Join blocks until every queued item has been marked done.
func (q *Queue) Join() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.unfinished > 0 {
		q.allDone.Wait()
	}
}

// Len returns the number of ready items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready)
}

// Overflow returns the number of deferred worker items.
func (q *Queue) Overflow() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.overflow)
}

// Unfinished returns the number of items queued or in progress.
func (q *Queue) Unfinished() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.unfinished
}

// HighWater returns the largest ready length observed.
func (q *Queue) HighWater() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.highWater
}

// Capacity returns the ready-list bound.
func (q *Queue) Capacity() int {
	return q.capacity
}
