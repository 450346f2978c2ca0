// Package scheduler drives unit cursors across a fixed pool of workers.
//
// Each queued Item pairs a unit with the cursor over its remaining cases.
// A worker takes an item, pulls exactly one case, puts the item straight
// back on the queue and only then evaluates the case. Units therefore
// advance round-robin instead of one unit monopolising a worker, while a
// given cursor is only ever advanced by the worker currently holding it.
//
// Completion is detected with the queue's task accounting: an item is
// marked done only after its evaluation returns, and anything the
// evaluation submitted (recursive units) is queued before that. Wait
// returning therefore means every known and every discovered unit has
// drained.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	goerrors "github.com/go-errors/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/katana/internal/unit"
)

// Handler evaluates cases on behalf of the scheduler. Implementations must
// contain their own failures; the scheduler does not inspect outcomes.
type Handler interface {
	Evaluate(ctx context.Context, u unit.Unit, c unit.Case)

	// CursorFailed is called when advancing a unit's cursor returned an
	// error or panicked. The unit has already been retired.
	CursorFailed(ctx context.Context, u unit.Unit, err error)
}

type workerKey struct{}

// WorkerID returns the index of the worker running ctx, if any.
func WorkerID(ctx context.Context) (int, bool) {
	id, ok := ctx.Value(workerKey{}).(int)
	return id, ok
}

// Scheduler owns the work queue and the worker pool.
type Scheduler struct {
	queue   *Queue
	threads int
	handler Handler
	log     logrus.FieldLogger

	group     errgroup.Group
	startOnce sync.Once
	stopOnce  sync.Once

	submitted atomic.Int64
	pulled    atomic.Int64
	retired   atomic.Int64
}

// New creates a scheduler with threads workers and a queue bound of
// 2*threads.
func New(threads int, handler Handler, log logrus.FieldLogger) *Scheduler {
	if threads < 1 {
		threads = 1
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scheduler{
		queue:   NewQueue(2*threads, threads),
		threads: threads,
		handler: handler,
		log:     log,
	}
}

// Queue exposes the underlying queue for progress reporting.
func (s *Scheduler) Queue() *Queue {
	return s.queue
}

// Threads returns the worker count.
func (s *Scheduler) Threads() int {
	return s.threads
}

// Start launches the workers. Cancelling ctx makes workers discard queued
// items instead of advancing them; they still exit only on a poison pill.
func (s *Scheduler) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		for i := 0; i < s.threads; i++ {
			id := i
			wctx := context.WithValue(ctx, workerKey{}, id)
			s.group.Go(func() error {
				s.worker(wctx, id)
				return nil
			})
		}
	})
}

// Submit queues items. Calls made from a worker (recursive submission
// during evaluation) use the worker-side put so the pool cannot deadlock
// on a full queue.
func (s *Scheduler) Submit(ctx context.Context, items ...Item) {
	_, fromWorker := WorkerID(ctx)
	for _, item := range items {
		if item.IsPoison() {
			continue
		}
		s.submitted.Add(1)
		if fromWorker {
			s.queue.PutFromWorker(item)
		} else {
			s.queue.Put(item)
		}
	}
}

// Wait blocks until all submitted work, including work submitted while
// waiting, has been processed.
func (s *Scheduler) Wait() {
	s.queue.Join()
}

// Shutdown sends one poison pill per worker and waits for all workers to
// exit. Call it after Wait.
func (s *Scheduler) Shutdown() error {
	var err error
	s.stopOnce.Do(func() {
		for i := 0; i < s.threads; i++ {
			s.queue.putPoison()
		}
		err = s.group.Wait()
	})
	return err
}

// Stats is a point-in-time view of scheduler counters.
type Stats struct {
	Submitted  int64
	Pulled     int64
	Retired    int64
	Queued     int
	Overflow   int
	Unfinished int
	HighWater  int
}

// Stats returns the current counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Submitted:  s.submitted.Load(),
		Pulled:     s.pulled.Load(),
		Retired:    s.retired.Load(),
		Queued:     s.queue.Len(),
		Overflow:   s.queue.Overflow(),
		Unfinished: s.queue.Unfinished(),
		HighWater:  s.queue.HighWater(),
	}
}

func (s *Scheduler) worker(ctx context.Context, id int) {
	log := s.log.WithField("worker", id)
	log.Debug("worker started")
	defer log.Debug("worker exited")

	for {
		item := s.queue.Get()
		if item.IsPoison() {
			return
		}
		s.step(ctx, item)
	}
}

// step processes one dequeued item. The item is marked done only after the
// evaluation returns.
func (s *Scheduler) step(ctx context.Context, item Item) {
	defer s.queue.TaskDone()

	u := item.Unit
	if u.Completed() || ctx.Err() != nil {
		s.retired.Add(1)
		return
	}

	c, ok, err := next(ctx, item.Cursor)
	if err != nil {
		u.SetCompleted()
		s.retired.Add(1)
		s.handler.CursorFailed(ctx, u, err)
		return
	}
	if !ok {
		s.retired.Add(1)
		return
	}
	s.pulled.Add(1)

	// Put the cursor back before evaluating so other workers can pick up
	// other units' cases, or this unit's next case, in the meantime.
	s.queue.PutFromWorker(item)

	s.handler.Evaluate(ctx, u, c)
}

func next(ctx context.Context, cur unit.Cursor) (c unit.Case, ok bool, err error) {
	if cur == nil {
		return nil, false, nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cursor panicked: %w", goerrors.Wrap(r, 2))
			c, ok = nil, false
		}
	}()
	return cur.Next(ctx)
}
