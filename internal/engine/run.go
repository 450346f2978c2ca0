package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/steveyegge/katana/internal/scheduler"
)

// Summary describes a finished run.
type Summary struct {
	Flags       []string
	Units       []string
	Selected    int64
	Evaluated   int64
	Failures    int64
	Blacklisted []string
	Output      string
	Duration    time.Duration
	Stats       scheduler.Stats

	// Interrupted is set when ctx was cancelled before the work drained.
	// The output still holds everything found up to that point.
	Interrupted bool
}

// Run executes the whole run and writes the result document. It may only
// be called once per engine.
//
// Errors from Run are fatal: selecting the root units failed, or the
// result document could not be written.
func (e *Engine) Run(ctx context.Context) (*Summary, error) {
	if !e.ran.CompareAndSwap(false, true) {
		return nil, errors.New("engine already ran")
	}
	start := time.Now()

	if e.cfg.Auto && len(e.cfg.Units) > 0 {
		e.log.Warn("ignoring --unit options in favor of --auto")
	}

	roots, err := e.Select(ctx, e.cfg.Target, nil, e.cfg.Auto)
	if err != nil {
		return nil, fmt.Errorf("selecting units: %w", err)
	}
	if len(roots) == 0 {
		e.log.Warn("no units applicable to target")
	}
	e.log.Debugf("selected %d root units", len(roots))

	e.sched.Start(ctx)
	stopProgress := e.startProgress()

	e.submit(ctx, roots)
	e.sched.Wait()

	stopProgress()
	if err := e.sched.Shutdown(); err != nil {
		return nil, fmt.Errorf("stopping workers: %w", err)
	}

	path := e.cfg.OutputPath()
	if err := e.results.WriteFile(path); err != nil {
		return nil, fmt.Errorf("writing results: %w", err)
	}

	return &Summary{
		Flags:       e.results.Flags(),
		Units:       e.results.Names(),
		Selected:    e.selected.Load(),
		Evaluated:   e.evaluated.Load(),
		Failures:    e.failures.Load(),
		Blacklisted: e.blacklist.Names(),
		Output:      path,
		Duration:    time.Since(start),
		Stats:       e.sched.Stats(),
		Interrupted: ctx.Err() != nil,
	}, nil
}
