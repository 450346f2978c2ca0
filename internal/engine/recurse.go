package engine

import (
	"context"
	"errors"

	goerrors "github.com/go-errors/errors"
	"github.com/sirupsen/logrus"

	"github.com/steveyegge/katana/internal/unit"
)

// Recurse implements unit.Engine. The units selected for data are queued
// before Recurse returns, so the case being evaluated is still outstanding
// while its children become visible to the scheduler.
//
// Once u's family tree reaches the configured depth, u is retired and no
// children are created. Selection errors abort this branch only.
func (e *Engine) Recurse(ctx context.Context, u unit.Unit, data string) {
	if data == "" || ctx.Err() != nil {
		return
	}

	if depth := len(u.FamilyTree()); depth >= e.cfg.MaxDepth {
		u.SetCompleted()
		e.metrics.DepthLimited.Inc()
		e.depthWarning.Do(func() {
			e.log.Warnf("maximum recursion depth (%d) reached, pruning deeper branches", e.cfg.MaxDepth)
		})
		return
	}

	children, err := e.Select(ctx, data, u, true)
	if err != nil {
		e.metrics.SelectionFailures.Inc()
		log := e.log.WithFields(logrus.Fields{"unit": u.Name(), "unit_id": u.ID()})
		log.WithError(err).Error("recursion aborted")
		var stack *goerrors.Error
		if errors.As(err, &stack) {
			log.Debug(stack.ErrorStack())
		}
		return
	}
	e.submit(ctx, children)
}
