package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	goerrors "github.com/go-errors/errors"
	"github.com/sirupsen/logrus"

	"github.com/steveyegge/katana/internal/scheduler"
	"github.com/steveyegge/katana/internal/unit"
)

// Evaluate implements scheduler.Handler. Failures are logged and counted;
// nothing a unit does here can stop the worker.
func (e *Engine) Evaluate(ctx context.Context, u unit.Unit, c unit.Case) {
	log := e.unitLogger(ctx, u)
	if e.cfg.Verbose {
		log.Debug("entering unit")
		defer log.Debug("exiting unit")
	}

	start := time.Now()
	r, err := e.call(ctx, u, c)
	e.metrics.EvaluationDuration.WithLabelValues(u.Name()).Observe(time.Since(start).Seconds())
	e.metrics.CasesEvaluated.WithLabelValues(u.Name()).Inc()
	e.evaluated.Add(1)

	if err != nil {
		e.evaluationFailed(log, u, err)
		return
	}
	if len(r) == 0 {
		return
	}
	e.AddResults(u, r)
	e.scanResult(u, r)
}

// CursorFailed implements scheduler.Handler.
func (e *Engine) CursorFailed(ctx context.Context, u unit.Unit, err error) {
	e.evaluationFailed(e.unitLogger(ctx, u), u, err)
}

func (e *Engine) evaluationFailed(log logrus.FieldLogger, u unit.Unit, err error) {
	var missing *unit.MissingDependencyError
	switch {
	case unit.IsNotApplicable(err):
		log.Debugf("unit gave up: %v", err)
		return
	case errors.As(err, &missing):
		u.SetCompleted()
		if e.blacklist.Add(u.Name(), missing.Error()) {
			log.Warnf("disabling unit: %v", missing)
		}
		return
	}

	e.failures.Add(1)
	e.metrics.EvaluationFailures.WithLabelValues(u.Name()).Inc()
	log.WithError(err).Warn("evaluation failed")

	var stack *goerrors.Error
	if errors.As(err, &stack) {
		log.Debug(stack.ErrorStack())
	}
}

// call runs u.Evaluate, converting a panic into an error.
func (e *Engine) call(ctx context.Context, u unit.Unit, c unit.Case) (r unit.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			r, err = nil, fmt.Errorf("evaluate panicked: %w", goerrors.Wrap(p, 2))
		}
	}()
	return u.Evaluate(ctx, e, c)
}

func (e *Engine) unitLogger(ctx context.Context, u unit.Unit) logrus.FieldLogger {
	fields := logrus.Fields{"unit": u.Name(), "unit_id": u.ID()}
	if id, ok := scheduler.WorkerID(ctx); ok {
		fields["worker"] = id
	}
	return e.log.WithFields(fields)
}
