package engine

import (
	"context"
	"errors"
	"fmt"

	goerrors "github.com/go-errors/errors"

	"github.com/steveyegge/katana/internal/scheduler"
	"github.com/steveyegge/katana/internal/unit"
)

// Select instantiates the units that apply to target.
//
// A top-level run without auto uses only the requested types, and a type
// declining the target is reported because the user asked for it by name.
// Otherwise every usable type is tried, except that recursion-protected
// types are skipped when parent or any of its ancestors is protected.
//
// Declined targets are dropped. A missing dependency blacklists the type.
// Any other error from a type constructor, including a panic, stops
// selection and is returned with a stack trace. A cancelled ctx ends
// selection early without error.
func (e *Engine) Select(ctx context.Context, target string, parent unit.Unit, auto bool) ([]unit.Unit, error) {
	explicit := !auto && parent == nil
	candidates := e.resolution.All
	if explicit {
		candidates = e.resolution.Requested
	}
	protected := unit.HasProtectedAncestor(parent)

	var selected []unit.Unit
	for _, t := range candidates {
		if ctx.Err() != nil {
			break
		}

		info := t.Info()
		if e.blacklist.Contains(info.Name) {
			continue
		}
		if protected && info.RecursionProtected {
			continue
		}

		u, err := e.instantiate(t, parent, target)
		if err == nil {
			selected = append(selected, u)
			continue
		}

		log := e.log.WithField("unit", info.Name)
		var missing *unit.MissingDependencyError
		switch {
		case unit.IsNotApplicable(err):
			if explicit {
				log.Warnf("unit not applicable to target: %v", err)
				e.failures.Add(1)
			} else {
				log.Debugf("not applicable: %v", err)
			}
		case errors.As(err, &missing):
			if e.blacklist.Add(info.Name, missing.Error()) {
				log.Warnf("disabling unit: %v", missing)
			}
		default:
			return nil, fmt.Errorf("instantiating %s: %w", info.Name, err)
		}
	}
	return selected, nil
}

// instantiate calls t.New, turning panics and unexpected errors into
// stack-carrying errors.
func (e *Engine) instantiate(t unit.Type, parent unit.Unit, target string) (u unit.Unit, err error) {
	defer func() {
		if r := recover(); r != nil {
			u, err = nil, goerrors.Wrap(r, 2)
		}
	}()

	u, err = t.New(e, parent, target)
	if err != nil {
		var missing *unit.MissingDependencyError
		if unit.IsNotApplicable(err) || errors.As(err, &missing) {
			return nil, err
		}
		return nil, goerrors.Wrap(err, 1)
	}
	if u == nil {
		return nil, goerrors.Errorf("%s returned no unit", t.Info().Name)
	}
	return u, nil
}

// submit queues one work item per unit with a fresh cursor.
func (e *Engine) submit(ctx context.Context, units []unit.Unit) {
	if len(units) == 0 {
		return
	}
	items := make([]scheduler.Item, len(units))
	for i, u := range units {
		items[i] = scheduler.Item{Unit: u, Cursor: e.enumerate(u)}
		e.metrics.UnitsSelected.WithLabelValues(u.Name()).Inc()
	}
	e.selected.Add(int64(len(units)))
	e.sched.Submit(ctx, items...)
}

// enumerate asks u for its cursor. A panic becomes a cursor that fails on
// first use, so the scheduler retires the unit like any other cursor error.
func (e *Engine) enumerate(u unit.Unit) (cur unit.Cursor) {
	defer func() {
		if r := recover(); r != nil {
			cur = unit.Failed(fmt.Errorf("enumerate panicked: %w", goerrors.Wrap(r, 2)))
		}
	}()
	cur = u.Enumerate(e)
	if cur == nil {
		cur = unit.Empty()
	}
	return cur
}
