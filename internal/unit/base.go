package unit

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Base implements the bookkeeping half of Unit. Concrete units embed it and
// supply Enumerate and Evaluate.
type Base struct {
	id        string
	info      Info
	target    string
	parent    Unit
	ancestors []Unit
	completed atomic.Bool
}

// NewBase binds info to target under parent. parent may be nil for a root
// unit. The family tree is captured once here; a parent's ancestry never
// changes after the parent is created.
func NewBase(info Info, parent Unit, target string) *Base {
	b := &Base{
		id:     uuid.New().String(),
		info:   info,
		target: target,
		parent: parent,
	}
	if parent != nil {
		tree := parent.FamilyTree()
		b.ancestors = make([]Unit, 0, len(tree)+1)
		b.ancestors = append(b.ancestors, tree...)
		b.ancestors = append(b.ancestors, parent)
	}
	return b
}

// ID returns a per-instance identifier used to correlate log lines.
func (b *Base) ID() string { return b.id }

// Name returns the unit type name.
func (b *Base) Name() string { return b.info.Name }

// Info returns the metadata of the type this unit was created from.
func (b *Base) Info() Info { return b.info }

// Target returns the payload the unit is bound to.
func (b *Base) Target() string { return b.target }

// Parent returns the unit whose evaluation produced this unit's target,
// or nil for a root unit.
func (b *Base) Parent() Unit { return b.parent }

// FamilyTree returns a copy of the ancestor chain, root first.
func (b *Base) FamilyTree() []Unit {
	out := make([]Unit, len(b.ancestors))
	copy(out, b.ancestors)
	return out
}

// Depth is len(FamilyTree()) without the copy.
func (b *Base) Depth() int { return len(b.ancestors) }

// RecursionProtected reports the static flag declared by the type.
func (b *Base) RecursionProtected() bool { return b.info.RecursionProtected }

// Completed reports whether the unit has been retired.
func (b *Base) Completed() bool { return b.completed.Load() }

// SetCompleted retires the unit.
func (b *Base) SetCompleted() { b.completed.Store(true) }

// Names returns the unit names of units, in order.
func Names(units []Unit) []string {
	names := make([]string, len(units))
	for i, u := range units {
		names[i] = u.Name()
	}
	return names
}

// HasProtectedAncestor reports whether parent, or any unit in parent's
// family tree, is recursion-protected.
func HasProtectedAncestor(parent Unit) bool {
	if parent == nil {
		return false
	}
	if parent.RecursionProtected() {
		return true
	}
	for _, p := range parent.FamilyTree() {
		if p.RecursionProtected() {
			return true
		}
	}
	return false
}
