package unit

import (
	"context"

	"github.com/steveyegge/katana/internal/config"
)

// Case is one discrete piece of work a unit wants evaluated. The engine
// treats it as opaque and hands it back to the unit that produced it.
type Case any

// Result is a single result record produced by a unit. A nil or empty
// Result means the evaluation produced nothing worth recording.
type Result map[string]any

// Info is the static metadata a unit type declares.
type Info struct {
	// Name is the stable identifier used for selection and as the key in
	// the result tree.
	Name string

	// Description is a one-line summary shown by `katana units`.
	Description string

	// Dependencies lists external tools that must be on PATH for the type
	// to be usable.
	Dependencies []string

	// RecursionProtected types are never scheduled against a target whose
	// ancestry already contains a recursion-protected unit.
	RecursionProtected bool

	// Source records where the type came from ("builtin", a definition
	// file or a plugin path).
	Source string
}

// Type is a catalogued unit type.
type Type interface {
	Info() Info

	// New binds the type to a target. It returns ErrNotApplicable when the
	// target is not something this type handles.
	New(e Engine, parent Unit, target string) (Unit, error)
}

// Unit is an activation of a Type bound to one target.
type Unit interface {
	ID() string
	Name() string
	Target() string
	Parent() Unit

	// FamilyTree returns the ancestors of the unit, root first. The unit
	// itself is not included.
	FamilyTree() []Unit

	RecursionProtected() bool
	Completed() bool

	// SetCompleted retires the unit. The scheduler never advances a
	// completed unit's cursor again.
	SetCompleted()

	Enumerate(e Engine) Cursor
	Evaluate(ctx context.Context, e Engine, c Case) (Result, error)
}

// Engine is the view of the engine that units are allowed to call into.
type Engine interface {
	// Recurse feeds newly discovered data back into unit selection as a
	// child of u. It returns once the resulting units are queued.
	Recurse(ctx context.Context, u Unit, data string)

	// LocateFlags searches text for the configured flag pattern and
	// records the first match. When stop is set a match retires u.
	LocateFlags(u Unit, text string, stop bool) bool

	// AddResults records r under u in the result tree.
	AddResults(u Unit, r Result)

	Config() *config.Config
}
