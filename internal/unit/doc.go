// Package unit defines the contract between the katana engine and the
// checkers it orchestrates.
//
// A Type is the static, catalogued description of a checker (name,
// external-tool dependencies, recursion protection) plus a factory. A Unit
// is one activation of a Type bound to a single target. The engine never
// knows what a unit checks for; it only drives the two halves of the
// protocol:
//
//  1. Enumerate returns a Cursor over the cases the unit wants evaluated.
//     The cursor is lazy and is advanced by at most one worker at a time.
//  2. Evaluate runs one case. It may record results, look for flags and
//     feed newly discovered data back into the engine through Recurse.
//
// Unit types decline targets they cannot handle by returning
// ErrNotApplicable from New. A type whose external tool turns out to be
// missing returns a *MissingDependencyError and is blacklisted for the rest
// of the run.
//
// Concrete units embed *Base, which implements the bookkeeping half of the
// Unit interface (identity, ancestry and the cooperative completed flag):
//
//	type reverseUnit struct {
//		*unit.Base
//	}
//
//	func (u *reverseUnit) Enumerate(e unit.Engine) unit.Cursor {
//		return unit.Cases(u.Target())
//	}
package unit
