package unit

import (
	"errors"
	"fmt"
)

// ErrNotApplicable is returned by Type.New when a unit declines a target.
// It is expected and is not treated as a failure.
var ErrNotApplicable = errors.New("unit not applicable to target")

// NotApplicable wraps ErrNotApplicable with a reason.
func NotApplicable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotApplicable, fmt.Sprintf(format, args...))
}

// IsNotApplicable reports whether err signals a declined target.
func IsNotApplicable(err error) bool {
	return errors.Is(err, ErrNotApplicable)
}

// MissingDependencyError reports an external tool a unit type needs but
// could not find.
type MissingDependencyError struct {
	Unit       string
	Dependency string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("%s: missing dependency %q", e.Unit, e.Dependency)
}
