package unit

import (
	"context"
)

// Cursor is a resumable iterator over a unit's cases. Next returns the next
// case, or ok == false once the sequence is exhausted. A cursor is owned by
// exactly one queued work item and is never advanced concurrently.
type Cursor interface {
	Next(ctx context.Context) (c Case, ok bool, err error)
}

// CursorFunc adapts a function to the Cursor interface.
type CursorFunc func(ctx context.Context) (Case, bool, error)

// Next calls f.
func (f CursorFunc) Next(ctx context.Context) (Case, bool, error) {
	return f(ctx)
}

type sliceCursor struct {
	cases []Case
	pos   int
}

func (s *sliceCursor) Next(context.Context) (Case, bool, error) {
	if s.pos >= len(s.cases) {
		return nil, false, nil
	}
	c := s.cases[s.pos]
	s.cases[s.pos] = nil
	s.pos++
	return c, true, nil
}

// Cases returns a cursor over a fixed list of cases.
func Cases(cases ...Case) Cursor {
	return &sliceCursor{cases: cases}
}

// Empty returns a cursor with no cases.
func Empty() Cursor {
	return &sliceCursor{}
}

// Range returns a cursor producing the integers [from, to) lazily.
func Range(from, to int) Cursor {
	next := from
	return CursorFunc(func(context.Context) (Case, bool, error) {
		if next >= to {
			return nil, false, nil
		}
		n := next
		next++
		return n, true, nil
	})
}

// Failed returns a cursor whose first Next reports err.
func Failed(err error) Cursor {
	return CursorFunc(func(context.Context) (Case, bool, error) {
		return nil, false, err
	})
}
