// Package results aggregates unit output into a single tree keyed by unit
// name, plus a deduplicated list of flags.
//
// All mutation goes through one mutex. Recording a result for a unit first
// creates (possibly empty) entries for every ancestor in its family tree,
// so a snapshot is always a valid forest regardless of the order in which
// concurrent units finish.
package results

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/steveyegge/katana/internal/unit"
)

// FlagsKey is the top-level key holding the flag list in the output.
const FlagsKey = "flags"

// Entry holds the results recorded for one unit name.
type Entry struct {
	Results []unit.Result `json:"results"`
}

// Tree is the thread-safe result aggregator.
type Tree struct {
	mu      sync.Mutex
	entries map[string]*Entry
	flags   []string
	seen    map[string]struct{}
}

// NewTree creates an empty tree.
func NewTree() *Tree {
	return &Tree{
		entries: make(map[string]*Entry),
		seen:    make(map[string]struct{}),
	}
}

// Record ensures u and all of its ancestors have entries and appends r to
// u's entry when r is non-empty. Existing entries are never replaced.
func (t *Tree) Record(u unit.Unit, r unit.Result) {
	ancestors := u.FamilyTree()

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, p := range ancestors {
		t.ensure(p.Name())
	}
	e := t.ensure(u.Name())
	if len(r) > 0 {
		e.Results = append(e.Results, r)
	}
}

func (t *Tree) ensure(name string) *Entry {
	e, ok := t.entries[name]
	if !ok {
		e = &Entry{Results: []unit.Result{}}
		t.entries[name] = e
	}
	return e
}

// AddFlag appends flag to the flag list unless it is already present. It
// reports whether the flag was new.
func (t *Tree) AddFlag(flag string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, dup := t.seen[flag]; dup {
		return false
	}
	t.seen[flag] = struct{}{}
	t.flags = append(t.flags, flag)
	return true
}

// Flags returns the flags found so far, in discovery order.
func (t *Tree) Flags() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string{}, t.flags...)
}

// Names returns the unit names present in the tree, sorted.
func (t *Tree) Names() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	names := make([]string, 0, len(t.entries))
	for name := range t.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Results returns a copy of the results recorded under name.
func (t *Tree) Results(name string) ([]unit.Result, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[name]
	if !ok {
		return nil, false
	}
	return append([]unit.Result{}, e.Results...), true
}

// Count returns the total number of recorded results.
func (t *Tree) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, e := range t.entries {
		n += len(e.Results)
	}
	return n
}

// Snapshot returns the output document: one key per unit name plus the
// flag list under FlagsKey.
func (t *Tree) Snapshot() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]any, len(t.entries)+1)
	for name, e := range t.entries {
		out[name] = Entry{Results: append([]unit.Result{}, e.Results...)}
	}
	out[FlagsKey] = append([]string{}, t.flags...)
	return out
}

// MarshalJSON renders the snapshot. encoding/json sorts map keys.
func (t *Tree) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Snapshot())
}

// WriteFile writes the indented snapshot to path, failing if the file
// already exists.
func (t *Tree) WriteFile(path string) error {
	data, err := json.MarshalIndent(t.Snapshot(), "", "    ")
	if err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
