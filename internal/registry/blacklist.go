package registry

import (
	"sort"

	"github.com/puzpuzpuz/xsync/v3"
)

// Blacklist is the set of unit type names that must not be instantiated
// again during a run: user exclusions plus types that reported a missing
// dependency at instantiation time. Safe for concurrent use.
type Blacklist struct {
	names *xsync.MapOf[string, string]
}

// NewBlacklist creates a blacklist seeded with excluded names.
func NewBlacklist(excluded ...string) *Blacklist {
	b := &Blacklist{names: xsync.NewMapOf[string, string]()}
	for _, name := range excluded {
		b.Add(name, "excluded")
	}
	return b
}

// Add blacklists name. It reports whether the name was newly added.
func (b *Blacklist) Add(name, reason string) bool {
	_, loaded := b.names.LoadOrStore(name, reason)
	return !loaded
}

// Contains reports whether name is blacklisted.
func (b *Blacklist) Contains(name string) bool {
	_, ok := b.names.Load(name)
	return ok
}

// Reason returns why name was blacklisted.
func (b *Blacklist) Reason(name string) (string, bool) {
	return b.names.Load(name)
}

// Names returns the blacklisted names, sorted.
func (b *Blacklist) Names() []string {
	var names []string
	b.names.Range(func(name, _ string) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}
