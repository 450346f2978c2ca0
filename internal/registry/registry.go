// Package registry builds the catalog of unit types a run can select from.
//
// Types come from two places: built-in types registered in code, and the
// unit directory, which is walked for YAML unit definitions and Go plugins.
// Resolve then filters the catalog down to the types whose external tools
// are installed and splits out the ones the user asked for by name.
package registry

import (
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/mod/semver"

	"github.com/steveyegge/katana/internal/unit"
)

// ReservedName cannot be used as a unit name; it is the flag list key in
// the output document.
const ReservedName = "flags"

// ErrNotAUnit is returned by a loader when a file exists and parses but
// does not describe a usable unit type. Such files are skipped.
var ErrNotAUnit = errors.New("not a unit definition")

// LoaderFunc loads a unit type from a file in the unit directory.
type LoaderFunc func(path string) (unit.Type, error)

// LookPathFunc resolves an external tool name, like exec.LookPath.
type LookPathFunc func(file string) (string, error)

// Versioned is implemented by types that require a minimum engine version.
type Versioned interface {
	MinVersion() string
}

// Catalog manages unit type registration and lookup.
type Catalog struct {
	mu       sync.RWMutex
	types    map[string]unit.Type
	loaders  map[string]LoaderFunc
	lookPath LookPathFunc
	version  string
	log      logrus.FieldLogger
	warnings *multierror.Error
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLoader handles files with the given extension (including the dot).
func WithLoader(ext string, fn LoaderFunc) Option {
	return func(c *Catalog) { c.loaders[ext] = fn }
}

// WithLookPath replaces exec.LookPath for dependency checks.
func WithLookPath(fn LookPathFunc) Option {
	return func(c *Catalog) { c.lookPath = fn }
}

// WithVersion sets the engine version compared against MinVersion.
func WithVersion(v string) Option {
	return func(c *Catalog) { c.version = v }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Catalog) { c.log = log }
}

// New creates an empty catalog. Go plugins (.so) are loaded by default;
// other formats are added with WithLoader.
func New(opts ...Option) *Catalog {
	c := &Catalog{
		types:    make(map[string]unit.Type),
		loaders:  map[string]LoaderFunc{".so": LoadPlugin},
		lookPath: exec.LookPath,
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds a unit type to the catalog.
func (c *Catalog) Register(t unit.Type) error {
	info := t.Info()
	if info.Name == "" {
		return fmt.Errorf("unit type has no name")
	}
	if info.Name == ReservedName {
		return fmt.Errorf("unit name %q is reserved", info.Name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.types[info.Name]; exists {
		return fmt.Errorf("unit %q already registered", info.Name)
	}
	c.types[info.Name] = t
	return nil
}

// Get returns a registered type by name.
func (c *Catalog) Get(name string) (unit.Type, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.types[name]
	return t, ok
}

// List returns all registered type names, sorted.
func (c *Catalog) List() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.types))
	for name := range c.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Types returns all registered types, sorted by name.
func (c *Catalog) Types() []unit.Type {
	names := c.List()

	c.mu.RLock()
	defer c.mu.RUnlock()

	types := make([]unit.Type, len(names))
	for i, name := range names {
		types[i] = c.types[name]
	}
	return types
}

// Warnings returns the non-fatal problems met during discovery, or nil.
func (c *Catalog) Warnings() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.warnings.ErrorOrNil()
}

func (c *Catalog) warn(err error) {
	c.mu.Lock()
	c.warnings = multierror.Append(c.warnings, err)
	c.mu.Unlock()
}

// MissingDependencies returns the declared dependencies of t that cannot
// be found.
func (c *Catalog) MissingDependencies(t unit.Type) []string {
	var missing []string
	for _, dep := range t.Info().Dependencies {
		if _, err := c.lookPath(dep); err != nil {
			missing = append(missing, dep)
		}
	}
	return missing
}

// compatible reports whether t can run on this engine version.
func (c *Catalog) compatible(t unit.Type) error {
	v, ok := t.(Versioned)
	if !ok || v.MinVersion() == "" || c.version == "" {
		return nil
	}
	minimum := v.MinVersion()
	if !semver.IsValid(minimum) {
		return fmt.Errorf("%s: invalid min_version %q", t.Info().Name, minimum)
	}
	if !semver.IsValid(c.version) {
		// development builds accept everything
		return nil
	}
	if semver.Compare(c.version, minimum) < 0 {
		return fmt.Errorf("%s: requires katana %s (running %s)", t.Info().Name, minimum, c.version)
	}
	return nil
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	// All holds every usable type, sorted by name.
	All []unit.Type

	// Requested holds the usable types named by the user, in request order.
	Requested []unit.Type

	// NotFound lists requested names that are not usable.
	NotFound []string

	// Unavailable maps type names to their missing external tools.
	Unavailable map[string][]string
}

// Resolve filters the catalog to usable types and picks out the requested
// names. A type missing an external tool is skipped without error.
func (c *Catalog) Resolve(requested []string) *Resolution {
	res := &Resolution{Unavailable: make(map[string][]string)}
	usable := make(map[string]unit.Type)

	for _, t := range c.Types() {
		name := t.Info().Name
		if missing := c.MissingDependencies(t); len(missing) > 0 {
			c.log.WithField("unit", name).Debugf("skipping unit: missing %v", missing)
			res.Unavailable[name] = missing
			continue
		}
		usable[name] = t
		res.All = append(res.All, t)
	}

	seen := make(map[string]bool)
	for _, name := range requested {
		if seen[name] {
			continue
		}
		seen[name] = true
		if t, ok := usable[name]; ok {
			res.Requested = append(res.Requested, t)
		} else {
			res.NotFound = append(res.NotFound, name)
		}
	}
	return res
}
