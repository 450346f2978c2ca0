// Package engine drives a katana run.
//
// The engine owns the pieces that the rest of the tree only sees through
// interfaces: the scheduler's handler, the unit.Engine callbacks units use
// to recurse and report flags, the result tree and the blacklist. A run
// selects the units for the root target, feeds them to the scheduler,
// waits until every known and recursively discovered case has drained and
// writes katana.json.
package engine

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/steveyegge/katana/internal/config"
	"github.com/steveyegge/katana/internal/metrics"
	"github.com/steveyegge/katana/internal/registry"
	"github.com/steveyegge/katana/internal/results"
	"github.com/steveyegge/katana/internal/scheduler"
	"github.com/steveyegge/katana/internal/unit"
)

// ErrNoUnits is returned by New when nothing was requested and --auto is
// off.
var ErrNoUnits = errors.New("no units to run: request units with --unit or use --auto")

// FlagHook is called once for each distinct flag, from the worker that
// found it.
type FlagHook func(u unit.Unit, flag string)

// Engine coordinates one run. It implements unit.Engine for the units it
// creates and scheduler.Handler for its workers.
type Engine struct {
	cfg        *config.Config
	resolution *registry.Resolution
	blacklist  *registry.Blacklist
	flag       *regexp.Regexp
	results    *results.Tree
	metrics    *metrics.Metrics
	sched      *scheduler.Scheduler
	log        logrus.FieldLogger

	onFlag   FlagHook
	progress io.Writer

	depthWarning rate.Sometimes

	ran       atomic.Bool
	selected  atomic.Int64
	evaluated atomic.Int64
	failures  atomic.Int64
}

var (
	_ unit.Engine       = (*Engine)(nil)
	_ scheduler.Handler = (*Engine)(nil)
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default is logrus' standard logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(e *Engine) { e.log = log }
}

// WithMetrics makes the engine report into m instead of a private set.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithFlagHook registers fn to be told about every new flag.
func WithFlagHook(fn FlagHook) Option {
	return func(e *Engine) { e.onFlag = fn }
}

// WithProgress enables the progress line, written to w.
func WithProgress(w io.Writer) Option {
	return func(e *Engine) { e.progress = w }
}

// New builds an engine for cfg. resolution is the catalog filtered by
// Catalog.Resolve for cfg.Units.
func New(cfg *config.Config, resolution *registry.Resolution, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	e := &Engine{
		cfg:          cfg,
		resolution:   resolution,
		blacklist:    registry.NewBlacklist(cfg.Exclude...),
		results:      results.NewTree(),
		log:          logrus.StandardLogger(),
		depthWarning: rate.Sometimes{First: 1},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = metrics.New()
	}

	if cfg.FlagFormat != "" {
		re, err := CompileFlagFormat(cfg.FlagFormat)
		if err != nil {
			return nil, err
		}
		e.flag = re
	}

	for _, name := range resolution.NotFound {
		e.log.WithField("unit", name).Warn("requested unit not found")
	}
	if !cfg.Auto && len(resolution.Requested) == 0 {
		return nil, ErrNoUnits
	}

	e.sched = scheduler.New(cfg.Threads, e, e.log)
	q := e.sched.Queue()
	e.metrics.RegisterQueue(q.Len, q.Unfinished)
	return e, nil
}

// CompileFlagFormat compiles a user flag pattern with case-insensitive,
// multiline and dot-matches-newline semantics.
func CompileFlagFormat(format string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?ims)(" + format + ")")
	if err != nil {
		return nil, fmt.Errorf("invalid flag format %q: %w", format, err)
	}
	return re, nil
}

// Config implements unit.Engine.
func (e *Engine) Config() *config.Config { return e.cfg }

// Results returns the result tree.
func (e *Engine) Results() *results.Tree { return e.results }

// Blacklist returns the set of unit types disabled for this run.
func (e *Engine) Blacklist() *registry.Blacklist { return e.blacklist }

// Metrics returns the engine's collectors.
func (e *Engine) Metrics() *metrics.Metrics { return e.metrics }

// Stats returns scheduler counters.
func (e *Engine) Stats() scheduler.Stats { return e.sched.Stats() }
