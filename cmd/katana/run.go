package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	goerrors "github.com/go-errors/errors"
	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"

	"github.com/steveyegge/katana/internal/config"
	"github.com/steveyegge/katana/internal/engine"
	"github.com/steveyegge/katana/internal/metrics"
	"github.com/steveyegge/katana/internal/registry"
	"github.com/steveyegge/katana/internal/unit"
	"github.com/steveyegge/katana/internal/units"
)

// ErrOutDirExists is returned when the output directory is already there.
var ErrOutDirExists = errors.New("output directory already exists")

func newLogger(w io.Writer, verbose bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

// loadCatalog registers the built-in units and everything found in the
// unit directory. A missing default directory only means no extra units.
func loadCatalog(dir string, explicit bool, log logrus.FieldLogger) (*registry.Catalog, error) {
	opts := append(units.Loaders(), registry.WithLogger(log), registry.WithVersion(version))
	catalog := registry.New(opts...)
	if err := units.RegisterAll(catalog); err != nil {
		return nil, err
	}

	path, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("expanding unit directory: %w", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) && !explicit {
		log.Debugf("unit directory %s not found, using built-in units", path)
		return catalog, nil
	}
	if err := catalog.Discover(path); err != nil {
		return nil, err
	}

	var warnings *multierror.Error
	if errors.As(catalog.Warnings(), &warnings) {
		for _, w := range warnings.Errors {
			log.Warnf("skipped unit: %v", w)
		}
	}
	return catalog, nil
}

// checkOutDir fails if the output directory exists.
func checkOutDir(dir string) error {
	if _, err := os.Stat(dir); err == nil {
		return fmt.Errorf("%w: %s", ErrOutDirExists, dir)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("checking output directory: %w", err)
	}
	return nil
}

// createOutDir creates the output directory. os.Mkdir fails when the
// directory appeared since checkOutDir, so results are never merged.
func createOutDir(dir string) error {
	if err := os.MkdirAll(filepath.Dir(filepath.Clean(dir)), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if err := os.Mkdir(dir, 0o755); err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: %s", ErrOutDirExists, dir)
		}
		return fmt.Errorf("creating output directory: %w", err)
	}
	return nil
}

// serveMetrics serves m on addr until the returned function is called.
func serveMetrics(addr string, m *metrics.Metrics, log logrus.FieldLogger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Warn("metrics server stopped")
		}
	}()
	log.Debugf("serving metrics on %s/metrics", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// runKatana performs a full run and prints the summary to stdout.
func runKatana(ctx context.Context, cfg *config.Config, explicitUnitDir bool, stdout, stderr io.Writer) error {
	log := newLogger(stderr, cfg.Verbose)

	if err := checkOutDir(cfg.OutDir); err != nil {
		return err
	}

	catalog, err := loadCatalog(cfg.UnitDir, explicitUnitDir, log)
	if err != nil {
		return err
	}
	resolution := catalog.Resolve(cfg.Units)

	green := color.New(color.FgGreen, color.Bold).SprintFunc()
	m := metrics.New()
	opts := []engine.Option{
		engine.WithLogger(log),
		engine.WithMetrics(m),
		engine.WithFlagHook(func(u unit.Unit, flag string) {
			fmt.Fprintf(stdout, "%s %s (%s)\n", green("✓"), green(flag), u.Name())
		}),
	}
	if showProgress(cfg) {
		opts = append(opts, engine.WithProgress(stderr))
	}

	eng, err := engine.New(cfg, resolution, opts...)
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		stop := serveMetrics(cfg.MetricsAddr, m, log)
		defer stop()
	}

	if err := createOutDir(cfg.OutDir); err != nil {
		return err
	}

	summary, err := eng.Run(ctx)
	if err != nil {
		return err
	}
	printSummary(stdout, summary)
	return nil
}

// showProgress reports whether to draw the progress line. color.NoColor is
// set when stdout is not a terminal.
func showProgress(cfg *config.Config) bool {
	return !cfg.Quiet && !cfg.Verbose && !color.NoColor
}

func printSummary(w io.Writer, s *engine.Summary) {
	green := color.New(color.FgGreen).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	if s.Interrupted {
		fmt.Fprintf(w, "\n%s Interrupted, results are partial\n", yellow("⚠"))
	}
	fmt.Fprintf(w, "\n%s Run complete in %s\n\n", green("✓"), cyan(s.Duration.Round(time.Millisecond)))
	fmt.Fprintf(w, "  Units run: %s\n", cyan(s.Selected))
	fmt.Fprintf(w, "  Cases evaluated: %s\n", cyan(s.Evaluated))
	if s.Failures > 0 {
		fmt.Fprintf(w, "  Failures: %s\n", yellow(s.Failures))
	}
	if len(s.Blacklisted) > 0 {
		fmt.Fprintf(w, "  Disabled units: %s\n", gray(fmt.Sprint(s.Blacklisted)))
	}

	if len(s.Flags) == 0 {
		fmt.Fprintf(w, "  Flags: %s\n", gray("none found"))
	} else {
		fmt.Fprintf(w, "  Flags:\n")
		for _, flag := range s.Flags {
			fmt.Fprintf(w, "    %s\n", green(flag))
		}
	}
	fmt.Fprintf(w, "\n%s Results written to %s\n", gray("→"), cyan(s.Output))
}

// printError reports a fatal error, with its stack when one was captured
// and verbose output is on.
func printError(w io.Writer, err error, verbose bool) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(w, "%s Error: %v\n", red("✗"), err)

	var stack *goerrors.Error
	if verbose && errors.As(err, &stack) {
		fmt.Fprintln(w, stack.ErrorStack())
	}
}
