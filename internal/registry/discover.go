package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
)

// Discover walks dir for unit definitions and registers every usable type
// it finds.
//
// Errors returned from Discover are fatal: the directory cannot be read, a
// definition file cannot be read or parsed, or a plugin cannot be opened.
// Files that parse but do not define a unit, definitions requiring a newer
// engine, and duplicate names are skipped and reported through Warnings.
func (c *Catalog) Discover(dir string) error {
	if dir == "" {
		return nil
	}
	root, err := homedir.Expand(dir)
	if err != nil {
		return fmt.Errorf("expanding unit directory %s: %w", dir, err)
	}

	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("reading unit directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("unit directory %s is not a directory", root)
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walking unit directory: %w", err)
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		load, ok := c.loaders[strings.ToLower(filepath.Ext(path))]
		if !ok {
			return nil
		}

		t, err := load(path)
		if errors.Is(err, ErrNotAUnit) {
			c.log.WithField("path", path).Debugf("skipping: %v", err)
			c.warn(fmt.Errorf("%s: %w", path, err))
			return nil
		}
		if err != nil {
			return fmt.Errorf("loading unit %s: %w", path, err)
		}

		if err := c.compatible(t); err != nil {
			c.warn(err)
			return nil
		}
		if err := c.Register(t); err != nil {
			c.warn(fmt.Errorf("%s: %w", path, err))
			return nil
		}
		c.log.WithField("unit", t.Info().Name).Debugf("loaded unit from %s", path)
		return nil
	})
}
