// Package units provides katana's built-in unit types and the loader for
// unit types defined in YAML.
package units

import (
	"fmt"

	"github.com/steveyegge/katana/internal/registry"
)

// RegisterAll registers every built-in unit type.
func RegisterAll(c *registry.Catalog) error {
	for _, t := range Builtins() {
		if err := c.Register(t); err != nil {
			return fmt.Errorf("registering builtin %s: %w", t.Info().Name, err)
		}
	}
	return nil
}

// Loaders returns the registry options that teach a catalog to read YAML
// unit definitions.
func Loaders() []registry.Option {
	return []registry.Option{
		registry.WithLoader(".yaml", LoadDefinition),
		registry.WithLoader(".yml", LoadDefinition),
	}
}
