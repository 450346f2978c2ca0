package registry

import (
	"fmt"
	"plugin"

	"github.com/steveyegge/katana/internal/unit"
)

// PluginSymbol is the symbol a Go plugin must export.
const PluginSymbol = "Unit"

// LoadPlugin loads a unit type from a Go plugin (.so).
//
// The plugin must export a variable named Unit of type unit.Type:
//
//	// my_unit.go
//	package main
//
//	import "github.com/steveyegge/katana/internal/unit"
//
//	var Unit unit.Type = myType{}
//
// Build as plugin:
//
//	go build -buildmode=plugin -o my_unit.so my_unit.go
func LoadPlugin(path string) (unit.Type, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening plugin: %w", err)
	}

	sym, err := p.Lookup(PluginSymbol)
	if err != nil {
		return nil, fmt.Errorf("%w: plugin does not export %q", ErrNotAUnit, PluginSymbol)
	}
	return pluginType(sym)
}

// pluginType extracts a unit.Type from a looked-up symbol. Exported
// variables come back as pointers.
func pluginType(sym plugin.Symbol) (unit.Type, error) {
	switch v := sym.(type) {
	case *unit.Type:
		if v == nil || *v == nil {
			return nil, fmt.Errorf("%w: %q is nil", ErrNotAUnit, PluginSymbol)
		}
		return *v, nil
	case unit.Type:
		return v, nil
	default:
		return nil, fmt.Errorf("%w: %q is %T, not unit.Type", ErrNotAUnit, PluginSymbol, sym)
	}
}
