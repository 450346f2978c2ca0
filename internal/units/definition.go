package units

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/google/shlex"
	"gopkg.in/yaml.v3"

	"github.com/steveyegge/katana/internal/registry"
	"github.com/steveyegge/katana/internal/unit"
)

// Definition kinds.
const (
	KindPattern = "pattern"
	KindCommand = "command"
	KindDecode  = "decode"
)

// Definition is a unit type described in YAML instead of Go.
//
// Example definition (units/jwt.yaml):
//
//	name: jwt
//	description: "Pull JSON Web Tokens out of the target"
//	kind: pattern
//	applies_to: "eyJ"
//	pattern:
//	  regex: "eyJ[A-Za-z0-9_-]+\\.[A-Za-z0-9_-]+\\.[A-Za-z0-9_-]*"
//	  recurse: true
//
// A command unit runs an external tool:
//
//	name: exiftool
//	kind: command
//	protected: true
//	command:
//	  run: "exiftool -a {file}"
//	  timeout: 30s
//	  recurse: lines
type Definition struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Kind         string   `yaml:"kind"`
	MinVersion   string   `yaml:"min_version,omitempty"`
	Dependencies []string `yaml:"dependencies,omitempty"`
	Protected    bool     `yaml:"protected,omitempty"`

	// AppliesTo is a regex the target must match unless --force is set.
	AppliesTo string `yaml:"applies_to,omitempty"`

	Pattern *PatternSpec `yaml:"pattern,omitempty"`
	Command *CommandSpec `yaml:"command,omitempty"`
	Decode  *DecodeSpec  `yaml:"decode,omitempty"`
}

// PatternSpec extracts regex matches from the target.
type PatternSpec struct {
	Regex string `yaml:"regex"`
	// Group selects a capture group; 0 is the whole match.
	Group   int  `yaml:"group,omitempty"`
	Recurse bool `yaml:"recurse,omitempty"`
}

// CommandSpec runs an external program against the target.
type CommandSpec struct {
	// Run is split with shell quoting rules. {target} is replaced by the
	// target text and {file} by a path holding the target data.
	Run     string `yaml:"run"`
	Timeout string `yaml:"timeout,omitempty"`
	// Recurse is "", "output" (whole stdout) or "lines".
	Recurse string `yaml:"recurse,omitempty"`
}

// DecodeSpec chains built-in transforms.
type DecodeSpec struct {
	Steps   []string `yaml:"steps"`
	Recurse bool     `yaml:"recurse,omitempty"`
}

const defaultCommandTimeout = 60 * time.Second

// LoadDefinition reads a unit definition from a YAML file.
//
// A file that parses but has no name or kind returns registry.ErrNotAUnit
// so discovery can skip unrelated YAML living in the unit directory.
func LoadDefinition(path string) (unit.Type, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading definition: %w", err)
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	if def.Name == "" || def.Kind == "" {
		return nil, fmt.Errorf("%w: name and kind are required", registry.ErrNotAUnit)
	}

	t, err := def.Compile(path)
	if err != nil {
		return nil, fmt.Errorf("invalid definition %s: %w", def.Name, err)
	}
	return t, nil
}

// Compile validates the definition and builds its unit type.
func (d *Definition) Compile(source string) (unit.Type, error) {
	t := &definedType{def: *d, source: source}

	if d.AppliesTo != "" {
		re, err := regexp.Compile(d.AppliesTo)
		if err != nil {
			return nil, fmt.Errorf("applies_to: %w", err)
		}
		t.appliesTo = re
	}

	switch d.Kind {
	case KindPattern:
		if d.Pattern == nil || d.Pattern.Regex == "" {
			return nil, fmt.Errorf("pattern.regex is required")
		}
		re, err := regexp.Compile(d.Pattern.Regex)
		if err != nil {
			return nil, fmt.Errorf("pattern.regex: %w", err)
		}
		if d.Pattern.Group < 0 || d.Pattern.Group > re.NumSubexp() {
			return nil, fmt.Errorf("pattern.group %d out of range", d.Pattern.Group)
		}
		t.pattern = re

	case KindCommand:
		if d.Command == nil || d.Command.Run == "" {
			return nil, fmt.Errorf("command.run is required")
		}
		argv, err := shlex.Split(d.Command.Run)
		if err != nil {
			return nil, fmt.Errorf("command.run: %w", err)
		}
		if len(argv) == 0 {
			return nil, fmt.Errorf("command.run is empty")
		}
		t.argv = argv
		t.timeout = defaultCommandTimeout
		if d.Command.Timeout != "" {
			timeout, err := time.ParseDuration(d.Command.Timeout)
			if err != nil {
				return nil, fmt.Errorf("command.timeout: %w", err)
			}
			t.timeout = timeout
		}
		switch d.Command.Recurse {
		case "", "output", "lines":
		default:
			return nil, fmt.Errorf("command.recurse must be output or lines (got %q)", d.Command.Recurse)
		}

	case KindDecode:
		if d.Decode == nil || len(d.Decode.Steps) == 0 {
			return nil, fmt.Errorf("decode.steps is required")
		}
		for _, step := range d.Decode.Steps {
			fn, ok := lookupTransform(step)
			if !ok {
				return nil, fmt.Errorf("unknown decode step %q (have %v)", step, TransformNames())
			}
			t.steps = append(t.steps, fn)
		}

	default:
		return nil, fmt.Errorf("%w: unknown kind %q", registry.ErrNotAUnit, d.Kind)
	}

	return t, nil
}

// definedType is a unit type compiled from a Definition.
type definedType struct {
	def       Definition
	source    string
	appliesTo *regexp.Regexp
	pattern   *regexp.Regexp
	argv      []string
	timeout   time.Duration
	steps     []Transform
}

func (t *definedType) Info() unit.Info {
	deps := append([]string(nil), t.def.Dependencies...)
	if t.def.Kind == KindCommand && !contains(deps, t.argv[0]) {
		deps = append(deps, t.argv[0])
	}
	return unit.Info{
		Name:               t.def.Name,
		Description:        t.def.Description,
		Dependencies:       deps,
		RecursionProtected: t.def.Protected,
		Source:             t.source,
	}
}

// MinVersion implements registry.Versioned.
func (t *definedType) MinVersion() string { return t.def.MinVersion }

func (t *definedType) New(e unit.Engine, parent unit.Unit, target string) (unit.Unit, error) {
	if t.appliesTo != nil && !e.Config().Force && !t.appliesTo.MatchString(target) {
		return nil, unit.NotApplicable("target does not match %s", t.appliesTo)
	}
	return &definedUnit{Base: unit.NewBase(t.Info(), parent, target), typ: t}, nil
}

type definedUnit struct {
	*unit.Base
	typ *definedType
}

func (u *definedUnit) Enumerate(unit.Engine) unit.Cursor {
	return unit.Cases(u.Target())
}

func (u *definedUnit) Evaluate(ctx context.Context, e unit.Engine, _ unit.Case) (unit.Result, error) {
	switch u.typ.def.Kind {
	case KindPattern:
		return u.evaluatePattern(ctx, e)
	case KindCommand:
		return u.evaluateCommand(ctx, e)
	default:
		return u.evaluateDecode(ctx, e)
	}
}

func (u *definedUnit) evaluatePattern(ctx context.Context, e unit.Engine) (unit.Result, error) {
	data, _ := readTarget(u.Target())
	spec := u.typ.def.Pattern

	var matches []string
	for _, m := range u.typ.pattern.FindAllStringSubmatch(string(data), -1) {
		if s := m[spec.Group]; s != "" {
			matches = append(matches, s)
		}
	}
	if len(matches) == 0 {
		return nil, nil
	}
	if spec.Recurse {
		for _, m := range matches {
			e.Recurse(ctx, u, m)
		}
	}
	return unit.Result{"matches": matches}, nil
}

func (u *definedUnit) evaluateDecode(ctx context.Context, e unit.Engine) (unit.Result, error) {
	out := u.Target()
	for i, step := range u.typ.steps {
		next, err := step(out)
		if err != nil {
			// wrong guess about the encoding, nothing to record
			u.SetCompleted()
			return nil, unit.NotApplicable("step %d (%s): %v", i+1, u.typ.def.Decode.Steps[i], err)
		}
		out = next
	}
	if u.typ.def.Decode.Recurse {
		e.Recurse(ctx, u, out)
	}
	return unit.Result{"decoded": out}, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
