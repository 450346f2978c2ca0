package units

import (
	"context"
	"os"

	"github.com/steveyegge/katana/internal/unit"
)

// Source is the Info.Source of compiled-in unit types.
const Source = "builtin"

// maxFileSize bounds how much of a file target is read.
const maxFileSize = 16 << 20

// readTarget returns the contents of target when it names a regular file,
// and the target text itself otherwise.
func readTarget(target string) ([]byte, bool) {
	info, err := os.Stat(target)
	if err != nil || !info.Mode().IsRegular() || info.Size() > maxFileSize {
		return []byte(target), false
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return []byte(target), false
	}
	return data, true
}

// rawType matches the flag format against the target itself.
type rawType struct{}

func (rawType) Info() unit.Info {
	return unit.Info{
		Name:        "raw",
		Description: "Search the target (or the file it names) for flags",
		Source:      Source,
	}
}

func (t rawType) New(_ unit.Engine, parent unit.Unit, target string) (unit.Unit, error) {
	return &rawUnit{Base: unit.NewBase(t.Info(), parent, target)}, nil
}

type rawUnit struct {
	*unit.Base
}

func (u *rawUnit) Enumerate(unit.Engine) unit.Cursor {
	return unit.Cases(u.Target())
}

func (u *rawUnit) Evaluate(_ context.Context, e unit.Engine, _ unit.Case) (unit.Result, error) {
	data, isFile := readTarget(u.Target())
	e.LocateFlags(u, string(data), true)
	if !isFile {
		return nil, nil
	}
	return unit.Result{"file": u.Target(), "size": len(data)}, nil
}

// transformType decodes the target with a single transform and recurses
// into the output.
type transformType struct {
	name        string
	description string
	transform   Transform
	applies     func(string) bool
}

func (t *transformType) Info() unit.Info {
	return unit.Info{Name: t.name, Description: t.description, Source: Source}
}

func (t *transformType) New(e unit.Engine, parent unit.Unit, target string) (unit.Unit, error) {
	if !e.Config().Force && t.applies != nil && !t.applies(target) {
		return nil, unit.NotApplicable("%s does not look like %s input", target, t.name)
	}
	return &transformUnit{Base: unit.NewBase(t.Info(), parent, target), transform: t.transform}, nil
}

type transformUnit struct {
	*unit.Base
	transform Transform
}

func (u *transformUnit) Enumerate(unit.Engine) unit.Cursor {
	return unit.Cases(u.Target())
}

func (u *transformUnit) Evaluate(ctx context.Context, e unit.Engine, c unit.Case) (unit.Result, error) {
	out, err := u.transform(c.(string))
	if err != nil || out == "" || out == u.Target() {
		// undecodable input is a dead end, not a failure
		return nil, nil
	}
	if p := u.Parent(); p != nil && p.Target() == out {
		// reverse of a reverse
		return nil, nil
	}
	e.Recurse(ctx, u, out)
	return unit.Result{"decoded": out}, nil
}

// rotType tries every Caesar shift of the target.
type rotType struct{}

func (rotType) Info() unit.Info {
	return unit.Info{
		Name:               "rot",
		Description:        "Try all 25 Caesar rotations of the target",
		RecursionProtected: true,
		Source:             Source,
	}
}

func (t rotType) New(e unit.Engine, parent unit.Unit, target string) (unit.Unit, error) {
	if !e.Config().Force && !hasLetter(target) {
		return nil, unit.NotApplicable("no letters to rotate")
	}
	return &rotUnit{Base: unit.NewBase(t.Info(), parent, target)}, nil
}

type rotUnit struct {
	*unit.Base
}

func (u *rotUnit) Enumerate(unit.Engine) unit.Cursor {
	return unit.Range(1, 26)
}

func (u *rotUnit) Evaluate(_ context.Context, _ unit.Engine, c unit.Case) (unit.Result, error) {
	shift := c.(int)
	return unit.Result{"shift": shift, "result": rotate(u.Target(), shift)}, nil
}

func hasLetter(s string) bool {
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' {
			return true
		}
	}
	return false
}

// stringsType extracts printable runs from a file target.
type stringsType struct{}

const minStringLength = 4

func (stringsType) Info() unit.Info {
	return unit.Info{
		Name:               "strings",
		Description:        "Extract printable strings from a file and recurse into each",
		RecursionProtected: true,
		Source:             Source,
	}
}

func (t stringsType) New(_ unit.Engine, parent unit.Unit, target string) (unit.Unit, error) {
	data, isFile := readTarget(target)
	if !isFile {
		return nil, unit.NotApplicable("target is not a file")
	}
	return &stringsUnit{Base: unit.NewBase(t.Info(), parent, target), data: data}, nil
}

type stringsUnit struct {
	*unit.Base
	data []byte
}

func (u *stringsUnit) Enumerate(unit.Engine) unit.Cursor {
	runs := printableRuns(u.data, minStringLength)
	u.data = nil
	cases := make([]unit.Case, len(runs))
	for i, r := range runs {
		cases[i] = r
	}
	return unit.Cases(cases...)
}

func (u *stringsUnit) Evaluate(ctx context.Context, e unit.Engine, c unit.Case) (unit.Result, error) {
	s := c.(string)
	if !e.LocateFlags(u, s, false) {
		e.Recurse(ctx, u, s)
	}
	return nil, nil
}

// Builtins returns the compiled-in unit types.
func Builtins() []unit.Type {
	return []unit.Type{
		rawType{},
		&transformType{
			name:        "base64",
			description: "Decode base64 (standard or URL alphabet, padded or not)",
			transform:   decodeBase64,
			applies:     base64Pattern.MatchString,
		},
		&transformType{
			name:        "hex",
			description: "Decode hexadecimal bytes",
			transform:   decodeHex,
			applies:     hexPattern.MatchString,
		},
		&transformType{
			name:        "urldecode",
			description: "Decode percent-encoded text",
			transform:   decodeURL,
			applies:     func(s string) bool { return containsPercentEscape(s) },
		},
		&transformType{
			name:        "reverse",
			description: "Reverse the target",
			transform:   reverse,
		},
		rotType{},
		stringsType{},
	}
}

func containsPercentEscape(s string) bool {
	for i := 0; i+2 < len(s); i++ {
		if s[i] == '%' && isHex(s[i+1]) && isHex(s[i+2]) {
			return true
		}
	}
	return false
}

func isHex(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}
