package units

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/katana/internal/config"
	"github.com/steveyegge/katana/internal/registry"
	"github.com/steveyegge/katana/internal/unit"
)

// fakeEngine records what units report back.
type fakeEngine struct {
	mu       sync.Mutex
	cfg      *config.Config
	flag     *regexp.Regexp
	recursed []string
	flags    []string
	results  []unit.Result
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{cfg: config.Default(), flag: regexp.MustCompile(`FLAG\{.*?\}`)}
}

func (e *fakeEngine) Recurse(_ context.Context, _ unit.Unit, data string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recursed = append(e.recursed, data)
}

func (e *fakeEngine) LocateFlags(u unit.Unit, text string, stop bool) bool {
	m := e.flag.FindString(text)
	if m == "" {
		return false
	}
	e.mu.Lock()
	e.flags = append(e.flags, m)
	e.mu.Unlock()
	if stop {
		u.SetCompleted()
	}
	return true
}

func (e *fakeEngine) AddResults(_ unit.Unit, r unit.Result) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results = append(e.results, r)
}

func (e *fakeEngine) Config() *config.Config { return e.cfg }

// drain evaluates every case of u in order.
func drain(t *testing.T, e *fakeEngine, u unit.Unit) []unit.Result {
	t.Helper()
	ctx := context.Background()
	cur := u.Enumerate(e)
	var out []unit.Result
	for !u.Completed() {
		c, ok, err := cur.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		r, err := u.Evaluate(ctx, e, c)
		if err != nil && !unit.IsNotApplicable(err) {
			require.NoError(t, err)
		}
		if len(r) > 0 {
			out = append(out, r)
		}
	}
	return out
}

func builtin(t *testing.T, name string) unit.Type {
	t.Helper()
	for _, typ := range Builtins() {
		if typ.Info().Name == name {
			return typ
		}
	}
	t.Fatalf("no builtin %q", name)
	return nil
}

func TestTransforms(t *testing.T) {
	tests := []struct {
		name    string
		fn      Transform
		in      string
		want    string
		wantErr bool
	}{
		{"base64 padded", decodeBase64, "RkxBR3thYmN9", "FLAG{abc}", false},
		{"base64 raw url", decodeBase64, "aGk_Pz8", "hi???", false},
		{"base64 binary", decodeBase64, "AAECAwQF", "", true},
		{"hex", decodeHex, "464c41477b787d", "FLAG{x}", false},
		{"hex with prefix and separators", decodeHex, "0x46:4c:41:47", "FLAG", false},
		{"hex invalid", decodeHex, "zz", "", true},
		{"urldecode", decodeURL, "FLAG%7Bx%7D", "FLAG{x}", false},
		{"urldecode nothing", decodeURL, "plain", "", true},
		{"reverse", reverse, "}cba{GALF", "FLAG{abc}", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRotate(t *testing.T) {
	assert.Equal(t, "SYNT{nop}", rotate("FLAG{abc}", 13))
	assert.Equal(t, "FLAG{abc}", rotate(rotate("FLAG{abc}", 7), 19))
	assert.Equal(t, "123 !", rotate("123 !", 5))
}

func TestPrintableRuns(t *testing.T) {
	data := []byte("\x00\x01abc\x02hello\x00world!\x7f12345")
	assert.Equal(t, []string{"hello", "world!", "12345"}, printableRuns(data, 4))
}

func TestRawUnit(t *testing.T) {
	e := newFakeEngine()
	u, err := builtin(t, "raw").New(e, nil, "xx FLAG{abc} yy")
	require.NoError(t, err)

	assert.Empty(t, drain(t, e, u))
	assert.Equal(t, []string{"FLAG{abc}"}, e.flags)
	assert.True(t, u.Completed())
}

func TestRawUnitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "challenge.txt")
	require.NoError(t, os.WriteFile(path, []byte("inside FLAG{file}"), 0o644))

	e := newFakeEngine()
	u, err := builtin(t, "raw").New(e, nil, path)
	require.NoError(t, err)

	results := drain(t, e, u)
	require.Len(t, results, 1)
	assert.Equal(t, path, results[0]["file"])
	assert.Equal(t, []string{"FLAG{file}"}, e.flags)
}

func TestTransformUnit(t *testing.T) {
	e := newFakeEngine()
	u, err := builtin(t, "base64").New(e, nil, "RkxBR3thYmN9")
	require.NoError(t, err)

	results := drain(t, e, u)
	require.Len(t, results, 1)
	assert.Equal(t, "FLAG{abc}", results[0]["decoded"])
	assert.Equal(t, []string{"FLAG{abc}"}, e.recursed)
}

func TestTransformUnitNotApplicable(t *testing.T) {
	e := newFakeEngine()
	_, err := builtin(t, "hex").New(e, nil, "not hex at all")
	assert.True(t, unit.IsNotApplicable(err))

	e.cfg.Force = true
	_, err = builtin(t, "hex").New(e, nil, "not hex at all")
	assert.NoError(t, err)
}

func TestReverseDoesNotPingPong(t *testing.T) {
	e := newFakeEngine()
	rev := builtin(t, "reverse")

	parent, err := rev.New(e, nil, "abc")
	require.NoError(t, err)
	child, err := rev.New(e, parent, "cba")
	require.NoError(t, err)

	assert.Empty(t, drain(t, e, child))
	assert.Empty(t, e.recursed)
}

func TestRotUnit(t *testing.T) {
	e := newFakeEngine()
	typ := builtin(t, "rot")
	assert.True(t, typ.Info().RecursionProtected)

	u, err := typ.New(e, nil, "SYNT{nop}")
	require.NoError(t, err)

	results := drain(t, e, u)
	assert.Len(t, results, 25)
	assert.Equal(t, "FLAG{abc}", results[12]["result"])
	assert.Equal(t, 13, results[12]["shift"])

	_, err = typ.New(e, nil, "1234")
	assert.True(t, unit.IsNotApplicable(err))
}

func TestStringsUnit(t *testing.T) {
	e := newFakeEngine()
	typ := builtin(t, "strings")

	_, err := typ.New(e, nil, "just text")
	assert.True(t, unit.IsNotApplicable(err))

	path := filepath.Join(t.TempDir(), "bin")
	require.NoError(t, os.WriteFile(path, []byte("\x00\x01RkxBR3t9\x00\x02ab\x00FLAG{in_binary}\x00"), 0o644))

	u, err := typ.New(e, nil, path)
	require.NoError(t, err)
	drain(t, e, u)

	assert.Equal(t, []string{"RkxBR3t9"}, e.recursed)
	assert.Equal(t, []string{"FLAG{in_binary}"}, e.flags)
	assert.False(t, u.Completed())
}

func writeDefinition(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefinitionPattern(t *testing.T) {
	path := writeDefinition(t, t.TempDir(), "emails.yaml", `
name: emails
description: "Find email addresses"
kind: pattern
applies_to: "@"
pattern:
  regex: "([a-z]+)@example\\.com"
  group: 1
  recurse: true
`)
	typ, err := LoadDefinition(path)
	require.NoError(t, err)
	assert.Equal(t, "emails", typ.Info().Name)
	assert.Equal(t, path, typ.Info().Source)

	e := newFakeEngine()
	_, err = typ.New(e, nil, "no addresses")
	assert.True(t, unit.IsNotApplicable(err))

	u, err := typ.New(e, nil, "alice@example.com, bob@example.com")
	require.NoError(t, err)
	results := drain(t, e, u)
	require.Len(t, results, 1)
	assert.Equal(t, []string{"alice", "bob"}, results[0]["matches"])
	assert.Equal(t, []string{"alice", "bob"}, e.recursed)
}

func TestLoadDefinitionDecode(t *testing.T) {
	path := writeDefinition(t, t.TempDir(), "b64rev.yml", `
name: b64rev
kind: decode
min_version: v0.2.0
decode:
  steps: [reverse, base64]
`)
	typ, err := LoadDefinition(path)
	require.NoError(t, err)

	v, ok := typ.(registry.Versioned)
	require.True(t, ok)
	assert.Equal(t, "v0.2.0", v.MinVersion())

	e := newFakeEngine()
	u, err := typ.New(e, nil, "9NmYht3RBxkR")
	require.NoError(t, err)
	results := drain(t, e, u)
	require.Len(t, results, 1)
	assert.Equal(t, "FLAG{abc}", results[0]["decoded"])
	assert.Empty(t, e.recursed)

	bad, err := typ.New(e, nil, "!!!")
	require.NoError(t, err)
	assert.Empty(t, drain(t, e, bad))
	assert.True(t, bad.Completed())
}

func TestLoadDefinitionCommand(t *testing.T) {
	path := writeDefinition(t, t.TempDir(), "echo.yaml", `
name: echo
kind: command
dependencies: [sh]
command:
  run: "echo 'got {target}'"
  timeout: 5s
  recurse: lines
`)
	typ, err := LoadDefinition(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"sh", "echo"}, typ.Info().Dependencies)

	if _, err := os.Stat("/bin/echo"); err != nil {
		t.Skip("echo not available")
	}

	e := newFakeEngine()
	u, err := typ.New(e, nil, "FLAG{cmd}")
	require.NoError(t, err)
	results := drain(t, e, u)
	require.Len(t, results, 1)
	assert.Equal(t, "got FLAG{cmd}\n", results[0]["output"])
	assert.Equal(t, []string{"got FLAG{cmd}"}, e.recursed)
}

func TestCommandFilePlaceholder(t *testing.T) {
	typ, err := (&Definition{
		Name:    "cat",
		Kind:    KindCommand,
		Command: &CommandSpec{Run: "cat {file}"},
	}).Compile("test")
	require.NoError(t, err)

	u := &definedUnit{Base: unit.NewBase(typ.Info(), nil, "inline data"), typ: typ.(*definedType)}
	argv, cleanup, err := u.commandArgs()
	require.NoError(t, err)

	data, err := os.ReadFile(argv[1])
	require.NoError(t, err)
	assert.Equal(t, "inline data", string(data))

	cleanup()
	_, err = os.Stat(argv[1])
	assert.True(t, os.IsNotExist(err))
}

func TestLoadDefinitionErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name      string
		body      string
		notAUnit  bool
		errSubstr string
	}{
		{"unrelated yaml", "settings:\n  colour: blue\n", true, "name and kind"},
		{"unknown kind", "name: x\nkind: magic\n", true, "unknown kind"},
		{"bad yaml", "name: [unclosed\n", false, "parsing YAML"},
		{"missing regex", "name: x\nkind: pattern\n", false, "pattern.regex is required"},
		{"bad regex", "name: x\nkind: pattern\npattern:\n  regex: \"(\"\n", false, "pattern.regex"},
		{"group out of range", "name: x\nkind: pattern\npattern:\n  regex: \"a\"\n  group: 2\n", false, "out of range"},
		{"bad timeout", "name: x\nkind: command\ncommand:\n  run: ls\n  timeout: soon\n", false, "command.timeout"},
		{"bad recurse", "name: x\nkind: command\ncommand:\n  run: ls\n  recurse: always\n", false, "command.recurse"},
		{"unknown step", "name: x\nkind: decode\ndecode:\n  steps: [rot47]\n", false, "unknown decode step"},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeDefinition(t, dir, "def"+string(rune('a'+i))+".yaml", tt.body)
			_, err := LoadDefinition(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
			assert.Equal(t, tt.notAUnit, errorsIsNotAUnit(err))
		})
	}
}

func TestRegisterAllAndDiscover(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "jwt.yaml", "name: jwt\nkind: pattern\npattern:\n  regex: \"eyJ[A-Za-z0-9_.-]+\"\n")
	writeDefinition(t, dir, "notes.yaml", "todo: nothing\n")

	c := registry.New(Loaders()...)
	require.NoError(t, RegisterAll(c))
	require.NoError(t, c.Discover(dir))

	assert.Equal(t, []string{"base64", "hex", "jwt", "raw", "reverse", "rot", "strings", "urldecode"}, c.List())
	assert.Error(t, c.Warnings())

	assert.Error(t, RegisterAll(c), "registering twice must fail")
}

func errorsIsNotAUnit(err error) bool {
	return errors.Is(err, registry.ErrNotAUnit)
}
