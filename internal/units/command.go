package units

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/steveyegge/katana/internal/unit"
)

const (
	targetPlaceholder = "{target}"
	filePlaceholder   = "{file}"
)

// maxOutput bounds the stdout kept from a command unit.
const maxOutput = 1 << 20

func (u *definedUnit) evaluateCommand(ctx context.Context, e unit.Engine) (unit.Result, error) {
	argv, cleanup, err := u.commandArgs()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(ctx, u.typ.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if errors.Is(err, exec.ErrNotFound) {
		return nil, &unit.MissingDependencyError{Unit: u.Name(), Dependency: argv[0]}
	}
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("%s timed out after %s", argv[0], u.typ.timeout)
	}

	out := stdout.String()
	if len(out) > maxOutput {
		out = out[:maxOutput]
	}
	if err != nil && out == "" {
		return nil, fmt.Errorf("%s failed: %w: %s", argv[0], err, strings.TrimSpace(stderr.String()))
	}
	if strings.TrimSpace(out) == "" {
		return nil, nil
	}

	switch u.typ.def.Command.Recurse {
	case "output":
		e.Recurse(ctx, u, out)
	case "lines":
		for _, line := range strings.Split(out, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				e.Recurse(ctx, u, line)
			}
		}
	}
	return unit.Result{"output": out}, nil
}

// commandArgs substitutes the placeholders in the command line. When
// {file} is used and the target is not already a file, the target text is
// written to a temporary file that cleanup removes.
func (u *definedUnit) commandArgs() ([]string, func(), error) {
	cleanup := func() {}
	target := u.Target()
	file := target

	if usesPlaceholder(u.typ.argv, filePlaceholder) {
		if _, isFile := readTarget(target); !isFile {
			f, err := os.CreateTemp("", "katana-"+u.Name()+"-*")
			if err != nil {
				return nil, cleanup, fmt.Errorf("creating temp file: %w", err)
			}
			if _, err := f.WriteString(target); err != nil {
				f.Close()
				os.Remove(f.Name())
				return nil, cleanup, fmt.Errorf("writing temp file: %w", err)
			}
			f.Close()
			file = f.Name()
			cleanup = func() { os.Remove(file) }
		}
	}

	argv := make([]string, len(u.typ.argv))
	for i, arg := range u.typ.argv {
		arg = strings.ReplaceAll(arg, targetPlaceholder, target)
		argv[i] = strings.ReplaceAll(arg, filePlaceholder, file)
	}
	return argv, cleanup, nil
}

func usesPlaceholder(argv []string, placeholder string) bool {
	for _, arg := range argv {
		if strings.Contains(arg, placeholder) {
			return true
		}
	}
	return false
}
