// Package lint integrates external Python linters. The style agent merges
// their diagnostics with its own checks.
package lint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Diagnostic is one linter message tied to a source position.
type Diagnostic struct {
	Line    int
	Column  int
	Code    string
	Message string
}

// Runner executes a linter over a snippet of Python source.
type Runner interface {
	// Run lints the given source and returns its diagnostics. A missing
	// or failing linter binary is an error; findings alone are not.
	Run(ctx context.Context, code string) ([]Diagnostic, error)
}

// flake8Format makes flake8 emit "row:col:code:text" lines.
const flake8Format = "--format=%(row)d:%(col)d:%(code)s:%(text)s"

// Flake8Runner shells out to flake8, feeding the source on stdin.
type Flake8Runner struct {
	path    string
	timeout time.Duration
	logger  *zap.Logger
}

// NewFlake8Runner builds a runner for the flake8 binary at path. A zero
// timeout disables the deadline.
func NewFlake8Runner(path string, timeout time.Duration, logger *zap.Logger) *Flake8Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Flake8Runner{path: path, timeout: timeout, logger: logger.Named("flake8")}
}

func (r *Flake8Runner) Run(ctx context.Context, code string) ([]Diagnostic, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.path, flake8Format, "-")
	cmd.Stdin = strings.NewReader(code)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		// flake8 exits 1 when it found violations; that is a normal run.
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || exitErr.ExitCode() != 1 {
			r.logger.Warn("flake8 invocation failed",
				zap.Error(err), zap.String("stderr", stderr.String()))
			return nil, fmt.Errorf("running flake8: %w", err)
		}
	}

	return ParseFlake8Output(stdout.String()), nil
}

// ParseFlake8Output decodes "row:col:code:text" lines. Malformed lines are
// skipped.
func ParseFlake8Output(output string) []Diagnostic {
	var diags []Diagnostic
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 4)
		if len(parts) != 4 {
			continue
		}
		row, err := strconv.Atoi(parts[0])
		if err != nil || row < 1 {
			continue
		}
		col, err := strconv.Atoi(parts[1])
		if err != nil {
			continue
		}
		diags = append(diags, Diagnostic{
			Line:    row,
			Column:  col,
			Code:    strings.TrimSpace(parts[2]),
			Message: strings.TrimSpace(parts[3]),
		})
	}
	return diags
}
