// Package lint runs the configured linter against one file and returns
// its findings as raw text lines. A clean file yields an empty slice and
// no error; linters signalling findings through their exit status are
// normal, only spawn failures surface as errors.
package lint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/lintmend/lintmend/internal/config"
	"github.com/lintmend/lintmend/internal/fault"
)

// Runner produces lint findings for a single file.
type Runner interface {
	Name() string
	Run(ctx context.Context, file string) ([]string, error)
}

// New selects the adapter for the configured linter.
func New(cfg config.LintConfig, repo string, env []string, log *slog.Logger) (Runner, error) {
	if log == nil {
		log = slog.Default()
	}
	base := runner{repo: repo, env: env, log: log, maxLineLength: cfg.MaxLineLength}
	switch cfg.Linter {
	case "pylint":
		return &pylintRunner{runner: base}, nil
	case "flake8":
		return &flake8Runner{runner: base}, nil
	case "ruff":
		return &ruffRunner{runner: base}, nil
	}
	return nil, fmt.Errorf("unsupported linter %q", cfg.Linter)
}

type runner struct {
	repo          string
	env           []string
	log           *slog.Logger
	maxLineLength int
}

// execCommandFn is swapped in tests to avoid spawning real linters.
var execCommandFn = execCommand

type commandResult struct {
	stdout   string
	stderr   string
	exitCode int
}

func execCommand(ctx context.Context, dir string, env []string, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := commandResult{stdout: stdout.String(), stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Linters report findings through the exit status.
			res.exitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, fault.NewProcessError("start", name, -1, err)
	}
	return res, nil
}

func (r *runner) run(ctx context.Context, name string, args ...string) (commandResult, error) {
	res, err := execCommandFn(ctx, r.repo, r.env, name, args...)
	if err != nil {
		return res, err
	}
	if res.stderr != "" {
		r.log.Error("linter stderr", "linter", name, "output", strings.TrimSpace(res.stderr))
	}
	return res, nil
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, strings.TrimRight(line, "\r"))
		}
	}
	return out
}

type pylintRunner struct {
	runner
}

func (p *pylintRunner) Name() string { return "pylint" }

// Run reports pylint findings. Pylint prints a module header block only
// when it found something, so output without one is treated as clean.
func (p *pylintRunner) Run(ctx context.Context, file string) ([]string, error) {
	res, err := p.run(ctx, "pylint",
		"--max-line-length", strconv.Itoa(p.maxLineLength), file)
	if err != nil {
		return nil, err
	}
	if !strings.Contains(res.stdout, "***") {
		return nil, nil
	}
	lines := splitLines(res.stdout)
	for _, line := range lines {
		p.log.Info(line)
	}
	return lines, nil
}

type flake8Runner struct {
	runner
}

func (f *flake8Runner) Name() string { return "flake8" }

func (f *flake8Runner) Run(ctx context.Context, file string) ([]string, error) {
	f.log.Info("running flake8", "file", file)
	res, err := f.run(ctx, "flake8",
		"--max-line-length", strconv.Itoa(f.maxLineLength), file)
	if err != nil {
		return nil, err
	}
	return splitLines(res.stdout), nil
}

type ruffRunner struct {
	runner
}

func (r *ruffRunner) Name() string { return "ruff" }

func (r *ruffRunner) Run(ctx context.Context, file string) ([]string, error) {
	res, err := r.run(ctx, "ruff", "check", file)
	if err != nil {
		return nil, err
	}
	if strings.Contains(res.stdout, "All checks passed!") {
		return nil, nil
	}
	return splitLines(res.stdout), nil
}
