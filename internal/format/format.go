// Package format runs the enabled code formatters against one file.
// Each formatter is an independent gate: the orchestrator commits every
// successful pass on its own, and a failing formatter is logged without
// blocking the rest of the pipeline.
package format

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"

	"github.com/lintmend/lintmend/internal/config"
	"github.com/lintmend/lintmend/internal/fault"
)

// Gate runs the configured formatters.
type Gate struct {
	repo          string
	env           []string
	log           *slog.Logger
	maxLineLength int
	autopep8      bool
	black         bool
}

// New builds a gate from the lint configuration.
func New(cfg config.LintConfig, repo string, env []string, log *slog.Logger) *Gate {
	if log == nil {
		log = slog.Default()
	}
	return &Gate{
		repo:          repo,
		env:           env,
		log:           log,
		maxLineLength: cfg.MaxLineLength,
		autopep8:      cfg.Autopep8Fix,
		black:         cfg.EnableBlack,
	}
}

// PreLint returns the formatters to run before linting, in order.
func (g *Gate) PreLint() []string {
	var tools []string
	if g.autopep8 {
		tools = append(tools, "autopep8")
	}
	if g.black {
		tools = append(tools, "black")
	}
	return tools
}

// PostFix returns the formatters re-run after assistant fixes land.
func (g *Gate) PostFix() []string {
	if g.black {
		return []string{"black"}
	}
	return nil
}

// runFormatterFn is swapped in tests to avoid spawning real formatters.
var runFormatterFn = runFormatter

// Run executes one named formatter against file.
func (g *Gate) Run(ctx context.Context, tool, file string) error {
	var args []string
	switch tool {
	case "autopep8":
		g.log.Info("attempting autopep8 fixes", "file", file)
		args = []string{
			"--max-line-length=" + strconv.Itoa(g.maxLineLength),
			"--in-place", "--aggressive", "--aggressive", file,
		}
	case "black":
		g.log.Info("formatting with black", "file", file)
		args = []string{"--line-length", strconv.Itoa(g.maxLineLength), file}
	default:
		return fmt.Errorf("unknown formatter %q", tool)
	}

	if err := runFormatterFn(ctx, g.repo, g.env, tool, args...); err != nil {
		return err
	}
	g.log.Info("formatter succeeded", "tool", tool, "file", file)
	return nil
}

func runFormatter(ctx context.Context, dir string, env []string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = env

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fault.NewProcessError("run", name, exitErr.ExitCode(),
				fmt.Errorf("%s", bytes.TrimSpace(stderr.Bytes())))
		}
		return fault.NewProcessError("start", name, -1, err)
	}
	return nil
}
