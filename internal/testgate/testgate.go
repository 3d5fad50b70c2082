// Package testgate runs the configured test command and reduces it to a
// pass/fail signal for the commit and revert decisions.
package testgate

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// Gate runs the repository's test command.
type Gate struct {
	repo    string
	command []string
	env     []string
	log     *slog.Logger
}

// New builds a gate for command, a whitespace-separated command line.
// The repository path is prepended to PYTHONPATH so in-repo imports
// resolve the way the production entry point sees them.
func New(repo, command string, env []string, log *slog.Logger) *Gate {
	if log == nil {
		log = slog.Default()
	}
	if env == nil {
		env = os.Environ()
	}
	return &Gate{
		repo:    repo,
		command: strings.Fields(command),
		env:     withPythonPath(env, repo),
		log:     log,
	}
}

func withPythonPath(env []string, repo string) []string {
	out := make([]string, 0, len(env)+1)
	seen := false
	for _, kv := range env {
		if strings.HasPrefix(kv, "PYTHONPATH=") {
			out = append(out, "PYTHONPATH="+repo+string(os.PathListSeparator)+strings.TrimPrefix(kv, "PYTHONPATH="))
			seen = true
			continue
		}
		out = append(out, kv)
	}
	if !seen {
		out = append(out, "PYTHONPATH="+repo)
	}
	return out
}

// runTestsFn is swapped in tests.
var runTestsFn = runTests

// Run executes the test command. True means the suite passed. A missing
// or empty command counts as a failing gate so nothing is committed on
// an unverifiable repository.
func (g *Gate) Run(ctx context.Context) bool {
	if len(g.command) == 0 {
		g.log.Error("no test command configured")
		return false
	}
	g.log.Info("running tests", "command", strings.Join(g.command, " "))

	output, err := runTestsFn(ctx, g.repo, g.env, g.command)
	if output != "" {
		g.log.Info(output)
	}
	if err != nil {
		g.log.Error("tests failed", "error", err)
		return false
	}
	return true
}

func runTests(ctx context.Context, dir string, env []string, command []string) (string, error) {
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Dir = dir
	cmd.Env = env

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	return strings.TrimSpace(buf.String()), err
}
