package lint

import (
	"context"
	"strings"
	"testing"

	"github.com/lintmend/lintmend/internal/config"
)

func stubCommand(t *testing.T, res commandResult, err error) *[]string {
	t.Helper()
	var calls []string
	orig := execCommandFn
	execCommandFn = func(_ context.Context, _ string, _ []string, name string, args ...string) (commandResult, error) {
		calls = append(calls, name)
		calls = append(calls, args...)
		return res, err
	}
	t.Cleanup(func() { execCommandFn = orig })
	return &calls
}

func newRunner(t *testing.T, linter string) Runner {
	t.Helper()
	r, err := New(config.LintConfig{Linter: linter, MaxLineLength: 100}, "/repo", nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestNewRejectsUnknownLinter(t *testing.T) {
	_, err := New(config.LintConfig{Linter: "eslint"}, "/repo", nil, nil)
	if err == nil {
		t.Fatal("expected error for unsupported linter")
	}
}

func TestPylintCleanWithoutModuleHeader(t *testing.T) {
	stubCommand(t, commandResult{
		stdout: "\nYour code has been rated at 10.00/10\n",
	}, nil)

	issues, err := newRunner(t, "pylint").Run(context.Background(), "clean.py")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(issues) != 0 {
		t.Errorf("issues = %v, want none", issues)
	}
}

func TestPylintReturnsFindings(t *testing.T) {
	calls := stubCommand(t, commandResult{
		stdout: "************* Module demo\n" +
			"demo.py:1:0: C0114: Missing module docstring (missing-module-docstring)\n" +
			"demo.py:9:0: R0912: Too many branches (too-many-branches)\n",
		exitCode: 20,
	}, nil)

	issues, err := newRunner(t, "pylint").Run(context.Background(), "demo.py")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(issues) != 3 {
		t.Fatalf("issues = %d, want 3 (header retained)", len(issues))
	}
	if (*calls)[0] != "pylint" {
		t.Errorf("command = %q, want pylint", (*calls)[0])
	}
	joined := strings.Join(*calls, " ")
	if want := "--max-line-length 100 demo.py"; !strings.Contains(joined, want) {
		t.Errorf("args %q missing %q", joined, want)
	}
}

func TestFlake8SplitsLines(t *testing.T) {
	stubCommand(t, commandResult{
		stdout:   "demo.py:3:1: E302 expected 2 blank lines, got 1\ndemo.py:9:80: E501 line too long\n",
		exitCode: 1,
	}, nil)

	issues, err := newRunner(t, "flake8").Run(context.Background(), "demo.py")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(issues) != 2 {
		t.Fatalf("issues = %d, want 2", len(issues))
	}
}

func TestRuffCleanBanner(t *testing.T) {
	stubCommand(t, commandResult{stdout: "All checks passed!\n"}, nil)

	issues, err := newRunner(t, "ruff").Run(context.Background(), "demo.py")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if issues != nil {
		t.Errorf("issues = %v, want nil for clean banner", issues)
	}
}

func TestRuffFindings(t *testing.T) {
	stubCommand(t, commandResult{
		stdout:   "demo.py:4:5: F841 local variable `x` is assigned to but never used\nFound 1 error.\n",
		exitCode: 1,
	}, nil)

	issues, err := newRunner(t, "ruff").Run(context.Background(), "demo.py")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(issues) != 2 {
		t.Fatalf("issues = %d, want 2", len(issues))
	}
}
