package assistant

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/lintmend/lintmend/internal/config"
	"github.com/lintmend/lintmend/internal/fault"
	"github.com/lintmend/lintmend/internal/ratelimit"
	"github.com/lintmend/lintmend/internal/retry"
)

// launchRecorder captures launch parameters and hands out fresh fake
// children so retried attempts each get their own child.
type launchRecorder struct {
	mu       sync.Mutex
	exe      string
	args     []string
	dir      string
	env      []string
	launches int
	exitCode int
	lines    []string
}

func (lr *launchRecorder) install(t *testing.T) {
	t.Helper()
	orig := launchFn
	launchFn = func(exe string, args []string, dir string, env []string) (child, error) {
		lr.mu.Lock()
		lr.exe = exe
		lr.args = append([]string(nil), args...)
		lr.dir = dir
		lr.env = append([]string(nil), env...)
		lr.launches++
		lr.mu.Unlock()

		f := newFakeChild(lr.exitCode)
		f.script(false, lr.lines...)
		return f, nil
	}
	t.Cleanup(func() { launchFn = orig })
}

func (lr *launchRecorder) count() int {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	return lr.launches
}

func testRunnerConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.RepoPath = t.TempDir()
	cfg.Tools.AssistantPath = "aider"
	cfg.Tools.Model = "main-model"
	cfg.Tools.WeakModel = "weak-model"
	return cfg
}

func fastRetrier() *retry.Controller {
	cfg := retry.DefaultConfig()
	cfg.InitialInterval = time.Millisecond
	cfg.MaxInterval = 2 * time.Millisecond
	return retry.New(cfg, discardLogger())
}

func newTestRunner(t *testing.T, cfg *config.Config, limit int) *Runner {
	t.Helper()
	r := NewRunner(cfg, ratelimit.NewLimiter(limit, time.Minute), fastRetrier(), discardLogger())
	r.sleepFn = func(time.Duration) {}
	return r
}

func writeTarget(t *testing.T, cfg *config.Config) string {
	t.Helper()
	path := filepath.Join(cfg.RepoPath, "scheduler.py")
	if err := os.WriteFile(path, []byte("print('x')\n"), 0o644); err != nil {
		t.Fatalf("write target: %v", err)
	}
	return path
}

func TestFixBuildsCommand(t *testing.T) {
	cfg := testRunnerConfig(t)
	target := writeTarget(t, cfg)

	lr := &launchRecorder{lines: []string{"Applied edit to scheduler.py"}}
	lr.install(t)

	r := newTestRunner(t, cfg, 10)
	res, err := r.Fix(context.Background(), target, "fix the warnings")
	if err != nil {
		t.Fatalf("Fix() error: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}

	wantArgs := []string{
		"--message", FixPreamble + "fix the warnings",
		"--model", "main-model",
		"--weak-model", "weak-model",
		"--cache-prompts",
		target,
	}
	if !reflect.DeepEqual(lr.args, wantArgs) {
		t.Errorf("args = %v, want %v", lr.args, wantArgs)
	}
	if lr.exe != "aider" {
		t.Errorf("exe = %q, want aider", lr.exe)
	}
	if lr.dir != cfg.AbsRepoPath() {
		t.Errorf("dir = %q, want repo root %q", lr.dir, cfg.AbsRepoPath())
	}
}

func TestFixValidatesInstruction(t *testing.T) {
	cfg := testRunnerConfig(t)
	target := writeTarget(t, cfg)

	lr := &launchRecorder{}
	lr.install(t)

	r := newTestRunner(t, cfg, 10)
	_, err := r.Fix(context.Background(), target, "   ")

	var ve *fault.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Fix() error = %v, want ValidationError", err)
	}
	if lr.count() != 0 {
		t.Errorf("launched %d times for invalid instruction, want 0", lr.count())
	}
}

func TestFixValidatesTargetExists(t *testing.T) {
	cfg := testRunnerConfig(t)

	lr := &launchRecorder{}
	lr.install(t)

	r := newTestRunner(t, cfg, 10)
	_, err := r.Fix(context.Background(), filepath.Join(cfg.RepoPath, "missing.py"), "fix")

	var ve *fault.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Fix() error = %v, want ValidationError", err)
	}
}

func TestFixRateLimitIsPermanent(t *testing.T) {
	cfg := testRunnerConfig(t)
	target := writeTarget(t, cfg)

	lr := &launchRecorder{}
	lr.install(t)

	limiter := ratelimit.NewLimiter(1, time.Minute)
	limiter.CheckAndRecord() // consume the only slot

	r := NewRunner(cfg, limiter, fastRetrier(), discardLogger())
	r.sleepFn = func(time.Duration) {}

	_, err := r.Fix(context.Background(), target, "fix")

	var rle *fault.RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("Fix() error = %v, want RateLimitError", err)
	}
	if lr.count() != 0 {
		t.Errorf("launched %d times at capacity, want 0", lr.count())
	}
}

func TestFixRetriesProcessFailures(t *testing.T) {
	cfg := testRunnerConfig(t)
	target := writeTarget(t, cfg)

	lr := &launchRecorder{exitCode: 1}
	lr.install(t)

	r := NewRunner(cfg, ratelimit.NewLimiter(10, time.Minute), fastRetrier(), discardLogger())
	r.sleepFn = func(time.Duration) {}

	_, err := r.Fix(context.Background(), target, "fix")

	var mre *fault.MaxRetriesError
	if !errors.As(err, &mre) {
		t.Fatalf("Fix() error = %v, want MaxRetriesError", err)
	}
	if lr.count() != 3 {
		t.Errorf("launched %d times, want 3 attempts", lr.count())
	}
}

func TestFixAppliesLaunchPacing(t *testing.T) {
	cfg := testRunnerConfig(t)
	target := writeTarget(t, cfg)

	lr := &launchRecorder{}
	lr.install(t)

	r := newTestRunner(t, cfg, 10)
	var slept []time.Duration
	r.sleepFn = func(d time.Duration) { slept = append(slept, d) }

	if _, err := r.Fix(context.Background(), target, "fix"); err != nil {
		t.Fatalf("Fix() error: %v", err)
	}
	if len(slept) != 1 || slept[0] != cfg.LaunchDelay() {
		t.Errorf("pacing sleeps = %v, want one %v delay", slept, cfg.LaunchDelay())
	}
}

func TestFixEachAttemptConsumesRateSlot(t *testing.T) {
	cfg := testRunnerConfig(t)
	target := writeTarget(t, cfg)

	lr := &launchRecorder{exitCode: 1}
	lr.install(t)

	limiter := ratelimit.NewLimiter(2, time.Minute)
	r := NewRunner(cfg, limiter, fastRetrier(), discardLogger())
	r.sleepFn = func(time.Duration) {}

	// Attempts 1 and 2 fail and consume both slots; attempt 3 is refused.
	_, err := r.Fix(context.Background(), target, "fix")
	if err == nil {
		t.Fatal("Fix() = nil error, want failure")
	}
	if lr.count() != 2 {
		t.Errorf("launched %d times, want 2 before the window filled", lr.count())
	}
	if limiter.InWindow() != 2 {
		t.Errorf("InWindow() = %d, want 2", limiter.InWindow())
	}
}
