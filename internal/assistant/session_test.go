package assistant

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lintmend/lintmend/internal/fault"
)

// fakeChild scripts the assistant side of the interaction loop.
type fakeChild struct {
	pr  *io.PipeReader
	pw  *io.PipeWriter
	end sync.Once

	mu             sync.Mutex
	stdin          strings.Builder
	exitCode       int
	stderr         string
	terminates     int
	kills          int
	dieOnTerminate bool
}

func newFakeChild(exitCode int) *fakeChild {
	pr, pw := io.Pipe()
	return &fakeChild{pr: pr, pw: pw, exitCode: exitCode}
}

// script emits lines on stdout from a background goroutine, then ends the
// stream unless keepOpen is set.
func (f *fakeChild) script(keepOpen bool, lines ...string) {
	go func() {
		for _, l := range lines {
			io.WriteString(f.pw, l+"\n")
		}
		if !keepOpen {
			f.endStream()
		}
	}()
}

func (f *fakeChild) endStream() {
	f.end.Do(func() { f.pw.Close() })
}

func (f *fakeChild) Stdout() io.Reader { return f.pr }
func (f *fakeChild) Stdin() io.Writer  { return f }

func (f *fakeChild) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stdin.Write(p)
	return len(p), nil
}

func (f *fakeChild) stdinText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stdin.String()
}

func (f *fakeChild) Wait() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exitCode, nil
}

func (f *fakeChild) Terminate() error {
	f.mu.Lock()
	f.terminates++
	die := f.dieOnTerminate
	f.mu.Unlock()
	if die {
		f.endStream()
	}
	return nil
}

func (f *fakeChild) Kill() error {
	f.mu.Lock()
	f.kills++
	f.mu.Unlock()
	f.endStream()
	return nil
}

func (f *fakeChild) StderrText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stderr
}

func (f *fakeChild) signals() (terminates, kills int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.terminates, f.kills
}

func stubLaunch(t *testing.T, f *fakeChild) {
	t.Helper()
	orig := launchFn
	launchFn = func(string, []string, string, []string) (child, error) {
		return f, nil
	}
	t.Cleanup(func() { launchFn = orig })
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSessionConfig() Config {
	return Config{
		Executable: "aider",
		WorkDir:    "/tmp",
		Timeout:    5 * time.Second,
		Grace:      time.Second,
	}
}

func TestRunCapturesEverythingWithoutMarker(t *testing.T) {
	f := newFakeChild(0)
	stubLaunch(t, f)
	f.script(false, "first line", "", "second line")

	s := NewSession(testSessionConfig(), ModeAsk, discardLogger())
	res, err := s.Run(context.Background(), []string{"--message", "q"})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Text != "first line\nsecond line" {
		t.Errorf("Text = %q, want both non-empty lines", res.Text)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
	if res.Elapsed < 0 {
		t.Errorf("Elapsed = %v, want non-negative", res.Elapsed)
	}
	if got := s.State(); got != StateTerminated {
		t.Errorf("State() = %q, want terminated", got)
	}
}

func TestRunCaptureMarkerExcludesPreamble(t *testing.T) {
	cfg := testSessionConfig()
	cfg.CaptureMarker = "ANSWER:"

	f := newFakeChild(0)
	stubLaunch(t, f)
	f.script(false,
		"Loading model metadata",
		"ANSWER: begins here",
		"captured one",
		"captured two",
	)

	s := NewSession(cfg, ModeAsk, discardLogger())
	res, err := s.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Text != "captured one\ncaptured two" {
		t.Errorf("Text = %q, marker line or preamble leaked into capture", res.Text)
	}
}

func TestRunStripsAnsiFromCapture(t *testing.T) {
	f := newFakeChild(0)
	stubLaunch(t, f)
	f.script(false, "\x1b[1;32mStyled response\x1b[0m")

	s := NewSession(testSessionConfig(), ModeAsk, discardLogger())
	res, err := s.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Text != "Styled response" {
		t.Errorf("Text = %q, want ANSI stripped", res.Text)
	}
}

func TestRunAnswersPromptsInFixMode(t *testing.T) {
	f := newFakeChild(0)
	stubLaunch(t, f)
	f.script(false,
		"Add scheduler.py to the chat? (Y)es/(N)o",
		"Attempt to fix lint errors? (Y)es/(N)o",
		"Delete the repository? (Y)es/(N)o",
	)

	s := NewSession(testSessionConfig(), ModeFix, discardLogger())
	if _, err := s.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	want := "Yes\nYes\nNo\n"
	if got := f.stdinText(); got != want {
		t.Errorf("stdin = %q, want %q", got, want)
	}
}

func TestRunAnswersNoInAskMode(t *testing.T) {
	f := newFakeChild(0)
	stubLaunch(t, f)
	f.script(false, "Add scheduler.py to the chat? (Y)es/(N)o")

	s := NewSession(testSessionConfig(), ModeAsk, discardLogger())
	if _, err := s.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if got := f.stdinText(); got != "No\n" {
		t.Errorf("stdin = %q, want No even for known affirmative prompts", got)
	}
}

func TestRunTimeoutEscalatesToKill(t *testing.T) {
	cfg := testSessionConfig()
	cfg.Timeout = 50 * time.Millisecond
	cfg.Grace = 30 * time.Millisecond

	f := newFakeChild(0)
	stubLaunch(t, f)
	f.script(true, "one line then silence")

	s := NewSession(cfg, ModeFix, discardLogger())
	_, err := s.Run(context.Background(), nil)

	var te *fault.TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("Run() error = %v, want TimeoutError", err)
	}
	if te.Budget != cfg.Timeout {
		t.Errorf("Budget = %v, want %v", te.Budget, cfg.Timeout)
	}
	if got := s.State(); got != StateTimedOut {
		t.Errorf("State() = %q, want timed_out", got)
	}
	terminates, kills := f.signals()
	if terminates != 1 {
		t.Errorf("Terminate called %d times, want exactly 1", terminates)
	}
	if kills != 1 {
		t.Errorf("Kill called %d times, want exactly 1", kills)
	}
}

func TestRunTimeoutSkipsKillWhenChildDies(t *testing.T) {
	cfg := testSessionConfig()
	cfg.Timeout = 50 * time.Millisecond
	cfg.Grace = time.Second

	f := newFakeChild(0)
	f.dieOnTerminate = true
	stubLaunch(t, f)
	f.script(true)

	s := NewSession(cfg, ModeFix, discardLogger())
	_, err := s.Run(context.Background(), nil)

	var te *fault.TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("Run() error = %v, want TimeoutError", err)
	}
	terminates, kills := f.signals()
	if terminates != 1 || kills != 0 {
		t.Errorf("signals = %d terminates, %d kills; want 1, 0", terminates, kills)
	}
}

func TestRunNonZeroExit(t *testing.T) {
	f := newFakeChild(2)
	stubLaunch(t, f)
	f.script(false, "something went wrong")

	s := NewSession(testSessionConfig(), ModeFix, discardLogger())
	res, err := s.Run(context.Background(), nil)

	var pe *fault.ProcessError
	if !errors.As(err, &pe) {
		t.Fatalf("Run() error = %v, want ProcessError", err)
	}
	if pe.ExitCode != 2 {
		t.Errorf("ExitCode = %d, want 2", pe.ExitCode)
	}
	if res.ExitCode != 2 {
		t.Errorf("Result.ExitCode = %d, want 2", res.ExitCode)
	}
}

func TestRunContextCancel(t *testing.T) {
	cfg := testSessionConfig()
	cfg.Grace = 20 * time.Millisecond

	f := newFakeChild(0)
	stubLaunch(t, f)
	f.script(true, "still running")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	s := NewSession(cfg, ModeFix, discardLogger())
	_, err := s.Run(ctx, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	terminates, _ := f.signals()
	if terminates != 1 {
		t.Errorf("Terminate called %d times, want 1", terminates)
	}
}

func TestRunLaunchFailure(t *testing.T) {
	orig := launchFn
	launchFn = func(exe string, _ []string, _ string, _ []string) (child, error) {
		return nil, fault.NewProcessError("start", exe, -1, errors.New("executable file not found in $PATH"))
	}
	t.Cleanup(func() { launchFn = orig })

	s := NewSession(testSessionConfig(), ModeFix, discardLogger())
	_, err := s.Run(context.Background(), nil)

	var pe *fault.ProcessError
	if !errors.As(err, &pe) {
		t.Fatalf("Run() error = %v, want ProcessError", err)
	}
	if got := s.State(); got != StateTerminated {
		t.Errorf("State() = %q, want terminated", got)
	}
}

func TestSessionDefaults(t *testing.T) {
	s := NewSession(Config{Executable: "aider"}, ModeFix, discardLogger())
	if s.cfg.Timeout != 300*time.Second {
		t.Errorf("Timeout = %v, want 300s default", s.cfg.Timeout)
	}
	if s.cfg.Grace != 5*time.Second {
		t.Errorf("Grace = %v, want 5s default", s.cfg.Grace)
	}
	if s.State() != StateStreaming {
		t.Errorf("initial State() = %q, want streaming", s.State())
	}
}
