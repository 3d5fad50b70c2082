// Package assistant drives an aider-compatible child process through its
// interactive stdout/stdin protocol: one invocation per fix batch or
// question, with automatic prompt answers, output capture, and a hard
// wall-clock deadline enforced against the whole process group.
package assistant

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/x/ansi"

	"github.com/lintmend/lintmend/internal/fault"
)

// State tracks where a session is in its lifecycle.
type State string

const (
	// StateStreaming means output is being read but not yet captured.
	StateStreaming State = "streaming"
	// StateCapturing means lines are being appended to the response.
	StateCapturing State = "capturing"
	// StateTerminated means the child exited and the session is done.
	StateTerminated State = "terminated"
	// StateTimedOut means the deadline fired and the child was killed.
	StateTimedOut State = "timed_out"
)

// Mode selects the prompt-answer policy.
type Mode string

const (
	// ModeFix answers known prompts affirmatively so edits can proceed.
	ModeFix Mode = "fix"
	// ModeAsk declines every prompt; the assistant must not edit anything.
	ModeAsk Mode = "ask"
)

// Config carries what one session launch needs.
type Config struct {
	Executable string
	WorkDir    string
	Env        []string
	// Timeout is the wall-clock budget for the whole session.
	Timeout time.Duration
	// Grace is how long a terminated child gets before the kill escalates.
	Grace time.Duration
	// CaptureMarker begins response capture when it appears in a line.
	// Empty means capture from the first line.
	CaptureMarker string
}

// Result is what a completed session hands back to its caller.
type Result struct {
	Text     string
	ExitCode int
	Elapsed  time.Duration
}

// Session mediates one child process invocation. A Session is single-use;
// create a fresh one per invocation.
type Session struct {
	cfg      Config
	mode     Mode
	log      *slog.Logger
	answerFn func(string) string

	mu    sync.Mutex
	state State

	nowFn func() time.Time
}

// NewSession creates a session for one invocation in the given mode.
func NewSession(cfg Config, mode Mode, log *slog.Logger) *Session {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 300 * time.Second
	}
	if cfg.Grace <= 0 {
		cfg.Grace = 5 * time.Second
	}
	s := &Session{
		cfg:   cfg,
		mode:  mode,
		log:   log,
		nowFn: time.Now,
	}
	if mode == ModeAsk {
		s.answerFn = askAnswer
	} else {
		s.answerFn = fixAnswer
	}
	s.state = StateStreaming
	return s
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Run launches the child and drives the interaction loop until the stream
// ends, the deadline fires, or ctx is cancelled. The returned text is the
// captured response, trimmed; on timeout it holds whatever was captured
// before the kill.
func (s *Session) Run(ctx context.Context, args []string) (Result, error) {
	start := s.nowFn()

	proc, err := launchFn(s.cfg.Executable, args, s.cfg.WorkDir, s.cfg.Env)
	if err != nil {
		s.setState(StateTerminated)
		return Result{ExitCode: -1}, err
	}

	capturing := s.cfg.CaptureMarker == ""
	if capturing {
		s.setState(StateCapturing)
	}

	lineCh := make(chan string)
	go func() {
		defer close(lineCh)
		scanner := bufio.NewScanner(proc.Stdout())
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			lineCh <- scanner.Text()
		}
	}()

	deadline := time.NewTimer(s.cfg.Timeout)
	defer deadline.Stop()
	deadlineCh := deadline.C
	ctxDoneCh := ctx.Done()

	var buf strings.Builder
	var killCh <-chan time.Time
	var graceTimer *time.Timer
	timedOut := false
	cancelled := false

stream:
	for {
		select {
		case line, ok := <-lineCh:
			if !ok {
				break stream
			}
			if timedOut || cancelled {
				continue
			}
			capturing = s.handleLine(line, proc.Stdin(), &buf, capturing)

		case <-deadlineCh:
			deadlineCh = nil
			timedOut = true
			s.setState(StateTimedOut)
			s.log.Error("session deadline exceeded",
				"command", s.cfg.Executable,
				"timeout", s.cfg.Timeout)
			if cancelled {
				continue
			}
			if err := proc.Terminate(); err != nil {
				s.log.Error("terminate failed", "error", err)
			}
			graceTimer = time.NewTimer(s.cfg.Grace)
			killCh = graceTimer.C

		case <-killCh:
			killCh = nil
			s.log.Warn("child unresponsive after grace period, killing group")
			if err := proc.Kill(); err != nil {
				s.log.Error("kill failed", "error", err)
			}

		case <-ctxDoneCh:
			ctxDoneCh = nil
			cancelled = true
			if timedOut {
				continue
			}
			if err := proc.Terminate(); err != nil {
				s.log.Error("terminate failed", "error", err)
			}
			graceTimer = time.NewTimer(s.cfg.Grace)
			killCh = graceTimer.C
		}
	}
	if graceTimer != nil {
		graceTimer.Stop()
	}

	exitCode, waitErr := proc.Wait()

	if stderr := strings.TrimSpace(proc.StderrText()); stderr != "" {
		s.log.Error("assistant errors", "output", stderr)
	}

	res := Result{
		Text:     strings.TrimSpace(buf.String()),
		ExitCode: exitCode,
		Elapsed:  s.nowFn().Sub(start),
	}

	switch {
	case timedOut:
		res.ExitCode = -1
		return res, &fault.TimeoutError{Command: s.cfg.Executable, Budget: s.cfg.Timeout}
	case cancelled:
		s.setState(StateTerminated)
		res.ExitCode = -1
		return res, ctx.Err()
	case waitErr != nil:
		s.setState(StateTerminated)
		res.ExitCode = -1
		return res, fault.NewProcessError("wait", s.cfg.Executable, -1, waitErr)
	case exitCode != 0:
		s.setState(StateTerminated)
		return res, fault.NewProcessError("run", s.cfg.Executable, exitCode,
			fmt.Errorf("exit status %d", exitCode))
	}

	s.setState(StateTerminated)
	return res, nil
}

// handleLine processes one stdout line: log it, manage capture, and answer
// interactive prompts. Returns the updated capture flag.
func (s *Session) handleLine(raw string, stdin io.Writer, buf *strings.Builder, capturing bool) bool {
	clean := ansi.Strip(raw)
	trimmed := strings.TrimSpace(clean)
	if trimmed == "" {
		return capturing
	}
	s.log.Info("assistant output", "line", trimmed)

	if !capturing && s.cfg.CaptureMarker != "" && strings.Contains(clean, s.cfg.CaptureMarker) {
		// The marker line itself is not part of the response.
		s.setState(StateCapturing)
		return true
	}
	if capturing {
		buf.WriteString(clean)
		buf.WriteByte('\n')
	}

	if strings.Contains(clean, "?") {
		answer := s.answerFn(clean)
		s.log.Info("answering prompt", "prompt", trimmed, "answer", answer)
		// Best effort: a failed write is logged, not fatal, because the
		// child may have already moved past the prompt.
		if _, err := io.WriteString(stdin, answer+"\n"); err != nil {
			s.log.Error("prompt answer failed", "error", err)
		}
	}
	return capturing
}
