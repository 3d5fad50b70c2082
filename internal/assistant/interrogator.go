package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lintmend/lintmend/internal/config"
	"github.com/lintmend/lintmend/internal/fault"
	"github.com/lintmend/lintmend/internal/ratelimit"
	"github.com/lintmend/lintmend/internal/retry"
)

// snippetFileLabel identifies in-memory snippets in the suggestion store,
// where no repository path applies.
const snippetFileLabel = "in_memory_code"

// DefaultQuestion is the critique prompt used when the caller does not
// supply one. The wording is pinned; stored suggestions key off it.
const DefaultQuestion = "As the worlds greatest developer what reliability concerns to you see in the code provided?"

// Recorder persists question/response pairs. A nil Recorder skips
// persistence.
type Recorder interface {
	Record(ctx context.Context, file, question, response, model string) error
}

// TempRegistry tracks the lifetime of snippet temp files.
type TempRegistry interface {
	RegisterTemp(path string)
	ReleaseTemp(path string)
}

// Interrogator asks the assistant questions about code snippets without
// letting it edit anything. The snippet is written to a temp file that is
// registered with the resource guard for the session's lifetime.
type Interrogator struct {
	session   Config
	model     string
	weakModel string
	delay     time.Duration
	limiter   *ratelimit.Limiter
	retrier   *retry.Controller
	temps     TempRegistry
	recorder  Recorder
	log       *slog.Logger

	sleepFn func(time.Duration)
}

// NewInterrogator builds an Interrogator from the loaded configuration.
// temps and recorder may be nil.
func NewInterrogator(cfg *config.Config, limiter *ratelimit.Limiter, retrier *retry.Controller, temps TempRegistry, recorder Recorder, log *slog.Logger) *Interrogator {
	// The assistant renders answers for a fixed-width terminal; pin the
	// width so captured output wraps deterministically.
	env := append(cfg.ToolEnv(), "COLUMNS=100")
	return &Interrogator{
		session: Config{
			Executable:    cfg.Tools.AssistantPath,
			WorkDir:       cfg.AbsRepoPath(),
			Env:           env,
			Timeout:       cfg.SessionTimeout(),
			Grace:         cfg.KillGrace(),
			CaptureMarker: cfg.Session.CaptureMarker,
		},
		model:     cfg.Tools.Model,
		weakModel: cfg.Tools.WeakModel,
		delay:     cfg.LaunchDelay(),
		limiter:   limiter,
		retrier:   retrier,
		temps:     temps,
		recorder:  recorder,
		log:       log,
		sleepFn:   time.Sleep,
	}
}

// Ask sends a question about the given code snippet and returns the
// assistant's trimmed response.
func (iq *Interrogator) Ask(ctx context.Context, code, question string) (string, error) {
	if code == "" {
		return "", &fault.ValidationError{Field: "code", Reason: "must not be empty"}
	}
	if question == "" {
		return "", &fault.ValidationError{Field: "question", Reason: "must not be empty"}
	}

	iq.log.Info("asking assistant", "question", question)

	path, err := iq.writeSnippet(code)
	if err != nil {
		return "", err
	}
	if iq.temps != nil {
		iq.temps.RegisterTemp(path)
		defer iq.temps.ReleaseTemp(path)
	} else {
		defer os.Remove(path)
	}

	args := askArgs(question, iq.model, iq.weakModel, path)

	var res Result
	err = iq.retrier.Run(ctx, "ask", func(ctx context.Context) error {
		if err := iq.limiter.Acquire(); err != nil {
			return err
		}
		iq.sleepFn(iq.delay)
		sess := NewSession(iq.session, ModeAsk, iq.log)
		out, err := sess.Run(ctx, args)
		if err != nil {
			return err
		}
		res = out
		return nil
	})
	if err != nil {
		return "", err
	}

	if iq.recorder != nil {
		if rerr := iq.recorder.Record(ctx, snippetFileLabel, question, res.Text, iq.model); rerr != nil {
			iq.log.Error("suggestion persist failed", "error", rerr)
		}
	}
	return res.Text, nil
}

// writeSnippet stores the code in a temp file the assistant can open.
func (iq *Interrogator) writeSnippet(code string) (string, error) {
	f, err := os.CreateTemp("", "lintmend-*.py")
	if err != nil {
		return "", fmt.Errorf("create snippet file: %w", err)
	}
	if _, err := f.WriteString(code); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write snippet file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close snippet file: %w", err)
	}
	return f.Name(), nil
}
