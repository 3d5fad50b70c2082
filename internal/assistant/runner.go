package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lintmend/lintmend/internal/config"
	"github.com/lintmend/lintmend/internal/fault"
	"github.com/lintmend/lintmend/internal/ratelimit"
	"github.com/lintmend/lintmend/internal/retry"
)

// Runner issues fix invocations against repository files. Every attempt
// consumes a rate-limit slot; refusals surface as permanent failures for
// the current call rather than being retried.
type Runner struct {
	session   Config
	model     string
	weakModel string
	delay     time.Duration
	limiter   *ratelimit.Limiter
	retrier   *retry.Controller
	log       *slog.Logger

	// sleepFn paces launches; swapped in tests.
	sleepFn func(time.Duration)
}

// NewRunner builds a Runner from the loaded configuration.
func NewRunner(cfg *config.Config, limiter *ratelimit.Limiter, retrier *retry.Controller, log *slog.Logger) *Runner {
	return &Runner{
		session: Config{
			Executable:    cfg.Tools.AssistantPath,
			WorkDir:       cfg.AbsRepoPath(),
			Env:           cfg.ToolEnv(),
			Timeout:       cfg.SessionTimeout(),
			Grace:         cfg.KillGrace(),
			CaptureMarker: cfg.Session.CaptureMarker,
		},
		model:     cfg.Tools.Model,
		weakModel: cfg.Tools.WeakModel,
		delay:     cfg.LaunchDelay(),
		limiter:   limiter,
		retrier:   retrier,
		log:       log,
		sleepFn:   time.Sleep,
	}
}

// Fix sends one instruction to the assistant against one target file and
// waits for the session to finish. The file is edited in place by the
// child; the returned Result carries the session transcript and status.
func (r *Runner) Fix(ctx context.Context, file, instruction string) (Result, error) {
	if strings.TrimSpace(instruction) == "" {
		return Result{}, &fault.ValidationError{Field: "instruction", Reason: "must not be empty"}
	}
	target := file
	if !filepath.IsAbs(target) {
		target = filepath.Join(r.session.WorkDir, file)
	}
	if _, err := os.Stat(target); err != nil {
		return Result{}, &fault.ValidationError{Field: "file", Reason: fmt.Sprintf("target not readable: %v", err)}
	}

	r.log.Info("running assistant fix",
		"file", file,
		"instruction_bytes", len(instruction))

	args := fixArgs(instruction, r.model, r.weakModel, file)

	var res Result
	err := r.retrier.Run(ctx, "fix "+filepath.Base(file), func(ctx context.Context) error {
		if err := r.limiter.Acquire(); err != nil {
			return err
		}
		r.sleepFn(r.delay)
		sess := NewSession(r.session, ModeFix, r.log)
		out, err := sess.Run(ctx, args)
		if err != nil {
			return err
		}
		res = out
		return nil
	})
	if err != nil {
		return res, err
	}

	if det := ratelimit.DetectRateLimit(res.Text); det.Limited {
		r.log.Warn("assistant reported provider rate limiting",
			"file", file,
			"suggested_wait", det.Wait)
	}
	return res, nil
}
