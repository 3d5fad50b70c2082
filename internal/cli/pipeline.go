package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/lintmend/lintmend/internal/assistant"
	"github.com/lintmend/lintmend/internal/config"
	"github.com/lintmend/lintmend/internal/fault"
	"github.com/lintmend/lintmend/internal/format"
	"github.com/lintmend/lintmend/internal/git"
	"github.com/lintmend/lintmend/internal/grouper"
	"github.com/lintmend/lintmend/internal/guard"
	"github.com/lintmend/lintmend/internal/lint"
	"github.com/lintmend/lintmend/internal/orchestrator"
	"github.com/lintmend/lintmend/internal/ratelimit"
	"github.com/lintmend/lintmend/internal/retry"
	"github.com/lintmend/lintmend/internal/scanner"
	"github.com/lintmend/lintmend/internal/testgate"
)

// pipeline bundles the collaborators a remediation run needs, plus the
// background resource guard that must be stopped when the run is over.
type pipeline struct {
	orch     *orchestrator.Orchestrator
	scanner  *scanner.Scanner
	linter   lint.Runner
	grouper  *grouper.Grouper
	guard    *guard.Guard
	strategy grouper.Strategy
}

// newPipeline validates the configuration and wires the full bundle.
// The guard is already started; callers own Close.
func newPipeline(cfg *config.Config, strategy grouper.Strategy, events chan<- orchestrator.Event, log *slog.Logger) (*pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	repo := cfg.AbsRepoPath()
	env := cfg.ToolEnv()

	vcs := git.NewService(repo, env, log)
	if !vcs.IsTopLevel() {
		return nil, &fault.ValidationError{Field: "repo_path",
			Reason: fmt.Sprintf("%s is not the top level of a git repository", repo)}
	}

	linter, err := lint.New(cfg.Lint, repo, env, log)
	if err != nil {
		return nil, err
	}

	rules := grouper.DefaultRules()
	if cfg.RulesFile != "" {
		rules, err = grouper.LoadRules(cfg.RulesFile)
		if err != nil {
			return nil, fmt.Errorf("loading grouping rules: %w", err)
		}
	}

	limiter := ratelimit.NewLimiter(cfg.Limits.APIRateLimit, time.Minute)
	retrier := retry.New(retry.DefaultConfig(), log)
	g := guard.New(cfg.Limits, limiter, log)
	g.Start()

	grp := grouper.New(rules, 0)
	col := orchestrator.Collaborators{
		Formatter: format.New(cfg.Lint, repo, env, log),
		Linter:    linter,
		Fixer:     assistant.NewRunner(cfg, limiter, retrier, log),
		Tests:     testgate.New(repo, cfg.Tools.TestCommand, env, log),
		VCS:       vcs,
	}

	return &pipeline{
		orch:     orchestrator.New(orchestrator.Config{Repo: repo, Strategy: strategy, Events: events}, col, grp, log),
		scanner:  scanner.New(repo, cfg.Scan, log),
		linter:   linter,
		grouper:  grp,
		guard:    g,
		strategy: strategy,
	}, nil
}

// Close stops the guard, sweeping any registered temp artifacts.
func (p *pipeline) Close() {
	p.guard.Stop()
}

// resolveFiles picks the batch: the one named file, or every candidate
// the scanner selects. A named file still passes through the filters so
// an excluded file is refused with its reason instead of processed.
func (p *pipeline) resolveFiles(args []string) ([]string, error) {
	if len(args) == 1 {
		c := p.scanner.Classify(args[0])
		if !c.Selected() {
			return nil, &fault.ValidationError{Field: "file",
				Reason: fmt.Sprintf("%s is filtered from runs (%s)", args[0], c.Skip)}
		}
		return []string{c.Path}, nil
	}

	candidates, err := p.scanner.Selected()
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(candidates))
	for _, c := range candidates {
		files = append(files, c.Path)
	}
	return files, nil
}
