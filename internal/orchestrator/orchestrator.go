// Package orchestrator drives files through the remediation pipeline:
// format, lint, group, fix, verify, commit. Each file is processed
// sequentially through a small state machine, and a failure in one file
// never aborts the batch.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/lintmend/lintmend/internal/assistant"
	"github.com/lintmend/lintmend/internal/grouper"
)

// ErrHalted is returned when a post-commit test failure forced a revert.
// A reverted commit needs human inspection, so the run stops instead of
// moving to the next file.
var ErrHalted = errors.New("run halted: last commit reverted, inspect before continuing")

// State names the pipeline stage a file has reached.
type State string

const (
	StateFormatting     State = "formatting"
	StateLinting        State = "linting"
	StateFixing         State = "fixing"
	StateTesting        State = "testing"
	StateCommitting     State = "committing"
	StatePostFixTesting State = "post_fix_testing"
	StateReverting      State = "reverting"
	StateDone           State = "done"
)

// Formatter runs code formatters over a file.
type Formatter interface {
	PreLint() []string
	PostFix() []string
	Run(ctx context.Context, tool, file string) error
}

// Linter produces issue lines for a file. A clean file yields an empty
// slice, not an error.
type Linter interface {
	Name() string
	Run(ctx context.Context, file string) ([]string, error)
}

// Fixer runs one remediation session against a file.
type Fixer interface {
	Fix(ctx context.Context, file, instruction string) (assistant.Result, error)
}

// TestGate reports whether the repository's test suite passes.
type TestGate interface {
	Run(ctx context.Context) bool
}

// VersionControl is the commit/revert surface the pipeline depends on.
type VersionControl interface {
	HasChanges(file string) (bool, error)
	Commit(file, message string) error
	CurrentRevision() (string, error)
	RevertLastCommit() error
}

// Collaborators bundles the injected pipeline dependencies.
type Collaborators struct {
	Formatter Formatter
	Linter    Linter
	Fixer     Fixer
	Tests     TestGate
	VCS       VersionControl
}

// Event is one progress notification emitted while processing.
type Event struct {
	File   string `json:"file"`
	State  State  `json:"state"`
	Detail string `json:"detail,omitempty"`
}

// Config holds the orchestrator knobs.
type Config struct {
	// Repo is the repository root. File arguments are repo-relative;
	// collaborators run inside the repo, and the orchestrator joins
	// against it for its own reads.
	Repo string
	// Strategy selects the grouping strategy; empty means auto.
	Strategy grouper.Strategy
	// Events receives progress notifications when non-nil. Sends never
	// block; events are dropped when the consumer lags.
	Events chan<- Event
}

// FileReport records what happened to one file.
type FileReport struct {
	File          string        `json:"file"`
	State         State         `json:"state"`
	Issues        int           `json:"issues"`
	Groups        int           `json:"groups,omitempty"`
	SessionsRun   int           `json:"sessions_run,omitempty"`
	GroupErrors   int           `json:"group_errors,omitempty"`
	FormatCommits []string      `json:"format_commits,omitempty"`
	TestsFailed   bool          `json:"tests_failed,omitempty"`
	Committed     bool          `json:"committed,omitempty"`
	CommitSHA     string        `json:"commit_sha,omitempty"`
	Reverted      bool          `json:"reverted,omitempty"`
	LinesAdded    int           `json:"lines_added,omitempty"`
	LinesRemoved  int           `json:"lines_removed,omitempty"`
	Failure       string        `json:"failure,omitempty"`
	Elapsed       time.Duration `json:"elapsed_ns"`

	Err error `json:"-"`
}

func (r *FileReport) setErr(err error) {
	r.Err = err
	r.Failure = err.Error()
}

// RunReport aggregates a whole batch run.
type RunReport struct {
	Files   []FileReport  `json:"files"`
	Fixed   int           `json:"fixed"`
	Clean   int           `json:"clean"`
	Failed  int           `json:"failed"`
	Halted  bool          `json:"halted,omitempty"`
	Elapsed time.Duration `json:"elapsed_ns"`
}

// Orchestrator runs the remediation pipeline over files.
type Orchestrator struct {
	cfg     Config
	col     Collaborators
	grouper *grouper.Grouper
	log     *slog.Logger
}

// New builds an orchestrator around the given collaborators.
func New(cfg Config, col Collaborators, g *grouper.Grouper, log *slog.Logger) *Orchestrator {
	if cfg.Strategy == "" {
		cfg.Strategy = grouper.StrategyAuto
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{cfg: cfg, col: col, grouper: g, log: log}
}

// Run processes files in order. It stops early only on context
// cancellation or a post-commit revert (ErrHalted); per-file errors are
// logged and counted, and the batch continues.
func (o *Orchestrator) Run(ctx context.Context, files []string) (RunReport, error) {
	start := time.Now()
	var run RunReport
	for _, file := range files {
		// Interrupts take effect between files, never mid-session.
		if err := ctx.Err(); err != nil {
			run.Elapsed = time.Since(start)
			return run, err
		}

		rep := o.ProcessFile(ctx, file)
		run.Files = append(run.Files, rep)

		switch {
		case rep.Err != nil && errors.Is(rep.Err, ErrHalted):
			run.Halted = true
			run.Elapsed = time.Since(start)
			return run, ErrHalted
		case rep.Err != nil && (errors.Is(rep.Err, context.Canceled) || errors.Is(rep.Err, context.DeadlineExceeded)):
			run.Elapsed = time.Since(start)
			return run, rep.Err
		case rep.Err != nil:
			o.log.Error("file processing failed", "file", file, "error", rep.Err)
			run.Failed++
		case rep.Committed:
			run.Fixed++
		case rep.Issues == 0:
			run.Clean++
		}
	}
	run.Elapsed = time.Since(start)
	return run, nil
}

// ProcessFile drives a single file through the pipeline and reports the
// outcome. Errors are recorded on the report rather than returned.
func (o *Orchestrator) ProcessFile(ctx context.Context, file string) FileReport {
	start := time.Now()
	rep := FileReport{File: file, State: StateFormatting}
	defer func() { rep.Elapsed = time.Since(start) }()

	before, err := os.ReadFile(o.path(file))
	if err != nil {
		rep.setErr(fmt.Errorf("read %s: %w", file, err))
		return rep
	}

	o.emit(file, StateFormatting, "")
	o.runFormatters(ctx, file, &rep)

	rep.State = StateLinting
	o.emit(file, StateLinting, o.col.Linter.Name())
	issues, err := o.col.Linter.Run(ctx, file)
	if err != nil {
		rep.setErr(fmt.Errorf("lint %s: %w", file, err))
		return rep
	}
	rep.Issues = len(issues)
	if len(issues) == 0 {
		rep.State = StateDone
		o.emit(file, StateDone, "clean")
		return rep
	}

	rep.State = StateFixing
	strategy, groups := o.grouper.Plan(issues, o.cfg.Strategy)
	rep.Groups = len(groups)
	o.log.Info("fixing issues",
		"file", file, "issues", len(issues), "strategy", string(strategy), "groups", len(groups))
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			rep.setErr(err)
			return rep
		}
		o.emit(file, StateFixing, g.Key)
		rep.SessionsRun++
		if _, err := o.col.Fixer.Fix(ctx, file, g.Instruction(strategy)); err != nil {
			if ctx.Err() != nil {
				rep.setErr(ctx.Err())
				return rep
			}
			o.log.Error("fix attempt abandoned", "file", file, "group", g.Key, "error", err)
			rep.GroupErrors++
		}
	}

	// Normalize whatever the assistant wrote before judging it.
	for _, tool := range o.col.Formatter.PostFix() {
		if err := o.col.Formatter.Run(ctx, tool, file); err != nil {
			o.log.Warn("post-fix formatter failed", "tool", tool, "file", file, "error", err)
		}
	}

	changed, err := o.col.VCS.HasChanges(file)
	if err != nil {
		rep.setErr(fmt.Errorf("check changes for %s: %w", file, err))
		return rep
	}
	if !changed {
		o.log.Info("no changes produced", "file", file)
		rep.State = StateDone
		o.emit(file, StateDone, "unchanged")
		return rep
	}
	if after, err := os.ReadFile(o.path(file)); err == nil {
		rep.LinesAdded, rep.LinesRemoved = diffStats(string(before), string(after))
	}

	rep.State = StateTesting
	o.emit(file, StateTesting, "")
	if !o.col.Tests.Run(ctx) {
		// Unverified changes are never committed. The file keeps its
		// modifications for manual inspection.
		o.log.Error("tests failed before commit, leaving file uncommitted", "file", file)
		rep.TestsFailed = true
		return rep
	}

	rep.State = StateCommitting
	o.emit(file, StateCommitting, "")
	if err := o.col.VCS.Commit(file, "Refactor "+file+" for code quality"); err != nil {
		rep.setErr(fmt.Errorf("commit %s: %w", file, err))
		return rep
	}
	rep.Committed = true
	if sha, err := o.col.VCS.CurrentRevision(); err == nil {
		rep.CommitSHA = sha
	}

	rep.State = StatePostFixTesting
	o.emit(file, StatePostFixTesting, "")
	if !o.col.Tests.Run(ctx) {
		rep.State = StateReverting
		o.emit(file, StateReverting, "")
		o.log.Error("tests failed after commit, reverting", "file", file, "sha", rep.CommitSHA)
		if err := o.col.VCS.RevertLastCommit(); err != nil {
			rep.setErr(fmt.Errorf("revert after failed tests: %w", err))
			return rep
		}
		rep.Reverted = true
		rep.State = StateDone
		rep.setErr(ErrHalted)
		return rep
	}

	rep.State = StateDone
	o.emit(file, StateDone, "committed")
	o.log.Info("file remediated", "file", file, "sha", rep.CommitSHA,
		"added", rep.LinesAdded, "removed", rep.LinesRemoved)
	return rep
}

// runFormatters runs each pre-lint formatter and commits its changes
// independently. Formatter failures are logged and never block linting.
func (o *Orchestrator) runFormatters(ctx context.Context, file string, rep *FileReport) {
	for _, tool := range o.col.Formatter.PreLint() {
		if err := o.col.Formatter.Run(ctx, tool, file); err != nil {
			o.log.Warn("formatter failed", "tool", tool, "file", file, "error", err)
			continue
		}
		changed, err := o.col.VCS.HasChanges(file)
		if err != nil {
			o.log.Warn("change check failed after formatting", "tool", tool, "file", file, "error", err)
			continue
		}
		if !changed {
			continue
		}
		msg := "formatting: ran " + tool + " on " + file
		if err := o.col.VCS.Commit(file, msg); err != nil {
			o.log.Warn("formatter commit failed", "tool", tool, "file", file, "error", err)
			continue
		}
		rep.FormatCommits = append(rep.FormatCommits, tool)
		o.emit(file, StateFormatting, "committed "+tool)
	}
}

func (o *Orchestrator) path(file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(o.cfg.Repo, file)
}

func (o *Orchestrator) emit(file string, st State, detail string) {
	if o.cfg.Events == nil {
		return
	}
	select {
	case o.cfg.Events <- Event{File: file, State: st, Detail: detail}:
	default:
	}
}

// diffStats counts added and removed lines between two file versions.
func diffStats(before, after string) (added, removed int) {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)
	for _, d := range diffs {
		n := strings.Count(d.Text, "\n")
		if len(d.Text) > 0 && !strings.HasSuffix(d.Text, "\n") {
			n++
		}
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += n
		case diffmatchpatch.DiffDelete:
			removed += n
		}
	}
	return added, removed
}

// Summary renders a one-line human description of the batch outcome.
func (r RunReport) Summary() string {
	parts := []string{
		strconv.Itoa(len(r.Files)) + " files",
		strconv.Itoa(r.Fixed) + " fixed",
		strconv.Itoa(r.Clean) + " clean",
		strconv.Itoa(r.Failed) + " failed",
	}
	if r.Halted {
		parts = append(parts, "halted")
	}
	return strings.Join(parts, ", ")
}
