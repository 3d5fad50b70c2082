package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/lintmend/lintmend/internal/assistant"
	"github.com/lintmend/lintmend/internal/grouper"
)

type fakeFormatter struct {
	pre    []string
	post   []string
	failOn map[string]bool
	runs   []string
}

func (f *fakeFormatter) PreLint() []string { return f.pre }
func (f *fakeFormatter) PostFix() []string { return f.post }

func (f *fakeFormatter) Run(_ context.Context, tool, file string) error {
	f.runs = append(f.runs, tool)
	if f.failOn[tool] {
		return errors.New(tool + " failed")
	}
	return nil
}

type lintResult struct {
	lines []string
	err   error
}

type fakeLinter struct {
	script []lintResult
	calls  int
}

func (f *fakeLinter) Name() string { return "pylint" }

func (f *fakeLinter) Run(context.Context, string) ([]string, error) {
	i := f.calls
	f.calls++
	if i >= len(f.script) {
		return nil, nil
	}
	return f.script[i].lines, f.script[i].err
}

type fixCall struct {
	file        string
	instruction string
}

type fakeFixer struct {
	calls []fixCall
	errs  []error
	onFix func(file string)
}

func (f *fakeFixer) Fix(_ context.Context, file, instruction string) (assistant.Result, error) {
	i := len(f.calls)
	f.calls = append(f.calls, fixCall{file: file, instruction: instruction})
	if f.onFix != nil {
		f.onFix(file)
	}
	if i < len(f.errs) && f.errs[i] != nil {
		return assistant.Result{ExitCode: 1}, f.errs[i]
	}
	return assistant.Result{Text: "done", ExitCode: 0}, nil
}

type fakeGate struct {
	results []bool
	calls   int
}

func (f *fakeGate) Run(context.Context) bool {
	i := f.calls
	f.calls++
	if i >= len(f.results) {
		return true
	}
	return f.results[i]
}

type fakeVCS struct {
	hasChangesFn func(file string) (bool, error)
	commitErr    error
	revertErr    error
	sha          string
	commits      []string
	reverts      int
}

func (f *fakeVCS) HasChanges(file string) (bool, error) {
	if f.hasChangesFn != nil {
		return f.hasChangesFn(file)
	}
	return true, nil
}

func (f *fakeVCS) Commit(_, message string) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.commits = append(f.commits, message)
	return nil
}

func (f *fakeVCS) CurrentRevision() (string, error) {
	if f.sha == "" {
		return "abc1234", nil
	}
	return f.sha, nil
}

func (f *fakeVCS) RevertLastCommit() error {
	if f.revertErr != nil {
		return f.revertErr
	}
	f.reverts++
	return nil
}

type fixture struct {
	formatter *fakeFormatter
	linter    *fakeLinter
	fixer     *fakeFixer
	gate      *fakeGate
	vcs       *fakeVCS
	orch      *Orchestrator
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		formatter: &fakeFormatter{failOn: map[string]bool{}},
		linter:    &fakeLinter{},
		fixer:     &fakeFixer{},
		gate:      &fakeGate{},
		vcs:       &fakeVCS{},
	}
	col := Collaborators{
		Formatter: f.formatter,
		Linter:    f.linter,
		Fixer:     f.fixer,
		Tests:     f.gate,
		VCS:       f.vcs,
	}
	g := grouper.New(grouper.DefaultRules(), grouper.DefaultWindowSize)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.orch = New(cfg, col, g, log)
	return f
}

func writeSample(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.py")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCleanFileShortCircuits(t *testing.T) {
	f := newFixture(t, Config{})
	file := writeSample(t, "print('ok')\n")

	run, err := f.orch.Run(context.Background(), []string{file})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if run.Clean != 1 || run.Fixed != 0 || run.Failed != 0 {
		t.Fatalf("counts = %+v, want 1 clean", run)
	}
	rep := run.Files[0]
	if rep.State != StateDone || rep.Issues != 0 {
		t.Fatalf("report = %+v, want done with 0 issues", rep)
	}
	if len(f.fixer.calls) != 0 {
		t.Fatalf("fixer called %d times for a clean file", len(f.fixer.calls))
	}
	if f.gate.calls != 0 {
		t.Fatalf("test gate ran %d times for a clean file", f.gate.calls)
	}
	if len(f.vcs.commits) != 0 {
		t.Fatalf("commits = %v, want none", f.vcs.commits)
	}
}

func TestSmallIssueCountRunsSingleSession(t *testing.T) {
	f := newFixture(t, Config{})
	file := writeSample(t, "original\n")
	f.linter.script = []lintResult{{lines: []string{
		"too-many-branches: foo",
		"missing-docstring: bar",
		"missing-docstring: baz",
	}}}
	f.fixer.onFix = func(path string) {
		os.WriteFile(path, []byte("patched\nextra\n"), 0o644)
	}

	run, err := f.orch.Run(context.Background(), []string{file})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if run.Fixed != 1 {
		t.Fatalf("Fixed = %d, want 1", run.Fixed)
	}

	if len(f.fixer.calls) != 1 {
		t.Fatalf("fixer calls = %d, want exactly 1", len(f.fixer.calls))
	}
	wantInstruction := "Address the following issues: too-many-branches: foo\nmissing-docstring: bar\nmissing-docstring: baz"
	if got := f.fixer.calls[0].instruction; got != wantInstruction {
		t.Fatalf("instruction = %q, want %q", got, wantInstruction)
	}

	wantCommits := []string{"Refactor " + file + " for code quality"}
	if !reflect.DeepEqual(f.vcs.commits, wantCommits) {
		t.Fatalf("commits = %v, want %v", f.vcs.commits, wantCommits)
	}
	if f.gate.calls != 2 {
		t.Fatalf("test gate calls = %d, want 2 (pre and post commit)", f.gate.calls)
	}

	rep := run.Files[0]
	if !rep.Committed || rep.CommitSHA == "" || rep.State != StateDone {
		t.Fatalf("report = %+v, want committed with sha", rep)
	}
	if rep.LinesAdded != 2 || rep.LinesRemoved != 1 {
		t.Fatalf("diff stats = +%d/-%d, want +2/-1", rep.LinesAdded, rep.LinesRemoved)
	}
}

func TestPreCommitTestFailureLeavesUncommitted(t *testing.T) {
	f := newFixture(t, Config{})
	file := writeSample(t, "original\n")
	f.linter.script = []lintResult{{lines: []string{"unused-import: os"}}}
	f.gate.results = []bool{false}

	run, err := f.orch.Run(context.Background(), []string{file})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	rep := run.Files[0]
	if rep.Err != nil {
		t.Fatalf("report error = %v, want none", rep.Err)
	}
	if !rep.TestsFailed || rep.Committed || rep.State != StateTesting {
		t.Fatalf("report = %+v, want stopped at testing uncommitted", rep)
	}
	if len(f.vcs.commits) != 0 {
		t.Fatalf("commits = %v, want none", f.vcs.commits)
	}
	if run.Fixed != 0 || run.Failed != 0 {
		t.Fatalf("counts = %+v, want neither fixed nor failed", run)
	}
}

func TestPostCommitFailureRevertsAndHalts(t *testing.T) {
	f := newFixture(t, Config{})
	first := writeSample(t, "one\n")
	second := writeSample(t, "two\n")
	f.linter.script = []lintResult{{lines: []string{"unused-import: os"}}}
	f.gate.results = []bool{true, false}

	run, err := f.orch.Run(context.Background(), []string{first, second})
	if !errors.Is(err, ErrHalted) {
		t.Fatalf("Run() error = %v, want ErrHalted", err)
	}
	if !run.Halted {
		t.Fatal("run not marked halted")
	}
	if f.vcs.reverts != 1 {
		t.Fatalf("reverts = %d, want 1", f.vcs.reverts)
	}
	if len(run.Files) != 1 {
		t.Fatalf("processed %d files, want halt after the first", len(run.Files))
	}
	if f.linter.calls != 1 {
		t.Fatalf("linter ran %d times, want 1", f.linter.calls)
	}
	rep := run.Files[0]
	if !rep.Reverted || !rep.Committed {
		t.Fatalf("report = %+v, want committed then reverted", rep)
	}
}

func TestFormatterSuccessesCommittedIndependently(t *testing.T) {
	f := newFixture(t, Config{})
	file := writeSample(t, "x\n")
	f.formatter.pre = []string{"autopep8", "black"}

	run, err := f.orch.Run(context.Background(), []string{file})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := []string{
		"formatting: ran autopep8 on " + file,
		"formatting: ran black on " + file,
	}
	if !reflect.DeepEqual(f.vcs.commits, want) {
		t.Fatalf("commits = %v, want %v", f.vcs.commits, want)
	}
	rep := run.Files[0]
	if !reflect.DeepEqual(rep.FormatCommits, []string{"autopep8", "black"}) {
		t.Fatalf("FormatCommits = %v", rep.FormatCommits)
	}
}

func TestFormatterFailureDoesNotBlockLinting(t *testing.T) {
	f := newFixture(t, Config{})
	file := writeSample(t, "x\n")
	f.formatter.pre = []string{"autopep8"}
	f.formatter.failOn["autopep8"] = true

	run, err := f.orch.Run(context.Background(), []string{file})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if f.linter.calls != 1 {
		t.Fatalf("linter ran %d times, want 1", f.linter.calls)
	}
	if len(f.vcs.commits) != 0 {
		t.Fatalf("commits = %v, want none", f.vcs.commits)
	}
	if run.Files[0].Err != nil {
		t.Fatalf("formatter failure became fatal: %v", run.Files[0].Err)
	}
}

func TestPerFileFailureDoesNotAbortBatch(t *testing.T) {
	f := newFixture(t, Config{})
	first := writeSample(t, "one\n")
	second := writeSample(t, "two\n")
	f.linter.script = []lintResult{
		{err: errors.New("pylint exploded")},
		{lines: nil},
	}

	run, err := f.orch.Run(context.Background(), []string{first, second})
	if err != nil {
		t.Fatalf("Run() error = %v, want per-file isolation", err)
	}
	if run.Failed != 1 || run.Clean != 1 {
		t.Fatalf("counts = %+v, want 1 failed and 1 clean", run)
	}
	if f.linter.calls != 2 {
		t.Fatalf("linter ran %d times, want 2", f.linter.calls)
	}
}

func TestGroupErrorContinuesToNextGroup(t *testing.T) {
	f := newFixture(t, Config{})
	file := writeSample(t, "original\n")
	// Seven issues across two functions selects the by-function strategy.
	f.linter.script = []lintResult{{lines: []string{
		"R0912: too many branches: alpha",
		"R0912: too many branches: alpha",
		"R0912: too many branches: alpha",
		"R0912: too many branches: alpha",
		"W0612: unused variable: beta",
		"W0612: unused variable: beta",
		"W0612: unused variable: beta",
	}}}
	f.fixer.errs = []error{errors.New("session died"), nil}
	f.fixer.onFix = func(path string) {
		os.WriteFile(path, []byte("patched\n"), 0o644)
	}

	run, err := f.orch.Run(context.Background(), []string{file})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	rep := run.Files[0]
	if rep.SessionsRun != 2 || rep.GroupErrors != 1 {
		t.Fatalf("sessions = %d, group errors = %d, want 2 and 1", rep.SessionsRun, rep.GroupErrors)
	}
	if !rep.Committed {
		t.Fatalf("report = %+v, want surviving group committed", rep)
	}
}

func TestNoChangesProducedSkipsTesting(t *testing.T) {
	f := newFixture(t, Config{})
	file := writeSample(t, "original\n")
	f.linter.script = []lintResult{{lines: []string{"unused-import: os"}}}
	f.vcs.hasChangesFn = func(string) (bool, error) { return false, nil }

	run, err := f.orch.Run(context.Background(), []string{file})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	rep := run.Files[0]
	if rep.State != StateDone || rep.Committed {
		t.Fatalf("report = %+v, want done without commit", rep)
	}
	if f.gate.calls != 0 {
		t.Fatalf("test gate ran %d times with nothing to verify", f.gate.calls)
	}
}

func TestCancelledContextStopsRun(t *testing.T) {
	f := newFixture(t, Config{})
	file := writeSample(t, "x\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := f.orch.Run(ctx, []string{file})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if len(run.Files) != 0 {
		t.Fatalf("processed %d files after cancellation", len(run.Files))
	}
}

func TestEventsEmitted(t *testing.T) {
	events := make(chan Event, 64)
	f := newFixture(t, Config{Events: events})
	file := writeSample(t, "original\n")
	f.linter.script = []lintResult{{lines: []string{"unused-import: os"}}}
	f.fixer.onFix = func(path string) {
		os.WriteFile(path, []byte("patched\n"), 0o644)
	}

	if _, err := f.orch.Run(context.Background(), []string{file}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	close(events)

	var states []State
	for ev := range events {
		if ev.File != file {
			t.Fatalf("event for %q, want %q", ev.File, file)
		}
		states = append(states, ev.State)
	}
	want := []State{
		StateFormatting, StateLinting, StateFixing,
		StateTesting, StateCommitting, StatePostFixTesting, StateDone,
	}
	if !reflect.DeepEqual(states, want) {
		t.Fatalf("event states = %v, want %v", states, want)
	}
}

func TestDiffStats(t *testing.T) {
	tests := []struct {
		name        string
		before      string
		after       string
		added, gone int
	}{
		{name: "identical", before: "a\nb\n", after: "a\nb\n"},
		{name: "line added", before: "a\n", after: "a\nb\n", added: 1},
		{name: "line removed", before: "a\nb\n", after: "a\n", gone: 1},
		{name: "line replaced", before: "a\nold\nc\n", after: "a\nnew\nc\n", added: 1, gone: 1},
		{name: "no trailing newline", before: "a", after: "b", added: 1, gone: 1},
		{name: "from empty", before: "", after: "x\ny\n", added: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			added, removed := diffStats(tt.before, tt.after)
			if added != tt.added || removed != tt.gone {
				t.Fatalf("diffStats() = +%d/-%d, want +%d/-%d", added, removed, tt.added, tt.gone)
			}
		})
	}
}

func TestRunReportSummary(t *testing.T) {
	r := RunReport{Files: make([]FileReport, 3), Fixed: 1, Clean: 1, Failed: 1}
	got := r.Summary()
	if !strings.Contains(got, "3 files") || !strings.Contains(got, "1 fixed") {
		t.Fatalf("Summary() = %q", got)
	}
	r.Halted = true
	if !strings.Contains(r.Summary(), "halted") {
		t.Fatalf("Summary() = %q, want halted marker", r.Summary())
	}
}
