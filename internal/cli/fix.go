package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/lintmend/lintmend/internal/fault"
	"github.com/lintmend/lintmend/internal/grouper"
	"github.com/lintmend/lintmend/internal/orchestrator"
	"github.com/lintmend/lintmend/internal/output"
	"github.com/lintmend/lintmend/internal/tui"
)

func newFixCmd() *cobra.Command {
	var (
		strategy string
		dryRun   bool
		plain    bool
	)

	cmd := &cobra.Command{
		Use:   "fix [file]",
		Short: "Lint candidate files and drive assistant sessions to fix them",
		Long: `Walk the repository's candidate files (or the one named file), lint
each, group the findings, and run one assistant session per group.
Formatter cleanups are committed on their own; assistant changes are
committed only after the test suite passes, and a commit that later
breaks the suite is reverted and halts the run.

Examples:
  lintmend fix                        # Every candidate file
  lintmend fix src/app.py             # One file, same filters apply
  lintmend fix --strategy category    # Group issues by lint category
  lintmend fix --dry-run              # Show issues and groups, no sessions`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFix(args, grouper.Strategy(strategy), dryRun, plain)
		},
	}

	cmd.Flags().StringVar(&strategy, "strategy", "auto", "Issue grouping strategy (auto, category, function, window, single)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Lint and group only; spawn no assistant sessions")
	cmd.Flags().BoolVar(&plain, "plain", false, "Disable the live progress view")

	return cmd
}

func runFix(args []string, strategy grouper.Strategy, dryRun, plain bool) error {
	if !grouper.ValidStrategy(strategy) {
		return &fault.ValidationError{Field: "strategy",
			Reason: fmt.Sprintf("unknown strategy %q", strategy)}
	}

	log := slog.Default()
	useTUI := !plain && !dryRun && !jsonOut && isatty.IsTerminal(os.Stdout.Fd())

	var events chan orchestrator.Event
	if useTUI {
		events = make(chan orchestrator.Event, 64)
	}

	p, err := newPipeline(cfg, strategy, events, log)
	if err != nil {
		return err
	}
	defer p.Close()

	files, err := p.resolveFiles(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watchSignals(cancel)

	if dryRun {
		return runDryRun(ctx, p, files)
	}

	var report orchestrator.RunReport
	var runErr error
	if useTUI {
		report, runErr = runWithProgress(ctx, cancel, p, files, events)
	} else {
		report, runErr = p.orch.Run(ctx, files)
	}

	if err := formatter().Output(output.NewFixReport(cfg.AbsRepoPath(), string(strategy), report)); err != nil {
		return err
	}
	// An interrupt stops between files and the partial report stands.
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

// runWithProgress runs the batch behind the live progress view. The
// orchestrator owns the event channel and closes it when the run ends;
// quitting the view cancels the run.
func runWithProgress(ctx context.Context, cancel context.CancelFunc, p *pipeline, files []string, events chan orchestrator.Event) (orchestrator.RunReport, error) {
	type runResult struct {
		report orchestrator.RunReport
		err    error
	}
	resCh := make(chan runResult, 1)
	go func() {
		report, err := p.orch.Run(ctx, files)
		close(events)
		resCh <- runResult{report, err}
	}()

	prog := tea.NewProgram(tui.New(events, len(files)))
	final, tuiErr := prog.Run()
	if tuiErr != nil {
		slog.Default().Warn("progress view failed", "error", tuiErr)
	}
	if m, ok := final.(tui.Model); ok && m.Quit() {
		cancel()
	}

	res := <-resCh
	return res.report, res.err
}

// runDryRun lints and groups without touching the assistant.
func runDryRun(ctx context.Context, p *pipeline, files []string) error {
	log := slog.Default()
	rep := output.NewDryRunReport(cfg.AbsRepoPath())

	for _, file := range files {
		if ctx.Err() != nil {
			break
		}
		issues, err := p.linter.Run(ctx, file)
		if err != nil {
			log.Warn("lint failed", "file", file, "error", err)
			continue
		}
		if len(issues) == 0 {
			rep.Add(file, 0, "", nil)
			continue
		}
		applied, groups := p.grouper.Plan(issues, p.strategy)
		keys := make([]string, 0, len(groups))
		for _, g := range groups {
			keys = append(keys, g.Key)
		}
		rep.Add(file, len(issues), string(applied), keys)
	}

	return formatter().Output(rep)
}
