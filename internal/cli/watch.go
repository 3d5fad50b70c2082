package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lintmend/lintmend/internal/fault"
	"github.com/lintmend/lintmend/internal/grouper"
	"github.com/lintmend/lintmend/internal/orchestrator"
	"github.com/lintmend/lintmend/internal/output"
	"github.com/lintmend/lintmend/internal/watch"
)

func newWatchCmd() *cobra.Command {
	var (
		strategy string
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-run remediation whenever tracked source files change",
		Long: `Watch the repository tree and run a remediation pass over each batch
of changed candidate files. Changes are debounced so a burst of editor
writes triggers a single pass, and the same filters as the scanner
decide which files qualify.

Examples:
  lintmend watch
  lintmend watch --debounce 2s
  lintmend watch --strategy window`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(grouper.Strategy(strategy), debounce)
		},
	}

	cmd.Flags().StringVar(&strategy, "strategy", "auto", "Issue grouping strategy (auto, category, function, window, single)")
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "Quiet period before a change batch runs")

	return cmd
}

func runWatch(strategy grouper.Strategy, debounce time.Duration) error {
	if !grouper.ValidStrategy(strategy) {
		return &fault.ValidationError{Field: "strategy",
			Reason: fmt.Sprintf("unknown strategy %q", strategy)}
	}

	log := slog.Default()
	p, err := newPipeline(cfg, strategy, nil, log)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watchSignals(cancel)

	progress := output.ProgressWriter(os.Stdout)

	// The handler runs on the watch loop, so these are single-threaded.
	var haltErr error
	handler := func(ctx context.Context, files []string) {
		progress.Infof("%d file(s) changed", len(files))
		report, runErr := p.orch.Run(ctx, files)
		for _, fr := range report.Files {
			reportProgress(progress, fr)
		}
		if errors.Is(runErr, orchestrator.ErrHalted) {
			haltErr = runErr
			cancel()
		}
	}

	w, err := watch.New(watch.Config{
		Repo:        cfg.AbsRepoPath(),
		Extension:   cfg.Scan.Extension,
		Debounce:    debounce,
		ExcludeDirs: cfg.Scan.ExcludeDirs,
	}, p.scanner, handler, log)
	if err != nil {
		return err
	}

	progress.Infof("watching %s (ctrl+c to stop)", cfg.AbsRepoPath())
	if err := w.Run(ctx); err != nil {
		return err
	}
	return haltErr
}

func reportProgress(progress *output.ProgressMsg, fr orchestrator.FileReport) {
	switch {
	case errors.Is(fr.Err, orchestrator.ErrHalted):
		progress.Errorf("%s: commit reverted, run halted", fr.File)
	case fr.Failure != "":
		progress.Errorf("%s: %s", fr.File, fr.Failure)
	case fr.Committed:
		progress.Successf("%s: committed %s", fr.File, shortSHA(fr.CommitSHA))
	case fr.TestsFailed:
		progress.Warningf("%s: tests failed, changes left uncommitted", fr.File)
	case fr.Issues == 0:
		progress.Successf("%s: clean", fr.File)
	default:
		progress.Infof("%s: unchanged", fr.File)
	}
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
