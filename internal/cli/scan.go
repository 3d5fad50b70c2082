package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/lintmend/lintmend/internal/output"
	"github.com/lintmend/lintmend/internal/scanner"
)

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "List candidate files and why the rest were skipped",
		Long: `Walk the repository's tracked files and report which ones a fix run
would process, along with the filter reason for every file it would
skip.

Examples:
  lintmend scan
  lintmend scan --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan()
		},
	}
}

func runScan() error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	repo := cfg.AbsRepoPath()
	sc := scanner.New(repo, cfg.Scan, slog.Default())
	candidates, err := sc.Scan()
	if err != nil {
		return err
	}
	return formatter().Output(output.NewScanReport(repo, candidates))
}
