package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lintmend/lintmend/internal/config"
	"github.com/lintmend/lintmend/internal/output"
)

var (
	cfgFile string
	cfg     *config.Config

	jsonOut bool
	noColor bool
	verbose bool

	// Build information - set by goreleaser via ldflags
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
	BuiltBy = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "lintmend",
	Short: "Automated lint remediation driven by an AI pair-programming assistant",
	Long: `Lintmend walks the tracked Python files of a repository, lints each
one, groups the findings, and drives an aider-compatible assistant to
fix them group by group. Every change is formatted, test-gated, and
committed on its own so a bad fix is one revert away.

Quick Start:
  lintmend scan                  # List candidate files and skip reasons
  lintmend fix                   # Remediate every candidate file
  lintmend fix src/app.py        # Remediate one file
  lintmend ask src/app.py        # Ask for a reliability critique
  lintmend serve                 # Web form + suggestion API`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		output.SetNoColor(noColor)

		// Commands that manage or print config do their own loading.
		switch cmd.Name() {
		case "version", "completion", "init", "path", "show":
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			if cfgFile == "" && errors.Is(err, fs.ErrNotExist) {
				// No config file yet; defaults cover local use.
				cfg = config.Default()
				return nil
			}
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.config/lintmend/config.toml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Emit machine-readable JSON instead of styled text")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(
		newFixCmd(),
		newScanCmd(),
		newAskCmd(),
		newServeCmd(),
		newWatchCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
}

func setupLogging() {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// formatter builds the output formatter for the current invocation.
func formatter() *output.Formatter {
	return output.New(output.WithJSON(jsonOut))
}

// watchSignals cancels ctx on SIGINT/SIGTERM. A second signal exits
// immediately.
func watchSignals(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nInterrupted; finishing the file in flight")
		cancel()
		<-sigCh
		os.Exit(130)
	}()
}

func newVersionCmd() *cobra.Command {
	var short bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			w := cmd.OutOrStdout()
			if short {
				fmt.Fprintln(w, Version)
				return
			}
			fmt.Fprintf(w, "lintmend version %s\n", Version)
			fmt.Fprintf(w, "  commit:  %s\n", Commit)
			fmt.Fprintf(w, "  built:   %s\n", Date)
			fmt.Fprintf(w, "  builder: %s\n", BuiltBy)
		},
	}
	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only version number")
	return cmd
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.CreateDefault()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created config file: %s\n", path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print configuration file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), config.DefaultPath())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(cfgFile)
			if err != nil {
				if cfgFile != "" || !errors.Is(err, fs.ErrNotExist) {
					return err
				}
				loaded = config.Default()
				fmt.Fprintln(cmd.OutOrStdout(), "# Using default configuration (no config file found)")
				fmt.Fprintln(cmd.OutOrStdout())
			}
			return config.Print(loaded, cmd.OutOrStdout())
		},
	})

	return cmd
}
