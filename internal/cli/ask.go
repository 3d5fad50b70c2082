package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/lintmend/lintmend/internal/assistant"
	"github.com/lintmend/lintmend/internal/fault"
	"github.com/lintmend/lintmend/internal/guard"
	"github.com/lintmend/lintmend/internal/output"
	"github.com/lintmend/lintmend/internal/ratelimit"
	"github.com/lintmend/lintmend/internal/retry"
	"github.com/lintmend/lintmend/internal/store"
)

func newAskCmd() *cobra.Command {
	var question string

	cmd := &cobra.Command{
		Use:   "ask [file]",
		Short: "Ask the assistant for a reliability critique of a snippet",
		Long: `Read a code snippet from a file argument or stdin and ask the
assistant to critique it. The exchange is stored in the suggestion
database and the answer is rendered as markdown when stdout is a
terminal.

Examples:
  lintmend ask src/app.py
  cat src/app.py | lintmend ask
  lintmend ask src/app.py --question "What would you simplify first?"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, args, question)
		},
	}

	cmd.Flags().StringVar(&question, "question", assistant.DefaultQuestion, "Question to ask about the snippet")

	return cmd
}

func runAsk(cmd *cobra.Command, args []string, question string) error {
	log := slog.Default()

	var (
		code []byte
		file string
		err  error
	)
	if len(args) == 1 {
		file = args[0]
		code, err = os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("reading snippet: %w", err)
		}
	} else {
		code, err = io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
	}
	if strings.TrimSpace(string(code)) == "" {
		return &fault.ValidationError{Field: "code", Reason: "must not be empty"}
	}

	st, err := store.Open(cfg.Web.Database)
	if err != nil {
		return fmt.Errorf("opening suggestion store: %w", err)
	}
	defer st.Close()

	limiter := ratelimit.NewLimiter(cfg.Limits.APIRateLimit, time.Minute)
	retrier := retry.New(retry.DefaultConfig(), log)
	g := guard.New(cfg.Limits, limiter, log)
	g.Start()
	defer g.Stop()

	iq := assistant.NewInterrogator(cfg, limiter, retrier, g, st, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watchSignals(cancel)

	critique, err := iq.Ask(ctx, string(code), question)
	if err != nil {
		return err
	}

	f := formatter()
	if !f.IsJSON() && isatty.IsTerminal(os.Stdout.Fd()) {
		fmt.Print(renderMarkdown(critique))
		return nil
	}
	return f.Output(output.AskResponse{
		TimestampedResponse: output.NewTimestamped(),
		File:                file,
		Question:            question,
		Response:            critique,
		Model:               cfg.Tools.Model,
	})
}
