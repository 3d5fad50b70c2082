package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lintmend/lintmend/internal/assistant"
	"github.com/lintmend/lintmend/internal/guard"
	"github.com/lintmend/lintmend/internal/ratelimit"
	"github.com/lintmend/lintmend/internal/retry"
	"github.com/lintmend/lintmend/internal/store"
	"github.com/lintmend/lintmend/internal/webui"
)

func newServeCmd() *cobra.Command {
	var (
		addr   string
		apiKey string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the snippet critique form and suggestion API",
		Long: `Start the local web server: a form for pasting snippets, an analyze
endpoint backed by the assistant, and a JSON API over the stored
suggestions.

Endpoints:
  GET    /                      Snippet form
  POST   /analyze               Critique a snippet (form field or JSON {"code"})
  GET    /api/suggestions       List stored suggestions (?file= filters)
  GET    /api/suggestions/:id   Get one suggestion
  PUT    /api/suggestions/:id   Replace a stored critique
  DELETE /api/suggestions/:id   Delete a suggestion
  GET    /health                Health check

Binding beyond loopback requires an API key.

Examples:
  lintmend serve
  lintmend serve --addr 127.0.0.1:9000
  lintmend serve --addr 0.0.0.0:8799 --api-key "$LINTMEND_API_KEY"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(addr, apiKey)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	cmd.Flags().StringVar(&apiKey, "api-key", os.Getenv("LINTMEND_API_KEY"), "Require this API key on every request")

	return cmd
}

func runServe(addr, apiKey string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := slog.Default()

	if addr == "" {
		addr = cfg.Web.Addr
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

	auth := webui.AuthConfig{Mode: webui.AuthModeLocal}
	if apiKey != "" {
		auth = webui.AuthConfig{Mode: webui.AuthModeAPIKey, APIKey: apiKey}
	}
	srv := webui.New(webui.Config{
		Addr:         addr,
		MaxSnippetKB: cfg.Web.MaxSnippetKB,
		Model:        cfg.Tools.Model,
		Auth:         auth,
	}, iq, st, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watchSignals(cancel)

	fmt.Printf("Serving on http://%s\n", srv.Addr())
	fmt.Println("Press Ctrl+C to stop")
	return srv.Start(ctx)
}
