package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/joestump/slackbridge/internal/app"
	"github.com/joestump/slackbridge/internal/config"
	"github.com/joestump/slackbridge/internal/db"
	"github.com/joestump/slackbridge/internal/dispatch"
	"github.com/joestump/slackbridge/internal/hub"
	"github.com/joestump/slackbridge/internal/mcpserver"
	"github.com/joestump/slackbridge/internal/redact"
	"github.com/joestump/slackbridge/internal/retention"
	"github.com/joestump/slackbridge/internal/slackapi"
	"github.com/joestump/slackbridge/internal/web"
)

const shutdownTimeout = 5 * time.Second

func main() {
	log.SetFlags(log.LstdFlags | log.LUTC)

	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "slackbridge",
		Short:             "Answer Slack mentions and DMs with a conversational backend app",
		Version:           config.Version,
		PersistentPreRunE: loadConfigFile,
		RunE:              run,
		SilenceUsage:      true,
	}

	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve delivery log and app tools over MCP stdio",
		RunE:  runMCP,
	}
	rootCmd.AddCommand(mcpCmd)

	f := rootCmd.PersistentFlags()
	f.String("config", "", "optional config file (yaml, toml or json)")
	f.String("bot-token", "", "Slack bot token (xoxb-...)")
	f.String("app-id", "", "backend app id that answers questions")
	f.Bool("allow-retry", false, "process Slack retry deliveries instead of acknowledging them")
	f.String("backend", config.BackendDify, "backend app type: dify or anthropic")
	f.String("dify-base-url", "https://api.dify.ai/v1", "Dify API base URL")
	f.String("dify-api-key", "", "default Dify app API key")
	f.String("anthropic-model", "claude-haiku-4-5-20251001", "Claude model for the anthropic backend")
	f.String("system-prompt", "", "system prompt for the anthropic backend (default: built-in)")
	f.Int("max-tokens", 1024, "max answer tokens for the anthropic backend")
	f.String("slack-api-url", "https://slack.com/api/", "Slack Web API base URL")
	f.String("reply-format", dispatch.FormatText, "reply format: text or mrkdwn")
	f.Bool("reply-in-thread", false, "reply in the thread of the triggering message")
	f.Int("port", 8080, "HTTP listen port")
	f.String("state-dir", "/state", "directory for the delivery log database")
	f.Duration("backend-timeout", 60*time.Second, "timeout for one backend app call")
	f.Duration("delivery-retention", 30*24*time.Hour, "how long to keep delivery records (0 keeps forever)")

	// Viper keys use underscores so they match the env var suffix after
	// stripping the SLACKBRIDGE_ prefix.
	for _, name := range []string{
		"bot-token", "app-id", "allow-retry", "backend", "dify-base-url", "dify-api-key",
		"anthropic-model", "system-prompt", "max-tokens", "slack-api-url", "reply-format",
		"reply-in-thread", "port", "state-dir", "backend-timeout", "delivery-retention",
	} {
		_ = viper.BindPFlag(strings.ReplaceAll(name, "-", "_"), f.Lookup(name))
	}

	viper.SetEnvPrefix("SLACKBRIDGE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	return rootCmd
}

// loadConfigFile reads --config when given. The file is watched from run once
// the live snapshot exists.
func loadConfigFile(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return nil
	}
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

func run(cmd *cobra.Command, _ []string) error {
	live := config.NewLive(config.Load())
	cfg := live.Config()

	log.Printf("slackbridge %s starting", config.Version)
	log.Printf("  backend: %s", cfg.Backend)
	log.Printf("  app: %s", valueOrUnset(cfg.AppID))
	log.Printf("  bot token: %s", setOrUnset(cfg.BotToken))
	log.Printf("  reply: format=%s thread=%t", cfg.ReplyFormat, cfg.ReplyInThread)
	log.Printf("  allow retry: %t", cfg.AllowRetry)
	log.Printf("  state: %s", cfg.StateDir)

	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	database, err := db.Open(filepath.Join(cfg.StateDir, "slackbridge.db"))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close() //nolint:errcheck

	invoker, err := app.New(cfg)
	if err != nil {
		return err
	}

	deliveries := hub.New()
	defer deliveries.Close()

	messenger := slackapi.New(cfg.SlackAPIURL, &http.Client{Timeout: 30 * time.Second})
	recorder := web.NewRecorder(database, deliveries, redact.New(cfg.Secrets()))
	dispatcher := dispatch.New(invoker, messenger, dispatch.WithObserver(recorder))

	// Per-request settings and redaction follow edits to the config file.
	// Backend clients keep their startup credentials.
	live.OnChange(func(c config.Config) {
		recorder.SetFilter(redact.New(c.Secrets()))
	})
	live.Watch()

	webServer := web.New(&cfg, dispatcher, database, deliveries, web.WithSettings(live.Settings))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := webServer.Start(); err != nil {
			return fmt.Errorf("web server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return retention.New(database, cfg.DeliveryRetention).Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Printf("shutting down...")
		// Close the hub first so open delivery streams return.
		deliveries.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := webServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("web server shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func runMCP(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()

	// stdout carries JSON-RPC; keep logs on stderr.
	log.SetOutput(os.Stderr)

	database, err := db.Open(filepath.Join(cfg.StateDir, "slackbridge.db"))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close() //nolint:errcheck

	invoker, err := app.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	return mcpserver.NewServer(database, invoker, cfg.AppID).Run(ctx)
}

func valueOrUnset(s string) string {
	if s == "" {
		return "(unset)"
	}
	return s
}

func setOrUnset(s string) string {
	if s == "" {
		return "(unset)"
	}
	return "(set)"
}
