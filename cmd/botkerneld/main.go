// Command botkerneld runs the multi-tenant chat-bot DSL runtime: the HTTP
// server that ingests Telegram webhooks and serves the bot control-plane
// routes, plus offline tooling for migrations and spec validation.
//
// Configuration is a YAML file (see internal/config) overlaid with the
// environment variables documented in the runtime's external interface
// spec: DATABASE_URL, TELEGRAM_BOT_TOKEN, LLM_ENABLED, LLM_BASE_URL,
// LLM_MODEL, LLM_TIMEOUT, LLM_MAX_RETRIES, LLM_RATE_LIMIT, LLM_CACHE_TTL,
// LOG_LEVEL, EVENTS_DB_RETENTION_DAYS, METRICS_ENABLED, MASK_SENSITIVE_DATA.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Set via -ldflags at build time; "dev" otherwise.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() so tests can exercise it without a process exit.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "botkerneld",
		Short:        "Multi-tenant Telegram-style chat-bot DSL runtime",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildMigrateCmd(),
		buildReloadCmd(),
		buildValidateCmd(),
	)

	return rootCmd
}
