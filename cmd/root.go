// Package cmd wires the cobra command tree for the nyaya CLI.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nyayalabs/nyaya/internal/app"
	"github.com/nyayalabs/nyaya/internal/config"
	"github.com/nyayalabs/nyaya/internal/log"
)

var (
	flagDebug   bool
	flagLogJSON bool
)

var rootCmd = &cobra.Command{
	Use:   "nyaya",
	Short: "Legal research assistant over Indian statute law",
	Long: `Nyaya answers questions about Indian statutes by retrieving the
relevant sections from an indexed corpus and grounding an LLM answer in
them. It refuses to answer when the corpus holds nothing relevant.

Running nyaya without a subcommand opens the interactive chat.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd.Context())
	},
}

// Execute runs the root command.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "emit logs as JSON")
}

func newLogger() log.Logger {
	level := slog.LevelInfo
	if flagDebug {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level, JSON: flagLogJSON})
}

// bootstrap loads config and builds the application container. Callers
// must Close the returned App.
func bootstrap(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	application, err := app.New(ctx, cfg, newLogger())
	if err != nil {
		return nil, err
	}
	return application, nil
}
