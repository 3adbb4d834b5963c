package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/koopa0/secondbrain/internal/app"
	"github.com/koopa0/secondbrain/internal/config"
	"github.com/koopa0/secondbrain/internal/log"
)

var reindexLimit int32

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Re-embed all indexed items with the configured embedder model",
	Long: `Reindex re-computes the embedding vector of every indexed item from
its stored excerpt. Run it after changing embedder_model, since vectors
from different models are not comparable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReindex()
	},
}

func init() {
	reindexCmd.Flags().Int32Var(&reindexLimit, "limit", 10000, "maximum number of items to reindex")
	rootCmd.AddCommand(reindexCmd)
}

func runReindex() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.New(log.Config{})

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	n, err := a.Ingestor.Reindex(ctx, reindexLimit)
	if err != nil {
		return fmt.Errorf("reindexing (%d items done): %w", n, err)
	}

	fmt.Printf("reindexed %d items\n", n)
	return nil
}
