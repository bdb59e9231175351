package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var indexTimeout time.Duration

// indexCmd represents the index command
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the evidence index",
}

var indexBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the evidence index from the reference corpus",
	Long: `Build embeds every corpus snippet and persists the index so later
runs reload it instead of re-embedding.

Example:
  claimlens index build
  CLAIMLENS_INDEX_CORPUS_PATH=./kb/snippets.jsonl claimlens index build`,
	RunE: runIndexBuild,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexBuildCmd)

	indexBuildCmd.Flags().DurationVar(&indexTimeout, "timeout", 10*time.Minute, "build timeout")
}

func runIndexBuild(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), indexTimeout)
	defer cancel()

	cfg := loadConfig()
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	client, err := newWatsonxClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("watsonx: %w", err)
	}
	ix, err := newIndex(cfg, client, logger)
	if err != nil {
		return err
	}

	if err := ix.Build(ctx); err != nil {
		return err
	}
	fmt.Printf("Indexed %d documents from %s into %s\n", ix.Size(), cfg.Index.CorpusPath, cfg.Index.Dir)
	return nil
}
