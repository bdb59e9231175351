package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/claimlens/claimlens/internal/worker"
)

var (
	batchConcurrency int
	batchOutputDir   string
	batchTimeout     time.Duration
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Process multiple transcripts from a list file in parallel",
	Long: `Batch processes many calls concurrently:
- Read transcript file paths from the input file (one per line)
- Process them in parallel with a configurable worker count
- Write one report JSON per transcript into the output directory

Example:
  claimlens batch calls.txt
  claimlens batch calls.txt --concurrency 8 --output-dir ./reports`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", runtime.NumCPU(), "number of concurrent workers")
	batchCmd.Flags().StringVar(&batchOutputDir, "output-dir", "./claimlens-reports", "output directory for reports")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 30*time.Minute, "total timeout for batch processing")
}

func runBatch(cmd *cobra.Command, args []string) error {
	listFile := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	cfg := loadConfig()
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	p, _, err := newPipeline(cfg, logger)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(batchOutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	processor := worker.NewBatchProcessor(p, batchConcurrency)
	results, err := processor.ProcessListFile(ctx, listFile)
	if err != nil {
		return err
	}

	var failed int
	for _, res := range results {
		if res.Error != nil {
			failed++
			fmt.Fprintf(os.Stderr, "FAIL %s: %v\n", res.Path, res.Error)
			continue
		}
		out, err := json.MarshalIndent(res.Report, "", "  ")
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "FAIL %s: marshal report: %v\n", res.Path, err)
			continue
		}
		name := strings.TrimSuffix(filepath.Base(res.Path), filepath.Ext(res.Path)) + ".json"
		target := filepath.Join(batchOutputDir, name)
		if err := os.WriteFile(target, out, 0o644); err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "FAIL %s: write report: %v\n", res.Path, err)
			continue
		}
		fmt.Fprintf(os.Stderr, "OK   %s -> %s\n", res.Path, target)
	}

	fmt.Fprintf(os.Stderr, "\nProcessed %d calls, %d failed\n", len(results), failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d calls failed", failed, len(results))
	}
	return nil
}
