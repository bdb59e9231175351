package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	processJSON    string
	processAudio   bool
	processTimeout time.Duration
)

// processCmd represents the process command
var processCmd = &cobra.Command{
	Use:   "process <file>",
	Short: "Process one call transcript or recording into a claim report",
	Long: `Process runs a single call through the full pipeline:
- Transcribe audio (with --audio) or read transcript text
- Extract checkable factual claims
- Retrieve matching snippets from the reference corpus
- Verify each claim against its evidence
- Produce a report with summary, action items and a claim table

Example:
  claimlens process call.txt
  claimlens process call.txt --json report.json
  claimlens process call.wav --audio`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().StringVar(&processJSON, "json", "", "write the report JSON to this path (default: stdout)")
	processCmd.Flags().BoolVar(&processAudio, "audio", false, "treat the input as an audio file and transcribe it first")
	processCmd.Flags().DurationVar(&processTimeout, "timeout", 5*time.Minute, "overall processing timeout")
}

func runProcess(cmd *cobra.Command, args []string) error {
	path := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
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

	report, err := func() (any, error) {
		if processAudio {
			return p.ProcessAudio(ctx, path)
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read transcript: %w", err)
		}
		return p.ProcessTranscript(ctx, strings.TrimSpace(string(raw)))
	}()
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if processJSON == "" {
		fmt.Println(string(out))
		return nil
	}
	if err := os.WriteFile(processJSON, out, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Report written to %s\n", processJSON)
	return nil
}
