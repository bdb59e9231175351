package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/claimlens/claimlens/internal/model"
)

// Processor runs one transcript through the claim-check pipeline.
type Processor interface {
	ProcessTranscript(ctx context.Context, text string) (model.CallReport, error)
}

// CallJob processes a single transcript file.
type CallJob struct {
	Path      string
	Processor Processor
}

// CallResult is the outcome of processing one transcript file.
type CallResult struct {
	Path   string
	Report model.CallReport
	Error  error
}

func (r *CallResult) GetError() error { return r.Error }

func (j *CallJob) Execute(ctx context.Context) Result {
	raw, err := os.ReadFile(j.Path)
	if err != nil {
		return &CallResult{Path: j.Path, Error: fmt.Errorf("read transcript: %w", err)}
	}
	report, err := j.Processor.ProcessTranscript(ctx, string(raw))
	return &CallResult{Path: j.Path, Report: report, Error: err}
}

// BatchProcessor processes many transcript files concurrently.
type BatchProcessor struct {
	processor   Processor
	concurrency int
}

func NewBatchProcessor(processor Processor, concurrency int) *BatchProcessor {
	return &BatchProcessor{processor: processor, concurrency: concurrency}
}

// ProcessPaths runs every transcript file through the pipeline and returns
// one result per path. Per-file failures land in the result, not in an
// error return.
func (b *BatchProcessor) ProcessPaths(ctx context.Context, paths []string) []*CallResult {
	if len(paths) == 0 {
		return []*CallResult{}
	}

	pool := NewPool(b.concurrency)
	pool.Start()

	for _, path := range paths {
		pool.Submit(&CallJob{Path: path, Processor: b.processor})
	}
	results := pool.Wait()

	callResults := make([]*CallResult, len(results))
	for i, result := range results {
		callResults[i] = result.(*CallResult)
	}
	return callResults
}

// ProcessListFile reads transcript paths from a list file, one per line,
// and processes them concurrently.
func (b *BatchProcessor) ProcessListFile(ctx context.Context, listPath string) ([]*CallResult, error) {
	paths, err := ReadPathsFromFile(listPath)
	if err != nil {
		return nil, fmt.Errorf("read path list: %w", err)
	}
	return b.ProcessPaths(ctx, paths), nil
}

// ReadPathsFromFile reads one path per line, skipping blanks, comments and
// duplicates.
func ReadPathsFromFile(listPath string) ([]string, error) {
	file, err := os.Open(listPath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var paths []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !seen[line] {
			seen[line] = true
			paths = append(paths, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}
	return paths, nil
}
