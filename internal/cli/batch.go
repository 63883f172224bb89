package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/atikulmunna/sagrag/internal/pipeline"
	"github.com/atikulmunna/sagrag/internal/worker"
	"github.com/spf13/cobra"
)

var (
	concurrency  int
	outputDir    string
	batchUser    string
	batchTimeout time.Duration
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Answer multiple questions from a file in parallel",
	Long: `Batch answers many questions concurrently:
- Read questions from input file (one per line, # for comments)
- Answer them in parallel with configurable worker count
- Pace requests per user when a rate is configured
- Write a JSON and Markdown report for each question

Example:
  sagrag batch questions.txt --user u1
  sagrag batch questions.txt --concurrency 8 --output-dir ./answers`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", runtime.NumCPU(), "number of concurrent workers")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./sagrag-answers", "output directory for reports")
	batchCmd.Flags().StringVar(&batchUser, "user", "batch", "user id recorded with every query")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 10*time.Minute, "total timeout for batch processing")
	batchCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close(context.Background())
	if noFooter {
		a.cfg.Output.IncludeFooter = false
	}
	if !cmd.Flags().Changed("concurrency") && a.cfg.Concurrency.Workers > 0 {
		concurrency = a.cfg.Concurrency.Workers
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  sagrag Batch Processing\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input file:   %s\n", file)
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", concurrency)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	fmt.Fprintf(os.Stderr, "  LLM:          %s\n", orNone(a.cfg.LLM.Provider))
	fmt.Fprintf(os.Stderr, "\n")

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	p, err := a.pipeline()
	if err != nil {
		return err
	}
	defer func() { _ = p.Close(context.Background()) }()

	processor := worker.NewBatchProcessor(p, concurrency, a.cfg.Concurrency.RequestsPerSecond, a.cfg.Concurrency.Burst)

	fmt.Fprintf(os.Stderr, "⚙️  Answering questions with %d workers...\n\n", concurrency)
	results, err := processor.ProcessFile(ctx, batchUser, file)
	if err != nil {
		return fmt.Errorf("process file: %w", err)
	}

	renderer := pipeline.NewRenderer(a.cfg.Output.IncludeFooter)
	successCount := 0
	failureCount := 0

	for _, result := range results {
		if result.Error != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", result.Query, result.Error)
			continue
		}

		slug := fmt.Sprintf("%03d-%s", result.Index+1, sanitizeFilename(result.Query))
		jsonPath := filepath.Join(outputDir, slug+".json")
		mdPath := filepath.Join(outputDir, slug+".md")

		if err := renderer.RenderJSON(result.Response, jsonPath); err != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: failed to write JSON: %v\n", result.Query, err)
			continue
		}
		if err := renderer.RenderMarkdown(result.Response, mdPath); err != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: failed to write Markdown: %v\n", result.Query, err)
			continue
		}

		successCount++
		fmt.Fprintf(os.Stderr, "✓ %s (confidence %.2f, risk %.2f, %s)\n",
			result.Query, result.Response.Confidence, result.Response.HallucinationRisk, result.Response.ExplainTrace)
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d questions\n", len(results))
	fmt.Fprintf(os.Stderr, "  Success:   %d\n", successCount)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", failureCount)
	fmt.Fprintf(os.Stderr, "  Output:    %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "\n")

	return nil
}

// sanitizeFilename turns a question into a short file-safe slug
func sanitizeFilename(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}

	out := strings.TrimSuffix(b.String(), "-")
	if len(out) > 60 {
		out = strings.TrimSuffix(out[:60], "-")
	}
	if out == "" {
		out = "query"
	}
	return out
}
