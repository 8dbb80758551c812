package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/seomancer/internal/pipeline"
	"github.com/ppiankov/seomancer/internal/worker"
)

var (
	concurrency  int
	outputDir    string
	batchTimeout time.Duration
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Audit multiple URLs from a file in parallel",
	Long: `Batch audits multiple URLs concurrently:
- Read URLs from input file (one per line, # comments allowed)
- Audit URLs in parallel with configurable worker count
- Generate an individual JSON report for each URL
- Print an aggregate summary

Example:
  seomancer batch urls.txt
  seomancer batch urls.txt --concurrency 10 --output-dir ./reports
  seomancer batch urls.txt --concurrency 5 --timeout 5m`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	// Concurrency flags
	batchCmd.Flags().IntVar(&concurrency, "concurrency", runtime.NumCPU(), "number of concurrent workers")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./seomancer-reports", "output directory for reports")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 10*time.Minute, "total timeout for batch processing")

	// Inherit flags from analyze command
	batchCmd.Flags().DurationVar(&timeout, "audit-timeout", 30*time.Second, "timeout for individual audits")
	batchCmd.Flags().StringVar(&userAgent, "ua", "Seomancer/1.0 (+https://github.com/ppiankov/seomancer)", "HTTP User-Agent")
	batchCmd.Flags().Int64Var(&maxBytes, "max-bytes", 2_000_000, "max response bytes to read")
	batchCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the derived-result cache")
	batchCmd.Flags().BoolVar(&noRobots, "no-robots", false, "skip robots.txt checks")
	batchCmd.Flags().StringVar(&rulesetFile, "ruleset", "", "YAML file overriding rule-set weights and normalization")
	batchCmd.Flags().StringVar(&storePath, "store", "", "sqlite path for report persistence (empty disables)")
	batchCmd.Flags().StringVar(&httpProxy, "http-proxy", "", "HTTP proxy URL (overrides HTTP_PROXY env var)")
	batchCmd.Flags().StringVar(&httpsProxy, "https-proxy", "", "HTTPS proxy URL (overrides HTTPS_PROXY env var)")
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	cfg, err := buildConfig()
	if err != nil {
		return err
	}
	cfg.Concurrency.AuditWorkers = concurrency

	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	urls, err := readURLFile(file)
	if err != nil {
		return fmt.Errorf("read url file: %w", err)
	}
	if len(urls) == 0 {
		return fmt.Errorf("no URLs found in %s", file)
	}

	fmt.Fprintf(os.Stderr, "Input file:   %s\n", file)
	fmt.Fprintf(os.Stderr, "URLs:         %d\n", len(urls))
	fmt.Fprintf(os.Stderr, "Workers:      %d\n", concurrency)
	fmt.Fprintf(os.Stderr, "Output dir:   %s\n", outputDir)
	fmt.Fprintln(os.Stderr)

	// Create output directory
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	analyzer, err := pipeline.NewAnalyzer(cfg, logger)
	if err != nil {
		return fmt.Errorf("create analyzer: %w", err)
	}
	defer func() { _ = analyzer.Close() }()

	processor := worker.NewBatchProcessor(concurrency)
	results := processor.Process(ctx, urls, analyzer.AnalyzeURL)

	for _, result := range results {
		if result.Err != nil {
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", result.URL, result.Err)
			continue
		}

		jsonPath := filepath.Join(outputDir, sanitizeFilename(result.URL)+".json")
		if err := writeReport(result.Report, jsonPath); err != nil {
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", result.URL, err)
			continue
		}
		fmt.Fprintf(os.Stderr, "✓ %s (score: %.1f/100)\n", result.URL, result.Report.Score.Overall)
	}

	summary := worker.Summarize(results)
	fmt.Fprintln(os.Stderr)
	fmt.Fprintf(os.Stderr, "Total:      %d URLs\n", summary.Total)
	fmt.Fprintf(os.Stderr, "Success:    %d\n", summary.Succeeded)
	fmt.Fprintf(os.Stderr, "Failures:   %d\n", summary.Failed)
	if summary.Succeeded > 0 {
		fmt.Fprintf(os.Stderr, "Mean score: %.1f/100\n", summary.MeanScore)
	}
	fmt.Fprintf(os.Stderr, "Output:     %s\n", outputDir)

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d audits failed", summary.Failed, summary.Total)
	}
	return nil
}

// readURLFile reads one URL per line, skipping blanks and # comments.
func readURLFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, scanner.Err()
}

// sanitizeFilename derives a safe file name from a URL.
func sanitizeFilename(s string) string {
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")

	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "-",
	)
	s = replacer.Replace(s)
	s = strings.Trim(s, "._-")

	// Limit length
	if len(s) > 100 {
		s = s[:100]
	}
	if s == "" {
		s = "report"
	}
	return s
}
