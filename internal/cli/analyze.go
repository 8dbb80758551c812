package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/seomancer/internal/model"
	"github.com/ppiankov/seomancer/internal/pipeline"
)

var (
	outJSON     string
	timeout     time.Duration
	userAgent   string
	maxBytes    int64
	noCache     bool
	noRobots    bool
	insecureTLS bool
	rulesetFile string
	storePath   string
	httpProxy   string
	httpsProxy  string
	llmEnabled  bool
	llmProvider string
	llmModel    string
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze <url>",
	Short: "Analyze a single URL and generate an SEO report",
	Long: `Analyze fetches a single web page and:
- Parses it into a span-indexed document model
- Evaluates the versioned SEO rule set
- Computes a deterministic 0-100 score with per-category subscores
- Reports every finding with its exact byte range in the source

Example:
  seomancer analyze https://example.com
  seomancer analyze https://example.com --json report.json
  seomancer analyze https://example.com --llm --llm-provider ollama --llm-model llama3`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	// Output flags
	analyzeCmd.Flags().StringVar(&outJSON, "json", "", "output JSON path (default: stdout)")

	// HTTP flags
	analyzeCmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall analysis timeout")
	analyzeCmd.Flags().StringVar(&userAgent, "ua", "Seomancer/1.0 (+https://github.com/ppiankov/seomancer)", "HTTP User-Agent")
	analyzeCmd.Flags().Int64Var(&maxBytes, "max-bytes", 2_000_000, "max response bytes to read")
	analyzeCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the derived-result cache")
	analyzeCmd.Flags().BoolVar(&noRobots, "no-robots", false, "skip robots.txt checks")
	analyzeCmd.Flags().BoolVar(&insecureTLS, "insecure", false, "skip TLS certificate verification (use for self-signed certs)")
	analyzeCmd.Flags().StringVar(&httpProxy, "http-proxy", "", "HTTP proxy URL (overrides HTTP_PROXY env var)")
	analyzeCmd.Flags().StringVar(&httpsProxy, "https-proxy", "", "HTTPS proxy URL (overrides HTTPS_PROXY env var)")

	// Scoring flags
	analyzeCmd.Flags().StringVar(&rulesetFile, "ruleset", "", "YAML file overriding rule-set weights and normalization")
	analyzeCmd.Flags().StringVar(&storePath, "store", "", "sqlite path for report persistence (empty disables)")

	// LLM flags
	analyzeCmd.Flags().BoolVar(&llmEnabled, "llm", false, "enable LLM patch suggestions")
	analyzeCmd.Flags().StringVar(&llmProvider, "llm-provider", "ollama", "LLM provider (openai, anthropic, ollama)")
	analyzeCmd.Flags().StringVar(&llmModel, "llm-model", "llama3", "LLM model name")
}

// buildConfig assembles runtime configuration from the shared CLI flags.
func buildConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	cfg.HTTP.Timeout = timeout
	cfg.HTTP.UserAgent = userAgent
	cfg.HTTP.MaxBodyBytes = maxBytes
	cfg.HTTP.InsecureTLS = insecureTLS
	cfg.HTTP.RespectRobots = !noRobots
	cfg.HTTP.HTTPProxy = httpProxy
	cfg.HTTP.HTTPSProxy = httpsProxy
	cfg.Cache.Enabled = !noCache
	cfg.Scoring.RuleSetFile = rulesetFile
	cfg.Store.Path = storePath

	if !llmEnabled {
		cfg.LLM.Provider = ""
		return cfg, nil
	}

	cfg.LLM.Provider = llmProvider
	cfg.LLM.Model = llmModel

	// Get API key from environment
	switch llmProvider {
	case "openai":
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		if cfg.LLM.APIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	case "anthropic", "claude":
		cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		if cfg.LLM.APIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
		}
	case "ollama":
		// Ollama doesn't need an API key
		if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
			cfg.LLM.BaseURL = baseURL
		}
	}

	return cfg, nil
}

// newLogger builds the process logger. Verbose mode switches to the
// human-readable development encoder.
func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	url := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cfg, err := buildConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	analyzer, err := pipeline.NewAnalyzer(cfg, logger)
	if err != nil {
		return fmt.Errorf("create analyzer: %w", err)
	}
	defer func() { _ = analyzer.Close() }()

	if verbose {
		fmt.Fprintf(os.Stderr, "Analyzing: %s\n", url)
		fmt.Fprintf(os.Stderr, "Rule set: %s\n", analyzer.RuleSetVersion())
		fmt.Fprintln(os.Stderr)
	}

	report, err := analyzer.AnalyzeURL(ctx, url)
	if err != nil {
		return fmt.Errorf("analyze failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "✓ Score: %.1f/100 (%s)\n", report.Score.Overall, report.Score.RuleSetVersion)
	fmt.Fprintf(os.Stderr, "✓ Findings: %d\n", len(report.Score.Findings))
	for _, f := range report.Score.Findings {
		if f.Span != nil {
			fmt.Fprintf(os.Stderr, "  - [%s] %s (bytes %d-%d)\n", f.RuleID, f.Message, f.Span.Start, f.Span.End)
		} else {
			fmt.Fprintf(os.Stderr, "  - [%s] %s\n", f.RuleID, f.Message)
		}
	}

	return writeReport(report, outJSON)
}

// writeReport renders the report as indented JSON to path, or stdout when
// path is empty.
func writeReport(report *model.Report, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	data = append(data, '\n')

	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "✓ Report written: %s\n", path)
	}
	return nil
}
