package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/seomancer/internal/pipeline"
	"github.com/ppiankov/seomancer/internal/server"
)

var (
	serveAddr      string
	allowedOrigins []string
	analysisTTL    time.Duration
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Serve exposes the analysis engine over HTTP:
- POST /analyze                  analyze a URL or raw HTML
- GET  /reports                  list persisted reports
- GET  /reports/{id}             fetch one persisted report
- POST /analyses/{id}/patches    suggest a patch for one finding
- POST /analyses/{id}/apply      apply validated patches

Example:
  seomancer serve
  seomancer serve --addr :9090 --store ./reports.db
  seomancer serve --llm --llm-provider openai --llm-model gpt-4o-mini`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
	serveCmd.Flags().StringSliceVar(&allowedOrigins, "allowed-origins", []string{"*"}, "CORS allowed origins")
	serveCmd.Flags().DurationVar(&analysisTTL, "analysis-ttl", 30*time.Minute, "how long analyses stay patchable")

	serveCmd.Flags().StringVar(&userAgent, "ua", "Seomancer/1.0 (+https://github.com/ppiankov/seomancer)", "HTTP User-Agent")
	serveCmd.Flags().DurationVar(&timeout, "fetch-timeout", 30*time.Second, "timeout for page fetches")
	serveCmd.Flags().Int64Var(&maxBytes, "max-bytes", 2_000_000, "max response bytes to read")
	serveCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the derived-result cache")
	serveCmd.Flags().BoolVar(&noRobots, "no-robots", false, "skip robots.txt checks")
	serveCmd.Flags().StringVar(&rulesetFile, "ruleset", "", "YAML file overriding rule-set weights and normalization")
	serveCmd.Flags().StringVar(&storePath, "store", "seomancer.db", "sqlite path for report persistence (empty disables)")
	serveCmd.Flags().StringVar(&httpProxy, "http-proxy", "", "HTTP proxy URL (overrides HTTP_PROXY env var)")
	serveCmd.Flags().StringVar(&httpsProxy, "https-proxy", "", "HTTPS proxy URL (overrides HTTPS_PROXY env var)")

	serveCmd.Flags().BoolVar(&llmEnabled, "llm", false, "enable LLM patch suggestions")
	serveCmd.Flags().StringVar(&llmProvider, "llm-provider", "ollama", "LLM provider (openai, anthropic, ollama)")
	serveCmd.Flags().StringVar(&llmModel, "llm-model", "llama3", "LLM model name")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig()
	if err != nil {
		return err
	}
	cfg.Server.Addr = serveAddr
	cfg.Server.AllowedOrigins = allowedOrigins
	cfg.Server.AnalysisTTL = analysisTTL

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

	srv := server.NewServer(analyzer, cfg.Server, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	fmt.Fprintf(os.Stderr, "Seomancer API listening on %s (rule set %s)\n", serveAddr, analyzer.RuleSetVersion())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Stop(ctx)
	}
}
