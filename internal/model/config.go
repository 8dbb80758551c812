package model

import "time"

// Config is the full runtime configuration. Defaults are overridable via
// ~/.seomancer/config.yaml, SEOMANCER_* environment variables and CLI flags.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Cache       CacheConfig       `yaml:"cache"`
	LLM         LLMConfig         `yaml:"llm"`
	Suggest     SuggestConfig     `yaml:"suggest"`
	Scoring     ScoringConfig     `yaml:"scoring"`
	Server      ServerConfig      `yaml:"server"`
	Store       StoreConfig       `yaml:"store"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
}

// HTTPConfig controls page fetching
type HTTPConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	UserAgent     string        `yaml:"user_agent"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes"`
	InsecureTLS   bool          `yaml:"insecure_tls"`
	RespectRobots bool          `yaml:"respect_robots"`
	RatePerSecond float64       `yaml:"rate_per_second"` // per-host fetch rate
	RateBurst     int           `yaml:"rate_burst"`
	HTTPProxy     string        `yaml:"http_proxy"`
	HTTPSProxy    string        `yaml:"https_proxy"`
}

// CacheConfig controls the derived-result cache keyed by content hash
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled"`
	MemoryTTL time.Duration `yaml:"memory_ttl"`
	DiskDir   string        `yaml:"disk_dir"` // empty disables the disk layer
	DiskTTL   time.Duration `yaml:"disk_ttl"`
}

// LLMConfig holds LLM provider configuration
type LLMConfig struct {
	Provider  string `yaml:"provider"` // openai, anthropic, ollama
	Model     string `yaml:"model"`
	APIKey    string `yaml:"-"` // from environment only, never persisted
	BaseURL   string `yaml:"base_url"`
	Timeout   int    `yaml:"timeout"` // seconds
	MaxTokens int    `yaml:"max_tokens"`
}

// SuggestConfig bounds patch generation and validation
type SuggestConfig struct {
	// MaxLengthMultiplier rejects replacements longer than
	// multiplier * original span length.
	MaxLengthMultiplier int `yaml:"max_length_multiplier"`

	// ContextPadding is how many bytes around the target span are included
	// in the prompt context. The whole page is never sent.
	ContextPadding int `yaml:"context_padding"`

	// MaxRetries bounds internal retries on transport failures.
	MaxRetries int `yaml:"max_retries"`
}

// ScoringConfig optionally overrides the built-in rule-set scoring table
type ScoringConfig struct {
	RuleSetFile string `yaml:"ruleset_file"` // YAML overrides for weights/normalization
}

// ServerConfig controls the HTTP API
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	AnalysisTTL    time.Duration `yaml:"analysis_ttl"` // how long documents stay patchable
}

// StoreConfig controls report persistence
type StoreConfig struct {
	Path string `yaml:"path"` // sqlite database path, empty disables persistence
}

// ConcurrencyConfig controls worker parallelism
type ConcurrencyConfig struct {
	AuditWorkers int `yaml:"audit_workers"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Timeout:       30 * time.Second,
			UserAgent:     "Seomancer/1.0 (+https://github.com/ppiankov/seomancer)",
			MaxBodyBytes:  2_000_000,
			RespectRobots: true,
			RatePerSecond: 2,
			RateBurst:     5,
		},
		Cache: CacheConfig{
			Enabled:   true,
			MemoryTTL: 15 * time.Minute,
			DiskTTL:   24 * time.Hour,
		},
		LLM: LLMConfig{
			Provider:  "ollama",
			Model:     "llama3",
			Timeout:   60,
			MaxTokens: 512,
		},
		Suggest: SuggestConfig{
			MaxLengthMultiplier: 10,
			ContextPadding:      256,
			MaxRetries:          2,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"*"},
			AnalysisTTL:    30 * time.Minute,
		},
		Store: StoreConfig{
			Path: "seomancer.db",
		},
		Concurrency: ConcurrencyConfig{
			AuditWorkers: 4,
		},
	}
}
