package llm

import (
	"context"
	"fmt"

	"github.com/ppiankov/seomancer/internal/model"
)

// Provider defines the interface for LLM backends that rewrite a markup
// snippet. Every call is fully self-contained: no conversation or session
// state is kept between requests.
type Provider interface {
	// Name returns the provider name
	Name() string

	// Generate produces replacement markup for one finding's snippet
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// GenerateRequest contains the input for one markup rewrite. The snippet is
// the only page content the backend ever sees; the whole page is never sent.
type GenerateRequest struct {
	// RuleSetVersion tags the rule set that produced the finding
	RuleSetVersion string

	// RuleID identifies the violated rule (e.g. "img-missing-alt")
	RuleID string

	// Message is the finding's human-readable description
	Message string

	// ContextSnippet is the markup region around the finding's position
	ContextSnippet string

	// Target is the exact markup being replaced
	Target string

	// MaxOutputLength caps the replacement length in bytes
	MaxOutputLength int

	// Model overrides the configured model (provider-specific)
	Model string
}

// GenerateResponse contains the backend's proposed replacement. The text is
// unvalidated: the suggestion layer decides whether it is safe to apply.
type GenerateResponse struct {
	ReplacementText string
	Model           string
	TokensUsed      int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests, in seconds
	Timeout int

	// MaxTokens for response generation
	MaxTokens int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "",
		Model:     "",
		Timeout:   30,
		MaxTokens: 512,
	}
}

// ConfigFromModel converts model.LLMConfig to llm.Config
func ConfigFromModel(mc model.LLMConfig) Config {
	return Config{
		Provider:  mc.Provider,
		Model:     mc.Model,
		APIKey:    mc.APIKey,
		BaseURL:   mc.BaseURL,
		Timeout:   mc.Timeout,
		MaxTokens: mc.MaxTokens,
	}
}

// systemPrompt pins the backend to markup-only output.
const systemPrompt = "You are an SEO assistant that rewrites small HTML fragments. " +
	"Respond with the corrected markup only: no explanations, no code fences, no surrounding prose."

// BuildPrompt constructs the rewrite prompt for one finding. The context is
// bounded to the snippet so prompts stay small and their scope stays
// deterministic.
func BuildPrompt(req GenerateRequest) string {
	return fmt.Sprintf(`An on-page SEO rule flagged a fragment of an HTML page.

Rule: %s
Problem: %s

Surrounding markup (for context only, do not rewrite it):
%s

Fragment to replace:
%s

Produce an improved replacement for the fragment that fixes the problem.
Keep the same element type, keep all attributes you are not correcting, and
stay under %d characters. Return only the replacement markup.`,
		req.RuleID, req.Message, req.ContextSnippet, req.Target, req.MaxOutputLength)
}
