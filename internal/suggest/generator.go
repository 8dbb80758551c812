package suggest

import (
	"context"
	"fmt"
	"time"

	"github.com/ppiankov/seomancer/internal/llm"
	"github.com/ppiankov/seomancer/internal/model"
)

// generateSleepFunc is the sleep function used between retries (injectable for tests)
var generateSleepFunc = sleepCtx

// Generator turns fix-eligible findings into validated patches. It is the
// only engine component that talks to the LLM backend, and the only one
// that needs cross-request coordination: the fingerprint flight cache
// guarantees at most one in-flight generation per fingerprint, with
// concurrent callers sharing the single outcome.
type Generator struct {
	provider llm.Provider
	cfg      model.SuggestConfig
	flights  *flightCache
}

// NewGenerator creates a generator backed by the given provider. A nil
// provider disables generation: every request fails as unavailable.
func NewGenerator(provider llm.Provider, cfg model.SuggestConfig) *Generator {
	if cfg.MaxLengthMultiplier <= 0 {
		cfg.MaxLengthMultiplier = 10
	}
	if cfg.ContextPadding <= 0 {
		cfg.ContextPadding = 256
	}
	return &Generator{
		provider: provider,
		cfg:      cfg,
		flights:  newFlightCache(),
	}
}

// Generate produces a patch for one finding, deduplicated by fingerprint
// (target span + rule id + rule-set version). A cached valid patch is
// returned immediately; a cached rejection stays terminal until Regenerate.
// Cancelling ctx detaches this caller without disturbing other waiters; the
// backend call itself is cancelled only when the last waiter leaves.
func (g *Generator) Generate(ctx context.Context, doc *model.Document, finding model.Finding, ruleSetVersion string) (*model.Patch, error) {
	if !finding.FixEligible || finding.Span == nil {
		return nil, fmt.Errorf("finding %s is not fix-eligible", finding.RuleID)
	}
	if g.provider == nil {
		return nil, fmt.Errorf("no LLM provider configured: %w", model.ErrSuggestionUnavailable)
	}

	fp := model.Fingerprint(doc.ContentHash, *finding.Span, finding.RuleID, ruleSetVersion)

	c, genCtx, started := g.flights.join(fp, doc.ContentHash)
	if started {
		go g.run(genCtx, c, fp, doc, finding, ruleSetVersion)
	}

	select {
	case <-c.done:
		g.flights.leave(fp, c)
		return c.patch, c.err
	case <-ctx.Done():
		g.flights.leave(fp, c)
		return nil, ctx.Err()
	}
}

// Regenerate deliberately bypasses the fingerprint cache, discarding any
// cached outcome (including a terminal rejection) before generating anew.
func (g *Generator) Regenerate(ctx context.Context, doc *model.Document, finding model.Finding, ruleSetVersion string) (*model.Patch, error) {
	if finding.Span != nil {
		g.flights.evict(model.Fingerprint(doc.ContentHash, *finding.Span, finding.RuleID, ruleSetVersion))
	}
	return g.Generate(ctx, doc, finding, ruleSetVersion)
}

// Discard drops every cached outcome for one document. Patches are scoped
// to the exact bytes they were generated against, so when the document's
// analysis session ends its outcomes must not linger in the cache.
func (g *Generator) Discard(contentHash string) {
	g.flights.evictDoc(contentHash)
}

// run performs the backend call and validation for one fingerprint, then
// publishes the outcome on the cell. It owns the cell until complete.
func (g *Generator) run(ctx context.Context, c *cell, fp string, doc *model.Document, finding model.Finding, ruleSetVersion string) {
	span := *finding.Span
	target := doc.Slice(span)
	maxOut := g.cfg.MaxLengthMultiplier * span.Len()

	req := llm.GenerateRequest{
		RuleSetVersion:  ruleSetVersion,
		RuleID:          finding.RuleID,
		Message:         finding.Message,
		ContextSnippet:  g.snippet(doc, span),
		Target:          target,
		MaxOutputLength: maxOut,
	}

	resp, err := g.generateWithRetry(ctx, req)
	if err != nil {
		c.err = fmt.Errorf("generate %s: %v: %w", finding.RuleID, err, model.ErrSuggestionUnavailable)
		// Transient failure: evict so a later caller can try again.
		g.flights.complete(fp, c, false)
		return
	}

	patch := &model.Patch{
		Span:        span,
		Replacement: resp.ReplacementText,
		RuleID:      finding.RuleID,
		Fingerprint: fp,
		Status:      model.PatchPending,
	}

	if verr := validateReplacement(resp.ReplacementText, span, finding.Category, g.cfg.MaxLengthMultiplier); verr != nil {
		patch.Status = model.PatchRejected
		patch.Reason = verr.Error()
		// The rejected patch is still returned so callers can surface the
		// reason alongside the error.
		c.patch = patch
		c.err = &model.RejectionError{Fingerprint: fp, Reason: verr.Error()}
		// Terminal for this fingerprint; the settled cell stays cached.
		g.flights.complete(fp, c, true)
		return
	}

	patch.Status = model.PatchValid
	c.patch = patch
	g.flights.complete(fp, c, true)
}

// generateWithRetry retries transient backend failures a bounded number of
// times. The cache already prevents duplicate concurrent cost, so the
// budget stays small and further retrying is the caller's decision.
func (g *Generator) generateWithRetry(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
	attempts := g.cfg.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * 500 * time.Millisecond
			if err := generateSleepFunc(ctx, backoff); err != nil {
				return nil, err
			}
		}

		resp, err := g.provider.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// snippet returns the prompt context: the target span plus bounded padding
// on each side, never the whole page.
func (g *Generator) snippet(doc *model.Document, span model.Span) string {
	start := span.Start - g.cfg.ContextPadding
	if start < 0 {
		start = 0
	}
	end := span.End + g.cfg.ContextPadding
	if end > len(doc.Source) {
		end = len(doc.Source)
	}
	return doc.Source[start:end]
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
