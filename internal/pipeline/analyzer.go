package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/seomancer/internal/cache"
	"github.com/ppiankov/seomancer/internal/llm"
	"github.com/ppiankov/seomancer/internal/model"
	"github.com/ppiankov/seomancer/internal/parse"
	"github.com/ppiankov/seomancer/internal/patch"
	"github.com/ppiankov/seomancer/internal/rules"
	"github.com/ppiankov/seomancer/internal/score"
	"github.com/ppiankov/seomancer/internal/store"
	"github.com/ppiankov/seomancer/internal/suggest"
)

// Analyzer runs the full audit pipeline: fetch (optional), parse, rule
// evaluation, scoring. It retains analyzed documents for a bounded window so
// patches can be suggested and applied against the exact bytes that were
// scored.
type Analyzer struct {
	cfg     *model.Config
	log     *zap.Logger
	fetcher *Fetcher
	parser  *parse.Parser
	engine  *rules.Engine
	scorer  *score.Scorer
	ruleset *rules.RuleSet

	generator *suggest.Generator
	applier   *patch.Applier

	results cache.Cache        // derived findings/score, keyed by content hash + rule-set version
	reports *store.ReportStore // nil when persistence is disabled

	mu       sync.Mutex
	sessions map[string]*session
}

// session holds the retained state of one analysis: the parsed document and
// every patch generated for it so far, keyed by fingerprint.
type session struct {
	doc     *model.Document
	report  *model.Report
	patches map[string]*model.Patch
	expires time.Time
}

// NewAnalyzer wires the pipeline from configuration.
func NewAnalyzer(cfg *model.Config, log *zap.Logger) (*Analyzer, error) {
	ruleset := rules.DefaultRuleSet()
	if cfg.Scoring.RuleSetFile != "" {
		rs, err := rules.LoadOverrides(cfg.Scoring.RuleSetFile)
		if err != nil {
			return nil, fmt.Errorf("load rule set overrides: %w", err)
		}
		ruleset = rs
	}

	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM))
	if err != nil {
		return nil, fmt.Errorf("create LLM provider: %w", err)
	}
	if provider == nil {
		log.Info("no LLM provider configured, patch suggestions disabled")
	}

	var reports *store.ReportStore
	if cfg.Store.Path != "" {
		reports, err = store.Open(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("open report store: %w", err)
		}
	}

	var results cache.Cache
	if cfg.Cache.Enabled {
		if cfg.Cache.DiskDir != "" {
			results = cache.NewLayeredCache(cfg.Cache.MemoryTTL, cfg.Cache.DiskDir, cfg.Cache.DiskTTL)
		} else {
			results = cache.NewMemoryCache(cfg.Cache.MemoryTTL, 10*time.Minute)
		}
	}

	return &Analyzer{
		cfg:       cfg,
		log:       log,
		fetcher:   NewFetcher(cfg.HTTP),
		parser:    parse.NewParser(),
		engine:    rules.NewEngine(ruleset),
		scorer:    score.NewScorer(ruleset),
		ruleset:   ruleset,
		generator: suggest.NewGenerator(provider, cfg.Suggest),
		applier:   patch.NewApplier(),
		results:   results,
		reports:   reports,
		sessions:  make(map[string]*session),
	}, nil
}

// RuleSetVersion reports which rule-set version this analyzer scores with.
func (a *Analyzer) RuleSetVersion() string {
	return a.ruleset.Version
}

// Close releases the report store.
func (a *Analyzer) Close() error {
	if a.reports != nil {
		return a.reports.Close()
	}
	return nil
}

// AnalyzeURL fetches, parses and scores the page at rawURL.
func (a *Analyzer) AnalyzeURL(ctx context.Context, rawURL string) (*model.Report, error) {
	start := time.Now()

	fetched, err := a.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}

	report, err := a.analyze(ctx, fetched.Body, fetched.ContentType, fetched.FinalURL, fetched.Meta)
	if err != nil {
		return nil, err
	}

	a.log.Info("analyzed page",
		zap.String("url", fetched.FinalURL),
		zap.String("id", report.ID),
		zap.Float64("score", report.Score.Overall),
		zap.Bool("from_cache", report.FromCache),
		zap.Duration("elapsed", time.Since(start)))

	return report, nil
}

// AnalyzeHTML parses and scores raw HTML supplied directly by the caller.
func (a *Analyzer) AnalyzeHTML(ctx context.Context, raw []byte, contentType string) (*model.Report, error) {
	return a.analyze(ctx, raw, contentType, "", model.FetchMeta{})
}

func (a *Analyzer) analyze(ctx context.Context, raw []byte, contentType, pageURL string, meta model.FetchMeta) (*model.Report, error) {
	doc, err := a.parser.Parse(raw, contentType, pageURL)
	if err != nil {
		return nil, err
	}

	result, fromCache := a.evaluate(doc)

	report := &model.Report{
		ID:        uuid.NewString(),
		URL:       pageURL,
		FetchedAt: time.Now().UTC(),
		FetchMeta: meta,
		Score:     result,
		FromCache: fromCache,
	}

	a.retain(report, doc)

	if a.reports != nil {
		if err := a.reports.Save(ctx, report); err != nil {
			a.log.Warn("persist report", zap.String("id", report.ID), zap.Error(err))
		}
	}

	return report, nil
}

// evaluate returns findings and score for doc, reusing cached derived results
// when the same content was already analyzed under the same rule-set version.
func (a *Analyzer) evaluate(doc *model.Document) (model.Score, bool) {
	var key string
	if a.results != nil {
		key = cache.AnalysisKey(doc.ContentHash, a.ruleset.Version)
		if data, found := a.results.Get(key); found {
			var cached model.Score
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached, true
			}
			_ = a.results.Delete(key)
		}
	}

	findings := a.engine.Evaluate(doc)
	result := a.scorer.Calculate(findings)

	if a.results != nil {
		if data, err := json.Marshal(result); err == nil {
			_ = a.results.Set(key, data, a.cfg.Cache.MemoryTTL)
		}
	}

	return result, false
}

// retain registers the document under the report id so later suggest/apply
// calls can address it, and drops any expired sessions.
func (a *Analyzer) retain(report *model.Report, doc *model.Document) {
	now := time.Now()

	a.mu.Lock()
	defer a.mu.Unlock()

	for id, s := range a.sessions {
		if now.After(s.expires) {
			a.generator.Discard(s.doc.ContentHash)
			delete(a.sessions, id)
		}
	}

	a.sessions[report.ID] = &session{
		doc:     doc,
		report:  report,
		patches: make(map[string]*model.Patch),
		expires: now.Add(a.cfg.Server.AnalysisTTL),
	}
}

func (a *Analyzer) lookup(analysisID string) (*session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.sessions[analysisID]
	if !ok {
		return nil, fmt.Errorf("analysis %s not found or expired", analysisID)
	}
	if time.Now().After(s.expires) {
		a.generator.Discard(s.doc.ContentHash)
		delete(a.sessions, analysisID)
		return nil, fmt.Errorf("analysis %s not found or expired", analysisID)
	}
	return s, nil
}

// SuggestPatch generates (or returns the cached) patch for the finding
// identified by rule id and position within the analysis. With regenerate
// set, a cached outcome for the same finding is discarded first.
func (a *Analyzer) SuggestPatch(ctx context.Context, analysisID, ruleID string, position model.Span, regenerate bool) (*model.Patch, error) {
	s, err := a.lookup(analysisID)
	if err != nil {
		return nil, err
	}

	finding, err := findingAt(s.report.Score.Findings, ruleID, position)
	if err != nil {
		return nil, err
	}

	var p *model.Patch
	if regenerate {
		p, err = a.generator.Regenerate(ctx, s.doc, finding, s.report.Score.RuleSetVersion)
	} else {
		p, err = a.generator.Generate(ctx, s.doc, finding, s.report.Score.RuleSetVersion)
	}
	if p != nil {
		a.mu.Lock()
		s.patches[p.Fingerprint] = p
		a.mu.Unlock()
	}
	return p, err
}

// ApplyPatches applies the identified patches to the analysis's original
// source and returns the patched HTML. Only valid, non-overlapping patches
// apply; any rejected or overlapping member fails the whole set.
func (a *Analyzer) ApplyPatches(analysisID string, fingerprints []string) (string, *model.PatchSet, error) {
	s, err := a.lookup(analysisID)
	if err != nil {
		return "", nil, err
	}

	set := model.PatchSet{Patches: make([]model.Patch, 0, len(fingerprints))}

	a.mu.Lock()
	for _, fp := range fingerprints {
		p, ok := s.patches[fp]
		if !ok {
			a.mu.Unlock()
			return "", nil, fmt.Errorf("no patch with fingerprint %s in analysis %s", fp, analysisID)
		}
		set.Patches = append(set.Patches, *p)
	}
	a.mu.Unlock()

	patched, err := a.applier.Apply(s.doc, set)
	if err != nil {
		return "", nil, err
	}
	return patched, &set, nil
}

// GetReport returns a persisted report by id.
func (a *Analyzer) GetReport(ctx context.Context, id string) (*model.Report, error) {
	if a.reports == nil {
		return nil, fmt.Errorf("report persistence disabled")
	}
	return a.reports.Get(ctx, id)
}

// ListReports returns up to limit persisted reports, newest first.
func (a *Analyzer) ListReports(ctx context.Context, limit int) ([]*model.Report, error) {
	if a.reports == nil {
		return nil, fmt.Errorf("report persistence disabled")
	}
	return a.reports.List(ctx, limit)
}

// findingAt locates the finding with the given rule id whose span matches
// position exactly. Both parts are required: a single rule can fire several
// times on one page.
func findingAt(findings []model.Finding, ruleID string, position model.Span) (model.Finding, error) {
	for _, f := range findings {
		if f.RuleID != ruleID {
			continue
		}
		if f.Span != nil && *f.Span == position {
			return f, nil
		}
	}
	return model.Finding{}, fmt.Errorf("no finding for rule %s at [%d,%d)", ruleID, position.Start, position.End)
}
