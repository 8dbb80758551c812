package suggest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/seomancer/internal/llm"
	"github.com/ppiankov/seomancer/internal/model"
)

// stubProvider counts calls and returns a scripted response. A respond
// function, when set, derives the response from the request instead.
type stubProvider struct {
	calls    atomic.Int64
	response string
	respond  func(llm.GenerateRequest) string
	err      error
	delay    time.Duration
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) IsAvailable(ctx context.Context) bool { return true }

func (s *stubProvider) Generate(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.delay):
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.respond != nil {
		return &llm.GenerateResponse{ReplacementText: s.respond(req), Model: "stub"}, nil
	}
	return &llm.GenerateResponse{ReplacementText: s.response, Model: "stub"}, nil
}

const genPage = `<html><head><title></title></head><body><h1>x</h1><img src="/a.png"></body></html>`

func titleFinding(doc *model.Document) model.Finding {
	span := doc.TitleSpan
	return model.Finding{
		RuleID:      "missing-title-text",
		Category:    model.CategoryMetadata,
		Severity:    3,
		Message:     "title element is empty",
		Span:        &span,
		FixEligible: true,
	}
}

func imageFinding(doc *model.Document) model.Finding {
	span := doc.Images[0].Span
	return model.Finding{
		RuleID:      "img-missing-alt",
		Category:    model.CategoryMedia,
		Severity:    1,
		Message:     `image "/a.png" has no alt text`,
		Span:        &span,
		FixEligible: true,
	}
}

func genDoc(t *testing.T) *model.Document {
	t.Helper()
	return &model.Document{
		Source:      genPage,
		SourceLen:   len(genPage),
		ContentHash: model.HashSource(genPage),
		HasTitle:    true,
		TitleSpan:   model.Span{Start: strings.Index(genPage, "<title>"), End: strings.Index(genPage, "</title>") + len("</title>")},
		Images: []model.Image{{
			Src:  "/a.png",
			Span: model.Span{Start: strings.Index(genPage, "<img"), End: strings.Index(genPage, `.png">`) + len(`.png">`)},
		}},
	}
}

func TestGenerator_Generate_ValidPatch(t *testing.T) {
	provider := &stubProvider{response: "<title>Helpful Page Title</title>"}
	gen := NewGenerator(provider, model.SuggestConfig{MaxLengthMultiplier: 10, ContextPadding: 64, MaxRetries: 1})
	doc := genDoc(t)

	patch, err := gen.Generate(context.Background(), doc, titleFinding(doc), "seo-rules/v1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if patch.Status != model.PatchValid {
		t.Errorf("Expected valid patch, got %s (%s)", patch.Status, patch.Reason)
	}
	if patch.Replacement != "<title>Helpful Page Title</title>" {
		t.Errorf("Unexpected replacement: %q", patch.Replacement)
	}
	if patch.Fingerprint == "" {
		t.Error("Expected fingerprint to be set")
	}
	if doc.Slice(patch.Span) != "<title></title>" {
		t.Errorf("Patch span does not cover the target: %q", doc.Slice(patch.Span))
	}
}

func TestGenerator_Generate_SingleCallPerFingerprint(t *testing.T) {
	provider := &stubProvider{response: "<title>Shared Result</title>", delay: 50 * time.Millisecond}
	gen := NewGenerator(provider, model.SuggestConfig{MaxLengthMultiplier: 10})
	doc := genDoc(t)
	finding := titleFinding(doc)

	const concurrent = 16
	var wg sync.WaitGroup
	patches := make([]*model.Patch, concurrent)
	errs := make([]error, concurrent)

	for i := 0; i < concurrent; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			patches[idx], errs[idx] = gen.Generate(context.Background(), doc, finding, "seo-rules/v1")
		}(i)
	}
	wg.Wait()

	if got := provider.calls.Load(); got != 1 {
		t.Errorf("Expected exactly 1 backend call for concurrent identical requests, got %d", got)
	}
	for i := 0; i < concurrent; i++ {
		if errs[i] != nil {
			t.Fatalf("Waiter %d failed: %v", i, errs[i])
		}
		if patches[i] != patches[0] {
			t.Error("Expected all waiters to share the single outcome")
		}
	}
}

func TestGenerator_Generate_CachedAcrossSequentialCalls(t *testing.T) {
	provider := &stubProvider{response: "<title>Cached</title>"}
	gen := NewGenerator(provider, model.SuggestConfig{MaxLengthMultiplier: 10})
	doc := genDoc(t)
	finding := titleFinding(doc)

	for i := 0; i < 3; i++ {
		if _, err := gen.Generate(context.Background(), doc, finding, "seo-rules/v1"); err != nil {
			t.Fatalf("Generate %d: %v", i, err)
		}
	}

	if got := provider.calls.Load(); got != 1 {
		t.Errorf("Expected cached result to be reused, got %d backend calls", got)
	}
}

func TestGenerator_Generate_ScriptIntoMetaRejected(t *testing.T) {
	provider := &stubProvider{response: "<script>alert(1)</script>"}
	gen := NewGenerator(provider, model.SuggestConfig{MaxLengthMultiplier: 100})
	doc := genDoc(t)

	patch, err := gen.Generate(context.Background(), doc, titleFinding(doc), "seo-rules/v1")
	if !errors.Is(err, model.ErrPatchRejected) {
		t.Fatalf("Expected ErrPatchRejected, got patch=%v err=%v", patch, err)
	}

	var rej *model.RejectionError
	if !errors.As(err, &rej) {
		t.Fatal("Expected a RejectionError with a recorded reason")
	}
	if !strings.Contains(rej.Reason, "script") {
		t.Errorf("Expected reason to name the forbidden tag, got %q", rej.Reason)
	}

	// Rejection is terminal for the fingerprint: no second backend call.
	_, err = gen.Generate(context.Background(), doc, titleFinding(doc), "seo-rules/v1")
	if !errors.Is(err, model.ErrPatchRejected) {
		t.Fatalf("Expected cached rejection, got %v", err)
	}
	if got := provider.calls.Load(); got != 1 {
		t.Errorf("Expected rejection to be cached, got %d backend calls", got)
	}
}

func TestGenerator_Generate_RunawayLengthRejected(t *testing.T) {
	// 5000-character replacement for a short span exceeds the multiplier.
	provider := &stubProvider{response: "<title>" + strings.Repeat("a", 5000) + "</title>"}
	gen := NewGenerator(provider, model.SuggestConfig{MaxLengthMultiplier: 10})
	doc := genDoc(t)

	_, err := gen.Generate(context.Background(), doc, titleFinding(doc), "seo-rules/v1")
	if !errors.Is(err, model.ErrPatchRejected) {
		t.Fatalf("Expected length rejection, got %v", err)
	}
}

func TestGenerator_Generate_BackendFailureIsUnavailable(t *testing.T) {
	provider := &stubProvider{err: errors.New("connection refused")}
	gen := NewGenerator(provider, model.SuggestConfig{MaxLengthMultiplier: 10, MaxRetries: 1})
	restoreSleep := generateSleepFunc
	generateSleepFunc = func(ctx context.Context, d time.Duration) error { return nil }
	defer func() { generateSleepFunc = restoreSleep }()

	doc := genDoc(t)

	_, err := gen.Generate(context.Background(), doc, titleFinding(doc), "seo-rules/v1")
	if !errors.Is(err, model.ErrSuggestionUnavailable) {
		t.Fatalf("Expected ErrSuggestionUnavailable, got %v", err)
	}

	// Retried once internally, then surfaced.
	if got := provider.calls.Load(); got != 2 {
		t.Errorf("Expected 2 attempts (1 retry), got %d", got)
	}

	// Transient failures are not cached: a later call tries again.
	provider.err = nil
	provider.response = "<title>Recovered</title>"
	patch, err := gen.Generate(context.Background(), doc, titleFinding(doc), "seo-rules/v1")
	if err != nil || patch.Status != model.PatchValid {
		t.Errorf("Expected recovery after transient failure, got patch=%v err=%v", patch, err)
	}
}

func TestGenerator_Regenerate_BypassesCachedRejection(t *testing.T) {
	provider := &stubProvider{response: "<script>bad</script>"}
	gen := NewGenerator(provider, model.SuggestConfig{MaxLengthMultiplier: 100})
	doc := genDoc(t)

	if _, err := gen.Generate(context.Background(), doc, titleFinding(doc), "seo-rules/v1"); !errors.Is(err, model.ErrPatchRejected) {
		t.Fatalf("Expected rejection, got %v", err)
	}

	provider.response = "<title>Fixed Now</title>"
	patch, err := gen.Regenerate(context.Background(), doc, titleFinding(doc), "seo-rules/v1")
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if patch.Status != model.PatchValid {
		t.Errorf("Expected valid patch after regeneration, got %s", patch.Status)
	}
	if got := provider.calls.Load(); got != 2 {
		t.Errorf("Expected regeneration to call the backend again, got %d calls", got)
	}
}

func TestGenerator_Generate_NotFixEligible(t *testing.T) {
	gen := NewGenerator(&stubProvider{}, model.SuggestConfig{})
	doc := genDoc(t)

	_, err := gen.Generate(context.Background(), doc, model.Finding{RuleID: "missing-canonical"}, "seo-rules/v1")
	if err == nil {
		t.Error("Expected error for a finding without fix eligibility")
	}
}

func TestGenerator_Generate_CallerCancelDoesNotDisturbOtherWaiters(t *testing.T) {
	provider := &stubProvider{response: "<title>Survives</title>", delay: 80 * time.Millisecond}
	gen := NewGenerator(provider, model.SuggestConfig{MaxLengthMultiplier: 10})
	doc := genDoc(t)
	finding := titleFinding(doc)

	cancelCtx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	var cancelledErr, survivorErr error
	var survivorPatch *model.Patch

	wg.Add(2)
	go func() {
		defer wg.Done()
		_, cancelledErr = gen.Generate(cancelCtx, doc, finding, "seo-rules/v1")
	}()
	go func() {
		defer wg.Done()
		survivorPatch, survivorErr = gen.Generate(context.Background(), doc, finding, "seo-rules/v1")
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	wg.Wait()

	if !errors.Is(cancelledErr, context.Canceled) {
		t.Errorf("Expected cancelled caller to get context.Canceled, got %v", cancelledErr)
	}
	if survivorErr != nil {
		t.Fatalf("Expected surviving waiter to get the result, got %v", survivorErr)
	}
	if survivorPatch == nil || survivorPatch.Status != model.PatchValid {
		t.Errorf("Expected valid patch for surviving waiter, got %+v", survivorPatch)
	}
	if got := provider.calls.Load(); got != 1 {
		t.Errorf("Expected a single backend call, got %d", got)
	}
}

func TestGenerator_Generate_LastWaiterCancelReleasesBackend(t *testing.T) {
	provider := &stubProvider{response: "<title>Never Seen</title>", delay: 200 * time.Millisecond}
	gen := NewGenerator(provider, model.SuggestConfig{MaxLengthMultiplier: 10})
	doc := genDoc(t)
	finding := titleFinding(doc)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := gen.Generate(ctx, doc, finding, "seo-rules/v1")
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}

	// The in-flight generation was cancelled with the last waiter gone, so
	// a fresh request starts a new generation instead of joining a zombie.
	provider.delay = 0
	patch, err := gen.Generate(context.Background(), doc, finding, "seo-rules/v1")
	if err != nil || patch == nil {
		t.Fatalf("Expected fresh generation after eviction, got patch=%v err=%v", patch, err)
	}
}

func TestGenerator_SnippetIsBounded(t *testing.T) {
	provider := &stubProvider{response: `<img src="/a.png" alt="Logo">`}
	gen := NewGenerator(provider, model.SuggestConfig{MaxLengthMultiplier: 10, ContextPadding: 16})
	doc := genDoc(t)
	finding := imageFinding(doc)

	snippet := gen.snippet(doc, *finding.Span)
	if len(snippet) > finding.Span.Len()+2*16 {
		t.Errorf("Expected snippet bounded by padding, got %d bytes", len(snippet))
	}
	if !strings.Contains(snippet, `<img src="/a.png">`) {
		t.Errorf("Expected snippet to contain the target, got %q", snippet)
	}

	patch, err := gen.Generate(context.Background(), doc, finding, "seo-rules/v1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if patch.Status != model.PatchValid {
		t.Errorf("Expected valid patch, got %s (%s)", patch.Status, patch.Reason)
	}
}

func TestGenerator_DistinctDocumentsSameSpanDoNotShare(t *testing.T) {
	// Two pages whose image finding sits at identical byte offsets. The
	// outcomes must stay separate: each patch is generated from its own
	// document's content.
	docFor := func(src string) *model.Document {
		page := `<html><body><img src="` + src + `"></body></html>`
		return &model.Document{
			Source:      page,
			SourceLen:   len(page),
			ContentHash: model.HashSource(page),
			Images: []model.Image{{
				Src:  src,
				Span: model.Span{Start: strings.Index(page, "<img"), End: strings.Index(page, `">`) + len(`">`)},
			}},
		}
	}
	docA := docFor("/cats.png")
	docB := docFor("/dogs.png")
	if docA.Images[0].Span != docB.Images[0].Span {
		t.Fatal("Test setup: spans must be identical across documents")
	}

	provider := &stubProvider{respond: func(req llm.GenerateRequest) string {
		return strings.Replace(req.Target, ">", ` alt="Photo">`, 1)
	}}
	gen := NewGenerator(provider, model.SuggestConfig{MaxLengthMultiplier: 10, ContextPadding: 64})

	patchA, err := gen.Generate(context.Background(), docA, imageFindingFor(docA), "seo-rules/v1")
	if err != nil {
		t.Fatalf("Generate A: %v", err)
	}
	patchB, err := gen.Generate(context.Background(), docB, imageFindingFor(docB), "seo-rules/v1")
	if err != nil {
		t.Fatalf("Generate B: %v", err)
	}

	if got := provider.calls.Load(); got != 2 {
		t.Errorf("Expected one backend call per document, got %d", got)
	}
	if patchA.Fingerprint == patchB.Fingerprint {
		t.Error("Expected different fingerprints for different documents")
	}
	if !strings.Contains(patchA.Replacement, "/cats.png") {
		t.Errorf("Patch A built from wrong document: %q", patchA.Replacement)
	}
	if !strings.Contains(patchB.Replacement, "/dogs.png") {
		t.Errorf("Patch B built from wrong document: %q", patchB.Replacement)
	}
}

func imageFindingFor(doc *model.Document) model.Finding {
	span := doc.Images[0].Span
	return model.Finding{
		RuleID:      "img-missing-alt",
		Category:    model.CategoryMedia,
		Severity:    1,
		Message:     `image "` + doc.Images[0].Src + `" has no alt text`,
		Span:        &span,
		FixEligible: true,
	}
}

func TestGenerator_DiscardDropsSettledOutcomes(t *testing.T) {
	provider := &stubProvider{response: "<title>Fresh Title</title>"}
	gen := NewGenerator(provider, model.SuggestConfig{MaxLengthMultiplier: 10})
	doc := genDoc(t)

	if _, err := gen.Generate(context.Background(), doc, titleFinding(doc), "seo-rules/v1"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := gen.Generate(context.Background(), doc, titleFinding(doc), "seo-rules/v1"); err != nil {
		t.Fatalf("Generate (cached): %v", err)
	}
	if got := provider.calls.Load(); got != 1 {
		t.Fatalf("Expected the second call to hit the cache, got %d backend calls", got)
	}

	gen.Discard(doc.ContentHash)

	if _, err := gen.Generate(context.Background(), doc, titleFinding(doc), "seo-rules/v1"); err != nil {
		t.Fatalf("Generate after discard: %v", err)
	}
	if got := provider.calls.Load(); got != 2 {
		t.Errorf("Expected discard to drop the cached outcome, got %d backend calls", got)
	}

	gen.flights.mu.Lock()
	remaining := len(gen.flights.cells)
	gen.flights.mu.Unlock()
	if remaining != 1 {
		t.Errorf("Expected only the regenerated cell in the cache, got %d", remaining)
	}
}
