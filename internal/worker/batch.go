package worker

import (
	"context"
	"sort"

	"github.com/ppiankov/seomancer/internal/model"
)

// AuditFunc runs one page audit and returns its report.
type AuditFunc func(ctx context.Context, url string) (*model.Report, error)

// AuditJob audits a single URL through the pool.
type AuditJob struct {
	URL string
	Run AuditFunc
}

// Execute implements Job
func (j *AuditJob) Execute(ctx context.Context) Result {
	report, err := j.Run(ctx, j.URL)
	return &AuditResult{URL: j.URL, Report: report, Err: err}
}

// AuditResult is the outcome of auditing one URL.
type AuditResult struct {
	URL    string
	Report *model.Report
	Err    error
}

// GetError implements Result
func (r *AuditResult) GetError() error {
	return r.Err
}

// BatchProcessor fans a list of URLs out over a worker pool and collects
// per-URL audit results.
type BatchProcessor struct {
	workers int
}

// NewBatchProcessor creates a batch processor with the given parallelism.
func NewBatchProcessor(workers int) *BatchProcessor {
	if workers <= 0 {
		workers = 1
	}
	return &BatchProcessor{workers: workers}
}

// Process audits every URL and returns results in input order. Individual
// failures are recorded per URL, never aborting the batch.
func (b *BatchProcessor) Process(ctx context.Context, urls []string, run AuditFunc) []*AuditResult {
	pool := NewPool(b.workers)
	pool.Start()

	finished := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			pool.Shutdown()
		case <-finished:
		}
	}()

	for _, u := range urls {
		pool.Submit(&AuditJob{URL: u, Run: run})
	}

	raw := pool.Wait()
	close(finished)

	order := make(map[string]int, len(urls))
	for i, u := range urls {
		order[u] = i
	}

	results := make([]*AuditResult, 0, len(raw))
	for _, r := range raw {
		if ar, ok := r.(*AuditResult); ok {
			results = append(results, ar)
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return order[results[i].URL] < order[results[j].URL]
	})

	return results
}

// Summary aggregates a finished batch.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	MeanScore float64
}

// Summarize computes aggregate counts and the mean score over successful
// audits.
func Summarize(results []*AuditResult) Summary {
	s := Summary{Total: len(results)}
	var sum float64
	for _, r := range results {
		if r.Err != nil {
			s.Failed++
			continue
		}
		s.Succeeded++
		sum += r.Report.Score.Overall
	}
	if s.Succeeded > 0 {
		s.MeanScore = sum / float64(s.Succeeded)
	}
	return s
}
