package suggest

import (
	"context"
	"sync"

	"github.com/ppiankov/seomancer/internal/model"
)

// cell is the shared outcome of one generation request. The cell itself is
// the coordination point between concurrent callers: waiters attach to it
// instead of issuing their own backend call, and read the result after done
// is closed.
type cell struct {
	done chan struct{} // closed when patch/err are set

	patch *model.Patch
	err   error

	docHash string             // content hash of the document that owns the cell
	waiters int                // callers still interested in the outcome
	cancel  context.CancelFunc // cancels the in-flight generation
}

// flightCache is an atomic insert-if-absent map from fingerprint to cell.
// The "has someone already started this?" check and the insert happen under
// one mutex acquisition, which guarantees at most one in-flight generation
// per fingerprint. The mutex is never held across the backend call.
type flightCache struct {
	mu    sync.Mutex
	cells map[string]*cell
}

func newFlightCache() *flightCache {
	return &flightCache{cells: make(map[string]*cell)}
}

// join attaches the caller to the fingerprint's cell, creating it when
// absent. started is true when the caller is the one that must run the
// generation; genCtx is the detached context the generation should use.
func (f *flightCache) join(fp, docHash string) (c *cell, genCtx context.Context, started bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if existing, ok := f.cells[fp]; ok {
		existing.waiters++
		return existing, nil, false
	}

	// Generation runs detached from any single caller's context: waiters
	// that are still interested must not lose the result because the
	// first caller went away.
	ctx, cancel := context.WithCancel(context.Background())
	c = &cell{
		done:    make(chan struct{}),
		docHash: docHash,
		waiters: 1,
		cancel:  cancel,
	}
	f.cells[fp] = c
	return c, ctx, true
}

// leave detaches a caller that stopped waiting. When the last interested
// waiter leaves an unfinished cell, the generation is cancelled and the
// cell evicted so a later request starts fresh.
func (f *flightCache) leave(fp string, c *cell) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c.waiters--
	if c.waiters > 0 {
		return
	}

	select {
	case <-c.done:
		// Finished cells stay cached; they cost nothing to keep.
	default:
		c.cancel()
		if f.cells[fp] == c {
			delete(f.cells, fp)
		}
	}
}

// complete publishes the outcome. keep=false evicts the cell so callers can
// retry (transient backend failure); keep=true leaves the settled cell in
// place (valid result, or terminal rejection for this fingerprint).
func (f *flightCache) complete(fp string, c *cell, keep bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	close(c.done)
	c.cancel()
	if !keep && f.cells[fp] == c {
		delete(f.cells, fp)
	}
}

// evict drops the fingerprint's cell regardless of state. Used by explicit
// regeneration, which deliberately bypasses the cache.
func (f *flightCache) evict(fp string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.cells, fp)
}

// evictDoc drops every cell belonging to one document. Settled cells are
// only worth keeping while their document can still be patched; once it is
// superseded or its analysis session expires, they go with it.
func (f *flightCache) evictDoc(docHash string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for fp, c := range f.cells {
		if c.docHash == docHash {
			delete(f.cells, fp)
		}
	}
}
