package enrich

import (
	"sync"

	"github.com/oklog/ulid/v2"
)

// BatchProgress is the observable state of one repair batch.
type BatchProgress struct {
	Total     int  `json:"total"`
	Completed int  `json:"completed"`
	Failed    int  `json:"failed"`
	Done      bool `json:"done"`
}

// BatchTracker tracks repair batches (re-summarize, re-extract) in memory.
type BatchTracker struct {
	mu      sync.Mutex
	batches map[string]*BatchProgress
}

func NewBatchTracker() *BatchTracker {
	return &BatchTracker{batches: make(map[string]*BatchProgress)}
}

// Start registers a new batch and returns its id.
func (b *BatchTracker) Start(total int) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := ulid.Make().String()
	b.batches[id] = &BatchProgress{Total: total}
	return id
}

// Complete counts one successful item.
func (b *BatchTracker) Complete(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.batches[id]; ok {
		p.Completed++
	}
}

// Fail counts one failed item.
func (b *BatchTracker) Fail(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.batches[id]; ok {
		p.Failed++
	}
}

// Get returns a snapshot of the batch. Unknown batches read as done, so a
// client polling a finished (or bogus) id terminates.
func (b *BatchTracker) Get(id string) BatchProgress {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.batches[id]; ok {
		out := *p
		out.Done = out.Completed+out.Failed >= out.Total
		return out
	}
	return BatchProgress{Done: true}
}
