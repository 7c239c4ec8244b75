package enrich

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// TriageSnapshot is one tab's pre-triage state, enough to reverse an
// auto-triage decision.
type TriageSnapshot struct {
	TabID     int64
	Category  *string
	Starred   bool
	TriagedAt *string
}

// UndoBuffer holds reversible auto-triage batches. A batch can be taken
// exactly once and expires after the TTL.
type UndoBuffer struct {
	mu      sync.Mutex
	batches map[string]undoBatch
	ttl     time.Duration
	now     func() time.Time
}

type undoBatch struct {
	snapshots []TriageSnapshot
	createdAt time.Time
}

func NewUndoBuffer(ttl time.Duration) *UndoBuffer {
	return &UndoBuffer{
		batches: make(map[string]undoBatch),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Put stores a batch of snapshots and returns its id. Expired batches are
// pruned on the way in.
func (b *UndoBuffer) Put(snapshots []TriageSnapshot) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := b.now().Add(-b.ttl)
	for id, batch := range b.batches {
		if batch.createdAt.Before(cutoff) {
			delete(b.batches, id)
		}
	}

	id := uuid.NewString()[:8]
	b.batches[id] = undoBatch{snapshots: snapshots, createdAt: b.now()}
	return id
}

// Take removes and returns a batch. A second Take of the same id misses, so
// an undo can only run once.
func (b *UndoBuffer) Take(id string) ([]TriageSnapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	batch, ok := b.batches[id]
	if !ok {
		return nil, false
	}
	if batch.createdAt.Before(b.now().Add(-b.ttl)) {
		delete(b.batches, id)
		return nil, false
	}
	delete(b.batches, id)
	return batch.snapshots, true
}
