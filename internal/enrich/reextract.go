package enrich

import (
	"sync"
	"time"
)

// PendingExtract is one tab waiting for the extension to deliver content.
type PendingExtract struct {
	TabID int64  `json:"tab_id"`
	URL   string `json:"url"`
}

// ReExtractQueue tracks tabs queued for extension-side re-extraction.
// Presence in the queue arbitrates the race between the extension and the
// server-side fallback: whichever side claims the entry first does the work.
type ReExtractQueue struct {
	mu      sync.Mutex
	pending map[int64]reExtractEntry
	ttl     time.Duration
	now     func() time.Time
}

type reExtractEntry struct {
	url      string
	queuedAt time.Time
}

// NewReExtractQueue builds a queue whose unclaimed entries expire after ttl.
func NewReExtractQueue(ttl time.Duration) *ReExtractQueue {
	return &ReExtractQueue{
		pending: make(map[int64]reExtractEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Add queues a tab for extension re-extraction, resetting its age if it was
// already queued.
func (q *ReExtractQueue) Add(tabID int64, url string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending[tabID] = reExtractEntry{url: url, queuedAt: q.now()}
}

// Claim removes a tab from the queue and reports whether it was present.
// Exactly one caller wins a concurrent claim.
func (q *ReExtractQueue) Claim(tabID int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.pending[tabID]; !ok {
		return false
	}
	delete(q.pending, tabID)
	return true
}

// Pending drops stale entries and returns the live ones.
func (q *ReExtractQueue) Pending() []PendingExtract {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := q.now().Add(-q.ttl)
	out := make([]PendingExtract, 0, len(q.pending))
	for id, e := range q.pending {
		if e.queuedAt.Before(cutoff) {
			delete(q.pending, id)
			continue
		}
		out = append(out, PendingExtract{TabID: id, URL: e.url})
	}
	return out
}
