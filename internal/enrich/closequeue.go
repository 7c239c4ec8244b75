package enrich

import "sync"

// CloseQueue holds URLs the extension should close. The extension polls
// URLs, closes matching tabs, and confirms each one; entries live until
// confirmed, so a missed poll just means the URL shows up again next time.
type CloseQueue struct {
	mu   sync.Mutex
	urls []string
	seen map[string]bool
}

func NewCloseQueue() *CloseQueue {
	return &CloseQueue{seen: make(map[string]bool)}
}

// Add queues a URL for closing. Duplicates are ignored, so requesting the
// same close twice is harmless.
func (q *CloseQueue) Add(url string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.seen[url] {
		return
	}
	q.seen[url] = true
	q.urls = append(q.urls, url)
}

// Remove drops a URL from the queue, whether or not it is present.
func (q *CloseQueue) Remove(url string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.seen[url] {
		return
	}
	delete(q.seen, url)
	for i, u := range q.urls {
		if u == url {
			q.urls = append(q.urls[:i], q.urls[i+1:]...)
			break
		}
	}
}

// URLs returns the queued URLs in insertion order.
func (q *CloseQueue) URLs() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.urls))
	copy(out, q.urls)
	return out
}

// Len returns the number of queued URLs.
func (q *CloseQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.urls)
}
