package enrich

import "sync"

// Phase names reported during session enrichment.
const (
	PhaseSummarizing = "summarizing"
	PhaseClustering  = "clustering"
	PhaseDone        = "done"
)

// SessionProgress is the observable state of one session's enrichment run.
type SessionProgress struct {
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Phase     string `json:"phase"`
	Clusters  int    `json:"clusters"`
}

// ProgressTracker tracks per-session enrichment progress in memory. Progress
// for unknown sessions reads as done, so clients never block on a session
// that finished before they asked (or never existed).
type ProgressTracker struct {
	mu       sync.Mutex
	sessions map[int64]*SessionProgress
}

func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{sessions: make(map[int64]*SessionProgress)}
}

// Start registers a session entering the summarizing phase.
func (p *ProgressTracker) Start(sessionID int64, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions[sessionID] = &SessionProgress{Total: total, Phase: PhaseSummarizing}
}

// SetCompleted records how many tabs have been summarized.
func (p *ProgressTracker) SetCompleted(sessionID int64, completed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sessions[sessionID]; ok {
		s.Completed = completed
	}
}

// SetPhase advances the session to a new phase.
func (p *ProgressTracker) SetPhase(sessionID int64, phase string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sessions[sessionID]; ok {
		s.Phase = phase
	}
}

// Finish marks the session done and records the cluster count.
func (p *ProgressTracker) Finish(sessionID int64, clusters int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sessions[sessionID]; ok {
		s.Phase = PhaseDone
		s.Clusters = clusters
	}
}

// Get returns a snapshot of the session's progress. Unknown sessions read as
// an empty done state.
func (p *ProgressTracker) Get(sessionID int64) SessionProgress {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sessions[sessionID]; ok {
		return *s
	}
	return SessionProgress{Phase: PhaseDone}
}
