// Package enrich runs the asynchronous enrichment pipeline: summarizing and
// clustering captured sessions, repair flows for failed enrichments, and the
// in-memory queues the extension polls.
package enrich

import (
	"context"
	"database/sql"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/tabtriage/tabtriage/internal/classify"
	"github.com/tabtriage/tabtriage/internal/config"
	"github.com/tabtriage/tabtriage/internal/db"
	"github.com/tabtriage/tabtriage/internal/extract"
	"github.com/tabtriage/tabtriage/internal/notion"
	"github.com/tabtriage/tabtriage/internal/tab"
)

// ProjectSource lists the projects offered to the clusterer.
type ProjectSource interface {
	GetProjects(ctx context.Context) ([]notion.Project, error)
}

// Orchestrator owns the background enrichment work and the ephemeral state
// that goes with it. All of that state is process-local: a restart loses
// queues and progress but never persisted tabs.
type Orchestrator struct {
	db         *sql.DB
	classifier classify.Classifier
	extractor  *extract.Extractor
	projects   ProjectSource
	log        *zap.Logger

	maxContentChars int
	fallbackDelay   time.Duration

	Progress   *ProgressTracker
	CloseQueue *CloseQueue
	ReExtract  *ReExtractQueue
	Undo       *UndoBuffer
	Batches    *BatchTracker

	wg sync.WaitGroup
}

// New wires an Orchestrator. The ProjectSource may be nil when Notion is not
// configured; clustering then runs without project suggestions.
func New(database *sql.DB, classifier classify.Classifier, extractor *extract.Extractor,
	projects ProjectSource, cfg *config.Config, log *zap.Logger) *Orchestrator {
	return &Orchestrator{
		db:              database,
		classifier:      classifier,
		extractor:       extractor,
		projects:        projects,
		log:             log,
		maxContentChars: cfg.MaxContentChars,
		fallbackDelay:   time.Duration(cfg.ReExtractFallbackSecs) * time.Second,
		Progress:        NewProgressTracker(),
		CloseQueue:      NewCloseQueue(),
		ReExtract:       NewReExtractQueue(time.Duration(cfg.ReExtractStaleSecs) * time.Second),
		Undo:            NewUndoBuffer(time.Duration(cfg.UndoTTLSecs) * time.Second),
		Batches:         NewBatchTracker(),
	}
}

// Wait blocks until all background tasks have finished.
func (o *Orchestrator) Wait() { o.wg.Wait() }

// StartSession kicks off summarize + cluster for a freshly captured session.
func (o *Orchestrator) StartSession(sessionID int64, tabIDs []int64) {
	o.Progress.Start(sessionID, len(tabIDs))
	o.spawn("session enrichment", func() {
		o.runSession(sessionID, tabIDs)
	})
}

func (o *Orchestrator) runSession(sessionID int64, tabIDs []int64) {
	ctx := context.Background()
	o.log.Info("summarizing session",
		zap.Int64("session_id", sessionID), zap.Int("tabs", len(tabIDs)))

	for i, tabID := range tabIDs {
		o.summarizeOne(ctx, tabID, true)
		o.Progress.SetCompleted(sessionID, i+1)
	}

	o.log.Info("session summarization complete, clustering",
		zap.Int64("session_id", sessionID))
	o.Progress.SetPhase(sessionID, PhaseClustering)

	clusters := o.clusterSession(ctx, sessionID)
	o.Progress.Finish(sessionID, clusters)
	o.log.Info("session enrichment complete",
		zap.Int64("session_id", sessionID), zap.Int("clusters", clusters))
}

// summarizeOne classifies a single tab and persists the result. The initial
// enrichment pass keeps tags the capture already carried; repair passes let
// fresh tags win.
func (o *Orchestrator) summarizeOne(ctx context.Context, tabID int64, keepExistingTags bool) classify.Result {
	row, err := db.GetSummarizeRow(o.db, tabID)
	if err != nil {
		o.log.Warn("tab vanished before summarize", zap.Int64("tab_id", tabID), zap.Error(err))
		return classify.Result{Failure: tab.FailureCLIError}
	}

	result := o.classifier.Summarize(ctx, row.Title, row.URL, row.Content)
	if err := db.ApplySummary(o.db, tabID, result.Summary, result.SuggestedCategory,
		result.Failure, result.Tags, keepExistingTags); err != nil {
		o.log.Error("persisting summary failed", zap.Int64("tab_id", tabID), zap.Error(err))
	}
	return result
}

func (o *Orchestrator) clusterSession(ctx context.Context, sessionID int64) int {
	rows, err := db.SessionClusterTabs(o.db, sessionID)
	if err != nil {
		o.log.Error("loading tabs for clustering failed",
			zap.Int64("session_id", sessionID), zap.Error(err))
		return 0
	}

	inputs := make([]classify.ClusterInput, len(rows))
	for i, r := range rows {
		inputs[i] = classify.ClusterInput{
			ID: r.ID, Title: r.Title, URL: r.URL, Summary: r.Summary, Tags: r.Tags,
		}
	}

	assignments, err := o.classifier.Cluster(ctx, inputs, o.loadProjects(ctx))
	if err != nil {
		o.log.Error("clustering failed", zap.Int64("session_id", sessionID), zap.Error(err))
		return 0
	}

	unique := make(map[string]bool)
	for _, a := range assignments {
		if err := db.ApplyCluster(o.db, a.TabID, a.ClusterID, a.ClusterLabel, a.SuggestedProjectID); err != nil {
			o.log.Error("persisting cluster failed", zap.Int64("tab_id", a.TabID), zap.Error(err))
			continue
		}
		unique[a.ClusterID] = true
	}
	return len(unique)
}

func (o *Orchestrator) loadProjects(ctx context.Context) []classify.Project {
	if o.projects == nil {
		return nil
	}
	projects, err := o.projects.GetProjects(ctx)
	if err != nil {
		if err != notion.ErrDisabled {
			o.log.Warn("loading projects failed", zap.Error(err))
		}
		return nil
	}
	out := make([]classify.Project, len(projects))
	for i, p := range projects {
		out[i] = classify.Project{ID: p.ID, Name: p.Name}
	}
	return out
}

// ReSummarizeTab re-runs classification for one tab in the background.
func (o *Orchestrator) ReSummarizeTab(tabID int64) {
	o.spawn("re-summarize", func() {
		o.summarizeOne(context.Background(), tabID, false)
		o.log.Info("re-summarized tab", zap.Int64("tab_id", tabID))
	})
}

// StartReSummarizeBatch re-summarizes every untriaged tab whose enrichment
// failed at the classifier. Returns the batch id and candidate count; a
// count of zero means nothing needed repair and no batch was started.
func (o *Orchestrator) StartReSummarizeBatch() (string, int, error) {
	rows, err := db.ReSummarizeCandidates(o.db)
	if err != nil {
		return "", 0, err
	}
	if len(rows) == 0 {
		return "", 0, nil
	}

	batchID := o.Batches.Start(len(rows))
	o.spawn("batch re-summarize", func() {
		ctx := context.Background()
		for _, row := range rows {
			result := o.summarizeOne(ctx, row.ID, false)
			if result.Failure != tab.FailureNone {
				o.Batches.Fail(batchID)
			} else {
				o.Batches.Complete(batchID)
			}
		}
		o.log.Info("batch re-summarize complete", zap.String("batch_id", batchID))
	})
	return batchID, len(rows), nil
}

// StartReExtractBatch re-extracts content server-side for every untriaged
// tab that failed for lack of content, then re-summarizes each.
func (o *Orchestrator) StartReExtractBatch() (string, int, error) {
	rows, err := db.ReExtractCandidates(o.db)
	if err != nil {
		return "", 0, err
	}
	if len(rows) == 0 {
		return "", 0, nil
	}

	batchID := o.Batches.Start(len(rows))
	o.spawn("batch re-extract", func() {
		ctx := context.Background()
		for _, row := range rows {
			if o.extractAndSummarize(ctx, row.ID, row.URL) {
				o.Batches.Complete(batchID)
			} else {
				o.Batches.Fail(batchID)
			}
		}
		o.log.Info("batch re-extract complete", zap.String("batch_id", batchID))
	})
	return batchID, len(rows), nil
}

// RequestReExtract queues a tab for extension-side re-extraction and arms
// the server-side fallback. Whichever side claims the queue entry first does
// the work; the other sees the entry gone and backs off.
func (o *Orchestrator) RequestReExtract(tabID int64, url string) {
	o.ReExtract.Add(tabID, url)
	o.spawn("re-extract fallback", func() {
		time.Sleep(o.fallbackDelay)
		if !o.ReExtract.Claim(tabID) {
			o.log.Info("extension delivered content, skipping fallback",
				zap.Int64("tab_id", tabID))
			return
		}
		o.log.Info("extension timeout, extracting server-side",
			zap.Int64("tab_id", tabID), zap.String("url", url))
		o.fallbackExtract(context.Background(), tabID, url)
	})
}

// fallbackExtract runs the delayed server-side extraction for one requested
// tab. When extraction yields nothing it returns without summarizing, so the
// stored failure marker stays in place for a later retry.
func (o *Orchestrator) fallbackExtract(ctx context.Context, tabID int64, url string) {
	result, err := o.extractor.Extract(ctx, url)
	if err != nil {
		o.log.Warn("server-side extraction failed",
			zap.Int64("tab_id", tabID), zap.String("url", url), zap.Error(err))
	}
	if result == nil || result.Text == "" {
		return
	}
	o.persistAndSummarize(ctx, tabID, result)
}

// extractAndSummarize fetches a page server-side, stores its content, and
// re-summarizes. When no content comes back it falls back to a title-only
// summary; that counts as success only if the classifier produced one.
func (o *Orchestrator) extractAndSummarize(ctx context.Context, tabID int64, url string) bool {
	result, err := o.extractor.Extract(ctx, url)
	if err != nil {
		o.log.Warn("server-side extraction failed",
			zap.Int64("tab_id", tabID), zap.String("url", url), zap.Error(err))
	}

	if result == nil || result.Text == "" {
		r := o.summarizeOne(ctx, tabID, false)
		return r.Failure != tab.FailureNoContent
	}

	return o.persistAndSummarize(ctx, tabID, result)
}

// persistAndSummarize stores extracted content and re-runs classification.
func (o *Orchestrator) persistAndSummarize(ctx context.Context, tabID int64, result *extract.Result) bool {
	text := clipRunes(result.Text, o.maxContentChars)
	if err := db.UpdateContent(o.db, tabID, text, result.OGImage, result.OGDescription); err != nil {
		o.log.Error("persisting extracted content failed",
			zap.Int64("tab_id", tabID), zap.Error(err))
		return false
	}

	r := o.summarizeOne(ctx, tabID, false)
	return r.Failure == tab.FailureNone
}

// clipRunes caps s at n bytes without splitting a UTF-8 sequence.
func clipRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// spawn runs fn on a tracked goroutine, recovering panics so one bad task
// cannot take the server down.
func (o *Orchestrator) spawn(name string, fn func()) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				o.log.Error("background task panicked",
					zap.String("task", name), zap.Any("panic", r))
			}
		}()
		fn()
	}()
}
