package enrich

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tabtriage/tabtriage/internal/classify"
	"github.com/tabtriage/tabtriage/internal/config"
	"github.com/tabtriage/tabtriage/internal/db"
	"github.com/tabtriage/tabtriage/internal/extract"
	"github.com/tabtriage/tabtriage/internal/tab"
)

// stubClassifier returns canned results and counts summarize calls.
type stubClassifier struct {
	mu          sync.Mutex
	calls       int
	result      classify.Result
	assignments []classify.Assignment
}

func (s *stubClassifier) Summarize(_ context.Context, title, _ string, content *string) classify.Result {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if content == nil || *content == "" {
		return classify.Result{
			Summary:           "No content extracted for: " + title,
			SuggestedCategory: tab.CategoryArchive,
			Failure:           tab.FailureNoContent,
		}
	}
	return s.result
}

func (s *stubClassifier) Cluster(context.Context, []classify.ClusterInput, []classify.Project) ([]classify.Assignment, error) {
	return s.assignments, nil
}

func (s *stubClassifier) Analyze(context.Context, []classify.AnalyzeInput) (*classify.Analysis, error) {
	return &classify.Analysis{Summary: "stub"}, nil
}

func (s *stubClassifier) summarizeCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newTestOrchestrator(t *testing.T, cls classify.Classifier) (*Orchestrator, *sql.DB) {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	o := New(database, cls, extract.New(2*time.Second), nil, config.DefaultConfig(), zap.NewNop())
	o.fallbackDelay = 10 * time.Millisecond
	return o, database
}

func seedSession(t *testing.T, database *sql.DB, urls ...string) (int64, []int64) {
	t.Helper()
	sid, err := db.InsertSession(database, nil, "host")
	if err != nil {
		t.Fatalf("InsertSession failed: %v", err)
	}
	ids := make([]int64, 0, len(urls))
	for _, u := range urls {
		content := "plenty of captured page content for the classifier to work with"
		id, err := db.InsertTab(database, db.NewTab{
			SessionID: sid, URL: u, Title: "Tab " + u, Content: &content,
		})
		if err != nil {
			t.Fatalf("InsertTab failed: %v", err)
		}
		ids = append(ids, id)
	}
	return sid, ids
}

func strPtr(s string) *string { return &s }

func TestSessionEnrichment(t *testing.T) {
	cls := &stubClassifier{
		result: classify.Result{
			Summary:           "a summary",
			SuggestedCategory: tab.CategoryReference,
			Tags:              []string{"golang"},
		},
	}
	o, database := newTestOrchestrator(t, cls)

	sid, ids := seedSession(t, database, "https://e.com/1", "https://e.com/2")
	cls.assignments = []classify.Assignment{
		{TabID: ids[0], ClusterID: "dev", ClusterLabel: "Development"},
		{TabID: ids[1], ClusterID: "dev", ClusterLabel: "Development", SuggestedProjectID: strPtr("p-1")},
	}

	o.StartSession(sid, ids)
	o.Wait()

	progress := o.Progress.Get(sid)
	if progress.Phase != PhaseDone || progress.Completed != 2 || progress.Clusters != 1 {
		t.Errorf("progress = %+v", progress)
	}

	for _, id := range ids {
		got, err := db.GetTab(database, id)
		if err != nil {
			t.Fatalf("GetTab failed: %v", err)
		}
		if got.Summary == nil || *got.Summary != "a summary" {
			t.Errorf("tab %d Summary = %v", id, got.Summary)
		}
		if got.SuggestedCategory == nil || *got.SuggestedCategory != tab.CategoryReference {
			t.Errorf("tab %d SuggestedCategory = %v", id, got.SuggestedCategory)
		}
		if got.ClusterID == nil || *got.ClusterID != "dev" {
			t.Errorf("tab %d ClusterID = %v", id, got.ClusterID)
		}
		if got.Category != nil || got.TriagedAt != nil {
			t.Errorf("tab %d: enrichment must not triage", id)
		}
	}

	second, err := db.GetTab(database, ids[1])
	if err != nil {
		t.Fatalf("GetTab failed: %v", err)
	}
	if second.ProjectID == nil || *second.ProjectID != "p-1" {
		t.Errorf("ProjectID = %v, cluster suggestion should fill empty project", second.ProjectID)
	}
}

func TestReSummarizeBatch(t *testing.T) {
	cls := &stubClassifier{
		result: classify.Result{Summary: "fixed", SuggestedCategory: tab.CategoryReadLater},
	}
	o, database := newTestOrchestrator(t, cls)
	_, ids := seedSession(t, database, "https://e.com/1", "https://e.com/2")

	// Both tabs failed their first summarize at the CLI.
	for _, id := range ids {
		if err := db.ApplySummary(database, id, "Summary unavailable (CLI error)",
			tab.CategoryReadLater, tab.FailureCLIError, nil, true); err != nil {
			t.Fatalf("ApplySummary failed: %v", err)
		}
	}

	batchID, count, err := o.StartReSummarizeBatch()
	if err != nil {
		t.Fatalf("StartReSummarizeBatch failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
	o.Wait()

	progress := o.Batches.Get(batchID)
	if !progress.Done || progress.Completed != 2 || progress.Failed != 0 {
		t.Errorf("batch progress = %+v", progress)
	}

	got, err := db.GetTab(database, ids[0])
	if err != nil {
		t.Fatalf("GetTab failed: %v", err)
	}
	if got.Summary == nil || *got.Summary != "fixed" {
		t.Errorf("Summary = %v", got.Summary)
	}
	if got.FailureReason != tab.FailureNone {
		t.Errorf("FailureReason = %q, want cleared", got.FailureReason)
	}
}

func TestReSummarizeBatchEmpty(t *testing.T) {
	o, _ := newTestOrchestrator(t, &stubClassifier{})
	batchID, count, err := o.StartReSummarizeBatch()
	if err != nil {
		t.Fatalf("StartReSummarizeBatch failed: %v", err)
	}
	if batchID != "" || count != 0 {
		t.Errorf("empty repair should not start a batch: %q, %d", batchID, count)
	}
}

func TestReExtractFallbackRace(t *testing.T) {
	var fetches int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		fetches++
		mu.Unlock()
		w.Write([]byte(`<html><body><p>Recovered article content with enough words to clear the extraction threshold comfortably.</p></body></html>`))
	}))
	defer srv.Close()

	cls := &stubClassifier{
		result: classify.Result{Summary: "recovered", SuggestedCategory: tab.CategoryReadLater},
	}
	o, database := newTestOrchestrator(t, cls)
	_, ids := seedSession(t, database, srv.URL+"/page")

	// Extension wins: the entry is claimed before the fallback fires.
	o.RequestReExtract(ids[0], srv.URL+"/page")
	if !o.ReExtract.Claim(ids[0]) {
		t.Fatal("claim should succeed while entry is pending")
	}
	o.Wait()
	mu.Lock()
	if fetches != 0 {
		t.Errorf("fallback fetched %d times despite extension delivery", fetches)
	}
	mu.Unlock()

	// Fallback wins: nobody claims, the server extracts and re-summarizes.
	o.RequestReExtract(ids[0], srv.URL+"/page")
	o.Wait()
	mu.Lock()
	if fetches != 1 {
		t.Errorf("fetches = %d, want 1 fallback fetch", fetches)
	}
	mu.Unlock()

	got, err := db.GetTab(database, ids[0])
	if err != nil {
		t.Fatalf("GetTab failed: %v", err)
	}
	if got.Content == nil || *got.Content == "" {
		t.Error("fallback should have stored extracted content")
	}
	if got.Summary == nil || *got.Summary != "recovered" {
		t.Errorf("Summary = %v, fallback should re-summarize", got.Summary)
	}
}

func TestReExtractFallbackFailureKeepsMarker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	cls := &stubClassifier{
		result: classify.Result{Summary: "should not appear", SuggestedCategory: tab.CategoryReadLater},
	}
	o, database := newTestOrchestrator(t, cls)
	_, ids := seedSession(t, database, srv.URL+"/gone")

	if err := db.ApplySummary(database, ids[0], "No content extracted for: Tab",
		tab.CategoryArchive, tab.FailureNoContent, nil, true); err != nil {
		t.Fatalf("ApplySummary failed: %v", err)
	}

	o.RequestReExtract(ids[0], srv.URL+"/gone")
	o.Wait()

	// A failed fallback extraction leaves the marker for a later retry.
	got, err := db.GetTab(database, ids[0])
	if err != nil {
		t.Fatalf("GetTab failed: %v", err)
	}
	if got.Summary == nil || *got.Summary != "No content extracted for: Tab" {
		t.Errorf("Summary = %v, want the marker untouched", got.Summary)
	}
	if got.FailureReason != tab.FailureNoContent {
		t.Errorf("FailureReason = %q, want no_content", got.FailureReason)
	}
	if cls.summarizeCalls() != 0 {
		t.Errorf("classifier called %d times, want 0", cls.summarizeCalls())
	}
}
