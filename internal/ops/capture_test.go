package ops

import (
	"context"
	"database/sql"
	"testing"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/tabtriage/tabtriage/internal/classify"
	"github.com/tabtriage/tabtriage/internal/config"
	"github.com/tabtriage/tabtriage/internal/db"
	"github.com/tabtriage/tabtriage/internal/enrich"
	"github.com/tabtriage/tabtriage/internal/extract"
	"github.com/tabtriage/tabtriage/internal/tab"
)

// noopClassifier satisfies classify.Classifier for ops tests; enrichment
// outcomes are covered in the enrich package.
type noopClassifier struct{}

func (noopClassifier) Summarize(_ context.Context, title, _ string, content *string) classify.Result {
	if content == nil {
		return classify.Result{
			Summary:           "No content extracted for: " + title,
			SuggestedCategory: tab.CategoryArchive,
			Failure:           tab.FailureNoContent,
		}
	}
	return classify.Result{Summary: "stub summary", SuggestedCategory: tab.CategoryReadLater}
}

func (noopClassifier) Cluster(context.Context, []classify.ClusterInput, []classify.Project) ([]classify.Assignment, error) {
	return nil, nil
}

func (noopClassifier) Analyze(context.Context, []classify.AnalyzeInput) (*classify.Analysis, error) {
	return &classify.Analysis{Summary: "stub"}, nil
}

type testEnv struct {
	db   *sql.DB
	cfg  *config.Config
	orch *enrich.Orchestrator
	log  *zap.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	log := zap.NewNop()
	orch := enrich.New(database, noopClassifier{}, extract.New(0), nil, cfg, log)
	return &testEnv{db: database, cfg: cfg, orch: orch, log: log}
}

func strPtr(s string) *string { return &s }

func TestCaptureFilters(t *testing.T) {
	env := newTestEnv(t)

	if _, err := IgnoreDomain(env.db, "ads.example"); err != nil {
		t.Fatalf("IgnoreDomain failed: %v", err)
	}

	out, err := Capture(env.db, env.cfg, env.orch, CaptureInput{
		WindowTitle: strPtr("Window"),
		Hostname:    "laptop",
		Tabs: []CapturedTab{
			{URL: "https://real.example/article", Title: "keep me"},
			{URL: "file:///Users/me/TabTriage/index.html", Title: "self page"},
			{URL: "http://localhost:5111/", Title: "hosted self page"},
			{URL: "https://www.ads.example/promo", Title: "ignored domain"},
			{URL: "https://real.example/article", Title: "duplicate in batch"},
		},
	})
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	env.orch.Wait()

	if out.Status != "captured" || out.TabCount != 1 || out.Skipped != 4 {
		t.Errorf("out = %+v", out)
	}
	if out.SessionID == nil {
		t.Fatal("SessionID missing")
	}

	tabs, err := SessionTabs(env.db, *out.SessionID)
	if err != nil {
		t.Fatalf("SessionTabs failed: %v", err)
	}
	if len(tabs) != 1 || tabs[0].Title != "keep me" {
		t.Errorf("tabs = %v", tabs)
	}
}

func TestCaptureRecentDuplicate(t *testing.T) {
	env := newTestEnv(t)

	first, err := Capture(env.db, env.cfg, env.orch, CaptureInput{
		Hostname: "laptop",
		Tabs:     []CapturedTab{{URL: "https://e.com/a", Title: "a"}},
	})
	if err != nil {
		t.Fatalf("first Capture failed: %v", err)
	}
	env.orch.Wait()
	if first.Status != "captured" {
		t.Fatalf("first = %+v", first)
	}

	second, err := Capture(env.db, env.cfg, env.orch, CaptureInput{
		Hostname: "laptop",
		Tabs:     []CapturedTab{{URL: "https://e.com/a", Title: "a again"}},
	})
	if err != nil {
		t.Fatalf("second Capture failed: %v", err)
	}
	if second.Status != "all_duplicates" || second.SessionID != nil || second.Skipped != 1 {
		t.Errorf("second = %+v", second)
	}

	// The all-duplicates session must not linger.
	n, err := db.CountSessions(env.db)
	if err != nil {
		t.Fatalf("CountSessions failed: %v", err)
	}
	if n != 1 {
		t.Errorf("sessions = %d, want 1", n)
	}
}

func TestCaptureContentPayload(t *testing.T) {
	env := newTestEnv(t)

	out, err := Capture(env.db, env.cfg, env.orch, CaptureInput{
		Hostname: "laptop",
		Tabs: []CapturedTab{
			{
				URL:     "https://e.com/json",
				Title:   "structured",
				Content: `{"text": "extracted body", "og_image": "https://e.com/og.png", "media": {"videos": []}}`,
			},
			{
				URL:     "https://e.com/plain",
				Title:   "plain",
				Content: "just plain text content",
			},
		},
	})
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	env.orch.Wait()

	tabs, err := db.TabsBySession(env.db, *out.SessionID)
	if err != nil {
		t.Fatalf("TabsBySession failed: %v", err)
	}

	structured := tabs[0]
	if structured.Content == nil || *structured.Content != "extracted body" {
		t.Errorf("structured Content = %v", structured.Content)
	}
	if structured.OGImage == nil || *structured.OGImage != "https://e.com/og.png" {
		t.Errorf("structured OGImage = %v", structured.OGImage)
	}
	if len(structured.Media) == 0 {
		t.Error("structured Media missing")
	}

	plain := tabs[1]
	if plain.Content == nil || *plain.Content != "just plain text content" {
		t.Errorf("plain Content = %v", plain.Content)
	}
}

func TestCaptureContentCap(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.MaxContentChars = 10

	out, err := Capture(env.db, env.cfg, env.orch, CaptureInput{
		Hostname: "laptop",
		Tabs:     []CapturedTab{{URL: "https://e.com/big", Title: "big", Content: "0123456789ABCDEF"}},
	})
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	env.orch.Wait()

	content, err := GetTabContent(env.db, firstTabID(t, env.db, *out.SessionID))
	if err != nil {
		t.Fatalf("GetTabContent failed: %v", err)
	}
	if *content != "0123456789" {
		t.Errorf("content = %q, want capped to 10 chars", *content)
	}
}

func TestCaptureContentCapRuneBoundary(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.MaxContentChars = 10

	// The cap would land in the middle of the two-byte é; the clip must
	// back off instead of storing a torn sequence.
	out, err := Capture(env.db, env.cfg, env.orch, CaptureInput{
		Hostname: "laptop",
		Tabs:     []CapturedTab{{URL: "https://e.com/uni", Title: "uni", Content: "123456789é"}},
	})
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	env.orch.Wait()

	content, err := GetTabContent(env.db, firstTabID(t, env.db, *out.SessionID))
	if err != nil {
		t.Fatalf("GetTabContent failed: %v", err)
	}
	if *content != "123456789" {
		t.Errorf("content = %q, want %q", *content, "123456789")
	}
	if !utf8.ValidString(*content) {
		t.Error("stored content is not valid UTF-8")
	}
}

func firstTabID(t *testing.T, database *sql.DB, sessionID int64) int64 {
	t.Helper()
	tabs, err := db.TabsBySession(database, sessionID)
	if err != nil || len(tabs) == 0 {
		t.Fatalf("no tabs for session %d: %v", sessionID, err)
	}
	return tabs[0].ID
}
