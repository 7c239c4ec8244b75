package classify

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/tabtriage/tabtriage/internal/config"
	"github.com/tabtriage/tabtriage/internal/tab"
)

func newStubCLI(run func(ctx context.Context, prompt string, timeout time.Duration) (string, error)) *CLI {
	c := NewCLI(config.DefaultConfig(), zap.NewNop())
	c.run = run
	return c
}

func strPtr(s string) *string { return &s }

func TestSummarizeUsesContentPrompt(t *testing.T) {
	var gotPrompt string
	var gotTimeout time.Duration
	c := newStubCLI(func(_ context.Context, prompt string, timeout time.Duration) (string, error) {
		gotPrompt, gotTimeout = prompt, timeout
		return "SUMMARY: fine\nCATEGORY: reference\nTAGS: a, b", nil
	})

	content := strings.Repeat("real page content. ", 10)
	r := c.Summarize(context.Background(), "Title", "https://e.com", &content)

	if !strings.Contains(gotPrompt, "Content (excerpt):") {
		t.Error("expected the full-content prompt")
	}
	if gotTimeout != 300*time.Second {
		t.Errorf("timeout = %v, want classifier timeout", gotTimeout)
	}
	if r.SuggestedCategory != tab.CategoryReference || r.Failure != tab.FailureNone {
		t.Errorf("result = %+v", r)
	}
}

func TestSummarizeShortContentFallsBackToTitle(t *testing.T) {
	var gotPrompt string
	var gotTimeout time.Duration
	c := newStubCLI(func(_ context.Context, prompt string, timeout time.Duration) (string, error) {
		gotPrompt, gotTimeout = prompt, timeout
		return "SUMMARY: guessed\nCATEGORY: read-later\nTAGS: a", nil
	})

	c.Summarize(context.Background(), "Title", "https://youtube.com/watch?v=x", strPtr("   tiny   "))

	if !strings.Contains(gotPrompt, "No extracted page content is available") {
		t.Error("expected the title-only prompt")
	}
	if !strings.Contains(gotPrompt, "YouTube video") {
		t.Error("expected a difficult-domain hint for youtube.com")
	}
	if gotTimeout != 120*time.Second {
		t.Errorf("timeout = %v, want title-only timeout", gotTimeout)
	}
}

func TestSummarizeFailureReasons(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want tab.FailureReason
	}{
		{"timeout", context.DeadlineExceeded, tab.FailureTimeout},
		{"missing binary", exec.ErrNotFound, tab.FailureCLIMissing},
		{"nonzero exit", errors.New("exit status 1"), tab.FailureCLIError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newStubCLI(func(context.Context, string, time.Duration) (string, error) {
				return "", tc.err
			})
			content := strings.Repeat("x", 200)
			r := c.Summarize(context.Background(), "Title", "https://e.com", &content)
			if r.Failure != tc.want {
				t.Errorf("Failure = %q, want %q", r.Failure, tc.want)
			}
			if r.SuggestedCategory != tab.CategoryReadLater {
				t.Errorf("SuggestedCategory = %q, want read-later fallback", r.SuggestedCategory)
			}
			if r.Summary == "" {
				t.Error("placeholder summary missing")
			}
		})
	}
}

func TestSummarizeNoContentFailure(t *testing.T) {
	c := newStubCLI(func(context.Context, string, time.Duration) (string, error) {
		return "", errors.New("exit status 1")
	})
	r := c.Summarize(context.Background(), "Title", "https://e.com", nil)
	if r.Failure != tab.FailureNoContent {
		t.Errorf("Failure = %q, want no_content on title-only failure", r.Failure)
	}
	if r.SuggestedCategory != tab.CategoryArchive {
		t.Errorf("SuggestedCategory = %q, want archive fallback", r.SuggestedCategory)
	}
}

func TestClusterEmptyInput(t *testing.T) {
	c := newStubCLI(func(context.Context, string, time.Duration) (string, error) {
		t.Fatal("run should not be called for empty input")
		return "", nil
	})
	got, err := c.Cluster(context.Background(), nil, nil)
	if err != nil || got != nil {
		t.Errorf("Cluster(nil) = %v, %v", got, err)
	}
}

func TestClusterPromptListsTabsAndProjects(t *testing.T) {
	var gotPrompt string
	c := newStubCLI(func(_ context.Context, prompt string, _ time.Duration) (string, error) {
		gotPrompt = prompt
		return `[{"tab_id": 7, "cluster_id": "dev", "cluster_label": "Development"}]`, nil
	})

	tabs := []ClusterInput{{ID: 7, Title: "Go generics", URL: "https://e.com", Tags: []string{"golang"}}}
	projects := []Project{{ID: "p-1", Name: "Side project"}}

	got, err := c.Cluster(context.Background(), tabs, projects)
	if err != nil {
		t.Fatalf("Cluster failed: %v", err)
	}
	if !strings.Contains(gotPrompt, "ID=7") || !strings.Contains(gotPrompt, "p-1: Side project") {
		t.Errorf("prompt missing tabs or projects:\n%s", gotPrompt)
	}
	if len(got) != 1 || got[0].TabID != 7 {
		t.Errorf("assignments = %v", got)
	}
}

func TestCleanEnv(t *testing.T) {
	t.Setenv("CLAUDECODE", "1")
	t.Setenv("CLAUDE_CONFIG_DIR", "/some/dir")

	env := cleanEnv()
	for _, kv := range env {
		if strings.HasPrefix(kv, "CLAUDECODE") {
			t.Errorf("CLAUDECODE leaked into subprocess env: %s", kv)
		}
	}

	var hasConfigDir, hasPinnedPath bool
	for _, kv := range env {
		if kv == "CLAUDE_CONFIG_DIR=/some/dir" {
			hasConfigDir = true
		}
		if kv == "PATH=/usr/local/bin:/usr/bin:/bin" {
			hasPinnedPath = true
		}
	}
	if !hasConfigDir {
		t.Error("CLAUDE_CONFIG_DIR should be kept for auth")
	}
	if !hasPinnedPath {
		t.Error("PATH should be pinned")
	}
}

func TestClipToRuneBoundary(t *testing.T) {
	if got := clipToRune("abc", 10); got != "abc" {
		t.Errorf("got %q, short strings must pass through", got)
	}
	got := clipToRune("ab日本", 3)
	if got != "ab" {
		t.Errorf("got %q, want %q", got, "ab")
	}
	if !utf8.ValidString(clipToRune("ééé", 5)) {
		t.Error("clipToRune split a rune")
	}
}
