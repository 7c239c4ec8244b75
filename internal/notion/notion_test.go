package notion

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/tabtriage/tabtriage/internal/config"
)

// newTestClient points a client at a fake Notion API.
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.DefaultConfig()
	cfg.NotionAPIKey = "test-key"
	cfg.NotionLinksDB = "links-db"
	cfg.NotionBacklogDB = "backlog-db"
	cfg.NotionTasksDB = "tasks-db"

	c := NewClient(cfg, zap.NewNop())
	c.baseURL = srv.URL
	return c
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	data, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatalf("reading request body: %v", err)
	}
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("decoding request body: %v", err)
	}
	return body
}

func TestDisabledClient(t *testing.T) {
	c := NewClient(config.DefaultConfig(), zap.NewNop())
	if c.Enabled() {
		t.Error("client without key should be disabled")
	}
	if _, err := c.GetProjects(context.Background()); err != ErrDisabled {
		t.Errorf("GetProjects error = %v, want ErrDisabled", err)
	}
	if _, err := c.CreateLink(context.Background(), "t", "u", "s", nil); err != ErrDisabled {
		t.Errorf("CreateLink error = %v, want ErrDisabled", err)
	}
}

func TestGetProjects(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/databases/backlog-db/query" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Notion-Version") != notionVersion {
			t.Errorf("Notion-Version = %q", r.Header.Get("Notion-Version"))
		}
		w.Write([]byte(`{"results": [
			{"id": "p-1", "properties": {"Name": {"title": [{"plain_text": "Alpha"}]}}},
			{"id": "p-2", "properties": {"Name": {"title": []}}}
		]}`))
	})

	projects, err := c.GetProjects(context.Background())
	if err != nil {
		t.Fatalf("GetProjects failed: %v", err)
	}
	if len(projects) != 2 {
		t.Fatalf("got %d projects", len(projects))
	}
	if projects[0].Name != "Alpha" {
		t.Errorf("Name = %q", projects[0].Name)
	}
	if projects[1].Name != "Untitled" {
		t.Errorf("empty title should fall back to Untitled, got %q", projects[1].Name)
	}
}

func TestCreateLinkAppendsContent(t *testing.T) {
	var pagePosted bool
	var appendCalls int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/pages":
			pagePosted = true
			body := decodeBody(t, r)
			parent := body["parent"].(map[string]any)
			if parent["database_id"] != "links-db" {
				t.Errorf("parent = %v", parent)
			}
			w.Write([]byte(`{"id": "page-1", "url": "https://notion.so/page-1"}`))
		case strings.HasPrefix(r.URL.Path, "/blocks/page-1/children"):
			appendCalls++
			body := decodeBody(t, r)
			children := body["children"].([]any)
			if len(children) > 100 {
				t.Errorf("batch of %d blocks exceeds the 100-block limit", len(children))
			}
			w.Write([]byte(`{}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})

	// 250 lines of 40 chars: 10000 chars, 5+ chunks, one batch.
	content := strings.Repeat(strings.Repeat("x", 40)+"\n", 250)
	url, err := c.CreateLink(context.Background(), "Title", "https://e.com", "sum", &content)
	if err != nil {
		t.Fatalf("CreateLink failed: %v", err)
	}
	if url != "https://notion.so/page-1" {
		t.Errorf("url = %q", url)
	}
	if !pagePosted || appendCalls != 1 {
		t.Errorf("pagePosted=%v appendCalls=%d", pagePosted, appendCalls)
	}
}

func TestCreateTaskStatus(t *testing.T) {
	var gotStatus string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		props := body["properties"].(map[string]any)
		status := props["Status"].(map[string]any)["status"].(map[string]any)
		gotStatus = status["name"].(string)
		w.Write([]byte(`{"url": "https://notion.so/task"}`))
	})

	if _, err := c.CreateTask(context.Background(), "t", "u", "s", "today"); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if gotStatus != "Next Action" {
		t.Errorf("status = %q, want Next Action", gotStatus)
	}

	if _, err := c.CreateTask(context.Background(), "t", "u", "s", "someday"); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if gotStatus != "Someday/Maybe" {
		t.Errorf("status = %q, want Someday/Maybe", gotStatus)
	}
}

func TestAPIErrorSurfaces(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "bad database id"}`, http.StatusBadRequest)
	})

	_, err := c.CreateBacklogCard(context.Background(), "t", "s", "u")
	if err == nil {
		t.Fatal("expected error for HTTP 400")
	}
	if !strings.Contains(err.Error(), "HTTP 400") {
		t.Errorf("error = %v, want status code in message", err)
	}
}

func TestChunkText(t *testing.T) {
	chunks := chunkText("short", 2000)
	if len(chunks) != 1 || chunks[0] != "short" {
		t.Errorf("chunks = %v", chunks)
	}

	// Prefers newline boundaries.
	text := strings.Repeat("a", 1500) + "\n" + strings.Repeat("b", 1500)
	chunks = chunkText(text, 2000)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if len(chunks[0]) != 1500 || !strings.HasPrefix(chunks[1], "b") {
		t.Errorf("chunk split not at newline: %d/%d", len(chunks[0]), len(chunks[1]))
	}

	// No newline: hard cut.
	chunks = chunkText(strings.Repeat("c", 4500), 2000)
	if len(chunks) != 3 {
		t.Errorf("got %d chunks, want 3", len(chunks))
	}
	for _, ch := range chunks {
		if len(ch) > 2000 {
			t.Errorf("chunk of %d chars exceeds limit", len(ch))
		}
	}

	if chunkText("", 2000) != nil {
		t.Error("empty text should yield no chunks")
	}
}

func TestClipKeepsRuneBoundary(t *testing.T) {
	s := strings.Repeat("a", maxTextChars-1) + "日本"
	got := clip(s)
	if !utf8.ValidString(got) {
		t.Errorf("clip split a rune: %q", got[len(got)-4:])
	}
	if len(got) > maxTextChars {
		t.Errorf("len = %d, want <= %d", len(got), maxTextChars)
	}

	chunks := chunkText("a"+strings.Repeat("é", 1500), 2000)
	for i, ch := range chunks {
		if !utf8.ValidString(ch) {
			t.Errorf("chunk %d split a rune", i)
		}
	}
}
