// Package notion forwards triaged tabs to Notion databases: links, backlog
// cards, project bookmarks, and tasks.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/tabtriage/tabtriage/internal/config"
)

const notionVersion = "2022-06-28"

// maxTextChars is Notion's limit per rich text element.
const maxTextChars = 2000

// maxBlocksPerRequest is Notion's limit on children per append call.
const maxBlocksPerRequest = 100

// Project is a page in the backlog database offered as a forwarding target.
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Client talks to the Notion API.
type Client struct {
	apiKey    string
	linksDB   string
	backlogDB string
	tasksDB   string
	baseURL   string
	http      *http.Client
	log       *zap.Logger
}

// NewClient builds a Notion client from config. A client without an API key
// is still usable; every call reports ErrDisabled.
func NewClient(cfg *config.Config, log *zap.Logger) *Client {
	return &Client{
		apiKey:    cfg.NotionAPIKey,
		linksDB:   cfg.NotionLinksDB,
		backlogDB: cfg.NotionBacklogDB,
		tasksDB:   cfg.NotionTasksDB,
		baseURL:   "https://api.notion.com/v1",
		http:      &http.Client{Timeout: 30 * time.Second},
		log:       log,
	}
}

// ErrDisabled means no Notion API key is configured.
var ErrDisabled = fmt.Errorf("notion integration disabled (no API key)")

// Enabled reports whether forwarding is configured.
func (c *Client) Enabled() bool { return c.apiKey != "" }

// GetProjects lists non-archived pages of the backlog database, the
// candidate project targets.
func (c *Client) GetProjects(ctx context.Context) ([]Project, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}

	body := map[string]any{
		"filter": map[string]any{
			"property": "Dashboard",
			"select":   map[string]any{"does_not_equal": "Archive"},
		},
		"sorts":     []map[string]any{{"property": "Name", "direction": "ascending"}},
		"page_size": 100,
	}

	var out struct {
		Results []struct {
			ID         string `json:"id"`
			Properties map[string]struct {
				Title []struct {
					PlainText string `json:"plain_text"`
				} `json:"title"`
			} `json:"properties"`
		} `json:"results"`
	}
	if err := c.post(ctx, "/databases/"+c.backlogDB+"/query", body, &out); err != nil {
		return nil, err
	}

	projects := make([]Project, 0, len(out.Results))
	for _, page := range out.Results {
		name := "Untitled"
		if title := page.Properties["Name"].Title; len(title) > 0 {
			name = title[0].PlainText
		}
		projects = append(projects, Project{ID: page.ID, Name: name})
	}
	return projects, nil
}

// CreateLink creates a page in the links database and, when content is
// given, appends it as paragraph blocks. Returns the page URL.
func (c *Client) CreateLink(ctx context.Context, title, url, summary string, content *string) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}

	body := map[string]any{
		"parent": map[string]any{"database_id": c.linksDB},
		"properties": map[string]any{
			"Name":    titleProp(title),
			"URL":     map[string]any{"url": url},
			"Summary": richTextProp(summary),
		},
	}

	var out struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := c.post(ctx, "/pages", body, &out); err != nil {
		return "", err
	}

	if content != nil && *content != "" {
		if err := c.appendContentBlocks(ctx, out.ID, *content); err != nil {
			c.log.Error("appending content blocks failed",
				zap.String("page_id", out.ID), zap.Error(err))
		}
	}

	c.log.Info("created link in Notion", zap.String("title", title))
	return out.URL, nil
}

// CreateBacklogCard creates a card in the backlog database.
func (c *Client) CreateBacklogCard(ctx context.Context, title, summary, url string) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}

	desc := summary + "\n\nSource: " + url
	body := map[string]any{
		"parent": map[string]any{"database_id": c.backlogDB},
		"properties": map[string]any{
			"Name":        titleProp(title),
			"Description": richTextProp(desc),
			"Dashboard":   map[string]any{"select": map[string]any{"name": "Backlog"}},
		},
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := c.post(ctx, "/pages", body, &out); err != nil {
		return "", err
	}

	c.log.Info("created backlog card", zap.String("title", title))
	return out.URL, nil
}

// AppendToProject appends a divider plus a bookmark block to an existing
// project page.
func (c *Client) AppendToProject(ctx context.Context, projectID, title, url, summary string) error {
	if !c.Enabled() {
		return ErrDisabled
	}

	blocks := []map[string]any{
		{"object": "block", "type": "divider", "divider": map[string]any{}},
		{
			"object": "block",
			"type":   "bookmark",
			"bookmark": map[string]any{
				"url": url,
				"caption": []map[string]any{
					{"type": "text", "text": map[string]any{"content": clip(summary)}},
				},
			},
		},
	}
	if err := c.patch(ctx, "/blocks/"+projectID+"/children", map[string]any{"children": blocks}, nil); err != nil {
		return err
	}

	c.log.Info("appended bookmark to project",
		zap.String("project_id", projectID), zap.String("title", title))
	return nil
}

// CreateTask creates a task page. when is "today" or "someday" and picks the
// task status.
func (c *Client) CreateTask(ctx context.Context, title, url, summary, when string) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}

	status := "Next Action"
	if when == "someday" {
		status = "Someday/Maybe"
	}
	body := map[string]any{
		"parent": map[string]any{"database_id": c.tasksDB},
		"properties": map[string]any{
			"Name":        titleProp(title),
			"Description": richTextProp(summary),
			"URL":         map[string]any{"url": url},
			"Status":      map[string]any{"status": map[string]any{"name": status}},
		},
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := c.post(ctx, "/pages", body, &out); err != nil {
		return "", err
	}

	c.log.Info("created task", zap.String("when", when), zap.String("title", title))
	return out.URL, nil
}

// appendContentBlocks appends text as paragraph blocks, chunked to Notion's
// per-element and per-request limits.
func (c *Client) appendContentBlocks(ctx context.Context, pageID, content string) error {
	chunks := chunkText(content, maxTextChars)
	blocks := make([]map[string]any, 0, len(chunks))
	for _, chunk := range chunks {
		blocks = append(blocks, map[string]any{
			"object": "block",
			"type":   "paragraph",
			"paragraph": map[string]any{
				"rich_text": []map[string]any{
					{"type": "text", "text": map[string]any{"content": chunk}},
				},
			},
		})
	}

	for i := 0; i < len(blocks); i += maxBlocksPerRequest {
		end := i + maxBlocksPerRequest
		if end > len(blocks) {
			end = len(blocks)
		}
		if err := c.patch(ctx, "/blocks/"+pageID+"/children", map[string]any{"children": blocks[i:end]}, nil); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) patch(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPatch, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Notion-Version", notionVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notion %s %s: HTTP %d: %s", method, path, resp.StatusCode, clipBytes(respBody, 300))
	}
	if out != nil {
		return json.Unmarshal(respBody, out)
	}
	return nil
}

// chunkText splits text into chunks of at most maxLen, preferring newline
// boundaries.
func chunkText(text string, maxLen int) []string {
	var chunks []string
	for text != "" {
		if len(text) <= maxLen {
			chunks = append(chunks, text)
			break
		}
		cut := strings.LastIndex(text[:maxLen], "\n")
		if cut <= 0 {
			cut = maxLen
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
		}
		chunks = append(chunks, text[:cut])
		text = strings.TrimLeft(text[cut:], "\n")
	}
	return chunks
}

func titleProp(s string) map[string]any {
	return map[string]any{
		"title": []map[string]any{{"text": map[string]any{"content": clip(s)}}},
	}
}

func richTextProp(s string) map[string]any {
	return map[string]any{
		"rich_text": []map[string]any{{"text": map[string]any{"content": clip(s)}}},
	}
}

// clip caps s at Notion's per-element limit without splitting a rune.
func clip(s string) string {
	if len(s) <= maxTextChars {
		return s
	}
	n := maxTextChars
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func clipBytes(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
