package mcp

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/tabtriage/tabtriage/internal/config"
	"github.com/tabtriage/tabtriage/internal/errors"
	"github.com/tabtriage/tabtriage/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db  *sql.DB
	cfg *config.Config
	fw  ops.Forwarder
	log *zap.Logger
}

// NewHandlers creates a new Handlers instance. fw may be nil when Notion
// forwarding is not configured; triage then skips forwarding.
func NewHandlers(db *sql.DB, cfg *config.Config, fw ops.Forwarder, log *zap.Logger) *Handlers {
	return &Handlers{db: db, cfg: cfg, fw: fw, log: log}
}

// Request types for each tool

// SearchRequest represents the arguments for tab_search.
type SearchRequest struct {
	Query     string `json:"query,omitempty"`
	Category  string `json:"category,omitempty"`
	Starred   bool   `json:"starred,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
	SessionID int64  `json:"session_id,omitempty"`
	Tag       string `json:"tag,omitempty"`
}

// GetRequest represents the arguments for tab_get.
type GetRequest struct {
	TabID          int64 `json:"tab_id"`
	IncludeContent bool  `json:"include_content,omitempty"`
}

// HandleSearch handles the tab_search tool call.
func (h *Handlers) HandleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SearchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	hits, err := ops.Search(h.db, ops.SearchInput{
		Query:     input.Query,
		Category:  input.Category,
		Starred:   input.Starred,
		ProjectID: input.ProjectID,
		SessionID: input.SessionID,
		Tag:       input.Tag,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{"results": hits, "count": len(hits)})
}

// HandleGet handles the tab_get tool call.
func (h *Handlers) HandleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[GetRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	t, err := ops.GetTab(h.db, input.TabID)
	if err != nil {
		return errorResult(err), nil
	}
	if !input.IncludeContent {
		t.Content = nil
	}

	return successResult(t)
}

// HandleTriage handles the tab_triage tool call.
func (h *Handlers) HandleTriage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ops.TriageInput](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Triage(ctx, h.db, h.fw, h.log, input)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleSessionList handles the session_list tool call.
func (h *Handlers) HandleSessionList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessions, err := ops.ListSessions(h.db)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{"sessions": sessions})
}

// HandleTriagePreview handles the triage_preview tool call.
func (h *Handlers) HandleTriagePreview(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	preview, err := ops.PreviewAutoTriage(h.db)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(preview)
}

// HandleTopicOverview handles the topic_overview tool call.
func (h *Handlers) HandleTopicOverview(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	topics, err := ops.Topics(h.db)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(topics)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if tErr, ok := err.(*errors.TriageError); ok {
		errorObj := map[string]any{
			"code":    tErr.Code,
			"message": tErr.Message,
			"status":  tErr.Status,
		}
		if tErr.Code != errors.ErrInternal && tErr.Details != nil {
			errorObj["details"] = tErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
