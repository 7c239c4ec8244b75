// Package ops implements the application operations behind the HTTP API,
// the MCP tools, and the CLI.
package ops

import "context"

// Forwarder sends triaged tabs to the external knowledge base.
type Forwarder interface {
	CreateLink(ctx context.Context, title, url, summary string, content *string) (string, error)
	CreateBacklogCard(ctx context.Context, title, summary, url string) (string, error)
	AppendToProject(ctx context.Context, projectID, title, url, summary string) error
	CreateTask(ctx context.Context, title, url, summary, when string) (string, error)
}

// MinSearchQueryChars is the minimum length for a full-text query; shorter
// queries fall back to attribute filtering.
const MinSearchQueryChars = 2

// DefaultAnalyzeMaxTabs caps how many tabs feed one insights analysis.
const DefaultAnalyzeMaxTabs = 30
