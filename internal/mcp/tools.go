package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

var searchToolDef = mcp.NewTool("tab_search",
	mcp.WithDescription("Search captured browser tabs. A query of two or more characters runs "+
		"relevance-ranked full-text search over title, content, and summary; otherwise the "+
		"structured filters apply."),
	mcp.WithString("query", mcp.Description("Full-text query (minimum 2 characters)")),
	mcp.WithString("category", mcp.Description("Filter by decided or suggested category: read-later, reference, actionable, archive, dismiss")),
	mcp.WithBoolean("starred", mcp.Description("Only starred tabs")),
	mcp.WithString("project_id", mcp.Description("Filter by assigned project")),
	mcp.WithNumber("session_id", mcp.Description("Filter by capture session")),
	mcp.WithString("tag", mcp.Description("Filter by tag")),
)

var getToolDef = mcp.NewTool("tab_get",
	mcp.WithDescription("Fetch one captured tab with its summary, tags, cluster, and triage state."),
	mcp.WithNumber("tab_id", mcp.Required(), mcp.Description("Tab id")),
	mcp.WithBoolean("include_content", mcp.Description("Include the full extracted page content")),
)

var triageToolDef = mcp.NewTool("tab_triage",
	mcp.WithDescription("Record a triage decision for a tab. Omitted fields are left unchanged; "+
		"setting a category marks the tab as triaged. An optional notion_target forwards the tab: "+
		"links, backlog, project, todo-today, or todo-someday."),
	mcp.WithNumber("tab_id", mcp.Required(), mcp.Description("Tab id")),
	mcp.WithString("category", mcp.Description("read-later, reference, actionable, archive, or dismiss")),
	mcp.WithString("project_id", mcp.Description("Project to assign; the project target forwards only when set")),
	mcp.WithString("user_note", mcp.Description("Free-form note")),
	mcp.WithArray("tags", mcp.Description("Replacement tag list"), mcp.Items(map[string]any{"type": "string"})),
	mcp.WithBoolean("starred", mcp.Description("Star or unstar the tab")),
	mcp.WithString("notion_target", mcp.Description("Forwarding target")),
)

var sessionListToolDef = mcp.NewTool("session_list",
	mcp.WithDescription("List capture sessions, newest first, with tab and triage counts."),
)

var triagePreviewToolDef = mcp.NewTool("triage_preview",
	mcp.WithDescription("Preview what auto-triage would do: per-category counts of untriaged tabs "+
		"with a classifier suggestion, and how many would be starred or closed. Read-only."),
)

var topicOverviewToolDef = mcp.NewTool("topic_overview",
	mcp.WithDescription("Aggregate tag and cluster counts across all untriaged tabs, most frequent first."),
)
