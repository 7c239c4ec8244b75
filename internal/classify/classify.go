// Package classify invokes an LLM CLI to summarize, tag, cluster, and
// analyze captured tabs.
package classify

import (
	"context"

	"github.com/tabtriage/tabtriage/internal/tab"
)

// Result is the outcome of one summarize call. A failed call still yields a
// usable result: placeholder summary, fallback category, and a failure reason
// so repair flows can find the tab later.
type Result struct {
	Summary           string
	SuggestedCategory string
	Tags              []string
	Failure           tab.FailureReason
}

// ClusterInput is one tab as presented to the clustering prompt.
type ClusterInput struct {
	ID      int64
	Title   string
	URL     string
	Summary *string
	Tags    []string
}

// Project is a forwarding destination offered to the clusterer.
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Assignment is one tab's cluster result.
type Assignment struct {
	TabID              int64   `json:"tab_id"`
	ClusterID          string  `json:"cluster_id"`
	ClusterLabel       string  `json:"cluster_label"`
	SuggestedProjectID *string `json:"suggested_project_id"`
}

// AnalyzeInput is one tab as presented to the content analysis prompt.
type AnalyzeInput struct {
	Title   string
	URL     string
	Summary *string
	Content *string
	Tags    []string
}

// Analysis is the structured output of a content analysis call.
type Analysis struct {
	Themes          []string `json:"themes"`
	Insights        []string `json:"insights"`
	Connections     []string `json:"connections"`
	Recommendations []string `json:"recommendations"`
	Summary         string   `json:"summary"`
}

// Classifier is the LLM-backed enrichment surface. Summarize never returns an
// error: failures degrade to a placeholder Result carrying the reason.
type Classifier interface {
	Summarize(ctx context.Context, title, url string, content *string) Result
	Cluster(ctx context.Context, tabs []ClusterInput, projects []Project) ([]Assignment, error)
	Analyze(ctx context.Context, tabs []AnalyzeInput) (*Analysis, error)
}
