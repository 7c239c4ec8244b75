package ops

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"github.com/tabtriage/tabtriage/internal/classify"
	"github.com/tabtriage/tabtriage/internal/db"
	"github.com/tabtriage/tabtriage/internal/errors"
)

// AnalyzeInput filters which tabs feed a cross-tab analysis.
type AnalyzeInput struct {
	ClusterID *string `json:"cluster_id,omitempty"`
	Tag       *string `json:"tag,omitempty"`
	Query     *string `json:"query,omitempty"`
	MaxTabs   int     `json:"max_tabs,omitempty"`
}

// AnalyzeOutput is the analysis plus how many tabs went into it.
type AnalyzeOutput struct {
	classify.Analysis
	TabCount int `json:"tab_count"`
}

// Analyze runs a deep content analysis across matching tabs.
func Analyze(ctx context.Context, database *sql.DB, classifier classify.Classifier, input AnalyzeInput) (*AnalyzeOutput, error) {
	maxTabs := input.MaxTabs
	if maxTabs <= 0 {
		maxTabs = DefaultAnalyzeMaxTabs
	}

	rows, err := db.InsightTabs(database, input.ClusterID, input.Tag, maxTabs)
	if err != nil {
		return nil, err
	}

	if input.Query != nil && *input.Query != "" {
		q := strings.ToLower(*input.Query)
		filtered := rows[:0]
		for _, r := range rows {
			if strings.Contains(strings.ToLower(r.Title), q) ||
				(r.Summary != nil && strings.Contains(strings.ToLower(*r.Summary), q)) {
				filtered = append(filtered, r)
			}
		}
		rows = filtered
	}

	if len(rows) == 0 {
		return nil, errors.NewNotFound("no matching tabs")
	}

	inputs := make([]classify.AnalyzeInput, len(rows))
	for i, r := range rows {
		inputs[i] = classify.AnalyzeInput{
			Title: r.Title, URL: r.URL,
			Summary: r.Summary, Content: r.Content, Tags: r.Tags,
		}
	}

	analysis, err := classifier.Analyze(ctx, inputs)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return &AnalyzeOutput{Analysis: *analysis, TabCount: len(rows)}, nil
}

// TagCount is one tag with its frequency among untriaged tabs.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// ClusterCount is one cluster with its size among untriaged tabs.
type ClusterCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// TopicsOutput is the aggregated topic overview.
type TopicsOutput struct {
	Tags     []TagCount     `json:"tags"`
	Clusters []ClusterCount `json:"clusters"`
}

// Topics aggregates tags and clusters across all untriaged tabs, most
// frequent first.
func Topics(database *sql.DB) (*TopicsOutput, error) {
	rows, err := db.TopicRows(database)
	if err != nil {
		return nil, err
	}

	tagCounts := make(map[string]int)
	clusterCounts := make(map[string]*ClusterCount)
	for _, r := range rows {
		for _, t := range r.Tags {
			tagCounts[t]++
		}
		if r.ClusterID != nil && r.ClusterLabel != nil {
			c, ok := clusterCounts[*r.ClusterID]
			if !ok {
				c = &ClusterCount{Label: *r.ClusterLabel}
				clusterCounts[*r.ClusterID] = c
			}
			c.Count++
		}
	}

	out := &TopicsOutput{
		Tags:     make([]TagCount, 0, len(tagCounts)),
		Clusters: make([]ClusterCount, 0, len(clusterCounts)),
	}
	for t, n := range tagCounts {
		out.Tags = append(out.Tags, TagCount{Tag: t, Count: n})
	}
	for _, c := range clusterCounts {
		out.Clusters = append(out.Clusters, *c)
	}

	sort.Slice(out.Tags, func(i, j int) bool {
		if out.Tags[i].Count != out.Tags[j].Count {
			return out.Tags[i].Count > out.Tags[j].Count
		}
		return out.Tags[i].Tag < out.Tags[j].Tag
	})
	sort.Slice(out.Clusters, func(i, j int) bool {
		if out.Clusters[i].Count != out.Clusters[j].Count {
			return out.Clusters[i].Count > out.Clusters[j].Count
		}
		return out.Clusters[i].Label < out.Clusters[j].Label
	})
	return out, nil
}
