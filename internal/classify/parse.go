package classify

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tabtriage/tabtriage/internal/tab"
)

// parseSummary extracts the SUMMARY/CATEGORY/TAGS lines from a classifier
// response. Missing or malformed fields degrade: the raw response (truncated)
// stands in for a missing summary, the category falls back to read-later.
func parseSummary(text, title string) Result {
	r := Result{SuggestedCategory: tab.CategoryReadLater}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "SUMMARY:"):
			r.Summary = strings.TrimSpace(strings.TrimPrefix(line, "SUMMARY:"))
		case strings.HasPrefix(line, "CATEGORY:"):
			cat := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(line, "CATEGORY:")))
			if tab.IsSuggestedCategory(cat) {
				r.SuggestedCategory = cat
			}
		case strings.HasPrefix(line, "TAGS:"):
			for _, t := range strings.Split(strings.TrimPrefix(line, "TAGS:"), ",") {
				if t = strings.TrimSpace(t); t != "" {
					r.Tags = append(r.Tags, t)
				}
			}
		}
	}

	if r.Summary == "" {
		if text != "" {
			r.Summary = truncate(text, 500)
		} else {
			r.Summary = "No summary for: " + title
		}
	}
	return r
}

// parseClusters extracts the JSON array from a clustering response and drops
// assignments for unknown tab ids.
func parseClusters(text string, known map[int64]bool) ([]Assignment, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in clustering response")
	}

	var raw []Assignment
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("parsing clustering response: %w", err)
	}

	out := make([]Assignment, 0, len(raw))
	for _, a := range raw {
		if !known[a.TabID] {
			continue
		}
		if a.ClusterID == "" {
			a.ClusterID = "other"
		}
		if a.ClusterLabel == "" {
			a.ClusterLabel = "Other"
		}
		out = append(out, a)
	}
	return out, nil
}

// parseAnalysis extracts the JSON object from an analysis response.
func parseAnalysis(text string) (*Analysis, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in analysis response")
	}

	var a Analysis
	if err := json.Unmarshal([]byte(text[start:end+1]), &a); err != nil {
		return nil, fmt.Errorf("parsing analysis response: %w", err)
	}
	return &a, nil
}
