package ops

import (
	"database/sql"

	"github.com/tabtriage/tabtriage/internal/db"
	"github.com/tabtriage/tabtriage/internal/tab"
)

// SearchInput selects tabs by full-text query or structured filters. A
// query of at least MinSearchQueryChars runs full-text search and the
// filters are ignored; otherwise the filters apply.
type SearchInput struct {
	Query     string
	Category  string
	Starred   bool
	ProjectID string
	SessionID int64
	Tag       string
}

// SearchHit is one search result. Snippet is only set for full-text hits.
type SearchHit struct {
	ID                int64   `json:"id"`
	SessionID         int64   `json:"session_id"`
	URL               string  `json:"url"`
	Title             string  `json:"title"`
	Summary           *string `json:"summary"`
	SuggestedCategory *string `json:"suggested_category"`
	Category          *string `json:"category"`
	Starred           bool    `json:"starred"`
	CapturedAt        string  `json:"captured_at"`
	Snippet           string  `json:"snippet"`
}

// Search finds tabs by relevance-ranked full text or filtered listing.
func Search(database *sql.DB, input SearchInput) ([]SearchHit, error) {
	if len(input.Query) >= MinSearchQueryChars {
		results, err := db.SearchFullText(database, input.Query)
		if err != nil {
			return nil, err
		}
		hits := make([]SearchHit, len(results))
		for i, r := range results {
			hits[i] = SearchHit{
				ID: r.ID, SessionID: r.SessionID, URL: r.URL, Title: r.Title,
				Summary: r.Summary, SuggestedCategory: r.SuggestedCategory,
				Category: r.Category, Starred: r.Starred,
				CapturedAt: r.CapturedAt, Snippet: r.Snippet,
			}
		}
		return hits, nil
	}

	filter := db.TabFilter{}
	if input.Category != "" {
		filter.Category = &input.Category
	}
	if input.Starred {
		starred := true
		filter.Starred = &starred
	}
	if input.ProjectID != "" {
		filter.ProjectID = &input.ProjectID
	}
	if input.SessionID != 0 {
		filter.SessionID = &input.SessionID
	}
	if input.Tag != "" {
		filter.Tag = &input.Tag
	}

	tabs, err := db.FilterTabs(database, filter)
	if err != nil {
		return nil, err
	}
	hits := make([]SearchHit, len(tabs))
	for i := range tabs {
		hits[i] = hitFromTab(&tabs[i])
	}
	return hits, nil
}

func hitFromTab(t *tab.Tab) SearchHit {
	return SearchHit{
		ID: t.ID, SessionID: t.SessionID, URL: t.URL, Title: t.Title,
		Summary: t.Summary, SuggestedCategory: t.SuggestedCategory,
		Category: t.Category, Starred: t.Starred, CapturedAt: t.CapturedAt,
	}
}
