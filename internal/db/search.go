package db

import (
	"database/sql"
	"strings"

	"github.com/tabtriage/tabtriage/internal/errors"
	"github.com/tabtriage/tabtriage/internal/tab"
)

// MaxSearchResults caps full-text search output.
const MaxSearchResults = 100

// MaxFilterResults caps filtered listing output.
const MaxFilterResults = 200

// SearchResult is one full-text match with a highlighted snippet.
type SearchResult struct {
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

// SearchFullText runs an FTS5 match over title, content, and summary,
// best matches first.
func SearchFullText(db *sql.DB, query string) ([]SearchResult, error) {
	match := quoteMatchQuery(query)
	if match == "" {
		return []SearchResult{}, nil
	}

	rows, err := db.Query(`
		SELECT t.id, t.session_id, t.url, t.title, t.summary,
		       t.suggested_category, t.category, t.starred, t.captured_at,
		       snippet(tabs_fts, -1, '<b>', '</b>', '...', 40)
		FROM tabs_fts JOIN tabs t ON t.id = tabs_fts.rowid
		WHERE tabs_fts MATCH ?
		ORDER BY rank LIMIT ?`, match, MaxSearchResults)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	results := make([]SearchResult, 0)
	for rows.Next() {
		var (
			r                 SearchResult
			summary           sql.NullString
			suggested, catgry sql.NullString
			starred           int
		)
		if err := rows.Scan(&r.ID, &r.SessionID, &r.URL, &r.Title, &summary,
			&suggested, &catgry, &starred, &r.CapturedAt, &r.Snippet); err != nil {
			return nil, errors.NewInternal(err)
		}
		r.Summary = fromNullString(summary)
		r.SuggestedCategory = fromNullString(suggested)
		r.Category = fromNullString(catgry)
		r.Starred = starred != 0
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return results, nil
}

// TabFilter selects tabs by structured attributes. Nil fields do not filter.
type TabFilter struct {
	Category  *string
	Starred   *bool
	ProjectID *string
	SessionID *int64
	Tag       *string
}

// FilterTabs lists tabs matching the filter, newest first. A category filter
// matches the human decision or, when none exists yet, the suggestion.
func FilterTabs(db *sql.DB, f TabFilter) ([]tab.Tab, error) {
	query := "SELECT " + tabColumns + " FROM tabs WHERE 1=1"
	params := make([]any, 0, 6)

	if f.Category != nil {
		query += " AND COALESCE(category, suggested_category) = ?"
		params = append(params, *f.Category)
	}
	if f.Starred != nil {
		query += " AND starred = ?"
		params = append(params, boolToInt(*f.Starred))
	}
	if f.ProjectID != nil {
		query += " AND project_id = ?"
		params = append(params, *f.ProjectID)
	}
	if f.SessionID != nil {
		query += " AND session_id = ?"
		params = append(params, *f.SessionID)
	}
	if f.Tag != nil {
		query += " AND tags LIKE ?"
		params = append(params, "%"+*f.Tag+"%")
	}
	query += " ORDER BY id DESC LIMIT ?"
	params = append(params, MaxFilterResults)

	rows, err := db.Query(query, params...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()
	return collectTabs(rows)
}

// quoteMatchQuery turns free text into an FTS5 match expression by quoting
// each term, so user input cannot inject FTS syntax.
func quoteMatchQuery(query string) string {
	fields := strings.Fields(query)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, "")
		if f == "" {
			continue
		}
		terms = append(terms, `"`+f+`"`)
	}
	return strings.Join(terms, " ")
}
