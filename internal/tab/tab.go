package tab

import (
	"encoding/json"
	"net/url"
	"strings"
)

// Category values a human (or the classifier) can assign to a tab.
const (
	CategoryReadLater  = "read-later"
	CategoryReference  = "reference"
	CategoryActionable = "actionable"
	CategoryArchive    = "archive"
	// CategoryDismiss marks a tab as triaged without forwarding it anywhere.
	// Never produced by the classifier or by auto-triage.
	CategoryDismiss = "dismiss"
)

// SuggestedCategories lists the categories the classifier may emit.
var SuggestedCategories = []string{
	CategoryReadLater, CategoryReference, CategoryActionable, CategoryArchive,
}

// IsSuggestedCategory reports whether c is a valid classifier category.
func IsSuggestedCategory(c string) bool {
	switch c {
	case CategoryReadLater, CategoryReference, CategoryActionable, CategoryArchive:
		return true
	}
	return false
}

// FailureReason tags why enrichment of a tab failed, carried alongside the
// placeholder summary so repair operations can select exactly the tabs that
// failed for a given reason.
type FailureReason string

const (
	FailureNone       FailureReason = ""
	FailureCLIError   FailureReason = "cli_error"
	FailureCLIMissing FailureReason = "cli_missing"
	FailureTimeout    FailureReason = "timeout"
	FailureNoContent  FailureReason = "no_content"
)

// Session represents one browser-tab capture event.
type Session struct {
	ID          int64   `json:"id"`
	WindowTitle *string `json:"window_title"`
	Hostname    string  `json:"hostname"`
	CapturedAt  string  `json:"captured_at"`
}

// SessionSummary is a Session with aggregate tab counts for listings.
type SessionSummary struct {
	Session
	TabCount     int `json:"tab_count"`
	TriagedCount int `json:"triaged_count"`
}

// Tab represents one captured browser tab and its accumulated
// enrichment/triage state.
type Tab struct {
	ID                int64           `json:"id"`
	SessionID         int64           `json:"session_id"`
	URL               string          `json:"url"`
	Title             string          `json:"title"`
	Content           *string         `json:"content,omitempty"`
	HasContent        bool            `json:"has_content"`
	Favicon           *string         `json:"favicon"`
	OGImage           *string         `json:"og_image"`
	OGDescription     *string         `json:"og_description"`
	Media             json.RawMessage `json:"media"`
	BehaviorData      json.RawMessage `json:"behavior_data"`
	Summary           *string         `json:"summary"`
	FailureReason     FailureReason   `json:"failure_reason,omitempty"`
	SuggestedCategory *string         `json:"suggested_category"`
	Category          *string         `json:"category"`
	Tags              []string        `json:"tags"`
	ClusterID         *string         `json:"cluster_id"`
	ClusterLabel      *string         `json:"cluster_label"`
	ProjectID         *string         `json:"project_id"`
	UserNote          *string         `json:"user_note"`
	Starred           bool            `json:"starred"`
	CapturedAt        string          `json:"captured_at"`
	TriagedAt         *string         `json:"triaged_at"`
}

// Triaged reports whether a human decision has been recorded for the tab.
func (t *Tab) Triaged() bool {
	return t.TriagedAt != nil
}

// NormalizeDomain extracts the hostname from a URL or bare domain string,
// lowercased and with any leading "www." stripped. Returns "" if no hostname
// can be determined.
func NormalizeDomain(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	host := raw
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil || u.Hostname() == "" {
			return ""
		}
		host = u.Hostname()
	} else if i := strings.IndexAny(host, "/:"); i >= 0 {
		host = host[:i]
	}
	host = strings.ToLower(host)
	return strings.TrimPrefix(host, "www.")
}
