package ops

import (
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tabtriage/tabtriage/internal/config"
	"github.com/tabtriage/tabtriage/internal/db"
	"github.com/tabtriage/tabtriage/internal/enrich"
	"github.com/tabtriage/tabtriage/internal/tab"
)

// CapturedTab is one tab as sent by the extension.
type CapturedTab struct {
	URL           string          `json:"url"`
	Title         string          `json:"title"`
	Content       string          `json:"content,omitempty"`
	Favicon       *string         `json:"favicon,omitempty"`
	OGImage       *string         `json:"og_image,omitempty"`
	OGDescription *string         `json:"og_description,omitempty"`
	Behavior      json.RawMessage `json:"behavior,omitempty"`
}

// CaptureInput contains parameters for the Capture operation.
type CaptureInput struct {
	WindowTitle *string       `json:"window_title"`
	Tabs        []CapturedTab `json:"tabs"`
	Hostname    string        `json:"-"`
}

// CaptureOutput contains the result of the Capture operation.
type CaptureOutput struct {
	SessionID *int64 `json:"session_id"`
	TabCount  int    `json:"tab_count"`
	Skipped   int    `json:"skipped"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
}

// Capture stores a batch of tabs from the extension and kicks off background
// enrichment. Tabs are dropped, in order, when they are the tool's own page,
// on an ignored domain, a duplicate within the batch, or already captured in
// the last 24 hours. A capture where every tab was dropped leaves no session
// behind.
func Capture(database *sql.DB, cfg *config.Config, orch *enrich.Orchestrator, input CaptureInput) (*CaptureOutput, error) {
	sessionID, err := db.InsertSession(database, input.WindowTitle, input.Hostname)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var tabIDs []int64
	skipped := 0

	for _, t := range input.Tabs {
		if isSelfPage(t.URL, cfg) {
			skipped++
			continue
		}

		if domain := tab.NormalizeDomain(t.URL); domain != "" {
			ignored, err := db.IsIgnoredDomain(database, domain)
			if err != nil {
				return nil, err
			}
			if ignored {
				skipped++
				continue
			}
		}

		if seen[t.URL] {
			skipped++
			continue
		}
		seen[t.URL] = true

		recent, err := db.RecentURLExists(database, t.URL)
		if err != nil {
			return nil, err
		}
		if recent {
			skipped++
			continue
		}

		content, ogImage, ogDescription, media := parseContentPayload(t.Content, cfg.MaxContentChars)
		if ogImage == nil {
			ogImage = t.OGImage
		}
		if ogDescription == nil {
			ogDescription = t.OGDescription
		}

		id, err := db.InsertTab(database, db.NewTab{
			SessionID:     sessionID,
			URL:           t.URL,
			Title:         t.Title,
			Content:       content,
			Favicon:       t.Favicon,
			OGImage:       ogImage,
			OGDescription: ogDescription,
			Media:         media,
			BehaviorData:  t.Behavior,
		})
		if err != nil {
			return nil, err
		}
		tabIDs = append(tabIDs, id)
	}

	if len(tabIDs) == 0 {
		if err := db.DeleteSession(database, sessionID); err != nil {
			return nil, err
		}
		return &CaptureOutput{
			Skipped: skipped,
			Status:  "all_duplicates",
			Message: "All tabs were already captured within the last 24 hours.",
		}, nil
	}

	orch.StartSession(sessionID, tabIDs)

	return &CaptureOutput{
		SessionID: &sessionID,
		TabCount:  len(tabIDs),
		Skipped:   skipped,
		Status:    "captured",
	}, nil
}

// isSelfPage reports whether a URL points at the tool's own triage page,
// either the file-based page or the hosted one.
func isSelfPage(url string, cfg *config.Config) bool {
	if strings.Contains(url, cfg.SelfPageFragment) {
		return true
	}
	trimmed := strings.TrimRight(url, "/")
	return strings.HasSuffix(trimmed, ":"+strconv.Itoa(cfg.Port))
}

// contentPayload is the structured content format newer extension versions
// send; older ones send plain text.
type contentPayload struct {
	Text          string          `json:"text"`
	OGImage       *string         `json:"og_image"`
	OGDescription *string         `json:"og_description"`
	Media         json.RawMessage `json:"media"`
}

// parseContentPayload decodes the extension's content field. JSON payloads
// yield text plus metadata; anything else is treated as plain text. Text is
// capped at maxChars either way.
func parseContentPayload(raw string, maxChars int) (content *string, ogImage, ogDescription *string, media json.RawMessage) {
	if raw == "" {
		return nil, nil, nil, nil
	}

	var p contentPayload
	if err := json.Unmarshal([]byte(raw), &p); err == nil {
		text := clipString(p.Text, maxChars)
		return &text, p.OGImage, p.OGDescription, p.Media
	}

	text := clipString(raw, maxChars)
	return &text, nil, nil, nil
}

// clipString caps s at n bytes, backing off to a rune boundary so a
// multi-byte character is never split.
func clipString(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
