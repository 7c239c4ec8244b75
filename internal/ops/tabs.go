package ops

import (
	"database/sql"

	"github.com/tabtriage/tabtriage/internal/config"
	"github.com/tabtriage/tabtriage/internal/db"
	"github.com/tabtriage/tabtriage/internal/enrich"
	"github.com/tabtriage/tabtriage/internal/errors"
	"github.com/tabtriage/tabtriage/internal/tab"
)

// GetTab returns one tab with its full content.
func GetTab(database *sql.DB, tabID int64) (*tab.Tab, error) {
	return db.GetTab(database, tabID)
}

// GetTabContent returns just a tab's extracted content.
func GetTabContent(database *sql.DB, tabID int64) (*string, error) {
	return db.TabContent(database, tabID)
}

// ToggleStar sets a tab's starred flag.
func ToggleStar(database *sql.DB, tabID int64, starred bool) error {
	return db.SetStarred(database, tabID, starred)
}

// RequestClose queues one tab's URL for the extension to close.
func RequestClose(database *sql.DB, orch *enrich.Orchestrator, tabID int64) error {
	url, err := db.TabURL(database, tabID)
	if err != nil {
		return err
	}
	orch.CloseQueue.Add(url)
	return nil
}

// RequestCloseBulk queues multiple tabs' URLs for closing. Unknown tab ids
// are skipped; the returned count is how many were requested, matching the
// original idempotent contract.
func RequestCloseBulk(database *sql.DB, orch *enrich.Orchestrator, tabIDs []int64) (int, error) {
	for _, id := range tabIDs {
		url, err := db.TabURL(database, id)
		if err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				continue
			}
			return 0, err
		}
		orch.CloseQueue.Add(url)
	}
	return len(tabIDs), nil
}

// PendingClose returns the URLs the extension should close.
func PendingClose(orch *enrich.Orchestrator) []string {
	return orch.CloseQueue.URLs()
}

// ConfirmClose acknowledges that the extension closed a tab.
func ConfirmClose(orch *enrich.Orchestrator, url string) {
	orch.CloseQueue.Remove(url)
}

// SubmitContentInput is the extension's delivery for a re-extract request.
type SubmitContentInput struct {
	TabID         int64
	Content       string
	OGImage       *string
	OGDescription *string
}

// SubmitContentOutput reports how a content delivery was handled.
type SubmitContentOutput struct {
	Status string `json:"status"`
	TabID  int64  `json:"tab_id"`
}

// SubmitContent accepts extension-extracted content for a tab, stores it,
// and re-summarizes in the background. An empty delivery means the extension
// could not find the tab; the server-side fallback handles it instead.
func SubmitContent(database *sql.DB, cfg *config.Config, orch *enrich.Orchestrator, input SubmitContentInput) (*SubmitContentOutput, error) {
	if input.Content == "" {
		return &SubmitContentOutput{Status: "not_found", TabID: input.TabID}, nil
	}

	// Claim the pending entry so the fallback timer backs off.
	orch.ReExtract.Claim(input.TabID)

	content, ogImage, ogDescription, _ := parseContentPayload(input.Content, cfg.MaxContentChars)
	if ogImage == nil {
		ogImage = input.OGImage
	}
	if ogDescription == nil {
		ogDescription = input.OGDescription
	}

	if err := db.UpdateContent(database, input.TabID, *content, ogImage, ogDescription); err != nil {
		return nil, err
	}

	orch.ReSummarizeTab(input.TabID)
	return &SubmitContentOutput{Status: "content_received", TabID: input.TabID}, nil
}
