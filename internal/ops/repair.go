package ops

import (
	"database/sql"

	"github.com/tabtriage/tabtriage/internal/db"
	"github.com/tabtriage/tabtriage/internal/enrich"
)

// BatchStartOutput reports whether a repair batch was started.
type BatchStartOutput struct {
	Status  string `json:"status"`
	Count   int    `json:"count"`
	BatchID string `json:"batch_id,omitempty"`
}

// ReSummarizeTab re-runs classification for one tab in the background.
func ReSummarizeTab(database *sql.DB, orch *enrich.Orchestrator, tabID int64) error {
	// Existence check up front; the work itself is async.
	if _, err := db.GetSummarizeRow(database, tabID); err != nil {
		return err
	}
	orch.ReSummarizeTab(tabID)
	return nil
}

// StartReSummarizeBatch re-summarizes every untriaged tab whose enrichment
// failed at the classifier stage.
func StartReSummarizeBatch(orch *enrich.Orchestrator) (*BatchStartOutput, error) {
	batchID, count, err := orch.StartReSummarizeBatch()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return &BatchStartOutput{Status: "none"}, nil
	}
	return &BatchStartOutput{Status: "started", Count: count, BatchID: batchID}, nil
}

// StartReExtractBatch re-extracts content server-side for every untriaged
// tab that failed for lack of content.
func StartReExtractBatch(orch *enrich.Orchestrator) (*BatchStartOutput, error) {
	batchID, count, err := orch.StartReExtractBatch()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return &BatchStartOutput{Status: "none"}, nil
	}
	return &BatchStartOutput{Status: "started", Count: count, BatchID: batchID}, nil
}

// RequestReExtract queues one tab for extension-side re-extraction with a
// server-side fallback.
func RequestReExtract(database *sql.DB, orch *enrich.Orchestrator, tabID int64) error {
	url, err := db.TabURL(database, tabID)
	if err != nil {
		return err
	}
	orch.RequestReExtract(tabID, url)
	return nil
}

// PendingReExtract lists tabs waiting for the extension to deliver content.
func PendingReExtract(orch *enrich.Orchestrator) []enrich.PendingExtract {
	return orch.ReExtract.Pending()
}

// BatchProgress reports the progress of a repair batch.
func BatchProgress(orch *enrich.Orchestrator, batchID string) enrich.BatchProgress {
	return orch.Batches.Get(batchID)
}
