package ops

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/tabtriage/tabtriage/internal/db"
	"github.com/tabtriage/tabtriage/internal/enrich"
	"github.com/tabtriage/tabtriage/internal/errors"
	"github.com/tabtriage/tabtriage/internal/tab"
)

// PreviewTab identifies one tab in an auto-triage preview.
type PreviewTab struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// AutoTriagePreview shows what AutoTriage would do without doing it.
type AutoTriagePreview struct {
	Total          int                     `json:"total"`
	Counts         map[string]int          `json:"counts"`
	WillClose      int                     `json:"will_close"`
	WillStar       int                     `json:"will_star"`
	TabsByCategory map[string][]PreviewTab `json:"tabs_by_category"`
}

// PreviewAutoTriage reports, per category, which untriaged tabs would be
// auto-triaged. Read-only.
func PreviewAutoTriage(database *sql.DB) (*AutoTriagePreview, error) {
	rows, err := db.UntriagedSuggested(database)
	if err != nil {
		return nil, err
	}

	preview := &AutoTriagePreview{
		Counts:         make(map[string]int, len(tab.SuggestedCategories)),
		TabsByCategory: make(map[string][]PreviewTab, len(tab.SuggestedCategories)),
	}
	for _, cat := range tab.SuggestedCategories {
		preview.Counts[cat] = 0
		preview.TabsByCategory[cat] = []PreviewTab{}
	}

	for _, r := range rows {
		if !tab.IsSuggestedCategory(r.SuggestedCategory) {
			continue
		}
		preview.Total++
		preview.Counts[r.SuggestedCategory]++
		preview.TabsByCategory[r.SuggestedCategory] = append(
			preview.TabsByCategory[r.SuggestedCategory],
			PreviewTab{ID: r.ID, Title: r.Title, URL: r.URL},
		)
	}

	preview.WillClose = preview.Counts[tab.CategoryArchive]
	preview.WillStar = preview.Counts[tab.CategoryActionable]
	return preview, nil
}

// AutoTriageOutput summarizes an auto-triage run. BatchID references the
// undo buffer entry; it is empty when nothing was triaged.
type AutoTriageOutput struct {
	Status         string `json:"status"`
	Total          int    `json:"total"`
	Saved          int    `json:"saved"`
	Starred        int    `json:"starred"`
	Archived       int    `json:"archived"`
	CloseRequested int    `json:"close_requested"`
	BatchID        string `json:"batch_id,omitempty"`
}

// AutoTriage accepts the classifier's suggestion for every untriaged tab.
// Actionable tabs are starred, archived tabs are queued for closing, and
// the pre-triage state is buffered so the whole batch can be undone. Tabs
// are never dismissed automatically.
func AutoTriage(ctx context.Context, database *sql.DB, orch *enrich.Orchestrator, log *zap.Logger) (*AutoTriageOutput, error) {
	rows, err := db.UntriagedSuggested(database)
	if err != nil {
		return nil, err
	}

	out := &AutoTriageOutput{Status: "auto_triaged"}
	if len(rows) == 0 {
		return out, nil
	}

	snapshots := make([]enrich.TriageSnapshot, 0, len(rows))
	for _, r := range rows {
		snapshots = append(snapshots, enrich.TriageSnapshot{
			TabID:     r.ID,
			Category:  r.Category,
			Starred:   r.Starred,
			TriagedAt: r.TriagedAt,
		})
	}
	out.BatchID = orch.Undo.Put(snapshots)

	var closeIDs []int64
	for _, r := range rows {
		cat := r.SuggestedCategory
		input := TriageInput{TabID: r.ID, Category: &cat}

		if cat == tab.CategoryActionable {
			starred := true
			input.Starred = &starred
			out.Starred++
		}
		if cat == tab.CategoryArchive {
			out.Archived++
			closeIDs = append(closeIDs, r.ID)
		} else {
			out.Saved++
		}

		if _, err := Triage(ctx, database, nil, log, input); err != nil {
			log.Error("auto-triage failed for tab", zap.Int64("tab_id", r.ID), zap.Error(err))
		}
		out.Total++
	}

	if len(closeIDs) > 0 {
		if _, err := RequestCloseBulk(database, orch, closeIDs); err != nil {
			return nil, err
		}
		out.CloseRequested = len(closeIDs)
	}
	return out, nil
}

// UndoOutput reports how many tabs an undo restored.
type UndoOutput struct {
	Status   string `json:"status"`
	Restored int    `json:"restored"`
}

// UndoAutoTriage restores the pre-triage state of an auto-triage batch and
// pulls its tabs back out of the close queue. A batch can be undone once;
// expired or unknown batch ids report not found.
func UndoAutoTriage(database *sql.DB, orch *enrich.Orchestrator, batchID string) (*UndoOutput, error) {
	snapshots, ok := orch.Undo.Take(batchID)
	if !ok {
		return nil, errors.NewNotFound("undo batch " + batchID)
	}

	restored := 0
	for _, s := range snapshots {
		if err := db.RestoreTriage(database, s.TabID, s.Category, s.Starred, s.TriagedAt); err != nil {
			return nil, err
		}
		if url, err := db.TabURL(database, s.TabID); err == nil {
			orch.CloseQueue.Remove(url)
		}
		restored++
	}
	return &UndoOutput{Status: "undone", Restored: restored}, nil
}
