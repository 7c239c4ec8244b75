package ops

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/tabtriage/tabtriage/internal/db"
	"github.com/tabtriage/tabtriage/internal/tab"
)

// TriageInput is one triage decision. Nil fields leave the stored values
// untouched; a non-empty Target forwards the tab after the update.
type TriageInput struct {
	TabID     int64     `json:"tab_id"`
	Category  *string   `json:"category,omitempty"`
	ProjectID *string   `json:"project_id,omitempty"`
	UserNote  *string   `json:"user_note,omitempty"`
	Tags      *[]string `json:"tags,omitempty"`
	Starred   *bool     `json:"starred,omitempty"`
	Target    string    `json:"notion_target,omitempty"`
}

// TriageOutput is the result of one triage decision.
type TriageOutput struct {
	TabID     int64   `json:"tab_id"`
	Status    string  `json:"status"`
	NotionURL *string `json:"notion_url,omitempty"`
}

// Triage applies a triage decision and optionally forwards the tab. The
// database update and the forwarding are independent: a forwarding failure
// is logged and reported as a missing URL, never rolled back.
func Triage(ctx context.Context, database *sql.DB, fw Forwarder, log *zap.Logger, input TriageInput) (*TriageOutput, error) {
	target, err := tab.ParseTarget(input.Target)
	if err != nil {
		return nil, err
	}

	t, err := db.GetTab(database, input.TabID)
	if err != nil {
		return nil, err
	}

	if err := db.UpdateTriage(database, input.TabID, db.TriageUpdate{
		Category:  input.Category,
		ProjectID: input.ProjectID,
		UserNote:  input.UserNote,
		Tags:      input.Tags,
		Starred:   input.Starred,
	}); err != nil {
		return nil, err
	}

	out := &TriageOutput{TabID: input.TabID, Status: "triaged"}

	dismissed := input.Category != nil && *input.Category == tab.CategoryDismiss
	if target == "" || dismissed || fw == nil {
		return out, nil
	}

	summary := t.Title
	if t.Summary != nil && *t.Summary != "" {
		summary = *t.Summary
	}

	notionURL, fwErr := forward(ctx, fw, target, t, input, summary)
	if fwErr != nil {
		log.Error("forwarding failed",
			zap.Int64("tab_id", input.TabID),
			zap.String("target", string(target)),
			zap.Error(fwErr))
		return out, nil
	}
	if notionURL != "" {
		out.NotionURL = &notionURL
	}
	return out, nil
}

func forward(ctx context.Context, fw Forwarder, target tab.Target, t *tab.Tab, input TriageInput, summary string) (string, error) {
	switch target {
	case tab.TargetLinks:
		return fw.CreateLink(ctx, t.Title, t.URL, summary, t.Content)
	case tab.TargetBacklog:
		return fw.CreateBacklogCard(ctx, t.Title, summary, t.URL)
	case tab.TargetProject:
		// No project to append to means nothing to forward; the local
		// triage has already been committed.
		if input.ProjectID == nil || *input.ProjectID == "" {
			return "", nil
		}
		if err := fw.AppendToProject(ctx, *input.ProjectID, t.Title, t.URL, summary); err != nil {
			return "", err
		}
		return "appended", nil
	case tab.TargetTodoToday:
		return fw.CreateTask(ctx, t.Title, t.URL, summary, "today")
	case tab.TargetTodoSomeday:
		return fw.CreateTask(ctx, t.Title, t.URL, summary, "someday")
	}
	return "", nil
}

// TriageBulk applies multiple triage decisions. Per-item failures are
// reported inline so one bad tab does not abort the rest.
func TriageBulk(ctx context.Context, database *sql.DB, fw Forwarder, log *zap.Logger, items []TriageInput) ([]TriageOutput, error) {
	results := make([]TriageOutput, 0, len(items))
	for _, item := range items {
		out, err := Triage(ctx, database, fw, log, item)
		if err != nil {
			results = append(results, TriageOutput{TabID: item.TabID, Status: "error: " + err.Error()})
			continue
		}
		results = append(results, *out)
	}
	return results, nil
}
