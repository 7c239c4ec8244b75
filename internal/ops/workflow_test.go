package ops

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabtriage/tabtriage/internal/tab"
)

// TestCaptureTriageWorkflow walks the whole pipeline: capture, enrichment,
// repair, triage with forwarding, auto-triage, undo, and the close queue.
func TestCaptureTriageWorkflow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Capture a session with one content-bearing and one empty tab.
	out, err := Capture(env.db, env.cfg, env.orch, CaptureInput{
		WindowTitle: strPtr("Research"),
		Hostname:    "laptop",
		Tabs: []CapturedTab{
			{URL: "https://e.com/article", Title: "Article", Content: "a full page of extracted article text"},
			{URL: "https://e.com/video", Title: "Video"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "captured", out.Status)
	require.NotNil(t, out.SessionID)
	env.orch.Wait()

	progress := env.orch.Progress.Get(*out.SessionID)
	assert.Equal(t, "done", progress.Phase)
	assert.Equal(t, 2, progress.Completed)

	tabs, err := SessionTabs(env.db, *out.SessionID)
	require.NoError(t, err)
	require.Len(t, tabs, 2)

	article, video := tabs[0], tabs[1]
	assert.True(t, article.HasContent)
	assert.NotNil(t, article.Summary)

	// The contentless tab failed with no_content and is a repair candidate.
	assert.Equal(t, tab.FailureNoContent, video.FailureReason)
	repair, err := StartReExtractBatch(env.orch)
	require.NoError(t, err)
	assert.Equal(t, "started", repair.Status)
	assert.Equal(t, 1, repair.Count)
	env.orch.Wait()
	assert.True(t, BatchProgress(env.orch, repair.BatchID).Done)

	// Human triage with forwarding.
	fw := &fakeForwarder{}
	triaged, err := Triage(ctx, env.db, fw, env.log, TriageInput{
		TabID:    article.ID,
		Category: strPtr(tab.CategoryReference),
		Tags:     &[]string{"golang"},
		Target:   "links",
	})
	require.NoError(t, err)
	require.NotNil(t, triaged.NotionURL)
	assert.Equal(t, []string{"link:Article"}, fw.calls)

	// Auto-triage sweeps the remaining suggested tab.
	suggest(t, env, video.ID, tab.CategoryArchive)
	auto, err := AutoTriage(ctx, env.db, env.orch, env.log)
	require.NoError(t, err)
	assert.Equal(t, 1, auto.Total)
	assert.Equal(t, 1, auto.CloseRequested)
	assert.Equal(t, []string{"https://e.com/video"}, PendingClose(env.orch))

	// Search sees the triaged state.
	hits, err := Search(env.db, SearchInput{Category: tab.CategoryReference})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, article.ID, hits[0].ID)

	// Undo restores the auto-triaged tab and drains the close queue.
	undone, err := UndoAutoTriage(env.db, env.orch, auto.BatchID)
	require.NoError(t, err)
	assert.Equal(t, 1, undone.Restored)
	assert.Empty(t, PendingClose(env.orch))

	restored, err := GetTab(env.db, video.ID)
	require.NoError(t, err)
	assert.False(t, restored.Triaged())

	// The human decision was never part of the batch.
	kept, err := GetTab(env.db, article.ID)
	require.NoError(t, err)
	assert.True(t, kept.Triaged())

	sessions, err := ListSessions(env.db)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 2, sessions[0].TabCount)
	assert.Equal(t, 1, sessions[0].TriagedCount)
}
