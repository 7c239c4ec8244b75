package web

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/tabtriage/tabtriage/internal/classify"
	"github.com/tabtriage/tabtriage/internal/config"
	"github.com/tabtriage/tabtriage/internal/enrich"
	"github.com/tabtriage/tabtriage/internal/errors"
	"github.com/tabtriage/tabtriage/internal/notion"
	"github.com/tabtriage/tabtriage/internal/ops"
)

// progressStreamInterval is how often the SSE progress stream emits a tick.
const progressStreamInterval = 2 * time.Second

// Handlers contains HTTP route handlers for the capture/triage API and the
// embedded triage page.
type Handlers struct {
	db         *sql.DB
	cfg        *config.Config
	orch       *enrich.Orchestrator
	classifier classify.Classifier
	notion     *notion.Client
	renderer   *Renderer
	log        *zap.Logger
}

// forwarder returns the Notion client as a forwarding target, or nil when
// forwarding is not configured so triage skips it entirely.
func (h *Handlers) forwarder() ops.Forwarder {
	if h.notion == nil || !h.notion.Enabled() {
		return nil
	}
	return h.notion
}

// HandleCapture handles POST /api/capture — store a batch of tabs from the
// extension and kick off enrichment.
func (h *Handlers) HandleCapture(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ops.CaptureInput
		Hostname string `json:"hostname"`
	}
	if err := decodeJSON(r, &req); err != nil {
		renderError(w, err)
		return
	}
	req.CaptureInput.Hostname = req.Hostname

	out, err := ops.Capture(h.db, h.cfg, h.orch, req.CaptureInput)
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleProgress handles GET /api/capture/{id}/progress.
func (h *Handlers) HandleProgress(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, h.orch.Progress.Get(id))
}

// HandleProgressStream handles GET /api/capture/{id}/progress/stream — an SSE
// stream that ticks until the session's enrichment is done.
func (h *Handlers) HandleProgressStream(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		renderError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		renderError(w, errors.NewInternal(fmt.Errorf("streaming unsupported")))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	send := func() bool {
		p := h.orch.Progress.Get(id)
		data, _ := json.Marshal(p)
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
		return p.Phase == enrich.PhaseDone
	}

	if send() {
		return
	}

	ticker := time.NewTicker(progressStreamInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if send() {
				return
			}
		}
	}
}

// HandleSessions handles GET /api/sessions.
func (h *Handlers) HandleSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := ops.ListSessions(h.db)
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// HandleSessionTabs handles GET /api/sessions/{id}/tabs.
func (h *Handlers) HandleSessionTabs(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		renderError(w, err)
		return
	}
	tabs, err := ops.SessionTabs(h.db, id)
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"tabs": tabs})
}

// HandleIgnoredDomains handles GET /api/ignored-domains.
func (h *Handlers) HandleIgnoredDomains(w http.ResponseWriter, r *http.Request) {
	domains, err := ops.ListIgnoredDomains(h.db)
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"domains": domains})
}

// HandleIgnoreDomain handles POST /api/ignored-domains.
func (h *Handlers) HandleIgnoreDomain(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Domain string `json:"domain"`
	}
	if err := decodeJSON(r, &req); err != nil {
		renderError(w, err)
		return
	}
	domain, err := ops.IgnoreDomain(h.db, req.Domain)
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"status": "added", "domain": domain})
}

// HandleUnignoreDomain handles DELETE /api/ignored-domains/{domain...}.
func (h *Handlers) HandleUnignoreDomain(w http.ResponseWriter, r *http.Request) {
	domain, err := ops.UnignoreDomain(h.db, r.PathValue("domain"))
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"status": "removed", "domain": domain})
}

// HandlePendingClose handles GET /api/tabs/pending-close — the extension's
// close-queue poll. Entries stay until confirmed.
func (h *Handlers) HandlePendingClose(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, map[string]any{"urls": ops.PendingClose(h.orch)})
}

// HandleConfirmClose handles POST /api/tabs/confirm-close.
func (h *Handlers) HandleConfirmClose(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := decodeJSON(r, &req); err != nil {
		renderError(w, err)
		return
	}
	ops.ConfirmClose(h.orch, req.URL)
	renderJSON(w, http.StatusOK, map[string]any{"status": "confirmed"})
}

// HandleRequestCloseBulk handles POST /api/tabs/request-close-bulk.
func (h *Handlers) HandleRequestCloseBulk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TabIDs []int64 `json:"tab_ids"`
	}
	if err := decodeJSON(r, &req); err != nil {
		renderError(w, err)
		return
	}
	n, err := ops.RequestCloseBulk(h.db, h.orch, req.TabIDs)
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"status": "close_requested", "count": n})
}

// HandleReSummarizeBatch handles POST /api/tabs/re-summarize-batch.
func (h *Handlers) HandleReSummarizeBatch(w http.ResponseWriter, r *http.Request) {
	out, err := ops.StartReSummarizeBatch(h.orch)
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleReSummarizeProgress handles GET /api/tabs/re-summarize-progress/{batch}.
func (h *Handlers) HandleReSummarizeProgress(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, ops.BatchProgress(h.orch, r.PathValue("batch")))
}

// HandlePendingReExtract handles GET /api/tabs/pending-re-extract — the
// extension's poll for tabs whose content it should re-deliver.
func (h *Handlers) HandlePendingReExtract(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, map[string]any{"pending": ops.PendingReExtract(h.orch)})
}

// HandleReExtractBatch handles POST /api/tabs/request-re-extract-batch.
func (h *Handlers) HandleReExtractBatch(w http.ResponseWriter, r *http.Request) {
	out, err := ops.StartReExtractBatch(h.orch)
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleReExtractProgress handles GET /api/tabs/re-extract-progress/{batch}.
func (h *Handlers) HandleReExtractProgress(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, ops.BatchProgress(h.orch, r.PathValue("batch")))
}

// HandleGetTab handles GET /api/tabs/{id}.
func (h *Handlers) HandleGetTab(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		renderError(w, err)
		return
	}
	t, err := ops.GetTab(h.db, id)
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, t)
}

// HandleTabContent handles GET /api/tabs/{id}/content.
func (h *Handlers) HandleTabContent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		renderError(w, err)
		return
	}
	content, err := ops.GetTabContent(h.db, id)
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"tab_id": id, "content": content})
}

// HandleRequestClose handles POST /api/tabs/{id}/request-close.
func (h *Handlers) HandleRequestClose(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		renderError(w, err)
		return
	}
	if err := ops.RequestClose(h.db, h.orch, id); err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"status": "close_requested", "tab_id": id})
}

// HandleReSummarizeTab handles POST /api/tabs/{id}/re-summarize.
func (h *Handlers) HandleReSummarizeTab(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		renderError(w, err)
		return
	}
	if err := ops.ReSummarizeTab(h.db, h.orch, id); err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"status": "re_summarize_started", "tab_id": id})
}

// HandleUpdateContent handles POST /api/tabs/{id}/update-content — the
// extension delivering re-extracted content.
func (h *Handlers) HandleUpdateContent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		renderError(w, err)
		return
	}
	var req struct {
		Content       string  `json:"content"`
		OGImage       *string `json:"og_image"`
		OGDescription *string `json:"og_description"`
	}
	if err := decodeJSON(r, &req); err != nil {
		renderError(w, err)
		return
	}
	out, err := ops.SubmitContent(h.db, h.cfg, h.orch, ops.SubmitContentInput{
		TabID:         id,
		Content:       req.Content,
		OGImage:       req.OGImage,
		OGDescription: req.OGDescription,
	})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleRequestReExtract handles POST /api/tabs/{id}/request-re-extract.
func (h *Handlers) HandleRequestReExtract(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		renderError(w, err)
		return
	}
	if err := ops.RequestReExtract(h.db, h.orch, id); err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"status": "re_extract_requested", "tab_id": id})
}

// HandleStar handles POST /api/tabs/{id}/star.
func (h *Handlers) HandleStar(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		renderError(w, err)
		return
	}
	var req struct {
		Starred bool `json:"starred"`
	}
	if err := decodeJSON(r, &req); err != nil {
		renderError(w, err)
		return
	}
	if err := ops.ToggleStar(h.db, id, req.Starred); err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"status": "ok", "tab_id": id, "starred": req.Starred})
}

// HandleTriage handles POST /api/triage — one triage decision.
func (h *Handlers) HandleTriage(w http.ResponseWriter, r *http.Request) {
	var input ops.TriageInput
	if err := decodeJSON(r, &input); err != nil {
		renderError(w, err)
		return
	}
	out, err := ops.Triage(r.Context(), h.db, h.forwarder(), h.log, input)
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleTriageBulk handles POST /api/triage/bulk.
func (h *Handlers) HandleTriageBulk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items []ops.TriageInput `json:"items"`
	}
	if err := decodeJSON(r, &req); err != nil {
		renderError(w, err)
		return
	}
	results, err := ops.TriageBulk(r.Context(), h.db, h.forwarder(), h.log, req.Items)
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"results": results})
}

// HandleAutoTriagePreview handles GET /api/triage/auto/preview.
func (h *Handlers) HandleAutoTriagePreview(w http.ResponseWriter, r *http.Request) {
	preview, err := ops.PreviewAutoTriage(h.db)
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, preview)
}

// HandleAutoTriage handles POST /api/triage/auto.
func (h *Handlers) HandleAutoTriage(w http.ResponseWriter, r *http.Request) {
	out, err := ops.AutoTriage(r.Context(), h.db, h.orch, h.log)
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleAutoTriageUndo handles POST /api/triage/auto/undo.
func (h *Handlers) HandleAutoTriageUndo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BatchID string `json:"batch_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		renderError(w, err)
		return
	}
	out, err := ops.UndoAutoTriage(h.db, h.orch, req.BatchID)
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleSearch handles GET /api/search — full-text or filtered listing.
func (h *Handlers) HandleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	input := ops.SearchInput{
		Query:     q.Get("q"),
		Category:  q.Get("category"),
		Starred:   q.Get("starred") == "true" || q.Get("starred") == "1",
		ProjectID: q.Get("project_id"),
		Tag:       q.Get("tag"),
	}
	if s := q.Get("session_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			renderError(w, errors.NewInvalidRequest("session_id must be an integer"))
			return
		}
		input.SessionID = id
	}

	hits, err := ops.Search(h.db, input)
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"results": hits, "count": len(hits)})
}

// HandleNotionProjects handles GET /api/notion/projects.
func (h *Handlers) HandleNotionProjects(w http.ResponseWriter, r *http.Request) {
	if h.notion == nil || !h.notion.Enabled() {
		renderJSON(w, http.StatusOK, map[string]any{"projects": []notion.Project{}, "enabled": false})
		return
	}
	projects, err := h.notion.GetProjects(r.Context())
	if err != nil {
		renderError(w, errors.NewInternal(err))
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"projects": projects, "enabled": true})
}

// HandleAnalyze handles POST /api/insights/analyze.
func (h *Handlers) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	var input ops.AnalyzeInput
	if err := decodeJSON(r, &input); err != nil {
		renderError(w, err)
		return
	}
	out, err := ops.Analyze(r.Context(), h.db, h.classifier, input)
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleTopics handles GET /api/insights/topics.
func (h *Handlers) HandleTopics(w http.ResponseWriter, r *http.Request) {
	out, err := ops.Topics(h.db)
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleTriageData handles GET /api/triage-data — everything the triage page
// needs in one response.
func (h *Handlers) HandleTriageData(w http.ResponseWriter, r *http.Request) {
	data, err := ops.GetTriageData(h.db)
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, data)
}

// HandleTriagePage handles GET / — the embedded triage page.
func (h *Handlers) HandleTriagePage(w http.ResponseWriter, r *http.Request) {
	data, err := ops.GetTriageData(h.db)
	if err != nil {
		h.renderer.renderErrorPage(w, err)
		return
	}
	h.renderer.renderPage(w, "triage", TriagePageData{
		PageData: PageData{
			Title:   "Triage",
			Version: h.renderer.version,
		},
		Sessions:       data.Sessions,
		IgnoredDomains: data.IgnoredDomains,
	})
}

// HandleTabPage handles GET /tabs/{id} — HTML detail view of one tab.
func (h *Handlers) HandleTabPage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.renderer.renderErrorPage(w, err)
		return
	}
	t, err := ops.GetTab(h.db, id)
	if err != nil {
		h.renderer.renderErrorPage(w, err)
		return
	}

	data := TabPageData{
		PageData: PageData{
			Title:   t.Title,
			Version: h.renderer.version,
		},
		Tab: t,
	}
	if t.Summary != nil {
		data.RenderedSummary = renderMarkdown(*t.Summary)
	}
	if t.UserNote != nil {
		data.RenderedNote = renderMarkdown(*t.UserNote)
	}
	h.renderer.renderPage(w, "tab", data)
}

// decodeJSON decodes a JSON request body, mapping failures to 400.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.NewInvalidRequest("invalid JSON body: " + err.Error())
	}
	return nil
}

// pathID parses an integer path segment.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil {
		return 0, errors.NewInvalidRequest(name + " must be an integer")
	}
	return id, nil
}
