package web

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tabtriage/tabtriage/internal/classify"
	"github.com/tabtriage/tabtriage/internal/config"
	"github.com/tabtriage/tabtriage/internal/enrich"
	"github.com/tabtriage/tabtriage/internal/notion"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// NewServer creates and configures the HTTP server: the JSON API the
// extension talks to plus the embedded triage page.
func NewServer(db *sql.DB, cfg *config.Config, orch *enrich.Orchestrator,
	classifier classify.Classifier, nc *notion.Client, version string, log *zap.Logger) *http.Server {
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		log.Fatal("failed to create template sub-FS", zap.Error(err))
	}
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		log.Fatal("failed to create static sub-FS", zap.Error(err))
	}

	h := &Handlers{
		db:         db,
		cfg:        cfg,
		orch:       orch,
		classifier: classifier,
		notion:     nc,
		renderer:   NewRenderer(templateSub, version, log),
		log:        log,
	}

	mux := http.NewServeMux()

	// Capture and enrichment progress
	mux.HandleFunc("POST /api/capture", h.HandleCapture)
	mux.HandleFunc("GET /api/capture/{id}/progress", h.HandleProgress)
	mux.HandleFunc("GET /api/capture/{id}/progress/stream", h.HandleProgressStream)

	// Sessions and ignore list
	mux.HandleFunc("GET /api/sessions", h.HandleSessions)
	mux.HandleFunc("GET /api/sessions/{id}/tabs", h.HandleSessionTabs)
	mux.HandleFunc("GET /api/ignored-domains", h.HandleIgnoredDomains)
	mux.HandleFunc("POST /api/ignored-domains", h.HandleIgnoreDomain)
	mux.HandleFunc("DELETE /api/ignored-domains/{domain...}", h.HandleUnignoreDomain)

	// Close queue and repair; literal segments take precedence over {id}
	mux.HandleFunc("GET /api/tabs/pending-close", h.HandlePendingClose)
	mux.HandleFunc("POST /api/tabs/confirm-close", h.HandleConfirmClose)
	mux.HandleFunc("POST /api/tabs/request-close-bulk", h.HandleRequestCloseBulk)
	mux.HandleFunc("POST /api/tabs/re-summarize-batch", h.HandleReSummarizeBatch)
	mux.HandleFunc("GET /api/tabs/re-summarize-progress/{batch}", h.HandleReSummarizeProgress)
	mux.HandleFunc("GET /api/tabs/pending-re-extract", h.HandlePendingReExtract)
	mux.HandleFunc("POST /api/tabs/request-re-extract-batch", h.HandleReExtractBatch)
	mux.HandleFunc("GET /api/tabs/re-extract-progress/{batch}", h.HandleReExtractProgress)

	// Per-tab operations
	mux.HandleFunc("GET /api/tabs/{id}", h.HandleGetTab)
	mux.HandleFunc("GET /api/tabs/{id}/content", h.HandleTabContent)
	mux.HandleFunc("POST /api/tabs/{id}/request-close", h.HandleRequestClose)
	mux.HandleFunc("POST /api/tabs/{id}/re-summarize", h.HandleReSummarizeTab)
	mux.HandleFunc("POST /api/tabs/{id}/update-content", h.HandleUpdateContent)
	mux.HandleFunc("POST /api/tabs/{id}/request-re-extract", h.HandleRequestReExtract)
	mux.HandleFunc("POST /api/tabs/{id}/star", h.HandleStar)

	// Triage
	mux.HandleFunc("POST /api/triage", h.HandleTriage)
	mux.HandleFunc("POST /api/triage/bulk", h.HandleTriageBulk)
	mux.HandleFunc("GET /api/triage/auto/preview", h.HandleAutoTriagePreview)
	mux.HandleFunc("POST /api/triage/auto", h.HandleAutoTriage)
	mux.HandleFunc("POST /api/triage/auto/undo", h.HandleAutoTriageUndo)
	mux.HandleFunc("GET /api/triage-data", h.HandleTriageData)

	// Search and insights
	mux.HandleFunc("GET /api/search", h.HandleSearch)
	mux.HandleFunc("GET /api/notion/projects", h.HandleNotionProjects)
	mux.HandleFunc("POST /api/insights/analyze", h.HandleAnalyze)
	mux.HandleFunc("GET /api/insights/topics", h.HandleTopics)

	// Pages
	mux.HandleFunc("GET /{$}", h.HandleTriagePage)
	mux.HandleFunc("GET /tabs/{id}", h.HandleTabPage)
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticSub)))

	return &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: corsMiddleware(mux),
	}
}

// corsMiddleware allows cross-origin requests; the browser extension calls
// the API from arbitrary page origins.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
// In-flight enrichment work is waited for before returning.
func Run(srv *http.Server, orch *enrich.Orchestrator, log *zap.Logger) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Info("server running", zap.String("addr", "http://"+srv.Addr))

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		log.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return err
		}
		orch.Wait()
		return nil
	}
}
