package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/veritas-protocol/veritas-console/internal/incident"
	"github.com/veritas-protocol/veritas-console/internal/lawref"
)

// Options controls the HTTP API server behavior.
type Options struct {
	// Bind address, e.g. "127.0.0.1:8080"
	Bind string
	// Token for Authorization: Bearer <token> header. Empty disables auth.
	Token string
	// RPS is max requests per second (approximate). 0 disables rate limiting.
	RPS int
	// Burst is the token bucket size. If 0 and RPS>0, defaults to RPS.
	Burst int
	// MaxBodyBytes caps request body size; defaults to 1 MiB.
	MaxBodyBytes int64
	// Catalog backs GET /api/laws (optional).
	Catalog *lawref.Catalog
	// Logger for minimal logs (optional)
	Logger *log.Logger
}

// Server exposes the draft lifecycle over REST.
type Server struct {
	srv     *http.Server
	opts    Options
	manager *WorkspaceManager
	limiter *simpleLimiter
	logger  *log.Logger
	started int32
}

// NewServer constructs the API server around a workspace manager.
func NewServer(manager *WorkspaceManager, opts Options) (*Server, error) {
	if manager == nil {
		return nil, errors.New("workspace manager required")
	}
	if opts.Bind == "" {
		opts.Bind = "127.0.0.1:8080"
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 * 1024 * 1024 // 1 MiB
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[http-api] ", log.LstdFlags)
	}
	var lim *simpleLimiter
	if opts.RPS > 0 {
		if opts.Burst <= 0 {
			opts.Burst = opts.RPS
		}
		lim = newSimpleLimiter(opts.RPS, opts.Burst)
	}

	s := &Server{
		opts:    opts,
		manager: manager,
		limiter: lim,
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if c := manager.Collector(); c != nil {
		mux.Handle("GET /metrics", c.Handler())
	}

	api := http.NewServeMux()
	api.HandleFunc("GET /api/laws", s.handleListLaws)
	api.HandleFunc("POST /api/drafts", s.handleCreateDraft)
	api.HandleFunc("GET /api/drafts", s.handleListDrafts)
	api.HandleFunc("GET /api/drafts/{id}", s.handleGetDraft)
	api.HandleFunc("DELETE /api/drafts/{id}", s.handleDeleteDraft)
	api.HandleFunc("POST /api/drafts/{id}/analyze", s.handleAnalyze)
	api.HandleFunc("POST /api/drafts/{id}/timeline", s.handleAddTimelineEvent)
	api.HandleFunc("PUT /api/drafts/{id}/timeline/{eventID}", s.handleUpdateTimelineEvent)
	api.HandleFunc("DELETE /api/drafts/{id}/timeline/{eventID}", s.handleDeleteTimelineEvent)
	api.HandleFunc("POST /api/drafts/{id}/timeline/{eventID}/accept", s.handleAcceptSuggestion)
	api.HandleFunc("POST /api/drafts/{id}/evidence", s.handleAddEvidence)
	api.HandleFunc("PUT /api/drafts/{id}/evidence/{evidenceID}", s.handleUpdateEvidence)
	api.HandleFunc("DELETE /api/drafts/{id}/evidence/{evidenceID}", s.handleDeleteEvidence)
	api.HandleFunc("PUT /api/drafts/{id}/laws/{lawID}", s.handleToggleLaw)
	api.HandleFunc("POST /api/drafts/{id}/chat", s.handleChat)
	api.HandleFunc("POST /api/drafts/{id}/save", s.handleSave)
	api.HandleFunc("POST /api/drafts/{id}/submit", s.handleSubmit)
	api.HandleFunc("GET /api/drafts/{id}/audit", s.handleAudit)

	mux.Handle("/api/", s.withAuth(http.Handler(api)))

	var handler http.Handler = mux
	if c := manager.Collector(); c != nil {
		handler = c.InstrumentHandler(handler)
	}

	s.srv = &http.Server{
		Addr:         opts.Bind,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Handler exposes the root handler for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start starts the HTTP server concurrently and attaches to ctx for shutdown.
func (s *Server) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.started, 0, 1) {
		return errors.New("http api server already started")
	}
	// Bind early to surface errors synchronously
	ln, err := net.Listen("tcp", s.opts.Bind)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.opts.Bind, err)
	}
	s.logger.Printf("HTTP API listening on http://%s rps=%d burst=%d auth=%v",
		s.opts.Bind, s.opts.RPS, s.opts.Burst, s.opts.Token != "")

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Printf("graceful shutdown failed: %v", err)
		}
		if s.limiter != nil {
			s.limiter.Close()
		}
	}()
	return nil
}

func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Token != "" {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") || strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")) != s.opts.Token {
				w.Header().Set("WWW-Authenticate", `Bearer realm="veritas-console"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		if s.limiter != nil {
			if err := s.limiter.Wait(r.Context()); err != nil {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
		}
		r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

// draftView is the API representation of a draft plus workspace flags that
// clients poll during background work.
type draftView struct {
	incident.Draft
	CanSubmit     bool               `json:"can_submit"`
	IsAnalyzing   bool               `json:"is_analyzing"`
	IsChatLoading bool               `json:"is_chat_loading"`
	Busy          incident.BusyState `json:"busy"`
	AnalysisError string             `json:"analysis_error,omitempty"`
}

func viewOf(ws *incident.Workspace) draftView {
	v := draftView{
		Draft:         ws.Snapshot(),
		CanSubmit:     ws.CanSubmit(),
		IsAnalyzing:   ws.IsAnalyzing(),
		IsChatLoading: ws.IsChatLoading(),
		Busy:          ws.Busy(),
	}
	if err := ws.AnalysisErr(); err != nil {
		v.AnalysisError = err.Error()
	}
	return v
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListLaws(w http.ResponseWriter, r *http.Request) {
	laws := []lawref.Law{}
	if s.opts.Catalog != nil {
		laws = s.opts.Catalog.Laws()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"laws": laws})
}

func (s *Server) handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	var seed incident.WizardSeed
	if err := json.NewDecoder(r.Body).Decode(&seed); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(seed.Title) == "" {
		http.Error(w, "title is required", http.StatusBadRequest)
		return
	}
	ws, err := s.manager.Create(r.Context(), seed)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(ws))
}

func (s *Server) handleListDrafts(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	if q != "" {
		results, err := s.manager.Search(r.Context(), q, limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"drafts": results})
		return
	}

	summaries, err := s.manager.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"drafts": summaries})
}

func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.openWorkspace(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(ws))
}

func (s *Server) handleDeleteDraft(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.manager.Delete(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.openWorkspace(w, r)
	if !ok {
		return
	}
	if err := ws.StartAnalysis(); err != nil {
		s.writeWorkspaceError(w, err)
		return
	}
	s.manager.Collector().AnalysisRun()
	s.manager.LogAction(r.Context(), ws.ID(), "run_analysis", nil)
	writeJSON(w, http.StatusAccepted, viewOf(ws))
}

func (s *Server) handleAddTimelineEvent(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.openWorkspace(w, r)
	if !ok {
		return
	}
	var ev incident.TimelineEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(ev.Title) == "" {
		http.Error(w, "title is required", http.StatusBadRequest)
		return
	}
	added := ws.AddTimelineEvent(ev)
	s.persist(r.Context(), ws)
	writeJSON(w, http.StatusCreated, added)
}

func (s *Server) handleUpdateTimelineEvent(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.openWorkspace(w, r)
	if !ok {
		return
	}
	var ev incident.TimelineEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	ev.ID = r.PathValue("eventID")
	ws.UpdateTimelineEvent(ev)
	s.persist(r.Context(), ws)
	writeJSON(w, http.StatusOK, viewOf(ws))
}

func (s *Server) handleDeleteTimelineEvent(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.openWorkspace(w, r)
	if !ok {
		return
	}
	ws.DeleteTimelineEvent(r.PathValue("eventID"))
	s.persist(r.Context(), ws)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAcceptSuggestion(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.openWorkspace(w, r)
	if !ok {
		return
	}
	ws.AcceptSuggestion(r.PathValue("eventID"))
	s.persist(r.Context(), ws)
	writeJSON(w, http.StatusOK, viewOf(ws))
}

func (s *Server) handleAddEvidence(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.openWorkspace(w, r)
	if !ok {
		return
	}
	var req struct {
		Files []incident.EvidenceFile `json:"files"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Files) == 0 {
		http.Error(w, "at least one file is required", http.StatusBadRequest)
		return
	}
	added := ws.AddEvidence(req.Files)
	s.manager.LogAction(r.Context(), ws.ID(), "add_evidence", map[string]interface{}{
		"count": len(added),
	})
	s.persist(r.Context(), ws)
	writeJSON(w, http.StatusCreated, map[string]interface{}{"evidence": added})
}

func (s *Server) handleUpdateEvidence(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.openWorkspace(w, r)
	if !ok {
		return
	}
	var req struct {
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	ws.UpdateEvidenceDescription(r.PathValue("evidenceID"), req.Description)
	s.persist(r.Context(), ws)
	writeJSON(w, http.StatusOK, viewOf(ws))
}

func (s *Server) handleDeleteEvidence(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.openWorkspace(w, r)
	if !ok {
		return
	}
	ws.DeleteEvidence(r.PathValue("evidenceID"))
	s.manager.LogAction(r.Context(), ws.ID(), "delete_evidence", map[string]interface{}{
		"evidence_id": r.PathValue("evidenceID"),
	})
	s.persist(r.Context(), ws)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggleLaw(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.openWorkspace(w, r)
	if !ok {
		return
	}
	var req struct {
		IncludedInReport bool `json:"included_in_report"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	ws.ToggleLawIncluded(r.PathValue("lawID"), req.IncludedInReport)
	s.manager.LogAction(r.Context(), ws.ID(), "toggle_law", map[string]interface{}{
		"law_id":   r.PathValue("lawID"),
		"included": req.IncludedInReport,
	})
	s.persist(r.Context(), ws)
	writeJSON(w, http.StatusOK, viewOf(ws))
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.openWorkspace(w, r)
	if !ok {
		return
	}
	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}
	msg := ws.SendMessage(req.Message)
	s.manager.Collector().ChatReply()
	writeJSON(w, http.StatusAccepted, msg)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.openWorkspace(w, r)
	if !ok {
		return
	}
	previousID := ws.ID()
	if err := ws.SaveDraft(r.Context()); err != nil {
		s.writeWorkspaceError(w, err)
		return
	}
	if err := s.manager.Persist(r.Context(), ws, previousID); err != nil {
		s.logger.Printf("persist after save failed: %v", err)
	}
	s.manager.LogAction(r.Context(), ws.ID(), "save_draft", nil)
	writeJSON(w, http.StatusOK, viewOf(ws))
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.openWorkspace(w, r)
	if !ok {
		return
	}
	previousID := ws.ID()
	if err := ws.SubmitToPolice(r.Context()); err != nil {
		s.manager.Collector().Submission("failed")
		s.manager.PublishSubmission(r.Context(), previousID, "", "failed", err.Error())
		s.writeWorkspaceError(w, err)
		return
	}
	if err := s.manager.Persist(r.Context(), ws, previousID); err != nil {
		s.logger.Printf("persist after submit failed: %v", err)
	}
	s.manager.Collector().Submission("accepted")
	s.manager.PublishSubmission(r.Context(), ws.ID(), ws.ID(), "accepted", "")
	s.manager.LogAction(r.Context(), ws.ID(), "submit_report", nil)
	writeJSON(w, http.StatusOK, viewOf(ws))
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	entries, err := s.manager.Audit(r.Context(), id, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// openWorkspace resolves the {id} path value to a live workspace, writing
// the error response itself when that fails.
func (s *Server) openWorkspace(w http.ResponseWriter, r *http.Request) (*incident.Workspace, bool) {
	id := r.PathValue("id")
	ws, err := s.manager.Open(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	if ws == nil {
		http.Error(w, "draft not found", http.StatusNotFound)
		return nil, false
	}
	return ws, true
}

func (s *Server) persist(ctx context.Context, ws *incident.Workspace) {
	if err := s.manager.Persist(ctx, ws, ""); err != nil {
		s.logger.Printf("persist failed: %v", err)
	}
}

func (s *Server) writeWorkspaceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, incident.ErrBusy):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, incident.ErrNotReady):
		http.Error(w, err.Error(), http.StatusPreconditionFailed)
	case errors.Is(err, incident.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, incident.ErrClosed):
		http.Error(w, err.Error(), http.StatusGone)
	default:
		http.Error(w, err.Error(), http.StatusBadGateway)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
