package httpapi

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/veritas-protocol/veritas-console/internal/bus"
	"github.com/veritas-protocol/veritas-console/internal/incident"
	"github.com/veritas-protocol/veritas-console/internal/metrics"
	"github.com/veritas-protocol/veritas-console/internal/store"
)

// WorkspaceManager owns the set of live draft workspaces and the bridge to
// persistent storage. Every draft has at most one workspace at a time; all
// API mutations go through it.
type WorkspaceManager struct {
	mu         sync.Mutex
	workspaces map[string]*incident.Workspace

	store     *store.Store
	eventBus  bus.Bus
	collector *metrics.Collector
	opts      incident.Options
	logger    *log.Logger
}

// NewWorkspaceManager wires a manager around storage, the event bus and the
// workspace collaborators (analyzer, responder, submitter).
func NewWorkspaceManager(st *store.Store, eventBus bus.Bus, collector *metrics.Collector, opts incident.Options) *WorkspaceManager {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &WorkspaceManager{
		workspaces: make(map[string]*incident.Workspace),
		store:      st,
		eventBus:   eventBus,
		collector:  collector,
		opts:       opts,
		logger:     logger,
	}
}

// Create builds a fresh draft from wizard seed data, persists it, and
// registers a workspace for it.
func (m *WorkspaceManager) Create(ctx context.Context, seed incident.WizardSeed) (*incident.Workspace, error) {
	ws := incident.NewWorkspace(seed, m.opts)
	snapshot := ws.Snapshot()

	if m.store != nil {
		if err := m.store.SaveDraft(ctx, snapshot); err != nil {
			ws.Close()
			return nil, fmt.Errorf("persist new draft: %w", err)
		}
		_ = m.store.LogDraftAction(ctx, snapshot.ID, "create_draft", "api", map[string]interface{}{
			"incident_type": string(snapshot.Type),
			"title":         snapshot.Title,
		})
	}

	m.mu.Lock()
	m.workspaces[snapshot.ID] = ws
	m.mu.Unlock()

	m.collector.DraftCreated()
	m.publishDraft(ctx, snapshot, "created")
	return ws, nil
}

// Get returns the live workspace for a draft id, or nil if none is open.
func (m *WorkspaceManager) Get(id string) *incident.Workspace {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.workspaces[id]
}

// Open returns the live workspace for a draft, loading it from storage when
// it is not already open. Returns (nil, nil) when the draft does not exist.
func (m *WorkspaceManager) Open(ctx context.Context, id string) (*incident.Workspace, error) {
	m.mu.Lock()
	if ws, ok := m.workspaces[id]; ok {
		m.mu.Unlock()
		return ws, nil
	}
	m.mu.Unlock()

	if m.store == nil {
		return nil, nil
	}
	draft, err := m.store.GetDraft(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load draft %s: %w", id, err)
	}
	if draft == nil {
		return nil, nil
	}

	ws := incident.NewWorkspaceFromDraft(draft, m.opts)

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another request may have opened it while we were loading.
	if existing, ok := m.workspaces[id]; ok {
		ws.Close()
		return existing, nil
	}
	m.workspaces[id] = ws
	return ws, nil
}

// Persist writes the current workspace snapshot back to storage. The
// workspace id may have changed after a successful remote save, so the map
// key is refreshed too.
func (m *WorkspaceManager) Persist(ctx context.Context, ws *incident.Workspace, previousID string) error {
	snapshot := ws.Snapshot()

	if previousID != "" && previousID != snapshot.ID {
		m.mu.Lock()
		delete(m.workspaces, previousID)
		m.workspaces[snapshot.ID] = ws
		m.mu.Unlock()
		if m.store != nil {
			if err := m.store.DeleteDraft(ctx, previousID); err != nil {
				m.logger.Printf("failed to drop superseded draft %s: %v", previousID, err)
			}
		}
	}

	if m.store == nil {
		return nil
	}
	if err := m.store.SaveDraft(ctx, snapshot); err != nil {
		return fmt.Errorf("persist draft %s: %w", snapshot.ID, err)
	}
	return nil
}

// Delete closes the workspace (if open) and removes the draft from storage.
func (m *WorkspaceManager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	ws, ok := m.workspaces[id]
	if ok {
		delete(m.workspaces, id)
	}
	m.mu.Unlock()

	if ok {
		ws.Close()
	}

	if m.store != nil {
		if err := m.store.DeleteDraft(ctx, id); err != nil {
			return fmt.Errorf("delete draft %s: %w", id, err)
		}
	}

	if m.eventBus != nil {
		_ = m.eventBus.PublishDraftEvent(ctx, bus.DraftMessage{
			DraftID:   id,
			Action:    "deleted",
			Timestamp: time.Now().Unix(),
		})
	}
	return nil
}

// List returns stored draft summaries, newest first.
func (m *WorkspaceManager) List(ctx context.Context) ([]store.DraftSummary, error) {
	if m.store == nil {
		return nil, nil
	}
	return m.store.ListDrafts(ctx)
}

// Search performs full-text search over stored drafts.
func (m *WorkspaceManager) Search(ctx context.Context, query string, limit int) ([]store.DraftSummary, error) {
	if m.store == nil {
		return nil, nil
	}
	return m.store.SearchDrafts(ctx, query, limit)
}

// Audit returns the audit trail for a draft.
func (m *WorkspaceManager) Audit(ctx context.Context, id string, limit int) ([]store.AuditEntry, error) {
	if m.store == nil {
		return nil, nil
	}
	return m.store.GetAuditEntries(ctx, id, limit)
}

// LogAction records a draft action in the audit trail, best effort.
func (m *WorkspaceManager) LogAction(ctx context.Context, draftID, action string, details map[string]interface{}) {
	if m.store == nil {
		return
	}
	if err := m.store.LogDraftAction(ctx, draftID, action, "api", details); err != nil {
		m.logger.Printf("audit write failed for draft %s: %v", draftID, err)
	}
}

// CloseAll tears down every open workspace, persisting final snapshots.
func (m *WorkspaceManager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	workspaces := make([]*incident.Workspace, 0, len(m.workspaces))
	for _, ws := range m.workspaces {
		workspaces = append(workspaces, ws)
	}
	m.workspaces = make(map[string]*incident.Workspace)
	m.mu.Unlock()

	for _, ws := range workspaces {
		ws.Close()
		if m.store != nil {
			snapshot := ws.Snapshot()
			if err := m.store.SaveDraft(ctx, snapshot); err != nil {
				m.logger.Printf("failed to persist draft %s on shutdown: %v", snapshot.ID, err)
			}
		}
	}
}

// Collector exposes the metrics collector for callers that record counters.
func (m *WorkspaceManager) Collector() *metrics.Collector {
	return m.collector
}

func (m *WorkspaceManager) publishDraft(ctx context.Context, d incident.Draft, action string) {
	if m.eventBus == nil {
		return
	}
	err := m.eventBus.PublishDraftEvent(ctx, bus.DraftMessage{
		DraftID:      d.ID,
		IncidentType: string(d.Type),
		Status:       string(d.Status),
		Action:       action,
		Timestamp:    time.Now().Unix(),
	})
	if err != nil {
		m.logger.Printf("bus publish failed for draft %s: %v", d.ID, err)
	}
}

// PublishSubmission reports a submission outcome on the bus, best effort.
func (m *WorkspaceManager) PublishSubmission(ctx context.Context, draftID, incidentID, result, errText string) {
	if m.eventBus == nil {
		return
	}
	err := m.eventBus.PublishSubmission(ctx, bus.SubmissionMessage{
		DraftID:    draftID,
		IncidentID: incidentID,
		Result:     result,
		Error:      errText,
		Timestamp:  time.Now().Unix(),
	})
	if err != nil {
		m.logger.Printf("bus publish failed for submission %s: %v", draftID, err)
	}
}
