package store

import (
	"context"
	"path/filepath"
	"testing"
)

func TestAuditEntriesFlow(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}
	defer func() { _ = s.Close() }()

	if err := s.SetupAuditTables(); err != nil {
		t.Fatalf("SetupAuditTables error: %v", err)
	}

	ctx := context.Background()

	if err := s.LogDraftAction(ctx, "draft_test", "create_draft", "cli", map[string]interface{}{
		"incident_type": "harassment",
	}); err != nil {
		t.Fatalf("LogDraftAction error: %v", err)
	}
	if err := s.LogDraftAction(ctx, "draft_test", "toggle_law", "api", map[string]interface{}{
		"law_id":   "ipc-354d",
		"included": true,
	}); err != nil {
		t.Fatalf("LogDraftAction error: %v", err)
	}

	entries, err := s.GetAuditEntries(ctx, "draft_test", 0)
	if err != nil {
		t.Fatalf("GetAuditEntries error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	for _, entry := range entries {
		if entry.ID == "" {
			t.Fatalf("expected generated entry id, got empty")
		}
		if entry.DraftID != "draft_test" {
			t.Fatalf("unexpected draft id %q", entry.DraftID)
		}
		if entry.Timestamp.IsZero() || entry.CreatedAt.IsZero() {
			t.Fatalf("expected timestamps to be set: %+v", entry)
		}
	}

	// Details survive the JSON round trip
	found := false
	for _, entry := range entries {
		if entry.Action == "toggle_law" {
			found = true
			if entry.Details["law_id"] != "ipc-354d" {
				t.Fatalf("unexpected details: %+v", entry.Details)
			}
		}
	}
	if !found {
		t.Fatalf("toggle_law entry not found")
	}

	// Limit applies
	limited, err := s.GetAuditEntries(ctx, "draft_test", 1)
	if err != nil {
		t.Fatalf("GetAuditEntries error: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected 1 entry with limit, got %d", len(limited))
	}

	// Other drafts are not visible
	other, err := s.GetAuditEntries(ctx, "other_draft", 0)
	if err != nil {
		t.Fatalf("GetAuditEntries error: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("expected no entries for other draft, got %d", len(other))
	}
}
