package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// AuditEntry represents an audit log entry
type AuditEntry struct {
	ID        string                 `json:"id"`
	DraftID   string                 `json:"draft_id"`
	Action    string                 `json:"action"` // "create_draft", "run_analysis", "toggle_law", "submit_report", etc.
	Actor     string                 `json:"actor"`  // user or system identifier
	Details   map[string]interface{} `json:"details"`
	Timestamp time.Time              `json:"timestamp"`
	CreatedAt time.Time              `json:"created_at"`
}

// SetupAuditTables creates the audit tables if they don't exist
func (s *Store) SetupAuditTables() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS audit_entries (
			id TEXT PRIMARY KEY,
			draft_id TEXT NOT NULL,
			action TEXT NOT NULL,
			actor TEXT NOT NULL,
			details TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (draft_id) REFERENCES drafts(id) ON DELETE CASCADE
		)`,

		`CREATE INDEX IF NOT EXISTS idx_audit_draft_id ON audit_entries(draft_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_entries(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_entries(action)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute audit migration: %w", err)
		}
	}

	return nil
}

// AddAuditEntry adds an audit entry to the database
func (s *Store) AddAuditEntry(ctx context.Context, entry AuditEntry) error {
	if entry.ID == "" {
		entry.ID = fmt.Sprintf("audit_%d", time.Now().UnixNano())
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	entry.CreatedAt = time.Now()

	detailsJSON, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal audit details: %w", err)
	}

	query := `INSERT INTO audit_entries (
		id, draft_id, action, actor, details, timestamp, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		entry.ID, entry.DraftID, entry.Action, entry.Actor,
		string(detailsJSON), entry.Timestamp.Unix(), entry.CreatedAt.Unix())

	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}

	return nil
}

// GetAuditEntries retrieves audit entries for a draft, newest first
func (s *Store) GetAuditEntries(ctx context.Context, draftID string, limit int) ([]AuditEntry, error) {
	query := `SELECT id, draft_id, action, actor, details, timestamp, created_at
		FROM audit_entries WHERE draft_id = ? ORDER BY timestamp DESC`

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, draftID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var entry AuditEntry
		var detailsJSON string
		var timestamp, createdAt int64

		err := rows.Scan(&entry.ID, &entry.DraftID, &entry.Action,
			&entry.Actor, &detailsJSON, &timestamp, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}

		entry.Timestamp = time.Unix(timestamp, 0)
		entry.CreatedAt = time.Unix(createdAt, 0)

		if err := json.Unmarshal([]byte(detailsJSON), &entry.Details); err != nil {
			// If unmarshaling fails, store as string
			entry.Details = map[string]interface{}{"raw": detailsJSON}
		}

		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// LogDraftAction records a draft-level action in the audit trail
func (s *Store) LogDraftAction(ctx context.Context, draftID, action, actor string, details map[string]interface{}) error {
	entry := AuditEntry{
		DraftID: draftID,
		Action:  action,
		Actor:   actor,
		Details: details,
	}
	return s.AddAuditEntry(ctx, entry)
}
