package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritas-protocol/veritas-console/internal/incident"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleDraft() incident.Draft {
	now := time.Now().Truncate(time.Second)
	return incident.Draft{
		ID:                "draft-1",
		Type:              incident.TypeHarassment,
		Title:             "Threatening messages on Instagram",
		Description:       "Repeated threatening DMs",
		DateOccurred:      now.AddDate(0, 0, -3),
		PlatformsInvolved: []string{"Instagram", "WhatsApp"},
		PerpetratorInfo:   "anonymous account",
		Status:            incident.StatusReady,
		CreatedAt:         now,
		UpdatedAt:         now,
		Timeline: []incident.TimelineEvent{
			{ID: "t1", Type: incident.EventIncident, Title: "Incident Reported", Timestamp: now},
			{ID: "t2", Type: incident.EventEvidence, Title: "Evidence Added", Timestamp: now, LinkedEvidenceIDs: []string{"e1"}},
		},
		Evidence: []incident.Evidence{
			{ID: "e1", FileName: "proof.png", FileSize: 2048, FileType: incident.FileImage, MIMEType: "image/png", UploadedAt: now, IsEncrypted: true, Description: "screenshot"},
		},
		IdentifiedLaws: []incident.LawViolation{
			{ID: "ipc-354d", Name: "Stalking", Section: "IPC §354D", Jurisdiction: "IN", Severity: incident.SeverityHigh, IsViolated: true, Confidence: 86, IncludedInReport: true},
			{ID: "it-act-66e", Name: "Violation of Privacy", Section: "IT Act §66E", Severity: incident.SeverityMedium, Confidence: 54},
		},
		Chat: []incident.ChatMessage{
			{ID: "c1", Role: incident.RoleUser, Content: "what now?", Timestamp: now},
			{ID: "c2", Role: incident.RoleAssistant, Content: "add evidence", Timestamp: now},
		},
	}
}

func TestNewStore(t *testing.T) {
	s := newTestStore(t)

	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table'").Scan(&count)
	require.NoError(t, err)
	assert.Greater(t, count, 0, "Expected tables to be created")
}

func TestSaveAndGetDraft(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d := sampleDraft()
	require.NoError(t, s.SaveDraft(ctx, d))

	got, err := s.GetDraft(ctx, d.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, d.ID, got.ID)
	assert.Equal(t, d.Type, got.Type)
	assert.Equal(t, d.Title, got.Title)
	assert.Equal(t, d.Status, got.Status)
	assert.Equal(t, d.PlatformsInvolved, got.PlatformsInvolved)
	assert.Equal(t, d.PerpetratorInfo, got.PerpetratorInfo)
	assert.Equal(t, d.DateOccurred.Unix(), got.DateOccurred.Unix())

	// Collections round-trip in order
	require.Len(t, got.Timeline, 2)
	assert.Equal(t, "t1", got.Timeline[0].ID)
	assert.Equal(t, []string{"e1"}, got.Timeline[1].LinkedEvidenceIDs)

	require.Len(t, got.Evidence, 1)
	assert.Equal(t, incident.FileImage, got.Evidence[0].FileType)
	assert.True(t, got.Evidence[0].IsEncrypted)

	require.Len(t, got.IdentifiedLaws, 2)
	assert.Equal(t, "ipc-354d", got.IdentifiedLaws[0].ID)
	assert.True(t, got.IdentifiedLaws[0].IsViolated)
	assert.True(t, got.IdentifiedLaws[0].IncludedInReport)
	assert.Equal(t, 86, got.IdentifiedLaws[0].Confidence)

	require.Len(t, got.Chat, 2)
	assert.Equal(t, incident.RoleUser, got.Chat[0].Role)
	assert.Equal(t, incident.RoleAssistant, got.Chat[1].Role)
}

func TestGetDraftMissing(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetDraft(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSaveDraftReplacesCollections(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d := sampleDraft()
	require.NoError(t, s.SaveDraft(ctx, d))

	// Remove an evidence record and a law, then save again
	d.Evidence = nil
	d.IdentifiedLaws = d.IdentifiedLaws[:1]
	d.Chat = append(d.Chat, incident.ChatMessage{ID: "c3", Role: incident.RoleUser, Content: "done", Timestamp: time.Now()})
	require.NoError(t, s.SaveDraft(ctx, d))

	got, err := s.GetDraft(ctx, d.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, got.Evidence)
	assert.Len(t, got.IdentifiedLaws, 1)
	assert.Len(t, got.Chat, 3)
}

func TestSaveDraftRequiresID(t *testing.T) {
	s := newTestStore(t)
	err := s.SaveDraft(context.Background(), incident.Draft{Title: "no id"})
	assert.Error(t, err)
}

func TestListDrafts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older := sampleDraft()
	older.ID = "draft-old"
	older.CreatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, s.SaveDraft(ctx, older))

	newer := sampleDraft()
	newer.ID = "draft-new"
	newer.Title = "Fresh case"
	require.NoError(t, s.SaveDraft(ctx, newer))

	summaries, err := s.ListDrafts(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	// Newest first
	assert.Equal(t, "draft-new", summaries[0].ID)
	assert.Equal(t, "draft-old", summaries[1].ID)

	assert.Equal(t, 1, summaries[0].EvidenceCount)
	assert.Equal(t, 2, summaries[0].LawCount)
	assert.Equal(t, incident.StatusReady, summaries[0].Status)
}

func TestDeleteDraft(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d := sampleDraft()
	require.NoError(t, s.SaveDraft(ctx, d))
	require.NoError(t, s.DeleteDraft(ctx, d.ID))

	got, err := s.GetDraft(ctx, d.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Owned rows are gone too
	for _, table := range []string{"timeline_events", "evidence", "law_violations", "chat_messages"} {
		var count int
		require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM "+table+" WHERE draft_id = ?", d.ID).Scan(&count))
		assert.Zero(t, count, "table %s", table)
	}
}

func TestSearchDrafts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := sampleDraft()
	a.ID = "draft-a"
	a.Title = "Threatening messages on Instagram"
	require.NoError(t, s.SaveDraft(ctx, a))

	b := sampleDraft()
	b.ID = "draft-b"
	b.Title = "Fake bank SMS"
	b.Description = "phishing link in a text message"
	require.NoError(t, s.SaveDraft(ctx, b))

	results, err := s.SearchDrafts(ctx, "Instagram", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "draft-a", results[0].ID)

	results, err = s.SearchDrafts(ctx, "phishing", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "draft-b", results[0].ID)

	results, err = s.SearchDrafts(ctx, "ransomware", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}
