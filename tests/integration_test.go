package main

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/veritas-protocol/veritas-console/internal/assist"
	"github.com/veritas-protocol/veritas-console/internal/incident"
	"github.com/veritas-protocol/veritas-console/internal/lawref"
	"github.com/veritas-protocol/veritas-console/internal/police"
	"github.com/veritas-protocol/veritas-console/internal/store"
)

// TestDraftLifecycleWorkflow walks a draft through the complete flow:
// report, analysis, evidence, law selection, submission, persistence.
func TestDraftLifecycleWorkflow(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "integration.db")

	st, err := store.NewStore(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer st.Close()

	if err := st.SetupAuditTables(); err != nil {
		t.Fatalf("Failed to set up audit tables: %v", err)
	}

	ctx := context.Background()
	logger := log.New(os.Stdout, "[TEST] ", log.LstdFlags)

	catalog := lawref.NewCatalog(logger)
	provider := assist.NewRuleProvider(catalog, assist.DefaultTemplates())
	submitter := police.NewSimulator(0, logger)

	opts := incident.Options{
		Analyzer:  provider,
		Responder: provider,
		Submitter: submitter,
		Logger:    logger,
		Delays:    incident.Delays{},
	}

	ws := incident.NewWorkspace(incident.WizardSeed{
		IncidentType:      incident.TypeHarassment,
		Title:             "Threatening messages on Instagram",
		Description:       "Repeated threatening DMs from an anonymous account",
		DateOccurred:      "2026-08-01",
		PlatformsInvolved: "Instagram, WhatsApp",
	}, opts)
	defer ws.Close()

	draftID := ws.ID()

	t.Run("InitialState", func(t *testing.T) {
		snapshot := ws.Snapshot()
		if snapshot.Status != incident.StatusDraft {
			t.Errorf("Expected status draft, got %s", snapshot.Status)
		}
		if len(snapshot.Timeline) != 1 {
			t.Errorf("Expected 1 seed timeline event, got %d", len(snapshot.Timeline))
		}
		if ws.CanSubmit() {
			t.Error("New draft must not be submittable")
		}
	})

	t.Run("Analysis", func(t *testing.T) {
		if err := ws.StartAnalysis(); err != nil {
			t.Fatalf("StartAnalysis failed: %v", err)
		}
		ws.Wait()
		if err := ws.AnalysisErr(); err != nil {
			t.Fatalf("Analysis failed: %v", err)
		}

		snapshot := ws.Snapshot()
		if snapshot.Status != incident.StatusReady {
			t.Fatalf("Expected status ready after analysis, got %s", snapshot.Status)
		}
		if len(snapshot.IdentifiedLaws) == 0 {
			t.Fatal("Expected identified laws after analysis")
		}
		violated := 0
		for _, law := range snapshot.IdentifiedLaws {
			if law.IsViolated {
				violated++
			}
		}
		if violated == 0 {
			t.Fatal("Expected at least one violated law for a harassment draft")
		}
	})

	t.Run("Evidence", func(t *testing.T) {
		added := ws.AddEvidence([]incident.EvidenceFile{
			{Name: "proof.png", Size: 2048, MIMEType: "image/png"},
		})
		if len(added) != 1 {
			t.Fatalf("Expected 1 evidence record, got %d", len(added))
		}
		if added[0].FileType != incident.FileImage {
			t.Errorf("Expected image file type, got %s", added[0].FileType)
		}
		if !added[0].IsEncrypted {
			t.Error("Evidence must be marked encrypted at rest")
		}
	})

	t.Run("LawSelection", func(t *testing.T) {
		snapshot := ws.Snapshot()
		var pick string
		for _, law := range snapshot.IdentifiedLaws {
			if law.IsViolated {
				pick = law.ID
				break
			}
		}
		ws.ToggleLawIncluded(pick, true)

		if !ws.CanSubmit() {
			t.Fatal("Draft should be submittable with evidence and an included violated law")
		}
	})

	t.Run("PersistAndReload", func(t *testing.T) {
		if err := st.SaveDraft(ctx, ws.Snapshot()); err != nil {
			t.Fatalf("SaveDraft failed: %v", err)
		}
		if err := st.LogDraftAction(ctx, draftID, "save_draft", "test", nil); err != nil {
			t.Fatalf("LogDraftAction failed: %v", err)
		}

		loaded, err := st.GetDraft(ctx, draftID)
		if err != nil {
			t.Fatalf("GetDraft failed: %v", err)
		}
		if loaded == nil {
			t.Fatal("Draft not found after save")
		}
		if loaded.Status != incident.StatusReady {
			t.Errorf("Expected reloaded status ready, got %s", loaded.Status)
		}
		if len(loaded.Evidence) != 1 {
			t.Errorf("Expected 1 evidence record after reload, got %d", len(loaded.Evidence))
		}
		if len(loaded.IdentifiedLaws) == 0 {
			t.Error("Expected laws to survive reload")
		}
	})

	t.Run("Submission", func(t *testing.T) {
		if err := ws.SubmitToPolice(ctx); err != nil {
			t.Fatalf("SubmitToPolice failed: %v", err)
		}

		snapshot := ws.Snapshot()
		if snapshot.Status != incident.StatusSubmitted {
			t.Fatalf("Expected status submitted, got %s", snapshot.Status)
		}
		if snapshot.ID == draftID {
			t.Error("Expected the server-assigned case id to replace the local draft id")
		}

		payloads := submitter.Payloads()
		if len(payloads) != 1 {
			t.Fatalf("Expected 1 submitted payload, got %d", len(payloads))
		}
		payload, ok := payloads[snapshot.ID]
		if !ok {
			t.Fatalf("Submitted payload not stored under case id %s", snapshot.ID)
		}
		if payload.IncidentType != "harassment" {
			t.Errorf("Unexpected incident type in payload: %s", payload.IncidentType)
		}
		if payload.Jurisdiction != police.DefaultJurisdiction {
			t.Errorf("Unexpected jurisdiction: %s", payload.Jurisdiction)
		}
	})

	t.Run("FinalPersistence", func(t *testing.T) {
		snapshot := ws.Snapshot()

		// The submitted draft replaces the local one under the new id
		if err := st.SaveDraft(ctx, snapshot); err != nil {
			t.Fatalf("SaveDraft failed: %v", err)
		}
		if err := st.DeleteDraft(ctx, draftID); err != nil {
			t.Fatalf("DeleteDraft failed: %v", err)
		}

		summaries, err := st.ListDrafts(ctx)
		if err != nil {
			t.Fatalf("ListDrafts failed: %v", err)
		}
		if len(summaries) != 1 {
			t.Fatalf("Expected exactly 1 stored draft, got %d", len(summaries))
		}
		if summaries[0].ID != snapshot.ID {
			t.Errorf("Expected stored id %s, got %s", snapshot.ID, summaries[0].ID)
		}
		if summaries[0].Status != incident.StatusSubmitted {
			t.Errorf("Expected stored status submitted, got %s", summaries[0].Status)
		}
	})
}

// TestChatWorkflow exercises the assistant round trip against the offline
// rule provider.
func TestChatWorkflow(t *testing.T) {
	logger := log.New(os.Stdout, "[TEST] ", log.LstdFlags)
	catalog := lawref.NewCatalog(logger)
	provider := assist.NewRuleProvider(catalog, assist.DefaultTemplates())

	ws := incident.NewWorkspace(incident.WizardSeed{
		IncidentType: incident.TypeStalking,
		Title:        "Being followed online",
	}, incident.Options{
		Analyzer:  provider,
		Responder: provider,
		Logger:    logger,
		Delays:    incident.Delays{},
	})
	defer ws.Close()

	msg := ws.SendMessage("what evidence should I collect?")
	if msg.Role != incident.RoleUser {
		t.Fatalf("Expected optimistic user message, got role %s", msg.Role)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		snapshot := ws.Snapshot()
		if len(snapshot.Chat) == 2 && !ws.IsChatLoading() {
			if snapshot.Chat[1].Role != incident.RoleAssistant {
				t.Fatalf("Expected assistant reply, got role %s", snapshot.Chat[1].Role)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for assistant reply")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
