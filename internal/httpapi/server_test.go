package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritas-protocol/veritas-console/internal/assist"
	"github.com/veritas-protocol/veritas-console/internal/bus"
	"github.com/veritas-protocol/veritas-console/internal/incident"
	"github.com/veritas-protocol/veritas-console/internal/lawref"
	"github.com/veritas-protocol/veritas-console/internal/metrics"
	"github.com/veritas-protocol/veritas-console/internal/police"
	"github.com/veritas-protocol/veritas-console/internal/store"
)

type testEnv struct {
	srv     *httptest.Server
	manager *WorkspaceManager
	token   string
}

func newTestEnv(t *testing.T, token string) *testEnv {
	t.Helper()

	st, err := store.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.SetupAuditTables())

	logger := log.New(io.Discard, "", 0)
	catalog := lawref.NewCatalog(logger)
	provider := assist.NewRuleProvider(catalog, assist.DefaultTemplates())

	collector, err := metrics.NewCollector()
	require.NoError(t, err)

	manager := NewWorkspaceManager(st, bus.NewNullBus(logger), collector, incident.Options{
		Analyzer:  provider,
		Responder: provider,
		Submitter: police.NewSimulator(0, logger),
		Logger:    logger,
		// Tests poll, no pacing needed.
		Delays: incident.Delays{},
	})

	server, err := NewServer(manager, Options{
		Bind:    "127.0.0.1:0",
		Token:   token,
		Catalog: catalog,
		Logger:  logger,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, manager: manager, token: token}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

// fetchView polls a draft without failing the test, for use inside
// require.Eventually conditions.
func (e *testEnv) fetchView(id string) (draftView, bool) {
	req, err := http.NewRequest(http.MethodGet, e.srv.URL+"/api/drafts/"+id, nil)
	if err != nil {
		return draftView{}, false
	}
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return draftView{}, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return draftView{}, false
	}
	var view draftView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return draftView{}, false
	}
	return view, true
}

func createDraft(t *testing.T, env *testEnv) draftView {
	t.Helper()
	resp := env.do(t, http.MethodPost, "/api/drafts", incident.WizardSeed{
		IncidentType:      incident.TypeHarassment,
		Title:             "Threatening messages on Instagram",
		Description:       "Repeated threatening DMs with explicit images",
		PlatformsInvolved: "Instagram, WhatsApp",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var view draftView
	decode(t, resp, &view)
	require.NotEmpty(t, view.ID)
	return view
}

func TestCreateAndGetDraft(t *testing.T) {
	env := newTestEnv(t, "")

	view := createDraft(t, env)
	assert.Equal(t, incident.StatusDraft, view.Status)
	assert.Equal(t, []string{"Instagram", "WhatsApp"}, view.PlatformsInvolved)
	assert.False(t, view.CanSubmit)
	require.Len(t, view.Timeline, 1)

	resp := env.do(t, http.MethodGet, "/api/drafts/"+view.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got draftView
	decode(t, resp, &got)
	assert.Equal(t, view.ID, got.ID)
}

func TestCreateDraftValidation(t *testing.T) {
	env := newTestEnv(t, "")

	resp := env.do(t, http.MethodPost, "/api/drafts", incident.WizardSeed{Description: "no title"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetDraftNotFound(t *testing.T) {
	env := newTestEnv(t, "")

	resp := env.do(t, http.MethodGet, "/api/drafts/missing", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBearerAuth(t *testing.T) {
	env := newTestEnv(t, "sekrit")

	// Wrong token
	req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/api/drafts", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// No token at all
	resp2, err := http.Get(env.srv.URL + "/api/drafts")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)

	// Health stays open
	resp3, err := http.Get(env.srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp3.Body.Close()
	assert.Equal(t, http.StatusOK, resp3.StatusCode)

	// Correct token
	resp4 := env.do(t, http.MethodGet, "/api/drafts", nil)
	defer resp4.Body.Close()
	assert.Equal(t, http.StatusOK, resp4.StatusCode)
}

func TestAnalyzeLifecycle(t *testing.T) {
	env := newTestEnv(t, "")
	view := createDraft(t, env)

	resp := env.do(t, http.MethodPost, "/api/drafts/"+view.ID+"/analyze", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	// Background pipeline finishes quickly with zero delays
	require.Eventually(t, func() bool {
		got, ok := env.fetchView(view.ID)
		return ok && got.Status == incident.StatusReady
	}, 5*time.Second, 10*time.Millisecond)

	r := env.do(t, http.MethodGet, "/api/drafts/"+view.ID, nil)
	var got draftView
	decode(t, r, &got)
	require.Len(t, got.IdentifiedLaws, 3)

	violated := 0
	for _, law := range got.IdentifiedLaws {
		if law.IsViolated {
			violated++
		}
	}
	assert.Equal(t, 2, violated)

	// Re-analyzing a ready draft is rejected
	resp2 := env.do(t, http.MethodPost, "/api/drafts/"+view.ID+"/analyze", nil)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusConflict, resp2.StatusCode)
}

func TestEvidenceEndpoints(t *testing.T) {
	env := newTestEnv(t, "")
	view := createDraft(t, env)

	resp := env.do(t, http.MethodPost, "/api/drafts/"+view.ID+"/evidence", map[string]interface{}{
		"files": []incident.EvidenceFile{
			{Name: "proof.png", Size: 2048, MIMEType: "image/png"},
			{Name: "export.pdf", Size: 512, MIMEType: "application/pdf"},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		Evidence []incident.Evidence `json:"evidence"`
	}
	decode(t, resp, &created)
	require.Len(t, created.Evidence, 2)
	assert.Equal(t, incident.FileImage, created.Evidence[0].FileType)
	assert.Equal(t, incident.FileDocument, created.Evidence[1].FileType)

	// Empty upload is rejected
	resp2 := env.do(t, http.MethodPost, "/api/drafts/"+view.ID+"/evidence", map[string]interface{}{"files": []incident.EvidenceFile{}})
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)

	// Delete one
	resp3 := env.do(t, http.MethodDelete, "/api/drafts/"+view.ID+"/evidence/"+created.Evidence[0].ID, nil)
	defer resp3.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp3.StatusCode)

	r := env.do(t, http.MethodGet, "/api/drafts/"+view.ID, nil)
	var got draftView
	decode(t, r, &got)
	require.Len(t, got.Evidence, 1)
	assert.Equal(t, "export.pdf", got.Evidence[0].FileName)
}

func TestChatEndpoint(t *testing.T) {
	env := newTestEnv(t, "")
	view := createDraft(t, env)

	resp := env.do(t, http.MethodPost, "/api/drafts/"+view.ID+"/chat", map[string]string{
		"message": "What screenshots should I take as proof?",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var msg incident.ChatMessage
	decode(t, resp, &msg)
	assert.Equal(t, incident.RoleUser, msg.Role)

	require.Eventually(t, func() bool {
		got, ok := env.fetchView(view.ID)
		return ok && len(got.Chat) == 2 && !got.IsChatLoading
	}, 5*time.Second, 10*time.Millisecond)

	r := env.do(t, http.MethodGet, "/api/drafts/"+view.ID, nil)
	var got draftView
	decode(t, r, &got)
	assert.Equal(t, incident.RoleAssistant, got.Chat[1].Role)
	assert.Contains(t, got.Chat[1].Content, "screenshots")
}

func TestSubmitFlow(t *testing.T) {
	env := newTestEnv(t, "")
	view := createDraft(t, env)
	id := view.ID

	// Submitting before the gate opens is rejected
	resp := env.do(t, http.MethodPost, "/api/drafts/"+id+"/submit", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)

	// Analyze, attach evidence, include a violated law
	r := env.do(t, http.MethodPost, "/api/drafts/"+id+"/analyze", nil)
	r.Body.Close()
	require.Eventually(t, func() bool {
		got, ok := env.fetchView(id)
		return ok && got.Status == incident.StatusReady
	}, 5*time.Second, 10*time.Millisecond)

	r = env.do(t, http.MethodPost, "/api/drafts/"+id+"/evidence", map[string]interface{}{
		"files": []incident.EvidenceFile{{Name: "proof.png", MIMEType: "image/png"}},
	})
	r.Body.Close()

	r = env.do(t, http.MethodPut, "/api/drafts/"+id+"/laws/ipc-354d", map[string]bool{
		"included_in_report": true,
	})
	var afterToggle draftView
	decode(t, r, &afterToggle)
	assert.True(t, afterToggle.CanSubmit)

	// Submit
	resp2 := env.do(t, http.MethodPost, "/api/drafts/"+id+"/submit", nil)
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	var submitted draftView
	decode(t, resp2, &submitted)
	assert.Equal(t, incident.StatusSubmitted, submitted.Status)
	assert.NotEqual(t, id, submitted.ID, "submission rewrites the draft id to the server-assigned case id")

	// The new id resolves, the old one is gone
	r = env.do(t, http.MethodGet, "/api/drafts/"+submitted.ID, nil)
	assert.Equal(t, http.StatusOK, r.StatusCode)
	r.Body.Close()

	r = env.do(t, http.MethodGet, "/api/drafts/"+id, nil)
	assert.Equal(t, http.StatusNotFound, r.StatusCode)
	r.Body.Close()

	// Audit trail recorded the submission
	r = env.do(t, http.MethodGet, "/api/drafts/"+submitted.ID+"/audit", nil)
	var audit struct {
		Entries []store.AuditEntry `json:"entries"`
	}
	decode(t, r, &audit)

	actions := make([]string, 0, len(audit.Entries))
	for _, e := range audit.Entries {
		actions = append(actions, e.Action)
	}
	assert.Contains(t, actions, "submit_report")
}

func TestListAndSearch(t *testing.T) {
	env := newTestEnv(t, "")
	createDraft(t, env)

	resp := env.do(t, http.MethodGet, "/api/drafts", nil)
	var listed struct {
		Drafts []store.DraftSummary `json:"drafts"`
	}
	decode(t, resp, &listed)
	require.Len(t, listed.Drafts, 1)

	resp2 := env.do(t, http.MethodGet, "/api/drafts?q=Instagram", nil)
	var found struct {
		Drafts []store.DraftSummary `json:"drafts"`
	}
	decode(t, resp2, &found)
	assert.Len(t, found.Drafts, 1)

	resp3 := env.do(t, http.MethodGet, "/api/drafts?q=ransomware", nil)
	var missing struct {
		Drafts []store.DraftSummary `json:"drafts"`
	}
	decode(t, resp3, &missing)
	assert.Empty(t, missing.Drafts)
}

func TestDeleteDraft(t *testing.T) {
	env := newTestEnv(t, "")
	view := createDraft(t, env)

	resp := env.do(t, http.MethodDelete, "/api/drafts/"+view.ID, nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp2 := env.do(t, http.MethodGet, "/api/drafts/"+view.ID, nil)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestTimelineEndpoints(t *testing.T) {
	env := newTestEnv(t, "")
	view := createDraft(t, env)

	resp := env.do(t, http.MethodPost, "/api/drafts/"+view.ID+"/timeline", incident.TimelineEvent{
		Type:  incident.EventNote,
		Title: "First contact",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var added incident.TimelineEvent
	decode(t, resp, &added)
	require.NotEmpty(t, added.ID)

	// Update
	resp2 := env.do(t, http.MethodPut,
		fmt.Sprintf("/api/drafts/%s/timeline/%s", view.ID, added.ID),
		incident.TimelineEvent{Type: incident.EventNote, Title: "First contact", Description: "around 9pm"})
	var afterUpdate draftView
	decode(t, resp2, &afterUpdate)
	require.Len(t, afterUpdate.Timeline, 2)
	assert.Equal(t, "around 9pm", afterUpdate.Timeline[1].Description)

	// Delete
	resp3 := env.do(t, http.MethodDelete,
		fmt.Sprintf("/api/drafts/%s/timeline/%s", view.ID, added.ID), nil)
	defer resp3.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp3.StatusCode)

	r := env.do(t, http.MethodGet, "/api/drafts/"+view.ID, nil)
	var got draftView
	decode(t, r, &got)
	assert.Len(t, got.Timeline, 1)
}

func TestListLaws(t *testing.T) {
	env := newTestEnv(t, "")

	resp := env.do(t, http.MethodGet, "/api/laws", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Laws []lawref.Law `json:"laws"`
	}
	decode(t, resp, &body)
	require.NotEmpty(t, body.Laws)

	ids := make(map[string]bool, len(body.Laws))
	for _, law := range body.Laws {
		ids[law.ID] = true
	}
	assert.True(t, ids["ipc-354d"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, "")
	createDraft(t, env)

	resp, err := http.Get(env.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "veritas_drafts_created_total")
}
