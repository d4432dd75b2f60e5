package assist

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritas-protocol/veritas-console/internal/incident"
	"github.com/veritas-protocol/veritas-console/internal/lawref"
)

func newRuleProvider(t *testing.T) *RuleProvider {
	t.Helper()
	return NewRuleProvider(lawref.NewCatalog(nil), DefaultTemplates())
}

func TestRuleAnalyzeHarassmentDraft(t *testing.T) {
	p := newRuleProvider(t)

	laws, err := p.AnalyzeDraft(context.Background(), incident.Draft{
		Type:        incident.TypeHarassment,
		Title:       "Threatening messages on Instagram",
		Description: "Repeated threatening DMs with explicit images",
	})
	require.NoError(t, err)
	require.Len(t, laws, 3)

	byID := make(map[string]incident.LawViolation, len(laws))
	for _, law := range laws {
		byID[law.ID] = law
		assert.False(t, law.IncludedInReport)
	}

	require.Contains(t, byID, "ipc-354d")
	require.Contains(t, byID, "it-act-67")
	require.Contains(t, byID, "it-act-66e")

	assert.True(t, byID["ipc-354d"].IsViolated)
	assert.True(t, byID["it-act-67"].IsViolated)
	assert.False(t, byID["it-act-66e"].IsViolated)

	// "repeated" keyword bumps the stalking confidence off the base value
	assert.Equal(t, 93, byID["ipc-354d"].Confidence)
	// No it-act-66e keyword in the narrative, so base confidence stands
	assert.Equal(t, 54, byID["it-act-66e"].Confidence)
}

func TestRuleAnalyzeConfidenceCap(t *testing.T) {
	catalog := lawref.NewCatalog(nil)
	p := NewRuleProvider(catalog, DefaultTemplates())

	laws, err := p.AnalyzeDraft(context.Background(), incident.Draft{
		Type:        incident.TypeIdentityTheft,
		Title:       "Account takeover",
		Description: "Someone changed my password and locked me out",
	})
	require.NoError(t, err)

	for _, law := range laws {
		assert.LessOrEqual(t, law.Confidence, 100)
		assert.GreaterOrEqual(t, law.Confidence, 0)
	}
}

func TestRuleAnalyzeUnknownTypeYieldsNothing(t *testing.T) {
	p := newRuleProvider(t)

	laws, err := p.AnalyzeDraft(context.Background(), incident.Draft{
		Type:  incident.TypeOther,
		Title: "Something odd",
	})
	require.NoError(t, err)
	assert.Empty(t, laws)
}

func TestRuleReplyTemplates(t *testing.T) {
	p := newRuleProvider(t)

	tests := []struct {
		message string
		want    string
	}{
		{"What screenshots should I take as proof?", DefaultTemplates().Evidence},
		{"Should I go to the police?", DefaultTemplates().Legal},
		{"I don't remember when it started", DefaultTemplates().Timeline},
		{"Thanks for the help", DefaultTemplates().Fallback},
	}

	for _, tt := range tests {
		reply, err := p.Reply(context.Background(), []incident.ChatMessage{
			{Role: incident.RoleUser, Content: tt.message},
		})
		require.NoError(t, err)
		assert.Equal(t, tt.want, reply, "message %q", tt.message)
	}
}

func TestRuleReplyUsesLastUserTurn(t *testing.T) {
	p := newRuleProvider(t)

	reply, err := p.Reply(context.Background(), []incident.ChatMessage{
		{Role: incident.RoleUser, Content: "should I talk to a lawyer?"},
		{Role: incident.RoleAssistant, Content: DefaultTemplates().Legal},
		{Role: incident.RoleUser, Content: "and what evidence do I need?"},
	})
	require.NoError(t, err)
	assert.Equal(t, DefaultTemplates().Evidence, reply)
}

func TestBuildRegistry(t *testing.T) {
	catalog := lawref.NewCatalog(nil)

	p, err := Build(ProviderConfig{Provider: "rule"}, catalog, nil)
	require.NoError(t, err)
	assert.IsType(t, &RuleProvider{}, p)

	p, err = Build(ProviderConfig{Provider: ""}, catalog, nil)
	require.NoError(t, err)
	assert.IsType(t, &RuleProvider{}, p)

	p, err = Build(ProviderConfig{Provider: "OpenAI", APIKey: "sk-test"}, catalog, nil)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIProvider{}, p)

	_, err = Build(ProviderConfig{Provider: "openai"}, catalog, nil)
	assert.Error(t, err, "openai provider requires an api key")

	_, err = Build(ProviderConfig{Provider: "quantum"}, catalog, nil)
	assert.Error(t, err)
}

func TestSettingsRoundTrip(t *testing.T) {
	path := t.TempDir() + "/assist.json"

	// Missing file yields defaults
	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "rule", s.Active.Provider)

	s.Active.Provider = "openai"
	s.Active.Model = "gpt-4o-mini"
	require.NoError(t, SaveSettings(path, s))

	got, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "openai", got.Active.Provider)
	assert.Equal(t, "gpt-4o-mini", got.Active.Model)
}
