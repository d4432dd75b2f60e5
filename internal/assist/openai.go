package assist

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/veritas-protocol/veritas-console/internal/incident"
	"github.com/veritas-protocol/veritas-console/internal/lawref"
)

const analysisSystemPrompt = `You are a legal analyst for a cybercrime reporting service.
Given an incident description and a catalog of laws, decide which catalog laws apply.
Respond with a JSON object: {"violations": [{"id": "<catalog law id>", "is_violated": true|false, "confidence": 0-100}]}.
Only reference ids present in the catalog. Do not invent laws.`

const chatSystemPrompt = `You are the case assistant of a cybercrime reporting service.
Help the user collect evidence, reconstruct the incident timeline and understand next legal steps.
Answer briefly and practically. Never provide advice on committing crimes.`

// OpenAIProvider backs analysis and chat with an OpenAI-compatible API.
type OpenAIProvider struct {
	client  *openai.Client
	model   string
	catalog *lawref.Catalog
	logger  *log.Logger
}

// NewOpenAIProvider constructs the provider. endpoint may be empty for the
// default OpenAI API; model defaults to gpt-4o-mini.
func NewOpenAIProvider(endpoint, model, apiKey string, catalog *lawref.Catalog, logger *log.Logger) (*OpenAIProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("openai provider: api key required")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	cfg := openai.DefaultConfig(apiKey)
	if ep := strings.TrimSpace(endpoint); ep != "" {
		cfg.BaseURL = strings.TrimRight(ep, "/")
	}
	if strings.TrimSpace(model) == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIProvider{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		catalog: catalog,
		logger:  logger,
	}, nil
}

type modelViolation struct {
	ID         string `json:"id"`
	IsViolated bool   `json:"is_violated"`
	Confidence int    `json:"confidence"`
}

type modelAnalysis struct {
	Violations []modelViolation `json:"violations"`
}

// AnalyzeDraft asks the model which catalog laws apply and merges the answer
// back onto the catalog entries, so names, sections and jurisdictions always
// come from the curated library rather than from the model.
func (p *OpenAIProvider) AnalyzeDraft(ctx context.Context, draft incident.Draft) ([]incident.LawViolation, error) {
	if p.catalog == nil {
		return nil, fmt.Errorf("openai provider: no law catalog configured")
	}
	laws := p.catalog.Laws()

	var catalogDesc strings.Builder
	for _, law := range laws {
		fmt.Fprintf(&catalogDesc, "- id=%s name=%q section=%q applies_to=%v: %s\n",
			law.ID, law.Name, law.Section, law.AppliesTo, law.Description)
	}

	userPrompt := fmt.Sprintf("Incident type: %s\nTitle: %s\nDescription: %s\nPlatforms: %s\n\nLaw catalog:\n%s",
		draft.Type, draft.Title, draft.Description,
		strings.Join(draft.PlatformsInvolved, ", "), catalogDesc.String())

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: analysisSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai analysis: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai analysis: empty response")
	}

	var parsed modelAnalysis
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &parsed); err != nil {
		return nil, fmt.Errorf("openai analysis: decode response: %w", err)
	}

	var violations []incident.LawViolation
	for _, mv := range parsed.Violations {
		law, ok := p.catalog.FindByID(mv.ID)
		if !ok {
			p.logger.Printf("openai analysis referenced unknown law id %q, skipping", mv.ID)
			continue
		}
		confidence := mv.Confidence
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 100 {
			confidence = 100
		}
		violations = append(violations, incident.LawViolation{
			ID:           law.ID,
			Name:         law.Name,
			Section:      law.Section,
			Description:  law.Description,
			Jurisdiction: law.Jurisdiction,
			Severity:     law.Severity,
			IsViolated:   mv.IsViolated,
			Confidence:   confidence,
		})
	}
	return violations, nil
}

// Reply generates the assistant turn from the full transcript.
func (p *OpenAIProvider) Reply(ctx context.Context, transcript []incident.ChatMessage) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(transcript)+1)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: chatSystemPrompt,
	})
	for _, m := range transcript {
		role := openai.ChatMessageRoleUser
		if m.Role == incident.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: msgs,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}
