// Package assist provides the AI collaborators of the incident workspace:
// draft analysis (candidate law identification) and the case chat assistant.
// The workspace depends only on the interfaces; a deterministic rule engine
// and an OpenAI-backed provider implement them.
package assist

import (
	"context"

	"github.com/veritas-protocol/veritas-console/internal/incident"
)

// Analyzer proposes candidate law violations for a draft.
type Analyzer interface {
	AnalyzeDraft(ctx context.Context, draft incident.Draft) ([]incident.LawViolation, error)
}

// ChatProvider generates assistant replies for the case chat.
type ChatProvider interface {
	Reply(ctx context.Context, transcript []incident.ChatMessage) (string, error)
}

// Provider combines both capabilities.
type Provider interface {
	Analyzer
	ChatProvider
}

// lastUserMessage returns the content of the most recent user turn.
func lastUserMessage(transcript []incident.ChatMessage) string {
	for i := len(transcript) - 1; i >= 0; i-- {
		if transcript[i].Role == incident.RoleUser {
			return transcript[i].Content
		}
	}
	return ""
}
