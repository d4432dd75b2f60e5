package assist

import (
	"context"
	"fmt"
	"strings"

	"github.com/veritas-protocol/veritas-console/internal/incident"
	"github.com/veritas-protocol/veritas-console/internal/lawref"
)

// CannedTemplates holds the chat reply templates and the keyword sets that
// select them. Injected rather than hardcoded so a real backend can swap the
// copy without touching control flow.
type CannedTemplates struct {
	EvidenceKeywords []string
	LegalKeywords    []string
	TimelineKeywords []string
	Evidence         string
	Legal            string
	Timeline         string
	Fallback         string
}

// DefaultTemplates returns the reply set the product launched with.
func DefaultTemplates() CannedTemplates {
	return CannedTemplates{
		EvidenceKeywords: []string{"evidence", "screenshot", "proof"},
		LegalKeywords:    []string{"legal", "police", "lawyer"},
		TimelineKeywords: []string{"time", "when", "date"},
		Evidence: "Capture full-screen screenshots that include the sender's profile, timestamps and URLs. " +
			"Do not crop or edit them, keep the originals, and upload them here so they are encrypted and hashed for the case file.",
		Legal: "Based on the violations identified in this case you can file a complaint with the cybercrime cell. " +
			"Use the Find Lawyers section to reach an affiliated advocate, or submit the report to the authorities directly from this workspace.",
		Timeline: "Precise dates strengthen the report. Add a timeline entry for each contact or incident you remember, " +
			"even approximate ones — the sequence matters more than exact minutes.",
		Fallback: "I've noted that. Keep adding evidence and timeline details to this case; " +
			"once the analysis flags applicable laws you can review them and submit the report.",
	}
}

// RuleProvider is the offline provider: a deterministic rule engine over the
// law catalog plus keyword-matched canned chat replies. It is the default so
// the workspace behaves without any external AI dependency.
type RuleProvider struct {
	catalog   *lawref.Catalog
	templates CannedTemplates
}

// NewRuleProvider builds the offline provider.
func NewRuleProvider(catalog *lawref.Catalog, templates CannedTemplates) *RuleProvider {
	return &RuleProvider{catalog: catalog, templates: templates}
}

// AnalyzeDraft selects the catalog laws applicable to the draft's incident
// type and marks those the rules consider violated. Confidence is the
// catalog base value, bumped slightly when the narrative matches a keyword.
func (p *RuleProvider) AnalyzeDraft(ctx context.Context, draft incident.Draft) ([]incident.LawViolation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.catalog == nil {
		return nil, fmt.Errorf("rule provider: no law catalog configured")
	}

	narrative := strings.ToLower(draft.Title + " " + draft.Description)

	var violations []incident.LawViolation
	for _, law := range p.catalog.Laws() {
		if !typeMatches(law.AppliesTo, draft.Type) {
			continue
		}

		confidence := law.Confidence
		keywordHit := false
		for _, kw := range law.Keywords {
			if kw != "" && strings.Contains(narrative, strings.ToLower(kw)) {
				keywordHit = true
				break
			}
		}
		if keywordHit {
			confidence += 7
			if confidence > 100 {
				confidence = 100
			}
		}

		violations = append(violations, incident.LawViolation{
			ID:           law.ID,
			Name:         law.Name,
			Section:      law.Section,
			Description:  law.Description,
			Jurisdiction: law.Jurisdiction,
			Severity:     law.Severity,
			IsViolated:   typeMatches(law.ViolatesFor, draft.Type),
			Confidence:   confidence,
		})
	}

	return violations, nil
}

// Reply selects one of the canned templates by keyword matching on the
// lowercased last user message. Unmatched input falls through to the
// generic acknowledgment; that is the designed behavior, not an error.
func (p *RuleProvider) Reply(ctx context.Context, transcript []incident.ChatMessage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	msg := strings.ToLower(lastUserMessage(transcript))

	switch {
	case containsAny(msg, p.templates.EvidenceKeywords):
		return p.templates.Evidence, nil
	case containsAny(msg, p.templates.LegalKeywords):
		return p.templates.Legal, nil
	case containsAny(msg, p.templates.TimelineKeywords):
		return p.templates.Timeline, nil
	default:
		return p.templates.Fallback, nil
	}
}

func containsAny(msg string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}

func typeMatches(types []incident.IncidentType, t incident.IncidentType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}
