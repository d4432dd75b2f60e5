package incident

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of an incident draft.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusAnalyzing Status = "analyzing"
	StatusReady     Status = "ready"
	StatusSubmitted Status = "submitted"
)

// IsValid returns true if the status is a recognized value.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusAnalyzing, StatusReady, StatusSubmitted:
		return true
	}
	return false
}

// validTransitions defines the allowed status progression. Same-state
// transitions are treated as no-ops by Transition and are not listed here.
var validTransitions = map[Status]Status{
	StatusDraft:     StatusAnalyzing,
	StatusAnalyzing: StatusReady,
	StatusReady:     StatusSubmitted,
}

// CanTransition reports whether moving from s to next is allowed.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return true
	}
	return validTransitions[s] == next
}

// IncidentType classifies the reported incident.
type IncidentType string

const (
	TypeHarassment    IncidentType = "harassment"
	TypeStalking      IncidentType = "stalking"
	TypeFraud         IncidentType = "fraud"
	TypePhishing      IncidentType = "phishing"
	TypeIdentityTheft IncidentType = "identity-theft"
	TypeDefamation    IncidentType = "defamation"
	TypeHacking       IncidentType = "hacking"
	TypeOther         IncidentType = "other"
)

// TimelineEventType classifies a timeline entry.
type TimelineEventType string

const (
	EventIncident     TimelineEventType = "incident"
	EventEvidence     TimelineEventType = "evidence"
	EventReport       TimelineEventType = "report"
	EventAISuggestion TimelineEventType = "ai-suggestion"
	EventNote         TimelineEventType = "note"
)

// TimelineEvent is a dated entry in the life of a case. Events are
// append-ordered and never reordered.
type TimelineEvent struct {
	ID                string            `json:"id"`
	Type              TimelineEventType `json:"type"`
	Title             string            `json:"title"`
	Description       string            `json:"description,omitempty"`
	Timestamp         time.Time         `json:"timestamp"`
	IsAISuggested     bool              `json:"is_ai_suggested,omitempty"`
	LinkedEvidenceIDs []string          `json:"linked_evidence_ids,omitempty"`
}

// FileType is the coarse classification of an evidence file.
type FileType string

const (
	FileImage      FileType = "image"
	FileVideo      FileType = "video"
	FileAudio      FileType = "audio"
	FileDocument   FileType = "document"
	FileScreenshot FileType = "screenshot"
	FileOther      FileType = "other"
)

// FileTypeForMIME infers the evidence file type from a MIME type.
func FileTypeForMIME(mimeType string) FileType {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.HasPrefix(mt, "image/"):
		return FileImage
	case strings.HasPrefix(mt, "video/"):
		return FileVideo
	case strings.HasPrefix(mt, "audio/"):
		return FileAudio
	case strings.Contains(mt, "pdf"), strings.Contains(mt, "document"), strings.Contains(mt, "text"):
		return FileDocument
	default:
		return FileOther
	}
}

// Evidence is a file attached to the case. Records are always created
// encrypted; the backing blob store is an external collaborator.
type Evidence struct {
	ID           string    `json:"id"`
	FileName     string    `json:"file_name"`
	FileSize     int64     `json:"file_size"`
	FileType     FileType  `json:"file_type"`
	MIMEType     string    `json:"mime_type"`
	UploadedAt   time.Time `json:"uploaded_at"`
	IsEncrypted  bool      `json:"is_encrypted"`
	Description  string    `json:"description,omitempty"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
}

// Severity levels for a law violation.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// LawViolation is a candidate legal provision proposed by analysis.
// IsViolated and Confidence are analysis outputs and not user-editable;
// IncludedInReport is the user-controlled inclusion flag.
type LawViolation struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Section          string   `json:"section"`
	Description      string   `json:"description"`
	Jurisdiction     string   `json:"jurisdiction"`
	Severity         Severity `json:"severity"`
	IsViolated       bool     `json:"is_violated"`
	Confidence       int      `json:"confidence"` // 0-100
	IncludedInReport bool     `json:"included_in_report"`
}

// Chat roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn in the case chat transcript. The transcript is
// append-only.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Draft is the in-progress record of a single reported case.
type Draft struct {
	ID                string          `json:"id"`
	Type              IncidentType    `json:"type"`
	Title             string          `json:"title"`
	Description       string          `json:"description"`
	DateOccurred      time.Time       `json:"date_occurred,omitempty"` // zero when unknown
	PlatformsInvolved []string        `json:"platforms_involved,omitempty"`
	PerpetratorInfo   string          `json:"perpetrator_info,omitempty"`
	Timeline          []TimelineEvent `json:"timeline"`
	Evidence          []Evidence      `json:"evidence"`
	IdentifiedLaws    []LawViolation  `json:"identified_laws"`
	Chat              []ChatMessage   `json:"chat,omitempty"`
	Status            Status          `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// WizardSeed is the optional seed data coming from the reporting wizard.
type WizardSeed struct {
	IncidentType      IncidentType `json:"incident_type"`
	Title             string       `json:"title"`
	Description       string       `json:"description"`
	DateOccurred      string       `json:"date_occurred"`      // "2006-01-02", optional
	PlatformsInvolved string       `json:"platforms_involved"` // comma-separated text
	PerpetratorInfo   string       `json:"perpetrator_info"`
}

// NewDraft builds a fully-populated draft from wizard seed data: a fresh id,
// one seed timeline event of type incident, empty evidence/law lists and
// status draft.
func NewDraft(seed WizardSeed) *Draft {
	now := time.Now()

	incidentType := seed.IncidentType
	if incidentType == "" {
		incidentType = TypeOther
	}

	var occurred time.Time
	if seed.DateOccurred != "" {
		if t, err := time.Parse("2006-01-02", seed.DateOccurred); err == nil {
			occurred = t
		}
	}

	d := &Draft{
		ID:                uuid.NewString(),
		Type:              incidentType,
		Title:             seed.Title,
		Description:       seed.Description,
		DateOccurred:      occurred,
		PlatformsInvolved: SplitPlatforms(seed.PlatformsInvolved),
		PerpetratorInfo:   seed.PerpetratorInfo,
		Status:            StatusDraft,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	d.Timeline = append(d.Timeline, TimelineEvent{
		ID:          uuid.NewString(),
		Type:        EventIncident,
		Title:       "Incident Reported",
		Description: seed.Description,
		Timestamp:   now,
	})

	return d
}

// SplitPlatforms splits comma-separated wizard text into a cleaned list.
func SplitPlatforms(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	parts := strings.Split(text, ",")
	platforms := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			platforms = append(platforms, p)
		}
	}
	if len(platforms) == 0 {
		return nil
	}
	return platforms
}

// CanSubmit is the submission gate: at least one violated law, at least one
// piece of evidence, and at least one law included in the report. Derived on
// every call; never cached.
func (d *Draft) CanSubmit() bool {
	if len(d.Evidence) == 0 {
		return false
	}
	anyViolated := false
	anyIncluded := false
	for _, law := range d.IdentifiedLaws {
		if law.IsViolated {
			anyViolated = true
		}
		if law.IncludedInReport {
			anyIncluded = true
		}
	}
	return anyViolated && anyIncluded
}

// Transition moves the draft to the next lifecycle status, rejecting
// anything outside draft -> analyzing -> ready -> submitted. Transitioning
// to the current status is a no-op.
func (d *Draft) Transition(next Status) error {
	if !next.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, next)
	}
	if d.Status == next {
		return nil
	}
	if !d.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.Status, next)
	}
	d.Status = next
	return nil
}

// Touch bumps UpdatedAt. Every mutation path must call it so UpdatedAt stays
// at or ahead of every contained item's timestamp.
func (d *Draft) Touch() {
	d.UpdatedAt = time.Now()
}

// Clone returns a deep copy of the draft safe to hand to readers.
func (d *Draft) Clone() Draft {
	out := *d
	out.PlatformsInvolved = append([]string(nil), d.PlatformsInvolved...)
	out.Evidence = append([]Evidence(nil), d.Evidence...)
	out.IdentifiedLaws = append([]LawViolation(nil), d.IdentifiedLaws...)
	out.Chat = append([]ChatMessage(nil), d.Chat...)
	out.Timeline = make([]TimelineEvent, len(d.Timeline))
	for i, ev := range d.Timeline {
		out.Timeline[i] = ev
		out.Timeline[i].LinkedEvidenceIDs = append([]string(nil), ev.LinkedEvidenceIDs...)
	}
	return out
}
