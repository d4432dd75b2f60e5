package bus

import (
	"context"
	"io"
	"log"
)

// Bus defines the interface for event bus implementations
type Bus interface {
	// PublishDraftEvent publishes a draft lifecycle change to the drafts stream
	PublishDraftEvent(ctx context.Context, msg DraftMessage) error

	// PublishSubmission publishes a submission outcome to the submissions stream
	PublishSubmission(ctx context.Context, msg SubmissionMessage) error

	// GetStats returns basic statistics about the bus
	GetStats(ctx context.Context) (map[string]interface{}, error)

	// HealthCheck performs a health check on the bus connection
	HealthCheck(ctx context.Context) error

	// Close closes the bus connection
	Close() error
}

// DraftMessage describes a change to a draft (created, analyzed, saved).
type DraftMessage struct {
	DraftID      string `json:"draft_id"`
	IncidentType string `json:"incident_type"`
	Status       string `json:"status"`
	Action       string `json:"action"` // "created", "analyzed", "saved", "deleted"
	Timestamp    int64  `json:"timestamp"`
}

// SubmissionMessage describes the outcome of a report submission attempt.
type SubmissionMessage struct {
	DraftID    string `json:"draft_id"`
	IncidentID string `json:"incident_id,omitempty"` // id assigned by the incident API
	Result     string `json:"result"`                // "accepted" or "failed"
	Error      string `json:"error,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

// NewBus creates a new bus instance based on the Redis URL.
// If redisURL is empty or the connection fails, returns a NullBus.
func NewBus(redisURL string, logger *log.Logger) Bus {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	if redisURL == "" {
		return NewNullBus(logger)
	}

	if redisBus, err := NewRedisBus(redisURL, logger); err == nil {
		return redisBus
	}

	return NewNullBus(logger)
}
