package bus

import (
	"context"
	"testing"
)

func TestNullBusOperations(t *testing.T) {
	nb := NewNullBus(nil)
	ctx := context.Background()

	if err := nb.PublishDraftEvent(ctx, DraftMessage{DraftID: "d1", Action: "created"}); err != nil {
		t.Fatalf("PublishDraftEvent error: %v", err)
	}
	if err := nb.PublishSubmission(ctx, SubmissionMessage{DraftID: "d1", Result: "accepted"}); err != nil {
		t.Fatalf("PublishSubmission error: %v", err)
	}
	if err := nb.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck error: %v", err)
	}

	stats, err := nb.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats error: %v", err)
	}
	if stats["type"] != "null" {
		t.Errorf("unexpected stats type: %v", stats["type"])
	}

	if err := nb.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
}

func TestNewBusFallsBackToNull(t *testing.T) {
	if _, ok := NewBus("", nil).(*NullBus); !ok {
		t.Error("expected NullBus for empty URL")
	}
	if _, ok := NewBus("not a redis url", nil).(*NullBus); !ok {
		t.Error("expected NullBus when the URL cannot be parsed")
	}
}
