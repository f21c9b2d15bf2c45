package events_test

import (
	"testing"

	"github.com/p-n-ai/pai-tracker/internal/events"
)

func TestMemoryLogger_LogEvent(t *testing.T) {
	logger := events.NewMemoryLogger()

	err := logger.LogEvent(t.Context(), events.Event{
		SessionID: "s-1",
		UnitKey:   "rm_n1_course",
		UserID:    "user-1",
		EventType: "item_completed",
		Data: map[string]any{
			"item_id": "m1",
		},
	})
	if err != nil {
		t.Fatalf("LogEvent() error = %v", err)
	}

	got := logger.Events()
	if len(got) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(got))
	}
	if got[0].EventType != "item_completed" {
		t.Errorf("EventType = %q, want item_completed", got[0].EventType)
	}
	if got[0].CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

func TestMemoryLogger_RejectsIncompleteEvent(t *testing.T) {
	logger := events.NewMemoryLogger()

	tests := []struct {
		name  string
		event events.Event
	}{
		{"no type", events.Event{UnitKey: "k"}},
		{"no unit", events.Event{EventType: "unit_completed"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := logger.LogEvent(t.Context(), tt.event); err == nil {
				t.Fatal("expected error")
			}
		})
	}
	if len(logger.Events()) != 0 {
		t.Error("rejected events must not be stored")
	}
}

func TestPostgresLogger_LogEvent_NilPool(t *testing.T) {
	logger := events.NewPostgresLogger(nil)

	err := logger.LogEvent(t.Context(), events.Event{
		SessionID: "s-1",
		UnitKey:   "rm_n1_course",
		EventType: "session_opened",
	})
	if err == nil {
		t.Fatal("expected error for nil pool")
	}
}
