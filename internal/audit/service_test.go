package audit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAppend_FillsDefaults(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	svc.clock = func() time.Time { return time.Unix(1700000000, 0).UTC() }

	err := svc.Append(context.Background(), Event{
		Type:        EventTypeAdminAction,
		ActorUserID: "admin-1",
		Message:     "manual credit",
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	events := repo.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	e := events[0]
	if e.ID == "" {
		t.Fatalf("id not assigned")
	}
	if !e.CreatedAt.Equal(time.Unix(1700000000, 0).UTC()) {
		t.Fatalf("created_at not defaulted: %v", e.CreatedAt)
	}
}

func TestAppend_RejectsMissingType(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	err := svc.Append(context.Background(), Event{ActorUserID: "admin-1"})
	if !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
}

func TestLogCertification(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.LogCertification(context.Background(), "admin-1", "user-2", "10.0.0.1", true); err != nil {
		t.Fatalf("log certification: %v", err)
	}
	e := repo.Events()[0]
	if e.Type != EventTypeCertification || e.TargetUserID != "user-2" || e.Message != "certification granted" {
		t.Fatalf("unexpected event: %+v", e)
	}
}
