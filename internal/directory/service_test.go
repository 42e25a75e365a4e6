package directory

import (
	"context"
	"testing"
	"time"
)

func seeded(t *testing.T) (*Service, *MemoryRepo) {
	t.Helper()
	repo := NewMemoryRepo()
	svc := NewService(repo, nil)

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"alice", "bob", "carol"} {
		if err := svc.UpsertUser(context.Background(), User{ID: id, Name: id}); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
		if err := repo.TouchLastSeen(context.Background(), id, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("touch %s: %v", id, err)
		}
	}
	return svc, repo
}

func TestDiscover_ExcludesSelfAndBlocked(t *testing.T) {
	svc, _ := seeded(t)
	ctx := context.Background()

	if err := svc.Block(ctx, "alice", "bob"); err != nil {
		t.Fatalf("block: %v", err)
	}

	got, err := svc.Discover(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(got) != 1 || got[0].ID != "carol" {
		t.Fatalf("expected only carol, got %+v", got)
	}

	// The block applies in the other direction too.
	got, err = svc.Discover(ctx, "bob", 10)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	for _, u := range got {
		if u.ID == "alice" {
			t.Fatalf("bob should not see alice")
		}
	}
}

func TestDiscover_NewestActiveFirst(t *testing.T) {
	svc, _ := seeded(t)

	got, err := svc.Discover(context.Background(), "alice", 10)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(got) != 2 || got[0].ID != "carol" || got[1].ID != "bob" {
		t.Fatalf("expected carol then bob, got %+v", got)
	}
}

func TestIsBlockedEither(t *testing.T) {
	svc, _ := seeded(t)
	ctx := context.Background()

	blocked, err := svc.IsBlockedEither(ctx, "alice", "bob")
	if err != nil || blocked {
		t.Fatalf("expected not blocked, got %v %v", blocked, err)
	}

	if err := svc.Block(ctx, "bob", "alice"); err != nil {
		t.Fatalf("block: %v", err)
	}
	blocked, err = svc.IsBlockedEither(ctx, "alice", "bob")
	if err != nil || !blocked {
		t.Fatalf("expected blocked either direction, got %v %v", blocked, err)
	}

	if err := svc.Unblock(ctx, "bob", "alice"); err != nil {
		t.Fatalf("unblock: %v", err)
	}
	blocked, _ = svc.IsBlockedEither(ctx, "alice", "bob")
	if blocked {
		t.Fatalf("expected unblocked")
	}
}

func TestCertify(t *testing.T) {
	svc, _ := seeded(t)
	ctx := context.Background()

	if err := svc.Certify(ctx, "alice", true); err != nil {
		t.Fatalf("certify: %v", err)
	}
	u, err := svc.GetUser(ctx, "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !u.Certified {
		t.Fatalf("expected certified")
	}
}

func TestGetUser_NotFound(t *testing.T) {
	svc, _ := seeded(t)
	if _, err := svc.GetUser(context.Background(), "nobody"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
