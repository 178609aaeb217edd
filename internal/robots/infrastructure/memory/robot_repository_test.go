package memory

import (
	"context"
	"testing"
	"time"

	robots "carebot-cloud/internal/robots/domain"
)

func TestMarkConnectedTransitions(t *testing.T) {
	ctx := context.Background()
	repo := NewRobotRepository()
	if err := repo.Create(ctx, &robots.Robot{ID: "r1", SerialNumber: "SN1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

	prev, err := repo.MarkConnected(ctx, "r1", now)
	if err != nil || prev != robots.Disconnected {
		t.Fatalf("expected DISCONNECTED before first sync, got %s (%v)", prev, err)
	}
	prev, err = repo.MarkConnected(ctx, "r1", now.Add(time.Minute))
	if err != nil || prev != robots.Connected {
		t.Fatalf("expected CONNECTED on repeat sync, got %s (%v)", prev, err)
	}
	robot, _ := repo.Get(ctx, "r1")
	if robot.LastSyncAt == nil || !robot.LastSyncAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("last sync not stamped: %v", robot.LastSyncAt)
	}
}

func TestClaimOfflineNotificationOncePerOutage(t *testing.T) {
	ctx := context.Background()
	repo := NewRobotRepository()
	_ = repo.Create(ctx, &robots.Robot{ID: "r1", Connectivity: robots.Connected})
	now := time.Now().UTC()

	if claimed, _ := repo.ClaimOfflineNotification(ctx, "r1", now); claimed {
		t.Fatalf("connected robot must not be claimable")
	}
	_, _ = repo.MarkDisconnected(ctx, "r1", now)
	if claimed, _ := repo.ClaimOfflineNotification(ctx, "r1", now); !claimed {
		t.Fatalf("first claim should succeed")
	}
	if claimed, _ := repo.ClaimOfflineNotification(ctx, "r1", now); claimed {
		t.Fatalf("second claim should fail")
	}
	_, _ = repo.MarkConnected(ctx, "r1", now)
	_, _ = repo.MarkDisconnected(ctx, "r1", now)
	if claimed, _ := repo.ClaimOfflineNotification(ctx, "r1", now); !claimed {
		t.Fatalf("sync should re-arm the marker")
	}
}

func TestListSilentSince(t *testing.T) {
	ctx := context.Background()
	repo := NewRobotRepository()
	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	for _, id := range []string{"old", "fresh", "offline"} {
		_ = repo.Create(ctx, &robots.Robot{ID: id})
	}
	_, _ = repo.MarkConnected(ctx, "old", now.Add(-10*time.Minute))
	_, _ = repo.MarkConnected(ctx, "fresh", now)

	ids, err := repo.ListSilentSince(ctx, now.Add(-3*time.Minute))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 1 || ids[0] != "old" {
		t.Fatalf("unexpected silent robots: %v", ids)
	}
}
