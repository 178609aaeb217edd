package auth

import (
	"context"
	"testing"

	"carebot-cloud/internal/apperr"
	care "carebot-cloud/internal/care/domain"
	carememory "carebot-cloud/internal/care/infrastructure/memory"
	robots "carebot-cloud/internal/robots/domain"
	robotmemory "carebot-cloud/internal/robots/infrastructure/memory"
)

func newTestGuard(t *testing.T) *Guard {
	t.Helper()
	ctx := context.Background()
	robotRepo := robotmemory.NewRobotRepository()
	careStore := carememory.NewStore()
	_ = careStore.CreateElder(ctx, care.Elder{ID: "elder-a", OwnerUserID: "owner-a"})
	_ = careStore.CreateElder(ctx, care.Elder{ID: "elder-b", OwnerUserID: "owner-b"})
	_ = robotRepo.Create(ctx, &robots.Robot{ID: "robot-a", ElderID: "elder-a"})
	_ = robotRepo.Create(ctx, &robots.Robot{ID: "robot-b", ElderID: "elder-b"})
	_ = robotRepo.Create(ctx, &robots.Robot{ID: "robot-unpaired"})
	guard, err := NewGuard(robotRepo, careStore)
	if err != nil {
		t.Fatalf("guard: %v", err)
	}
	return guard
}

func TestDeviceWriteRules(t *testing.T) {
	guard := newTestGuard(t)
	ctx := context.Background()
	cases := []struct {
		name      string
		principal Principal
		robotID   string
		want      apperr.Kind
	}{
		{"device self", Device("robot-a"), "robot-a", ""},
		{"owning human", Human("owner-a"), "robot-a", ""},
		{"other device", Device("robot-b"), "robot-a", apperr.KindForbidden},
		{"other human", Human("owner-b"), "robot-a", apperr.KindForbidden},
		{"unpaired robot human", Human("owner-a"), "robot-unpaired", apperr.KindForbidden},
		{"missing robot before auth", Device("robot-a"), "ghost", apperr.KindNotFound},
		{"anonymous", Principal{}, "robot-a", apperr.KindUnauthenticated},
	}
	for _, tc := range cases {
		robot, err := guard.AuthorizeDeviceWrite(ctx, tc.principal, tc.robotID)
		if apperr.KindOf(err) != tc.want {
			t.Fatalf("%s: expected %q, got %v", tc.name, tc.want, err)
		}
		if tc.want == "" && (robot == nil || robot.ID != tc.robotID) {
			t.Fatalf("%s: expected robot %s", tc.name, tc.robotID)
		}
	}
}

func TestSettingsWriteMatchesDeviceWrite(t *testing.T) {
	guard := newTestGuard(t)
	ctx := context.Background()
	if _, err := guard.AuthorizeSettingsWrite(ctx, Device("robot-a"), "robot-a"); err != nil {
		t.Fatalf("device self should pass: %v", err)
	}
	if _, err := guard.AuthorizeSettingsWrite(ctx, Device("robot-a"), "robot-b"); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestOwnerOnly(t *testing.T) {
	guard := newTestGuard(t)
	ctx := context.Background()
	if _, err := guard.AuthorizeOwner(ctx, Human("owner-a"), "robot-a"); err != nil {
		t.Fatalf("owner should pass: %v", err)
	}
	if _, err := guard.AuthorizeOwner(ctx, Device("robot-a"), "robot-a"); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("device must be forbidden, got %v", err)
	}
}

func TestHumanReadRules(t *testing.T) {
	guard := newTestGuard(t)
	ctx := context.Background()
	cases := []struct {
		name      string
		principal Principal
		elderID   string
		want      apperr.Kind
	}{
		{"owner", Human("owner-a"), "elder-a", ""},
		{"other owner", Human("owner-b"), "elder-a", apperr.KindForbidden},
		{"serving device", Device("robot-a"), "elder-a", apperr.KindForbidden},
		{"missing elder", Device("robot-a"), "ghost", apperr.KindNotFound},
	}
	for _, tc := range cases {
		_, err := guard.AuthorizeHumanRead(ctx, tc.principal, tc.elderID)
		if apperr.KindOf(err) != tc.want {
			t.Fatalf("%s: expected %q, got %v", tc.name, tc.want, err)
		}
	}
}
