package application

import (
	"context"
	"testing"
	"time"

	"carebot-cloud/internal/apperr"
	"carebot-cloud/internal/auth"
	care "carebot-cloud/internal/care/domain"
	carememory "carebot-cloud/internal/care/infrastructure/memory"
	patrol "carebot-cloud/internal/patrol/domain"
	patrolmemory "carebot-cloud/internal/patrol/infrastructure/memory"
	"carebot-cloud/internal/platform/memory"
	robots "carebot-cloud/internal/robots/domain"
	robotmemory "carebot-cloud/internal/robots/infrastructure/memory"
)

var clock = time.Date(2026, 7, 1, 23, 0, 0, 0, time.UTC)

func newGuard(t *testing.T) *auth.Guard {
	t.Helper()
	ctx := context.Background()
	robotRepo := robotmemory.NewRobotRepository()
	store := carememory.NewStore()
	_ = store.CreateElder(ctx, care.Elder{ID: "elder-a", OwnerUserID: "owner-a", Name: "Grandma"})
	_ = robotRepo.Create(ctx, &robots.Robot{ID: "robot-a", ElderID: "elder-a"})
	_ = robotRepo.Create(ctx, &robots.Robot{ID: "robot-b", ElderID: "elder-a"})
	_ = robotRepo.Create(ctx, &robots.Robot{ID: "robot-lonely"})
	guard, err := auth.NewGuard(robotRepo, store)
	if err != nil {
		t.Fatalf("guard: %v", err)
	}
	return guard
}

func newService(t *testing.T, repo patrol.Repository) *Service {
	t.Helper()
	svc, err := NewService(repo, newGuard(t), memory.NewTxManager(), nil)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return svc.WithClock(func() time.Time { return clock })
}

func sampleReport(id string, statuses ...string) patrol.Report {
	report := patrol.Report{PatrolID: id, StartedAt: clock.Add(-time.Hour)}
	for _, s := range statuses {
		report.Items = append(report.Items, patrol.ItemReport{Target: "DOOR", Status: s})
	}
	return report
}

func TestReportPatrolIsIdempotent(t *testing.T) {
	repo := patrolmemory.NewRepository()
	svc := newService(t, repo)
	ctx := context.Background()
	device := auth.Device("robot-a")

	first, created, err := svc.ReportPatrol(ctx, device, "robot-a", sampleReport("p-1", "NORMAL", "LOCKED"))
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if !created || first.Status != patrol.StatusSafe || first.ElderID != "elder-a" {
		t.Fatalf("unexpected first report: created=%v %+v", created, first)
	}

	// A replay with different items is not re-validated.
	second, created, err := svc.ReportPatrol(ctx, device, "robot-a", sampleReport("p-1", "NEEDS_CHECK"))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if created || second.ID != first.ID || second.Status != patrol.StatusSafe {
		t.Fatalf("replay must return the original: created=%v %+v", created, second)
	}
	history, _ := repo.History(ctx, "elder-a", 10, 0)
	if len(history) != 1 {
		t.Fatalf("expected one stored patrol, got %d", len(history))
	}

	_, _, err = svc.ReportPatrol(ctx, auth.Device("robot-b"), "robot-b", sampleReport("p-1", "NORMAL"))
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("expected conflict for another robot, got %v", err)
	}
}

func TestReplayIgnoresMalformedItems(t *testing.T) {
	svc := newService(t, patrolmemory.NewRepository())
	ctx := context.Background()
	device := auth.Device("robot-a")

	first, _, err := svc.ReportPatrol(ctx, device, "robot-a", sampleReport("p-9", "NORMAL"))
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	replay := patrol.Report{
		PatrolID:  "p-9",
		StartedAt: clock.Add(-time.Hour),
		Items:     []patrol.ItemReport{{Target: "", Status: "", ImageURL: "not a url"}},
	}
	got, created, err := svc.ReportPatrol(ctx, device, "robot-a", replay)
	if err != nil {
		t.Fatalf("replay with malformed items must return the stored result: %v", err)
	}
	if created || got.ID != first.ID || len(got.Items) != 1 || got.Items[0].Status != patrol.ItemNormal {
		t.Fatalf("unexpected replay result: created=%v %+v", created, got)
	}

	// The same body under a new patrol id is a create and is validated.
	replay.PatrolID = "p-10"
	if _, _, err := svc.ReportPatrol(ctx, device, "robot-a", replay); apperr.KindOf(err) != apperr.KindInvalidRequest {
		t.Fatalf("expected invalid request on create, got %v", err)
	}
}

func TestPatrolIDIsTrimmed(t *testing.T) {
	repo := patrolmemory.NewRepository()
	svc := newService(t, repo)
	ctx := context.Background()
	device := auth.Device("robot-a")

	if _, _, err := svc.ReportPatrol(ctx, device, "robot-a", sampleReport("   ", "NORMAL")); apperr.KindOf(err) != apperr.KindInvalidRequest {
		t.Fatalf("expected blank patrol id to be rejected, got %v", err)
	}
	stored, err := repo.FindByPatrolID(ctx, "")
	if err != nil || stored != nil {
		t.Fatalf("nothing may be stored under an empty id: %+v %v", stored, err)
	}

	first, created, err := svc.ReportPatrol(ctx, device, "robot-a", sampleReport(" p-11 ", "NORMAL"))
	if err != nil || !created || first.PatrolID != "p-11" {
		t.Fatalf("unexpected first report: created=%v %+v %v", created, first, err)
	}
	again, created, err := svc.ReportPatrol(ctx, device, "robot-a", sampleReport("p-11", "NORMAL"))
	if err != nil || created || again.ID != first.ID {
		t.Fatalf("trimmed id must replay: created=%v %+v %v", created, again, err)
	}
}

func TestReportPatrolDerivesWarning(t *testing.T) {
	svc := newService(t, patrolmemory.NewRepository())
	result, _, err := svc.ReportPatrol(context.Background(), auth.Human("owner-a"), "robot-a", sampleReport("p-2", "NORMAL", "NEEDS_CHECK"))
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if result.Status != patrol.StatusWarning {
		t.Fatalf("expected warning, got %s", result.Status)
	}
	if !result.CompletedAt.Equal(clock) {
		t.Fatalf("completedAt should default to now, got %s", result.CompletedAt)
	}
}

func TestReportPatrolErrors(t *testing.T) {
	svc := newService(t, patrolmemory.NewRepository())
	ctx := context.Background()

	if _, _, err := svc.ReportPatrol(ctx, auth.Device("robot-b"), "robot-a", sampleReport("p-3", "NORMAL")); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, _, err := svc.ReportPatrol(ctx, auth.Device("ghost"), "ghost", sampleReport("p-3", "NORMAL")); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found robot, got %v", err)
	}
	if _, _, err := svc.ReportPatrol(ctx, auth.Device("robot-lonely"), "robot-lonely", sampleReport("p-3", "NORMAL")); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found elder, got %v", err)
	}
	if _, _, err := svc.ReportPatrol(ctx, auth.Device("robot-a"), "robot-a", patrol.Report{StartedAt: clock}); apperr.KindOf(err) != apperr.KindInvalidRequest {
		t.Fatalf("expected invalid request without patrol id, got %v", err)
	}
}

// racingRepo lets a competing robot win the insert between lookup and create.
type racingRepo struct {
	*patrolmemory.Repository
	competitor string
}

func (r *racingRepo) Create(ctx context.Context, result *patrol.Result, snapshots []patrol.Snapshot) error {
	rival := *result
	rival.ID = "rival"
	rival.RobotID = r.competitor
	_ = r.Repository.Create(ctx, &rival, nil)
	return r.Repository.Create(ctx, result, snapshots)
}

func TestReportPatrolReadAfterConflict(t *testing.T) {
	ctx := context.Background()

	same := newService(t, &racingRepo{Repository: patrolmemory.NewRepository(), competitor: "robot-a"})
	result, created, err := same.ReportPatrol(ctx, auth.Device("robot-a"), "robot-a", sampleReport("p-4", "NORMAL"))
	if err != nil {
		t.Fatalf("same-robot race should succeed: %v", err)
	}
	if created || result.ID != "rival" {
		t.Fatalf("expected the winning row, got created=%v %+v", created, result)
	}

	other := newService(t, &racingRepo{Repository: patrolmemory.NewRepository(), competitor: "robot-b"})
	if _, _, err := other.ReportPatrol(ctx, auth.Device("robot-a"), "robot-a", sampleReport("p-4", "NORMAL")); apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestPatrolReads(t *testing.T) {
	repo := patrolmemory.NewRepository()
	svc := newService(t, repo)
	ctx := context.Background()
	owner := auth.Human("owner-a")

	if _, err := svc.GetLatest(ctx, owner, "elder-a"); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found before any patrol, got %v", err)
	}
	for i, id := range []string{"p-a", "p-b", "p-c"} {
		report := sampleReport(id, "NORMAL")
		done := clock.Add(time.Duration(i) * time.Hour)
		report.CompletedAt = &done
		if i == 1 {
			report.Items[0].ImageURL = "https://img.example/door.jpg"
		}
		if _, _, err := svc.ReportPatrol(ctx, auth.Device("robot-a"), "robot-a", report); err != nil {
			t.Fatalf("report %s: %v", id, err)
		}
	}

	latest, err := svc.GetLatest(ctx, owner, "elder-a")
	if err != nil || latest.PatrolID != "p-c" {
		t.Fatalf("unexpected latest: %+v %v", latest, err)
	}
	page, err := svc.GetHistory(ctx, owner, "elder-a", 1, 2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].PatrolID != "p-a" {
		t.Fatalf("unexpected second page: %+v", page)
	}
	for _, size := range []int{0, 101} {
		if _, err := svc.GetHistory(ctx, owner, "elder-a", 0, size); apperr.KindOf(err) != apperr.KindInvalidRequest {
			t.Fatalf("size %d: expected invalid request, got %v", size, err)
		}
	}
	if _, err := svc.GetHistory(ctx, auth.Device("robot-a"), "elder-a", 0, 10); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("devices may not read history, got %v", err)
	}
	if _, err := svc.GetHistory(ctx, owner, "elder-x", 0, 10); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found elder, got %v", err)
	}

	snapshots, err := svc.ListSnapshots(ctx, owner, "elder-a", "p-b")
	if err != nil || len(snapshots) != 1 || snapshots[0].Target != patrol.TargetDoor {
		t.Fatalf("unexpected snapshots: %+v %v", snapshots, err)
	}

	elder, results, err := svc.ExportHistory(ctx, owner, "elder-a", 0)
	if err != nil || elder.Name != "Grandma" || len(results) != 3 {
		t.Fatalf("unexpected export: %+v %d %v", elder, len(results), err)
	}
}
