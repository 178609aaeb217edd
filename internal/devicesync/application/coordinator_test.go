package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"carebot-cloud/internal/apperr"
	"carebot-cloud/internal/auth"
	care "carebot-cloud/internal/care/domain"
	carememory "carebot-cloud/internal/care/infrastructure/memory"
	commandsapp "carebot-cloud/internal/commands/application"
	commands "carebot-cloud/internal/commands/domain"
	commandmemory "carebot-cloud/internal/commands/infrastructure/memory"
	"carebot-cloud/internal/notify"
	"carebot-cloud/internal/platform/memory"
	robots "carebot-cloud/internal/robots/domain"
	robotmemory "carebot-cloud/internal/robots/infrastructure/memory"
)

type testClock struct {
	t time.Time
}

func (c *testClock) now() time.Time { return c.t }

type fixture struct {
	coordinator *Coordinator
	commands    *commandsapp.Service
	robots      *robotmemory.RobotRepository
	notifier    *notify.Recorder
	clock       *testClock
}

func intPtr(i int) *int { return &i }

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	robotRepo := robotmemory.NewRobotRepository()
	careStore := carememory.NewStore()
	_ = careStore.CreateElder(ctx, care.Elder{ID: "elder-a", OwnerUserID: "owner-a"})
	_ = robotRepo.Create(ctx, &robots.Robot{
		ID:        "robot-a",
		ElderID:   "elder-a",
		LCD:       robots.LCDState{Mode: "IDLE", Emotion: "HAPPY", Message: "hello"},
		Dispenser: robots.Dispenser{Remaining: 10, Capacity: 14},
		Position:  robots.Position{RoomID: "living", X: 1.5, Y: 2.5, Heading: 90},
	})
	_ = robotRepo.Create(ctx, &robots.Robot{ID: "robot-b", ElderID: "elder-a"})
	guard, err := auth.NewGuard(robotRepo, careStore)
	if err != nil {
		t.Fatalf("guard: %v", err)
	}
	clock := &testClock{t: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	cmdSvc, err := commandsapp.NewService(commandmemory.NewCommandRepository(), guard, nil)
	if err != nil {
		t.Fatalf("commands: %v", err)
	}
	cmdSvc.WithClock(clock.now)
	recorder := &notify.Recorder{}
	coordinator, err := NewCoordinator(robotRepo, cmdSvc, guard, memory.NewTxManager(), recorder, nil)
	if err != nil {
		t.Fatalf("coordinator: %v", err)
	}
	coordinator.WithClock(clock.now)
	return &fixture{coordinator: coordinator, commands: cmdSvc, robots: robotRepo, notifier: recorder, clock: clock}
}

func TestSyncPartialUpdateKeepsOtherFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.coordinator.Sync(ctx, auth.Device("robot-a"), "robot-a", &robots.StateUpdate{BatteryLevel: intPtr(42)})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	robot, _ := f.robots.Get(ctx, "robot-a")
	if robot.BatteryLevel != 42 {
		t.Fatalf("expected battery 42, got %d", robot.BatteryLevel)
	}
	if robot.LCD.Mode != "IDLE" || robot.LCD.Message != "hello" {
		t.Fatalf("lcd clobbered: %+v", robot.LCD)
	}
	if robot.Dispenser.Remaining != 10 || robot.Dispenser.Capacity != 14 {
		t.Fatalf("dispenser clobbered: %+v", robot.Dispenser)
	}
	if robot.Position.RoomID != "living" || robot.Position.X != 1.5 {
		t.Fatalf("position clobbered: %+v", robot.Position)
	}
	if robot.Connectivity != robots.Connected || robot.LastSyncAt == nil || !robot.LastSyncAt.Equal(f.clock.t) {
		t.Fatalf("expected connected with last sync, got %+v", robot)
	}
}

func TestSyncNestedGroupPartial(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	update := &robots.StateUpdate{
		LCD:      &robots.LCDUpdate{Emotion: strPtr("SLEEPY")},
		Position: &robots.PositionUpdate{X: floatPtr(3)},
	}
	if _, err := f.coordinator.Sync(ctx, auth.Human("owner-a"), "robot-a", update); err != nil {
		t.Fatalf("sync: %v", err)
	}
	robot, _ := f.robots.Get(ctx, "robot-a")
	if robot.LCD.Emotion != "SLEEPY" || robot.LCD.Mode != "IDLE" {
		t.Fatalf("unexpected lcd: %+v", robot.LCD)
	}
	if robot.Position.X != 3 || robot.Position.Y != 2.5 || robot.Position.RoomID != "living" {
		t.Fatalf("unexpected position: %+v", robot.Position)
	}
}

func TestSyncRejectsInvalidSnapshot(t *testing.T) {
	f := newFixture(t)
	_, err := f.coordinator.Sync(context.Background(), auth.Device("robot-a"), "robot-a", &robots.StateUpdate{BatteryLevel: intPtr(120)})
	if apperr.KindOf(err) != apperr.KindInvalidRequest {
		t.Fatalf("expected invalid request, got %v", err)
	}
}

func TestSyncDrainsCommandsInOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, _ := f.commands.Issue(ctx, "robot-a", commands.KindSpeak, map[string]any{"text": "a"})
	f.clock.t = f.clock.t.Add(time.Second)
	second, _ := f.commands.Issue(ctx, "robot-a", commands.KindStop, nil)

	result, err := f.coordinator.Sync(ctx, auth.Device("robot-a"), "robot-a", nil)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(result.Commands) != 2 || result.Commands[0].ID != first.ID || result.Commands[1].ID != second.ID {
		t.Fatalf("unexpected drain: %+v", result.Commands)
	}
	again, _ := f.coordinator.Sync(ctx, auth.Device("robot-a"), "robot-a", nil)
	if len(again.Commands) != 0 {
		t.Fatalf("commands redelivered: %+v", again.Commands)
	}
}

type unitKey struct{}

// commitFailingTx runs fn inside a marked context and fails the commit when err is set.
type commitFailingTx struct {
	err error
}

func (tx *commitFailingTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := fn(context.WithValue(ctx, unitKey{}, true)); err != nil {
		return err
	}
	return tx.err
}

type unitDrainer struct {
	inUnit bool
}

func (d *unitDrainer) Drain(ctx context.Context, _ string) ([]commands.Command, error) {
	d.inUnit = ctx.Value(unitKey{}) != nil
	return []commands.Command{{ID: "cmd-1", Kind: commands.KindStop, Status: commands.StatusReceived}}, nil
}

func TestSyncDrainsInsideUnitOfWork(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	careStore := carememory.NewStore()
	_ = careStore.CreateElder(ctx, care.Elder{ID: "elder-a", OwnerUserID: "owner-a"})
	guard, _ := auth.NewGuard(f.robots, careStore)
	drainer := &unitDrainer{}
	tx := &commitFailingTx{}
	coordinator, err := NewCoordinator(f.robots, drainer, guard, tx, nil, nil)
	if err != nil {
		t.Fatalf("coordinator: %v", err)
	}

	result, err := coordinator.Sync(ctx, auth.Device("robot-a"), "robot-a", nil)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if !drainer.inUnit || len(result.Commands) != 1 {
		t.Fatalf("drain ran outside the unit of work: %+v", result)
	}

	tx.err = errors.New("commit failed")
	result, err = coordinator.Sync(ctx, auth.Device("robot-a"), "robot-a", nil)
	if apperr.KindOf(err) != apperr.KindInternal || result != nil {
		t.Fatalf("expected internal error and no commands, got %+v %v", result, err)
	}
}

func TestSyncAccessGuard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.coordinator.Sync(ctx, auth.Device("robot-a"), "robot-b", nil); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := f.coordinator.Sync(ctx, auth.Human("owner-a"), "robot-b", nil); err != nil {
		t.Fatalf("owner sync: %v", err)
	}
	if _, err := f.coordinator.Sync(ctx, auth.Device("robot-x"), "robot-x", nil); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOfflineNotifiedOncePerOutage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	device := auth.Device("robot-a")

	// Newly provisioned robots start disconnected; the first sync is a transition.
	if _, err := f.coordinator.Sync(ctx, device, "robot-a", nil); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if f.notifier.Count(notify.EventStatusChanged) != 1 {
		t.Fatalf("expected status change on first sync, got %d", f.notifier.Count(notify.EventStatusChanged))
	}
	if _, err := f.coordinator.Sync(ctx, device, "robot-a", nil); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if f.notifier.Count(notify.EventStatusChanged) != 1 {
		t.Fatalf("steady sync must not notify")
	}

	f.clock.t = f.clock.t.Add(10 * time.Minute)
	changed, err := f.coordinator.SetConnectivity(ctx, "robot-a", robots.Disconnected)
	if err != nil || !changed {
		t.Fatalf("expected transition, changed=%v err=%v", changed, err)
	}
	changed, err = f.coordinator.SetConnectivity(ctx, "robot-a", robots.Disconnected)
	if err != nil || changed {
		t.Fatalf("expected no change, changed=%v err=%v", changed, err)
	}
	if f.notifier.Count(notify.EventOffline) != 1 {
		t.Fatalf("expected exactly one offline alert, got %d", f.notifier.Count(notify.EventOffline))
	}
	if got := f.notifier.Calls[len(f.notifier.Calls)-1].OfflineFor; got != 10*time.Minute {
		t.Fatalf("expected 10m offline, got %v", got)
	}

	// Reconnect re-arms the alert.
	if _, err := f.coordinator.Sync(ctx, device, "robot-a", nil); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if f.notifier.Count(notify.EventStatusChanged) != 2 {
		t.Fatalf("expected status change after outage")
	}
	f.clock.t = f.clock.t.Add(10 * time.Minute)
	_, _ = f.coordinator.SetConnectivity(ctx, "robot-a", robots.Disconnected)
	if f.notifier.Count(notify.EventOffline) != 2 {
		t.Fatalf("expected second outage to alert, got %d", f.notifier.Count(notify.EventOffline))
	}
}

func TestSetConnectivityErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.coordinator.SetConnectivity(ctx, "robot-a", "FLAKY"); apperr.KindOf(err) != apperr.KindInvalidRequest {
		t.Fatalf("expected invalid, got %v", err)
	}
	if _, err := f.coordinator.SetConnectivity(ctx, "ghost", robots.Disconnected); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	changed, err := f.coordinator.SetConnectivity(ctx, "robot-a", robots.Connected)
	if err != nil || !changed {
		t.Fatalf("expected connect transition, changed=%v err=%v", changed, err)
	}
}

func TestLivenessSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _ = f.coordinator.Sync(ctx, auth.Device("robot-a"), "robot-a", nil)
	f.clock.t = f.clock.t.Add(2 * time.Minute)
	_, _ = f.coordinator.Sync(ctx, auth.Device("robot-b"), "robot-b", nil)
	f.clock.t = f.clock.t.Add(2 * time.Minute)

	sweeper, err := NewLivenessSweeper(f.robots, f.coordinator, "@every 1m", 3*time.Minute, nil)
	if err != nil {
		t.Fatalf("sweeper: %v", err)
	}
	count, err := sweeper.Sweep(ctx)
	if err != nil || count != 1 {
		t.Fatalf("expected one robot swept, got %d err=%v", count, err)
	}
	a, _ := f.robots.Get(ctx, "robot-a")
	b, _ := f.robots.Get(ctx, "robot-b")
	if a.Connectivity != robots.Disconnected || b.Connectivity != robots.Connected {
		t.Fatalf("unexpected connectivity a=%s b=%s", a.Connectivity, b.Connectivity)
	}
	count, _ = sweeper.Sweep(ctx)
	if count != 0 {
		t.Fatalf("second sweep should be idle, got %d", count)
	}

	if _, err := NewLivenessSweeper(f.robots, f.coordinator, "not a schedule", time.Minute, nil); err == nil {
		t.Fatalf("expected schedule parse error")
	}
}
