package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"carebot-cloud/internal/apperr"
	"carebot-cloud/internal/auth"
	care "carebot-cloud/internal/care/domain"
	events "carebot-cloud/internal/deviceevents/domain"
	"carebot-cloud/internal/notify"
	"carebot-cloud/internal/observability/metrics"
	"carebot-cloud/internal/platform/validation"
	robots "carebot-cloud/internal/robots/domain"
)

const takeMethod = "ROBOT"

// TxManager runs a unit of work.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Summary reports the outcome of one batch.
type Summary struct {
	Processed     int `json:"processed"`
	TakenCount    int `json:"takenCount"`
	DeferredCount int `json:"deferredCount"`
}

// Ingester validates device event batches and applies their side effects.
type Ingester struct {
	events   events.Repository
	care     care.Store
	guard    *auth.Guard
	tx       TxManager
	notifier notify.Notifier
	loc      *time.Location
	now      func() time.Time
	logger   *zap.Logger
}

// NewIngester constructs an event ingester. loc is the calendar used for dose slots.
func NewIngester(repo events.Repository, store care.Store, guard *auth.Guard, tx TxManager, notifier notify.Notifier, loc *time.Location, logger *zap.Logger) (*Ingester, error) {
	if repo == nil {
		return nil, errors.New("deviceevents: nil event repo")
	}
	if store == nil {
		return nil, errors.New("deviceevents: nil care store")
	}
	if guard == nil {
		return nil, errors.New("deviceevents: nil guard")
	}
	if tx == nil {
		return nil, errors.New("deviceevents: nil tx manager")
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingester{
		events:   repo,
		care:     store,
		guard:    guard,
		tx:       tx,
		notifier: notifier,
		loc:      loc,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.Named("deviceevents"),
	}, nil
}

// WithClock overrides the time source.
func (i *Ingester) WithClock(now func() time.Time) *Ingester {
	if now != nil {
		i.now = now
	}
	return i
}

// plannedEvent is a validated event with its resolved side effect inputs.
type plannedEvent struct {
	event      events.Event
	medication *care.Medication
	slot       care.DoseSlot
}

type pendingNotification func(ctx context.Context) error

// ReportEvents applies a batch atomically: every event is validated before any
// write, all writes share one unit of work, and notifications go out after commit.
func (i *Ingester) ReportEvents(ctx context.Context, p auth.Principal, robotID string, batch []events.Report) (*Summary, error) {
	robot, err := i.guard.AuthorizeDeviceWrite(ctx, p, robotID)
	if err != nil {
		return nil, err
	}
	if len(batch) > events.MaxBatchSize {
		return nil, apperr.Invalid("at most %d events per report", events.MaxBatchSize)
	}
	if err := validation.Struct(events.Batch{Events: batch}); err != nil {
		return nil, err
	}

	var elder *care.Elder
	if robot.ElderID != "" {
		elder, err = i.care.GetElder(ctx, robot.ElderID)
		if err != nil {
			return nil, apperr.Internal(err, "load elder")
		}
	}

	now := i.now()
	plan := make([]plannedEvent, 0, len(batch))
	for idx, report := range batch {
		planned, err := i.prepare(ctx, robot, elder, report, now)
		if err != nil {
			return nil, withIndex(idx, err)
		}
		plan = append(plan, planned)
	}

	summary := &Summary{}
	var outbox []pendingNotification
	err = i.tx.WithinTx(ctx, func(ctx context.Context) error {
		for _, planned := range plan {
			notifications, err := i.apply(ctx, robot, elder, planned, summary)
			if err != nil {
				return err
			}
			outbox = append(outbox, notifications...)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Internal(err, "apply device events")
	}

	for _, planned := range plan {
		metrics.IncDeviceEvent(string(planned.event.Type), string(planned.event.Action))
	}
	for _, send := range outbox {
		if err := send(ctx); err != nil {
			i.logger.Warn("event notification failed", zap.String("robot_id", robot.ID), zap.Error(err))
		}
	}
	summary.Processed = len(plan)
	return summary, nil
}

func (i *Ingester) prepare(ctx context.Context, robot *robots.Robot, elder *care.Elder, report events.Report, now time.Time) (plannedEvent, error) {
	event, err := events.Normalize(robot.ID, report, now)
	if err != nil {
		return plannedEvent{}, err
	}
	event.ElderID = robot.ElderID
	planned := plannedEvent{event: event}

	switch event.Action {
	case events.ActionTake:
		if elder == nil {
			return plannedEvent{}, apperr.NotFound("robot %s is not assigned to an elder", robot.ID)
		}
		med, err := i.care.FindMedication(ctx, elder.ID, event.MedicationID)
		if err != nil {
			return plannedEvent{}, apperr.Internal(err, "load medication")
		}
		if med == nil {
			return plannedEvent{}, apperr.NotFound("medication %s not found", event.MedicationID)
		}
		slot := care.SlotAt(event.OccurredAt, i.loc)
		if report.DoseSlot != "" {
			explicit, ok := care.ParseDoseSlot(report.DoseSlot)
			if !ok {
				return plannedEvent{}, apperr.Invalid("unknown dose slot %q", report.DoseSlot)
			}
			slot = explicit
		}
		if !med.Covers(slot) {
			return plannedEvent{}, apperr.Invalid("medication %s is not scheduled for %s", med.ID, slot)
		}
		planned.medication = med
		planned.slot = slot
	case events.ActionLater:
		if elder != nil && event.MedicationID != "" {
			med, err := i.care.FindMedication(ctx, elder.ID, event.MedicationID)
			if err != nil {
				return plannedEvent{}, apperr.Internal(err, "load medication")
			}
			planned.medication = med
		}
	}
	return planned, nil
}

func (i *Ingester) apply(ctx context.Context, robot *robots.Robot, elder *care.Elder, planned plannedEvent, summary *Summary) ([]pendingNotification, error) {
	event := planned.event
	if err := i.events.Append(ctx, event); err != nil {
		return nil, err
	}

	var outbox []pendingNotification
	switch event.Action {
	case events.ActionTake:
		record := care.MedicationRecord{
			MedicationID: planned.medication.ID,
			Date:         event.OccurredAt.In(i.loc).Format("2006-01-02"),
			Slot:         planned.slot,
			Status:       care.RecordTaken,
			TakenAt:      event.OccurredAt,
			Method:       takeMethod,
		}
		if err := i.care.UpsertMedicationRecord(ctx, record); err != nil {
			return nil, err
		}
		if err := i.insertActivity(ctx, elder, robot, care.ActivityMedicationTaken, events.MedicationTakenTitle, event); err != nil {
			return nil, err
		}
		summary.TakenCount++
	case events.ActionLater:
		summary.DeferredCount++
		if elder != nil {
			medName := ""
			if planned.medication != nil {
				medName = planned.medication.Name
			}
			target := *elder
			outbox = append(outbox, func(ctx context.Context) error {
				return i.notifier.MedicationDeferred(ctx, target, medName)
			})
		}
		if kind, title, ok := events.ActivityFor(event.Type); ok {
			if err := i.insertActivity(ctx, elder, robot, kind, title, event); err != nil {
				return nil, err
			}
		}
	case events.ActionConfirm:
	default:
		if kind, title, ok := events.ActivityFor(event.Type); ok {
			if err := i.insertActivity(ctx, elder, robot, kind, title, event); err != nil {
				return nil, err
			}
		}
		if events.IsEmergency(event.Type) && elder != nil {
			target := *elder
			device := *robot
			location := event.Location
			outbox = append(outbox, func(ctx context.Context) error {
				return i.notifier.Emergency(ctx, target, device, location)
			})
		}
	}
	return outbox, nil
}

func (i *Ingester) insertActivity(ctx context.Context, elder *care.Elder, robot *robots.Robot, kind care.ActivityKind, title string, event events.Event) error {
	if elder == nil {
		return nil
	}
	return i.care.InsertActivity(ctx, care.Activity{
		ElderID:    elder.ID,
		RobotID:    robot.ID,
		Kind:       kind,
		Title:      title,
		Location:   event.Location,
		OccurredAt: event.OccurredAt,
	})
}

func withIndex(idx int, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return &apperr.Error{Kind: appErr.Kind, Message: fmt.Sprintf("events[%d]: %s", idx, appErr.Message), Err: appErr.Err}
	}
	return err
}
