package domain

import (
	"context"
	"strings"
	"time"

	"carebot-cloud/internal/apperr"
	care "carebot-cloud/internal/care/domain"
)

// MaxBatchSize caps the events accepted in one report.
const MaxBatchSize = 100

// Type is a device-reported event type.
type Type string

const (
	TypeMedication         Type = "MEDICATION"
	TypeMedicationReminder Type = "MEDICATION_REMINDER"
	TypeButton             Type = "BUTTON"
	TypeWakeUp             Type = "WAKE_UP"
	TypeSleep              Type = "SLEEP"
	TypePatrolComplete     Type = "PATROL_COMPLETE"
	TypeOutDetected        Type = "OUT_DETECTED"
	TypeReturnDetected     Type = "RETURN_DETECTED"
	TypeEmergency          Type = "EMERGENCY"
	TypeFallDetected       Type = "FALL_DETECTED"
)

// Action is the optional user response carried by an event.
type Action string

const (
	ActionNone    Action = ""
	ActionTake    Action = "TAKE"
	ActionLater   Action = "LATER"
	ActionConfirm Action = "CONFIRM"
)

var allowedActions = map[Type][]Action{
	TypeMedication:         {ActionTake, ActionLater},
	TypeMedicationReminder: {ActionTake, ActionLater, ActionConfirm},
	TypeButton:             {ActionConfirm},
	TypeWakeUp:             {ActionConfirm},
	TypeSleep:              {ActionConfirm},
	TypePatrolComplete:     {ActionConfirm},
	TypeOutDetected:        {ActionConfirm},
	TypeReturnDetected:     {ActionConfirm},
	TypeEmergency:          {ActionConfirm},
	TypeFallDetected:       {ActionConfirm},
}

type activityEntry struct {
	kind  care.ActivityKind
	title string
}

var activities = map[Type]activityEntry{
	TypeWakeUp:         {care.ActivityWakeUp, "Woke up"},
	TypeSleep:          {care.ActivitySleep, "Went to sleep"},
	TypePatrolComplete: {care.ActivityPatrolComplete, "Home patrol completed"},
	TypeOutDetected:    {care.ActivityOutDetected, "Went out"},
	TypeReturnDetected: {care.ActivityReturnDetected, "Returned home"},
	TypeEmergency:      {care.ActivityEmergency, "Emergency detected"},
	TypeFallDetected:   {care.ActivityEmergency, "Fall detected"},
}

// MedicationTakenTitle is the activity title recorded for a TAKE.
const MedicationTakenTitle = "Medication taken"

// Report is one event as sent by the robot.
type Report struct {
	Type         string         `json:"type"`
	Action       string         `json:"action,omitempty"`
	MedicationID string         `json:"medicationId,omitempty"`
	DoseSlot     string         `json:"doseSlot,omitempty"`
	Location     string         `json:"location,omitempty"`
	Confidence   *float64       `json:"confidence,omitempty" validate:"omitempty,min=0,max=1"`
	Payload      map[string]any `json:"payload,omitempty"`
	OccurredAt   *time.Time     `json:"occurredAt,omitempty"`
}

// Batch is the body of an event report.
type Batch struct {
	Events []Report `json:"events" validate:"max=100,dive"`
}

// Event is the immutable log row written for every accepted report.
type Event struct {
	ID           int64          `json:"id,omitempty"`
	RobotID      string         `json:"robotId"`
	ElderID      string         `json:"elderId,omitempty"`
	Type         Type           `json:"type"`
	Action       Action         `json:"action,omitempty"`
	MedicationID string         `json:"medicationId,omitempty"`
	Location     string         `json:"location,omitempty"`
	Confidence   *float64       `json:"confidence,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
	OccurredAt   time.Time      `json:"occurredAt"`
	RecordedAt   time.Time      `json:"recordedAt"`
}

// Repository appends event log rows.
type Repository interface {
	Append(ctx context.Context, event Event) error
}

// Normalize upper-cases type and action and checks them against the
// compatibility table. now fills a missing occurred-at.
func Normalize(robotID string, r Report, now time.Time) (Event, error) {
	eventType := Type(canonical(r.Type))
	if eventType == "" {
		return Event{}, apperr.Invalid("event type is required")
	}
	allowed, known := allowedActions[eventType]
	if !known {
		return Event{}, apperr.Invalid("unsupported event type %s", eventType)
	}
	action := Action(canonical(r.Action))
	if action != ActionNone && !containsAction(allowed, action) {
		return Event{}, apperr.Invalid("unsupported action %s for event type %s", action, eventType)
	}
	medicationID := strings.TrimSpace(r.MedicationID)
	if action == ActionTake && medicationID == "" {
		return Event{}, apperr.Invalid("action TAKE requires medicationId")
	}
	if r.Confidence != nil && (*r.Confidence < 0 || *r.Confidence > 1) {
		return Event{}, apperr.Invalid("confidence must be between 0 and 1")
	}
	occurredAt := now
	if r.OccurredAt != nil && !r.OccurredAt.IsZero() {
		occurredAt = r.OccurredAt.UTC()
	}
	return Event{
		RobotID:      robotID,
		Type:         eventType,
		Action:       action,
		MedicationID: medicationID,
		Location:     strings.TrimSpace(r.Location),
		Confidence:   r.Confidence,
		Payload:      r.Payload,
		OccurredAt:   occurredAt,
		RecordedAt:   now,
	}, nil
}

// ActivityFor maps an event type to its activity kind and title.
func ActivityFor(t Type) (care.ActivityKind, string, bool) {
	entry, ok := activities[t]
	return entry.kind, entry.title, ok
}

// IsEmergency reports whether t raises an emergency alert.
func IsEmergency(t Type) bool {
	return t == TypeEmergency || t == TypeFallDetected
}

func canonical(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.ReplaceAll(s, "-", "_")
}

func containsAction(list []Action, action Action) bool {
	for _, a := range list {
		if a == action {
			return true
		}
	}
	return false
}
