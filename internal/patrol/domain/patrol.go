// Package domain models patrol sweeps: the per-checkpoint items a robot
// reports and the aggregate safety status derived from them.
package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"carebot-cloud/internal/apperr"
)

// ErrDuplicatePatrolID is returned by Create when the patrol id already exists.
var ErrDuplicatePatrolID = errors.New("patrol: duplicate patrol id")

// Target is the household object a checkpoint inspects.
type Target string

const (
	TargetGasValve  Target = "GAS_VALVE"
	TargetDoor      Target = "DOOR"
	TargetAppliance Target = "APPLIANCE"
	TargetOutlet    Target = "OUTLET"
	TargetWindow    Target = "WINDOW"
	TargetMultiTap  Target = "MULTI_TAP"
)

var targetLabels = map[Target]string{
	TargetGasValve:  "Gas valve",
	TargetDoor:      "Door",
	TargetAppliance: "Appliance",
	TargetOutlet:    "Outlet",
	TargetWindow:    "Window",
	TargetMultiTap:  "Multi-tap",
}

// DefaultLabel is the display name used when an item has no label.
func DefaultLabel(t Target) string {
	return targetLabels[t]
}

// ItemStatus is what the robot observed at a checkpoint.
type ItemStatus string

const (
	ItemNormal     ItemStatus = "NORMAL"
	ItemLocked     ItemStatus = "LOCKED"
	ItemOff        ItemStatus = "OFF"
	ItemOn         ItemStatus = "ON"
	ItemUnlocked   ItemStatus = "UNLOCKED"
	ItemOpen       ItemStatus = "OPEN"
	ItemClosed     ItemStatus = "CLOSED"
	ItemNeedsCheck ItemStatus = "NEEDS_CHECK"
)

var knownStatuses = map[ItemStatus]bool{
	ItemNormal: true, ItemLocked: true, ItemOff: true, ItemOn: true,
	ItemUnlocked: true, ItemOpen: true, ItemClosed: true, ItemNeedsCheck: true,
}

// NeedsAttention reports whether s puts the patrol into WARNING.
func (s ItemStatus) NeedsAttention() bool {
	return s == ItemOff || s == ItemUnlocked || s == ItemNeedsCheck
}

// Status is the aggregate outcome of a patrol.
type Status string

const (
	StatusSafe    Status = "SAFE"
	StatusWarning Status = "WARNING"
)

// Item is one checkpoint of a patrol.
type Item struct {
	Target     Target     `json:"target"`
	Label      string     `json:"label"`
	Status     ItemStatus `json:"status"`
	Confidence *float64   `json:"confidence,omitempty"`
	ImageURL   string     `json:"imageUrl,omitempty"`
	CheckedAt  time.Time  `json:"checkedAt"`
}

// Result is a persisted patrol sweep. PatrolID is client-supplied and unique.
type Result struct {
	ID          string    `json:"id"`
	PatrolID    string    `json:"patrolId"`
	RobotID     string    `json:"robotId"`
	ElderID     string    `json:"elderId"`
	Status      Status    `json:"status"`
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
	CreatedAt   time.Time `json:"createdAt"`
	Items       []Item    `json:"items"`
}

// Snapshot is the gallery record kept for every item carrying an image.
type Snapshot struct {
	ID         int64      `json:"id"`
	PatrolID   string     `json:"patrolId"`
	RobotID    string     `json:"robotId"`
	ElderID    string     `json:"elderId"`
	Target     Target     `json:"target"`
	Label      string     `json:"label"`
	Status     ItemStatus `json:"status"`
	ImageURL   string     `json:"imageUrl"`
	CapturedAt time.Time  `json:"capturedAt"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// ItemReport is one checkpoint as sent by the robot.
type ItemReport struct {
	Target     string     `json:"target" validate:"required"`
	Label      string     `json:"label,omitempty" validate:"max=100"`
	Status     string     `json:"status" validate:"required"`
	Confidence *float64   `json:"confidence,omitempty" validate:"omitempty,min=0,max=1"`
	ImageURL   string     `json:"imageUrl,omitempty" validate:"omitempty,url"`
	CheckedAt  *time.Time `json:"checkedAt,omitempty"`
}

// MaxPatrolIDLength bounds the client-supplied patrol id.
const MaxPatrolIDLength = 128

// Report is the body of a patrol report.
type Report struct {
	PatrolID    string       `json:"patrolId" validate:"required,max=128"`
	StartedAt   time.Time    `json:"startedAt" validate:"required"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
	Items       []ItemReport `json:"items" validate:"max=100,dive"`
}

// NormalizeKey trims the patrol id and checks the fields a lookup needs. Items
// are left alone: a replay returns the stored result without looking at them.
func (r *Report) NormalizeKey() error {
	r.PatrolID = strings.TrimSpace(r.PatrolID)
	if r.PatrolID == "" {
		return apperr.Invalid("patrolId is required")
	}
	if len(r.PatrolID) > MaxPatrolIDLength {
		return apperr.Invalid("patrolId must be <= %d characters", MaxPatrolIDLength)
	}
	if r.StartedAt.IsZero() {
		return apperr.Invalid("startedAt is required")
	}
	return nil
}

// Repository persists patrol results.
type Repository interface {
	FindByPatrolID(ctx context.Context, patrolID string) (*Result, error)
	// Create stores the result, its items and snapshots. A taken patrol id yields ErrDuplicatePatrolID.
	Create(ctx context.Context, result *Result, snapshots []Snapshot) error
	Latest(ctx context.Context, elderID string) (*Result, error)
	History(ctx context.Context, elderID string, limit, offset int) ([]Result, error)
	Snapshots(ctx context.Context, elderID, patrolID string) ([]Snapshot, error)
}

// DeriveStatus is WARNING iff any item needs attention.
func DeriveStatus(items []Item) Status {
	for _, item := range items {
		if item.Status.NeedsAttention() {
			return StatusWarning
		}
	}
	return StatusSafe
}

// ResolveCompletedAt picks the supplied time, else the latest item check, else now.
func ResolveCompletedAt(supplied *time.Time, items []ItemReport, now time.Time) time.Time {
	if supplied != nil && !supplied.IsZero() {
		return supplied.UTC()
	}
	var latest time.Time
	for _, item := range items {
		if item.CheckedAt != nil && item.CheckedAt.After(latest) {
			latest = *item.CheckedAt
		}
	}
	if !latest.IsZero() {
		return latest.UTC()
	}
	return now
}

// NewResult builds the result and snapshots for a first-time report.
func NewResult(id, robotID, elderID string, report Report, now time.Time) (*Result, []Snapshot, error) {
	completedAt := ResolveCompletedAt(report.CompletedAt, report.Items, now)
	items := make([]Item, 0, len(report.Items))
	for idx, in := range report.Items {
		target := Target(canonical(in.Target))
		if _, ok := targetLabels[target]; !ok {
			return nil, nil, apperr.Invalid("items[%d]: unknown target %s", idx, in.Target)
		}
		status := ItemStatus(canonical(in.Status))
		if !knownStatuses[status] {
			return nil, nil, apperr.Invalid("items[%d]: unknown status %s", idx, in.Status)
		}
		label := strings.TrimSpace(in.Label)
		if label == "" {
			label = DefaultLabel(target)
		}
		checkedAt := completedAt
		if in.CheckedAt != nil && !in.CheckedAt.IsZero() {
			checkedAt = in.CheckedAt.UTC()
		}
		items = append(items, Item{
			Target:     target,
			Label:      label,
			Status:     status,
			Confidence: in.Confidence,
			ImageURL:   strings.TrimSpace(in.ImageURL),
			CheckedAt:  checkedAt,
		})
	}

	result := &Result{
		ID:          id,
		PatrolID:    strings.TrimSpace(report.PatrolID),
		RobotID:     robotID,
		ElderID:     elderID,
		Status:      DeriveStatus(items),
		StartedAt:   report.StartedAt.UTC(),
		CompletedAt: completedAt,
		CreatedAt:   now,
		Items:       items,
	}

	var snapshots []Snapshot
	for _, item := range items {
		if item.ImageURL == "" {
			continue
		}
		snapshots = append(snapshots, Snapshot{
			PatrolID:   result.PatrolID,
			RobotID:    robotID,
			ElderID:    elderID,
			Target:     item.Target,
			Label:      item.Label,
			Status:     item.Status,
			ImageURL:   item.ImageURL,
			CapturedAt: item.CheckedAt,
			CreatedAt:  now,
		})
	}
	return result, snapshots, nil
}

func canonical(s string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "-", "_")
}
