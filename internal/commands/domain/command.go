package domain

import (
	"context"
	"sort"
	"strings"
	"time"
)

// Status is the command lifecycle state.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusReceived   Status = "RECEIVED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusReceived, StatusCancelled},
	StatusReceived:   {StatusInProgress, StatusCompleted, StatusFailed, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusFailed, StatusCancelled},
}

// ParseStatus normalises s; ok is false for unknown values.
func ParseStatus(s string) (Status, bool) {
	status := Status(strings.ToUpper(strings.TrimSpace(s)))
	switch status {
	case StatusPending, StatusReceived, StatusInProgress, StatusCompleted, StatusFailed, StatusCancelled:
		return status, true
	}
	return "", false
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Command is an instruction queued for a robot's next poll.
type Command struct {
	ID          string         `json:"id"`
	RobotID     string         `json:"robotId"`
	Kind        Kind           `json:"kind"`
	Params      map[string]any `json:"params"`
	Status      Status         `json:"status"`
	IssuedAt    time.Time      `json:"issuedAt"`
	ReceivedAt  *time.Time     `json:"receivedAt,omitempty"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	// Seq is the insertion order, used to break issued-at ties.
	Seq int64 `json:"-"`
}

// SortForDelivery orders commands by issued-at, then insertion order.
func SortForDelivery(cmds []Command) {
	sort.SliceStable(cmds, func(i, j int) bool {
		if !cmds[i].IssuedAt.Equal(cmds[j].IssuedAt) {
			return cmds[i].IssuedAt.Before(cmds[j].IssuedAt)
		}
		return cmds[i].Seq < cmds[j].Seq
	})
}

// Repository persists commands.
type Repository interface {
	Create(ctx context.Context, cmd *Command) error
	// DrainPending moves every PENDING command of robotID to RECEIVED and returns them.
	DrainPending(ctx context.Context, robotID string, at time.Time) ([]Command, error)
	Get(ctx context.Context, robotID, id string) (*Command, error)
	List(ctx context.Context, robotID string, status Status, limit int) ([]Command, error)
	// CompareAndSetStatus applies the change only if the command is still in from.
	CompareAndSetStatus(ctx context.Context, id string, from, to Status, at time.Time, result map[string]any) (bool, error)
}
