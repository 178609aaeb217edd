package application

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"carebot-cloud/internal/apperr"
	"carebot-cloud/internal/auth"
	commands "carebot-cloud/internal/commands/domain"
	"carebot-cloud/internal/notify"
	"carebot-cloud/internal/observability/metrics"
	"carebot-cloud/internal/platform/validation"
	robots "carebot-cloud/internal/robots/domain"
)

// Drainer hands out a robot's pending commands.
type Drainer interface {
	Drain(ctx context.Context, robotID string) ([]commands.Command, error)
}

// TxManager runs a unit of work.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// SyncResult is returned to the polling robot.
type SyncResult struct {
	Commands   []commands.Command `json:"commands"`
	ServerTime time.Time          `json:"serverTime"`
}

// Coordinator applies robot heartbeats and tracks connectivity.
type Coordinator struct {
	robots   robots.Repository
	drainer  Drainer
	guard    *auth.Guard
	tx       TxManager
	notifier notify.Notifier
	now      func() time.Time
	logger   *zap.Logger
}

// NewCoordinator constructs a sync coordinator. A nil notifier disables notifications.
func NewCoordinator(repo robots.Repository, drainer Drainer, guard *auth.Guard, tx TxManager, notifier notify.Notifier, logger *zap.Logger) (*Coordinator, error) {
	if repo == nil {
		return nil, errors.New("devicesync: nil robot repo")
	}
	if drainer == nil {
		return nil, errors.New("devicesync: nil drainer")
	}
	if guard == nil {
		return nil, errors.New("devicesync: nil guard")
	}
	if tx == nil {
		return nil, errors.New("devicesync: nil tx manager")
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		robots:   repo,
		drainer:  drainer,
		guard:    guard,
		tx:       tx,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.Named("devicesync"),
	}, nil
}

// WithClock overrides the time source.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	if now != nil {
		c.now = now
	}
	return c
}

// Sync applies the optional partial snapshot, marks the robot connected and
// drains its pending commands in one unit of work. Commands are only returned
// once that unit commits; the reconnect notification follows the commit.
func (c *Coordinator) Sync(ctx context.Context, p auth.Principal, robotID string, snapshot *robots.StateUpdate) (*SyncResult, error) {
	start := time.Now()
	result, err := c.sync(ctx, p, robotID, snapshot)
	outcome := metrics.ResultSuccess
	if err != nil {
		outcome = metrics.ResultError
	}
	metrics.ObserveSync(outcome, time.Since(start))
	return result, err
}

func (c *Coordinator) sync(ctx context.Context, p auth.Principal, robotID string, snapshot *robots.StateUpdate) (*SyncResult, error) {
	robot, err := c.guard.AuthorizeDeviceWrite(ctx, p, robotID)
	if err != nil {
		return nil, err
	}
	if snapshot != nil {
		if err := validation.Struct(snapshot); err != nil {
			return nil, err
		}
	}

	now := c.now()
	var (
		previous robots.Connectivity
		cmds     []commands.Command
	)
	err = c.tx.WithinTx(ctx, func(ctx context.Context) error {
		if snapshot != nil && !snapshot.IsEmpty() {
			if err := c.robots.ApplyState(ctx, robotID, *snapshot, now); err != nil {
				return err
			}
		}
		prev, err := c.robots.MarkConnected(ctx, robotID, now)
		if err != nil {
			return err
		}
		previous = prev
		cmds, err = c.drainer.Drain(ctx, robotID)
		return err
	})
	if err != nil {
		return nil, apperr.Internal(err, "apply sync")
	}

	if previous == robots.Disconnected {
		if snapshot != nil {
			snapshot.Apply(robot)
		}
		robot.Connectivity = robots.Connected
		robot.LastSyncAt = &now
		robot.OfflineNotifiedAt = nil
		if err := c.notifier.StatusChanged(ctx, *robot); err != nil {
			c.logger.Warn("status notification failed", zap.String("robot_id", robotID), zap.Error(err))
		}
	}

	return &SyncResult{Commands: cmds, ServerTime: now}, nil
}

// SetConnectivity records a connectivity change observed outside a sync and
// reports whether the stored status changed.
func (c *Coordinator) SetConnectivity(ctx context.Context, robotID string, status robots.Connectivity) (bool, error) {
	now := c.now()
	switch status {
	case robots.Disconnected:
		return c.markOffline(ctx, robotID, now)
	case robots.Connected:
		previous, err := c.robots.MarkConnected(ctx, robotID, now)
		if err != nil {
			return false, wrapRepoErr(err, "mark connected")
		}
		if previous == robots.Connected {
			return false, nil
		}
		robot, err := c.robots.Get(ctx, robotID)
		if err == nil && robot != nil {
			if err := c.notifier.StatusChanged(ctx, *robot); err != nil {
				c.logger.Warn("status notification failed", zap.String("robot_id", robotID), zap.Error(err))
			}
		}
		return true, nil
	default:
		return false, apperr.Invalid("unknown connectivity %q", status)
	}
}

func (c *Coordinator) markOffline(ctx context.Context, robotID string, now time.Time) (bool, error) {
	previous, err := c.robots.MarkDisconnected(ctx, robotID, now)
	if err != nil {
		return false, wrapRepoErr(err, "mark disconnected")
	}
	if previous == robots.Disconnected {
		return false, nil
	}
	claimed, err := c.robots.ClaimOfflineNotification(ctx, robotID, now)
	if err != nil {
		return true, wrapRepoErr(err, "claim offline notification")
	}
	if !claimed {
		return true, nil
	}
	robot, err := c.robots.Get(ctx, robotID)
	if err != nil || robot == nil {
		c.logger.Warn("offline notification skipped", zap.String("robot_id", robotID), zap.Error(err))
		return true, nil
	}
	var offlineFor time.Duration
	if robot.LastSyncAt != nil {
		offlineFor = now.Sub(*robot.LastSyncAt)
	}
	if err := c.notifier.Offline(ctx, *robot, offlineFor); err != nil {
		c.logger.Warn("offline notification failed", zap.String("robot_id", robotID), zap.Error(err))
	}
	return true, nil
}

func wrapRepoErr(err error, msg string) error {
	if apperr.KindOf(err) == apperr.KindNotFound {
		return err
	}
	return apperr.Internal(err, msg)
}
