package auth

import (
	"context"
	"errors"

	"carebot-cloud/internal/apperr"
	care "carebot-cloud/internal/care/domain"
	robots "carebot-cloud/internal/robots/domain"
)

// RobotReader loads robots for ownership checks.
type RobotReader interface {
	Get(ctx context.Context, id string) (*robots.Robot, error)
}

// ElderReader loads elders for ownership checks.
type ElderReader interface {
	GetElder(ctx context.Context, id string) (*care.Elder, error)
}

// Guard applies the per-operation ownership rules. Missing targets are
// reported as NotFound before any authorization decision.
type Guard struct {
	robots RobotReader
	elders ElderReader
}

// NewGuard constructs a Guard.
func NewGuard(robots RobotReader, elders ElderReader) (*Guard, error) {
	if robots == nil {
		return nil, errors.New("guard: nil robot reader")
	}
	if elders == nil {
		return nil, errors.New("guard: nil elder reader")
	}
	return &Guard{robots: robots, elders: elders}, nil
}

// AuthorizeDeviceWrite admits the robot itself or the human owning the robot's elder.
func (g *Guard) AuthorizeDeviceWrite(ctx context.Context, p Principal, robotID string) (*robots.Robot, error) {
	robot, err := g.loadRobot(ctx, robotID)
	if err != nil {
		return nil, err
	}
	switch {
	case p.IsDevice():
		if p.RobotID() != robot.ID {
			return nil, apperr.Forbidden("device %s may not act for robot %s", p.RobotID(), robot.ID)
		}
		return robot, nil
	case p.IsHuman():
		if err := g.requireOwner(ctx, p, robot); err != nil {
			return nil, err
		}
		return robot, nil
	default:
		return nil, apperr.Unauthenticated("missing principal")
	}
}

// AuthorizeSettingsWrite follows the device-write rule.
func (g *Guard) AuthorizeSettingsWrite(ctx context.Context, p Principal, robotID string) (*robots.Robot, error) {
	return g.AuthorizeDeviceWrite(ctx, p, robotID)
}

// AuthorizeOwner admits only the human owning the robot's elder.
func (g *Guard) AuthorizeOwner(ctx context.Context, p Principal, robotID string) (*robots.Robot, error) {
	robot, err := g.loadRobot(ctx, robotID)
	if err != nil {
		return nil, err
	}
	if p.IsDevice() {
		return nil, apperr.Forbidden("devices may not perform owner operations")
	}
	if !p.IsHuman() {
		return nil, apperr.Unauthenticated("missing principal")
	}
	if err := g.requireOwner(ctx, p, robot); err != nil {
		return nil, err
	}
	return robot, nil
}

// AuthorizeHumanRead admits only the owning human; devices are always denied.
func (g *Guard) AuthorizeHumanRead(ctx context.Context, p Principal, elderID string) (*care.Elder, error) {
	elder, err := g.elders.GetElder(ctx, elderID)
	if err != nil {
		return nil, apperr.Internal(err, "load elder")
	}
	if elder == nil {
		return nil, apperr.NotFound("elder %s not found", elderID)
	}
	if p.IsDevice() {
		return nil, apperr.Forbidden("devices may not read elder data")
	}
	if !p.IsHuman() {
		return nil, apperr.Unauthenticated("missing principal")
	}
	if elder.OwnerUserID != p.UserID() {
		return nil, apperr.Forbidden("user %s does not own elder %s", p.UserID(), elder.ID)
	}
	return elder, nil
}

func (g *Guard) loadRobot(ctx context.Context, robotID string) (*robots.Robot, error) {
	robot, err := g.robots.Get(ctx, robotID)
	if err != nil {
		return nil, apperr.Internal(err, "load robot")
	}
	if robot == nil {
		return nil, apperr.NotFound("robot %s not found", robotID)
	}
	return robot, nil
}

func (g *Guard) requireOwner(ctx context.Context, p Principal, robot *robots.Robot) error {
	if robot.ElderID == "" {
		return apperr.Forbidden("robot %s is not assigned to an elder", robot.ID)
	}
	elder, err := g.elders.GetElder(ctx, robot.ElderID)
	if err != nil {
		return apperr.Internal(err, "load elder")
	}
	if elder == nil || elder.OwnerUserID != p.UserID() {
		return apperr.Forbidden("user %s does not own robot %s", p.UserID(), robot.ID)
	}
	return nil
}
