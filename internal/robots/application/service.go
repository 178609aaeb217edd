package application

import (
	"context"
	"errors"
	"time"

	"carebot-cloud/internal/apperr"
	"carebot-cloud/internal/auth"
	"carebot-cloud/internal/platform/validation"
	robots "carebot-cloud/internal/robots/domain"
)

// Service exposes robot reads and settings writes.
type Service struct {
	repo  robots.Repository
	guard *auth.Guard
	now   func() time.Time
}

// NewService constructs a robot service.
func NewService(repo robots.Repository, guard *auth.Guard) (*Service, error) {
	if repo == nil {
		return nil, errors.New("robots: nil repo")
	}
	if guard == nil {
		return nil, errors.New("robots: nil guard")
	}
	return &Service{repo: repo, guard: guard, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Get returns the robot's current state to the robot itself or its owner.
func (s *Service) Get(ctx context.Context, p auth.Principal, robotID string) (*robots.Robot, error) {
	return s.guard.AuthorizeDeviceWrite(ctx, p, robotID)
}

// UpdateSettings applies a partial settings change and returns the stored robot.
func (s *Service) UpdateSettings(ctx context.Context, p auth.Principal, robotID string, update robots.SettingsUpdate) (*robots.Robot, error) {
	robot, err := s.guard.AuthorizeSettingsWrite(ctx, p, robotID)
	if err != nil {
		return nil, err
	}
	if err := validation.Struct(update); err != nil {
		return nil, err
	}
	if update.IsEmpty() {
		return robot, nil
	}
	if err := s.repo.UpdateSettings(ctx, robotID, update, s.now()); err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, err
		}
		return nil, apperr.Internal(err, "update settings")
	}
	update.Apply(&robot.Settings)
	return robot, nil
}
