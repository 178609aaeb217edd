package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"carebot-cloud/internal/apperr"
	robots "carebot-cloud/internal/robots/domain"
)

// RobotRepository keeps robots in process memory.
type RobotRepository struct {
	mu     sync.Mutex
	robots map[string]*robots.Robot
}

// NewRobotRepository constructs an empty repository.
func NewRobotRepository() *RobotRepository {
	return &RobotRepository{robots: make(map[string]*robots.Robot)}
}

func (r *RobotRepository) Create(_ context.Context, robot *robots.Robot) error {
	if robot == nil {
		return errors.New("robot repo: nil robot")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.robots[robot.ID]; ok {
		return apperr.Conflict("robot %s already exists", robot.ID)
	}
	clone := *robot
	if clone.Connectivity == "" {
		clone.Connectivity = robots.Disconnected
	}
	r.robots[robot.ID] = &clone
	return nil
}

func (r *RobotRepository) Get(_ context.Context, id string) (*robots.Robot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	robot, ok := r.robots[id]
	if !ok {
		return nil, nil
	}
	clone := *robot
	return &clone, nil
}

func (r *RobotRepository) ApplyState(_ context.Context, id string, update robots.StateUpdate, at time.Time) error {
	if update.IsEmpty() {
		return nil
	}
	return r.mutate(id, func(robot *robots.Robot) {
		update.Apply(robot)
		robot.UpdatedAt = at
	})
}

func (r *RobotRepository) UpdateSettings(_ context.Context, id string, update robots.SettingsUpdate, at time.Time) error {
	if update.IsEmpty() {
		return nil
	}
	return r.mutate(id, func(robot *robots.Robot) {
		update.Apply(&robot.Settings)
		robot.UpdatedAt = at
	})
}

func (r *RobotRepository) MarkConnected(_ context.Context, id string, at time.Time) (robots.Connectivity, error) {
	var previous robots.Connectivity
	err := r.mutate(id, func(robot *robots.Robot) {
		previous = robot.Connectivity
		robot.Connectivity = robots.Connected
		syncAt := at
		robot.LastSyncAt = &syncAt
		robot.OfflineNotifiedAt = nil
		robot.UpdatedAt = at
	})
	return previous, err
}

func (r *RobotRepository) MarkDisconnected(_ context.Context, id string, at time.Time) (robots.Connectivity, error) {
	var previous robots.Connectivity
	err := r.mutate(id, func(robot *robots.Robot) {
		previous = robot.Connectivity
		robot.Connectivity = robots.Disconnected
		robot.UpdatedAt = at
	})
	return previous, err
}

func (r *RobotRepository) ClaimOfflineNotification(_ context.Context, id string, at time.Time) (bool, error) {
	claimed := false
	err := r.mutate(id, func(robot *robots.Robot) {
		if robot.Connectivity != robots.Disconnected || robot.OfflineNotifiedAt != nil {
			return
		}
		notifiedAt := at
		robot.OfflineNotifiedAt = &notifiedAt
		claimed = true
	})
	return claimed, err
}

func (r *RobotRepository) ListSilentSince(_ context.Context, cutoff time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, robot := range r.robots {
		if robot.Connectivity != robots.Connected {
			continue
		}
		if robot.LastSyncAt == nil || robot.LastSyncAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *RobotRepository) mutate(id string, fn func(*robots.Robot)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	robot, ok := r.robots[id]
	if !ok {
		return apperr.NotFound("robot %s not found", id)
	}
	fn(robot)
	return nil
}
