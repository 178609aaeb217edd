package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	patrol "carebot-cloud/internal/patrol/domain"
)

// Repository keeps patrol results in process memory.
type Repository struct {
	mu         sync.Mutex
	byPatrolID map[string]patrol.Result
	snapshots  []patrol.Snapshot
	nextSnapID int64
}

// NewRepository constructs an empty repository.
func NewRepository() *Repository {
	return &Repository{byPatrolID: make(map[string]patrol.Result)}
}

func (r *Repository) FindByPatrolID(_ context.Context, patrolID string) (*patrol.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result, ok := r.byPatrolID[patrolID]
	if !ok {
		return nil, nil
	}
	clone := cloneResult(result)
	return &clone, nil
}

func (r *Repository) Create(_ context.Context, result *patrol.Result, snapshots []patrol.Snapshot) error {
	if result == nil {
		return errors.New("patrol repo: nil result")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byPatrolID[result.PatrolID]; ok {
		return patrol.ErrDuplicatePatrolID
	}
	r.byPatrolID[result.PatrolID] = cloneResult(*result)
	for _, snap := range snapshots {
		r.nextSnapID++
		snap.ID = r.nextSnapID
		r.snapshots = append(r.snapshots, snap)
	}
	return nil
}

func (r *Repository) Latest(ctx context.Context, elderID string) (*patrol.Result, error) {
	history, err := r.History(ctx, elderID, 1, 0)
	if err != nil || len(history) == 0 {
		return nil, err
	}
	return &history[0], nil
}

func (r *Repository) History(_ context.Context, elderID string, limit, offset int) ([]patrol.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []patrol.Result
	for _, result := range r.byPatrolID {
		if result.ElderID == elderID {
			matched = append(matched, cloneResult(result))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CompletedAt.Equal(matched[j].CompletedAt) {
			return matched[i].CompletedAt.After(matched[j].CompletedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	if offset >= len(matched) {
		return []patrol.Result{}, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (r *Repository) Snapshots(_ context.Context, elderID, patrolID string) ([]patrol.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []patrol.Snapshot{}
	for _, snap := range r.snapshots {
		if snap.ElderID == elderID && snap.PatrolID == patrolID {
			out = append(out, snap)
		}
	}
	return out, nil
}

func cloneResult(result patrol.Result) patrol.Result {
	result.Items = append([]patrol.Item(nil), result.Items...)
	return result
}
