package postgres

import (
	"context"
	"database/sql"
	"errors"

	patrol "carebot-cloud/internal/patrol/domain"
	platformpg "carebot-cloud/internal/platform/postgres"
)

const resultColumns = `id, patrol_id, robot_id, elder_id, status, started_at, completed_at, created_at`

// Repository is a Postgres implementation for patrol results.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs a repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// FindByPatrolID loads a result with its items. Missing yields nil, nil.
func (r *Repository) FindByPatrolID(ctx context.Context, patrolID string) (*patrol.Result, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("patrol repo: nil db")
	}
	row := platformpg.Conn(ctx, r.db).QueryRowContext(ctx, `
SELECT `+resultColumns+`
FROM patrol_results
WHERE patrol_id = $1`, patrolID)
	result, err := scanResult(row)
	if err != nil || result == nil {
		return nil, err
	}
	if err := r.attachItems(ctx, []*patrol.Result{result}, `
SELECT id FROM patrol_results WHERE patrol_id = $1`, patrolID); err != nil {
		return nil, err
	}
	return result, nil
}

// Create inserts the result, its items and snapshots. Run it inside a unit of work.
func (r *Repository) Create(ctx context.Context, result *patrol.Result, snapshots []patrol.Snapshot) error {
	if r == nil || r.db == nil {
		return errors.New("patrol repo: nil db")
	}
	if result == nil {
		return errors.New("patrol repo: nil result")
	}
	conn := platformpg.Conn(ctx, r.db)
	_, err := conn.ExecContext(ctx, `
INSERT INTO patrol_results (id, patrol_id, robot_id, elder_id, status, started_at, completed_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		result.ID, result.PatrolID, result.RobotID, result.ElderID, string(result.Status),
		result.StartedAt, result.CompletedAt, result.CreatedAt)
	if err != nil {
		if platformpg.IsUniqueViolation(err) {
			return patrol.ErrDuplicatePatrolID
		}
		return err
	}
	for idx, item := range result.Items {
		var confidence sql.NullFloat64
		if item.Confidence != nil {
			confidence = sql.NullFloat64{Float64: *item.Confidence, Valid: true}
		}
		if _, err := conn.ExecContext(ctx, `
INSERT INTO patrol_items (patrol_result_id, position, target, label, status, confidence, image_url, checked_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			result.ID, idx, string(item.Target), item.Label, string(item.Status), confidence, item.ImageURL, item.CheckedAt); err != nil {
			return err
		}
	}
	for _, snap := range snapshots {
		if _, err := conn.ExecContext(ctx, `
INSERT INTO patrol_snapshots (patrol_id, robot_id, elder_id, target, label, status, image_url, captured_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			snap.PatrolID, snap.RobotID, snap.ElderID, string(snap.Target), snap.Label, string(snap.Status),
			snap.ImageURL, snap.CapturedAt, snap.CreatedAt); err != nil {
			return err
		}
	}
	return nil
}

// Latest returns the most recently completed patrol of the elder.
func (r *Repository) Latest(ctx context.Context, elderID string) (*patrol.Result, error) {
	history, err := r.History(ctx, elderID, 1, 0)
	if err != nil || len(history) == 0 {
		return nil, err
	}
	return &history[0], nil
}

// History pages through an elder's patrols, newest first.
func (r *Repository) History(ctx context.Context, elderID string, limit, offset int) ([]patrol.Result, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("patrol repo: nil db")
	}
	rows, err := platformpg.Conn(ctx, r.db).QueryContext(ctx, `
SELECT `+resultColumns+`
FROM patrol_results
WHERE elder_id = $1
ORDER BY completed_at DESC, id DESC
LIMIT $2 OFFSET $3`, elderID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []patrol.Result{}
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *result)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	ptrs := make([]*patrol.Result, len(results))
	for i := range results {
		ptrs[i] = &results[i]
	}
	if err := r.attachItems(ctx, ptrs, `
SELECT id FROM patrol_results
WHERE elder_id = $1
ORDER BY completed_at DESC, id DESC
LIMIT $2 OFFSET $3`, elderID, limit, offset); err != nil {
		return nil, err
	}
	return results, nil
}

// Snapshots lists the gallery records of one patrol of the elder.
func (r *Repository) Snapshots(ctx context.Context, elderID, patrolID string) ([]patrol.Snapshot, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("patrol repo: nil db")
	}
	rows, err := platformpg.Conn(ctx, r.db).QueryContext(ctx, `
SELECT id, patrol_id, robot_id, elder_id, target, label, status, image_url, captured_at, created_at
FROM patrol_snapshots
WHERE elder_id = $1 AND patrol_id = $2
ORDER BY captured_at, id`, elderID, patrolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	snapshots := []patrol.Snapshot{}
	for rows.Next() {
		var snap patrol.Snapshot
		var target, status string
		if err := rows.Scan(&snap.ID, &snap.PatrolID, &snap.RobotID, &snap.ElderID, &target, &snap.Label, &status,
			&snap.ImageURL, &snap.CapturedAt, &snap.CreatedAt); err != nil {
			return nil, err
		}
		snap.Target = patrol.Target(target)
		snap.Status = patrol.ItemStatus(status)
		snap.CapturedAt = snap.CapturedAt.UTC()
		snap.CreatedAt = snap.CreatedAt.UTC()
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}

// attachItems loads the items of results in one query; idQuery selects the same result ids.
func (r *Repository) attachItems(ctx context.Context, results []*patrol.Result, idQuery string, args ...any) error {
	if len(results) == 0 {
		return nil
	}
	byID := make(map[string]*patrol.Result, len(results))
	for _, result := range results {
		byID[result.ID] = result
		result.Items = []patrol.Item{}
	}
	rows, err := platformpg.Conn(ctx, r.db).QueryContext(ctx, `
SELECT patrol_result_id, target, label, status, confidence, image_url, checked_at
FROM patrol_items
WHERE patrol_result_id IN (`+idQuery+`)
ORDER BY patrol_result_id, position`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var resultID, target, status string
		var item patrol.Item
		var confidence sql.NullFloat64
		if err := rows.Scan(&resultID, &target, &item.Label, &status, &confidence, &item.ImageURL, &item.CheckedAt); err != nil {
			return err
		}
		item.Target = patrol.Target(target)
		item.Status = patrol.ItemStatus(status)
		item.CheckedAt = item.CheckedAt.UTC()
		if confidence.Valid {
			c := confidence.Float64
			item.Confidence = &c
		}
		if result, ok := byID[resultID]; ok {
			result.Items = append(result.Items, item)
		}
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (*patrol.Result, error) {
	var result patrol.Result
	var status string
	if err := row.Scan(
		&result.ID,
		&result.PatrolID,
		&result.RobotID,
		&result.ElderID,
		&status,
		&result.StartedAt,
		&result.CompletedAt,
		&result.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	result.Status = patrol.Status(status)
	result.StartedAt = result.StartedAt.UTC()
	result.CompletedAt = result.CompletedAt.UTC()
	result.CreatedAt = result.CreatedAt.UTC()
	return &result, nil
}
