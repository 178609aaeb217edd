package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"carebot-cloud/internal/apperr"
	platformpg "carebot-cloud/internal/platform/postgres"
	robots "carebot-cloud/internal/robots/domain"
)

const robotColumns = `
	id, serial_number, pairing_secret, elder_id, battery_level, is_charging, connectivity,
	last_sync_at, offline_notified_at, room_id, position_x, position_y, heading,
	lcd_mode, lcd_emotion, lcd_message, lcd_sub_message, dispenser_remaining, dispenser_capacity,
	morning_medication_time, evening_medication_time, patrol_start_time, patrol_end_time, volume,
	created_at, updated_at`

// RobotRepository is a Postgres implementation of robots.Repository.
type RobotRepository struct {
	db *sql.DB
}

// NewRobotRepository constructs a repository.
func NewRobotRepository(db *sql.DB) *RobotRepository {
	return &RobotRepository{db: db}
}

// Create inserts a provisioned robot.
func (r *RobotRepository) Create(ctx context.Context, robot *robots.Robot) error {
	if r == nil || r.db == nil {
		return errors.New("robot repo: nil db")
	}
	if robot == nil {
		return errors.New("robot repo: nil robot")
	}
	_, err := platformpg.Conn(ctx, r.db).ExecContext(ctx, `
INSERT INTO robots (
	id, serial_number, pairing_secret, elder_id, connectivity,
	morning_medication_time, evening_medication_time, patrol_start_time, patrol_end_time, volume,
	created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11
)`, robot.ID, robot.SerialNumber, robot.PairingSecret, nullString(robot.ElderID), string(robot.Connectivity),
		robot.Settings.MorningMedicationTime, robot.Settings.EveningMedicationTime,
		robot.Settings.PatrolStartTime, robot.Settings.PatrolEndTime, robot.Settings.Volume, robot.CreatedAt)
	return err
}

// Get loads a robot by id. A missing robot yields nil, nil.
func (r *RobotRepository) Get(ctx context.Context, id string) (*robots.Robot, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("robot repo: nil db")
	}
	row := platformpg.Conn(ctx, r.db).QueryRowContext(ctx, `
SELECT`+robotColumns+`
FROM robots
WHERE id = $1`, id)
	return scanRobot(row)
}

// ApplyState writes only the columns present in update.
func (r *RobotRepository) ApplyState(ctx context.Context, id string, update robots.StateUpdate, at time.Time) error {
	return r.updateColumns(ctx, id, update.Columns(), at)
}

// UpdateSettings writes only the settings present in update.
func (r *RobotRepository) UpdateSettings(ctx context.Context, id string, update robots.SettingsUpdate, at time.Time) error {
	return r.updateColumns(ctx, id, update.Columns(), at)
}

func (r *RobotRepository) updateColumns(ctx context.Context, id string, cols []robots.Column, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("robot repo: nil db")
	}
	if len(cols) == 0 {
		return nil
	}
	sets := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+2)
	for _, col := range cols {
		args = append(args, col.Value)
		sets = append(sets, fmt.Sprintf("%s = $%d", col.Name, len(args)))
	}
	args = append(args, at)
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))
	args = append(args, id)
	query := fmt.Sprintf("UPDATE robots SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	result, err := platformpg.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperr.NotFound("robot %s not found", id)
	}
	return nil
}

// MarkConnected returns the connectivity held before the update.
func (r *RobotRepository) MarkConnected(ctx context.Context, id string, at time.Time) (robots.Connectivity, error) {
	if r == nil || r.db == nil {
		return "", errors.New("robot repo: nil db")
	}
	var previous string
	err := platformpg.Conn(ctx, r.db).QueryRowContext(ctx, `
UPDATE robots r
SET connectivity = $2, last_sync_at = $3, offline_notified_at = NULL, updated_at = $3
FROM (SELECT id, connectivity FROM robots WHERE id = $1 FOR UPDATE) old
WHERE r.id = old.id
RETURNING old.connectivity`, id, string(robots.Connected), at).Scan(&previous)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperr.NotFound("robot %s not found", id)
	}
	if err != nil {
		return "", err
	}
	return robots.Connectivity(previous), nil
}

// MarkDisconnected returns the connectivity held before the update. The offline marker is untouched.
func (r *RobotRepository) MarkDisconnected(ctx context.Context, id string, at time.Time) (robots.Connectivity, error) {
	if r == nil || r.db == nil {
		return "", errors.New("robot repo: nil db")
	}
	var previous string
	err := platformpg.Conn(ctx, r.db).QueryRowContext(ctx, `
UPDATE robots r
SET connectivity = $2, updated_at = $3
FROM (SELECT id, connectivity FROM robots WHERE id = $1 FOR UPDATE) old
WHERE r.id = old.id
RETURNING old.connectivity`, id, string(robots.Disconnected), at).Scan(&previous)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperr.NotFound("robot %s not found", id)
	}
	if err != nil {
		return "", err
	}
	return robots.Connectivity(previous), nil
}

// ClaimOfflineNotification sets the marker only while the robot is offline and unmarked.
func (r *RobotRepository) ClaimOfflineNotification(ctx context.Context, id string, at time.Time) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("robot repo: nil db")
	}
	result, err := platformpg.Conn(ctx, r.db).ExecContext(ctx, `
UPDATE robots
SET offline_notified_at = $2
WHERE id = $1 AND connectivity = $3 AND offline_notified_at IS NULL`, id, at, string(robots.Disconnected))
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListSilentSince lists connected robots whose last sync is older than cutoff.
func (r *RobotRepository) ListSilentSince(ctx context.Context, cutoff time.Time) ([]string, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("robot repo: nil db")
	}
	rows, err := platformpg.Conn(ctx, r.db).QueryContext(ctx, `
SELECT id
FROM robots
WHERE connectivity = $1 AND (last_sync_at IS NULL OR last_sync_at < $2)
ORDER BY id`, string(robots.Connected), cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRobot(row rowScanner) (*robots.Robot, error) {
	var robot robots.Robot
	var elderID sql.NullString
	var connectivity string
	var lastSync, offlineNotified sql.NullTime
	if err := row.Scan(
		&robot.ID,
		&robot.SerialNumber,
		&robot.PairingSecret,
		&elderID,
		&robot.BatteryLevel,
		&robot.IsCharging,
		&connectivity,
		&lastSync,
		&offlineNotified,
		&robot.Position.RoomID,
		&robot.Position.X,
		&robot.Position.Y,
		&robot.Position.Heading,
		&robot.LCD.Mode,
		&robot.LCD.Emotion,
		&robot.LCD.Message,
		&robot.LCD.SubMessage,
		&robot.Dispenser.Remaining,
		&robot.Dispenser.Capacity,
		&robot.Settings.MorningMedicationTime,
		&robot.Settings.EveningMedicationTime,
		&robot.Settings.PatrolStartTime,
		&robot.Settings.PatrolEndTime,
		&robot.Settings.Volume,
		&robot.CreatedAt,
		&robot.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	robot.ElderID = elderID.String
	robot.Connectivity = robots.Connectivity(connectivity)
	if lastSync.Valid {
		t := lastSync.Time.UTC()
		robot.LastSyncAt = &t
	}
	if offlineNotified.Valid {
		t := offlineNotified.Time.UTC()
		robot.OfflineNotifiedAt = &t
	}
	robot.CreatedAt = robot.CreatedAt.UTC()
	robot.UpdatedAt = robot.UpdatedAt.UTC()
	return &robot, nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
