package postgres

import (
	"context"
	"database/sql"
	"errors"

	care "carebot-cloud/internal/care/domain"
	platformpg "carebot-cloud/internal/platform/postgres"
)

// Store is a Postgres implementation of care.Store.
type Store struct {
	db *sql.DB
}

// NewStore constructs a Store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetElder returns nil, nil when the elder does not exist.
func (s *Store) GetElder(ctx context.Context, id string) (*care.Elder, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("care store: nil db")
	}
	var elder care.Elder
	err := platformpg.Conn(ctx, s.db).QueryRowContext(ctx, `
SELECT id, owner_user_id, name
FROM elders
WHERE id = $1`, id).Scan(&elder.ID, &elder.OwnerUserID, &elder.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &elder, nil
}

// FindMedication looks the medication up under its elder only.
func (s *Store) FindMedication(ctx context.Context, elderID, medicationID string) (*care.Medication, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("care store: nil db")
	}
	var med care.Medication
	var slots string
	err := platformpg.Conn(ctx, s.db).QueryRowContext(ctx, `
SELECT id, elder_id, name, dose_slots
FROM medications
WHERE id = $1 AND elder_id = $2`, medicationID, elderID).Scan(&med.ID, &med.ElderID, &med.Name, &slots)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	med.Slots = care.ParseSlots(slots)
	return &med, nil
}

// UpsertMedicationRecord keeps one row per (medication, date, slot). A repeat
// overwrites the row unless it is older than the stored taken_at.
func (s *Store) UpsertMedicationRecord(ctx context.Context, record care.MedicationRecord) error {
	if s == nil || s.db == nil {
		return errors.New("care store: nil db")
	}
	_, err := platformpg.Conn(ctx, s.db).ExecContext(ctx, `
INSERT INTO medication_records (
	medication_id, record_date, dose_slot, status, taken_at, method, created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $5, $5
)
ON CONFLICT (medication_id, record_date, dose_slot) DO UPDATE
SET status = EXCLUDED.status,
	taken_at = EXCLUDED.taken_at,
	method = EXCLUDED.method,
	updated_at = EXCLUDED.updated_at
WHERE medication_records.taken_at IS NULL OR medication_records.taken_at <= EXCLUDED.taken_at`,
		record.MedicationID, record.Date, string(record.Slot), string(record.Status), record.TakenAt.UTC(), record.Method)
	return err
}

// InsertActivity appends an activity log entry.
func (s *Store) InsertActivity(ctx context.Context, activity care.Activity) error {
	if s == nil || s.db == nil {
		return errors.New("care store: nil db")
	}
	_, err := platformpg.Conn(ctx, s.db).ExecContext(ctx, `
INSERT INTO activities (elder_id, robot_id, kind, title, location, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
		activity.ElderID, activity.RobotID, string(activity.Kind), activity.Title, activity.Location, activity.OccurredAt.UTC())
	return err
}

// CreateElder inserts an elder.
func (s *Store) CreateElder(ctx context.Context, elder care.Elder) error {
	if s == nil || s.db == nil {
		return errors.New("care store: nil db")
	}
	_, err := platformpg.Conn(ctx, s.db).ExecContext(ctx, `
INSERT INTO elders (id, owner_user_id, name) VALUES ($1, $2, $3)
ON CONFLICT (id) DO NOTHING`, elder.ID, elder.OwnerUserID, elder.Name)
	return err
}

// CreateMedication inserts a medication.
func (s *Store) CreateMedication(ctx context.Context, med care.Medication) error {
	if s == nil || s.db == nil {
		return errors.New("care store: nil db")
	}
	_, err := platformpg.Conn(ctx, s.db).ExecContext(ctx, `
INSERT INTO medications (id, elder_id, name, dose_slots) VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO NOTHING`, med.ID, med.ElderID, med.Name, care.FormatSlots(med.Slots))
	return err
}
