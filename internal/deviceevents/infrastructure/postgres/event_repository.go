package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	events "carebot-cloud/internal/deviceevents/domain"
	platformpg "carebot-cloud/internal/platform/postgres"
)

// EventRepository appends device events to device_events.
type EventRepository struct {
	db *sql.DB
}

// NewEventRepository constructs a repository.
func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Append inserts one immutable event row.
func (r *EventRepository) Append(ctx context.Context, event events.Event) error {
	if r == nil || r.db == nil {
		return errors.New("event repo: nil db")
	}
	var payload []byte
	if event.Payload != nil {
		encoded, err := json.Marshal(event.Payload)
		if err != nil {
			return err
		}
		payload = encoded
	}
	var confidence sql.NullFloat64
	if event.Confidence != nil {
		confidence = sql.NullFloat64{Float64: *event.Confidence, Valid: true}
	}
	_, err := platformpg.Conn(ctx, r.db).ExecContext(ctx, `
INSERT INTO device_events (
	robot_id, elder_id, event_type, action, medication_id, location,
	confidence, payload, occurred_at, recorded_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		event.RobotID,
		nullString(event.ElderID),
		string(event.Type),
		nullString(string(event.Action)),
		nullString(event.MedicationID),
		nullString(event.Location),
		confidence,
		payload,
		event.OccurredAt,
		event.RecordedAt,
	)
	return err
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
