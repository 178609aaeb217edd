package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	events "carebot-cloud/internal/deviceevents/domain"
)

func TestAppendWritesNullableColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO device_events").
		WithArgs("robot-1", "elder-1", "WAKE_UP", nil, nil, "bedroom", 0.9, []byte(`{"raw":1}`), at, at).
		WillReturnResult(sqlmock.NewResult(1, 1))

	confidence := 0.9
	repo := NewEventRepository(db)
	err = repo.Append(context.Background(), events.Event{
		RobotID:    "robot-1",
		ElderID:    "elder-1",
		Type:       events.TypeWakeUp,
		Location:   "bedroom",
		Confidence: &confidence,
		Payload:    map[string]any{"raw": 1},
		OccurredAt: at,
		RecordedAt: at,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendNilDB(t *testing.T) {
	repo := NewEventRepository((*sql.DB)(nil))
	require.Error(t, repo.Append(context.Background(), events.Event{}))
}
