package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	commands "carebot-cloud/internal/commands/domain"
)

var columns = []string{"id", "seq", "robot_id", "kind", "params", "status", "issued_at", "received_at", "completed_at", "result"}

func TestDrainPendingSortsReturnedRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	t0 := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	at := t0.Add(time.Hour)
	rows := sqlmock.NewRows(columns).
		AddRow("c3", int64(3), "robot-1", "SPEAK", []byte(`{"text":"hi"}`), "RECEIVED", t0.Add(2*time.Second), at, nil, nil).
		AddRow("c1", int64(1), "robot-1", "MOVE_TO", []byte(`{"location":"kitchen"}`), "RECEIVED", t0, at, nil, nil).
		AddRow("c2", int64(2), "robot-1", "STOP", []byte(`{}`), "RECEIVED", t0, at, nil, nil)
	mock.ExpectQuery("UPDATE robot_commands SET status = \\$2, received_at = \\$3 WHERE id IN").
		WithArgs("robot-1", "RECEIVED", at, "PENDING").
		WillReturnRows(rows)

	repo := NewCommandRepository(db)
	drained, err := repo.DrainPending(context.Background(), "robot-1", at)
	require.NoError(t, err)
	require.Len(t, drained, 3)
	assert.Equal(t, []string{"c1", "c2", "c3"}, []string{drained[0].ID, drained[1].ID, drained[2].ID})
	assert.Equal(t, "kitchen", drained[0].Params["location"])
	assert.Equal(t, commands.StatusReceived, drained[0].Status)
	require.NotNil(t, drained[0].ReceivedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateReturnsSeq(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	issuedAt := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO robot_commands").
		WithArgs("cmd-1", "robot-1", "MOVE_TO", []byte(`{"location":"kitchen"}`), "PENDING", issuedAt).
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(int64(7)))

	repo := NewCommandRepository(db)
	cmd := &commands.Command{
		ID:       "cmd-1",
		RobotID:  "robot-1",
		Kind:     commands.KindMoveTo,
		Params:   map[string]any{"location": "kitchen"},
		Status:   commands.StatusPending,
		IssuedAt: issuedAt,
	}
	require.NoError(t, repo.Create(context.Background(), cmd))
	assert.Equal(t, int64(7), cmd.Seq)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompareAndSetStatusLostRace(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE robot_commands SET status = \\$3").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewCommandRepository(db)
	ok, err := repo.CompareAndSetStatus(context.Background(), "cmd-1", commands.StatusReceived, commands.StatusCompleted, time.Now(), nil)
	require.NoError(t, err)
	assert.False(t, ok)
}
