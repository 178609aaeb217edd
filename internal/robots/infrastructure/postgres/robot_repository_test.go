package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carebot-cloud/internal/apperr"
	robots "carebot-cloud/internal/robots/domain"
)

func ptr[T any](v T) *T { return &v }

func TestApplyStateTouchesOnlySuppliedColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE robots SET battery_level = $1, updated_at = $2 WHERE id = $3")).
		WithArgs(42, at, "robot-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewRobotRepository(db)
	require.NoError(t, repo.ApplyState(context.Background(), "robot-1", robots.StateUpdate{BatteryLevel: ptr(42)}, at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyStateGroupColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE robots SET lcd_mode = $1, lcd_message = $2, updated_at = $3 WHERE id = $4")).
		WithArgs("MEDICATION", "pill time", at, "robot-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewRobotRepository(db)
	update := robots.StateUpdate{LCD: &robots.LCDUpdate{Mode: ptr("MEDICATION"), Message: ptr("pill time")}}
	require.NoError(t, repo.ApplyState(context.Background(), "robot-1", update, at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyStateMissingRobot(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE robots SET").WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewRobotRepository(db)
	err = repo.ApplyState(context.Background(), "ghost", robots.StateUpdate{IsCharging: ptr(true)}, time.Now())
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestApplyStateEmptyIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRobotRepository(db)
	require.NoError(t, repo.ApplyState(context.Background(), "robot-1", robots.StateUpdate{}, time.Now()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkConnectedReturnsPrevious(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery("UPDATE robots r SET connectivity = \\$2, last_sync_at = \\$3, offline_notified_at = NULL").
		WithArgs("robot-1", "CONNECTED", at).
		WillReturnRows(sqlmock.NewRows([]string{"connectivity"}).AddRow("DISCONNECTED"))

	repo := NewRobotRepository(db)
	prev, err := repo.MarkConnected(context.Background(), "robot-1", at)
	require.NoError(t, err)
	assert.Equal(t, robots.Disconnected, prev)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimOfflineNotification(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE robots SET offline_notified_at = \\$2 WHERE id = \\$1 AND connectivity = \\$3 AND offline_notified_at IS NULL").
		WithArgs("robot-1", at, "DISCONNECTED").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE robots SET offline_notified_at").
		WithArgs("robot-1", at, "DISCONNECTED").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewRobotRepository(db)
	claimed, err := repo.ClaimOfflineNotification(context.Background(), "robot-1", at)
	require.NoError(t, err)
	assert.True(t, claimed)
	claimed, err = repo.ClaimOfflineNotification(context.Background(), "robot-1", at)
	require.NoError(t, err)
	assert.False(t, claimed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMissingRobotReturnsNil(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM robots").WithArgs("ghost").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	repo := NewRobotRepository(db)
	robot, err := repo.Get(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, robot)
}
