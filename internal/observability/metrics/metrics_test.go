package metrics

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestQueryCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(4)))
	assert.Equal(t, float64(4), queryCount(db, zap.NewNop(), "SELECT COUNT(*) FROM robot_commands WHERE status = 'PENDING'"))

	mock.ExpectQuery("SELECT COUNT").WillReturnError(assertErr{})
	assert.Equal(t, float64(0), queryCount(db, zap.NewNop(), "SELECT COUNT(*) FROM robots WHERE connectivity = 'DISCONNECTED'"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHelpersBeforeInit(t *testing.T) {
	// Helpers tolerate an uninitialised registry.
	IncCommandIssued("")
	AddCommandsDelivered(0)
	IncDeviceEvent("BUTTON", "")
	IncNotification("offline", "")
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
