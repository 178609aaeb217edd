package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	commands "carebot-cloud/internal/commands/domain"
	platformpg "carebot-cloud/internal/platform/postgres"
)

const commandColumns = `id, seq, robot_id, kind, params, status, issued_at, received_at, completed_at, result`

// CommandRepository is a Postgres implementation for robot commands.
type CommandRepository struct {
	db *sql.DB
}

// NewCommandRepository constructs a repository.
func NewCommandRepository(db *sql.DB) *CommandRepository {
	return &CommandRepository{db: db}
}

// Create inserts a command. The database assigns seq.
func (r *CommandRepository) Create(ctx context.Context, cmd *commands.Command) error {
	if r == nil || r.db == nil {
		return errors.New("command repo: nil db")
	}
	if cmd == nil {
		return errors.New("command repo: nil command")
	}
	params, err := marshalBag(cmd.Params)
	if err != nil {
		return err
	}
	return platformpg.Conn(ctx, r.db).QueryRowContext(ctx, `
INSERT INTO robot_commands (id, robot_id, kind, params, status, issued_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING seq`, cmd.ID, cmd.RobotID, string(cmd.Kind), params, string(cmd.Status), cmd.IssuedAt).Scan(&cmd.Seq)
}

// DrainPending claims every PENDING command of the robot in one statement.
func (r *CommandRepository) DrainPending(ctx context.Context, robotID string, at time.Time) ([]commands.Command, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("command repo: nil db")
	}
	rows, err := platformpg.Conn(ctx, r.db).QueryContext(ctx, `
UPDATE robot_commands
SET status = $2, received_at = $3
WHERE id IN (
	SELECT id
	FROM robot_commands
	WHERE robot_id = $1 AND status = $4
	ORDER BY issued_at, seq
	FOR UPDATE SKIP LOCKED
)
RETURNING `+commandColumns, robotID, string(commands.StatusReceived), at, string(commands.StatusPending))
	if err != nil {
		return nil, err
	}
	result, err := scanCommands(rows)
	if err != nil {
		return nil, err
	}
	// RETURNING order is unspecified.
	commands.SortForDelivery(result)
	return result, nil
}

// Get fetches a command of the robot. Missing yields nil, nil.
func (r *CommandRepository) Get(ctx context.Context, robotID, id string) (*commands.Command, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("command repo: nil db")
	}
	row := platformpg.Conn(ctx, r.db).QueryRowContext(ctx, `
SELECT `+commandColumns+`
FROM robot_commands
WHERE robot_id = $1 AND id = $2`, robotID, id)
	return scanCommand(row)
}

// List returns the newest commands of a robot, optionally filtered by status.
func (r *CommandRepository) List(ctx context.Context, robotID string, status commands.Status, limit int) ([]commands.Command, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("command repo: nil db")
	}
	rows, err := platformpg.Conn(ctx, r.db).QueryContext(ctx, `
SELECT `+commandColumns+`
FROM robot_commands
WHERE robot_id = $1 AND ($2 = '' OR status = $2)
ORDER BY issued_at DESC, seq DESC
LIMIT $3`, robotID, string(status), limit)
	if err != nil {
		return nil, err
	}
	return scanCommands(rows)
}

// CompareAndSetStatus updates status only when the row still holds from.
func (r *CommandRepository) CompareAndSetStatus(ctx context.Context, id string, from, to commands.Status, at time.Time, result map[string]any) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("command repo: nil db")
	}
	var payload []byte
	if result != nil {
		encoded, err := marshalBag(result)
		if err != nil {
			return false, err
		}
		payload = encoded
	}
	var completedAt sql.NullTime
	if to.IsTerminal() {
		completedAt = sql.NullTime{Time: at, Valid: true}
	}
	res, err := platformpg.Conn(ctx, r.db).ExecContext(ctx, `
UPDATE robot_commands
SET status = $3,
	completed_at = COALESCE($4, completed_at),
	result = COALESCE($5, result)
WHERE id = $1 AND status = $2`, id, string(from), string(to), completedAt, payload)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCommands(rows *sql.Rows) ([]commands.Command, error) {
	defer rows.Close()
	var result []commands.Command
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *cmd)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanCommand(row rowScanner) (*commands.Command, error) {
	var cmd commands.Command
	var kind, status string
	var params, result []byte
	var receivedAt, completedAt sql.NullTime
	if err := row.Scan(
		&cmd.ID,
		&cmd.Seq,
		&cmd.RobotID,
		&kind,
		&params,
		&status,
		&cmd.IssuedAt,
		&receivedAt,
		&completedAt,
		&result,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	cmd.Kind = commands.Kind(kind)
	cmd.Status = commands.Status(status)
	cmd.IssuedAt = cmd.IssuedAt.UTC()
	if len(params) > 0 {
		if err := json.Unmarshal(params, &cmd.Params); err != nil {
			return nil, err
		}
	}
	if len(result) > 0 {
		if err := json.Unmarshal(result, &cmd.Result); err != nil {
			return nil, err
		}
	}
	if receivedAt.Valid {
		t := receivedAt.Time.UTC()
		cmd.ReceivedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		cmd.CompletedAt = &t
	}
	return &cmd, nil
}

func marshalBag(bag map[string]any) ([]byte, error) {
	if bag == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(bag)
}
