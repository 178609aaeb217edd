package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	commands "carebot-cloud/internal/commands/domain"
)

// CommandRepository keeps commands in process memory.
type CommandRepository struct {
	mu       sync.Mutex
	seq      int64
	commands map[string]*commands.Command
}

// NewCommandRepository constructs an empty repository.
func NewCommandRepository() *CommandRepository {
	return &CommandRepository{commands: make(map[string]*commands.Command)}
}

func (r *CommandRepository) Create(_ context.Context, cmd *commands.Command) error {
	if cmd == nil {
		return errors.New("command repo: nil command")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	cmd.Seq = r.seq
	clone := cloneCommand(*cmd)
	r.commands[cmd.ID] = &clone
	return nil
}

func (r *CommandRepository) DrainPending(_ context.Context, robotID string, at time.Time) ([]commands.Command, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var drained []commands.Command
	for _, cmd := range r.commands {
		if cmd.RobotID != robotID || cmd.Status != commands.StatusPending {
			continue
		}
		receivedAt := at
		cmd.Status = commands.StatusReceived
		cmd.ReceivedAt = &receivedAt
		drained = append(drained, cloneCommand(*cmd))
	}
	commands.SortForDelivery(drained)
	return drained, nil
}

func (r *CommandRepository) Get(_ context.Context, robotID, id string) (*commands.Command, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cmd, ok := r.commands[id]
	if !ok || cmd.RobotID != robotID {
		return nil, nil
	}
	clone := cloneCommand(*cmd)
	return &clone, nil
}

func (r *CommandRepository) List(_ context.Context, robotID string, status commands.Status, limit int) ([]commands.Command, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []commands.Command
	for _, cmd := range r.commands {
		if cmd.RobotID != robotID || (status != "" && cmd.Status != status) {
			continue
		}
		out = append(out, cloneCommand(*cmd))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].IssuedAt.Equal(out[j].IssuedAt) {
			return out[i].IssuedAt.After(out[j].IssuedAt)
		}
		return out[i].Seq > out[j].Seq
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *CommandRepository) CompareAndSetStatus(_ context.Context, id string, from, to commands.Status, at time.Time, result map[string]any) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cmd, ok := r.commands[id]
	if !ok || cmd.Status != from {
		return false, nil
	}
	cmd.Status = to
	if to.IsTerminal() {
		completedAt := at
		cmd.CompletedAt = &completedAt
	}
	if result != nil {
		cmd.Result = result
	}
	return true, nil
}

func cloneCommand(cmd commands.Command) commands.Command {
	if cmd.Params != nil {
		params := make(map[string]any, len(cmd.Params))
		for k, v := range cmd.Params {
			params[k] = v
		}
		cmd.Params = params
	}
	return cmd
}
