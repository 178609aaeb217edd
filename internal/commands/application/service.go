package application

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"carebot-cloud/internal/apperr"
	"carebot-cloud/internal/auth"
	commands "carebot-cloud/internal/commands/domain"
	"carebot-cloud/internal/observability/metrics"
	"carebot-cloud/internal/platform/validation"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// IssueRequest is the body of an owner-issued command.
type IssueRequest struct {
	Kind   string         `json:"kind" validate:"required"`
	Params map[string]any `json:"params"`
}

// StatusRequest reports a lifecycle change for one command.
type StatusRequest struct {
	Status string         `json:"status" validate:"required"`
	Result map[string]any `json:"result"`
}

// Service issues, drains and tracks robot commands.
type Service struct {
	repo   commands.Repository
	guard  *auth.Guard
	now    func() time.Time
	logger *zap.Logger
}

// NewService constructs a command service.
func NewService(repo commands.Repository, guard *auth.Guard, logger *zap.Logger) (*Service, error) {
	if repo == nil {
		return nil, errors.New("commands: nil repo")
	}
	if guard == nil {
		return nil, errors.New("commands: nil guard")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:   repo,
		guard:  guard,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.Named("commands"),
	}, nil
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Issue validates params for kind and queues a PENDING command. Callers are
// responsible for authorization.
func (s *Service) Issue(ctx context.Context, robotID string, kind commands.Kind, params map[string]any) (*commands.Command, error) {
	if robotID == "" {
		return nil, apperr.Invalid("robot id is required")
	}
	kind = commands.NormalizeKind(string(kind))
	if kind == "" {
		return nil, apperr.Invalid("command kind is required")
	}
	if err := commands.ValidateParams(kind, params); err != nil {
		return nil, err
	}
	if params == nil {
		params = map[string]any{}
	}
	cmd := &commands.Command{
		ID:       uuid.NewString(),
		RobotID:  robotID,
		Kind:     kind,
		Params:   params,
		Status:   commands.StatusPending,
		IssuedAt: s.now(),
	}
	if err := s.repo.Create(ctx, cmd); err != nil {
		return nil, apperr.Internal(err, "persist command")
	}
	metrics.IncCommandIssued(string(kind))
	s.logger.Debug("command issued",
		zap.String("robot_id", robotID),
		zap.String("command_id", cmd.ID),
		zap.String("kind", string(kind)),
	)
	return cmd, nil
}

// IssueAs issues a command on behalf of the human owning the robot.
func (s *Service) IssueAs(ctx context.Context, p auth.Principal, robotID string, req IssueRequest) (*commands.Command, error) {
	if _, err := s.guard.AuthorizeOwner(ctx, p, robotID); err != nil {
		return nil, err
	}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	return s.Issue(ctx, robotID, commands.Kind(req.Kind), req.Params)
}

// Drain hands every PENDING command to the robot, marking each RECEIVED.
func (s *Service) Drain(ctx context.Context, robotID string) ([]commands.Command, error) {
	drained, err := s.repo.DrainPending(ctx, robotID, s.now())
	if err != nil {
		return nil, apperr.Internal(err, "drain commands")
	}
	metrics.AddCommandsDelivered(len(drained))
	if drained == nil {
		drained = []commands.Command{}
	}
	return drained, nil
}

// List returns the robot's recent commands for its owner.
func (s *Service) List(ctx context.Context, p auth.Principal, robotID, status string, limit int) ([]commands.Command, error) {
	if _, err := s.guard.AuthorizeOwner(ctx, p, robotID); err != nil {
		return nil, err
	}
	var filter commands.Status
	if status != "" {
		parsed, ok := commands.ParseStatus(status)
		if !ok {
			return nil, apperr.Invalid("unknown command status %q", status)
		}
		filter = parsed
	}
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}
	list, err := s.repo.List(ctx, robotID, filter, limit)
	if err != nil {
		return nil, apperr.Internal(err, "list commands")
	}
	if list == nil {
		list = []commands.Command{}
	}
	return list, nil
}

// UpdateStatus applies a lifecycle change. The robot reports progress and
// outcome; the owner may only cancel.
func (s *Service) UpdateStatus(ctx context.Context, p auth.Principal, robotID, commandID string, req StatusRequest) (*commands.Command, error) {
	if _, err := s.guard.AuthorizeDeviceWrite(ctx, p, robotID); err != nil {
		return nil, err
	}
	target, ok := commands.ParseStatus(req.Status)
	if !ok {
		return nil, apperr.Invalid("unknown command status %q", req.Status)
	}
	if err := allowedFor(p, target); err != nil {
		return nil, err
	}
	cmd, err := s.repo.Get(ctx, robotID, commandID)
	if err != nil {
		return nil, apperr.Internal(err, "load command")
	}
	if cmd == nil {
		return nil, apperr.NotFound("command %s not found", commandID)
	}
	if cmd.Status == target {
		return cmd, nil
	}
	if !commands.CanTransition(cmd.Status, target) {
		return nil, apperr.Invalid("command %s cannot move from %s to %s", cmd.ID, cmd.Status, target)
	}
	at := s.now()
	updated, err := s.repo.CompareAndSetStatus(ctx, cmd.ID, cmd.Status, target, at, req.Result)
	if err != nil {
		return nil, apperr.Internal(err, "update command status")
	}
	if !updated {
		return nil, apperr.Conflict("command %s changed concurrently", cmd.ID)
	}
	metrics.IncCommandResult(string(target))

	cmd.Status = target
	if target.IsTerminal() {
		cmd.CompletedAt = &at
	}
	if req.Result != nil {
		cmd.Result = req.Result
	}
	return cmd, nil
}

// Cancel withdraws a command on behalf of its owner.
func (s *Service) Cancel(ctx context.Context, p auth.Principal, robotID, commandID string) (*commands.Command, error) {
	return s.UpdateStatus(ctx, p, robotID, commandID, StatusRequest{Status: string(commands.StatusCancelled)})
}

func allowedFor(p auth.Principal, target commands.Status) error {
	switch {
	case p.IsDevice():
		switch target {
		case commands.StatusInProgress, commands.StatusCompleted, commands.StatusFailed:
			return nil
		}
		return apperr.Forbidden("devices may not set status %s", target)
	case p.IsHuman():
		if target == commands.StatusCancelled {
			return nil
		}
		return apperr.Forbidden("owners may only cancel commands")
	}
	return apperr.Unauthenticated("missing principal")
}
