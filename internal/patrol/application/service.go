package application

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"carebot-cloud/internal/apperr"
	"carebot-cloud/internal/auth"
	care "carebot-cloud/internal/care/domain"
	"carebot-cloud/internal/observability/metrics"
	patrol "carebot-cloud/internal/patrol/domain"
	"carebot-cloud/internal/platform/validation"
	robots "carebot-cloud/internal/robots/domain"
)

// MaxPageSize is the history page-size ceiling.
const MaxPageSize = 100

const (
	outcomeCreated  = "created"
	outcomeReplayed = "replayed"
	outcomeConflict = "conflict"
	outcomeError    = "error"
)

// TxManager runs a unit of work.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// HistoryPage is one page of an elder's patrol history.
type HistoryPage struct {
	Items []patrol.Result `json:"items"`
	Page  int             `json:"page"`
	Size  int             `json:"size"`
}

// Service records and serves patrol reports.
type Service struct {
	repo        patrol.Repository
	guard       *auth.Guard
	tx          TxManager
	maxPageSize int
	now         func() time.Time
	logger      *zap.Logger
}

// NewService constructs a patrol service.
func NewService(repo patrol.Repository, guard *auth.Guard, tx TxManager, logger *zap.Logger) (*Service, error) {
	if repo == nil {
		return nil, errors.New("patrol: nil repo")
	}
	if guard == nil {
		return nil, errors.New("patrol: nil guard")
	}
	if tx == nil {
		return nil, errors.New("patrol: nil tx manager")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:        repo,
		guard:       guard,
		tx:          tx,
		maxPageSize: MaxPageSize,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logger.Named("patrol"),
	}, nil
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// WithMaxPageSize lowers the history page-size ceiling; values outside [1, MaxPageSize] are ignored.
func (s *Service) WithMaxPageSize(n int) *Service {
	if n >= 1 && n <= MaxPageSize {
		s.maxPageSize = n
	}
	return s
}

// ReportPatrol stores a patrol once per patrol id. Replays from the same robot
// return the stored result unchanged without validating the items; created is
// false for a replay.
func (s *Service) ReportPatrol(ctx context.Context, p auth.Principal, robotID string, report patrol.Report) (result *patrol.Result, created bool, err error) {
	outcome := outcomeError
	defer func() { metrics.IncPatrolReport(outcome) }()

	robot, err := s.guard.AuthorizeDeviceWrite(ctx, p, robotID)
	if err != nil {
		return nil, false, err
	}
	if err := report.NormalizeKey(); err != nil {
		return nil, false, err
	}

	existing, err := s.repo.FindByPatrolID(ctx, report.PatrolID)
	if err != nil {
		return nil, false, apperr.Internal(err, "load patrol")
	}
	if existing != nil {
		result, err := replay(existing, robot)
		if err != nil {
			outcome = outcomeConflict
			return nil, false, err
		}
		outcome = outcomeReplayed
		return result, false, nil
	}

	if robot.ElderID == "" {
		return nil, false, apperr.NotFound("robot %s is not assigned to an elder", robot.ID)
	}
	if err := validation.Struct(report); err != nil {
		return nil, false, err
	}
	result, snapshots, err := patrol.NewResult(uuid.NewString(), robot.ID, robot.ElderID, report, s.now())
	if err != nil {
		return nil, false, err
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, result, snapshots)
	})
	if errors.Is(err, patrol.ErrDuplicatePatrolID) {
		// Lost a race with a concurrent submission of the same patrol id.
		existing, err := s.repo.FindByPatrolID(ctx, result.PatrolID)
		if err != nil {
			return nil, false, apperr.Internal(err, "load patrol")
		}
		if existing == nil {
			return nil, false, apperr.Internal(patrol.ErrDuplicatePatrolID, "patrol vanished after conflict")
		}
		replayed, err := replay(existing, robot)
		if err != nil {
			outcome = outcomeConflict
			return nil, false, err
		}
		outcome = outcomeReplayed
		return replayed, false, nil
	}
	if err != nil {
		return nil, false, apperr.Internal(err, "store patrol")
	}
	outcome = outcomeCreated
	s.logger.Info("patrol recorded",
		zap.String("robot_id", robot.ID),
		zap.String("patrol_id", result.PatrolID),
		zap.String("status", string(result.Status)),
		zap.Int("items", len(result.Items)),
	)
	return result, true, nil
}

func replay(existing *patrol.Result, robot *robots.Robot) (*patrol.Result, error) {
	if existing.RobotID != robot.ID {
		return nil, apperr.Conflict("patrol %s was reported by another robot", existing.PatrolID)
	}
	return existing, nil
}

// GetLatest returns the elder's most recently completed patrol.
func (s *Service) GetLatest(ctx context.Context, p auth.Principal, elderID string) (*patrol.Result, error) {
	if _, err := s.guard.AuthorizeHumanRead(ctx, p, elderID); err != nil {
		return nil, err
	}
	result, err := s.repo.Latest(ctx, elderID)
	if err != nil {
		return nil, apperr.Internal(err, "load latest patrol")
	}
	if result == nil {
		return nil, apperr.NotFound("no patrol recorded for elder %s", elderID)
	}
	return result, nil
}

// GetHistory pages through the elder's patrols, newest first.
func (s *Service) GetHistory(ctx context.Context, p auth.Principal, elderID string, page, size int) (*HistoryPage, error) {
	if _, err := s.guard.AuthorizeHumanRead(ctx, p, elderID); err != nil {
		return nil, err
	}
	if size < 1 || size > s.maxPageSize {
		return nil, apperr.Invalid("size must be between 1 and %d", s.maxPageSize)
	}
	if page < 0 {
		return nil, apperr.Invalid("page must be >= 0")
	}
	results, err := s.repo.History(ctx, elderID, size, page*size)
	if err != nil {
		return nil, apperr.Internal(err, "load patrol history")
	}
	return &HistoryPage{Items: results, Page: page, Size: size}, nil
}

// ListSnapshots returns the gallery records of one of the elder's patrols.
func (s *Service) ListSnapshots(ctx context.Context, p auth.Principal, elderID, patrolID string) ([]patrol.Snapshot, error) {
	if _, err := s.guard.AuthorizeHumanRead(ctx, p, elderID); err != nil {
		return nil, err
	}
	snapshots, err := s.repo.Snapshots(ctx, elderID, patrolID)
	if err != nil {
		return nil, apperr.Internal(err, "load patrol snapshots")
	}
	return snapshots, nil
}

// ExportHistory returns up to limit of the elder's newest patrols for rendering.
func (s *Service) ExportHistory(ctx context.Context, p auth.Principal, elderID string, limit int) (*care.Elder, []patrol.Result, error) {
	elder, err := s.guard.AuthorizeHumanRead(ctx, p, elderID)
	if err != nil {
		return nil, nil, err
	}
	if limit < 1 || limit > s.maxPageSize {
		limit = s.maxPageSize
	}
	results, err := s.repo.History(ctx, elderID, limit, 0)
	if err != nil {
		return nil, nil, apperr.Internal(err, "load patrol history")
	}
	return elder, results, nil
}
