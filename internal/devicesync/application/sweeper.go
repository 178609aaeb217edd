package application

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"carebot-cloud/internal/observability/metrics"
	robots "carebot-cloud/internal/robots/domain"
)

// SilentLister finds connected robots that stopped syncing.
type SilentLister interface {
	ListSilentSince(ctx context.Context, cutoff time.Time) ([]string, error)
}

// LivenessSweeper periodically marks silent robots DISCONNECTED.
type LivenessSweeper struct {
	lister      SilentLister
	coordinator *Coordinator
	timeout     time.Duration
	schedule    string
	logger      *zap.Logger
	cron        *cron.Cron
}

// NewLivenessSweeper constructs a sweeper running on a cron schedule (e.g. "@every 1m").
func NewLivenessSweeper(lister SilentLister, coordinator *Coordinator, schedule string, timeout time.Duration, logger *zap.Logger) (*LivenessSweeper, error) {
	if lister == nil {
		return nil, errors.New("liveness sweeper: nil lister")
	}
	if coordinator == nil {
		return nil, errors.New("liveness sweeper: nil coordinator")
	}
	if timeout <= 0 {
		return nil, errors.New("liveness sweeper: timeout must be positive")
	}
	if schedule == "" {
		schedule = "@every 1m"
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LivenessSweeper{
		lister:      lister,
		coordinator: coordinator,
		timeout:     timeout,
		schedule:    schedule,
		logger:      logger.Named("liveness"),
	}, nil
}

// Start schedules the sweep. ctx bounds each run.
func (s *LivenessSweeper) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() { s.Run(ctx) }); err != nil {
		return err
	}
	s.cron = c
	c.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep.
func (s *LivenessSweeper) Stop() {
	if s == nil || s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// Run executes one sweep and logs the outcome.
func (s *LivenessSweeper) Run(ctx context.Context) {
	count, err := s.Sweep(ctx)
	if err != nil {
		s.logger.Warn("liveness sweep failed", zap.Error(err))
		return
	}
	if count > 0 {
		s.logger.Info("robots marked offline", zap.Int("count", count))
	}
}

// Sweep marks every robot silent for longer than the timeout as DISCONNECTED.
func (s *LivenessSweeper) Sweep(ctx context.Context) (int, error) {
	ids, err := s.lister.ListSilentSince(ctx, s.coordinator.now().Add(-s.timeout))
	if err != nil {
		return 0, err
	}
	changed := 0
	var errs []error
	for _, id := range ids {
		ok, err := s.coordinator.SetConnectivity(ctx, id, robots.Disconnected)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			changed++
		}
	}
	metrics.AddRobotsMarkedOffline(changed)
	return changed, errors.Join(errs...)
}
