// Package server assembles the service graph and its HTTP router.
package server

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	apihttp "carebot-cloud/internal/api/http"
	"carebot-cloud/internal/audit"
	"carebot-cloud/internal/auth"
	care "carebot-cloud/internal/care/domain"
	commandsapp "carebot-cloud/internal/commands/application"
	commands "carebot-cloud/internal/commands/domain"
	eventsapp "carebot-cloud/internal/deviceevents/application"
	events "carebot-cloud/internal/deviceevents/domain"
	syncapp "carebot-cloud/internal/devicesync/application"
	"carebot-cloud/internal/notify"
	patrolapp "carebot-cloud/internal/patrol/application"
	patrol "carebot-cloud/internal/patrol/domain"
	robotsapp "carebot-cloud/internal/robots/application"
	robots "carebot-cloud/internal/robots/domain"
)

const defaultLivenessTimeout = 3 * time.Minute

// TxManager runs a unit of work.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Stores bundles the persistence adapters of one storage mode.
type Stores struct {
	Robots   robots.Repository
	Care     care.Store
	Commands commands.Repository
	Events   events.Repository
	Patrols  patrol.Repository
	Tx       TxManager
	Audit    audit.Logger
}

// Options carries the non-storage dependencies.
type Options struct {
	Notifier          notify.Notifier
	Location          *time.Location
	PatrolMaxPageSize int
	LivenessSchedule  string
	LivenessTimeout   time.Duration
	Logger            *zap.Logger
}

// App is the assembled service graph.
type App struct {
	Guard       *auth.Guard
	Robots      *robotsapp.Service
	Commands    *commandsapp.Service
	Coordinator *syncapp.Coordinator
	Ingester    *eventsapp.Ingester
	Patrols     *patrolapp.Service
	Sweeper     *syncapp.LivenessSweeper
	Auditor     *apihttp.Auditor
}

// Build wires every application service over stores.
func Build(stores Stores, opts Options) (*App, error) {
	if stores.Robots == nil || stores.Care == nil || stores.Commands == nil || stores.Events == nil || stores.Patrols == nil || stores.Tx == nil {
		return nil, errors.New("server: incomplete stores")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	guard, err := auth.NewGuard(stores.Robots, stores.Care)
	if err != nil {
		return nil, err
	}
	robotService, err := robotsapp.NewService(stores.Robots, guard)
	if err != nil {
		return nil, err
	}
	commandService, err := commandsapp.NewService(stores.Commands, guard, logger)
	if err != nil {
		return nil, err
	}
	coordinator, err := syncapp.NewCoordinator(stores.Robots, commandService, guard, stores.Tx, opts.Notifier, logger)
	if err != nil {
		return nil, err
	}
	ingester, err := eventsapp.NewIngester(stores.Events, stores.Care, guard, stores.Tx, opts.Notifier, opts.Location, logger)
	if err != nil {
		return nil, err
	}
	patrolService, err := patrolapp.NewService(stores.Patrols, guard, stores.Tx, logger)
	if err != nil {
		return nil, err
	}
	if opts.PatrolMaxPageSize > 0 {
		patrolService.WithMaxPageSize(opts.PatrolMaxPageSize)
	}
	livenessTimeout := opts.LivenessTimeout
	if livenessTimeout <= 0 {
		livenessTimeout = defaultLivenessTimeout
	}
	sweeper, err := syncapp.NewLivenessSweeper(stores.Robots, coordinator, opts.LivenessSchedule, livenessTimeout, logger)
	if err != nil {
		return nil, err
	}

	return &App{
		Guard:       guard,
		Robots:      robotService,
		Commands:    commandService,
		Coordinator: coordinator,
		Ingester:    ingester,
		Patrols:     patrolService,
		Sweeper:     sweeper,
		Auditor:     apihttp.NewAuditor(stores.Audit, logger),
	}, nil
}
