package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"carebot-cloud/internal/audit"
	"carebot-cloud/internal/auth"
	carememory "carebot-cloud/internal/care/infrastructure/memory"
	carepostgres "carebot-cloud/internal/care/infrastructure/postgres"
	commandsmemory "carebot-cloud/internal/commands/infrastructure/memory"
	commandspostgres "carebot-cloud/internal/commands/infrastructure/postgres"
	"carebot-cloud/internal/config"
	eventsmemory "carebot-cloud/internal/deviceevents/infrastructure/memory"
	eventspostgres "carebot-cloud/internal/deviceevents/infrastructure/postgres"
	"carebot-cloud/internal/notify"
	"carebot-cloud/internal/observability/logging"
	"carebot-cloud/internal/observability/metrics"
	patrolmemory "carebot-cloud/internal/patrol/infrastructure/memory"
	patrolpostgres "carebot-cloud/internal/patrol/infrastructure/postgres"
	platformmemory "carebot-cloud/internal/platform/memory"
	platformpg "carebot-cloud/internal/platform/postgres"
	robotsmemory "carebot-cloud/internal/robots/infrastructure/memory"
	robotspostgres "carebot-cloud/internal/robots/infrastructure/postgres"
	"carebot-cloud/internal/server"
	"carebot-cloud/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, cfg.Log.Service)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("carebot-cloud stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	stores, db, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}
	metrics.Init(db, logger)

	notifier, closeNotifier, err := buildNotifier(ctx, cfg.Notify, logger)
	if err != nil {
		return err
	}
	defer closeNotifier()

	app, err := server.Build(stores, server.Options{
		Notifier:          notifier,
		Location:          cfg.Location,
		PatrolMaxPageSize: cfg.PatrolMaxPageSize,
		LivenessSchedule:  cfg.Liveness.Schedule,
		LivenessTimeout:   cfg.Liveness.Timeout,
		Logger:            logger,
	})
	if err != nil {
		return fmt.Errorf("build services: %w", err)
	}

	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), server.DefaultPolicy())
	handler, err := server.NewRouter(app, authMiddleware, logger)
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	if err := app.Sweeper.Start(ctx); err != nil {
		return fmt.Errorf("start liveness sweep: %w", err)
	}
	defer app.Sweeper.Stop()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.Bool("in_memory", cfg.InMemory()))
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", zap.Duration("timeout", cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (server.Stores, *sql.DB, error) {
	if cfg.InMemory() {
		robotRepo := robotsmemory.NewRobotRepository()
		careStore := carememory.NewStore()
		if err := server.Seed(ctx, cfg.Seed, robotRepo, careStore, time.Now().UTC()); err != nil {
			return server.Stores{}, nil, fmt.Errorf("seed: %w", err)
		}
		logger.Warn("no database configured, using in-memory storage",
			zap.Int("seed_elders", len(cfg.Seed.Elders)),
			zap.Int("seed_robots", len(cfg.Seed.Robots)),
		)
		return server.Stores{
			Robots:   robotRepo,
			Care:     careStore,
			Commands: commandsmemory.NewCommandRepository(),
			Events:   eventsmemory.NewEventRepository(),
			Patrols:  patrolmemory.NewRepository(),
			Tx:       platformmemory.NewTxManager(),
			Audit:    audit.NewZapLogger(logger),
		}, nil, nil
	}

	db, err := platformpg.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return server.Stores{}, nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.AutoMigrate {
		if err := migrations.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return server.Stores{}, nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("migrations applied")
	}
	return server.Stores{
		Robots:   robotspostgres.NewRobotRepository(db),
		Care:     carepostgres.NewStore(db),
		Commands: commandspostgres.NewCommandRepository(db),
		Events:   eventspostgres.NewEventRepository(db),
		Patrols:  patrolpostgres.NewRepository(db),
		Tx:       platformpg.NewTxManager(db),
		Audit:    audit.NewRepository(db),
	}, db, nil
}

// buildNotifier fans out to every configured sink. With none configured it returns notify.Nop.
func buildNotifier(ctx context.Context, cfg config.NotifyConfig, logger *zap.Logger) (notify.Notifier, func(), error) {
	var (
		sinks   []notify.Sink
		closers []func()
	)
	closeAll := func() {
		for _, fn := range closers {
			fn()
		}
	}

	if cfg.MQTTBroker != "" {
		mqttSink, err := notify.DialMQTT(notify.MQTTConfig{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
			QoS:      byte(cfg.MQTTQoS),
		})
		if err != nil {
			return nil, closeAll, err
		}
		sinks = append(sinks, mqttSink)
		closers = append(closers, mqttSink.Close)
	}
	if cfg.RedisAddr != "" {
		redisSink, err := notify.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		sinks = append(sinks, redisSink)
		closers = append(closers, func() { _ = redisSink.Close() })
	}
	if cfg.WebhookURL != "" {
		webhookSink, err := notify.NewWebhookSink(cfg.WebhookURL)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		sinks = append(sinks, webhookSink)
	}

	if len(sinks) == 0 {
		logger.Info("no notification sinks configured")
		return notify.Nop{}, closeAll, nil
	}
	notifier, err := notify.NewSinkNotifier(notify.NewMultiSink(sinks...),
		notify.WithTopicPrefix(cfg.TopicPrefix),
		notify.WithCooldown(cfg.Cooldown),
		notify.WithDedupeWindow(cfg.DedupeWindow),
		notify.WithLogger(logger),
	)
	if err != nil {
		closeAll()
		return nil, func() {}, err
	}
	logger.Info("notification sinks ready", zap.Int("sinks", len(sinks)))
	return notifier, closeAll, nil
}
