package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"carebot-cloud/internal/auth"
	commandshttp "carebot-cloud/internal/commands/interfaces/http"
	eventshttp "carebot-cloud/internal/deviceevents/interfaces/http"
	synchttp "carebot-cloud/internal/devicesync/interfaces/http"
	patrolhttp "carebot-cloud/internal/patrol/interfaces/http"
	robotshttp "carebot-cloud/internal/robots/interfaces/http"
)

// NewRouter mounts /healthz, /metrics and the /api/v1 endpoints.
func NewRouter(app *App, authMW *auth.Middleware, logger *zap.Logger) (http.Handler, error) {
	if app == nil {
		return nil, errors.New("server: nil app")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	robotHandler, err := robotshttp.NewHandler(app.Robots, app.Auditor)
	if err != nil {
		return nil, err
	}
	commandHandler, err := commandshttp.NewHandler(app.Commands, app.Auditor)
	if err != nil {
		return nil, err
	}
	syncHandler, err := synchttp.NewHandler(app.Coordinator)
	if err != nil {
		return nil, err
	}
	eventHandler, err := eventshttp.NewHandler(app.Ingester, app.Auditor)
	if err != nil {
		return nil, err
	}
	patrolHandler, err := patrolhttp.NewHandler(app.Patrols)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(authMW.Wrap)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/robots/{robotID}", func(r chi.Router) {
			robotHandler.Routes(r)
			r.Method(http.MethodPost, "/sync", syncHandler)
			r.Method(http.MethodPost, "/events", eventHandler)
			r.Post("/patrols", patrolHandler.HandleReport)
			r.Route("/commands", commandHandler.Routes)
		})
		r.Route("/elders/{elderID}/patrols", patrolHandler.ElderRoutes)
	})
	return r, nil
}

// DefaultPolicy exempts the health and scrape endpoints from authentication.
func DefaultPolicy() auth.Policy {
	return auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
}
