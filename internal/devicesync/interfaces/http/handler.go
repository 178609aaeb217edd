package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	apihttp "carebot-cloud/internal/api/http"
	"carebot-cloud/internal/auth"
	syncapp "carebot-cloud/internal/devicesync/application"
	robots "carebot-cloud/internal/robots/domain"
)

// Handler serves the robot poll endpoint.
type Handler struct {
	coordinator *syncapp.Coordinator
}

// NewHandler constructs a handler.
func NewHandler(coordinator *syncapp.Coordinator) (*Handler, error) {
	if coordinator == nil {
		return nil, errors.New("sync handler: nil coordinator")
	}
	return &Handler{coordinator: coordinator}, nil
}

// ServeHTTP handles POST /robots/{robotID}/sync. An empty body is a heartbeat.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	principal, err := auth.RequirePrincipal(r)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	var snapshot robots.StateUpdate
	present, err := apihttp.ReadJSON(r, &snapshot, true)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	var update *robots.StateUpdate
	if present {
		update = &snapshot
	}
	result, err := h.coordinator.Sync(r.Context(), principal, chi.URLParam(r, "robotID"), update)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, result)
}
