package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	apihttp "carebot-cloud/internal/api/http"
	"carebot-cloud/internal/auth"
	robotsapp "carebot-cloud/internal/robots/application"
	robots "carebot-cloud/internal/robots/domain"
)

// Handler serves robot state and settings.
type Handler struct {
	service *robotsapp.Service
	auditor *apihttp.Auditor
}

// NewHandler constructs a handler.
func NewHandler(service *robotsapp.Service, auditor *apihttp.Auditor) (*Handler, error) {
	if service == nil {
		return nil, errors.New("robots handler: nil service")
	}
	return &Handler{service: service, auditor: auditor}, nil
}

// Routes mounts GET / and PUT /settings under /robots/{robotID}.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.handleGet)
	r.Put("/settings", h.handleSettings)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.RequirePrincipal(r)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	robot, err := h.service.Get(r.Context(), principal, chi.URLParam(r, "robotID"))
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, robot)
}

func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.RequirePrincipal(r)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	var update robots.SettingsUpdate
	if _, err := apihttp.ReadJSON(r, &update, false); err != nil {
		apihttp.WriteError(w, err)
		return
	}
	robotID := chi.URLParam(r, "robotID")
	robot, err := h.service.UpdateSettings(r.Context(), principal, robotID, update)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, robot.Settings)
	h.auditor.Record(r, principal, "robot.settings", "robot", robotID, robotID, settingsMeta(update))
}

func settingsMeta(update robots.SettingsUpdate) map[string]any {
	meta := make(map[string]any)
	for _, col := range update.Columns() {
		meta[col.Name] = col.Value
	}
	return meta
}
