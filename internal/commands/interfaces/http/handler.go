package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	apihttp "carebot-cloud/internal/api/http"
	"carebot-cloud/internal/auth"
	commandsapp "carebot-cloud/internal/commands/application"
)

// Handler provides command HTTP endpoints.
type Handler struct {
	service *commandsapp.Service
	auditor *apihttp.Auditor
}

// NewHandler constructs a handler.
func NewHandler(service *commandsapp.Service, auditor *apihttp.Auditor) (*Handler, error) {
	if service == nil {
		return nil, errors.New("commands handler: nil service")
	}
	return &Handler{service: service, auditor: auditor}, nil
}

// Routes mounts the endpoints under /robots/{robotID}/commands.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.handleIssue)
	r.Get("/", h.handleList)
	r.Patch("/{commandID}", h.handleStatus)
	r.Delete("/{commandID}", h.handleCancel)
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.RequirePrincipal(r)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	var req commandsapp.IssueRequest
	if _, err := apihttp.ReadJSON(r, &req, false); err != nil {
		apihttp.WriteError(w, err)
		return
	}
	robotID := chi.URLParam(r, "robotID")
	cmd, err := h.service.IssueAs(r.Context(), principal, robotID, req)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusCreated, cmd)
	h.auditor.Record(r, principal, "command.issue", "command", cmd.ID, robotID, map[string]any{"kind": cmd.Kind})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.RequirePrincipal(r)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	limit, err := apihttp.QueryInt(r, "limit", 0)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	list, err := h.service.List(r.Context(), principal, chi.URLParam(r, "robotID"), r.URL.Query().Get("status"), limit)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.RequirePrincipal(r)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	var req commandsapp.StatusRequest
	if _, err := apihttp.ReadJSON(r, &req, false); err != nil {
		apihttp.WriteError(w, err)
		return
	}
	robotID := chi.URLParam(r, "robotID")
	cmd, err := h.service.UpdateStatus(r.Context(), principal, robotID, chi.URLParam(r, "commandID"), req)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, cmd)
	h.auditor.Record(r, principal, "command.status", "command", cmd.ID, robotID, map[string]any{"status": cmd.Status})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.RequirePrincipal(r)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	robotID := chi.URLParam(r, "robotID")
	cmd, err := h.service.Cancel(r.Context(), principal, robotID, chi.URLParam(r, "commandID"))
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, cmd)
	h.auditor.Record(r, principal, "command.cancel", "command", cmd.ID, robotID, nil)
}
