package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	apihttp "carebot-cloud/internal/api/http"
	"carebot-cloud/internal/apperr"
	"carebot-cloud/internal/auth"
	care "carebot-cloud/internal/care/domain"
	"carebot-cloud/internal/observability/metrics"
	patrolapp "carebot-cloud/internal/patrol/application"
	patrol "carebot-cloud/internal/patrol/domain"
)

const defaultPageSize = 20

type renderFunc func(*care.Elder, []patrol.Result, time.Time) ([]byte, error)

// Handler serves patrol reports and the elder-scoped patrol reads.
type Handler struct {
	service *patrolapp.Service
	now     func() time.Time
}

// NewHandler constructs a handler.
func NewHandler(service *patrolapp.Service) (*Handler, error) {
	if service == nil {
		return nil, errors.New("patrol handler: nil service")
	}
	return &Handler{service: service, now: func() time.Time { return time.Now().UTC() }}, nil
}

// ElderRoutes mounts the read endpoints under /elders/{elderID}/patrols.
func (h *Handler) ElderRoutes(r chi.Router) {
	r.Get("/", h.handleHistory)
	r.Get("/latest", h.handleLatest)
	r.Get("/export.pdf", h.handleExport("pdf", "application/pdf", BuildHistoryPDF))
	r.Get("/export.xlsx", h.handleExport("xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", BuildHistoryXLSX))
	r.Get("/{patrolID}/snapshots", h.handleSnapshots)
}

// HandleReport serves POST /robots/{robotID}/patrols. A replay answers 200, a new patrol 201.
func (h *Handler) HandleReport(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.RequirePrincipal(r)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	var report patrol.Report
	if _, err := apihttp.ReadJSON(r, &report, false); err != nil {
		apihttp.WriteError(w, err)
		return
	}
	result, created, err := h.service.ReportPatrol(r.Context(), principal, chi.URLParam(r, "robotID"), report)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	apihttp.WriteJSON(w, status, result)
}

func (h *Handler) handleLatest(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.RequirePrincipal(r)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	result, err := h.service.GetLatest(r.Context(), principal, chi.URLParam(r, "elderID"))
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.RequirePrincipal(r)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	page, err := apihttp.QueryInt(r, "page", 0)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	size, err := apihttp.QueryInt(r, "size", defaultPageSize)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	history, err := h.service.GetHistory(r.Context(), principal, chi.URLParam(r, "elderID"), page, size)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, history)
}

func (h *Handler) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.RequirePrincipal(r)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	snapshots, err := h.service.ListSnapshots(r.Context(), principal, chi.URLParam(r, "elderID"), chi.URLParam(r, "patrolID"))
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, snapshots)
}

func (h *Handler) handleExport(format, contentType string, render renderFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		result := metrics.ResultError
		defer func() { metrics.ObservePatrolExport(format, result, time.Since(start)) }()

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
		elder, results, err := h.service.ExportHistory(r.Context(), principal, chi.URLParam(r, "elderID"), limit)
		if err != nil {
			apihttp.WriteError(w, err)
			return
		}
		now := h.now()
		body, err := render(elder, results, now)
		if err != nil {
			apihttp.WriteError(w, apperr.Internal(err, "render patrol export"))
			return
		}
		filename := fmt.Sprintf("patrols-%s-%s.%s", elder.ID, now.Format("20060102"), format)
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(filename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
		result = metrics.ResultSuccess
	}
}
