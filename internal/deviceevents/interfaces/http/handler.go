package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	apihttp "carebot-cloud/internal/api/http"
	"carebot-cloud/internal/auth"
	eventsapp "carebot-cloud/internal/deviceevents/application"
	events "carebot-cloud/internal/deviceevents/domain"
)

// Handler serves robot event reports.
type Handler struct {
	ingester *eventsapp.Ingester
	auditor  *apihttp.Auditor
}

// NewHandler constructs a handler.
func NewHandler(ingester *eventsapp.Ingester, auditor *apihttp.Auditor) (*Handler, error) {
	if ingester == nil {
		return nil, errors.New("events handler: nil ingester")
	}
	return &Handler{ingester: ingester, auditor: auditor}, nil
}

// ServeHTTP handles POST /robots/{robotID}/events.
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
	var batch events.Batch
	if _, err := apihttp.ReadJSON(r, &batch, false); err != nil {
		apihttp.WriteError(w, err)
		return
	}
	robotID := chi.URLParam(r, "robotID")
	summary, err := h.ingester.ReportEvents(r.Context(), principal, robotID, batch.Events)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, summary)
	if summary.TakenCount > 0 || summary.DeferredCount > 0 {
		h.auditor.Record(r, principal, "events.report", "robot", robotID, robotID, map[string]any{
			"processed": summary.Processed,
			"taken":     summary.TakenCount,
			"deferred":  summary.DeferredCount,
		})
	}
}
