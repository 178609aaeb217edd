package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/xuri/excelize/v2"

	"carebot-cloud/internal/auth"
	care "carebot-cloud/internal/care/domain"
	carememory "carebot-cloud/internal/care/infrastructure/memory"
	patrolapp "carebot-cloud/internal/patrol/application"
	patrolmemory "carebot-cloud/internal/patrol/infrastructure/memory"
	"carebot-cloud/internal/platform/memory"
	robots "carebot-cloud/internal/robots/domain"
	robotmemory "carebot-cloud/internal/robots/infrastructure/memory"
)

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	ctx := context.Background()
	robotRepo := robotmemory.NewRobotRepository()
	careStore := carememory.NewStore()
	_ = careStore.CreateElder(ctx, care.Elder{ID: "elder-a", OwnerUserID: "owner-a", Name: "Grandma"})
	_ = robotRepo.Create(ctx, &robots.Robot{ID: "robot-a", ElderID: "elder-a"})
	guard, _ := auth.NewGuard(robotRepo, careStore)
	svc, err := patrolapp.NewService(patrolmemory.NewRepository(), guard, memory.NewTxManager(), nil)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	handler, _ := NewHandler(svc)
	router := chi.NewRouter()
	router.Post("/robots/{robotID}/patrols", handler.HandleReport)
	router.Route("/elders/{elderID}/patrols", handler.ElderRoutes)
	return router
}

func do(router http.Handler, p auth.Principal, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req = req.WithContext(auth.WithPrincipal(req.Context(), p))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

const reportBody = `{"patrolId":"p-1","startedAt":"2026-07-01T22:00:00Z","items":[
	{"target":"GAS_VALVE","status":"OFF","imageUrl":"https://img.example/gas.jpg","checkedAt":"2026-07-01T22:10:00Z"},
	{"target":"DOOR","status":"LOCKED","confidence":0.95}
]}`

func TestPatrolReportAndReads(t *testing.T) {
	router := newRouter(t)
	device := auth.Device("robot-a")
	owner := auth.Human("owner-a")

	rec := do(router, device, http.MethodPost, "/robots/robot-a/patrols", reportBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		ID          string `json:"id"`
		Status      string `json:"status"`
		CompletedAt string `json:"completedAt"`
		Items       []struct {
			Label string `json:"label"`
		} `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Status != "WARNING" || created.CompletedAt != "2026-07-01T22:10:00Z" || created.Items[1].Label != "Door" {
		t.Fatalf("unexpected result: %+v", created)
	}

	rec = do(router, device, http.MethodPost, "/robots/robot-a/patrols", reportBody)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), created.ID) {
		t.Fatalf("expected replay 200 with same id, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(router, owner, http.MethodGet, "/elders/elder-a/patrols/latest", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"patrolId":"p-1"`) {
		t.Fatalf("unexpected latest %d: %s", rec.Code, rec.Body.String())
	}
	rec = do(router, owner, http.MethodGet, "/elders/elder-a/patrols?page=0&size=5", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"size":5`) {
		t.Fatalf("unexpected history %d: %s", rec.Code, rec.Body.String())
	}
	rec = do(router, owner, http.MethodGet, "/elders/elder-a/patrols?size=500", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized page, got %d", rec.Code)
	}
	rec = do(router, device, http.MethodGet, "/elders/elder-a/patrols/latest", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for device read, got %d", rec.Code)
	}
	rec = do(router, owner, http.MethodGet, "/elders/elder-a/patrols/p-1/snapshots", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "gas.jpg") {
		t.Fatalf("unexpected snapshots %d: %s", rec.Code, rec.Body.String())
	}
}

func TestPatrolExports(t *testing.T) {
	router := newRouter(t)
	if rec := do(router, auth.Device("robot-a"), http.MethodPost, "/robots/robot-a/patrols", reportBody); rec.Code != http.StatusCreated {
		t.Fatalf("seed patrol: %d", rec.Code)
	}
	owner := auth.Human("owner-a")

	rec := do(router, owner, http.MethodGet, "/elders/elder-a/patrols/export.pdf", "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("unexpected pdf response %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("body is not a pdf")
	}

	rec = do(router, owner, http.MethodGet, "/elders/elder-a/patrols/export.xlsx?limit=10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected xlsx response %d: %s", rec.Code, rec.Body.String())
	}
	book, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer book.Close()
	patrolID, _ := book.GetCellValue("patrols", "A6")
	target, _ := book.GetCellValue("items", "B2")
	if patrolID != "p-1" || target != "GAS_VALVE" {
		t.Fatalf("unexpected workbook cells: %q %q", patrolID, target)
	}
}

func TestPatrolReplayWithMalformedItems(t *testing.T) {
	router := newRouter(t)
	device := auth.Device("robot-a")
	if rec := do(router, device, http.MethodPost, "/robots/robot-a/patrols", reportBody); rec.Code != http.StatusCreated {
		t.Fatalf("seed patrol: %d", rec.Code)
	}

	malformed := `{"patrolId":" p-1 ","startedAt":"2026-07-01T22:00:00Z","items":[{"target":"","status":"OFF","imageUrl":"not a url"}]}`
	rec := do(router, device, http.MethodPost, "/robots/robot-a/patrols", malformed)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"patrolId":"p-1"`) {
		t.Fatalf("expected replay 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(router, device, http.MethodPost, "/robots/robot-a/patrols", strings.Replace(malformed, " p-1 ", "p-2", 1))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for new malformed report, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(router, device, http.MethodPost, "/robots/robot-a/patrols", `{"patrolId":"  ","startedAt":"2026-07-01T22:00:00Z","items":[]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank patrol id, got %d", rec.Code)
	}

	rec = do(router, auth.Device("robot-b"), http.MethodPost, "/robots/robot-a/patrols", strings.Replace(malformed, " p-1 ", "p-3", 1))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign device, got %d: %s", rec.Code, rec.Body.String())
	}
}
