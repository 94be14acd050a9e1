package httpserver

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	appassess "github.com/bryanwahyu/quorum-comply/internal/application/assessments"
	apppdca "github.com/bryanwahyu/quorum-comply/internal/application/pdca"
	domagents "github.com/bryanwahyu/quorum-comply/internal/domain/agents"
	domain "github.com/bryanwahyu/quorum-comply/internal/domain/assessments"
	"github.com/bryanwahyu/quorum-comply/internal/domain/frameworks"
	dompdca "github.com/bryanwahyu/quorum-comply/internal/domain/pdca"
	"github.com/bryanwahyu/quorum-comply/internal/middleware"
)

var (
	errBadRequest = errors.New("bad request")
	errForbidden  = errors.New("forbidden")
)

type Router struct {
	assessSvc *appassess.Service
	cycleSvc  *apppdca.Service
	catalog   frameworks.Catalog
}

func NewRouter(assessSvc *appassess.Service, cycleSvc *apppdca.Service, catalog frameworks.Catalog) http.Handler {
	r := &Router{assessSvc: assessSvc, cycleSvc: cycleSvc, catalog: catalog}
	mux := chi.NewRouter()

	mux.Route("/v1/{tenant}", func(rt chi.Router) {
		rt.Post("/assessments", r.wrap(r.handleRun))
		rt.Post("/webhook/assessment", r.wrap(r.handleWebhookRun))
		rt.Get("/assessments/latest", r.wrap(r.handleLatest))
		rt.Get("/assessments/{id}", r.wrap(r.handleGet))
		rt.Get("/summary", r.wrap(r.handleSummary))
		rt.Get("/frameworks", r.wrap(r.handleFrameworks))
		rt.Get("/cycles/{systemID}/{frameworkID}", r.wrap(r.handleCycleStatus))
		rt.Post("/cycles/{systemID}/{frameworkID}/advance", r.wrap(r.handleCycleAdvance))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			switch {
			case errors.Is(err, errBadRequest):
				http.Error(w, err.Error(), http.StatusBadRequest)
			case errors.Is(err, errForbidden):
				http.Error(w, err.Error(), http.StatusForbidden)
			case errors.Is(err, sql.ErrNoRows),
				errors.Is(err, domain.ErrNotFound),
				errors.Is(err, dompdca.ErrCycleNotFound),
				errors.Is(err, frameworks.ErrSystemNotFound),
				errors.Is(err, frameworks.ErrFrameworkNotFound):
				http.Error(w, err.Error(), http.StatusNotFound)
			case errors.Is(err, domain.ErrConcurrentRun):
				http.Error(w, err.Error(), http.StatusConflict)
			case errors.Is(err, domagents.ErrQuotaExceeded):
				http.Error(w, "evaluator quota exceeded", http.StatusTooManyRequests)
			case errors.Is(err, frameworks.ErrNoApplicableRequirements):
				http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			default:
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		}
	}
}

type runRequest struct {
	SystemID     string   `json:"system_id"`
	FrameworkIDs []string `json:"framework_ids"`
}

func (b runRequest) validate() error {
	if err := middleware.ValidateSystemID(b.SystemID); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if len(b.FrameworkIDs) == 0 {
		return fmt.Errorf("%w: framework_ids is required", errBadRequest)
	}
	for _, id := range b.FrameworkIDs {
		if err := middleware.ValidateFrameworkID(id); err != nil {
			return fmt.Errorf("%w: %v", errBadRequest, err)
		}
	}
	return nil
}

// tenantParam validates the URL tenant and, when auth is on, enforces it
// matches the authenticated one.
func tenantParam(req *http.Request) (string, error) {
	tenant := chi.URLParam(req, "tenant")
	if err := middleware.ValidateTenantID(tenant); err != nil {
		return "", fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if authed := middleware.GetTenantFromContext(req.Context()); authed != "" && authed != tenant {
		return "", fmt.Errorf("%w: api key is not valid for tenant %s", errForbidden, tenant)
	}
	return tenant, nil
}

// POST /v1/{tenant}/assessments
// Runs synchronously from the caller's view; the response carries every
// terminal assessment, one per requested framework.
func (r *Router) handleRun(w http.ResponseWriter, req *http.Request) error {
	tenant, err := tenantParam(req)
	if err != nil {
		return err
	}
	var body runRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if err := body.validate(); err != nil {
		return err
	}

	middleware.IncrementAssessments()
	middleware.IncrementAssessmentsRunning()
	results, err := r.assessSvc.Run(req.Context(), appassess.RunCommand{
		TenantID:     tenant,
		SystemID:     body.SystemID,
		FrameworkIDs: body.FrameworkIDs,
	})
	middleware.DecrementAssessmentsRunning()
	if err != nil {
		middleware.IncrementAssessmentsFailed()
		if len(results) == 0 {
			return err
		}
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(results)
}

// POST /v1/{tenant}/webhook/assessment
// Fire-and-forget: queue the run and answer immediately.
func (r *Router) handleWebhookRun(w http.ResponseWriter, req *http.Request) error {
	tenant, err := tenantParam(req)
	if err != nil {
		return err
	}
	var body runRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if err := body.validate(); err != nil {
		return err
	}

	cmd := appassess.RunCommand{
		TenantID:     tenant,
		SystemID:     body.SystemID,
		FrameworkIDs: body.FrameworkIDs,
	}
	// jalanin di background, biar jalan sampai selesai
	go func() {
		middleware.IncrementAssessments()
		middleware.IncrementAssessmentsRunning()
		defer middleware.DecrementAssessmentsRunning()
		if _, err := r.assessSvc.RunUntilDone(cmd); err != nil {
			middleware.IncrementAssessmentsFailed()
			log.Printf("background assessment error: tenant=%s system=%s err=%v",
				tenant, body.SystemID, err)
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(map[string]any{
		"status":     "queued",
		"tenant":     tenant,
		"system_id":  body.SystemID,
		"frameworks": body.FrameworkIDs,
		"queuedAt":   time.Now(),
	})
}

// GET /v1/{tenant}/assessments/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	tenant, err := tenantParam(req)
	if err != nil {
		return err
	}
	id := chi.URLParam(req, "id")

	a, err := r.assessSvc.Get(req.Context(), tenant, domain.AssessmentID(id))
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(a)
}

// GET /v1/{tenant}/assessments/latest?limit=20
func (r *Router) handleLatest(w http.ResponseWriter, req *http.Request) error {
	tenant, err := tenantParam(req)
	if err != nil {
		return err
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))

	list, err := r.assessSvc.Latest(req.Context(), tenant, middleware.ValidateLimit(limit))
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(list)
}

// GET /v1/{tenant}/summary?days=30
func (r *Router) handleSummary(w http.ResponseWriter, req *http.Request) error {
	tenant, err := tenantParam(req)
	if err != nil {
		return err
	}
	days, _ := strconv.Atoi(req.URL.Query().Get("days"))

	summary, err := r.assessSvc.Summary(req.Context(), tenant, days)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(summary)
}

// GET /v1/{tenant}/frameworks
func (r *Router) handleFrameworks(w http.ResponseWriter, req *http.Request) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(r.catalog.Frameworks())
}

// GET /v1/{tenant}/cycles/{systemID}/{frameworkID}
func (r *Router) handleCycleStatus(w http.ResponseWriter, req *http.Request) error {
	tenant, err := tenantParam(req)
	if err != nil {
		return err
	}
	systemID := chi.URLParam(req, "systemID")
	frameworkID := chi.URLParam(req, "frameworkID")

	c, err := r.cycleSvc.Status(req.Context(), tenant, systemID, frameworkID)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(c)
}

// POST /v1/{tenant}/cycles/{systemID}/{frameworkID}/advance
func (r *Router) handleCycleAdvance(w http.ResponseWriter, req *http.Request) error {
	tenant, err := tenantParam(req)
	if err != nil {
		return err
	}
	systemID := chi.URLParam(req, "systemID")
	frameworkID := chi.URLParam(req, "frameworkID")

	c, err := r.cycleSvc.Advance(req.Context(), tenant, systemID, frameworkID)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(c)
}
