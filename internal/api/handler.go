// Package api exposes the HTTP surface: one-off run launches, job status
// lookups and the recurring delta task registry.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/bloomreach/shopify-to-bloomreach/internal/docker"
	"github.com/bloomreach/shopify-to-bloomreach/internal/domain"
	"github.com/bloomreach/shopify-to-bloomreach/internal/scheduler"
)

// Dispatcher launches runs and reports job status.
type Dispatcher interface {
	Launch(ctx context.Context, cfg domain.RunConfig) (string, error)
	Status(ctx context.Context, jobName string, deleteOnSuccess, verbose bool) (domain.Job, error)
	Statuses(ctx context.Context, jobNames []string, verboseOnFailure bool) ([]domain.Job, error)
}

// TaskRegistry manages recurring delta tasks.
type TaskRegistry interface {
	Register(sched domain.DeltaSchedule) (string, error)
	Cancel(taskID string) error
	Tasks() []scheduler.Task
}

// HealthChecker provides runtime health status for the /health endpoint.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	dispatcher Dispatcher
	registry   TaskRegistry
	runtime    HealthChecker
}

func NewHandler(dispatcher Dispatcher, registry TaskRegistry) *Handler {
	return &Handler{dispatcher: dispatcher, registry: registry}
}

// WithHealthChecker sets the runtime health checker for verbose /health responses.
func (h *Handler) WithHealthChecker(runtime HealthChecker) *Handler {
	h.runtime = runtime
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case path == "/health" && r.Method == http.MethodGet:
		h.health(w, r)

	case path == "/dish/jobs" && r.Method == http.MethodPost:
		h.launchRun(w, r)

	case path == "/dish/jobs/status" && r.Method == http.MethodGet:
		h.jobStatus(w, r)

	case path == "/dish/jobs/statuses" && r.Method == http.MethodGet:
		h.jobStatuses(w, r)

	case path == "/dish/delta/tasks" && r.Method == http.MethodPost:
		h.createTask(w, r)

	case path == "/dish/delta/tasks" && r.Method == http.MethodGet:
		h.listTasks(w, r)

	case strings.HasPrefix(path, "/dish/delta/tasks/") && r.Method == http.MethodDelete:
		h.deleteTask(w, r)

	default:
		writeError(w, http.StatusNotFound, CodeNotFound, "not found")
	}
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	verbose := r.URL.Query().Get("verbose") == "true"

	if !verbose || h.runtime == nil {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	resp := HealthResponse{
		Status:     "ok",
		Components: make(map[string]string),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.runtime.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.Components["docker"] = "unhealthy: " + err.Error()
	} else {
		resp.Components["docker"] = "healthy"
	}

	statusCode := http.StatusOK
	if resp.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, resp)
}

// maxRequestBodySize is the maximum allowed request body size (1MB).
const maxRequestBodySize = 1 << 20

func (h *Handler) launchRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := validateRun(req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, err.Error())
		return
	}

	jobName, err := h.dispatcher.Launch(r.Context(), runConfig(req))
	if err != nil {
		log.Printf("api: launch run error: %v", err)
		if errors.Is(err, docker.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, CodeDispatch, "a run for this catalog is already in progress")
			return
		}
		writeError(w, http.StatusInternalServerError, CodeDispatch, "failed to launch run")
		return
	}

	writeJSON(w, http.StatusCreated, RunResponse{JobName: jobName})
}

func (h *Handler) jobStatus(w http.ResponseWriter, r *http.Request) {
	jobName := r.URL.Query().Get("jobName")
	if jobName == "" {
		writeError(w, http.StatusBadRequest, CodeValidation, "jobName is required")
		return
	}
	deleteOnSuccess := r.URL.Query().Get("deleteOnSuccess") == "true"
	verbose := r.URL.Query().Get("verbose") == "true"

	job, err := h.dispatcher.Status(r.Context(), jobName, deleteOnSuccess, verbose)
	if err != nil {
		if errors.Is(err, docker.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, CodeNotFound, "job not found: "+jobName)
			return
		}
		log.Printf("api: job status error: %v", err)
		writeError(w, http.StatusInternalServerError, CodeDispatch, "failed to read job status")
		return
	}

	writeJSON(w, http.StatusOK, JobStatusResponse{
		JobName: job.Name,
		Status:  string(job.Status),
		Log:     job.Log,
	})
}

func (h *Handler) jobStatuses(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("jobNames")
	if raw == "" {
		writeError(w, http.StatusBadRequest, CodeValidation, "jobNames is required")
		return
	}
	verboseOnFailure := r.URL.Query().Get("verboseOnFailure") == "true"

	names := strings.Split(raw, ",")
	for i := range names {
		names[i] = strings.TrimSpace(names[i])
	}

	jobs, err := h.dispatcher.Statuses(r.Context(), names, verboseOnFailure)
	if err != nil {
		log.Printf("api: job statuses error: %v", err)
		writeError(w, http.StatusInternalServerError, CodeDispatch, "failed to read job statuses")
		return
	}

	resp := JobStatusesResponse{Jobs: make([]JobStatusResponse, len(jobs))}
	for i, job := range jobs {
		resp.Jobs[i] = JobStatusResponse{
			JobName: job.Name,
			Status:  string(job.Status),
			Log:     job.Log,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) createTask(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	if !decodeBody(w, r, &req) {
		return
	}

	interval, err := validateSchedule(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, err.Error())
		return
	}

	sched := domain.DeltaSchedule{
		ShopifyURL:      req.ShopifyURL,
		ShopifyToken:    req.ShopifyToken,
		BREnvironment:   req.BREnvironment,
		BRAccountID:     req.BRAccountID,
		BRCatalog:       req.BRCatalog,
		BRAPIToken:      req.BRAPIToken,
		MultiMarket:     req.MultiMarket,
		AutoIndex:       req.AutoIndex,
		ShopifyMarket:   req.ShopifyMarket,
		ShopifyLanguage: req.ShopifyLanguage,
		Interval:        interval,
	}

	taskID, err := h.registry.Register(sched)
	if err != nil {
		log.Printf("api: register task error: %v", err)
		writeError(w, http.StatusInternalServerError, CodeDispatch, "failed to register task")
		return
	}

	writeJSON(w, http.StatusCreated, ScheduleResponse{TaskID: taskID})
}

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks := h.registry.Tasks()

	resp := ListTasksResponse{Tasks: make([]TaskResponse, len(tasks))}
	for i, t := range tasks {
		tr := TaskResponse{
			TaskID:     t.ID,
			CatalogKey: t.CatalogKey,
			ShopifyURL: t.Schedule.ShopifyURL,
			BRCatalog:  t.Schedule.BRCatalog,
			Interval:   string(t.Schedule.Interval),
			CreatedAt:  formatTime(t.CreatedAt),
			NextRun:    formatTime(t.NextRun),
			IsRunning:  t.IsRunning,
		}
		if t.LastSuccessfulRun != nil {
			tr.LastSuccessfulRun = formatTime(*t.LastSuccessfulRun)
		}
		resp.Tasks[i] = tr
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) deleteTask(w http.ResponseWriter, r *http.Request) {
	// Extract task ID from path: /dish/delta/tasks/{id}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 4 {
		writeError(w, http.StatusNotFound, CodeNotFound, "not found")
		return
	}
	taskID := parts[3]

	if err := h.registry.Cancel(taskID); err != nil {
		if errors.Is(err, scheduler.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, CodeNotFound, "task not found: "+taskID)
			return
		}
		log.Printf("api: cancel task error: %v", err)
		writeError(w, http.StatusInternalServerError, CodeDispatch, "failed to cancel task")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// decodeBody parses the JSON request body into v, writing the error response
// itself when parsing fails.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if err.Error() == "http: request body too large" {
			writeError(w, http.StatusRequestEntityTooLarge, CodeValidation, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, CodeValidation, "invalid json")
		return false
	}
	return true
}

func runConfig(req RunRequest) domain.RunConfig {
	return domain.RunConfig{
		ShopifyURL:      req.ShopifyURL,
		ShopifyToken:    req.ShopifyToken,
		BREnvironment:   req.BREnvironment,
		BRAccountID:     req.BRAccountID,
		BRCatalog:       req.BRCatalog,
		BRAPIToken:      req.BRAPIToken,
		MultiMarket:     req.MultiMarket,
		AutoIndex:       req.AutoIndex,
		ShopifyMarket:   req.ShopifyMarket,
		ShopifyLanguage: req.ShopifyLanguage,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: json encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}
