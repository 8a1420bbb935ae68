package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"learnpulse/internal/core"
	"learnpulse/internal/scheduler"
	"learnpulse/internal/types"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// JobTrigger runs jobs on demand.
type JobTrigger interface {
	Execute(ctx context.Context, payload scheduler.JobPayload) (scheduler.RunReport, error)
	TriggerDailyRiskUpdate(ctx context.Context) (scheduler.RunReport, error)
	TriggerRiskScoreRecompute(ctx context.Context) ([]scheduler.RunReport, error)
}

// JobHistoryReader lists recent job runs.
type JobHistoryReader interface {
	Recent(ctx context.Context, task string, limit int) ([]types.JobRun, error)
}

// AdminHandler exposes the manual overrides and the job history.
type AdminHandler struct {
	jobs    JobTrigger
	history JobHistoryReader
	logger  *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(jobs JobTrigger, history JobHistoryReader, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{jobs: jobs, history: history, logger: logger}
}

// RegisterRoutes mounts the admin endpoints under /admin.
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.With(core.ReadTimeout).Get("/jobs/history", h.HandleJobHistory)

		r.Group(func(r chi.Router) {
			r.Use(core.AdminTimeout)
			r.Post("/risk/daily-update", h.HandleDailyUpdate)
			r.Post("/risk/recompute", h.HandleRecompute)
			r.Post("/jobs/{task}", h.HandleRunJob)
		})
	})
}

type runJobRequest struct {
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}

// HandleDailyUpdate handles POST /v1/admin/risk/daily-update.
func (h *AdminHandler) HandleDailyUpdate(w http.ResponseWriter, r *http.Request) {
	report, err := h.jobs.TriggerDailyRiskUpdate(r.Context())
	if err != nil {
		h.logTriggerFailure(r, string(scheduler.TaskDailyRiskSnapshot), err)
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, report)
}

// HandleRecompute handles POST /v1/admin/risk/recompute.
func (h *AdminHandler) HandleRecompute(w http.ResponseWriter, r *http.Request) {
	reports, err := h.jobs.TriggerRiskScoreRecompute(r.Context())
	if err != nil {
		h.logTriggerFailure(r, "risk_recompute", err)
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, reports)
}

// HandleRunJob handles POST /v1/admin/jobs/{task}. The optional body
// {"reference_time": "..."} backfills a past run.
func (h *AdminHandler) HandleRunJob(w http.ResponseWriter, r *http.Request) {
	task, err := scheduler.ParseTask(chi.URLParam(r, "task"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req runJobRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	report, err := h.jobs.Execute(r.Context(), scheduler.JobPayload{Task: task, ReferenceTime: req.ReferenceTime})
	if err != nil {
		h.logTriggerFailure(r, string(task), err)
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, report)
}

// HandleJobHistory handles GET /v1/admin/jobs/history?task=&limit=.
func (h *AdminHandler) HandleJobHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	task := q.Get("task")
	if task != "" {
		if _, err := scheduler.ParseTask(task); err != nil {
			core.Error(w, r, err)
			return
		}
	}

	limit := defaultHistoryLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidLimit,
				"limit must be an integer between 1 and 200", err))
			return
		}
		limit = n
	}

	runs, err := h.history.Recent(r.Context(), task, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list job history", "task", task, "error", err)
		core.Error(w, r, err)
		return
	}
	if runs == nil {
		runs = []types.JobRun{}
	}
	core.Data(w, r, http.StatusOK, runs)
}

func (h *AdminHandler) logTriggerFailure(r *http.Request, task string, err error) {
	if types.HasCode(err, types.ErrCodeConflictJobRunning) {
		h.logger.InfoContext(r.Context(), "manual trigger skipped, job already running", "task", task)
		return
	}
	h.logger.ErrorContext(r.Context(), "manual trigger failed", "task", task, "error", err)
}
