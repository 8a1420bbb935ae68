package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"learnpulse/internal/core"
	"learnpulse/internal/engagement"
	"learnpulse/internal/types"
)

// SummaryReader reads engagement summaries.
type SummaryReader interface {
	GetEngagementSummary(ctx context.Context, learnerID string) (*types.EngagementSummary, error)
}

// LearnerLookup reports whether a learner exists.
type LearnerLookup interface {
	Exists(ctx context.Context, learnerID string) (bool, error)
}

// SnapshotReader reads risk snapshots and their daily distribution.
type SnapshotReader interface {
	GetSnapshot(ctx context.Context, learnerID string, day time.Time) (*types.RiskSnapshot, error)
	GetLatestSnapshot(ctx context.Context, learnerID string) (*types.RiskSnapshot, error)
	GetDistribution(ctx context.Context, day time.Time) (types.RiskDistribution, error)
}

// LearnerHandler serves per-learner engagement and risk, plus the daily
// risk distribution.
type LearnerHandler struct {
	summaries SummaryReader
	snapshots SnapshotReader
	learners  LearnerLookup
	clock     types.Clock
	loc       *time.Location
	logger    *slog.Logger
}

// NewLearnerHandler creates a LearnerHandler. Days are interpreted in loc.
func NewLearnerHandler(
	summaries SummaryReader,
	snapshots SnapshotReader,
	clock types.Clock,
	loc *time.Location,
	logger *slog.Logger,
) *LearnerHandler {
	if clock == nil {
		clock = types.RealClock{}
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LearnerHandler{
		summaries: summaries,
		snapshots: snapshots,
		clock:     clock,
		loc:       loc,
		logger:    logger,
	}
}

// WithLearnerLookup makes a missing engagement summary answer
// not_found_learner when the learner itself does not exist.
func (h *LearnerHandler) WithLearnerLookup(l LearnerLookup) *LearnerHandler {
	h.learners = l
	return h
}

// RegisterRoutes mounts the read endpoints.
func (h *LearnerHandler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(core.ReadTimeout)
		r.Get("/learners/{id}/engagement", h.HandleGetEngagement)
		r.Get("/learners/{id}/risk", h.HandleGetRisk)
		r.Get("/risk/distribution", h.HandleGetDistribution)
	})
}

// HandleGetEngagement handles GET /v1/learners/{id}/engagement.
func (h *LearnerHandler) HandleGetEngagement(w http.ResponseWriter, r *http.Request) {
	learnerID := chi.URLParam(r, "id")

	summary, err := h.summaries.GetEngagementSummary(r.Context(), learnerID)
	if err != nil && h.learners != nil && types.HasCode(err, types.ErrCodeNotFoundSummary) {
		err = h.unknownLearner(r.Context(), learnerID, err)
	}
	if err != nil {
		h.logFailure(r, "failed to get engagement summary", learnerID, err)
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, summary)
}

// unknownLearner returns not_found_learner if learnerID does not exist, else
// the original error.
func (h *LearnerHandler) unknownLearner(ctx context.Context, learnerID string, orig error) error {
	ok, err := h.learners.Exists(ctx, learnerID)
	switch {
	case err != nil:
		return err
	case !ok:
		return types.NewAppError(types.ErrCodeNotFoundLearner, "learner not found", nil).
			WithDetails(map[string]any{"learner_id": learnerID})
	default:
		return orig
	}
}

// HandleGetRisk handles GET /v1/learners/{id}/risk. Without ?day= the
// latest snapshot is returned.
func (h *LearnerHandler) HandleGetRisk(w http.ResponseWriter, r *http.Request) {
	learnerID := chi.URLParam(r, "id")

	var (
		snap *types.RiskSnapshot
		err  error
	)
	if raw := r.URL.Query().Get("day"); raw != "" {
		day, perr := parseDay(raw, h.loc)
		if perr != nil {
			core.Error(w, r, perr)
			return
		}
		snap, err = h.snapshots.GetSnapshot(r.Context(), learnerID, day)
	} else {
		snap, err = h.snapshots.GetLatestSnapshot(r.Context(), learnerID)
	}
	if err != nil {
		h.logFailure(r, "failed to get risk snapshot", learnerID, err)
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, snap)
}

// HandleGetDistribution handles GET /v1/risk/distribution. Without ?day=
// today's distribution is returned.
func (h *LearnerHandler) HandleGetDistribution(w http.ResponseWriter, r *http.Request) {
	day := engagement.DayOf(h.clock.Now(), h.loc)
	if raw := r.URL.Query().Get("day"); raw != "" {
		var err error
		if day, err = parseDay(raw, h.loc); err != nil {
			core.Error(w, r, err)
			return
		}
	}

	dist, err := h.snapshots.GetDistribution(r.Context(), day)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to get risk distribution",
			"day", day.Format(dayLayout),
			"error", err,
		)
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, dist)
}

// logFailure logs everything except not-found answers.
func (h *LearnerHandler) logFailure(r *http.Request, msg, learnerID string, err error) {
	if types.HasCode(err, types.ErrCodeNotFoundSummary) || types.HasCode(err, types.ErrCodeNotFoundSnapshot) {
		return
	}
	h.logger.ErrorContext(r.Context(), msg, "learner_id", learnerID, "error", err)
}
