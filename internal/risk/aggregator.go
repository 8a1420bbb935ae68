package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"learnpulse/internal/types"
)

// DefaultPredictionTimeout bounds a single prediction call.
const DefaultPredictionTimeout = 5 * time.Second

// ErrNoActiveEnrollments means the learner has nothing to assess and must not
// be snapshotted.
var ErrNoActiveEnrollments = errors.New("learner has no active enrollments")

// Fallback reasons recorded on an Assessment.
const (
	ReasonDisabled   = "prediction_disabled"
	ReasonTimeout    = "prediction_timeout"
	ReasonError      = "prediction_error"
	ReasonOutOfRange = "prediction_out_of_range"
)

// Assessment is the outcome of assessing one learner.
type Assessment struct {
	LearnerID       string
	Score           float64
	Level           types.RiskLevel
	Source          types.RiskSource
	FallbackReason  string
	EnrollmentCount int
	AvgProgress     float64
	AssessedAt      time.Time
}

// Snapshot converts the assessment into the snapshot row for day.
func (a Assessment) Snapshot(day time.Time) types.RiskSnapshot {
	return types.RiskSnapshot{
		LearnerID:       a.LearnerID,
		Day:             day,
		RiskScore:       a.Score,
		RiskLevel:       a.Level,
		EnrollmentCount: a.EnrollmentCount,
		AvgProgress:     a.AvgProgress,
		Source:          a.Source,
		ComputedAt:      a.AssessedAt,
	}
}

// Aggregator produces risk assessments, preferring the external predictor and
// falling back to stored enrollment scores.
type Aggregator struct {
	predictor types.Predictor
	timeout   time.Duration
	logger    *slog.Logger
}

// NewAggregator creates an Aggregator. A nil predictor disables the external
// path; a non-positive timeout uses DefaultPredictionTimeout.
func NewAggregator(predictor types.Predictor, timeout time.Duration, logger *slog.Logger) *Aggregator {
	if timeout <= 0 {
		timeout = DefaultPredictionTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{predictor: predictor, timeout: timeout, logger: logger}
}

// Assess computes the learner's risk. Prediction failures never surface as
// errors: they select the fallback score. The only errors are
// ErrNoActiveEnrollments and cancellation of ctx itself.
func (a *Aggregator) Assess(ctx context.Context, learnerID string, enrollments []types.Enrollment, now time.Time) (Assessment, error) {
	active := ActiveEnrollments(enrollments)
	if len(active) == 0 {
		return Assessment{}, ErrNoActiveEnrollments
	}

	var progress float64
	for _, e := range active {
		progress += e.Progress
	}
	result := Assessment{
		LearnerID:       learnerID,
		EnrollmentCount: len(active),
		AvgProgress:     progress / float64(len(active)),
		AssessedAt:      now.UTC(),
	}

	score, reason, err := a.predict(ctx, learnerID)
	if err != nil {
		return Assessment{}, err
	}
	if reason == "" {
		result.Score = score
		result.Source = types.RiskSourceExternal
	} else {
		result.Score = Fallback(active)
		result.Source = types.RiskSourceFallback
		result.FallbackReason = reason
	}
	result.Level = Classify(result.Score)

	return result, nil
}

type prediction struct {
	score float64
	err   error
}

// predict returns the external score, or a non-empty fallback reason. It only
// returns an error when the caller's context is done.
func (a *Aggregator) predict(ctx context.Context, learnerID string) (float64, string, error) {
	if a.predictor == nil {
		return 0, ReasonDisabled, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	// Buffered: a late send after the timeout must not block.
	done := make(chan prediction, 1)
	go func() {
		score, err := a.predictor.Predict(callCtx, learnerID)
		done <- prediction{score: score, err: err}
	}()

	var score float64
	var err error
	select {
	case p := <-done:
		score, err = p.score, p.err
	case <-callCtx.Done():
		err = callCtx.Err()
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, "", fmt.Errorf("assess %s: %w", learnerID, ctxErr)
		}
		reason := ReasonError
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			reason = ReasonTimeout
		}
		a.logger.WarnContext(ctx, "prediction unavailable, using fallback",
			"learner_id", learnerID,
			"fallback_reason", reason,
			"error", err,
		)
		return 0, reason, nil
	}

	if !validScore(score) {
		a.logger.WarnContext(ctx, "prediction out of range, using fallback",
			"learner_id", learnerID,
			"fallback_reason", ReasonOutOfRange,
			"score", score,
		)
		return 0, ReasonOutOfRange, nil
	}

	return score, "", nil
}
