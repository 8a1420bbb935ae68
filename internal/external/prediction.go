package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"learnpulse/internal/types"
)

// maxPredictionBody caps how much of a prediction response is read.
const maxPredictionBody = 1 << 20

// PredictionClientConfig holds the configuration for a PredictionClient.
type PredictionClientConfig struct {
	BaseURL    string
	APIKey     string
	MaxRetries int
	Logger     *slog.Logger
}

type predictRequest struct {
	LearnerID string `json:"learner_id"`
}

// PredictResponse is the prediction service's answer. Only RiskScore is used
// by the engine; the rest is logged at debug level.
type PredictResponse struct {
	LearnerID          string   `json:"learner_id"`
	RiskScore          *float64 `json:"risk_score"`
	RiskLevel          string   `json:"risk_level"`
	InterventionNeeded bool     `json:"intervention_needed"`
	Confidence         string   `json:"confidence"`
	ModelType          string   `json:"model_type"`
}

// HealthStatus is the prediction service's /health answer.
type HealthStatus struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

// PredictionClient implements types.Predictor against the prediction
// service's HTTP API through BaseClient.
type PredictionClient struct {
	base    *BaseClient
	baseURL string
	apiKey  string
	logger  *slog.Logger
}

var _ types.Predictor = (*PredictionClient)(nil)

// NewPredictionClient creates a PredictionClient. The httpClient timeout
// should not exceed the configured prediction timeout.
func NewPredictionClient(httpClient *http.Client, cfg PredictionClientConfig) *PredictionClient {
	policy := DefaultRetryPolicy()
	policy.MaxRetries = cfg.MaxRetries

	base := NewBaseClient(
		httpClient,
		DefaultBreakerSettings("prediction"),
		policy,
		"LearnPulse-Engine/1.0",
	)
	return NewPredictionClientWithBase(base, cfg)
}

// NewPredictionClientWithBase creates a PredictionClient with a
// pre-configured BaseClient.
func NewPredictionClientWithBase(base *BaseClient, cfg PredictionClientConfig) *PredictionClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PredictionClient{
		base:    base,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		logger:  logger,
	}
}

// Predict POSTs {"learner_id": ...} to /predict and returns risk_score.
// Range validation is left to the caller.
func (c *PredictionClient) Predict(ctx context.Context, learnerID string) (float64, error) {
	body, err := json.Marshal(predictRequest{LearnerID: learnerID})
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to serialize prediction request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build prediction request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.base.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxPredictionBody))
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeUpstreamPrediction, "failed to read prediction response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return 0, types.NewAppError(
			types.ErrCodeUpstreamPrediction,
			fmt.Sprintf("prediction service returned %d", resp.StatusCode),
			nil,
		).WithDetails(map[string]any{"learner_id": learnerID, "body": truncate(string(raw), 256)})
	}

	var out PredictResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return 0, types.NewAppError(types.ErrCodeUpstreamPrediction, "malformed prediction response", err)
	}
	if out.RiskScore == nil {
		return 0, types.NewAppError(types.ErrCodeUpstreamPrediction, "prediction response missing risk_score", nil)
	}

	c.logger.DebugContext(ctx, "prediction received",
		"learner_id", learnerID,
		"risk_score", *out.RiskScore,
		"risk_level", out.RiskLevel,
		"model_type", out.ModelType,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return *out.RiskScore, nil
}

// Health calls GET /health.
func (c *PredictionClient) Health(ctx context.Context) (HealthStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return HealthStatus{}, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build health request", err)
	}

	resp, err := c.base.Do(req)
	if err != nil {
		return HealthStatus{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return HealthStatus{}, types.NewAppError(
			types.ErrCodeUpstreamPrediction,
			fmt.Sprintf("prediction health returned %d", resp.StatusCode),
			nil,
		)
	}

	var status HealthStatus
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxPredictionBody)).Decode(&status); err != nil {
		return HealthStatus{}, types.NewAppError(types.ErrCodeUpstreamPrediction, "malformed health response", err)
	}
	return status, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
