package types

import "context"

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	jobRunIDKey  contextKey = "job_run_id"
)

// WithRequestID stores the request ID in the context. Outbound HTTP calls
// forward it as X-Request-Id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithJobRunID tags the context with the identifier of the job run that owns it.
func WithJobRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, jobRunIDKey, id)
}

// GetJobRunID returns the job run identifier, or "" outside a job.
func GetJobRunID(ctx context.Context) string {
	id, _ := ctx.Value(jobRunIDKey).(string)
	return id
}
