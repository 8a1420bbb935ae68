package scheduler

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"learnpulse/internal/types"
)

// JobMetrics records the outcome of job runs.
type JobMetrics interface {
	RecordRun(ctx context.Context, report RunReport)
}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchJobMetrics emits one PutMetricData call per run.
//
// Metrics emitted, all with the Task dimension:
//   - JobRun: Dims {Task, Result}, value 1
//   - JobDuration: milliseconds
//   - JobItemsProcessed / JobItemErrors: counts from the run summary
//   - PredictionFallback: snapshot runs only
type CloudWatchJobMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

var _ JobMetrics = (*CloudWatchJobMetrics)(nil)

// NewCloudWatchJobMetrics creates a CloudWatchJobMetrics. An empty namespace
// uses types.MetricNamespace.
func NewCloudWatchJobMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchJobMetrics {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchJobMetrics{client: client, namespace: namespace, logger: logger}
}

// RecordRun publishes the metrics for report. Failures are logged only.
func (m *CloudWatchJobMetrics) RecordRun(ctx context.Context, report RunReport) {
	task := cwtypes.Dimension{Name: aws.String(types.DimTask), Value: aws.String(string(report.Task))}

	data := []cwtypes.MetricDatum{
		{
			MetricName: aws.String(types.MetricJobRun),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{
				task,
				{Name: aws.String(types.DimResult), Value: aws.String(report.Status)},
			},
		},
		{
			MetricName: aws.String(types.MetricJobDuration),
			Value:      aws.Float64(float64(report.Duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: []cwtypes.Dimension{task},
		},
		{
			MetricName: aws.String(types.MetricJobItemsProcessed),
			Value:      aws.Float64(float64(report.Summary.Processed)),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{task},
		},
		{
			MetricName: aws.String(types.MetricJobItemErrors),
			Value:      aws.Float64(float64(report.Summary.Errors)),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{task},
		},
	}
	if report.Task == TaskDailyRiskSnapshot {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricPredictionFallback),
			Value:      aws.Float64(float64(report.Fallbacks)),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{task},
		})
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to record job metrics",
			"task", string(report.Task),
			"status", report.Status,
			"error", err,
		)
	}
}

// nopMetrics discards metrics.
type nopMetrics struct{}

func (nopMetrics) RecordRun(context.Context, RunReport) {}
