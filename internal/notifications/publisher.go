package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"learnpulse/internal/types"
)

// Publisher hands a persisted notification to the delivery layer.
type Publisher interface {
	Publish(ctx context.Context, n *types.Notification) error
}

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// DeliveryMessage is the queue payload consumed by the delivery workers.
type DeliveryMessage struct {
	NotificationID string                     `json:"notification_id"`
	LearnerID      string                     `json:"learner_id"`
	Category       types.NotificationCategory `json:"category"`
	RiskLevel      types.RiskLevel            `json:"risk_level"`
	Priority       types.NotificationPriority `json:"priority"`
	Channels       []types.ChannelType        `json:"channels"`
	Title          string                     `json:"title"`
	Message        string                     `json:"message"`
	OriginLinkID   *string                    `json:"origin_link_id,omitempty"`
	CreatedAt      time.Time                  `json:"created_at"`
	JobRunID       string                     `json:"job_run_id,omitempty"`
}

// SQSPublisher publishes DeliveryMessages to the notification queue.
type SQSPublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewSQSPublisher creates a publisher targeting queueURL.
func NewSQSPublisher(client SQSSender, queueURL string, logger *slog.Logger) *SQSPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQSPublisher{client: client, queueURL: queueURL, logger: logger}
}

// Publish serializes n and sends it to the queue. The category is also set as
// a message attribute so consumers can filter without decoding the body.
func (p *SQSPublisher) Publish(ctx context.Context, n *types.Notification) error {
	msg := DeliveryMessage{
		NotificationID: n.ID,
		LearnerID:      n.LearnerID,
		Category:       n.Category,
		RiskLevel:      n.RiskLevel,
		Priority:       n.Priority,
		Channels:       n.Channels,
		Title:          n.Title,
		Message:        n.Message,
		OriginLinkID:   n.OriginLinkID,
		CreatedAt:      n.CreatedAt,
		JobRunID:       types.GetJobRunID(ctx),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("notification publisher: failed to marshal message: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"category": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(n.Category)),
			},
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamQueue,
			fmt.Sprintf("failed to send notification %s to queue", n.ID), err)
	}

	p.logger.DebugContext(ctx, "notification published",
		"notification_id", n.ID,
		"learner_id", n.LearnerID,
		"category", string(n.Category),
	)
	return nil
}

// NopPublisher discards notifications. Used when no delivery queue is
// configured; the rows are still persisted for the in-app inbox.
type NopPublisher struct{}

// Publish does nothing.
func (NopPublisher) Publish(context.Context, *types.Notification) error { return nil }
