package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learnpulse/internal/types"
)

type mockSQSSender struct {
	calls     []*sqs.SendMessageInput
	returnErr error
}

func (m *mockSQSSender) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.calls = append(m.calls, params)
	if m.returnErr != nil {
		return nil, m.returnErr
	}
	return &sqs.SendMessageOutput{}, nil
}

const testQueueURL = "https://sqs.us-east-1.amazonaws.com/123/notifications"

func TestSQSPublisher_Publish(t *testing.T) {
	sender := &mockSQSSender{}
	pub := NewSQSPublisher(sender, testQueueURL, nil)

	original := unread(types.RiskHigh, 3)
	original.Title = "Heads up"
	n := Reminder(original, t0)
	ctx := types.WithJobRunID(context.Background(), "run-42")

	require.NoError(t, pub.Publish(ctx, n))
	require.Len(t, sender.calls, 1)

	call := sender.calls[0]
	assert.Equal(t, testQueueURL, *call.QueueUrl)
	assert.Equal(t, "risk-reminder", *call.MessageAttributes["category"].StringValue)

	var msg DeliveryMessage
	require.NoError(t, json.Unmarshal([]byte(*call.MessageBody), &msg))
	assert.Equal(t, n.ID, msg.NotificationID)
	assert.Equal(t, "learner-1", msg.LearnerID)
	assert.Equal(t, "Reminder: Heads up", msg.Title)
	assert.Equal(t, "run-42", msg.JobRunID)
	require.NotNil(t, msg.OriginLinkID)
	assert.Equal(t, original.ID, *msg.OriginLinkID)
}

func TestSQSPublisher_SendFailure(t *testing.T) {
	sender := &mockSQSSender{returnErr: errors.New("throttled")}
	pub := NewSQSPublisher(sender, testQueueURL, nil)

	err := pub.Publish(context.Background(), unread(types.RiskHigh, 3))

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamQueue, appErr.Code)
	assert.ErrorIs(t, err, sender.returnErr)
}

func TestNopPublisher(t *testing.T) {
	assert.NoError(t, NopPublisher{}.Publish(context.Background(), unread(types.RiskLow, 0)))
}
