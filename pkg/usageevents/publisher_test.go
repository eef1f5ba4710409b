package usageevents

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"lexquota/internal/types"
)

const testQueueURL = "https://sqs.us-east-1.amazonaws.com/123/usage-events"

type mockSQSSender struct {
	mock.Mock
}

func (m *mockSQSSender) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*sqs.SendMessageOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func newTestPublisher(t *testing.T, sender SQSSender) *Publisher {
	t.Helper()
	p, err := New(Options{
		Client:   sender,
		QueueURL: testQueueURL,
		Logger:   slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)
	return p
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{QueueURL: testQueueURL})
	assert.Error(t, err)

	_, err = New(Options{Client: new(mockSQSSender)})
	assert.Error(t, err)
}

func TestPublishSendsUsageEvent(t *testing.T) {
	sender := new(mockSQSSender)
	publisher := newTestPublisher(t, sender)

	var sent types.UsageEventMessage
	sender.On("SendMessage", mock.Anything, mock.MatchedBy(func(input *sqs.SendMessageInput) bool {
		if input.QueueUrl == nil || *input.QueueUrl != testQueueURL {
			return false
		}
		return json.Unmarshal([]byte(*input.MessageBody), &sent) == nil
	})).Return(&sqs.SendMessageOutput{}, nil)

	err := publisher.Publish(context.Background(), Event{
		UserID:  "user-1",
		Feature: FeatureCaseAnalysis,
		Source:  string(types.CallerAI),
		TraceID: "trace-42",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, sent.EventID)
	assert.Equal(t, "user-1", sent.UserID)
	assert.Equal(t, types.FeatureCaseAnalysis, sent.Feature)
	assert.Equal(t, types.CallerAI, sent.Source)
	assert.Equal(t, "trace-42", sent.TraceID)
	assert.False(t, sent.OccurredAt.IsZero())
}

func TestPublishFallsBackToRequestIDTrace(t *testing.T) {
	sender := new(mockSQSSender)
	publisher := newTestPublisher(t, sender)

	var sent types.UsageEventMessage
	sender.On("SendMessage", mock.Anything, mock.MatchedBy(func(input *sqs.SendMessageInput) bool {
		return json.Unmarshal([]byte(*input.MessageBody), &sent) == nil
	})).Return(&sqs.SendMessageOutput{}, nil)

	ctx := types.WithRequestID(context.Background(), "req-42")
	err := publisher.Publish(ctx, Event{
		UserID:  "user-1",
		Feature: FeatureSearch,
		Source:  string(types.CallerSearch),
	})
	require.NoError(t, err)
	assert.Equal(t, "req-42", sent.TraceID)
}

func TestPublishSetsSourceAttribute(t *testing.T) {
	sender := new(mockSQSSender)
	publisher := newTestPublisher(t, sender)

	sender.On("SendMessage", mock.Anything, mock.MatchedBy(func(input *sqs.SendMessageInput) bool {
		attr, ok := input.MessageAttributes["source"]
		return ok && attr.StringValue != nil && *attr.StringValue == string(types.CallerSearch)
	})).Return(&sqs.SendMessageOutput{}, nil)

	err := publisher.Publish(context.Background(), Event{
		UserID:  "user-1",
		Feature: FeatureSearch,
		Source:  string(types.CallerSearch),
	})
	require.NoError(t, err)
	sender.AssertExpectations(t)
}

func TestPublishRejectsUnknownFeature(t *testing.T) {
	sender := new(mockSQSSender)
	publisher := newTestPublisher(t, sender)

	err := publisher.Publish(context.Background(), Event{
		UserID:  "user-1",
		Feature: "Divination",
		Source:  string(types.CallerGateway),
	})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeValidationInvalidFeature, appErr.Code)
	sender.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
}

func TestPublishSurfacesSendFailure(t *testing.T) {
	sender := new(mockSQSSender)
	publisher := newTestPublisher(t, sender)

	sender.On("SendMessage", mock.Anything, mock.Anything).
		Return(nil, errors.New("connection reset"))

	err := publisher.Publish(context.Background(), Event{
		UserID:  "user-1",
		Feature: FeatureSearch,
		Source:  string(types.CallerGateway),
	})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeUpstreamQueue, appErr.Code)
}
