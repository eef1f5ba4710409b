// Package usageevents is the SQS producer business services use to report
// billable feature usage. The entitlement service's usage worker consumes
// the queue and records each consumption against the user's quota.
//
// Publishing is fire-and-forget from the caller's perspective: a failed send
// under-counts usage, which is accepted for a soft quota, but every failure
// is surfaced as an error so the caller can log it. Silent drops are the one
// unacceptable outcome.
package usageevents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"lexquota/internal/types"
)

// Feature names accepted by the entitlement service.
const (
	FeatureKeywordExtraction = string(types.FeatureKeywordExtraction)
	FeatureCaseAnalysis      = string(types.FeatureCaseAnalysis)
	FeatureSearch            = string(types.FeatureSearch)
	FeaturePetition          = string(types.FeaturePetition)
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Event describes one billable operation performed by a business service.
type Event struct {
	// UserID is the opaque identifier of the user the work was done for.
	UserID string

	// Feature is the billable feature name, one of the Feature constants.
	Feature string

	// Source names the publishing service, e.g. "search-service".
	Source string

	// TraceID is an optional correlation ID carried into the worker's logs.
	TraceID string
}

// Options configures a Publisher.
type Options struct {
	// Client sends to SQS; required.
	Client SQSSender

	// QueueURL of the usage events queue; required.
	QueueURL string

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Publisher serializes usage events and sends them to the usage queue.
type Publisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// New creates a Publisher.
func New(opts Options) (*Publisher, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("usageevents: Client is required")
	}
	if opts.QueueURL == "" {
		return nil, fmt.Errorf("usageevents: QueueURL is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Publisher{
		client:   opts.Client,
		queueURL: opts.QueueURL,
		logger:   logger,
	}, nil
}

// Publish enqueues a usage event. The event ID and timestamp are assigned
// here. Unknown feature names are rejected before the send, so a typo fails
// at the publisher instead of being dropped by the worker.
func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	feature, err := types.ParseFeatureKind(ev.Feature)
	if err != nil {
		return types.NewAppError(types.ErrCodeValidationInvalidFeature, err.Error(), err)
	}

	traceID := ev.TraceID
	if traceID == "" {
		traceID = types.GetRequestID(ctx)
	}

	msg := types.UsageEventMessage{
		EventID:    uuid.New().String(),
		UserID:     ev.UserID,
		Feature:    feature,
		Source:     types.CallerService(ev.Source),
		OccurredAt: time.Now().UTC(),
		TraceID:    traceID,
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("usageevents: marshaling event: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"source": {
				DataType:    aws.String("String"),
				StringValue: aws.String(ev.Source),
			},
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamQueue,
			fmt.Sprintf("failed to send usage event to %s", p.queueURL), err)
	}

	p.logger.InfoContext(ctx, "usage event published",
		"queue_url", p.queueURL,
		"event_id", msg.EventID,
		"user_id", msg.UserID,
		"feature", string(msg.Feature),
		"source", string(msg.Source),
		"trace_id", msg.TraceID,
	)

	return nil
}
