// Package main is the entrypoint for the usage worker Lambda function.
//
// The worker consumes fire-and-forget usage events from the usage SQS queue
// and records each consumption through the entitlement engine. It uses
// partial batch responses: only messages that fail on infrastructure errors
// are returned for SQS redelivery.
//
// Outcome handling per message:
//   - Recorded: ACK.
//   - Denied (no subscription, exhausted): log, count as dropped, ACK.
//     The billable work already happened; redelivery cannot change the
//     decision, so retrying would only loop the message.
//   - Malformed body: log, ACK. A parse failure is permanent.
//   - Storage error: NACK so SQS redelivers after the visibility timeout.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"lexquota/internal/config"
	"lexquota/internal/db"
	"lexquota/internal/entitlement"
	"lexquota/internal/telemetry"
	"lexquota/internal/types"
)

// UsageRecorder is the slice of the engine the worker needs.
type UsageRecorder interface {
	ConsumeFeature(ctx context.Context, userID string, feature types.FeatureKind) (*types.Decision, error)
}

// UsageMetrics counts the outcome of each usage event: applied or dropped.
type UsageMetrics interface {
	RecordUsageRecorded(ctx context.Context, feature types.FeatureKind)
	RecordUsageEventDropped(ctx context.Context, feature types.FeatureKind)
}

// Handler holds the dependencies for the usage worker Lambda handler.
type Handler struct {
	recorder UsageRecorder
	metrics  UsageMetrics
	logger   *slog.Logger
}

// Handle processes an SQS event containing one or more usage events. Each
// message is processed independently; failed ones are reported in
// BatchItemFailures so SQS retries only those.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processMessage(ctx, record); err != nil {
			h.logger.Error("failed to process usage event",
				"message_id", record.MessageId,
				"error", err.Error(),
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

// processMessage records one usage event. A returned error requests SQS
// redelivery; nil acknowledges the message.
func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	var msg types.UsageEventMessage
	if err := json.Unmarshal([]byte(record.Body), &msg); err != nil {
		// Permanent parse failure: redelivery cannot fix the body.
		h.logger.Error("failed to unmarshal usage event",
			"message_id", record.MessageId,
			"error", err.Error(),
		)
		return nil
	}

	logger := h.logger.With(
		"event_id", msg.EventID,
		"user_id", msg.UserID,
		"feature", string(msg.Feature),
		"source", string(msg.Source),
		"trace_id", msg.TraceID,
	)

	if !msg.Feature.Valid() {
		logger.Error("usage event carries unknown feature, dropping")
		h.recordDrop(ctx, msg.Feature)
		return nil
	}

	decision, err := h.recorder.ConsumeFeature(ctx, msg.UserID, msg.Feature)
	if err != nil {
		// Infrastructure failure: let SQS redeliver.
		return fmt.Errorf("recording usage: %w", err)
	}

	if !decision.HasAccess {
		// The work was already delivered; the quota is soft. Log the gap
		// and move on rather than looping the message.
		logger.Warn("usage event denied, dropping",
			"state", string(decision.State),
			"message", decision.Message,
		)
		h.recordDrop(ctx, msg.Feature)
		return nil
	}

	logger.Info("usage event recorded", "remaining", decision.Remaining)
	if h.metrics != nil {
		h.metrics.RecordUsageRecorded(ctx, msg.Feature)
	}
	return nil
}

func (h *Handler) recordDrop(ctx context.Context, feature types.FeatureKind) {
	if h.metrics != nil {
		h.metrics.RecordUsageEventDropped(ctx, feature)
	}
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	logger.Info("usage worker initializing")

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	var metrics *telemetry.Collector
	if cfg.Observability.EnableMetrics {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			logger.Error("failed to load AWS configuration", "error", err)
			os.Exit(1)
		}
		cwClient := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		metrics = telemetry.NewCollector(cwClient, cfg.Observability.MetricNamespace, logger)
	}

	// Keep a typed nil *Collector out of the interface fields so the nil
	// checks downstream keep working.
	var decisionMetrics entitlement.DecisionMetrics
	if metrics != nil {
		decisionMetrics = metrics
	}
	engine := entitlement.NewEngine(db.NewRunner(pool), logger, decisionMetrics)

	handler := &Handler{
		recorder: engine,
		logger:   logger,
	}
	if metrics != nil {
		handler.metrics = metrics
	}

	logger.Info("usage worker initialized",
		"usage_queue", cfg.AWS.UsageQueueURL,
		"metric_namespace", cfg.Observability.MetricNamespace,
	)

	lambda.Start(handler.Handle)
}
