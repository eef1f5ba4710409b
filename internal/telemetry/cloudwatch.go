// Package telemetry publishes service metrics to AWS CloudWatch.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"lexquota/internal/types"
)

// CloudWatchClient abstracts the PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Collector emits API and entitlement metrics to CloudWatch. Metric
// publication is best-effort: failures are logged and never propagate into
// the request path.
//
// Metrics emitted:
//   - APILatency (ms), APIRequestCount: Dims {Endpoint, Status, Caller}
//   - AccessGranted / AccessDenied / QuotaExhausted: Dims {Feature, State}
//   - UsageRecorded / UsageEventDropped: Dims {Feature}
//   - TrialAssigned: no dims
type Collector struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCollector creates a Collector publishing to the given namespace.
func NewCollector(client CloudWatchClient, namespace string, logger *slog.Logger) *Collector {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	return &Collector{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordRequest emits latency and count metrics for one API request. The
// caller dimension comes from the identity the auth middleware resolved, so
// per-service traffic and error rates can be separated in dashboards.
func (c *Collector) RecordRequest(ctx context.Context, method, endpoint, status string, duration time.Duration) {
	dims := []cwtypes.Dimension{
		{Name: aws.String(types.DimEndpoint), Value: aws.String(method + " " + endpoint)},
		{Name: aws.String(types.DimStatus), Value: aws.String(status)},
		{Name: aws.String(types.DimCaller), Value: aws.String(string(types.GetCaller(ctx)))},
	}

	c.put(ctx, []cwtypes.MetricDatum{
		{
			MetricName: aws.String(types.MetricAPILatency),
			Value:      aws.Float64(float64(duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: dims,
		},
		{
			MetricName: aws.String(types.MetricAPIRequestCount),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dims,
		},
	})
}

// RecordDecision emits an entitlement outcome metric for the feature.
// Exhaustion gets its own metric so quota pressure can be alarmed on
// separately from other denials.
func (c *Collector) RecordDecision(ctx context.Context, feature types.FeatureKind, state types.AccessState) {
	var name string
	switch state {
	case types.AccessUnlimited, types.AccessWithinLimit:
		name = types.MetricAccessGranted
	case types.AccessExhausted:
		name = types.MetricQuotaExhausted
	default:
		name = types.MetricAccessDenied
	}

	c.put(ctx, []cwtypes.MetricDatum{
		{
			MetricName: aws.String(name),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{
				{Name: aws.String(types.DimFeature), Value: aws.String(string(feature))},
				{Name: aws.String(types.DimState), Value: aws.String(string(state))},
			},
		},
	})
}

// RecordTrialAssigned emits a counter for successful trial assignments.
func (c *Collector) RecordTrialAssigned(ctx context.Context) {
	c.put(ctx, []cwtypes.MetricDatum{
		{
			MetricName: aws.String(types.MetricTrialAssigned),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
		},
	})
}

// RecordUsageRecorded emits a counter for usage events the worker applied.
// Paired with UsageEventDropped it gives the recorded/dropped ratio of the
// fire-and-forget pipeline.
func (c *Collector) RecordUsageRecorded(ctx context.Context, feature types.FeatureKind) {
	c.put(ctx, []cwtypes.MetricDatum{
		{
			MetricName: aws.String(types.MetricUsageRecorded),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{
				{Name: aws.String(types.DimFeature), Value: aws.String(string(feature))},
			},
		},
	})
}

// RecordUsageEventDropped emits a counter for usage events the worker could
// not record. This is the alarm signal for silent under-counting.
func (c *Collector) RecordUsageEventDropped(ctx context.Context, feature types.FeatureKind) {
	c.put(ctx, []cwtypes.MetricDatum{
		{
			MetricName: aws.String(types.MetricUsageEventDropped),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{
				{Name: aws.String(types.DimFeature), Value: aws.String(string(feature))},
			},
		},
	})
}

func (c *Collector) put(ctx context.Context, data []cwtypes.MetricDatum) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(c.namespace),
		MetricData: data,
	}

	if _, err := c.client.PutMetricData(ctx, input); err != nil {
		c.logger.Error("failed to publish metrics", "error", err.Error())
	}
}
