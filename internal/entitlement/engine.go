// Package entitlement implements the entitlement and usage-quota engine: the
// decision logic that determines, for a given user and feature, whether an
// operation is permitted, records consumption, and lazily resets quotas on a
// rolling 30-day window.
//
// Every operation acquires its own scoped transaction through types.TxRunner
// and releases it on every exit path. All quota mutation is serialized at
// the storage layer (a single conditional UPDATE), never via in-process
// locks, because the service runs multiple instances behind a load balancer.
//
// The two-step validate/consume flow used by business services has an
// accepted check-then-act gap: a caller that validated access may lose the
// race to another consumer before its own consumption lands. This is a soft
// quota, and slight overrun of the *validation* promise is tolerated; the
// counter itself can never exceed a finite limit. Callers that can await the
// outcome should use CheckAndConsume, which closes the gap.
package entitlement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"lexquota/internal/types"
)

// Denial and grant messages surfaced to callers and the UI.
const (
	msgAccessGranted  = "access granted"
	msgUsageRecorded  = "usage recorded"
	msgNoSubscription = "no active subscription"
	msgPlanMissing    = "subscription plan is missing"
	msgLimitExhausted = "feature limit exhausted for the current period"
	msgInvalidFeature = "unknown feature kind"
)

// DecisionMetrics records entitlement outcomes for observability.
// Implementations publish to CloudWatch; a nil collector disables recording.
type DecisionMetrics interface {
	RecordDecision(ctx context.Context, feature types.FeatureKind, state types.AccessState)
	RecordTrialAssigned(ctx context.Context)
}

// Engine is the entitlement decision engine. It treats the plan catalog as
// read-only, subscriptions as read-mostly (trial assignment writes), and is
// the sole writer of usage records.
type Engine struct {
	runner  types.TxRunner
	logger  *slog.Logger
	metrics DecisionMetrics
	now     func() time.Time // injected for tests
}

// NewEngine creates an Engine. The metrics collector may be nil.
func NewEngine(runner types.TxRunner, logger *slog.Logger, metrics DecisionMetrics) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		runner:  runner,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// ValidateAccess computes whether the user may use the feature and how much
// balance remains. It never consumes: the only permitted write is the lazy
// reset repair inside the usage store, which restores stale state rather
// than recording a consumption event.
//
// Remaining is types.UnlimitedSentinel for unlimited plans and is propagated
// as-is, never converted to a large finite number.
func (e *Engine) ValidateAccess(ctx context.Context, userID string, feature types.FeatureKind) (*types.Decision, error) {
	if !feature.Valid() {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidFeature, msgInvalidFeature, nil)
	}

	var decision *types.Decision
	err := e.runner.RunTx(ctx, func(ctx context.Context, s types.Stores) error {
		sub, plan, denial, err := e.resolve(ctx, s, userID)
		if err != nil {
			return err
		}
		if denial != nil {
			decision = denial
			return nil
		}

		usage, err := s.Usage().GetOrCreate(ctx, sub, feature)
		if err != nil {
			return err
		}

		decision = evaluate(plan, usage.UsedCount, feature)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.recordDecision(ctx, feature, decision.State)
	return decision, nil
}

// ConsumeFeature records one use of the feature. The returned decision's
// HasAccess field reports success, and Remaining is the balance after the
// increment (UnlimitedSentinel for unlimited plans).
//
// Exhaustion fails without mutating: the increment and the limit check are
// one conditional UPDATE, so concurrent consumers settle the last unit at
// the storage layer and the counter never over-increments.
func (e *Engine) ConsumeFeature(ctx context.Context, userID string, feature types.FeatureKind) (*types.Decision, error) {
	return e.consume(ctx, userID, feature)
}

// CheckAndConsume validates and consumes in one awaited call, closing the
// check-then-act gap of the two-step flow. Semantically it is a consumption:
// the atomic increment already embeds the access check. It exists as a
// separate operation so callers migrating off the fire-and-forget pattern
// have an explicit contract to target.
func (e *Engine) CheckAndConsume(ctx context.Context, userID string, feature types.FeatureKind) (*types.Decision, error) {
	return e.consume(ctx, userID, feature)
}

func (e *Engine) consume(ctx context.Context, userID string, feature types.FeatureKind) (*types.Decision, error) {
	if !feature.Valid() {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidFeature, msgInvalidFeature, nil)
	}

	var decision *types.Decision
	err := e.runner.RunTx(ctx, func(ctx context.Context, s types.Stores) error {
		sub, plan, denial, err := e.resolve(ctx, s, userID)
		if err != nil {
			return err
		}
		if denial != nil {
			decision = denial
			return nil
		}

		// Loads the record (creating it on first touch) and repairs a stale
		// window before the increment sees the count.
		if _, err := s.Usage().GetOrCreate(ctx, sub, feature); err != nil {
			return err
		}

		limit := plan.LimitFor(feature)
		newUsed, ok, err := s.Usage().IncrementWithinLimit(ctx, sub.ID, feature, limit)
		if err != nil {
			return err
		}
		if !ok {
			decision = &types.Decision{
				State:     types.AccessExhausted,
				HasAccess: false,
				Remaining: 0,
				Message:   msgLimitExhausted,
			}
			return nil
		}

		remaining := types.UnlimitedSentinel
		state := types.AccessUnlimited
		if limit >= 0 {
			remaining = max(0, limit-newUsed)
			state = types.AccessWithinLimit
		}
		decision = &types.Decision{
			State:     state,
			HasAccess: true,
			Remaining: remaining,
			Message:   msgUsageRecorded,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.recordDecision(ctx, feature, decision.State)
	return decision, nil
}

// GetRemainingCredits computes the remaining balance for every feature kind.
// Each feature is evaluated independently in its own transaction (there is
// no cross-feature coupling), fanned out concurrently. A user without an
// active subscription or plan gets zeros across the board.
func (e *Engine) GetRemainingCredits(ctx context.Context, userID string) (*types.RemainingCredits, error) {
	credits := &types.RemainingCredits{}
	results := make([]int, len(types.AllFeatureKinds))

	g, gctx := errgroup.WithContext(ctx)
	for i, feature := range types.AllFeatureKinds {
		g.Go(func() error {
			decision, err := e.ValidateAccess(gctx, userID, feature)
			if err != nil {
				return err
			}
			results[i] = decision.Remaining
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, feature := range types.AllFeatureKinds {
		credits.Set(feature, results[i])
	}
	return credits, nil
}

// CheckStatus reports whether the user has an active subscription and the
// remaining CaseAnalysis balance. The single credits number exists for
// backward compatibility with the gateway's original contract.
func (e *Engine) CheckStatus(ctx context.Context, userID string) (*types.SubscriptionStatus, error) {
	status := &types.SubscriptionStatus{}
	err := e.runner.RunTx(ctx, func(ctx context.Context, s types.Stores) error {
		sub, plan, denial, err := e.resolve(ctx, s, userID)
		if err != nil {
			return err
		}
		if denial != nil {
			// No subscription, or a broken plan reference: report inactive
			// with zero credits rather than failing the status probe.
			return nil
		}

		usage, err := s.Usage().GetOrCreate(ctx, sub, types.FeatureCaseAnalysis)
		if err != nil {
			return err
		}

		status.HasActiveSubscription = true
		status.RemainingCredits = evaluate(plan, usage.UsedCount, types.FeatureCaseAnalysis).Remaining
		return nil
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}

// resolve loads the user's active subscription and its plan. A missing
// subscription or plan yields a denial decision (fail closed) instead of an
// error; storage failures propagate as errors.
func (e *Engine) resolve(ctx context.Context, s types.Stores, userID string) (*types.UserSubscription, *types.SubscriptionPlan, *types.Decision, error) {
	sub, err := s.Subscriptions().GetActiveByUser(ctx, userID)
	if err != nil {
		return nil, nil, nil, err
	}
	if sub == nil {
		return nil, nil, &types.Decision{
			State:     types.AccessNoSubscription,
			HasAccess: false,
			Remaining: 0,
			Message:   msgNoSubscription,
		}, nil
	}

	plan, err := s.Plans().GetByID(ctx, sub.PlanID)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundPlan {
			// A subscription pointing at a missing plan is a data problem,
			// distinct from "no subscription". Deny and alert.
			e.logger.ErrorContext(ctx, "subscription references missing plan",
				slog.String("user_id", userID),
				slog.String("subscription_id", sub.ID),
				slog.String("plan_id", sub.PlanID),
			)
			return nil, nil, &types.Decision{
				State:     types.AccessNoPlan,
				HasAccess: false,
				Remaining: 0,
				Message:   msgPlanMissing,
			}, nil
		}
		return nil, nil, nil, err
	}

	return sub, plan, nil, nil
}

// evaluate computes the decision for a loaded plan and usage count without
// touching storage.
func evaluate(plan *types.SubscriptionPlan, used int, feature types.FeatureKind) *types.Decision {
	limit := plan.LimitFor(feature)
	if limit < 0 {
		return &types.Decision{
			State:     types.AccessUnlimited,
			HasAccess: true,
			Remaining: types.UnlimitedSentinel,
			Message:   msgAccessGranted,
		}
	}

	remaining := max(0, limit-used)
	if remaining > 0 {
		return &types.Decision{
			State:     types.AccessWithinLimit,
			HasAccess: true,
			Remaining: remaining,
			Message:   msgAccessGranted,
		}
	}
	return &types.Decision{
		State:     types.AccessExhausted,
		HasAccess: false,
		Remaining: 0,
		Message:   msgLimitExhausted,
	}
}

func (e *Engine) recordDecision(ctx context.Context, feature types.FeatureKind, state types.AccessState) {
	if e.metrics != nil {
		e.metrics.RecordDecision(ctx, feature, state)
	}
}
