package entitlement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"lexquota/internal/types"
)

const (
	msgTrialAssigned = "trial subscription assigned"
	msgAlreadyActive = "user already has an active subscription"
)

// TrialResult reports the outcome of a trial assignment. Assigned is false
// when the user already holds an active subscription; that is a normal
// outcome during registration retries, not an error.
type TrialResult struct {
	Assigned       bool       `json:"assigned"`
	Message        string     `json:"message"`
	SubscriptionID string     `json:"subscription_id,omitempty"`
	EndDate        *time.Time `json:"end_date,omitempty"`
}

// AssignTrial grants the user a trial subscription if they have no active
// one. The check and the insert run under a per-user advisory lock inside
// one transaction, so two concurrent registration calls for the same user
// settle to exactly one trial; the loser sees the winner's row and returns
// Assigned=false.
//
// A missing Trial plan in the catalog is a configuration error, logged as an
// operational alert and surfaced as an error rather than a denial.
func (e *Engine) AssignTrial(ctx context.Context, userID string) (*TrialResult, error) {
	var result *TrialResult
	err := e.runner.RunTx(ctx, func(ctx context.Context, s types.Stores) error {
		if err := s.Subscriptions().LockUser(ctx, userID); err != nil {
			return err
		}

		active, err := s.Subscriptions().HasActive(ctx, userID)
		if err != nil {
			return err
		}
		if active {
			result = &TrialResult{Assigned: false, Message: msgAlreadyActive}
			return nil
		}

		plan, err := s.Plans().GetByName(ctx, types.TrialPlanName)
		if err != nil {
			var appErr *types.AppError
			if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundPlan {
				e.logger.ErrorContext(ctx, "trial plan missing from catalog",
					slog.String("plan_name", types.TrialPlanName),
				)
				return types.NewAppError(types.ErrCodeConfigMissingTrialPlan,
					"trial plan is not configured", err)
			}
			return err
		}

		validityDays := types.DefaultTrialValidityDays
		if plan.ValidityDays != nil {
			validityDays = *plan.ValidityDays
		}

		now := e.now().UTC()
		end := now.Add(time.Duration(validityDays) * 24 * time.Hour)
		sub := &types.UserSubscription{
			UserID:    userID,
			PlanID:    plan.ID,
			StartDate: now,
			EndDate:   &end,
			IsActive:  true,
		}
		if err := s.Subscriptions().Create(ctx, sub); err != nil {
			return err
		}

		result = &TrialResult{
			Assigned:       true,
			Message:        msgTrialAssigned,
			SubscriptionID: sub.ID,
			EndDate:        &end,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Assigned {
		e.logger.InfoContext(ctx, "trial subscription assigned",
			slog.String("user_id", userID),
			slog.String("subscription_id", result.SubscriptionID),
			slog.Time("end_date", *result.EndDate),
		)
		if e.metrics != nil {
			e.metrics.RecordTrialAssigned(ctx)
		}
	}
	return result, nil
}
