// Package plans defines the default subscription plan catalog and its
// deployment-time seeding.
package plans

import (
	"context"
	"log/slog"

	"lexquota/internal/types"
)

func intPtr(v int) *int { return &v }

// Defaults is the authoritative plan catalog shipped with the service.
// Seeding upserts by name, so limit changes here take effect on the next
// deployment without touching live subscription references. A negative limit
// means unlimited.
var Defaults = []types.SubscriptionPlan{
	{
		Name:                   types.TrialPlanName,
		KeywordExtractionLimit: 5,
		CaseAnalysisLimit:      3,
		SearchLimit:            10,
		PetitionLimit:          1,
		ValidityDays:           intPtr(types.DefaultTrialValidityDays),
	},
	{
		Name:                   "Basic",
		KeywordExtractionLimit: 50,
		CaseAnalysisLimit:      20,
		SearchLimit:            100,
		PetitionLimit:          5,
	},
	{
		Name:                   "Professional",
		KeywordExtractionLimit: 200,
		CaseAnalysisLimit:      100,
		SearchLimit:            500,
		PetitionLimit:          25,
	},
	{
		Name:                   "Unlimited",
		KeywordExtractionLimit: types.UnlimitedSentinel,
		CaseAnalysisLimit:      types.UnlimitedSentinel,
		SearchLimit:            types.UnlimitedSentinel,
		PetitionLimit:          types.UnlimitedSentinel,
	},
}

// Seed upserts the default catalog in a single transaction. It runs on every
// API startup; upserting by name makes it idempotent.
//
// Seeding failures abort startup: running without a Trial plan would turn
// every trial assignment into a configuration error.
func Seed(ctx context.Context, runner types.TxRunner, logger *slog.Logger) error {
	return runner.RunTx(ctx, func(ctx context.Context, s types.Stores) error {
		for i := range Defaults {
			stored, err := s.Plans().Upsert(ctx, &Defaults[i])
			if err != nil {
				return err
			}
			logger.Info("seeded subscription plan",
				slog.String("plan_id", stored.ID),
				slog.String("name", stored.Name),
			)
		}
		return nil
	})
}
