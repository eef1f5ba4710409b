package plans

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"lexquota/internal/types"
)

type mockPlanStore struct {
	mock.Mock
}

func (m *mockPlanStore) GetByID(ctx context.Context, planID string) (*types.SubscriptionPlan, error) {
	args := m.Called(ctx, planID)
	if p := args.Get(0); p != nil {
		return p.(*types.SubscriptionPlan), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPlanStore) GetByName(ctx context.Context, name string) (*types.SubscriptionPlan, error) {
	args := m.Called(ctx, name)
	if p := args.Get(0); p != nil {
		return p.(*types.SubscriptionPlan), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPlanStore) Upsert(ctx context.Context, plan *types.SubscriptionPlan) (*types.SubscriptionPlan, error) {
	args := m.Called(ctx, plan)
	if p := args.Get(0); p != nil {
		return p.(*types.SubscriptionPlan), args.Error(1)
	}
	return nil, args.Error(1)
}

type stubStores struct {
	plans types.PlanStore
}

func (s stubStores) Plans() types.PlanStore                 { return s.plans }
func (s stubStores) Subscriptions() types.SubscriptionStore { return nil }
func (s stubStores) Usage() types.UsageStore                { return nil }

type stubRunner struct {
	stores types.Stores
}

func (r stubRunner) RunTx(ctx context.Context, fn func(ctx context.Context, s types.Stores) error) error {
	return fn(ctx, r.stores)
}

func TestSeedUpsertsEveryDefaultPlan(t *testing.T) {
	store := new(mockPlanStore)
	runner := stubRunner{stores: stubStores{plans: store}}

	var seeded []string
	store.On("Upsert", mock.Anything, mock.MatchedBy(func(plan *types.SubscriptionPlan) bool {
		seeded = append(seeded, plan.Name)
		return true
	})).Return(&types.SubscriptionPlan{ID: "stored-id", Name: "stored"}, nil)

	err := Seed(context.Background(), runner, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	assert.Equal(t, []string{"Trial", "Basic", "Professional", "Unlimited"}, seeded)
}

func TestSeedStopsOnFirstFailure(t *testing.T) {
	store := new(mockPlanStore)
	runner := stubRunner{stores: stubStores{plans: store}}

	store.On("Upsert", mock.Anything, mock.Anything).
		Return(nil, errors.New("relation does not exist")).Once()

	err := Seed(context.Background(), runner, slog.New(slog.DiscardHandler))
	require.Error(t, err)
	store.AssertNumberOfCalls(t, "Upsert", 1)
}

func TestDefaultsCatalogShape(t *testing.T) {
	byName := make(map[string]types.SubscriptionPlan, len(Defaults))
	for _, plan := range Defaults {
		byName[plan.Name] = plan
	}

	trial, ok := byName[types.TrialPlanName]
	require.True(t, ok, "catalog must ship a Trial plan")
	require.NotNil(t, trial.ValidityDays)
	assert.Equal(t, types.DefaultTrialValidityDays, *trial.ValidityDays)

	unlimited, ok := byName["Unlimited"]
	require.True(t, ok)
	for _, feature := range types.AllFeatureKinds {
		assert.Equal(t, types.UnlimitedSentinel, unlimited.LimitFor(feature), "feature %s", feature)
	}

	// Paid tiers are open-ended; only the trial carries a validity window.
	for name, plan := range byName {
		if name == types.TrialPlanName {
			continue
		}
		assert.Nil(t, plan.ValidityDays, "plan %s", name)
	}
}
