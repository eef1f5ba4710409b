package types

import "context"

// PlanStore provides read access to the plan catalog plus the upsert used by
// deployment-time seeding. Plans are read-only from the engine's perspective.
type PlanStore interface {
	// GetByID returns the plan with the given surrogate id.
	// Returns an AppError with ErrCodeNotFoundPlan when absent.
	GetByID(ctx context.Context, planID string) (*SubscriptionPlan, error)

	// GetByName returns the plan with the given unique name.
	// Returns an AppError with ErrCodeNotFoundPlan when absent.
	GetByName(ctx context.Context, name string) (*SubscriptionPlan, error)

	// Upsert inserts the plan or updates its limits, keyed by name.
	// The returned plan carries the persisted surrogate id.
	Upsert(ctx context.Context, plan *SubscriptionPlan) (*SubscriptionPlan, error)
}

// SubscriptionStore provides access to per-user subscription rows.
// Only trial assignment (and the external upgrade flow) writes here.
type SubscriptionStore interface {
	// GetActiveByUser returns the user's active subscription, or nil when
	// none exists. When data-quality hazards leave more than one active row,
	// the most recently started one wins (ties broken by id, descending).
	GetActiveByUser(ctx context.Context, userID string) (*UserSubscription, error)

	// HasActive reports whether the user has any active subscription row.
	HasActive(ctx context.Context, userID string) (bool, error)

	// LockUser serializes concurrent subscription writes for one user within
	// the current transaction (advisory lock, released at commit/rollback).
	LockUser(ctx context.Context, userID string) error

	// Create inserts a new subscription row.
	Create(ctx context.Context, sub *UserSubscription) error
}

// UsageStore provides access to the per-(subscription, feature) consumption
// counters. The entitlement engine is the sole writer.
type UsageStore interface {
	// GetOrCreate returns the usage record for the pair, creating it with a
	// zero count and a fresh window on first access, and applying the lazy
	// single-shot 30-day reset before returning.
	GetOrCreate(ctx context.Context, sub *UserSubscription, feature FeatureKind) (*UsageRecord, error)

	// IncrementWithinLimit atomically increments used_count by one if the
	// plan limit permits (limit < 0 means unlimited). It returns the new
	// count and ok=false without mutating when the limit is exhausted.
	IncrementWithinLimit(ctx context.Context, subscriptionID string, feature FeatureKind, limit int) (newUsed int, ok bool, err error)
}

// Stores bundles the repositories bound to one transaction scope.
type Stores interface {
	Plans() PlanStore
	Subscriptions() SubscriptionStore
	Usage() UsageStore
}

// TxRunner runs a function against a set of Stores bound to a single
// database transaction. The transaction commits when fn returns nil and
// rolls back on error or panic, so every engine call gets its own scoped
// transaction released on every exit path.
type TxRunner interface {
	RunTx(ctx context.Context, fn func(ctx context.Context, s Stores) error) error
}
