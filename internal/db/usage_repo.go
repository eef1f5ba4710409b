package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"lexquota/internal/types"
)

// UsageRepo provides data access for the usage_records table, one row per
// (subscription, feature) pair. The entitlement engine is the sole writer.
//
// Concurrency model: all mutation of a given pair is serialized at the
// storage layer. IncrementWithinLimit is a single conditional UPDATE, so two
// racing consumers can never push used_count past a finite limit, and no
// in-process lock is involved (the service runs multiple instances behind a
// load balancer).
type UsageRepo struct {
	db DBTX
}

// NewUsageRepo creates a new UsageRepo backed by the given database
// connection (pool or transaction).
func NewUsageRepo(db DBTX) *UsageRepo {
	return &UsageRepo{db: db}
}

// GetOrCreate returns the usage record for the (subscription, feature) pair,
// creating it lazily with a zero count and reset_date = now() on first
// access, then applying the lazy reset rule before returning.
//
// The reset is deliberately single-shot: if several 30-day periods elapsed
// unobserved, the window restarts once at now() rather than replaying each
// missed period. A feature untouched for months shows one fresh window on
// the next read. Reads inside the current window leave the row untouched.
func (r *UsageRepo) GetOrCreate(ctx context.Context, sub *types.UserSubscription, feature types.FeatureKind) (*types.UsageRecord, error) {
	_, err := r.db.Exec(ctx,
		`INSERT INTO usage_records (id, user_id, subscription_id, feature)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (subscription_id, feature) DO NOTHING`,
		uuid.New().String(),
		sub.UserID,
		sub.ID,
		feature,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to create usage record", err)
	}

	// Lazy single-shot reset: fires at most once per read, only when the
	// window has fully elapsed. Guarded in SQL so concurrent readers cannot
	// double-reset within the same instant's evaluation.
	_, err = r.db.Exec(ctx,
		`UPDATE usage_records
		 SET used_count = 0,
		     reset_date = now()
		 WHERE subscription_id = $1
		   AND feature = $2
		   AND now() - reset_date >= interval '30 days'`,
		sub.ID,
		feature,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to apply usage reset", err)
	}

	row := r.db.QueryRow(ctx,
		`SELECT id, user_id, subscription_id, feature, used_count, last_used_at, reset_date
		 FROM usage_records
		 WHERE subscription_id = $1 AND feature = $2`,
		sub.ID,
		feature,
	)

	var u types.UsageRecord
	err = row.Scan(&u.ID, &u.UserID, &u.SubscriptionID, &u.Feature, &u.UsedCount, &u.LastUsedAt, &u.ResetDate)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load usage record", err)
	}
	return &u, nil
}

// IncrementWithinLimit atomically increments used_count by one if the plan
// limit permits. The check and the increment happen in one UPDATE, so the
// counter can never exceed a finite limit no matter how many consumers race.
//
// A negative limit means unlimited and always increments. On exhaustion the
// row is untouched and ok is false.
func (r *UsageRepo) IncrementWithinLimit(ctx context.Context, subscriptionID string, feature types.FeatureKind, limit int) (int, bool, error) {
	var newUsed int
	err := r.db.QueryRow(ctx,
		`UPDATE usage_records
		 SET used_count = used_count + 1,
		     last_used_at = now()
		 WHERE subscription_id = $1
		   AND feature = $2
		   AND ($3 < 0 OR used_count < $3)
		 RETURNING used_count`,
		subscriptionID,
		feature,
		limit,
	).Scan(&newUsed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Limit exhausted (or the row vanished, which the engine treats
			// the same way: no consumption happened).
			return 0, false, nil
		}
		return 0, false, types.NewAppError(types.ErrCodeInternalDB, "failed to increment usage", err)
	}
	return newUsed, true, nil
}

var _ types.UsageStore = (*UsageRepo)(nil)
