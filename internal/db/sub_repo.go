package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"lexquota/internal/types"
)

// SubscriptionRepo provides data access for the user_subscriptions table.
//
// Key invariants:
//   - GetActiveByUser resolves the active predicate
//     (is_active AND (end_date IS NULL OR end_date > now())) and, when data
//     quality leaves more than one matching row, deterministically returns
//     the most recently started one (ties broken by id, descending). Row
//     order is never left to the storage engine.
//   - LockUser takes a transaction-scoped advisory lock so concurrent trial
//     assignments for the same user serialize at the storage layer rather
//     than relying on an application-level check-then-insert.
type SubscriptionRepo struct {
	db DBTX
}

// NewSubscriptionRepo creates a new SubscriptionRepo backed by the given
// database connection (pool or transaction).
func NewSubscriptionRepo(db DBTX) *SubscriptionRepo {
	return &SubscriptionRepo{db: db}
}

const activePredicate = `user_id = $1
	   AND is_active
	   AND (end_date IS NULL OR end_date > now())`

// GetActiveByUser returns the user's active subscription, or nil when none
// exists. Absence is not an error here; the engine maps it to a denial.
func (r *SubscriptionRepo) GetActiveByUser(ctx context.Context, userID string) (*types.UserSubscription, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, user_id, plan_id, start_date, end_date, is_active, created_at
		 FROM user_subscriptions
		 WHERE `+activePredicate+`
		 ORDER BY start_date DESC, id DESC
		 LIMIT 1`,
		userID,
	)

	var s types.UserSubscription
	err := row.Scan(&s.ID, &s.UserID, &s.PlanID, &s.StartDate, &s.EndDate, &s.IsActive, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query active subscription", err)
	}
	return &s, nil
}

// HasActive reports whether the user has any active subscription row.
func (r *SubscriptionRepo) HasActive(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM user_subscriptions
		     WHERE `+activePredicate+`
		 )`,
		userID,
	).Scan(&exists)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check active subscription", err)
	}
	return exists, nil
}

// LockUser takes a transaction-scoped advisory lock keyed on the user id.
// The lock is released automatically at commit or rollback. Two concurrent
// trial assignments for the same user therefore execute their
// check-then-insert sequentially, closing the double-insert race without a
// uniqueness constraint (historical rows may legitimately repeat user_id).
func (r *SubscriptionRepo) LockUser(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to acquire user lock", err)
	}
	return nil
}

// Create inserts a new subscription row. Rows are never hard-deleted; the
// external cancellation flow flips is_active instead.
func (r *SubscriptionRepo) Create(ctx context.Context, sub *types.UserSubscription) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO user_subscriptions
		     (id, user_id, plan_id, start_date, end_date, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		sub.ID,
		sub.UserID,
		sub.PlanID,
		sub.StartDate,
		sub.EndDate,
		sub.IsActive,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert subscription", err)
	}
	return nil
}

var _ types.SubscriptionStore = (*SubscriptionRepo)(nil)
