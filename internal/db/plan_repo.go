package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"lexquota/internal/types"
)

// PlanRepo provides data access for the subscription_plans table.
//
// The catalog is read-mostly: Upsert exists only for deployment-time seeding.
// Plans referenced by live subscriptions are never deleted; limit edits take
// effect on future reads only.
type PlanRepo struct {
	db DBTX
}

// NewPlanRepo creates a new PlanRepo backed by the given database connection
// (pool or transaction).
func NewPlanRepo(db DBTX) *PlanRepo {
	return &PlanRepo{db: db}
}

const planColumns = `id, name, keyword_extraction_limit, case_analysis_limit,
       search_limit, petition_limit, validity_days, created_at`

// GetByID returns the plan with the given surrogate id.
func (r *PlanRepo) GetByID(ctx context.Context, planID string) (*types.SubscriptionPlan, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+planColumns+`
		 FROM subscription_plans
		 WHERE id = $1`,
		planID,
	)
	return scanPlan(row)
}

// GetByName returns the plan with the given unique name.
func (r *PlanRepo) GetByName(ctx context.Context, name string) (*types.SubscriptionPlan, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+planColumns+`
		 FROM subscription_plans
		 WHERE name = $1`,
		name,
	)
	return scanPlan(row)
}

// Upsert inserts the plan or updates its limits, keyed by the unique name.
// The stored surrogate id is preserved on conflict so live subscription
// references stay intact.
func (r *PlanRepo) Upsert(ctx context.Context, plan *types.SubscriptionPlan) (*types.SubscriptionPlan, error) {
	id := plan.ID
	if id == "" {
		id = uuid.New().String()
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO subscription_plans
		     (id, name, keyword_extraction_limit, case_analysis_limit,
		      search_limit, petition_limit, validity_days)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (name) DO UPDATE
		 SET keyword_extraction_limit = EXCLUDED.keyword_extraction_limit,
		     case_analysis_limit      = EXCLUDED.case_analysis_limit,
		     search_limit             = EXCLUDED.search_limit,
		     petition_limit           = EXCLUDED.petition_limit,
		     validity_days            = EXCLUDED.validity_days
		 RETURNING `+planColumns,
		id,
		plan.Name,
		plan.KeywordExtractionLimit,
		plan.CaseAnalysisLimit,
		plan.SearchLimit,
		plan.PetitionLimit,
		plan.ValidityDays,
	)

	stored, err := scanPlan(row)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundPlan {
			// RETURNING never yields zero rows on a successful upsert.
			return nil, types.NewAppError(types.ErrCodeInternalDB, "plan upsert returned no row", nil)
		}
		return nil, err
	}
	return stored, nil
}

// scanPlan scans a single plan row, mapping pgx.ErrNoRows to a NotFound
// AppError and other failures to InternalDB.
func scanPlan(row pgx.Row) (*types.SubscriptionPlan, error) {
	var p types.SubscriptionPlan
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.KeywordExtractionLimit,
		&p.CaseAnalysisLimit,
		&p.SearchLimit,
		&p.PetitionLimit,
		&p.ValidityDays,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundPlan, "subscription plan not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan subscription plan", err)
	}
	return &p, nil
}

var _ types.PlanStore = (*PlanRepo)(nil)
