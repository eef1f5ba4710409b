package types

import "time"

// UnlimitedSentinel is the value that marks a plan limit (and a remaining
// balance) as unlimited. It is propagated as-is to callers and to the UI and
// is never converted to a large finite number.
const UnlimitedSentinel = -1

// DefaultTrialValidityDays applies when the Trial plan does not declare its
// own validity window.
const DefaultTrialValidityDays = 3

// TrialPlanName is the catalog name of the plan handed out by trial
// assignment. Its absence from the catalog is a configuration error.
const TrialPlanName = "Trial"

// SubscriptionPlan defines per-feature limits for one subscription tier.
// Plans are seeded at deployment time and treated as immutable while
// referenced by live subscriptions; edits affect future reads only.
type SubscriptionPlan struct {
	ID   string `json:"id"`
	Name string `json:"name"` // unique human key, e.g. "Trial"

	// Per-feature limits for the 30-day window. Negative means unlimited.
	KeywordExtractionLimit int `json:"keyword_extraction_limit"`
	CaseAnalysisLimit      int `json:"case_analysis_limit"`
	SearchLimit            int `json:"search_limit"`
	PetitionLimit          int `json:"petition_limit"`

	// ValidityDays bounds subscriptions created from this plan (trial plans).
	// Nil means open-ended.
	ValidityDays *int `json:"validity_days,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// LimitFor returns the plan limit for the given feature kind.
// Unknown kinds get a zero limit, which denies access (fail closed).
func (p *SubscriptionPlan) LimitFor(feature FeatureKind) int {
	switch feature {
	case FeatureKeywordExtraction:
		return p.KeywordExtractionLimit
	case FeatureCaseAnalysis:
		return p.CaseAnalysisLimit
	case FeatureSearch:
		return p.SearchLimit
	case FeaturePetition:
		return p.PetitionLimit
	default:
		return 0
	}
}

// UserSubscription is one user's entitlement window.
//
// A subscription is active when IsActive is true and EndDate is absent or in
// the future. Uniqueness of the active row per user is not enforced for
// historical rows; reads resolve to the most recently started active row.
// Rows are deactivated, never hard-deleted, to retain history.
type UserSubscription struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"` // opaque identifier from the identity system
	PlanID    string     `json:"plan_id"`
	StartDate time.Time  `json:"start_date"`
	EndDate   *time.Time `json:"end_date,omitempty"` // nil = open-ended
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
}

// ActiveAt reports whether the subscription is active at the given instant.
func (s *UserSubscription) ActiveAt(now time.Time) bool {
	return s.IsActive && (s.EndDate == nil || s.EndDate.After(now))
}

// UsageRecord is the consumption counter for one (subscription, feature)
// pair within the current 30-day window. The engine is its sole writer.
type UsageRecord struct {
	ID             string      `json:"id"`
	UserID         string      `json:"user_id"` // denormalized for query convenience
	SubscriptionID string      `json:"subscription_id"`
	Feature        FeatureKind `json:"feature"`
	UsedCount      int         `json:"used_count"`
	LastUsedAt     *time.Time  `json:"last_used_at,omitempty"`
	ResetDate      time.Time   `json:"reset_date"` // start of the current window
}

// Decision is the outcome of an entitlement evaluation or consumption.
// Remaining uses UnlimitedSentinel for unlimited plans.
type Decision struct {
	State     AccessState `json:"state"`
	HasAccess bool        `json:"has_access"`
	Remaining int         `json:"remaining"`
	Message   string      `json:"message"`
}

// RemainingCredits reports the remaining balance per feature kind for one
// user. Each field is computed independently; UnlimitedSentinel marks
// unlimited features.
type RemainingCredits struct {
	KeywordExtraction int `json:"keyword_extraction"`
	CaseAnalysis      int `json:"case_analysis"`
	Search            int `json:"search"`
	Petition          int `json:"petition"`
}

// Set assigns the remaining value for the given feature kind.
func (r *RemainingCredits) Set(feature FeatureKind, remaining int) {
	switch feature {
	case FeatureKeywordExtraction:
		r.KeywordExtraction = remaining
	case FeatureCaseAnalysis:
		r.CaseAnalysis = remaining
	case FeatureSearch:
		r.Search = remaining
	case FeaturePetition:
		r.Petition = remaining
	}
}

// SubscriptionStatus is the summary returned by CheckSubscriptionStatus.
// RemainingCredits is derived from the CaseAnalysis feature for backward
// compatibility with the original gateway contract.
type SubscriptionStatus struct {
	HasActiveSubscription bool `json:"has_active_subscription"`
	RemainingCredits      int  `json:"remaining_credits"`
}
