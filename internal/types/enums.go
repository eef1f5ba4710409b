package types

import "fmt"

// FeatureKind identifies a billable operation on the platform.
// It is a closed enumeration: the set of billable features changes only with
// a deployment, never at runtime. Keeping it typed (rather than a free-form
// string) removes the typo class of bugs between services.
type FeatureKind string

const (
	FeatureKeywordExtraction FeatureKind = "KeywordExtraction"
	FeatureCaseAnalysis      FeatureKind = "CaseAnalysis"
	FeatureSearch            FeatureKind = "Search"
	FeaturePetition          FeatureKind = "Petition"
)

// AllFeatureKinds lists every feature kind in a stable order. Used by
// GetRemainingCredits and by the catalog seeder.
var AllFeatureKinds = []FeatureKind{
	FeatureKeywordExtraction,
	FeatureCaseAnalysis,
	FeatureSearch,
	FeaturePetition,
}

// ParseFeatureKind converts a wire string into a FeatureKind.
// Unknown values are rejected; there is no default feature.
func ParseFeatureKind(s string) (FeatureKind, error) {
	switch FeatureKind(s) {
	case FeatureKeywordExtraction, FeatureCaseAnalysis, FeatureSearch, FeaturePetition:
		return FeatureKind(s), nil
	default:
		return "", fmt.Errorf("unknown feature kind %q", s)
	}
}

// Valid reports whether the FeatureKind is a member of the closed set.
func (f FeatureKind) Valid() bool {
	_, err := ParseFeatureKind(string(f))
	return err == nil
}

// AccessState is the derived entitlement state of a (user, feature) pair at
// evaluation time. It is never stored; the engine computes it on every call.
type AccessState string

const (
	// AccessNoSubscription means the user has no active subscription row.
	AccessNoSubscription AccessState = "no_subscription"
	// AccessNoPlan means a subscription exists but its plan lookup failed.
	// This is a data/configuration problem, distinct from AccessNoSubscription.
	AccessNoPlan AccessState = "no_plan"
	// AccessUnlimited means the plan limit for the feature is negative.
	AccessUnlimited AccessState = "unlimited"
	// AccessWithinLimit means used < limit.
	AccessWithinLimit AccessState = "within_limit"
	// AccessExhausted means used >= limit.
	AccessExhausted AccessState = "exhausted"
)
