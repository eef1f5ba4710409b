package types

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFeatureKind(t *testing.T) {
	for _, feature := range AllFeatureKinds {
		parsed, err := ParseFeatureKind(string(feature))
		require.NoError(t, err)
		assert.Equal(t, feature, parsed)
	}

	_, err := ParseFeatureKind("Divination")
	require.Error(t, err)

	_, err = ParseFeatureKind("")
	require.Error(t, err)

	// The enum is case sensitive; wire values must match exactly.
	_, err = ParseFeatureKind("search")
	require.Error(t, err)
}

func TestFeatureKindValid(t *testing.T) {
	assert.True(t, FeatureSearch.Valid())
	assert.False(t, FeatureKind("Divination").Valid())
	assert.False(t, FeatureKind("").Valid())
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		code   ErrorCode
		status int
	}{
		{ErrCodeValidationInvalidFeature, http.StatusBadRequest},
		{ErrCodeValidationMissingField, http.StatusBadRequest},
		{ErrCodeValidationInvalidJSON, http.StatusBadRequest},
		{ErrCodeAuthTokenMissing, http.StatusUnauthorized},
		{ErrCodeAuthTokenInvalid, http.StatusUnauthorized},
		{ErrCodeNotFoundPlan, http.StatusNotFound},
		{ErrCodeUpstreamQueue, http.StatusBadGateway},
		{ErrCodeConfigMissingTrialPlan, http.StatusInternalServerError},
		{ErrCodeInternalDB, http.StatusInternalServerError},
		{ErrorCode("something_new"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.status, tc.code.HTTPStatus(), "code %s", tc.code)
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	inner := errors.New("connection refused")
	appErr := NewAppError(ErrCodeInternalDB, "query failed", inner)

	assert.ErrorIs(t, appErr, inner)
	assert.Equal(t, "internal_database_error: query failed", appErr.Error())
}

func TestAppErrorWithDetailsDoesNotMutate(t *testing.T) {
	base := NewAppErrorWithDetails(ErrCodeValidationMissingField, "missing field", nil,
		map[string]any{"field": "user_id"})

	enriched := base.WithDetails(map[string]any{"request_id": "req-1"})

	assert.Len(t, base.Details, 1)
	assert.Len(t, enriched.Details, 2)
	assert.Equal(t, "user_id", enriched.Details["field"])
}

func TestLimitFor(t *testing.T) {
	plan := &SubscriptionPlan{
		KeywordExtractionLimit: 50,
		CaseAnalysisLimit:      20,
		SearchLimit:            UnlimitedSentinel,
		PetitionLimit:          5,
	}

	assert.Equal(t, 50, plan.LimitFor(FeatureKeywordExtraction))
	assert.Equal(t, 20, plan.LimitFor(FeatureCaseAnalysis))
	assert.Equal(t, UnlimitedSentinel, plan.LimitFor(FeatureSearch))
	assert.Equal(t, 5, plan.LimitFor(FeaturePetition))

	// Unknown kinds fall back to a zero limit, which denies.
	assert.Equal(t, 0, plan.LimitFor(FeatureKind("Divination")))
}

func TestActiveAt(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	openEnded := &UserSubscription{IsActive: true}
	assert.True(t, openEnded.ActiveAt(now))

	bounded := &UserSubscription{IsActive: true, EndDate: &future}
	assert.True(t, bounded.ActiveAt(now))

	expired := &UserSubscription{IsActive: true, EndDate: &past}
	assert.False(t, expired.ActiveAt(now))

	deactivated := &UserSubscription{IsActive: false, EndDate: &future}
	assert.False(t, deactivated.ActiveAt(now))

	// An end date equal to now is already expired, not active.
	boundary := &UserSubscription{IsActive: true, EndDate: &now}
	assert.False(t, boundary.ActiveAt(now))
}

func TestRemainingCreditsSet(t *testing.T) {
	var credits RemainingCredits
	credits.Set(FeatureKeywordExtraction, 40)
	credits.Set(FeatureCaseAnalysis, 0)
	credits.Set(FeatureSearch, 70)
	credits.Set(FeaturePetition, UnlimitedSentinel)

	assert.Equal(t, 40, credits.KeywordExtraction)
	assert.Equal(t, 0, credits.CaseAnalysis)
	assert.Equal(t, 70, credits.Search)
	assert.Equal(t, UnlimitedSentinel, credits.Petition)
}
