package core

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lexquota/internal/types"
)

type validatedRequest struct {
	UserID  string `json:"user_id" validate:"required"`
	Feature string `json:"feature" validate:"required,feature"`
}

func newTestValidator() *Validator {
	return NewValidator(slog.New(slog.DiscardHandler))
}

func TestValidateStructAcceptsValidRequest(t *testing.T) {
	v := newTestValidator()
	err := v.ValidateStruct(validatedRequest{UserID: "user-1", Feature: "Search"})
	require.NoError(t, err)
}

func TestValidateStructRejectsMissingUserID(t *testing.T) {
	v := newTestValidator()
	err := v.ValidateStruct(validatedRequest{Feature: "Search"})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeValidationMissingField, appErr.Code)
	assert.Equal(t, "userid", appErr.Details["field"])
}

func TestValidateStructRejectsUnknownFeature(t *testing.T) {
	v := newTestValidator()
	err := v.ValidateStruct(validatedRequest{UserID: "user-1", Feature: "Clairvoyance"})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeValidationInvalidFeature, appErr.Code)
	assert.Contains(t, appErr.Details, "allowed")
}

func TestValidateStructAcceptsEveryKnownFeature(t *testing.T) {
	v := newTestValidator()
	for _, feature := range types.AllFeatureKinds {
		err := v.ValidateStruct(validatedRequest{UserID: "user-1", Feature: string(feature)})
		assert.NoError(t, err, "feature %s", feature)
	}
}

func TestValidateStructRejectsNonStructTarget(t *testing.T) {
	v := newTestValidator()
	err := v.ValidateStruct("not a struct")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalUnexpected, appErr.Code)
}
