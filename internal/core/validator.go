package core

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"lexquota/internal/types"
)

// Validator wraps go-playground/validator with the domain-specific rules of
// this service.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a Validator and registers custom tags.
//
// Custom tags:
//   - feature: the value must parse as a known FeatureKind.
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Registration only fails on an empty tag name.
	_ = v.RegisterValidation("feature", func(fl validator.FieldLevel) bool {
		_, err := types.ParseFeatureKind(fl.Field().String())
		return err == nil
	})

	return &Validator{
		validate: v,
		logger:   logger,
	}
}

// ValidateStruct validates the request payload against its struct tags and
// translates the first violation into a client-facing AppError.
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		// A non-struct payload is a programming error, not client input.
		v.logger.Error("validator invoked with invalid payload type", "error", err)
		return types.NewAppError(types.ErrCodeInternalUnexpected, "invalid validation target", err)
	}

	var violations validator.ValidationErrors
	if !errors.As(err, &violations) || len(violations) == 0 {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation failed", err)
	}

	return violationToAppError(violations[0])
}

func violationToAppError(fe validator.FieldError) *types.AppError {
	field := strings.ToLower(fe.Field())

	switch fe.Tag() {
	case "required":
		return types.NewAppErrorWithDetails(
			types.ErrCodeValidationMissingField,
			fmt.Sprintf("field %q is required", field),
			nil,
			map[string]any{"field": field},
		)
	case "feature":
		return types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidFeature,
			fmt.Sprintf("field %q must be a known feature kind", field),
			nil,
			map[string]any{"field": field, "allowed": types.AllFeatureKinds},
		)
	default:
		return types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidJSON,
			fmt.Sprintf("field %q failed validation rule %q", field, fe.Tag()),
			nil,
			map[string]any{"field": field, "rule": fe.Tag()},
		)
	}
}
