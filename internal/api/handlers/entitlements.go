// Package handlers contains the HTTP handler implementations for the
// entitlement API. Denials (no subscription, exhausted quota) are domain
// outcomes returned as 200 responses with has_access=false or success=false;
// transport errors are reserved for malformed input, authentication, and
// infrastructure failures.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"lexquota/internal/core"
	"lexquota/internal/entitlement"
	"lexquota/internal/types"
)

// EntitlementService is the engine contract the handler depends on. Defined
// locally and injected via the constructor so tests can mock it.
type EntitlementService interface {
	CheckStatus(ctx context.Context, userID string) (*types.SubscriptionStatus, error)
	ValidateAccess(ctx context.Context, userID string, feature types.FeatureKind) (*types.Decision, error)
	ConsumeFeature(ctx context.Context, userID string, feature types.FeatureKind) (*types.Decision, error)
	CheckAndConsume(ctx context.Context, userID string, feature types.FeatureKind) (*types.Decision, error)
	GetRemainingCredits(ctx context.Context, userID string) (*types.RemainingCredits, error)
	AssignTrial(ctx context.Context, userID string) (*entitlement.TrialResult, error)
}

// EntitlementRequest is the request body for the validate, consume, and
// check-and-consume endpoints.
type EntitlementRequest struct {
	UserID  string `json:"user_id" validate:"required"`
	Feature string `json:"feature" validate:"required,feature"`
}

// ValidateResponse is the response body for POST /v1/entitlements/validate.
type ValidateResponse struct {
	HasAccess bool              `json:"has_access"`
	Remaining int               `json:"remaining"`
	State     types.AccessState `json:"state"`
	Message   string            `json:"message"`
}

// ConsumeResponse is the response body for the consume and check-and-consume
// endpoints. Remaining is the balance after a successful consumption.
type ConsumeResponse struct {
	Success   bool              `json:"success"`
	Remaining int               `json:"remaining"`
	State     types.AccessState `json:"state"`
	Message   string            `json:"message"`
}

// TrialResponse is the response body for POST /v1/users/{userID}/trial.
type TrialResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	SubscriptionID string `json:"subscription_id,omitempty"`
	EndDate        string `json:"end_date,omitempty"`
}

// EntitlementHandler serves the entitlement API surface.
type EntitlementHandler struct {
	service   EntitlementService
	validator *core.Validator
	logger    *slog.Logger
}

// NewEntitlementHandler creates an EntitlementHandler.
func NewEntitlementHandler(svc EntitlementService, v *core.Validator, l *slog.Logger) *EntitlementHandler {
	if l == nil {
		l = slog.Default()
	}
	return &EntitlementHandler{
		service:   svc,
		validator: v,
		logger:    l,
	}
}

// RegisterRoutes mounts the entitlement endpoints under the parent router.
func (h *EntitlementHandler) RegisterRoutes(r chi.Router) {
	r.Get("/users/{userID}/subscription", h.GetSubscriptionStatus)
	r.Get("/users/{userID}/credits", h.GetRemainingCredits)
	r.Post("/users/{userID}/trial", h.AssignTrial)

	r.Post("/entitlements/validate", h.ValidateAccess)
	r.Post("/entitlements/consume", h.ConsumeFeature)
	r.Post("/entitlements/check-and-consume", h.CheckAndConsume)
}

// GetSubscriptionStatus handles GET /v1/users/{userID}/subscription.
func (h *EntitlementHandler) GetSubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"user id is required", nil))
		return
	}

	status, err := h.service.CheckStatus(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: status})
}

// ValidateAccess handles POST /v1/entitlements/validate. It is side-effect
// free: callers use it for pre-flight checks and UI gating.
func (h *EntitlementHandler) ValidateAccess(w http.ResponseWriter, r *http.Request) {
	req, feature, ok := h.decodeEntitlementRequest(w, r)
	if !ok {
		return
	}

	decision, err := h.service.ValidateAccess(r.Context(), req.UserID, feature)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: ValidateResponse{
		HasAccess: decision.HasAccess,
		Remaining: decision.Remaining,
		State:     decision.State,
		Message:   decision.Message,
	}})
}

// ConsumeFeature handles POST /v1/entitlements/consume, the fire-and-forget
// consumption endpoint used after a feature has already been delivered.
func (h *EntitlementHandler) ConsumeFeature(w http.ResponseWriter, r *http.Request) {
	h.consume(w, r, h.service.ConsumeFeature)
}

// CheckAndConsume handles POST /v1/entitlements/check-and-consume, the
// awaited variant that validates and consumes in one atomic call.
func (h *EntitlementHandler) CheckAndConsume(w http.ResponseWriter, r *http.Request) {
	h.consume(w, r, h.service.CheckAndConsume)
}

func (h *EntitlementHandler) consume(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, userID string, feature types.FeatureKind) (*types.Decision, error),
) {
	req, feature, ok := h.decodeEntitlementRequest(w, r)
	if !ok {
		return
	}

	decision, err := op(r.Context(), req.UserID, feature)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if !decision.HasAccess {
		h.logger.InfoContext(r.Context(), "consumption denied",
			slog.String("user_id", req.UserID),
			slog.String("feature", string(feature)),
			slog.String("state", string(decision.State)),
			slog.String("caller", string(types.GetCaller(r.Context()))),
		)
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: ConsumeResponse{
		Success:   decision.HasAccess,
		Remaining: decision.Remaining,
		State:     decision.State,
		Message:   decision.Message,
	}})
}

// GetRemainingCredits handles GET /v1/users/{userID}/credits.
func (h *EntitlementHandler) GetRemainingCredits(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"user id is required", nil))
		return
	}

	credits, err := h.service.GetRemainingCredits(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: credits})
}

// AssignTrial handles POST /v1/users/{userID}/trial. Called by the gateway
// during registration; assigning to a user who already holds an active
// subscription returns success=false rather than an error, so registration
// retries stay idempotent.
func (h *EntitlementHandler) AssignTrial(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"user id is required", nil))
		return
	}

	result, err := h.service.AssignTrial(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	resp := TrialResponse{
		Success:        result.Assigned,
		Message:        result.Message,
		SubscriptionID: result.SubscriptionID,
	}
	if result.EndDate != nil {
		resp.EndDate = result.EndDate.Format(time.RFC3339)
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: resp})
}

func (h *EntitlementHandler) decodeEntitlementRequest(w http.ResponseWriter, r *http.Request) (EntitlementRequest, types.FeatureKind, bool) {
	var req EntitlementRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return req, "", false
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return req, "", false
	}

	feature, err := types.ParseFeatureKind(req.Feature)
	if err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidFeature, err.Error(), err))
		return req, "", false
	}

	return req, feature, true
}
