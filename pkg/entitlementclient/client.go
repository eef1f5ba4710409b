// Package entitlementclient is the Go client business services use to talk
// to the entitlement service. All calls are routed through a shared circuit
// breaker with retries and exponential backoff, so a struggling entitlement
// service degrades callers gracefully instead of hanging them.
//
// The package is self-contained: it defines its own wire types and does not
// depend on the service internals.
package entitlementclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
)

// Feature names accepted by the entitlement service.
const (
	FeatureKeywordExtraction = "KeywordExtraction"
	FeatureCaseAnalysis      = "CaseAnalysis"
	FeatureSearch            = "Search"
	FeaturePetition          = "Petition"
)

// Unlimited is the sentinel the service uses for unlimited remaining
// balances.
const Unlimited = -1

// ErrServiceUnavailable is returned when the circuit breaker is open or the
// service stayed unreachable through all retries. Callers decide their own
// fail-open or fail-closed policy on it.
var ErrServiceUnavailable = errors.New("entitlementclient: service unavailable")

// Decision is the outcome of a validate or consume call.
type Decision struct {
	HasAccess bool   `json:"has_access"`
	Success   bool   `json:"success"`
	Remaining int    `json:"remaining"`
	State     string `json:"state"`
	Message   string `json:"message"`
}

// Granted reports whether the call allowed the operation, regardless of
// which endpoint produced the decision.
func (d *Decision) Granted() bool {
	return d.HasAccess || d.Success
}

// SubscriptionStatus is the response of CheckSubscriptionStatus.
type SubscriptionStatus struct {
	HasActiveSubscription bool `json:"has_active_subscription"`
	RemainingCredits      int  `json:"remaining_credits"`
}

// RemainingCredits is the per-feature balance of one user.
type RemainingCredits struct {
	KeywordExtraction int `json:"keyword_extraction"`
	CaseAnalysis      int `json:"case_analysis"`
	Search            int `json:"search"`
	Petition          int `json:"petition"`
}

// TrialResult is the response of AssignTrial.
type TrialResult struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	SubscriptionID string `json:"subscription_id"`
	EndDate        string `json:"end_date"`
}

// Options configures a Client.
type Options struct {
	// BaseURL of the entitlement service, e.g. "http://subscription-service:8080".
	BaseURL string

	// ServiceToken is the shared secret sent as X-Service-Token.
	ServiceToken string

	// ServiceName identifies the caller, sent as X-Service-Name.
	ServiceName string

	// HTTPClient defaults to one with a 5 second timeout.
	HTTPClient *http.Client

	// MaxRetries for 5xx responses and network errors. Defaults to 2.
	MaxRetries int

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Client calls the entitlement service HTTP API.
type Client struct {
	baseURL      string
	serviceToken string
	serviceName  string
	httpClient   *http.Client
	breaker      *gobreaker.CircuitBreaker[*http.Response]
	maxRetries   int
	logger       *slog.Logger
	sleepFn      func(time.Duration)
}

// New creates a Client.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("entitlementclient: BaseURL is required")
	}
	if opts.ServiceToken == "" {
		return nil, fmt.Errorf("entitlementclient: ServiceToken is required")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	maxRetries := opts.MaxRetries
	if maxRetries == 0 {
		maxRetries = 2
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "entitlement-service",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	return &Client{
		baseURL:      opts.BaseURL,
		serviceToken: opts.ServiceToken,
		serviceName:  opts.ServiceName,
		httpClient:   httpClient,
		breaker:      breaker,
		maxRetries:   maxRetries,
		logger:       logger,
		sleepFn:      time.Sleep,
	}, nil
}

type entitlementRequest struct {
	UserID  string `json:"user_id"`
	Feature string `json:"feature"`
}

// CheckSubscriptionStatus returns whether the user has an active
// subscription and their remaining CaseAnalysis credits.
func (c *Client) CheckSubscriptionStatus(ctx context.Context, userID string) (*SubscriptionStatus, error) {
	var out SubscriptionStatus
	err := c.call(ctx, http.MethodGet, "/v1/users/"+userID+"/subscription", nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidateAccess checks whether the user may use the feature without
// consuming any quota.
func (c *Client) ValidateAccess(ctx context.Context, userID, feature string) (*Decision, error) {
	var out Decision
	err := c.call(ctx, http.MethodPost, "/v1/entitlements/validate",
		entitlementRequest{UserID: userID, Feature: feature}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ConsumeFeature records one use of the feature and returns the remaining
// balance. For the fire-and-forget pattern, see ConsumeAsync.
func (c *Client) ConsumeFeature(ctx context.Context, userID, feature string) (*Decision, error) {
	var out Decision
	err := c.call(ctx, http.MethodPost, "/v1/entitlements/consume",
		entitlementRequest{UserID: userID, Feature: feature}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckAndConsume validates and consumes in one atomic call. Prefer this
// over a ValidateAccess/ConsumeFeature pair when the caller can await the
// outcome before doing the billable work.
func (c *Client) CheckAndConsume(ctx context.Context, userID, feature string) (*Decision, error) {
	var out Decision
	err := c.call(ctx, http.MethodPost, "/v1/entitlements/check-and-consume",
		entitlementRequest{UserID: userID, Feature: feature}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetRemainingCredits returns the user's remaining balance for every
// feature.
func (c *Client) GetRemainingCredits(ctx context.Context, userID string) (*RemainingCredits, error) {
	var out RemainingCredits
	err := c.call(ctx, http.MethodGet, "/v1/users/"+userID+"/credits", nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AssignTrial grants the user a trial subscription. Success=false means the
// user already has an active subscription; that is a normal outcome, not an
// error.
func (c *Client) AssignTrial(ctx context.Context, userID string) (*TrialResult, error) {
	var out TrialResult
	err := c.call(ctx, http.MethodPost, "/v1/users/"+userID+"/trial", nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ConsumeAsync records usage on a background goroutine after the feature has
// been delivered, so the caller's latency is unaffected. Failures are logged
// and dropped; a lost recording under-counts a soft quota, which is the
// accepted trade of the fire-and-forget pattern. Never use this where the
// outcome must gate the operation.
func (c *Client) ConsumeAsync(userID, feature string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		decision, err := c.ConsumeFeature(ctx, userID, feature)
		if err != nil {
			c.logger.Error("async usage recording failed",
				"user_id", userID,
				"feature", feature,
				"error", err.Error(),
			)
			return
		}
		if !decision.Granted() {
			c.logger.Warn("async usage recording denied",
				"user_id", userID,
				"feature", feature,
				"state", decision.State,
			)
		}
	}()
}

type responseEnvelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// APIError is a structured error returned by the entitlement service.
type APIError struct {
	Code       string
	Message    string
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("entitlementclient: %s (%s, http %d)", e.Message, e.Code, e.StatusCode)
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var bodyBytes []byte
	if in != nil {
		var err error
		bodyBytes, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("entitlementclient: marshaling request: %w", err)
		}
	}

	resp, err := c.doWithRetry(ctx, method, path, bodyBytes)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("entitlementclient: reading response: %w", err)
	}

	var envelope responseEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("entitlementclient: decoding response: %w", err)
	}

	if envelope.Error != nil {
		return &APIError{
			Code:       envelope.Error.Code,
			Message:    envelope.Error.Message,
			StatusCode: resp.StatusCode,
		}
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("entitlementclient: decoding response data: %w", err)
		}
	}
	return nil
}

func (c *Client) doWithRetry(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var lastErr error

	// One key per logical call, shared by all retry attempts. A retry after an
	// ambiguous failure (the server committed, then the response was lost) can
	// double-record a consumption; the key names the duplicate on the wire so
	// the server can dedupe without a client change. Until it does, the
	// failure mode is an over-count, never a lost grant.
	idempotencyKey := uuid.NewString()

	maxAttempts := 1 + c.maxRetries
	for attempt := 0; attempt < maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("entitlementclient: building request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Service-Token", c.serviceToken)
		req.Header.Set("X-Idempotency-Key", idempotencyKey)
		if c.serviceName != "" {
			req.Header.Set("X-Service-Name", c.serviceName)
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			r, doErr := c.httpClient.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			// 5xx trips the breaker; 4xx is a caller problem, not an outage.
			if r.StatusCode >= 500 {
				return r, fmt.Errorf("upstream returned %d", r.StatusCode)
			}
			return r, nil
		})
		if err == nil {
			return resp, nil
		}

		lastErr = err
		if resp != nil {
			resp.Body.Close()
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: circuit breaker open: %w", ErrServiceUnavailable, err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if attempt < maxAttempts-1 {
			c.sleepFn(backoff(attempt))
		}
	}

	return nil, fmt.Errorf("%w: %w", ErrServiceUnavailable, lastErr)
}

// backoff computes an exponential wait with full jitter, clamped to 5s.
func backoff(attempt int) time.Duration {
	base := float64(200*time.Millisecond) * math.Pow(2, float64(attempt))
	if maxWait := float64(5 * time.Second); base > maxWait {
		base = maxWait
	}
	return time.Duration(rand.Float64() * base)
}
