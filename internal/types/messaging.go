package types

import "time"

// UsageEventMessage is the SQS payload business services publish after
// performing a billable operation. The usage worker consumes it and records
// the consumption through the entitlement engine.
//
// This is the fire-and-forget half of the integration contract: the caller
// does not await the recording, so a lost or failed event under-counts usage.
// That is accepted for a soft quota, but failures MUST be logged, never
// swallowed.
type UsageEventMessage struct {
	// Core Identity
	EventID string      `json:"event_id"` // unique per event, used for log correlation
	UserID  string      `json:"user_id"`
	Feature FeatureKind `json:"feature"`

	// Source of the event (which business service performed the work).
	Source CallerService `json:"source"`

	// OccurredAt is when the billable work completed, not when the message
	// was delivered.
	OccurredAt time.Time `json:"occurred_at"`

	// Observability
	TraceID string `json:"trace_id"`
}
