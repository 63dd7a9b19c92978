package types

import "time"

// CanonicalEventType is the provider-agnostic vocabulary every webhook payload
// is normalized into before it reaches the subscription state machine.
type CanonicalEventType string

const (
	EventPaymentCompleted          CanonicalEventType = "payment.completed"
	EventPaymentFailed             CanonicalEventType = "payment.failed"
	EventPaymentRefunded           CanonicalEventType = "payment.refunded"
	EventSubscriptionActivated     CanonicalEventType = "subscription.activated"
	EventSubscriptionUpdated       CanonicalEventType = "subscription.updated"
	EventSubscriptionCancelled     CanonicalEventType = "subscription.cancelled"
	EventSubscriptionPaymentFailed CanonicalEventType = "subscription.payment_failed"
	// EventUnhandled marks provider event types this system has no mapping
	// for. Providers add event types over time, so these are accepted as
	// no-ops rather than rejected.
	EventUnhandled CanonicalEventType = "unhandled"
)

type CanonicalEventStatus string

const (
	EventStatusCompleted CanonicalEventStatus = "completed"
	EventStatusFailed    CanonicalEventStatus = "failed"
	EventStatusPending   CanonicalEventStatus = "pending"
	EventStatusRefunded  CanonicalEventStatus = "refunded"
)

// Metadata keys required by the state machine.
const (
	MetaUserID       = "user_id"
	MetaTier         = "tier"
	MetaBillingCycle = "billing_cycle"
)

// CanonicalEvent is the normalized form of a single webhook notification.
// It is transient: the ledger records its outcome, never the event itself.
type CanonicalEvent struct {
	Provider PaymentProvider `json:"provider"`
	// EventID is the provider's own event identifier, or a derived stable
	// key for providers that do not ship one.
	EventID string               `json:"event_id"`
	Type    CanonicalEventType   `json:"type"`
	Status  CanonicalEventStatus `json:"status"`
	// Reference is the transaction or external subscription identifier the
	// event is about.
	Reference string `json:"reference"`
	// Amount in the smallest currency unit (cents, kobo, ...).
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	// PeriodStart/PeriodEnd carry the provider-reported billing period when
	// present; the provider is the source of truth for period boundaries.
	PeriodStart *time.Time `json:"period_start,omitempty"`
	PeriodEnd   *time.Time `json:"period_end,omitempty"`
	// CancelAtPeriodEnd distinguishes a grace-period cancellation from an
	// immediate one when the event type is subscription.cancelled/updated.
	CancelAtPeriodEnd bool `json:"cancel_at_period_end,omitempty"`
	// Renewal marks a payment.completed that renews an existing subscription
	// rather than settling the initial checkout.
	Renewal  bool              `json:"renewal,omitempty"`
	Metadata map[string]string `json:"metadata"`
}

// UserID returns the user identifier carried in metadata, if any.
func (e *CanonicalEvent) UserID() string {
	if e == nil || e.Metadata == nil {
		return ""
	}
	return e.Metadata[MetaUserID]
}

// Handled reports whether the event maps to a known canonical type.
func (e *CanonicalEvent) Handled() bool {
	return e != nil && e.Type != EventUnhandled
}
