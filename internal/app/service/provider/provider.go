package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/framefolio/billing/pkg/types"
)

var (
	// ErrSignatureInvalid rejects the delivery before any processing.
	ErrSignatureInvalid = errors.New("signature invalid")
	// ErrPayloadMalformed rejects a body that cannot be parsed at all.
	ErrPayloadMalformed = errors.New("payload malformed")
	// ErrProviderUnreachable marks a failed callback to the provider's
	// verification API. Retryable: the response should invite redelivery.
	ErrProviderUnreachable = errors.New("provider verification unreachable")
)

// NormalizationError is a hard rejection: the payload parsed but is missing
// metadata the state machine cannot proceed without. Unknown event types are
// NOT normalization errors; they normalize to an unhandled no-op.
type NormalizationError struct {
	Reason string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalization failed: %s", e.Reason)
}

// Provider is one payment provider's webhook capability set: signature
// verification over the exact wire bytes, and normalization into the
// canonical event schema. Selected at the HTTP boundary by route.
type Provider interface {
	ID() types.PaymentProvider
	// VerifySignature must be called with the untouched request body; any
	// re-serialization breaks HMAC schemes.
	VerifySignature(ctx context.Context, rawBody []byte, header http.Header) error
	Normalize(rawBody []byte) (*types.CanonicalEvent, error)
}

// Registry resolves providers by id for the webhook routes.
type Registry struct {
	providers map[types.PaymentProvider]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	m := make(map[types.PaymentProvider]Provider, len(providers))
	for _, p := range providers {
		m[p.ID()] = p
	}
	return &Registry{providers: m}
}

func (r *Registry) Get(id types.PaymentProvider) (Provider, bool) {
	p, ok := r.providers[id]
	return p, ok
}

// mapPaymentStatus folds provider payment status strings into the canonical
// vocabulary.
func mapPaymentStatus(s string) types.CanonicalEventStatus {
	switch strings.ToLower(s) {
	case "succeeded", "successful", "success", "completed", "paid":
		return types.EventStatusCompleted
	case "failed", "declined", "abandoned":
		return types.EventStatusFailed
	case "refunded", "reversed":
		return types.EventStatusRefunded
	}
	return types.EventStatusPending
}

// unhandled builds the no-op event for provider event types this system has
// no mapping for.
func unhandled(p types.PaymentProvider, eventID, providerType string) *types.CanonicalEvent {
	return &types.CanonicalEvent{
		Provider: p,
		EventID:  eventID,
		Type:     types.EventUnhandled,
		Metadata: map[string]string{"provider_event_type": providerType},
	}
}
