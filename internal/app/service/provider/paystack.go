package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/framefolio/billing/pkg/types"
)

const paystackSignatureHeader = "x-paystack-signature"

// Paystack verifies HMAC-SHA256 signatures over the raw body and normalizes
// Paystack event payloads. Paystack ships no event id, so a stable key is
// derived from the event type and the transaction reference.
type Paystack struct {
	webhookSecret string
}

func NewPaystack(webhookSecret string) *Paystack {
	return &Paystack{webhookSecret: webhookSecret}
}

func (p *Paystack) ID() types.PaymentProvider { return types.PaymentProviderPaystack }

func (p *Paystack) VerifySignature(_ context.Context, rawBody []byte, header http.Header) error {
	signature := strings.TrimSpace(header.Get(paystackSignatureHeader))
	if signature == "" || p.webhookSecret == "" {
		return ErrSignatureInvalid
	}

	mac := hmac.New(sha256.New, []byte(p.webhookSecret))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrSignatureInvalid
	}
	return nil
}

type paystackEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference        string          `json:"reference"`
		SubscriptionCode string          `json:"subscription_code"`
		Status           string          `json:"status"`
		Amount           int64           `json:"amount"`
		Currency         string          `json:"currency"`
		PaidAt           string          `json:"paid_at"`
		NextPaymentDate  string          `json:"next_payment_date"`
		Metadata         json.RawMessage `json:"metadata"`
		Plan             struct {
			PlanCode string `json:"plan_code"`
			Interval string `json:"interval"`
		} `json:"plan"`
		Transaction struct {
			Reference string `json:"reference"`
		} `json:"transaction"`
	} `json:"data"`
}

func (p *Paystack) Normalize(rawBody []byte) (*types.CanonicalEvent, error) {
	var ev paystackEvent
	if err := json.Unmarshal(rawBody, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadMalformed, err)
	}
	if ev.Event == "" {
		return nil, fmt.Errorf("%w: missing event field", ErrPayloadMalformed)
	}

	reference := ev.Data.Reference
	if reference == "" {
		reference = ev.Data.SubscriptionCode
	}
	eventID := fmt.Sprintf("%s:%s", ev.Event, reference)
	meta := paystackMetadata(ev.Data.Metadata)

	switch ev.Event {
	case "charge.success":
		return &types.CanonicalEvent{
			Provider:  types.PaymentProviderPaystack,
			EventID:   eventID,
			Type:      types.EventPaymentCompleted,
			Status:    mapPaymentStatus(ev.Data.Status),
			Reference: reference,
			Amount:    ev.Data.Amount,
			Currency:  strings.ToUpper(ev.Data.Currency),
			Metadata:  meta,
		}, nil

	case "subscription.create":
		if ev.Data.SubscriptionCode == "" {
			return nil, &NormalizationError{Reason: "subscription.create missing subscription_code"}
		}
		if meta[types.MetaUserID] == "" || meta[types.MetaTier] == "" {
			return nil, &NormalizationError{Reason: "subscription.create missing user_id or tier metadata"}
		}
		if meta[types.MetaBillingCycle] == "" {
			meta[types.MetaBillingCycle] = paystackCycle(ev.Data.Plan.Interval)
		}
		out := &types.CanonicalEvent{
			Provider:  types.PaymentProviderPaystack,
			EventID:   fmt.Sprintf("%s:%s", ev.Event, ev.Data.SubscriptionCode),
			Type:      types.EventSubscriptionActivated,
			Status:    types.EventStatusCompleted,
			Reference: ev.Data.SubscriptionCode,
			Amount:    ev.Data.Amount,
			Currency:  strings.ToUpper(ev.Data.Currency),
			Metadata:  meta,
		}
		if t := paystackTime(ev.Data.NextPaymentDate); t != nil {
			out.PeriodEnd = t
		}
		return out, nil

	case "subscription.disable":
		return &types.CanonicalEvent{
			Provider:  types.PaymentProviderPaystack,
			EventID:   fmt.Sprintf("%s:%s", ev.Event, ev.Data.SubscriptionCode),
			Type:      types.EventSubscriptionCancelled,
			Status:    types.EventStatusCompleted,
			Reference: ev.Data.SubscriptionCode,
			Metadata:  meta,
		}, nil

	case "subscription.not_renew":
		// The subscriber turned off renewal; access runs to period end.
		out := &types.CanonicalEvent{
			Provider:          types.PaymentProviderPaystack,
			EventID:           fmt.Sprintf("%s:%s", ev.Event, ev.Data.SubscriptionCode),
			Type:              types.EventSubscriptionCancelled,
			Status:            types.EventStatusCompleted,
			Reference:         ev.Data.SubscriptionCode,
			CancelAtPeriodEnd: true,
			Metadata:          meta,
		}
		if t := paystackTime(ev.Data.NextPaymentDate); t != nil {
			out.PeriodEnd = t
		}
		return out, nil

	case "invoice.payment_failed":
		ref := ev.Data.SubscriptionCode
		if ref == "" {
			ref = reference
		}
		return &types.CanonicalEvent{
			Provider:  types.PaymentProviderPaystack,
			EventID:   fmt.Sprintf("%s:%s", ev.Event, ref),
			Type:      types.EventSubscriptionPaymentFailed,
			Status:    types.EventStatusFailed,
			Reference: ref,
			Amount:    ev.Data.Amount,
			Currency:  strings.ToUpper(ev.Data.Currency),
			Metadata:  meta,
		}, nil

	case "refund.processed":
		ref := ev.Data.Transaction.Reference
		if ref == "" {
			ref = reference
		}
		return &types.CanonicalEvent{
			Provider:  types.PaymentProviderPaystack,
			EventID:   fmt.Sprintf("%s:%s", ev.Event, ref),
			Type:      types.EventPaymentRefunded,
			Status:    types.EventStatusRefunded,
			Reference: ref,
			Amount:    ev.Data.Amount,
			Currency:  strings.ToUpper(ev.Data.Currency),
			Metadata:  meta,
		}, nil
	}

	return unhandled(types.PaymentProviderPaystack, eventID, ev.Event), nil
}

// paystackMetadata tolerates the two shapes Paystack sends: a JSON object, or
// an empty string when no metadata was attached at charge time.
func paystackMetadata(raw json.RawMessage) map[string]string {
	out := map[string]string{}
	if len(raw) == 0 {
		return out
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return out
	}
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

func paystackCycle(interval string) string {
	switch strings.ToLower(interval) {
	case "annually", "yearly", "biannually":
		return string(types.BillingCycleAnnual)
	}
	return string(types.BillingCycleMonthly)
}

func paystackTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
