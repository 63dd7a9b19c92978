package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/framefolio/billing/pkg/types"
)

const stripeSignatureHeader = "Stripe-Signature"

// stripeSignatureTolerance bounds how old a signed timestamp may be before
// the delivery is treated as a replay outside the signing window.
const stripeSignatureTolerance = 5 * time.Minute

// Stripe verifies `t=...,v1=...` signatures (HMAC-SHA256 over "{t}.{body}")
// and normalizes Stripe event envelopes.
type Stripe struct {
	webhookSecret string
	now           func() time.Time
}

func NewStripe(webhookSecret string) *Stripe {
	return &Stripe{webhookSecret: webhookSecret, now: time.Now}
}

func (s *Stripe) ID() types.PaymentProvider { return types.PaymentProviderStripe }

func (s *Stripe) VerifySignature(_ context.Context, rawBody []byte, header http.Header) error {
	sigHeader := strings.TrimSpace(header.Get(stripeSignatureHeader))
	if sigHeader == "" || s.webhookSecret == "" {
		return ErrSignatureInvalid
	}

	var ts string
	var candidates []string
	for _, part := range strings.Split(sigHeader, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts = kv[1]
		case "v1":
			candidates = append(candidates, kv[1])
		}
	}
	if ts == "" || len(candidates) == 0 {
		return ErrSignatureInvalid
	}

	tsInt, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrSignatureInvalid
	}
	diff := s.now().Unix() - tsInt
	if diff < 0 {
		diff = -diff
	}
	if diff > int64(stripeSignatureTolerance.Seconds()) {
		return ErrSignatureInvalid
	}

	mac := hmac.New(sha256.New, []byte(s.webhookSecret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, candidate := range candidates {
		if hmac.Equal([]byte(expected), []byte(candidate)) {
			return nil
		}
	}
	return ErrSignatureInvalid
}

type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type stripeCheckoutSession struct {
	ID           string            `json:"id"`
	Subscription string            `json:"subscription"`
	AmountTotal  int64             `json:"amount_total"`
	Currency     string            `json:"currency"`
	Metadata     map[string]string `json:"metadata"`
}

type stripeSubscription struct {
	ID                 string            `json:"id"`
	Status             string            `json:"status"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	Metadata           map[string]string `json:"metadata"`
}

type stripeInvoice struct {
	ID            string `json:"id"`
	Subscription  string `json:"subscription"`
	BillingReason string `json:"billing_reason"`
	AmountPaid    int64  `json:"amount_paid"`
	AmountDue     int64  `json:"amount_due"`
	Currency      string `json:"currency"`
	Status        string `json:"status"`
	PeriodStart   int64  `json:"period_start"`
	PeriodEnd     int64  `json:"period_end"`
	Lines         struct {
		Data []struct {
			Period struct {
				Start int64 `json:"start"`
				End   int64 `json:"end"`
			} `json:"period"`
		} `json:"data"`
	} `json:"lines"`
}

type stripePaymentIntent struct {
	ID       string            `json:"id"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
}

type stripeCharge struct {
	ID             string            `json:"id"`
	AmountRefunded int64             `json:"amount_refunded"`
	Currency       string            `json:"currency"`
	PaymentIntent  string            `json:"payment_intent"`
	Metadata       map[string]string `json:"metadata"`
}

func (s *Stripe) Normalize(rawBody []byte) (*types.CanonicalEvent, error) {
	var ev stripeEvent
	if err := json.Unmarshal(rawBody, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadMalformed, err)
	}
	if ev.ID == "" || ev.Type == "" {
		return nil, fmt.Errorf("%w: missing event id or type", ErrPayloadMalformed)
	}

	switch ev.Type {
	case "checkout.session.completed":
		var obj stripeCheckoutSession
		if err := json.Unmarshal(ev.Data.Object, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPayloadMalformed, err)
		}
		meta, err := requireCheckoutMetadata(obj.Metadata)
		if err != nil {
			return nil, err
		}
		reference := obj.Subscription
		if reference == "" {
			reference = obj.ID
		}
		return &types.CanonicalEvent{
			Provider:  types.PaymentProviderStripe,
			EventID:   ev.ID,
			Type:      types.EventSubscriptionActivated,
			Status:    types.EventStatusCompleted,
			Reference: reference,
			Amount:    obj.AmountTotal,
			Currency:  strings.ToUpper(obj.Currency),
			Metadata:  meta,
		}, nil

	case "customer.subscription.updated":
		var obj stripeSubscription
		if err := json.Unmarshal(ev.Data.Object, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPayloadMalformed, err)
		}
		out := &types.CanonicalEvent{
			Provider:          types.PaymentProviderStripe,
			EventID:           ev.ID,
			Type:              types.EventSubscriptionUpdated,
			Status:            types.CanonicalEventStatus(obj.Status),
			Reference:         obj.ID,
			CancelAtPeriodEnd: obj.CancelAtPeriodEnd,
			Metadata:          copyMeta(obj.Metadata),
		}
		if obj.CurrentPeriodStart > 0 {
			t := time.Unix(obj.CurrentPeriodStart, 0).UTC()
			out.PeriodStart = &t
		}
		if obj.CurrentPeriodEnd > 0 {
			t := time.Unix(obj.CurrentPeriodEnd, 0).UTC()
			out.PeriodEnd = &t
		}
		return out, nil

	case "customer.subscription.deleted":
		var obj stripeSubscription
		if err := json.Unmarshal(ev.Data.Object, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPayloadMalformed, err)
		}
		out := &types.CanonicalEvent{
			Provider:          types.PaymentProviderStripe,
			EventID:           ev.ID,
			Type:              types.EventSubscriptionCancelled,
			Status:            types.EventStatusCompleted,
			Reference:         obj.ID,
			CancelAtPeriodEnd: obj.CancelAtPeriodEnd,
			Metadata:          copyMeta(obj.Metadata),
		}
		if obj.CurrentPeriodEnd > 0 {
			t := time.Unix(obj.CurrentPeriodEnd, 0).UTC()
			out.PeriodEnd = &t
		}
		return out, nil

	case "invoice.payment_succeeded":
		var obj stripeInvoice
		if err := json.Unmarshal(ev.Data.Object, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPayloadMalformed, err)
		}
		out := &types.CanonicalEvent{
			Provider:  types.PaymentProviderStripe,
			EventID:   ev.ID,
			Type:      types.EventPaymentCompleted,
			Status:    types.EventStatusCompleted,
			Reference: obj.Subscription,
			Amount:    obj.AmountPaid,
			Currency:  strings.ToUpper(obj.Currency),
			Renewal:   obj.BillingReason == "subscription_cycle",
			Metadata:  map[string]string{},
		}
		if len(obj.Lines.Data) > 0 {
			p := obj.Lines.Data[0].Period
			if p.Start > 0 {
				t := time.Unix(p.Start, 0).UTC()
				out.PeriodStart = &t
			}
			if p.End > 0 {
				t := time.Unix(p.End, 0).UTC()
				out.PeriodEnd = &t
			}
		}
		return out, nil

	case "invoice.payment_failed":
		var obj stripeInvoice
		if err := json.Unmarshal(ev.Data.Object, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPayloadMalformed, err)
		}
		return &types.CanonicalEvent{
			Provider:  types.PaymentProviderStripe,
			EventID:   ev.ID,
			Type:      types.EventSubscriptionPaymentFailed,
			Status:    types.EventStatusFailed,
			Reference: obj.Subscription,
			Amount:    obj.AmountDue,
			Currency:  strings.ToUpper(obj.Currency),
			Metadata:  map[string]string{},
		}, nil

	case "payment_intent.succeeded":
		var obj stripePaymentIntent
		if err := json.Unmarshal(ev.Data.Object, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPayloadMalformed, err)
		}
		return &types.CanonicalEvent{
			Provider:  types.PaymentProviderStripe,
			EventID:   ev.ID,
			Type:      types.EventPaymentCompleted,
			Status:    mapPaymentStatus(obj.Status),
			Reference: obj.ID,
			Amount:    obj.Amount,
			Currency:  strings.ToUpper(obj.Currency),
			Metadata:  copyMeta(obj.Metadata),
		}, nil

	case "payment_intent.payment_failed":
		var obj stripePaymentIntent
		if err := json.Unmarshal(ev.Data.Object, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPayloadMalformed, err)
		}
		return &types.CanonicalEvent{
			Provider:  types.PaymentProviderStripe,
			EventID:   ev.ID,
			Type:      types.EventPaymentFailed,
			Status:    types.EventStatusFailed,
			Reference: obj.ID,
			Amount:    obj.Amount,
			Currency:  strings.ToUpper(obj.Currency),
			Metadata:  copyMeta(obj.Metadata),
		}, nil

	case "charge.refunded":
		var obj stripeCharge
		if err := json.Unmarshal(ev.Data.Object, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPayloadMalformed, err)
		}
		reference := obj.PaymentIntent
		if reference == "" {
			reference = obj.ID
		}
		return &types.CanonicalEvent{
			Provider:  types.PaymentProviderStripe,
			EventID:   ev.ID,
			Type:      types.EventPaymentRefunded,
			Status:    types.EventStatusRefunded,
			Reference: reference,
			Amount:    obj.AmountRefunded,
			Currency:  strings.ToUpper(obj.Currency),
			Metadata:  copyMeta(obj.Metadata),
		}, nil
	}

	return unhandled(types.PaymentProviderStripe, ev.ID, ev.Type), nil
}

// requireCheckoutMetadata enforces the metadata a checkout completion must
// carry before a subscription can be created from it.
func requireCheckoutMetadata(meta map[string]string) (map[string]string, error) {
	if meta[types.MetaUserID] == "" {
		return nil, &NormalizationError{Reason: "checkout completion missing user_id"}
	}
	if meta[types.MetaTier] == "" {
		return nil, &NormalizationError{Reason: "checkout completion missing tier"}
	}
	if meta[types.MetaBillingCycle] == "" {
		return nil, &NormalizationError{Reason: "checkout completion missing billing_cycle"}
	}
	return copyMeta(meta), nil
}

func copyMeta(meta map[string]string) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
