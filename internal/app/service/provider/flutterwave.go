package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/framefolio/billing/internal/app/service/currency"
	"github.com/framefolio/billing/pkg/types"
)

const flutterwaveSignatureHeader = "flutterwave-signature"

// Flutterwave verifies HMAC-SHA256 signatures over the raw body. Test-mode
// deliveries may carry a verif_hash field inside the body instead of a
// signature header; that weaker check is honored only when explicitly enabled.
type Flutterwave struct {
	secretHash            string
	allowBodyHashFallback bool
}

func NewFlutterwave(secretHash string, allowBodyHashFallback bool) *Flutterwave {
	return &Flutterwave{secretHash: secretHash, allowBodyHashFallback: allowBodyHashFallback}
}

func (f *Flutterwave) ID() types.PaymentProvider { return types.PaymentProviderFlutterwave }

func (f *Flutterwave) VerifySignature(_ context.Context, rawBody []byte, header http.Header) error {
	if f.secretHash == "" {
		return ErrSignatureInvalid
	}

	signature := strings.TrimSpace(header.Get(flutterwaveSignatureHeader))
	if signature != "" {
		mac := hmac.New(sha256.New, []byte(f.secretHash))
		mac.Write(rawBody)
		expected := hex.EncodeToString(mac.Sum(nil))
		if !hmac.Equal([]byte(expected), []byte(signature)) {
			return ErrSignatureInvalid
		}
		return nil
	}

	if !f.allowBodyHashFallback {
		return ErrSignatureInvalid
	}

	// Test-mode fallback: the shared secret travels inside the body.
	var probe struct {
		VerifHash string `json:"verif_hash"`
	}
	if err := json.Unmarshal(rawBody, &probe); err != nil || probe.VerifHash == "" {
		return ErrSignatureInvalid
	}
	if subtle.ConstantTimeCompare([]byte(probe.VerifHash), []byte(f.secretHash)) != 1 {
		return ErrSignatureInvalid
	}
	return nil
}

type flutterwaveEvent struct {
	Event string `json:"event"`
	Data  struct {
		ID       int64          `json:"id"`
		TxRef    string         `json:"tx_ref"`
		FlwRef   string         `json:"flw_ref"`
		Amount   float64        `json:"amount"`
		Currency string         `json:"currency"`
		Status   string         `json:"status"`
		Meta     map[string]any `json:"meta"`
		Customer struct {
			Email string `json:"email"`
		} `json:"customer"`
		Plan any `json:"plan"`
	} `json:"data"`
}

func (f *Flutterwave) Normalize(rawBody []byte) (*types.CanonicalEvent, error) {
	var ev flutterwaveEvent
	if err := json.Unmarshal(rawBody, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadMalformed, err)
	}
	if ev.Event == "" {
		return nil, fmt.Errorf("%w: missing event field", ErrPayloadMalformed)
	}

	eventID := ev.Data.FlwRef
	if eventID == "" {
		eventID = ev.Data.TxRef
	}
	if eventID == "" && ev.Data.ID != 0 {
		eventID = fmt.Sprintf("%d", ev.Data.ID)
	}
	eventID = fmt.Sprintf("%s:%s", ev.Event, eventID)

	meta := flutterwaveMeta(ev.Data.Meta)

	switch ev.Event {
	case "charge.completed":
		status := mapPaymentStatus(ev.Data.Status)
		typ := types.EventPaymentCompleted
		if status == types.EventStatusFailed {
			typ = types.EventPaymentFailed
		}
		// A successful charge carrying tier/billing_cycle meta is the
		// checkout completion; there is no separate activation event, so the
		// subscription is created from this one.
		if typ == types.EventPaymentCompleted && (meta[types.MetaTier] != "" || meta[types.MetaBillingCycle] != "") {
			checkout, err := requireCheckoutMetadata(meta)
			if err != nil {
				return nil, err
			}
			return &types.CanonicalEvent{
				Provider:  types.PaymentProviderFlutterwave,
				EventID:   eventID,
				Type:      types.EventSubscriptionActivated,
				Status:    types.EventStatusCompleted,
				Reference: ev.Data.TxRef,
				Amount:    currency.ToSmallestUnit(ev.Data.Amount, ev.Data.Currency),
				Currency:  strings.ToUpper(ev.Data.Currency),
				Metadata:  checkout,
			}, nil
		}
		return &types.CanonicalEvent{
			Provider:  types.PaymentProviderFlutterwave,
			EventID:   eventID,
			Type:      typ,
			Status:    status,
			Reference: ev.Data.TxRef,
			Amount:    currency.ToSmallestUnit(ev.Data.Amount, ev.Data.Currency),
			Currency:  strings.ToUpper(ev.Data.Currency),
			Metadata:  meta,
		}, nil

	case "subscription.cancelled":
		return &types.CanonicalEvent{
			Provider:  types.PaymentProviderFlutterwave,
			EventID:   eventID,
			Type:      types.EventSubscriptionCancelled,
			Status:    types.EventStatusCompleted,
			Reference: ev.Data.TxRef,
			Metadata:  meta,
		}, nil
	}

	return unhandled(types.PaymentProviderFlutterwave, eventID, ev.Event), nil
}

func flutterwaveMeta(meta map[string]any) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		switch s := v.(type) {
		case string:
			out[k] = s
		case float64:
			out[k] = fmt.Sprintf("%v", s)
		}
	}
	return out
}
