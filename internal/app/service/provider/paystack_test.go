package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/framefolio/billing/pkg/types"
)

const paystackTestSecret = "sk_test_secret"

func paystackSign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestPaystackVerifySignature_Valid(t *testing.T) {
	p := NewPaystack(paystackTestSecret)
	body := []byte(`{"event":"charge.success"}`)

	header := http.Header{}
	header.Set(paystackSignatureHeader, paystackSign(paystackTestSecret, body))

	require.NoError(t, p.VerifySignature(context.Background(), body, header))
}

func TestPaystackVerifySignature_TamperedBody(t *testing.T) {
	p := NewPaystack(paystackTestSecret)
	body := []byte(`{"event":"charge.success"}`)

	header := http.Header{}
	header.Set(paystackSignatureHeader, paystackSign(paystackTestSecret, body))

	err := p.VerifySignature(context.Background(), []byte(`{"event":"charge.failed"}`), header)
	require.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestPaystackVerifySignature_MissingHeader(t *testing.T) {
	p := NewPaystack(paystackTestSecret)
	err := p.VerifySignature(context.Background(), []byte(`{}`), http.Header{})
	require.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestPaystackNormalize_ChargeSuccess(t *testing.T) {
	p := NewPaystack(paystackTestSecret)
	body := []byte(`{
		"event": "charge.success",
		"data": {
			"reference": "ref_001",
			"status": "success",
			"amount": 500000,
			"currency": "NGN",
			"metadata": {"user_id": "user-9"}
		}
	}`)

	ev, err := p.Normalize(body)
	require.NoError(t, err)
	require.Equal(t, types.EventPaymentCompleted, ev.Type)
	require.Equal(t, types.EventStatusCompleted, ev.Status)
	require.Equal(t, "charge.success:ref_001", ev.EventID)
	require.Equal(t, "ref_001", ev.Reference)
	require.Equal(t, int64(500000), ev.Amount)
	require.Equal(t, "NGN", ev.Currency)
	require.Equal(t, "user-9", ev.UserID())
}

func TestPaystackNormalize_SubscriptionCreate(t *testing.T) {
	p := NewPaystack(paystackTestSecret)
	body := []byte(`{
		"event": "subscription.create",
		"data": {
			"subscription_code": "SUB_abc",
			"amount": 500000,
			"currency": "NGN",
			"next_payment_date": "2026-09-28T00:00:00Z",
			"metadata": {"user_id": "user-9", "tier": "pro"},
			"plan": {"plan_code": "PLN_1", "interval": "monthly"}
		}
	}`)

	ev, err := p.Normalize(body)
	require.NoError(t, err)
	require.Equal(t, types.EventSubscriptionActivated, ev.Type)
	require.Equal(t, "SUB_abc", ev.Reference)
	require.Equal(t, "monthly", ev.Metadata[types.MetaBillingCycle])
	require.NotNil(t, ev.PeriodEnd)
}

func TestPaystackNormalize_SubscriptionCreateMissingMetadata(t *testing.T) {
	p := NewPaystack(paystackTestSecret)
	body := []byte(`{
		"event": "subscription.create",
		"data": {"subscription_code": "SUB_abc", "metadata": {}}
	}`)

	_, err := p.Normalize(body)
	var normErr *NormalizationError
	require.ErrorAs(t, err, &normErr)
}

func TestPaystackNormalize_NotRenewIsGraceCancellation(t *testing.T) {
	p := NewPaystack(paystackTestSecret)
	body := []byte(`{
		"event": "subscription.not_renew",
		"data": {"subscription_code": "SUB_abc", "next_payment_date": "2026-09-28T00:00:00Z"}
	}`)

	ev, err := p.Normalize(body)
	require.NoError(t, err)
	require.Equal(t, types.EventSubscriptionCancelled, ev.Type)
	require.True(t, ev.CancelAtPeriodEnd)
	require.NotNil(t, ev.PeriodEnd)
}

func TestPaystackNormalize_EmptyStringMetadataTolerated(t *testing.T) {
	p := NewPaystack(paystackTestSecret)
	body := []byte(`{
		"event": "charge.success",
		"data": {"reference": "ref_002", "status": "success", "amount": 1000, "currency": "NGN", "metadata": ""}
	}`)

	ev, err := p.Normalize(body)
	require.NoError(t, err)
	require.Empty(t, ev.UserID())
}

func TestPaystackNormalize_UnknownTypeIsNoOp(t *testing.T) {
	p := NewPaystack(paystackTestSecret)
	body := []byte(`{"event": "transfer.success", "data": {"reference": "tr_1"}}`)

	ev, err := p.Normalize(body)
	require.NoError(t, err)
	require.False(t, ev.Handled())
}
