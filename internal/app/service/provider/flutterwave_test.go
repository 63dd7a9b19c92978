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

const flutterwaveTestHash = "flw_secret_hash"

func flutterwaveSign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestFlutterwaveVerifySignature_Valid(t *testing.T) {
	f := NewFlutterwave(flutterwaveTestHash, false)
	body := []byte(`{"event":"charge.completed"}`)

	header := http.Header{}
	header.Set(flutterwaveSignatureHeader, flutterwaveSign(flutterwaveTestHash, body))

	require.NoError(t, f.VerifySignature(context.Background(), body, header))
}

func TestFlutterwaveVerifySignature_TamperedBody(t *testing.T) {
	f := NewFlutterwave(flutterwaveTestHash, false)
	body := []byte(`{"event":"charge.completed"}`)

	header := http.Header{}
	header.Set(flutterwaveSignatureHeader, flutterwaveSign(flutterwaveTestHash, body))

	err := f.VerifySignature(context.Background(), []byte(`{"event":"charge.failed"}`), header)
	require.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestFlutterwaveVerifySignature_BodyHashFallbackDisabledByDefault(t *testing.T) {
	f := NewFlutterwave(flutterwaveTestHash, false)
	body := []byte(`{"event":"charge.completed","verif_hash":"flw_secret_hash"}`)

	err := f.VerifySignature(context.Background(), body, http.Header{})
	require.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestFlutterwaveVerifySignature_BodyHashFallbackWhenEnabled(t *testing.T) {
	f := NewFlutterwave(flutterwaveTestHash, true)
	body := []byte(`{"event":"charge.completed","verif_hash":"flw_secret_hash"}`)

	require.NoError(t, f.VerifySignature(context.Background(), body, http.Header{}))
}

func TestFlutterwaveVerifySignature_BodyHashMismatch(t *testing.T) {
	f := NewFlutterwave(flutterwaveTestHash, true)
	body := []byte(`{"event":"charge.completed","verif_hash":"wrong"}`)

	err := f.VerifySignature(context.Background(), body, http.Header{})
	require.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestFlutterwaveNormalize_ChargeCompleted(t *testing.T) {
	f := NewFlutterwave(flutterwaveTestHash, false)
	body := []byte(`{
		"event": "charge.completed",
		"data": {
			"id": 12345,
			"tx_ref": "tx_001",
			"flw_ref": "FLW-REF-1",
			"amount": 29.99,
			"currency": "USD",
			"status": "successful",
			"meta": {"user_id": "user-3"}
		}
	}`)

	ev, err := f.Normalize(body)
	require.NoError(t, err)
	require.Equal(t, types.EventPaymentCompleted, ev.Type)
	require.Equal(t, "charge.completed:FLW-REF-1", ev.EventID)
	require.Equal(t, "tx_001", ev.Reference)
	require.Equal(t, int64(2999), ev.Amount)
	require.Equal(t, "user-3", ev.UserID())
}

func TestFlutterwaveNormalize_FailedChargeMapsToPaymentFailed(t *testing.T) {
	f := NewFlutterwave(flutterwaveTestHash, false)
	body := []byte(`{
		"event": "charge.completed",
		"data": {"tx_ref": "tx_002", "amount": 10, "currency": "USD", "status": "failed"}
	}`)

	ev, err := f.Normalize(body)
	require.NoError(t, err)
	require.Equal(t, types.EventPaymentFailed, ev.Type)
	require.Equal(t, types.EventStatusFailed, ev.Status)
}

func TestFlutterwaveNormalize_ZeroDecimalCurrency(t *testing.T) {
	f := NewFlutterwave(flutterwaveTestHash, false)
	body := []byte(`{
		"event": "charge.completed",
		"data": {"tx_ref": "tx_003", "amount": 1500, "currency": "JPY", "status": "successful"}
	}`)

	ev, err := f.Normalize(body)
	require.NoError(t, err)
	require.Equal(t, int64(1500), ev.Amount)
}

func TestFlutterwaveNormalize_SubscriptionCancelled(t *testing.T) {
	f := NewFlutterwave(flutterwaveTestHash, false)
	body := []byte(`{"event": "subscription.cancelled", "data": {"tx_ref": "tx_004"}}`)

	ev, err := f.Normalize(body)
	require.NoError(t, err)
	require.Equal(t, types.EventSubscriptionCancelled, ev.Type)
	require.Equal(t, "tx_004", ev.Reference)
}

func TestFlutterwaveNormalize_UnknownTypeIsNoOp(t *testing.T) {
	f := NewFlutterwave(flutterwaveTestHash, false)
	ev, err := f.Normalize([]byte(`{"event": "transfer.completed", "data": {"tx_ref": "tr_1"}}`))
	require.NoError(t, err)
	require.False(t, ev.Handled())
}

func TestFlutterwaveNormalize_CheckoutChargeActivatesSubscription(t *testing.T) {
	f := NewFlutterwave(flutterwaveTestHash, false)
	body := []byte(`{
		"event": "charge.completed",
		"data": {
			"tx_ref": "tx_sub_1",
			"flw_ref": "FLW-REF-9",
			"amount": 29.99,
			"currency": "USD",
			"status": "successful",
			"meta": {"user_id": "user-7", "tier": "pro", "billing_cycle": "monthly"}
		}
	}`)

	ev, err := f.Normalize(body)
	require.NoError(t, err)
	require.Equal(t, types.EventSubscriptionActivated, ev.Type)
	require.Equal(t, "tx_sub_1", ev.Reference)
	require.Equal(t, int64(2999), ev.Amount)
	require.Equal(t, "user-7", ev.UserID())
	require.Equal(t, "pro", ev.Metadata[types.MetaTier])
	require.Equal(t, "monthly", ev.Metadata[types.MetaBillingCycle])
}

func TestFlutterwaveNormalize_CheckoutChargeMissingUserID(t *testing.T) {
	f := NewFlutterwave(flutterwaveTestHash, false)
	body := []byte(`{
		"event": "charge.completed",
		"data": {
			"tx_ref": "tx_sub_2",
			"amount": 29.99,
			"currency": "USD",
			"status": "successful",
			"meta": {"tier": "pro", "billing_cycle": "monthly"}
		}
	}`)

	var normErr *NormalizationError
	_, err := f.Normalize(body)
	require.ErrorAs(t, err, &normErr)
}

func TestFlutterwaveNormalize_FailedCheckoutChargeStaysPaymentFailed(t *testing.T) {
	f := NewFlutterwave(flutterwaveTestHash, false)
	body := []byte(`{
		"event": "charge.completed",
		"data": {
			"tx_ref": "tx_sub_3",
			"amount": 29.99,
			"currency": "USD",
			"status": "failed",
			"meta": {"user_id": "user-7", "tier": "pro", "billing_cycle": "monthly"}
		}
	}`)

	ev, err := f.Normalize(body)
	require.NoError(t, err)
	require.Equal(t, types.EventPaymentFailed, ev.Type)
}
