package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/framefolio/billing/pkg/types"
)

type fakeGateway struct {
	id      types.PaymentProvider
	charges int
	refunds int
	err     error
}

func (f *fakeGateway) ID() types.PaymentProvider { return f.id }

func (f *fakeGateway) Charge(_ context.Context, _ *ChargeRequest, amountSmallest int64, reference string) (*ChargeResult, error) {
	f.charges++
	if f.err != nil {
		return nil, f.err
	}
	return &ChargeResult{Reference: reference, Status: "pending"}, nil
}

func (f *fakeGateway) Refund(context.Context, *RefundRequest) (*RefundResult, error) {
	f.refunds++
	return &RefundResult{Reference: "ref-1", Status: "processed"}, nil
}

type memCache struct {
	entries map[string][]byte
}

func newMemCache() *memCache { return &memCache{entries: map[string][]byte{}} }

func (m *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	raw, ok := m.entries[key]
	return raw, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.entries[key] = value
	return nil
}

func chargeRequest() *ChargeRequest {
	return &ChargeRequest{UserID: "user-1", Email: "u@example.com", Amount: 29.99, Currency: "usd"}
}

func TestCharge_NormalizesAmountToSmallestUnit(t *testing.T) {
	gw := &fakeGateway{id: types.PaymentProviderStripe}
	svc := NewService(gw, newMemCache(), 24*time.Hour, zap.NewNop().Sugar())

	res, err := svc.Charge(context.Background(), chargeRequest(), "key-1")
	require.NoError(t, err)
	require.Equal(t, int64(2999), res.Amount)
	require.Equal(t, "USD", res.Currency)
	require.Equal(t, types.PaymentProviderStripe, res.Provider)
}

func TestCharge_RepeatedKeyReturnsMemoWithoutSecondGatewayCall(t *testing.T) {
	gw := &fakeGateway{id: types.PaymentProviderStripe}
	svc := NewService(gw, newMemCache(), 24*time.Hour, zap.NewNop().Sugar())

	first, err := svc.Charge(context.Background(), chargeRequest(), "key-1")
	require.NoError(t, err)

	second, err := svc.Charge(context.Background(), chargeRequest(), "key-1")
	require.NoError(t, err)
	require.Equal(t, 1, gw.charges)
	require.Equal(t, first.Reference, second.Reference)
}

func TestCharge_DistinctKeysChargeSeparately(t *testing.T) {
	gw := &fakeGateway{id: types.PaymentProviderStripe}
	svc := NewService(gw, newMemCache(), 24*time.Hour, zap.NewNop().Sugar())

	first, err := svc.Charge(context.Background(), chargeRequest(), "key-1")
	require.NoError(t, err)
	second, err := svc.Charge(context.Background(), chargeRequest(), "key-2")
	require.NoError(t, err)

	require.Equal(t, 2, gw.charges)
	require.NotEqual(t, first.Reference, second.Reference)
}

func TestCharge_NoKeySuppliedStillCharges(t *testing.T) {
	gw := &fakeGateway{id: types.PaymentProviderStripe}
	svc := NewService(gw, newMemCache(), 24*time.Hour, zap.NewNop().Sugar())

	res, err := svc.Charge(context.Background(), chargeRequest(), "")
	require.NoError(t, err)
	require.NotEmpty(t, res.Reference)
	require.Equal(t, 1, gw.charges)
}

func TestCharge_FailedChargeIsNotMemoized(t *testing.T) {
	gw := &fakeGateway{id: types.PaymentProviderStripe, err: context.DeadlineExceeded}
	cache := newMemCache()
	svc := NewService(gw, cache, 24*time.Hour, zap.NewNop().Sugar())

	_, err := svc.Charge(context.Background(), chargeRequest(), "key-1")
	require.Error(t, err)
	require.Empty(t, cache.entries)

	// gateway recovers: the same key must charge, not replay the failure
	gw.err = nil
	res, err := svc.Charge(context.Background(), chargeRequest(), "key-1")
	require.NoError(t, err)
	require.NotEmpty(t, res.Reference)
}

func TestCharge_ZeroDecimalCurrency(t *testing.T) {
	gw := &fakeGateway{id: types.PaymentProviderStripe}
	svc := NewService(gw, newMemCache(), 24*time.Hour, zap.NewNop().Sugar())

	req := chargeRequest()
	req.Amount = 1500
	req.Currency = "jpy"

	res, err := svc.Charge(context.Background(), req, "key-jpy")
	require.NoError(t, err)
	require.Equal(t, int64(1500), res.Amount)
}

func TestRefund_Passthrough(t *testing.T) {
	gw := &fakeGateway{id: types.PaymentProviderStripe}
	svc := NewService(gw, newMemCache(), 24*time.Hour, zap.NewNop().Sugar())

	res, err := svc.Refund(context.Background(), &RefundRequest{Reference: "ref-1"})
	require.NoError(t, err)
	require.Equal(t, 1, gw.refunds)
	require.Equal(t, "processed", res.Status)
	require.Equal(t, types.PaymentProviderStripe, res.Provider)
}

func TestPaystackGateway_Charge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/transaction/initialize", r.URL.Path)
		require.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, float64(500000), body["amount"])
		require.Equal(t, "NGN", body["currency"])

		json.NewEncoder(w).Encode(map[string]any{
			"status": true,
			"data": map[string]string{
				"authorization_url": "https://checkout.paystack.com/abc",
				"reference":         body["reference"].(string),
			},
		})
	}))
	defer srv.Close()

	gw := NewPaystackGateway("sk_test", srv.URL)
	res, err := gw.Charge(context.Background(),
		&ChargeRequest{UserID: "user-1", Email: "u@example.com", Currency: "NGN"}, 500000, "ref-xyz")
	require.NoError(t, err)
	require.Equal(t, "ref-xyz", res.Reference)
	require.Equal(t, "https://checkout.paystack.com/abc", res.AuthorizationURL)
}

func TestStripeGateway_Charge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/payment_intents", r.URL.Path)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "2999", r.PostForm.Get("amount"))
		require.Equal(t, "usd", r.PostForm.Get("currency"))
		require.Equal(t, "user-1", r.PostForm.Get("metadata[user_id]"))

		json.NewEncoder(w).Encode(map[string]string{
			"id": "pi_1", "status": "requires_payment_method", "client_secret": "pi_1_secret",
		})
	}))
	defer srv.Close()

	gw := NewStripeGateway("sk_test", srv.URL)
	res, err := gw.Charge(context.Background(),
		&ChargeRequest{UserID: "user-1", Email: "u@example.com", Currency: "USD"}, 2999, "ref-1")
	require.NoError(t, err)
	require.Equal(t, "pi_1", res.Reference)
	require.Equal(t, "pi_1_secret", res.ClientSecret)
}
