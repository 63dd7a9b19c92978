package currency

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/framefolio/billing/pkg/config"
)

func TestDecimals(t *testing.T) {
	require.Equal(t, 2, Decimals("USD"))
	require.Equal(t, 2, Decimals("eur"))
	require.Equal(t, 0, Decimals("JPY"))
	require.Equal(t, 0, Decimals("krw"))
	require.Equal(t, 3, Decimals("KWD"))
	require.Equal(t, 2, Decimals("ZZZ"))
}

func TestSmallestUnitConversion(t *testing.T) {
	require.Equal(t, int64(2999), ToSmallestUnit(29.99, "USD"))
	require.Equal(t, int64(1500), ToSmallestUnit(1500, "JPY"))
	require.Equal(t, int64(12345), ToSmallestUnit(12.345, "KWD"))
	// half away from zero
	require.Equal(t, int64(1001), ToSmallestUnit(10.005, "USD"))

	require.InDelta(t, 29.99, FromSmallestUnit(2999, "USD"), 1e-9)
	require.InDelta(t, 1500, FromSmallestUnit(1500, "JPY"), 1e-9)
	require.InDelta(t, 12.345, FromSmallestUnit(12345, "KWD"), 1e-9)
}

func TestSmallestUnitRoundTrip(t *testing.T) {
	for _, amount := range []int64{0, 1, 99, 2999, 123456789} {
		for _, code := range []string{"USD", "JPY", "KWD"} {
			require.Equal(t, amount, ToSmallestUnit(FromSmallestUnit(amount, code), code))
		}
	}
}

func TestFormat(t *testing.T) {
	require.Equal(t, "29.99 USD", Format(2999, "USD"))
	require.Equal(t, "1500 JPY", Format(1500, "JPY"))
	require.Equal(t, "12.345 KWD", Format(12345, "kwd"))
}

func currencyTestService(t *testing.T, cfg *config.Config) *Service {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{}
	}
	if cfg.Currency.CacheTTL == 0 {
		cfg.Currency.CacheTTL = time.Hour
	}
	return NewService(cfg, zap.NewNop().Sugar(), nil)
}

func TestConvertSameCurrency(t *testing.T) {
	s := currencyTestService(t, nil)
	got, err := s.Convert(context.Background(), 2999, "usd", "USD")
	require.NoError(t, err)
	require.Equal(t, int64(2999), got)
}

func TestConvertUsesSnapshot(t *testing.T) {
	s := currencyTestService(t, nil)
	s.snapshot = &RateSnapshot{
		Rates:     map[string]float64{"EUR": 0.9},
		FetchedAt: time.Now(),
	}

	got, err := s.Convert(context.Background(), 1000, "USD", "EUR")
	require.NoError(t, err)
	require.Equal(t, int64(900), got)

	back, err := s.Convert(context.Background(), got, "EUR", "USD")
	require.NoError(t, err)
	require.InDelta(t, 1000, back, 1)
}

func TestConvertFallbackRates(t *testing.T) {
	cfg := &config.Config{}
	cfg.Currency.FallbackRates = map[string]float64{"NGN": 1500}
	s := currencyTestService(t, cfg)

	got, err := s.Convert(context.Background(), 1000, "USD", "NGN")
	require.NoError(t, err)
	require.Equal(t, int64(1500000), got)
}

func TestConvertReverseRates(t *testing.T) {
	cfg := &config.Config{}
	// 1 GBP buys 1.25 USD, so one USD buys 0.8 GBP.
	cfg.Currency.ReverseRates = map[string]float64{"GBP": 1.25}
	s := currencyTestService(t, cfg)

	got, err := s.Convert(context.Background(), 1000, "USD", "GBP")
	require.NoError(t, err)
	require.Equal(t, int64(800), got)
}

func TestConvertUnknownCurrencyDefaultsToParity(t *testing.T) {
	s := currencyTestService(t, nil)
	got, err := s.Convert(context.Background(), 1234, "USD", "ZZZ")
	require.NoError(t, err)
	require.Equal(t, int64(1234), got)
}

func TestConvertZeroDecimalPrecision(t *testing.T) {
	s := currencyTestService(t, nil)
	s.snapshot = &RateSnapshot{
		Rates:     map[string]float64{"JPY": 149.37},
		FetchedAt: time.Now(),
	}

	// 29.99 USD in yen, rounded to whole units.
	got, err := s.Convert(context.Background(), 2999, "USD", "JPY")
	require.NoError(t, err)
	require.Equal(t, int64(4480), got)
}

func TestRefreshPrimarySource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"rates":{"EUR":0.9,"JPY":150}}`))
	}))
	defer srv.Close()

	cfg := &config.Config{}
	cfg.Currency.PrimaryURL = srv.URL
	s := currencyTestService(t, cfg)

	require.NoError(t, s.Refresh(context.Background()))
	got, err := s.Convert(context.Background(), 1000, "USD", "EUR")
	require.NoError(t, err)
	require.Equal(t, int64(900), got)
}

func TestRefreshFallsBackToSecondary(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer primary.Close()
	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"conversion_rates":{"EUR":0.85}}`))
	}))
	defer secondary.Close()

	cfg := &config.Config{}
	cfg.Currency.PrimaryURL = primary.URL
	cfg.Currency.SecondaryURL = secondary.URL
	s := currencyTestService(t, cfg)

	require.NoError(t, s.Refresh(context.Background()))
	require.Equal(t, secondary.URL, s.currentSnapshot().Source)
}

func TestRefreshTotalFailureKeepsSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := &config.Config{}
	cfg.Currency.PrimaryURL = srv.URL
	s := currencyTestService(t, cfg)
	prior := &RateSnapshot{Rates: map[string]float64{"EUR": 0.9}, FetchedAt: time.Now()}
	s.snapshot = prior

	require.Error(t, s.Refresh(context.Background()))
	require.Same(t, prior, s.currentSnapshot())
}
