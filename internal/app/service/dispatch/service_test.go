package dispatch

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/framefolio/billing/internal/app/service/ledger"
	"github.com/framefolio/billing/internal/app/service/provider"
	"github.com/framefolio/billing/internal/models"
	"github.com/framefolio/billing/pkg/config"
	"github.com/framefolio/billing/pkg/types"
)

type fakeProvider struct {
	id        types.PaymentProvider
	verifyErr error
	event     *types.CanonicalEvent
	normErr   error
}

func (f *fakeProvider) ID() types.PaymentProvider { return f.id }

func (f *fakeProvider) VerifySignature(context.Context, []byte, http.Header) error {
	return f.verifyErr
}

func (f *fakeProvider) Normalize([]byte) (*types.CanonicalEvent, error) {
	return f.event, f.normErr
}

type fakeLedger struct {
	begin    *ledger.BeginResult
	beginErr error

	committed       bool
	committedValue  models.WebhookOutcome
	committedStatus int
}

func (f *fakeLedger) TryBegin(context.Context, types.PaymentProvider, string, []byte) (*ledger.BeginResult, error) {
	return f.begin, f.beginErr
}

func (f *fakeLedger) Commit(_ context.Context, _ types.PaymentProvider, _ string, outcome models.WebhookOutcome, _ types.CanonicalEventType, _ string, httpStatus int, _ error) error {
	f.committed = true
	f.committedValue = outcome
	f.committedStatus = httpStatus
	return nil
}

type fakeApplier struct {
	err     error
	applied int
}

func (f *fakeApplier) Apply(context.Context, *types.CanonicalEvent) error {
	f.applied++
	return f.err
}

func handledEvent() *types.CanonicalEvent {
	return &types.CanonicalEvent{
		Provider: types.PaymentProviderStripe,
		EventID:  "evt_1",
		Type:     types.EventPaymentCompleted,
		Metadata: map[string]string{},
	}
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Providers.PayPal.RetryOnInternalError = true
	return cfg
}

func newTestDispatcher(p provider.Provider, led ledger.Ledger, applier Applier) *Dispatcher {
	return NewDispatcher(provider.NewRegistry(p), led, applier, testConfig(), zap.NewNop().Sugar())
}

func TestDispatch_ProcessedHappyPath(t *testing.T) {
	led := &fakeLedger{begin: &ledger.BeginResult{Fresh: true}}
	applier := &fakeApplier{}
	d := newTestDispatcher(&fakeProvider{id: types.PaymentProviderStripe, event: handledEvent()}, led, applier)

	res, err := d.Dispatch(context.Background(), types.PaymentProviderStripe, []byte(`{}`), http.Header{})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.HTTPStatus)
	require.Equal(t, 1, applier.applied)
	require.True(t, led.committed)
	require.Equal(t, models.WebhookOutcomeProcessed, led.committedValue)
}

func TestDispatch_SignatureInvalidIs400(t *testing.T) {
	led := &fakeLedger{}
	applier := &fakeApplier{}
	d := newTestDispatcher(&fakeProvider{id: types.PaymentProviderStripe, verifyErr: provider.ErrSignatureInvalid}, led, applier)

	res, err := d.Dispatch(context.Background(), types.PaymentProviderStripe, []byte(`{}`), http.Header{})
	require.ErrorIs(t, err, provider.ErrSignatureInvalid)
	require.Equal(t, http.StatusBadRequest, res.HTTPStatus)
	require.Zero(t, applier.applied)
	require.False(t, led.committed)
}

func TestDispatch_VerificationUnreachableIs500(t *testing.T) {
	d := newTestDispatcher(
		&fakeProvider{id: types.PaymentProviderPayPal, verifyErr: provider.ErrProviderUnreachable},
		&fakeLedger{}, &fakeApplier{})

	res, err := d.Dispatch(context.Background(), types.PaymentProviderPayPal, []byte(`{}`), http.Header{})
	require.ErrorIs(t, err, provider.ErrProviderUnreachable)
	require.Equal(t, http.StatusInternalServerError, res.HTTPStatus)
}

func TestDispatch_NormalizationErrorIs400(t *testing.T) {
	d := newTestDispatcher(
		&fakeProvider{id: types.PaymentProviderStripe, normErr: &provider.NormalizationError{Reason: "missing user_id"}},
		&fakeLedger{}, &fakeApplier{})

	res, err := d.Dispatch(context.Background(), types.PaymentProviderStripe, []byte(`{}`), http.Header{})
	require.Error(t, err)
	require.Equal(t, http.StatusBadRequest, res.HTTPStatus)
}

func TestDispatch_DuplicateReplaysPriorStatus(t *testing.T) {
	led := &fakeLedger{begin: &ledger.BeginResult{
		Fresh: false,
		Prior: &models.ProcessedWebhookEvent{Outcome: models.WebhookOutcomeProcessed, HTTPStatus: http.StatusOK},
	}}
	applier := &fakeApplier{}
	d := newTestDispatcher(&fakeProvider{id: types.PaymentProviderStripe, event: handledEvent()}, led, applier)

	res, err := d.Dispatch(context.Background(), types.PaymentProviderStripe, []byte(`{}`), http.Header{})
	require.NoError(t, err)
	require.True(t, res.Duplicate)
	require.Equal(t, http.StatusOK, res.HTTPStatus)
	require.Zero(t, applier.applied)
	require.False(t, led.committed)
}

func TestDispatch_DuplicateOfUncommittedEntryAnswers200(t *testing.T) {
	led := &fakeLedger{begin: &ledger.BeginResult{
		Fresh: false,
		Prior: &models.ProcessedWebhookEvent{Outcome: models.WebhookOutcomeReceived},
	}}
	d := newTestDispatcher(&fakeProvider{id: types.PaymentProviderStripe, event: handledEvent()}, led, &fakeApplier{})

	res, err := d.Dispatch(context.Background(), types.PaymentProviderStripe, []byte(`{}`), http.Header{})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.HTTPStatus)
}

func TestDispatch_UnhandledEventIs200NoApply(t *testing.T) {
	led := &fakeLedger{begin: &ledger.BeginResult{Fresh: true}}
	applier := &fakeApplier{}
	ev := &types.CanonicalEvent{Provider: types.PaymentProviderStripe, EventID: "evt_x", Type: types.EventUnhandled}
	d := newTestDispatcher(&fakeProvider{id: types.PaymentProviderStripe, event: ev}, led, applier)

	res, err := d.Dispatch(context.Background(), types.PaymentProviderStripe, []byte(`{}`), http.Header{})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.HTTPStatus)
	require.Zero(t, applier.applied)
	require.Equal(t, models.WebhookOutcomeProcessed, led.committedValue)
}

func TestDispatch_InternalErrorSuppressedForStripe(t *testing.T) {
	led := &fakeLedger{begin: &ledger.BeginResult{Fresh: true}}
	applier := &fakeApplier{err: errors.New("db down")}
	d := newTestDispatcher(&fakeProvider{id: types.PaymentProviderStripe, event: handledEvent()}, led, applier)

	res, err := d.Dispatch(context.Background(), types.PaymentProviderStripe, []byte(`{}`), http.Header{})
	require.Error(t, err)
	require.Equal(t, http.StatusOK, res.HTTPStatus)
	require.Equal(t, models.WebhookOutcomeFailed, led.committedValue)
	require.Equal(t, http.StatusOK, led.committedStatus)
}

func TestDispatch_InternalErrorInvitesRetryForPayPal(t *testing.T) {
	led := &fakeLedger{begin: &ledger.BeginResult{Fresh: true}}
	applier := &fakeApplier{err: errors.New("db down")}
	ev := handledEvent()
	ev.Provider = types.PaymentProviderPayPal
	d := newTestDispatcher(&fakeProvider{id: types.PaymentProviderPayPal, event: ev}, led, applier)

	res, err := d.Dispatch(context.Background(), types.PaymentProviderPayPal, []byte(`{}`), http.Header{})
	require.Error(t, err)
	require.Equal(t, http.StatusInternalServerError, res.HTTPStatus)
	require.Equal(t, models.WebhookOutcomeFailed, led.committedValue)
}

func TestDispatch_UnknownProviderIs404(t *testing.T) {
	d := newTestDispatcher(&fakeProvider{id: types.PaymentProviderStripe}, &fakeLedger{}, &fakeApplier{})

	res, err := d.Dispatch(context.Background(), types.PaymentProvider("square"), []byte(`{}`), http.Header{})
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, res.HTTPStatus)
}
