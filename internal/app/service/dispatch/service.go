package dispatch

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/framefolio/billing/internal/app/service/ledger"
	"github.com/framefolio/billing/internal/app/service/provider"
	"github.com/framefolio/billing/internal/models"
	"github.com/framefolio/billing/pkg/config"
	"github.com/framefolio/billing/pkg/logctx"
	"github.com/framefolio/billing/pkg/metrics"
	"github.com/framefolio/billing/pkg/types"
)

// Applier runs the subscription state machine over one canonical event.
type Applier interface {
	Apply(ctx context.Context, ev *types.CanonicalEvent) error
}

// Result is what the webhook endpoint answers the provider with.
type Result struct {
	HTTPStatus int
	Message    string
	// Duplicate marks a replayed delivery whose prior status was returned.
	Duplicate bool
}

// Dispatcher drives one webhook delivery through verify, normalize, the
// idempotency ledger, and the state machine, and decides the HTTP answer.
type Dispatcher struct {
	registry *provider.Registry
	ledger   ledger.Ledger
	applier  Applier
	cfg      *config.Config
	log      *zap.SugaredLogger
}

func NewDispatcher(registry *provider.Registry, led ledger.Ledger, applier Applier, cfg *config.Config, log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{registry: registry, ledger: led, applier: applier, cfg: cfg, log: log}
}

// Dispatch handles one delivery. rawBody must be the untouched wire bytes.
// The returned Result is always usable, also when err != nil; err exists for
// the caller's logging only.
func (d *Dispatcher) Dispatch(ctx context.Context, providerID types.PaymentProvider, rawBody []byte, header http.Header) (*Result, error) {
	start := time.Now()
	log := logctx.FromCtx(ctx, d.log).With("provider", providerID)

	p, ok := d.registry.Get(providerID)
	if !ok {
		observeWebhook(providerID, "rejected", start)
		return &Result{HTTPStatus: http.StatusNotFound, Message: "unknown provider"}, nil
	}

	if err := p.VerifySignature(ctx, rawBody, header); err != nil {
		if errors.Is(err, provider.ErrProviderUnreachable) {
			// verification could not run; invite redelivery
			log.Warnw("signature verification unreachable", "error", err)
			observeWebhook(providerID, "unreachable", start)
			return &Result{HTTPStatus: http.StatusInternalServerError, Message: "verification unavailable"}, err
		}
		log.Warnw("signature verification failed", "error", err)
		observeWebhook(providerID, "rejected", start)
		return &Result{HTTPStatus: http.StatusBadRequest, Message: "signature invalid"}, err
	}

	ev, err := p.Normalize(rawBody)
	if err != nil {
		log.Warnw("normalization failed", "error", err)
		observeWebhook(providerID, "rejected", start)
		return &Result{HTTPStatus: http.StatusBadRequest, Message: "payload rejected"}, err
	}
	log = log.With("event_id", ev.EventID, "event_type", ev.Type)

	begin, err := d.ledger.TryBegin(ctx, providerID, ev.EventID, rawBody)
	if err != nil {
		log.Errorw("ledger begin failed", "error", err)
		observeWebhook(providerID, "failed", start)
		return d.internalErrorResult(providerID), err
	}
	if !begin.Fresh {
		// replay: answer what we answered before, run nothing
		status := begin.Prior.HTTPStatus
		if status == 0 {
			// prior delivery is still in flight; a crashed one would have
			// been reclaimed by TryBegin
			status = http.StatusOK
		}
		log.Infow("duplicate delivery short-circuited", "prior_outcome", begin.Prior.Outcome)
		observeWebhook(providerID, "duplicate", start)
		return &Result{HTTPStatus: status, Message: "duplicate", Duplicate: true}, nil
	}

	if !ev.Handled() {
		if err := d.ledger.Commit(ctx, providerID, ev.EventID, models.WebhookOutcomeProcessed, ev.Type, ev.Reference, http.StatusOK, nil); err != nil {
			log.Errorw("ledger commit failed", "error", err)
		}
		observeWebhook(providerID, "unhandled", start)
		return &Result{HTTPStatus: http.StatusOK, Message: "event type not handled"}, nil
	}

	if applyErr := d.applier.Apply(ctx, ev); applyErr != nil {
		res := d.internalErrorResult(providerID)
		log.Errorw("event processing failed", "error", applyErr, "http_status", res.HTTPStatus)
		if err := d.ledger.Commit(ctx, providerID, ev.EventID, models.WebhookOutcomeFailed, ev.Type, ev.Reference, res.HTTPStatus, applyErr); err != nil {
			log.Errorw("ledger commit failed", "error", err)
		}
		observeWebhook(providerID, "failed", start)
		return res, applyErr
	}

	if err := d.ledger.Commit(ctx, providerID, ev.EventID, models.WebhookOutcomeProcessed, ev.Type, ev.Reference, http.StatusOK, nil); err != nil {
		log.Errorw("ledger commit failed", "error", err)
	}
	observeWebhook(providerID, "processed", start)
	return &Result{HTTPStatus: http.StatusOK, Message: "processed"}, nil
}

// internalErrorResult applies the per-provider retry policy: 500 invites
// redelivery, 200 suppresses it with the failure only in our ledger and logs.
func (d *Dispatcher) internalErrorResult(providerID types.PaymentProvider) *Result {
	if d.cfg.RetryOnInternalError(providerID) {
		return &Result{HTTPStatus: http.StatusInternalServerError, Message: "processing failed"}
	}
	return &Result{HTTPStatus: http.StatusOK, Message: "accepted"}
}

func observeWebhook(providerID types.PaymentProvider, outcome string, start time.Time) {
	if h, ok := metrics.MetricWebhookProcess.MetricCollector.(*prometheus.HistogramVec); ok {
		h.WithLabelValues(string(providerID), outcome).Observe(metrics.MillisecondsSince(start))
	}
}
