package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/framefolio/billing/internal/app/service/currency"
	"github.com/framefolio/billing/pkg/logctx"
	"github.com/framefolio/billing/pkg/tool"
	"github.com/framefolio/billing/pkg/types"
)

// ChargeRequest is a synchronous, non-webhook charge initiated by the core
// application (one-off purchases, manual retries). Amount is in major units
// as entered; normalization to the smallest unit happens here, once.
type ChargeRequest struct {
	UserID   string            `json:"user_id" binding:"required"`
	Email    string            `json:"email" binding:"required"`
	Amount   float64           `json:"amount" binding:"required,gt=0"`
	Currency string            `json:"currency" binding:"required"`
	Metadata map[string]string `json:"metadata"`
}

type RefundRequest struct {
	Reference string  `json:"reference" binding:"required"`
	Amount    float64 `json:"amount"`
	Reason    string  `json:"reason"`
}

// ChargeResult is memoized under the idempotency key, so a retried request
// observes the exact result of the first attempt.
type ChargeResult struct {
	Provider types.PaymentProvider `json:"provider"`
	// Reference identifies the charge at the provider; webhooks about this
	// charge will carry it back.
	Reference string `json:"reference"`
	Status    string `json:"status"`
	// AuthorizationURL is set for redirect-based gateways (Paystack,
	// Flutterwave); ClientSecret for Stripe's client-side confirmation.
	AuthorizationURL string `json:"authorization_url,omitempty"`
	ClientSecret     string `json:"client_secret,omitempty"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
}

type RefundResult struct {
	Provider  types.PaymentProvider `json:"provider"`
	Reference string                `json:"reference"`
	Status    string                `json:"status"`
}

// Gateway is one provider's synchronous charge API.
type Gateway interface {
	ID() types.PaymentProvider
	Charge(ctx context.Context, req *ChargeRequest, amountSmallest int64, reference string) (*ChargeResult, error)
	Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error)
}

// ResultCache memoizes charge results for a bounded TTL.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Service is the front door for synchronous charges. The gateway is an
// explicit construction-time dependency selected from config, never a
// global lookup.
type Service struct {
	gateway Gateway
	cache   ResultCache
	ttl     time.Duration
	log     *zap.SugaredLogger
}

func NewService(gateway Gateway, cache ResultCache, idempotencyTTL time.Duration, log *zap.SugaredLogger) *Service {
	return &Service{gateway: gateway, cache: cache, ttl: idempotencyTTL, log: log}
}

const idempotencyKeyPrefix = "billing:charge:idem:"

// Charge forwards the request to the configured gateway, memoizing the
// result under the idempotency key. Callers should always supply a key;
// one is generated when absent, which protects nothing across retries.
func (s *Service) Charge(ctx context.Context, req *ChargeRequest, idempotencyKey string) (*ChargeResult, error) {
	log := logctx.FromCtx(ctx, s.log)

	if idempotencyKey == "" {
		idempotencyKey = tool.GenerateUUIDV7()
		log.Debugw("no idempotency key supplied, generated one", "key", idempotencyKey)
	}
	cacheKey := idempotencyKeyPrefix + idempotencyKey

	if raw, ok, err := s.cache.Get(ctx, cacheKey); err != nil {
		// degraded cache must not block charging; worst case is a provider
		// call the key would have suppressed
		log.Warnw("idempotency cache read failed", "error", err)
	} else if ok {
		var memo ChargeResult
		if err := json.Unmarshal(raw, &memo); err == nil {
			log.Infow("charge replayed from idempotency cache", "key", idempotencyKey, "reference", memo.Reference)
			return &memo, nil
		}
		log.Warnw("idempotency cache entry unreadable, recharging", "key", idempotencyKey)
	}

	code := strings.ToUpper(req.Currency)
	amountSmallest := currency.ToSmallestUnit(req.Amount, code)
	if amountSmallest <= 0 {
		return nil, fmt.Errorf("invalid charge amount %v %s", req.Amount, code)
	}
	reference := tool.GenerateChargeReference()

	result, err := s.gateway.Charge(ctx, req, amountSmallest, reference)
	if err != nil {
		return nil, fmt.Errorf("gateway charge failed: %w", err)
	}
	result.Provider = s.gateway.ID()
	result.Amount = amountSmallest
	result.Currency = code

	if raw, err := json.Marshal(result); err == nil {
		if err := s.cache.Set(ctx, cacheKey, raw, s.ttl); err != nil {
			log.Warnw("idempotency cache write failed", "error", err)
		}
	}

	log.Infow("charge dispatched",
		"provider", result.Provider, "reference", result.Reference,
		"amount", amountSmallest, "currency", code)
	return result, nil
}

// Refund passes through to the gateway. Refunds are reconciled by the
// provider's refund webhook, so no memoization is needed here.
func (s *Service) Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	result, err := s.gateway.Refund(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("gateway refund failed: %w", err)
	}
	result.Provider = s.gateway.ID()
	return result, nil
}
