package payment

import (
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/framefolio/billing/pkg/config"
	"github.com/framefolio/billing/pkg/types"
)

// newGateway resolves the configured charge gateway. PayPal has no
// synchronous charge path here; its subscriptions are created through the
// provider-hosted flow and reconciled by webhook.
func newGateway(cfg *config.Config) (Gateway, error) {
	switch cfg.Payment.Provider {
	case types.PaymentProviderStripe:
		return NewStripeGateway(cfg.Providers.Stripe.SecretKey, cfg.Providers.Stripe.APIBase), nil
	case types.PaymentProviderPaystack:
		return NewPaystackGateway(cfg.Providers.Paystack.SecretKey, cfg.Providers.Paystack.APIBase), nil
	case types.PaymentProviderFlutterwave:
		return NewFlutterwaveGateway(cfg.Providers.Flutterwave.SecretKey, cfg.Providers.Flutterwave.APIBase), nil
	}
	return nil, fmt.Errorf("no charge gateway for provider %q", cfg.Payment.Provider)
}

func newService(gateway Gateway, cache ResultCache, cfg *config.Config, log *zap.SugaredLogger) *Service {
	return NewService(gateway, cache, cfg.Payment.IdempotencyTTL, log)
}

var Module = fx.Options(
	fx.Provide(newGateway),
	fx.Provide(NewRedisCache),
	fx.Provide(newService),
)
