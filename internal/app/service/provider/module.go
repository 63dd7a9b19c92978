package provider

import (
	"go.uber.org/fx"

	"github.com/framefolio/billing/pkg/config"
)

func newRegistry(cfg *config.Config) *Registry {
	return NewRegistry(
		NewStripe(cfg.Providers.Stripe.WebhookSecret),
		NewPaystack(cfg.Providers.Paystack.WebhookSecret),
		NewFlutterwave(cfg.Providers.Flutterwave.SecretHash, cfg.Providers.Flutterwave.AllowBodyHashFallback),
		NewPayPal(cfg.Providers.PayPal),
	)
}

var Module = fx.Options(
	fx.Provide(newRegistry),
)
