package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/framefolio/billing/internal/app/service/dispatch"
	"github.com/framefolio/billing/pkg/logctx"
	"github.com/framefolio/billing/pkg/types"
)

// webhookHandler answers one provider's webhook route. The raw body is read
// before any binding so signature verification sees the exact wire bytes.
func webhookHandler(d *dispatch.Dispatcher, log *zap.SugaredLogger, provider types.PaymentProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		rawBody, err := c.GetRawData()
		if err != nil {
			logctx.FromGin(c, log).Warnw("webhook_body_read_error", "provider", provider, "error", err)
			c.String(http.StatusBadRequest, "cannot read body")
			return
		}

		res, dispatchErr := d.Dispatch(c.Request.Context(), provider, rawBody, c.Request.Header)
		if dispatchErr != nil {
			logctx.FromGin(c, log).Warnw("webhook_dispatch_error",
				"provider", provider, "status", res.HTTPStatus, "error", dispatchErr)
		}
		// providers want a plain status, not this API's response envelope
		c.String(res.HTTPStatus, res.Message)
	}
}

// @Summary      Stripe Webhook
// @Description  Accepts Stripe event deliveries. The Stripe-Signature header is verified against the raw body.
// @Tags         Webhook
// @Accept       json
// @Produce      plain
// @Success      200  {string}  string  "processed"
// @Failure      400  {string}  string  "signature invalid or payload rejected"
// @Router       /webhooks/stripe [post]
func ApiStripeWebhook(d *dispatch.Dispatcher, log *zap.SugaredLogger) gin.HandlerFunc {
	return webhookHandler(d, log, types.PaymentProviderStripe)
}

// @Summary      PayPal Webhook
// @Description  Accepts PayPal event deliveries, verified through PayPal's verification API.
// @Tags         Webhook
// @Accept       json
// @Produce      plain
// @Success      200  {string}  string  "processed"
// @Router       /webhooks/paypal [post]
func ApiPayPalWebhook(d *dispatch.Dispatcher, log *zap.SugaredLogger) gin.HandlerFunc {
	return webhookHandler(d, log, types.PaymentProviderPayPal)
}

// @Summary      Paystack Webhook
// @Tags         Webhook
// @Accept       json
// @Produce      plain
// @Success      200  {string}  string  "processed"
// @Router       /webhooks/paystack [post]
func ApiPaystackWebhook(d *dispatch.Dispatcher, log *zap.SugaredLogger) gin.HandlerFunc {
	return webhookHandler(d, log, types.PaymentProviderPaystack)
}

// @Summary      Flutterwave Webhook
// @Tags         Webhook
// @Accept       json
// @Produce      plain
// @Success      200  {string}  string  "processed"
// @Router       /webhooks/flutterwave [post]
func ApiFlutterwaveWebhook(d *dispatch.Dispatcher, log *zap.SugaredLogger) gin.HandlerFunc {
	return webhookHandler(d, log, types.PaymentProviderFlutterwave)
}

// RegisterWebhookRoutes mounts one route per known provider; the route path
// is the provider id.
func RegisterWebhookRoutes(r gin.IRouter, d *dispatch.Dispatcher, log *zap.SugaredLogger) {
	byProvider := map[types.PaymentProvider]gin.HandlerFunc{
		types.PaymentProviderStripe:      ApiStripeWebhook(d, log),
		types.PaymentProviderPayPal:      ApiPayPalWebhook(d, log),
		types.PaymentProviderPaystack:    ApiPaystackWebhook(d, log),
		types.PaymentProviderFlutterwave: ApiFlutterwaveWebhook(d, log),
	}
	for _, p := range types.AllPaymentProviders {
		r.POST("/"+string(p), byProvider[p])
	}
}
