package types

type PaymentProvider string

const (
	PaymentProviderStripe      PaymentProvider = "stripe"
	PaymentProviderPayPal      PaymentProvider = "paypal"
	PaymentProviderPaystack    PaymentProvider = "paystack"
	PaymentProviderFlutterwave PaymentProvider = "flutterwave"
)

// AllPaymentProviders lists every provider a webhook route is mounted for.
var AllPaymentProviders = []PaymentProvider{
	PaymentProviderStripe,
	PaymentProviderPayPal,
	PaymentProviderPaystack,
	PaymentProviderFlutterwave,
}

func (p PaymentProvider) Valid() bool {
	switch p {
	case PaymentProviderStripe, PaymentProviderPayPal, PaymentProviderPaystack, PaymentProviderFlutterwave:
		return true
	}
	return false
}
