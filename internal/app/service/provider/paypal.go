package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/framefolio/billing/internal/app/service/currency"
	"github.com/framefolio/billing/pkg/config"
	"github.com/framefolio/billing/pkg/types"
)

// PayPal cannot be verified locally: verification is a callback to PayPal's
// verify-webhook-signature API carrying the transmission headers and the
// original event body. A failed callback is retryable, not a rejection.
type PayPal struct {
	clientID   string
	secret     string
	webhookID  string
	apiBase    string
	httpClient *http.Client

	// token cache; PayPal access tokens live for hours.
	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewPayPal(cfg config.PayPalConfig) *PayPal {
	return &PayPal{
		clientID:   cfg.ClientID,
		secret:     cfg.Secret,
		webhookID:  cfg.WebhookID,
		apiBase:    strings.TrimRight(cfg.APIBase, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *PayPal) ID() types.PaymentProvider { return types.PaymentProviderPayPal }

func (p *PayPal) VerifySignature(ctx context.Context, rawBody []byte, header http.Header) error {
	transmissionID := header.Get("Paypal-Transmission-Id")
	transmissionTime := header.Get("Paypal-Transmission-Time")
	transmissionSig := header.Get("Paypal-Transmission-Sig")
	certURL := header.Get("Paypal-Cert-Url")
	authAlgo := header.Get("Paypal-Auth-Algo")
	if transmissionID == "" || transmissionSig == "" || certURL == "" {
		return ErrSignatureInvalid
	}

	token, err := p.accessToken(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnreachable, err)
	}

	reqBody := map[string]any{
		"transmission_id":   transmissionID,
		"transmission_time": transmissionTime,
		"transmission_sig":  transmissionSig,
		"cert_url":          certURL,
		"auth_algo":         authAlgo,
		"webhook_id":        p.webhookID,
		"webhook_event":     json.RawMessage(rawBody),
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal verification request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.apiBase+"/v1/notifications/verify-webhook-signature", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build verification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: verification api returned %d", ErrProviderUnreachable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return ErrSignatureInvalid
	}

	var out struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("%w: decode verification response: %v", ErrProviderUnreachable, err)
	}
	if out.VerificationStatus != "SUCCESS" {
		return ErrSignatureInvalid
	}
	return nil
}

func (p *PayPal) accessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token != "" && time.Now().Before(p.tokenExpiry) {
		return p.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.apiBase+"/v1/oauth2/token", strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(p.clientID, p.secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("oauth token request returned %d", resp.StatusCode)
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("oauth token response missing access_token")
	}

	p.token = out.AccessToken
	// Refresh a minute before expiry.
	p.tokenExpiry = time.Now().Add(time.Duration(out.ExpiresIn-60) * time.Second)
	return p.token, nil
}

type paypalEvent struct {
	ID           string `json:"id"`
	EventType    string `json:"event_type"`
	ResourceType string `json:"resource_type"`
	Resource     struct {
		ID                 string `json:"id"`
		Status             string `json:"status"`
		CustomID           string `json:"custom_id"`
		BillingAgreementID string `json:"billing_agreement_id"`
		Amount             struct {
			Total    string `json:"total"`
			Currency string `json:"currency"`
		} `json:"amount"`
		BillingInfo struct {
			NextBillingTime string `json:"next_billing_time"`
			LastPayment     struct {
				Amount struct {
					Value        string `json:"value"`
					CurrencyCode string `json:"currency_code"`
				} `json:"amount"`
			} `json:"last_payment"`
		} `json:"billing_info"`
		SaleID string `json:"sale_id"`
	} `json:"resource"`
}

func (p *PayPal) Normalize(rawBody []byte) (*types.CanonicalEvent, error) {
	var ev paypalEvent
	if err := json.Unmarshal(rawBody, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadMalformed, err)
	}
	if ev.ID == "" || ev.EventType == "" {
		return nil, fmt.Errorf("%w: missing event id or type", ErrPayloadMalformed)
	}

	meta := paypalCustomID(ev.Resource.CustomID)

	switch ev.EventType {
	case "BILLING.SUBSCRIPTION.ACTIVATED":
		if meta[types.MetaUserID] == "" {
			return nil, &NormalizationError{Reason: "subscription activation missing user_id in custom_id"}
		}
		if meta[types.MetaTier] == "" || meta[types.MetaBillingCycle] == "" {
			return nil, &NormalizationError{Reason: "subscription activation missing tier or billing_cycle in custom_id"}
		}
		amount, code := paypalLastPayment(&ev)
		out := &types.CanonicalEvent{
			Provider:  types.PaymentProviderPayPal,
			EventID:   ev.ID,
			Type:      types.EventSubscriptionActivated,
			Status:    types.EventStatusCompleted,
			Reference: ev.Resource.ID,
			Amount:    amount,
			Currency:  code,
			Metadata:  meta,
		}
		if t := paypalTime(ev.Resource.BillingInfo.NextBillingTime); t != nil {
			out.PeriodEnd = t
		}
		return out, nil

	case "BILLING.SUBSCRIPTION.UPDATED":
		out := &types.CanonicalEvent{
			Provider:  types.PaymentProviderPayPal,
			EventID:   ev.ID,
			Type:      types.EventSubscriptionUpdated,
			Status:    types.CanonicalEventStatus(strings.ToLower(ev.Resource.Status)),
			Reference: ev.Resource.ID,
			Metadata:  meta,
		}
		if t := paypalTime(ev.Resource.BillingInfo.NextBillingTime); t != nil {
			out.PeriodEnd = t
		}
		return out, nil

	case "BILLING.SUBSCRIPTION.CANCELLED", "BILLING.SUBSCRIPTION.EXPIRED", "BILLING.SUBSCRIPTION.SUSPENDED":
		return &types.CanonicalEvent{
			Provider:  types.PaymentProviderPayPal,
			EventID:   ev.ID,
			Type:      types.EventSubscriptionCancelled,
			Status:    types.EventStatusCompleted,
			Reference: ev.Resource.ID,
			Metadata:  meta,
		}, nil

	case "BILLING.SUBSCRIPTION.PAYMENT.FAILED":
		return &types.CanonicalEvent{
			Provider:  types.PaymentProviderPayPal,
			EventID:   ev.ID,
			Type:      types.EventSubscriptionPaymentFailed,
			Status:    types.EventStatusFailed,
			Reference: ev.Resource.ID,
			Metadata:  meta,
		}, nil

	case "PAYMENT.SALE.COMPLETED":
		amount := paypalAmount(ev.Resource.Amount.Total, ev.Resource.Amount.Currency)
		reference := ev.Resource.BillingAgreementID
		renewal := reference != ""
		if reference == "" {
			reference = ev.Resource.ID
		}
		return &types.CanonicalEvent{
			Provider:  types.PaymentProviderPayPal,
			EventID:   ev.ID,
			Type:      types.EventPaymentCompleted,
			Status:    types.EventStatusCompleted,
			Reference: reference,
			Amount:    amount,
			Currency:  strings.ToUpper(ev.Resource.Amount.Currency),
			Renewal:   renewal,
			Metadata:  meta,
		}, nil

	case "PAYMENT.SALE.REFUNDED", "PAYMENT.SALE.REVERSED":
		reference := ev.Resource.SaleID
		if reference == "" {
			reference = ev.Resource.ID
		}
		return &types.CanonicalEvent{
			Provider:  types.PaymentProviderPayPal,
			EventID:   ev.ID,
			Type:      types.EventPaymentRefunded,
			Status:    types.EventStatusRefunded,
			Reference: reference,
			Amount:    paypalAmount(ev.Resource.Amount.Total, ev.Resource.Amount.Currency),
			Currency:  strings.ToUpper(ev.Resource.Amount.Currency),
			Metadata:  meta,
		}, nil
	}

	return unhandled(types.PaymentProviderPayPal, ev.ID, ev.EventType), nil
}

// paypalCustomID parses the custom_id field, which this system writes as a
// JSON object at checkout time. A bare string becomes the user id.
func paypalCustomID(customID string) map[string]string {
	out := map[string]string{}
	if customID == "" {
		return out
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(customID), &m); err == nil {
		for k, v := range m {
			if s, ok := v.(string); ok {
				out[k] = s
			}
		}
		return out
	}
	out[types.MetaUserID] = customID
	return out
}

// paypalAmount parses PayPal's decimal-string amounts into the smallest
// currency unit.
func paypalAmount(total, code string) int64 {
	f, err := strconv.ParseFloat(total, 64)
	if err != nil {
		return 0
	}
	return currency.ToSmallestUnit(f, code)
}

func paypalLastPayment(ev *paypalEvent) (int64, string) {
	lp := ev.Resource.BillingInfo.LastPayment.Amount
	if lp.Value == "" {
		return 0, ""
	}
	return paypalAmount(lp.Value, lp.CurrencyCode), strings.ToUpper(lp.CurrencyCode)
}

func paypalTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
