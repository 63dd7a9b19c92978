package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/framefolio/billing/internal/app/service/currency"
	"github.com/framefolio/billing/pkg/types"
)

const gatewayTimeout = 15 * time.Second

// stripeGateway creates PaymentIntents via Stripe's form-encoded API.
type stripeGateway struct {
	secretKey  string
	apiBase    string
	httpClient *http.Client
}

func NewStripeGateway(secretKey, apiBase string) Gateway {
	return &stripeGateway{
		secretKey:  secretKey,
		apiBase:    strings.TrimRight(apiBase, "/"),
		httpClient: &http.Client{Timeout: gatewayTimeout},
	}
}

func (g *stripeGateway) ID() types.PaymentProvider { return types.PaymentProviderStripe }

func (g *stripeGateway) Charge(ctx context.Context, req *ChargeRequest, amountSmallest int64, reference string) (*ChargeResult, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amountSmallest, 10))
	form.Set("currency", strings.ToLower(req.Currency))
	form.Set("receipt_email", req.Email)
	form.Set("metadata[user_id]", req.UserID)
	form.Set("metadata[reference]", reference)
	for k, v := range req.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	var out struct {
		ID           string `json:"id"`
		Status       string `json:"status"`
		ClientSecret string `json:"client_secret"`
	}
	if err := g.do(ctx, "/v1/payment_intents", form, &out); err != nil {
		return nil, err
	}
	return &ChargeResult{Reference: out.ID, Status: out.Status, ClientSecret: out.ClientSecret}, nil
}

func (g *stripeGateway) Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	form := url.Values{}
	form.Set("payment_intent", req.Reference)
	if req.Amount > 0 {
		form.Set("amount", strconv.FormatInt(currency.ToSmallestUnit(req.Amount, "USD"), 10))
	}
	if req.Reason != "" {
		form.Set("reason", req.Reason)
	}

	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := g.do(ctx, "/v1/refunds", form, &out); err != nil {
		return nil, err
	}
	return &RefundResult{Reference: out.ID, Status: out.Status}, nil
}

func (g *stripeGateway) do(ctx context.Context, path string, form url.Values, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiBase+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Authorization", "Bearer "+g.secretKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stripe %s returned %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// paystackGateway initializes redirect-based transactions.
type paystackGateway struct {
	secretKey  string
	apiBase    string
	httpClient *http.Client
}

func NewPaystackGateway(secretKey, apiBase string) Gateway {
	return &paystackGateway{
		secretKey:  secretKey,
		apiBase:    strings.TrimRight(apiBase, "/"),
		httpClient: &http.Client{Timeout: gatewayTimeout},
	}
}

func (g *paystackGateway) ID() types.PaymentProvider { return types.PaymentProviderPaystack }

func (g *paystackGateway) Charge(ctx context.Context, req *ChargeRequest, amountSmallest int64, reference string) (*ChargeResult, error) {
	meta := map[string]string{"user_id": req.UserID}
	for k, v := range req.Metadata {
		meta[k] = v
	}
	body := map[string]any{
		"email":     req.Email,
		"amount":    amountSmallest,
		"currency":  strings.ToUpper(req.Currency),
		"reference": reference,
		"metadata":  meta,
	}

	var out struct {
		Status bool `json:"status"`
		Data   struct {
			AuthorizationURL string `json:"authorization_url"`
			Reference        string `json:"reference"`
		} `json:"data"`
	}
	if err := g.do(ctx, "/transaction/initialize", body, &out); err != nil {
		return nil, err
	}
	if !out.Status {
		return nil, fmt.Errorf("paystack rejected transaction initialization")
	}
	return &ChargeResult{
		Reference:        out.Data.Reference,
		Status:           "pending",
		AuthorizationURL: out.Data.AuthorizationURL,
	}, nil
}

func (g *paystackGateway) Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	body := map[string]any{"transaction": req.Reference}
	if req.Amount > 0 {
		body["amount"] = currency.ToSmallestUnit(req.Amount, "NGN")
	}
	if req.Reason != "" {
		body["merchant_note"] = req.Reason
	}

	var out struct {
		Status bool `json:"status"`
		Data   struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := g.do(ctx, "/refund", body, &out); err != nil {
		return nil, err
	}
	if !out.Status {
		return nil, fmt.Errorf("paystack rejected refund")
	}
	return &RefundResult{Reference: req.Reference, Status: out.Data.Status}, nil
}

func (g *paystackGateway) do(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiBase+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.secretKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("paystack %s returned %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// flutterwaveGateway creates hosted payment links.
type flutterwaveGateway struct {
	secretKey  string
	apiBase    string
	httpClient *http.Client
}

func NewFlutterwaveGateway(secretKey, apiBase string) Gateway {
	return &flutterwaveGateway{
		secretKey:  secretKey,
		apiBase:    strings.TrimRight(apiBase, "/"),
		httpClient: &http.Client{Timeout: gatewayTimeout},
	}
}

func (g *flutterwaveGateway) ID() types.PaymentProvider { return types.PaymentProviderFlutterwave }

func (g *flutterwaveGateway) Charge(ctx context.Context, req *ChargeRequest, amountSmallest int64, reference string) (*ChargeResult, error) {
	code := strings.ToUpper(req.Currency)
	meta := map[string]string{"user_id": req.UserID}
	for k, v := range req.Metadata {
		meta[k] = v
	}
	body := map[string]any{
		"tx_ref":   reference,
		"amount":   currency.FromSmallestUnit(amountSmallest, code),
		"currency": code,
		"customer": map[string]string{"email": req.Email},
		"meta":     meta,
	}

	var out struct {
		Status string `json:"status"`
		Data   struct {
			Link string `json:"link"`
		} `json:"data"`
	}
	if err := g.do(ctx, "/v3/payments", body, &out); err != nil {
		return nil, err
	}
	if out.Status != "success" {
		return nil, fmt.Errorf("flutterwave rejected payment creation: %s", out.Status)
	}
	return &ChargeResult{
		Reference:        reference,
		Status:           "pending",
		AuthorizationURL: out.Data.Link,
	}, nil
}

func (g *flutterwaveGateway) Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	body := map[string]any{}
	if req.Amount > 0 {
		body["amount"] = req.Amount
	}

	var out struct {
		Status string `json:"status"`
	}
	path := fmt.Sprintf("/v3/transactions/%s/refund", url.PathEscape(req.Reference))
	if err := g.do(ctx, path, body, &out); err != nil {
		return nil, err
	}
	if out.Status != "success" {
		return nil, fmt.Errorf("flutterwave rejected refund: %s", out.Status)
	}
	return &RefundResult{Reference: req.Reference, Status: out.Status}, nil
}

func (g *flutterwaveGateway) do(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiBase+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.secretKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("flutterwave %s returned %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
