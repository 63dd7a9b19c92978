package handlers

import (
	"github.com/framefolio/billing/internal/app/service/payment"
	"github.com/framefolio/billing/internal/app/service/records"
	"github.com/framefolio/billing/internal/app/service/stats"
	"github.com/framefolio/billing/internal/app/service/tier"
	"github.com/framefolio/billing/pkg/response"
)

// RespOK is a generic OK envelope for endpoints returning no specific data.
type RespOK struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

// RespSubscription wraps SubscriptionItem in the standard envelope.
type RespSubscription struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    SubscriptionItem         `json:"data"`
}

// RespDowngradeCheck wraps tier.DowngradeCheck in the standard envelope.
type RespDowngradeCheck struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    tier.DowngradeCheck      `json:"data"`
}

// RespChargeResult wraps payment.ChargeResult in the standard envelope.
type RespChargeResult struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    payment.ChargeResult     `json:"data"`
}

// RespRefundResult wraps payment.RefundResult in the standard envelope.
type RespRefundResult struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    payment.RefundResult     `json:"data"`
}

// RespListPayments wraps records.ScanPaymentsResponse in the standard envelope.
type RespListPayments struct {
	Code    response.APIResponseCode     `json:"code"`
	Message string                       `json:"message"`
	Data    records.ScanPaymentsResponse `json:"data"`
}

// RespListWebhookEvents wraps records.ScanWebhookEventsResponse in the standard envelope.
type RespListWebhookEvents struct {
	Code    response.APIResponseCode          `json:"code"`
	Message string                            `json:"message"`
	Data    records.ScanWebhookEventsResponse `json:"data"`
}

// RespStatistics wraps stats.StatisticResponse in the standard envelope.
type RespStatistics struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    stats.StatisticResponse  `json:"data"`
}
