package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/framefolio/billing/pkg/types"
)

type WebhookOutcome string

const (
	// WebhookOutcomeReceived is the state between TryBegin and Commit. A row
	// abandoned in this state belongs to a delivery that died mid-processing;
	// a later redelivery reclaims it and re-runs the event.
	WebhookOutcomeReceived  WebhookOutcome = "received"
	WebhookOutcomeProcessed WebhookOutcome = "processed"
	WebhookOutcomeFailed    WebhookOutcome = "failed"
)

// ProcessedWebhookEvent is one idempotency-ledger entry. The unique
// (provider, event_id) index is the concurrency primitive that makes event
// processing at-most-once effective: the insert either lands or collides.
type ProcessedWebhookEvent struct {
	ID       string                `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Provider types.PaymentProvider `gorm:"column:provider;type:varchar(32);not null;uniqueIndex:unique_provider_event_id,priority:1" json:"provider"`
	// EventID is the provider's event id, or a derived stable key for
	// providers that do not ship one.
	EventID   string                   `gorm:"column:event_id;type:varchar(191);not null;uniqueIndex:unique_provider_event_id,priority:2" json:"event_id"`
	Outcome   WebhookOutcome           `gorm:"column:outcome;type:varchar(32);not null" json:"outcome"`
	EventType types.CanonicalEventType `gorm:"column:event_type;type:varchar(64)" json:"event_type"`
	// Reference is the transaction/subscription identifier the event was about.
	Reference  string         `gorm:"column:reference;type:varchar(191)" json:"reference"`
	HTTPStatus int            `gorm:"column:http_status" json:"http_status"`
	Error      *string        `gorm:"column:error;type:text" json:"error"`
	Data       datatypes.JSON `gorm:"column:data;type:jsonb" json:"data"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

func (ProcessedWebhookEvent) TableName() string { return "processed_webhook_event" }
