package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/framefolio/billing/pkg/types"
)

// Subscription is the canonical reconciled subscription record. One row per
// checkout; at most one non-terminal row per user at a time. Rows are never
// hard-deleted: terminal subscriptions stay for audit and history.
type Subscription struct {
	ID     string                   `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID string                   `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	Tier   types.Tier               `gorm:"column:tier;type:varchar(32);not null" json:"tier"`
	Cycle  types.BillingCycle       `gorm:"column:billing_cycle;type:varchar(32);not null" json:"billing_cycle"`
	Status types.SubscriptionStatus `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	// Provider + ExternalID identify the provider-side subscription. Unique
	// across all rows ever created; events are keyed by this pair.
	Provider   types.PaymentProvider `gorm:"column:provider;type:varchar(32);not null;uniqueIndex:unique_provider_external_id,priority:1" json:"provider"`
	ExternalID string                `gorm:"column:external_id;type:varchar(128);not null;uniqueIndex:unique_provider_external_id,priority:2" json:"external_id"`
	// Amount in the smallest currency unit.
	Amount   int64  `gorm:"column:amount;type:bigint;not null" json:"amount"`
	Currency string `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	// CurrentPeriodStart/End mirror the provider's reported billing period.
	CurrentPeriodStart time.Time  `gorm:"column:current_period_start" json:"current_period_start"`
	CurrentPeriodEnd   time.Time  `gorm:"column:current_period_end" json:"current_period_end"`
	CanceledAt         *time.Time `gorm:"column:canceled_at;default:null" json:"canceled_at"`
	// Extra stores additional JSON data (promotion details, provider quirks).
	Extra     datatypes.JSON `gorm:"column:extra;type:jsonb;default:'{}'" json:"extra"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscription"
}

// Entitled reports whether the subscription currently grants paid access.
func (s *Subscription) Entitled(now time.Time) bool {
	if s == nil || !s.Status.Entitled() {
		return false
	}
	if s.Status == types.SubscriptionStatusGracePeriod {
		return s.CurrentPeriodEnd.After(now)
	}
	return true
}
