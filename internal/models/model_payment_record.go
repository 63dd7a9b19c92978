package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/framefolio/billing/pkg/types"
)

type PaymentKind string

const (
	PaymentKindCheckout PaymentKind = "checkout"
	PaymentKindRenewal  PaymentKind = "renewal"
	PaymentKindCharge   PaymentKind = "charge"
	PaymentKindRefund   PaymentKind = "refund"
)

// PaymentRecord is one settled money movement. Rows feed the admin listing
// and revenue statistics; (provider, provider_ref) is unique so a replayed
// payment event cannot double-book.
type PaymentRecord struct {
	ID       string                `gorm:"column:id;type:uuid;primary_key;index:idx_user_id_id,priority:2,sort:desc" json:"id"`
	UserID   string                `gorm:"column:user_id;type:varchar(64);not null;index:idx_user_id_id,priority:1" json:"user_id"`
	Provider types.PaymentProvider `gorm:"column:provider;type:varchar(32);not null;uniqueIndex:unique_provider_ref,priority:1" json:"provider"`
	// ProviderRef is the provider-side charge/transaction reference.
	ProviderRef string      `gorm:"column:provider_ref;type:varchar(191);not null;uniqueIndex:unique_provider_ref,priority:2" json:"provider_ref"`
	Kind        PaymentKind `gorm:"column:kind;type:varchar(32);not null" json:"kind"`
	// SubscriptionID links renewals/checkouts to their subscription row.
	SubscriptionID *string `gorm:"column:subscription_id;type:uuid;index" json:"subscription_id"`
	// Amount in the smallest currency unit; negative for refunds.
	Amount    int64          `gorm:"column:amount;type:bigint;not null" json:"amount"`
	Currency  string         `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	PaidAt    time.Time      `gorm:"column:paid_at;not null;index" json:"paid_at"`
	Extra     datatypes.JSON `gorm:"column:extra;type:jsonb;default:'{}'" json:"extra"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (PaymentRecord) TableName() string { return "payment_record" }
