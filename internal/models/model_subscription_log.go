package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/framefolio/billing/pkg/types"
)

// SubscriptionLog snapshots a subscription before and after each state-machine
// transition. Written asynchronously after the transaction commits.
type SubscriptionLog struct {
	ID             string                            `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID         string                            `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	SubscriptionID string                            `gorm:"column:subscription_id;type:uuid;index" json:"subscription_id"`
	EventType      types.CanonicalEventType          `gorm:"column:event_type;type:varchar(64);not null" json:"event_type"`
	Before         datatypes.JSONType[*Subscription] `gorm:"column:before;type:jsonb" json:"before"`
	After          datatypes.JSONType[*Subscription] `gorm:"column:after;type:jsonb" json:"after"`
	Extra          datatypes.JSONMap                 `gorm:"column:extra;type:jsonb;default:'{}'" json:"extra"`
	CreatedAt      time.Time                         `json:"created_at"`
}

func (SubscriptionLog) TableName() string { return "subscription_log" }
