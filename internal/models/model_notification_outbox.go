package models

import (
	"time"

	"gorm.io/datatypes"
)

type NotificationStatus string

const (
	NotificationStatusPending NotificationStatus = "pending"
	NotificationStatusSent    NotificationStatus = "sent"
	NotificationStatusFailed  NotificationStatus = "failed"
)

// NotificationOutbox defers notification dispatch out of webhook transactions.
// Rows are written inside the subscription transaction and delivered by the
// background worker, so a rolled-back transition never notifies and a
// committed one notifies at most once.
type NotificationOutbox struct {
	ID        string             `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID    string             `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	Category  string             `gorm:"column:category;type:varchar(64);not null" json:"category"`
	Type      string             `gorm:"column:type;type:varchar(64);not null" json:"type"`
	Title     string             `gorm:"column:title;type:varchar(255);not null" json:"title"`
	Body      string             `gorm:"column:body;type:text" json:"body"`
	ActionURL *string            `gorm:"column:action_url;type:varchar(512)" json:"action_url"`
	Metadata  datatypes.JSONMap  `gorm:"column:metadata;type:jsonb;default:'{}'" json:"metadata"`
	Status    NotificationStatus `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	Attempts  int                `gorm:"column:attempts;not null;default:0" json:"attempts"`
	SentAt    *time.Time         `gorm:"column:sent_at;default:null" json:"sent_at"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

func (NotificationOutbox) TableName() string { return "notification_outbox" }
