package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/framefolio/billing/internal/models"
	"github.com/framefolio/billing/pkg/logctx"
	"github.com/framefolio/billing/pkg/tool"

	"github.com/samber/lo"
)

// Notifier delivers one notification to the user-facing notification system.
type Notifier interface {
	Notify(ctx context.Context, n *models.NotificationOutbox) error
}

// Notification categories and types emitted by the billing flows.
const (
	CategoryBilling = "billing"

	TypeSubscriptionActivated = "subscription_activated"
	TypeSubscriptionRenewed   = "subscription_renewed"
	TypeSubscriptionCanceled  = "subscription_canceled"
	TypePaymentFailed         = "payment_failed"
)

type Service struct {
	db       *gorm.DB
	log      *zap.SugaredLogger
	notifier Notifier
}

func NewService(db *gorm.DB, log *zap.SugaredLogger, notifier Notifier) *Service {
	return &Service{db: db, log: log, notifier: notifier}
}

// Enqueue records a pending notification inside the caller's transaction.
// Delivery happens after commit, from the background worker; a rolled-back
// transaction leaves no row and therefore no notification.
func (s *Service) Enqueue(ctx context.Context, tx *gorm.DB, userID, typ, title, body string, metadata map[string]any) error {
	row := &models.NotificationOutbox{
		ID:       tool.GenerateUUIDV7(),
		UserID:   userID,
		Category: CategoryBilling,
		Type:     typ,
		Title:    title,
		Body:     body,
		Metadata: datatypes.JSONMap(metadata),
		Status:   models.NotificationStatusPending,
	}
	return tx.WithContext(ctx).Create(row).Error
}

// DispatchPending delivers queued notifications, oldest first. Each row is
// claimed by flipping pending->sent before calling the notifier would risk
// losing it on crash, so the row is marked sent only after a successful call;
// a crash in between can at worst re-send one notification.
func (s *Service) DispatchPending(ctx context.Context, batch int) int {
	var rows []*models.NotificationOutbox
	err := s.db.WithContext(ctx).
		Where("status = ?", models.NotificationStatusPending).
		Order("created_at asc").
		Limit(batch).
		Find(&rows).Error
	if err != nil {
		s.log.Errorw("failed to load pending notifications", "error", err.Error())
		return 0
	}

	sent := 0
	for _, row := range rows {
		if err := s.notifier.Notify(ctx, row); err != nil {
			logctx.FromCtx(ctx, s.log).Warnw("notification dispatch failed",
				"id", row.ID, "type", row.Type, "error", err.Error())
			updates := map[string]any{"attempts": gorm.Expr("attempts + 1")}
			if row.Attempts+1 >= maxAttempts {
				updates["status"] = models.NotificationStatusFailed
			}
			if err := s.db.WithContext(ctx).Model(row).Updates(updates).Error; err != nil {
				s.log.Errorw("failed to record notification attempt", "id", row.ID, "error", err.Error())
			}
			continue
		}
		now := time.Now()
		if err := s.db.WithContext(ctx).Model(row).Updates(map[string]any{
			"status":   models.NotificationStatusSent,
			"sent_at":  lo.ToPtr(now),
			"attempts": gorm.Expr("attempts + 1"),
		}).Error; err != nil {
			s.log.Errorw("failed to mark notification sent", "id", row.ID, "error", err.Error())
			continue
		}
		sent++
	}
	return sent
}

const maxAttempts = 5
