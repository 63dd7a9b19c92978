package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/framefolio/billing/internal/app/service/notify"
	"github.com/framefolio/billing/internal/models"
	"github.com/framefolio/billing/pkg/config"
	"github.com/framefolio/billing/pkg/logctx"
	"github.com/framefolio/billing/pkg/tool"
	"github.com/framefolio/billing/pkg/types"
)

var (
	// ErrNoActiveSubscription is returned by the user-initiated cancel path
	// when there is nothing to cancel.
	ErrNoActiveSubscription = errors.New("no active subscription")
)

type Service struct {
	cfg      *config.Config
	db       *gorm.DB
	log      *zap.SugaredLogger
	notifSvc *notify.Service
}

func NewService(cfg *config.Config, db *gorm.DB, log *zap.SugaredLogger, notifSvc *notify.Service) *Service {
	return &Service{cfg: cfg, db: db, log: log, notifSvc: notifSvc}
}

// Apply drives one normalized event through the state machine. All mutation
// of a subscription happens inside a transaction holding a row lock on that
// subscription, so near-simultaneous events about the same external id apply
// in a serialized order. Notifications are enqueued in-transaction and
// dispatched after commit by the outbox worker; nothing external is called
// while the lock is held.
func (s *Service) Apply(ctx context.Context, ev *types.CanonicalEvent) error {
	switch ev.Type {
	case types.EventSubscriptionActivated:
		return s.applyActivated(ctx, ev)
	case types.EventSubscriptionUpdated:
		return s.applyUpdated(ctx, ev)
	case types.EventSubscriptionCancelled:
		return s.applyCancelled(ctx, ev)
	case types.EventSubscriptionPaymentFailed:
		return s.applyPaymentFailed(ctx, ev)
	case types.EventPaymentCompleted:
		return s.applyPaymentCompleted(ctx, ev)
	case types.EventPaymentRefunded:
		return s.applyPaymentRefunded(ctx, ev)
	case types.EventPaymentFailed:
		// the synchronous charge path reports its own failures; nothing to do
		logctx.FromCtx(ctx, s.log).Infow("payment.failed ignored",
			"provider", ev.Provider, "reference", ev.Reference)
		return nil
	case types.EventUnhandled:
		return nil
	default:
		return fmt.Errorf("unsupported canonical event type: %s", ev.Type)
	}
}

// applyActivated creates the subscription on first sight of the external id.
// Re-delivery of the same activation finds the row and no-ops. A user's prior
// non-terminal subscription is expired as superseded, keeping the one
// non-terminal row per user invariant.
func (s *Service) applyActivated(ctx context.Context, ev *types.CanonicalEvent) error {
	userID := ev.UserID()
	tier := types.Tier(ev.Metadata[types.MetaTier])
	cycle := types.BillingCycle(ev.Metadata[types.MetaBillingCycle])
	if userID == "" || !tier.Valid() || !cycle.Valid() {
		return fmt.Errorf("activation missing metadata: user_id=%q tier=%q cycle=%q", userID, tier, cycle)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.lockByExternalID(ctx, tx, ev.Provider, ev.Reference)
		if err != nil {
			return err
		}
		if existing != nil {
			logctx.FromCtx(ctx, s.log).Infow("activation replayed for known subscription",
				"provider", ev.Provider, "external_id", ev.Reference)
			return nil
		}

		if err := s.expireSuperseded(ctx, tx, userID, ev); err != nil {
			return err
		}

		now := time.Now()
		start, end := activationPeriod(ev, cycle, now)
		sub := &models.Subscription{
			ID:                 tool.GenerateUUIDV7(),
			UserID:             userID,
			Tier:               tier,
			Cycle:              cycle,
			Status:             types.SubscriptionStatusActive,
			Provider:           ev.Provider,
			ExternalID:         ev.Reference,
			Amount:             ev.Amount,
			Currency:           ev.Currency,
			CurrentPeriodStart: start,
			CurrentPeriodEnd:   end,
			Extra:              datatypes.JSON([]byte(`{}`)),
		}
		if err := tx.Create(sub).Error; err != nil {
			return fmt.Errorf("failed to create subscription: %w", err)
		}

		if err := s.recordPayment(ctx, tx, sub, ev, models.PaymentKindCheckout); err != nil {
			return err
		}
		if err := s.notifSvc.Enqueue(ctx, tx, userID, notify.TypeSubscriptionActivated,
			"Subscription activated",
			fmt.Sprintf("Your %s plan is now active.", tier),
			map[string]any{"tier": string(tier), "billing_cycle": string(cycle)}); err != nil {
			return fmt.Errorf("failed to enqueue notification: %w", err)
		}

		return s.writeLog(ctx, tx, nil, sub, ev.Type)
	})
}

// applyUpdated mirrors the provider's report onto the local row. The provider
// is the source of truth for period boundaries, so they are copied verbatim
// when present.
func (s *Service) applyUpdated(ctx context.Context, ev *types.CanonicalEvent) error {
	return s.mutateByExternalID(ctx, ev, func(tx *gorm.DB, sub *models.Subscription) error {
		if ev.PeriodStart != nil {
			sub.CurrentPeriodStart = *ev.PeriodStart
		}
		if ev.PeriodEnd != nil {
			sub.CurrentPeriodEnd = *ev.PeriodEnd
		}
		if ev.Amount > 0 {
			sub.Amount = ev.Amount
		}
		if ev.Currency != "" {
			sub.Currency = ev.Currency
		}

		switch providerStatusToCanonical(string(ev.Status)) {
		case types.SubscriptionStatusPastDue:
			sub.Status = types.SubscriptionStatusPastDue
		case types.SubscriptionStatusActive:
			sub.Status = types.SubscriptionStatusActive
		case types.SubscriptionStatusCanceled:
			now := time.Now()
			sub.Status = cancelStatus(ev.CancelAtPeriodEnd, s.cfg.Cancel.GraceOnPeriodEnd, sub.CurrentPeriodEnd, now)
			if sub.CanceledAt == nil {
				sub.CanceledAt = &now
			}
		case types.SubscriptionStatusExpired:
			sub.Status = types.SubscriptionStatusExpired
		}
		return nil
	})
}

func (s *Service) applyCancelled(ctx context.Context, ev *types.CanonicalEvent) error {
	return s.mutateByExternalID(ctx, ev, func(tx *gorm.DB, sub *models.Subscription) error {
		now := time.Now()
		sub.CanceledAt = &now
		sub.Status = cancelStatus(ev.CancelAtPeriodEnd, s.cfg.Cancel.GraceOnPeriodEnd, sub.CurrentPeriodEnd, now)

		return s.notifSvc.Enqueue(ctx, tx, sub.UserID, notify.TypeSubscriptionCanceled,
			"Subscription canceled",
			cancelBody(sub.Status, sub.CurrentPeriodEnd),
			map[string]any{"tier": string(sub.Tier)})
	})
}

func (s *Service) applyPaymentFailed(ctx context.Context, ev *types.CanonicalEvent) error {
	return s.mutateByExternalID(ctx, ev, func(tx *gorm.DB, sub *models.Subscription) error {
		if sub.Status.Terminal() {
			return nil
		}
		sub.Status = types.SubscriptionStatusPastDue

		return s.notifSvc.Enqueue(ctx, tx, sub.UserID, notify.TypePaymentFailed,
			"Payment failed",
			"We could not charge your payment method. Please update it to keep your subscription.",
			map[string]any{"tier": string(sub.Tier)})
	})
}

// applyPaymentCompleted handles renewal invoices: extend the period, heal
// past-due, book the payment. A completed payment that references no known
// subscription is booked as a plain charge when it carries a user, otherwise
// discarded as unknown.
func (s *Service) applyPaymentCompleted(ctx context.Context, ev *types.CanonicalEvent) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.lockByExternalID(ctx, tx, ev.Provider, ev.Reference)
		if err != nil {
			return err
		}
		if sub == nil {
			if userID := ev.UserID(); userID != "" {
				return s.recordPayment(ctx, tx, &models.Subscription{UserID: userID}, ev, models.PaymentKindCharge)
			}
			logctx.FromCtx(ctx, s.log).Warnw("payment for unknown subscription discarded",
				"provider", ev.Provider, "reference", ev.Reference)
			return nil
		}
		if sub.Status.Terminal() {
			logctx.FromCtx(ctx, s.log).Warnw("payment for terminal subscription ignored",
				"provider", ev.Provider, "external_id", sub.ExternalID, "status", sub.Status)
			return nil
		}

		cp := *sub

		now := time.Now()
		sub.CurrentPeriodStart = sub.CurrentPeriodEnd
		if ev.PeriodStart != nil {
			sub.CurrentPeriodStart = *ev.PeriodStart
		}
		sub.CurrentPeriodEnd = renewalPeriodEnd(ev.PeriodEnd, sub.CurrentPeriodEnd, sub.Cycle, now)
		if sub.Status == types.SubscriptionStatusPastDue {
			sub.Status = types.SubscriptionStatusActive
		}
		if err := tx.Save(sub).Error; err != nil {
			return fmt.Errorf("failed to save subscription: %w", err)
		}

		if err := s.recordPayment(ctx, tx, sub, ev, models.PaymentKindRenewal); err != nil {
			return err
		}
		if err := s.notifSvc.Enqueue(ctx, tx, sub.UserID, notify.TypeSubscriptionRenewed,
			"Subscription renewed",
			fmt.Sprintf("Your %s plan has been renewed until %s.", sub.Tier, sub.CurrentPeriodEnd.Format("2 Jan 2006")),
			map[string]any{"tier": string(sub.Tier)}); err != nil {
			return fmt.Errorf("failed to enqueue notification: %w", err)
		}

		return s.writeLog(ctx, tx, &cp, sub, ev.Type)
	})
}

func (s *Service) applyPaymentRefunded(ctx context.Context, ev *types.CanonicalEvent) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.lockByExternalID(ctx, tx, ev.Provider, ev.Reference)
		if err != nil {
			return err
		}
		userID := ev.UserID()
		if sub != nil {
			userID = sub.UserID
		}
		if userID == "" {
			logctx.FromCtx(ctx, s.log).Warnw("refund for unknown subscription discarded",
				"provider", ev.Provider, "reference", ev.Reference)
			return nil
		}

		refund := *ev
		if refund.Amount > 0 {
			refund.Amount = -refund.Amount
		}
		target := sub
		if target == nil {
			target = &models.Subscription{UserID: userID}
		}
		return s.recordPayment(ctx, tx, target, &refund, models.PaymentKindRefund)
	})
}

// CancelByUser applies a cancellation on a user's behalf. The user-facing
// handler validates the downgrade against usage before calling this; the
// admin handler calls it directly as the forced bypass. Mutation happens
// under the same per-subscription lock the webhook path uses, so the two
// cannot race.
func (s *Service) CancelByUser(ctx context.Context, userID string) (*models.Subscription, error) {
	var result *models.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sub models.Subscription
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND status IN ?", userID, []types.SubscriptionStatus{
				types.SubscriptionStatusActive,
				types.SubscriptionStatusPastDue,
				types.SubscriptionStatusGracePeriod,
			}).
			First(&sub).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNoActiveSubscription
		}
		if err != nil {
			return fmt.Errorf("failed to load subscription: %w", err)
		}

		cp := sub
		now := time.Now()
		sub.CanceledAt = &now
		sub.Status = cancelStatus(true, s.cfg.Cancel.GraceOnPeriodEnd, sub.CurrentPeriodEnd, now)
		if err := tx.Save(&sub).Error; err != nil {
			return fmt.Errorf("failed to save subscription: %w", err)
		}

		if err := s.notifSvc.Enqueue(ctx, tx, sub.UserID, notify.TypeSubscriptionCanceled,
			"Subscription canceled",
			cancelBody(sub.Status, sub.CurrentPeriodEnd),
			map[string]any{"tier": string(sub.Tier)}); err != nil {
			return fmt.Errorf("failed to enqueue notification: %w", err)
		}
		if err := s.writeLog(ctx, tx, &cp, &sub, types.EventSubscriptionCancelled); err != nil {
			return err
		}

		result = &sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// expiredEventType tags sweep-driven transitions in the audit log; no
// provider event backs them.
const expiredEventType = types.CanonicalEventType("subscription.expired")

// ExpireLapsed finalizes grace-period subscriptions whose paid period has
// ended. Stripe and PayPal eventually deliver a terminal webhook for these,
// but Paystack and Flutterwave do not for user-initiated cancels, so the
// sweep is what retires those rows. Returns how many were expired.
func (s *Service) ExpireLapsed(ctx context.Context) (int, error) {
	var expired int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		var due []*models.Subscription
		err := tx.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("status = ? AND current_period_end <= ?", types.SubscriptionStatusGracePeriod, now).
			Find(&due).Error
		if err != nil {
			return fmt.Errorf("failed to load lapsed subscriptions: %w", err)
		}

		for _, sub := range due {
			if !lapsed(sub.Status, sub.CurrentPeriodEnd, now) {
				continue
			}
			cp := *sub
			sub.Status = types.SubscriptionStatusExpired
			if err := tx.Save(sub).Error; err != nil {
				return fmt.Errorf("failed to expire subscription: %w", err)
			}
			if err := s.writeLog(ctx, tx, &cp, sub, expiredEventType); err != nil {
				return err
			}
			expired++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		logctx.FromCtx(ctx, s.log).Infow("expired lapsed subscriptions", "count", expired)
	}
	return expired, nil
}

// GetByUser returns the user's latest subscription, non-terminal preferred.
func (s *Service) GetByUser(ctx context.Context, userID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// mutateByExternalID is the shared transition shell: lock the row, run fn,
// save, write the change log, all in one transaction. Unknown external ids
// are logged and discarded as no-ops; a webhook can refer to a subscription
// this system never created.
func (s *Service) mutateByExternalID(ctx context.Context, ev *types.CanonicalEvent, fn func(tx *gorm.DB, sub *models.Subscription) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.lockByExternalID(ctx, tx, ev.Provider, ev.Reference)
		if err != nil {
			return err
		}
		if sub == nil {
			logctx.FromCtx(ctx, s.log).Warnw("event for unknown subscription discarded",
				"provider", ev.Provider, "event_type", ev.Type, "reference", ev.Reference)
			return nil
		}

		cp := *sub
		if err := fn(tx, sub); err != nil {
			return err
		}
		if err := tx.Save(sub).Error; err != nil {
			return fmt.Errorf("failed to save subscription: %w", err)
		}
		return s.writeLog(ctx, tx, &cp, sub, ev.Type)
	})
}

func (s *Service) lockByExternalID(ctx context.Context, tx *gorm.DB, provider types.PaymentProvider, externalID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("provider = ? AND external_id = ?", provider, externalID).
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock subscription: %w", err)
	}
	return &sub, nil
}

// expireSuperseded closes any other non-terminal subscription of the user
// before a new one is created.
func (s *Service) expireSuperseded(ctx context.Context, tx *gorm.DB, userID string, ev *types.CanonicalEvent) error {
	var others []*models.Subscription
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND status IN ?", userID, []types.SubscriptionStatus{
			types.SubscriptionStatusActive,
			types.SubscriptionStatusPastDue,
			types.SubscriptionStatusGracePeriod,
		}).
		Find(&others).Error
	if err != nil {
		return fmt.Errorf("failed to load prior subscriptions: %w", err)
	}

	for _, prior := range others {
		logctx.FromCtx(ctx, s.log).Warnw("expiring superseded subscription",
			"user_id", userID, "old_external_id", prior.ExternalID, "new_external_id", ev.Reference)
		prior.Status = types.SubscriptionStatusExpired
		if err := tx.Save(prior).Error; err != nil {
			return fmt.Errorf("failed to expire superseded subscription: %w", err)
		}
	}
	return nil
}

// recordPayment books one money movement, idempotently on
// (provider, provider_ref).
func (s *Service) recordPayment(ctx context.Context, tx *gorm.DB, sub *models.Subscription, ev *types.CanonicalEvent, kind models.PaymentKind) error {
	if ev.Amount == 0 {
		return nil
	}
	row := &models.PaymentRecord{
		ID:          tool.GenerateUUIDV7(),
		UserID:      sub.UserID,
		Provider:    ev.Provider,
		ProviderRef: paymentRef(ev, kind),
		Kind:        kind,
		Amount:      ev.Amount,
		Currency:    ev.Currency,
		PaidAt:      time.Now(),
		Extra:       datatypes.JSON([]byte(`{}`)),
	}
	if sub.ID != "" {
		row.SubscriptionID = &sub.ID
	}
	res := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "provider_ref"}},
			DoNothing: true,
		}).
		Create(row)
	if res.Error != nil {
		return fmt.Errorf("failed to record payment: %w", res.Error)
	}
	return nil
}

// paymentRef derives a per-movement reference. Renewals and refunds reuse the
// event id so each invoice/refund books once even though they share the
// subscription reference.
func paymentRef(ev *types.CanonicalEvent, kind models.PaymentKind) string {
	switch kind {
	case models.PaymentKindRenewal, models.PaymentKindRefund:
		return ev.EventID
	}
	return ev.Reference
}

func activationPeriod(ev *types.CanonicalEvent, cycle types.BillingCycle, now time.Time) (time.Time, time.Time) {
	start := now
	if ev.PeriodStart != nil {
		start = *ev.PeriodStart
	}
	end := addCycle(start, cycle)
	if ev.PeriodEnd != nil {
		end = *ev.PeriodEnd
	}
	return start, end
}

func cancelBody(status types.SubscriptionStatus, periodEnd time.Time) string {
	if status == types.SubscriptionStatusGracePeriod {
		return fmt.Sprintf("Your subscription will remain active until %s.", periodEnd.Format("2 Jan 2006"))
	}
	return "Your subscription has been canceled."
}

// writeLog books the transition snapshot in the same transaction as the
// mutation, so the audit trail commits or rolls back with it.
func (s *Service) writeLog(ctx context.Context, tx *gorm.DB, before, after *models.Subscription, eventType types.CanonicalEventType) error {
	if err := tx.WithContext(ctx).Create(newTransitionLog(before, after, eventType)).Error; err != nil {
		return fmt.Errorf("failed to save subscription log: %w", err)
	}
	return nil
}

func newTransitionLog(before, after *models.Subscription, eventType types.CanonicalEventType) *models.SubscriptionLog {
	return &models.SubscriptionLog{
		ID:             tool.GenerateUUIDV7(),
		UserID:         after.UserID,
		SubscriptionID: after.ID,
		EventType:      eventType,
		Before:         datatypes.NewJSONType(before),
		After:          datatypes.NewJSONType(after),
		Extra:          datatypes.JSONMap{},
	}
}
