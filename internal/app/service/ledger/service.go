package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/framefolio/billing/internal/models"
	"github.com/framefolio/billing/pkg/tool"
	"github.com/framefolio/billing/pkg/types"
)

// BeginResult reports whether this delivery owns the event or is a replay.
type BeginResult struct {
	Fresh bool
	// Prior is the previously recorded entry when Fresh is false. Its HTTP
	// status is replayed to the provider without re-running side effects.
	Prior *models.ProcessedWebhookEvent
}

// Ledger is the idempotency ledger over (provider, event id).
type Ledger interface {
	TryBegin(ctx context.Context, provider types.PaymentProvider, eventID string, raw []byte) (*BeginResult, error)
	Commit(ctx context.Context, provider types.PaymentProvider, eventID string, outcome models.WebhookOutcome, eventType types.CanonicalEventType, reference string, httpStatus int, procErr error) error
}

// reclaimAfter bounds how long a received entry may sit unfinalized. A claim
// older than this belongs to a delivery that died between TryBegin and
// Commit; the next redelivery takes the claim over and re-runs processing
// instead of short-circuiting. Well above any webhook handler's lifetime, so
// genuinely in-flight claims are never stolen.
const reclaimAfter = 5 * time.Minute

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewService(db *gorm.DB, log *zap.SugaredLogger) Ledger {
	return &Service{db: db, log: log}
}

// TryBegin claims the (provider, eventID) pair with a single atomic insert.
// Redeliveries can race, so this is an insert-or-detect-duplicate on the
// unique index, never a read-then-write. RowsAffected == 0 means another
// delivery got there first; the prior entry is loaded and returned, unless it
// is an abandoned claim old enough to reclaim, in which case this delivery
// takes it over and processes the event itself.
func (s *Service) TryBegin(ctx context.Context, provider types.PaymentProvider, eventID string, raw []byte) (*BeginResult, error) {
	row := &models.ProcessedWebhookEvent{
		ID:       tool.GenerateUUIDV7(),
		Provider: provider,
		EventID:  eventID,
		Outcome:  models.WebhookOutcomeReceived,
		Data:     datatypes.JSON(raw),
	}

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "event_id"}},
			DoNothing: true,
		}).
		Create(row)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to insert ledger entry: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return &BeginResult{Fresh: true}, nil
	}

	var prior models.ProcessedWebhookEvent
	if err := s.db.WithContext(ctx).
		Where("provider = ? AND event_id = ?", provider, eventID).
		First(&prior).Error; err != nil {
		return nil, fmt.Errorf("failed to load prior ledger entry: %w", err)
	}

	if reclaimable(&prior, time.Now()) {
		won, err := s.reclaim(ctx, provider, eventID)
		if err != nil {
			return nil, err
		}
		if won {
			return &BeginResult{Fresh: true}, nil
		}
		// a concurrent redelivery reclaimed it first; treat as in flight
	}
	return &BeginResult{Fresh: false, Prior: &prior}, nil
}

// reclaimable reports whether a prior entry is an abandoned claim: still
// unfinalized and old enough that the delivery holding it cannot be alive.
// Finalized entries and fresh claims are replayed as duplicates.
func reclaimable(prior *models.ProcessedWebhookEvent, now time.Time) bool {
	return prior.Outcome == models.WebhookOutcomeReceived &&
		now.Sub(prior.UpdatedAt) >= reclaimAfter
}

// reclaim takes over an abandoned claim. The guarded update is the atomic
// step: racing redeliveries all match the same stale row, exactly one update
// lands.
func (s *Service) reclaim(ctx context.Context, provider types.PaymentProvider, eventID string) (bool, error) {
	now := time.Now()
	res := s.db.WithContext(ctx).
		Model(&models.ProcessedWebhookEvent{}).
		Where("provider = ? AND event_id = ? AND outcome = ? AND updated_at <= ?",
			provider, eventID, models.WebhookOutcomeReceived, now.Add(-reclaimAfter)).
		Update("updated_at", now)
	if res.Error != nil {
		return false, fmt.Errorf("failed to reclaim ledger entry: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		s.log.Warnw("reclaimed abandoned ledger entry", "provider", provider, "event_id", eventID)
		return true, nil
	}
	return false, nil
}

// Commit records the final outcome of the delivery that owns the entry.
// Called exactly once per TryBegin that returned Fresh; replays never reach
// here.
func (s *Service) Commit(ctx context.Context, provider types.PaymentProvider, eventID string, outcome models.WebhookOutcome, eventType types.CanonicalEventType, reference string, httpStatus int, procErr error) error {
	updates := map[string]any{
		"outcome":     outcome,
		"event_type":  eventType,
		"reference":   reference,
		"http_status": httpStatus,
	}
	if procErr != nil {
		updates["error"] = lo.ToPtr(procErr.Error())
	}

	res := s.db.WithContext(ctx).
		Model(&models.ProcessedWebhookEvent{}).
		Where("provider = ? AND event_id = ? AND outcome = ?", provider, eventID, models.WebhookOutcomeReceived).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to commit ledger entry: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// entry already finalized; a bug or an operator edit, worth a log
		s.log.Warnw("ledger commit matched no received entry",
			"provider", provider, "event_id", eventID, "outcome", outcome)
	}
	return nil
}
