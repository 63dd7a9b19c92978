package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/framefolio/billing/internal/models"
)

func TestReclaimable(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		outcome models.WebhookOutcome
		age     time.Duration
		want    bool
	}{
		{"abandoned received entry", models.WebhookOutcomeReceived, reclaimAfter + time.Minute, true},
		{"received entry at the threshold", models.WebhookOutcomeReceived, reclaimAfter, true},
		{"received entry still in flight", models.WebhookOutcomeReceived, time.Second, false},
		{"processed entry never reclaimed", models.WebhookOutcomeProcessed, 24 * time.Hour, false},
		{"failed entry never reclaimed", models.WebhookOutcomeFailed, 24 * time.Hour, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prior := &models.ProcessedWebhookEvent{
				Outcome:   tt.outcome,
				UpdatedAt: now.Add(-tt.age),
			}
			require.Equal(t, tt.want, reclaimable(prior, now))
		})
	}
}
