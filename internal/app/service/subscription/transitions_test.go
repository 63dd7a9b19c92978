package subscription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/framefolio/billing/internal/models"
	"github.com/framefolio/billing/pkg/types"
)

func TestProviderStatusToCanonical(t *testing.T) {
	cases := []struct {
		in   string
		want types.SubscriptionStatus
	}{
		{"active", types.SubscriptionStatusActive},
		{"ACTIVE", types.SubscriptionStatusActive},
		{"succeeded", types.SubscriptionStatusActive},
		{"past_due", types.SubscriptionStatusPastDue},
		{"attention", types.SubscriptionStatusPastDue},
		{"canceled", types.SubscriptionStatusCanceled},
		{"cancelled", types.SubscriptionStatusCanceled},
		{"non-renewing", types.SubscriptionStatusCanceled},
		{"expired", types.SubscriptionStatusExpired},
		{"trialing", ""},
		{"", ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, providerStatusToCanonical(tc.in), "status %q", tc.in)
	}
}

func TestCancelStatus_GracePeriodRequiresAllThree(t *testing.T) {
	now := time.Now()
	future := now.Add(10 * 24 * time.Hour)
	past := now.Add(-24 * time.Hour)

	// provider signal + policy + open period = grace
	require.Equal(t, types.SubscriptionStatusGracePeriod, cancelStatus(true, true, future, now))

	// provider says immediate
	require.Equal(t, types.SubscriptionStatusCanceled, cancelStatus(false, true, future, now))
	// policy disabled
	require.Equal(t, types.SubscriptionStatusCanceled, cancelStatus(true, false, future, now))
	// period already over
	require.Equal(t, types.SubscriptionStatusCanceled, cancelStatus(true, true, past, now))
}

func TestRenewalPeriodEnd_ReportedBoundaryWins(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	currentEnd := now.Add(24 * time.Hour)
	reported := now.Add(40 * 24 * time.Hour)

	got := renewalPeriodEnd(&reported, currentEnd, types.BillingCycleMonthly, now)
	require.Equal(t, reported, got)
}

func TestRenewalPeriodEnd_ExtendsCurrentPeriod(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	currentEnd := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	got := renewalPeriodEnd(nil, currentEnd, types.BillingCycleMonthly, now)
	require.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestRenewalPeriodEnd_LongPastDueDoesNotRenewIntoPast(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	// last period ended months ago; renewal counts from now, not from then
	staleEnd := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	got := renewalPeriodEnd(nil, staleEnd, types.BillingCycleMonthly, now)
	require.Equal(t, now.AddDate(0, 1, 0), got)
	require.True(t, got.After(now))
}

func TestRenewalPeriodEnd_AnnualCycle(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	currentEnd := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	got := renewalPeriodEnd(nil, currentEnd, types.BillingCycleAnnual, now)
	require.Equal(t, time.Date(2027, 9, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestLapsed(t *testing.T) {
	now := time.Now()

	cases := []struct {
		name      string
		status    types.SubscriptionStatus
		periodEnd time.Time
		want      bool
	}{
		{"grace period run out", types.SubscriptionStatusGracePeriod, now.Add(-time.Hour), true},
		{"grace period exactly at end", types.SubscriptionStatusGracePeriod, now, true},
		{"grace period still open", types.SubscriptionStatusGracePeriod, now.Add(time.Hour), false},
		{"active past period end not swept", types.SubscriptionStatusActive, now.Add(-time.Hour), false},
		{"canceled already terminal", types.SubscriptionStatusCanceled, now.Add(-time.Hour), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, lapsed(tc.status, tc.periodEnd, now))
		})
	}
}

func TestNewTransitionLog(t *testing.T) {
	before := &models.Subscription{ID: "sub-1", UserID: "user-1", Status: types.SubscriptionStatusGracePeriod}
	after := &models.Subscription{ID: "sub-1", UserID: "user-1", Status: types.SubscriptionStatusExpired}

	log := newTransitionLog(before, after, expiredEventType)
	require.NotEmpty(t, log.ID)
	require.Equal(t, "user-1", log.UserID)
	require.Equal(t, "sub-1", log.SubscriptionID)
	require.Equal(t, expiredEventType, log.EventType)
	require.Equal(t, before, log.Before.Data())
	require.Equal(t, after, log.After.Data())
}

func TestNewTransitionLog_CreationHasNoBefore(t *testing.T) {
	after := &models.Subscription{ID: "sub-2", UserID: "user-2", Status: types.SubscriptionStatusActive}

	log := newTransitionLog(nil, after, types.EventSubscriptionActivated)
	require.Nil(t, log.Before.Data())
	require.Equal(t, after, log.After.Data())
}
