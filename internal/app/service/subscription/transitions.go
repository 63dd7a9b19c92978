package subscription

import (
	"strings"
	"time"

	"github.com/framefolio/billing/pkg/types"
)

// providerStatusToCanonical folds the status vocabulary providers report on
// subscription.updated events into this system's status set. Unmapped values
// return "" and leave the current status untouched.
func providerStatusToCanonical(providerStatus string) types.SubscriptionStatus {
	switch strings.ToLower(providerStatus) {
	case "active", "success", "successful", "succeeded", "completed":
		return types.SubscriptionStatusActive
	case "past_due", "attention", "overdue", "unpaid":
		return types.SubscriptionStatusPastDue
	case "canceled", "cancelled", "non-renewing", "non_renewing":
		return types.SubscriptionStatusCanceled
	case "expired":
		return types.SubscriptionStatusExpired
	}
	return ""
}

// cancelStatus decides between grace period and immediate cancellation. The
// provider's signal wins when it says access continues to period end; the
// grace policy and a still-open period are both required, otherwise the
// cancellation lands immediately.
func cancelStatus(cancelAtPeriodEnd, graceEnabled bool, periodEnd, now time.Time) types.SubscriptionStatus {
	if cancelAtPeriodEnd && graceEnabled && periodEnd.After(now) {
		return types.SubscriptionStatusGracePeriod
	}
	return types.SubscriptionStatusCanceled
}

// lapsed reports whether a grace-period subscription's paid period has run
// out and the row should move to expired. Providers that never send a
// terminal webhook for a user-initiated cancel rely on this rule.
func lapsed(status types.SubscriptionStatus, periodEnd, now time.Time) bool {
	return status == types.SubscriptionStatusGracePeriod && !periodEnd.After(now)
}

// renewalPeriodEnd computes the new period end after a successful renewal
// payment. The provider-reported boundary is authoritative when present;
// otherwise one billing cycle is added to the later of the current period end
// and now (a long-past-due subscription should not renew into the past).
func renewalPeriodEnd(reported *time.Time, currentEnd time.Time, cycle types.BillingCycle, now time.Time) time.Time {
	if reported != nil && !reported.IsZero() {
		return *reported
	}
	base := currentEnd
	if base.Before(now) {
		base = now
	}
	return addCycle(base, cycle)
}

func addCycle(t time.Time, cycle types.BillingCycle) time.Time {
	if cycle == types.BillingCycleAnnual {
		return t.AddDate(1, 0, 0)
	}
	return t.AddDate(0, 1, 0)
}
