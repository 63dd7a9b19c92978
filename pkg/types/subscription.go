package types

type Tier string

const (
	TierStarter  Tier = "starter"
	TierPro      Tier = "pro"
	TierStudio   Tier = "studio"
	TierBusiness Tier = "business"
)

// tierRank orders tiers from lowest to highest for upgrade/downgrade checks.
var tierRank = map[Tier]int{
	TierStarter:  0,
	TierPro:      1,
	TierStudio:   2,
	TierBusiness: 3,
}

func (t Tier) Valid() bool {
	_, ok := tierRank[t]
	return ok
}

// IsDowngradeFrom reports whether moving from current to t lowers the tier.
func (t Tier) IsDowngradeFrom(current Tier) bool {
	return tierRank[t] < tierRank[current]
}

type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "monthly"
	BillingCycleAnnual  BillingCycle = "annual"
)

func (c BillingCycle) Valid() bool {
	return c == BillingCycleMonthly || c == BillingCycleAnnual
}

type SubscriptionStatus string

const (
	SubscriptionStatusActive      SubscriptionStatus = "active"
	SubscriptionStatusPastDue     SubscriptionStatus = "past_due"
	SubscriptionStatusGracePeriod SubscriptionStatus = "grace_period"
	SubscriptionStatusCanceled    SubscriptionStatus = "canceled"
	SubscriptionStatusExpired     SubscriptionStatus = "expired"
)

// Terminal reports whether the status can never transition again. Terminal
// subscriptions are kept for history; a new checkout creates a fresh row.
func (s SubscriptionStatus) Terminal() bool {
	return s == SubscriptionStatusCanceled || s == SubscriptionStatusExpired
}

// Entitled reports whether the subscription still grants paid-tier access.
// Grace period keeps access until the paid period runs out.
func (s SubscriptionStatus) Entitled() bool {
	switch s {
	case SubscriptionStatusActive, SubscriptionStatusPastDue, SubscriptionStatusGracePeriod:
		return true
	}
	return false
}
