package tool

import "github.com/google/uuid"

// GenerateUUIDV7 returns a time-ordered UUID, used as the primary key for
// ledger, outbox and subscription rows so inserts stay roughly append-only.
func GenerateUUIDV7() string {
	return uuid.Must(uuid.NewV7()).String()
}

// GenerateChargeReference returns a merchant-side reference for an outgoing
// charge. Providers echo it back in webhooks, letting reconciliation match
// the payment record.
func GenerateChargeReference() string {
	return "ff_" + uuid.Must(uuid.NewV7()).String()
}
