package model

// ReminderLog is the dedupe record that prevents the same reminder tier from
// being sent twice within one check-in cycle.  Rows are keyed on
// (secret, tier, cycle); when a check-in advances LastCheckIn the old cycle's
// rows simply stop matching and a fresh cycle begins.
//
// Fields:
//  ID               – primary key identifier.
//  SecretID         – secret the reminder belongs to.
//  Tier             – reminder tier name (e.g. "3_day", "critical").
//  CycleLastCheckIn – the secret's LastCheckIn at send time, identifying the cycle.
//  SentAt           – ms epoch when the tier reached a terminal send outcome.
type ReminderLog struct {
	ID               uint64 // reminder_log.id
	SecretID         string // reminder_log.secret_id
	Tier             string // reminder_log.tier
	CycleLastCheckIn int64  // reminder_log.cycle_last_check_in (ms epoch)
	SentAt           int64  // reminder_log.sent_at (ms epoch)
}
