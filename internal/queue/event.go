// Package queue defines the lifecycle audit events exchanged over the
// message broker, and the background consumer that records them.
package queue

// Event kinds published on the secret.lifecycle queue.
const (
	KindCheckedIn        = "checked_in"
	KindReminderSent     = "reminder_sent"
	KindDisclosed        = "disclosed"
	KindDisclosureFailed = "disclosure_failed"
)

// LifecycleEvent is published after a secret changes state or a notification
// reaches a terminal outcome.  It carries enough for downstream consumers to
// build an audit trail without querying the primary database.
type LifecycleEvent struct {
	Kind       string `json:"kind"`
	SecretID   string `json:"secret_id"`
	Tier       string `json:"tier,omitempty"`      // reminder events only
	Recipient  string `json:"recipient,omitempty"` // disclosure events only
	Detail     string `json:"detail,omitempty"`
	OccurredAt string `json:"occurred_at"` // RFC 3339 UTC
}
