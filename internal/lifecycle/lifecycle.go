// Package lifecycle owns the secret state machine: which reminder tier, if
// any, is due for an active secret, and when a missed deadline makes
// disclosure due.  The functions here are pure; persistence of the
// triggered transition and of per-cycle dedupe is the scheduler's job.
package lifecycle

import (
	"time"

	"github.com/afterword/afterword/internal/model"
)

// Tier is one urgency bucket on the countdown to disclosure.  A tier is
// "crossed" once the remaining time drops to its threshold or below.
type Tier struct {
	Name          string
	ThresholdDays float64
}

// Tiers lists every reminder tier, most urgent first.  The scheduler sends
// at most one tier per run per secret: the most urgent crossed tier that has
// not yet been sent in the current check-in cycle.
var Tiers = []Tier{
	{Name: "critical", ThresholdDays: 15.0 / 1440},
	{Name: "1_hour", ThresholdDays: 1.0 / 24},
	{Name: "12_hour", ThresholdDays: 0.5},
	{Name: "1_day", ThresholdDays: 1},
	{Name: "3_day", ThresholdDays: 3},
	{Name: "7_day", ThresholdDays: 7},
}

// MaxLookaheadDays is the furthest tier threshold.  Scheduler scans bound
// their candidate query to this window.
const MaxLookaheadDays = 7

// RemainingDays returns the gap between now and the secret's deadline in
// fractional days.  Negative once the deadline has passed.
func RemainingDays(s *model.Secret, now time.Time) float64 {
	return float64(s.NextCheckIn-now.UnixMilli()) / float64(model.MillisPerDay)
}

// DueReminderTier returns the most urgent tier whose threshold the secret
// has crossed, or false when no reminder applies.  Only active secrets are
// evaluated; a secret at or past its deadline is disclosure territory, not
// reminder territory.  Callers must still consult the per-cycle dedupe log
// before sending.
func DueReminderTier(s *model.Secret, now time.Time) (Tier, bool) {
	if s.Status != model.StatusActive {
		return Tier{}, false
	}
	gap := RemainingDays(s, now)
	if gap <= 0 {
		return Tier{}, false
	}
	for _, t := range Tiers {
		if gap <= t.ThresholdDays {
			return t, true
		}
	}
	return Tier{}, false
}

// IsDisclosureDue reports whether an active secret's deadline has passed.
// Paused secrets are never due; triggered secrets are terminal and are
// skipped so a disclosure can never run twice.
func IsDisclosureDue(s *model.Secret, now time.Time) bool {
	return s.Status == model.StatusActive && now.UnixMilli() >= s.NextCheckIn
}
