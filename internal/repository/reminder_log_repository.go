package repository

import (
	"context"
	"database/sql"
)

// ReminderLogRepo records which reminder tiers have already reached a
// terminal send outcome for a given check-in cycle.  The unique key
// (secret_id, tier, cycle_last_check_in) makes MarkSent idempotent across
// concurrent scheduler runs, and a check-in that advances last_check_in
// implicitly starts a fresh, empty cycle.
type ReminderLogRepo struct{ DB *sql.DB }

func NewReminderLogRepo(db *sql.DB) *ReminderLogRepo { return &ReminderLogRepo{DB: db} }

// WasSent reports whether the tier already has a terminal outcome recorded
// for the cycle identified by the secret's current last_check_in.
func (r *ReminderLogRepo) WasSent(ctx context.Context, secretID, tier string, cycleMs int64) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx,
		`SELECT 1 FROM reminder_log
		  WHERE secret_id = ? AND tier = ? AND cycle_last_check_in = ?`,
		secretID, tier, cycleMs).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkSent records the terminal outcome.  A duplicate insert from a racing
// run collapses into a no-op instead of an error.
func (r *ReminderLogRepo) MarkSent(ctx context.Context, secretID, tier string, cycleMs, sentAtMs int64) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO reminder_log (secret_id, tier, cycle_last_check_in, sent_at)
		 VALUES (?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE sent_at = sent_at`,
		secretID, tier, cycleMs, sentAtMs)
	return err
}

// DeleteSentBefore trims dedupe rows from cycles older than the cutoff.
// Superseded cycles are dead weight once last_check_in has moved on.
func (r *ReminderLogRepo) DeleteSentBefore(ctx context.Context, cutoffMs int64) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		`DELETE FROM reminder_log WHERE sent_at < ?`, cutoffMs)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
