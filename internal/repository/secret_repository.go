package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/afterword/afterword/internal/model"
)

// SecretRepo provides data access to the secrets and recipients tables.
// Deadlines are stored as millisecond epochs (BIGINT) so that interval
// arithmetic is exact regardless of the server timezone or DST rules.
type SecretRepo struct{ DB *sql.DB }

func NewSecretRepo(db *sql.DB) *SecretRepo { return &SecretRepo{DB: db} }

// secretRow mirrors the secrets row shape.  Every store read goes through
// toModel so the snake_case column set maps onto the model explicitly and in
// exactly one place.
type secretRow struct {
	ID           string
	UserID       string
	OwnerEmail   string
	Title        string
	IntervalDays int
	LastCheckIn  int64
	NextCheckIn  int64
	Status       string
	HasPayload   bool
}

func (r secretRow) toModel() model.Secret {
	return model.Secret{
		ID:                  r.ID,
		UserID:              r.UserID,
		OwnerEmail:          r.OwnerEmail,
		Title:               r.Title,
		CheckInIntervalDays: r.IntervalDays,
		LastCheckIn:         r.LastCheckIn,
		NextCheckIn:         r.NextCheckIn,
		Status:              model.SecretStatus(r.Status),
		HasPayload:          r.HasPayload,
	}
}

const secretColumns = `id, user_id, owner_email, title, check_in_interval_days,
       last_check_in, next_check_in, status, encrypted_payload IS NOT NULL`

// GetByID loads one secret with its recipients in position order.
func (r *SecretRepo) GetByID(ctx context.Context, id string) (*model.Secret, error) {
	var row secretRow
	err := r.DB.QueryRowContext(ctx,
		`SELECT `+secretColumns+` FROM secrets WHERE id = ?`, id,
	).Scan(&row.ID, &row.UserID, &row.OwnerEmail, &row.Title, &row.IntervalDays,
		&row.LastCheckIn, &row.NextCheckIn, &row.Status, &row.HasPayload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSecretNotFound
	}
	if err != nil {
		return nil, err
	}
	s := row.toModel()
	if s.Recipients, err = r.recipients(ctx, s.ID); err != nil {
		return nil, err
	}
	return &s, nil
}

// DueWithinWindow returns every active secret whose deadline falls inside
// the lookahead window or is already past.  This bounds the scheduler scan
// instead of reading the whole table; paused and triggered secrets are
// filtered out in SQL.
func (r *SecretRepo) DueWithinWindow(ctx context.Context, nowMs, lookaheadMs int64) ([]model.Secret, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+secretColumns+`
		   FROM secrets
		  WHERE status = 'active' AND next_check_in <= ?
		  ORDER BY next_check_in`,
		nowMs+lookaheadMs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Secret
	for rows.Next() {
		var row secretRow
		if err := rows.Scan(&row.ID, &row.UserID, &row.OwnerEmail, &row.Title, &row.IntervalDays,
			&row.LastCheckIn, &row.NextCheckIn, &row.Status, &row.HasPayload); err != nil {
			return nil, err
		}
		out = append(out, row.toModel())
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Recipients, err = r.recipients(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// RecordCheckIn advances the deadline after a token consumption.  Only
// active secrets accept check-ins; a vanished or non-active row surfaces as
// ErrSecretNotFound so the caller can answer honestly.
func (r *SecretRepo) RecordCheckIn(ctx context.Context, id string, lastMs, nextMs int64) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE secrets SET last_check_in = ?, next_check_in = ? WHERE id = ? AND status = 'active'`,
		lastMs, nextMs, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSecretNotFound
	}
	return nil
}

// MarkTriggered performs the terminal transition.  The status guard makes it
// idempotent: a secret already triggered (by a concurrent run or an earlier
// crash-retry) matches no row and the caller simply skips it.  The deadline
// guard protects a check-in that lands between the candidate scan and this
// update; the advanced next_check_in no longer matches and the check-in wins.
func (r *SecretRepo) MarkTriggered(ctx context.Context, id string, nowMs int64) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE secrets SET status = 'triggered'
		  WHERE id = ? AND status = 'active' AND next_check_in <= ?`, id, nowMs)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// recipientRow mirrors the recipients table; id is a CHAR(36) UUID like
// every other entity key in the schema.
type recipientRow struct {
	ID       string
	SecretID string
	Position int
	Name     string
	Email    string
	Phone    sql.NullString
}

func (r recipientRow) toModel() model.Recipient {
	return model.Recipient{
		ID:       r.ID,
		SecretID: r.SecretID,
		Position: r.Position,
		Name:     r.Name,
		Email:    r.Email,
		Phone:    r.Phone.String,
	}
}

func (r *SecretRepo) recipients(ctx context.Context, secretID string) ([]model.Recipient, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, secret_id, position, name, email, phone
		   FROM recipients WHERE secret_id = ? ORDER BY position`, secretID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Recipient
	for rows.Next() {
		var row recipientRow
		if err := rows.Scan(&row.ID, &row.SecretID, &row.Position, &row.Name, &row.Email, &row.Phone); err != nil {
			return nil, err
		}
		out = append(out, row.toModel())
	}
	return out, rows.Err()
}
