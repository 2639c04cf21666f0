package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/afterword/afterword/internal/model"
)

// FailureRepo persists email delivery failures for the escalation service.
type FailureRepo struct{ DB *sql.DB }

func NewFailureRepo(db *sql.DB) *FailureRepo { return &FailureRepo{DB: db} }

// failureRow mirrors the email_failures row shape.
type failureRow struct {
	ID           string
	EmailType    string
	Provider     string
	Recipient    string
	Subject      string
	ErrorMessage string
	RetryCount   int
	CreatedAt    int64
	ResolvedAt   sql.NullInt64
}

func (r failureRow) toModel() model.EmailFailure {
	f := model.EmailFailure{
		ID:           r.ID,
		EmailType:    r.EmailType,
		Provider:     r.Provider,
		Recipient:    r.Recipient,
		Subject:      r.Subject,
		ErrorMessage: r.ErrorMessage,
		RetryCount:   r.RetryCount,
		CreatedAt:    r.CreatedAt,
	}
	if r.ResolvedAt.Valid {
		resolved := r.ResolvedAt.Int64
		f.ResolvedAt = &resolved
	}
	return f
}

const failureColumns = `id, email_type, provider, recipient, subject, error_message,
       retry_count, created_at, resolved_at`

// Create inserts a new failure row, assigning it a UUID.
func (r *FailureRepo) Create(ctx context.Context, f *model.EmailFailure) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO email_failures
		   (id, email_type, provider, recipient, subject, error_message, retry_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.EmailType, f.Provider, f.Recipient, f.Subject, f.ErrorMessage, f.RetryCount, f.CreatedAt)
	return err
}

// FindUnresolved locates the open record for a logical send, if one exists.
// A nil result with nil error means the failure is new.
func (r *FailureRepo) FindUnresolved(ctx context.Context, emailType, recipient, subject string) (*model.EmailFailure, error) {
	var row failureRow
	err := r.DB.QueryRowContext(ctx,
		`SELECT `+failureColumns+`
		   FROM email_failures
		  WHERE email_type = ? AND recipient = ? AND subject = ? AND resolved_at IS NULL
		  ORDER BY created_at DESC LIMIT 1`,
		emailType, recipient, subject,
	).Scan(&row.ID, &row.EmailType, &row.Provider, &row.Recipient, &row.Subject,
		&row.ErrorMessage, &row.RetryCount, &row.CreatedAt, &row.ResolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	f := row.toModel()
	return &f, nil
}

// IncrementRetry bumps the retry counter and replaces the error message,
// returning the new count.
func (r *FailureRepo) IncrementRetry(ctx context.Context, id, errorMessage string) (int, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE email_failures SET retry_count = retry_count + 1, error_message = ?
		  WHERE id = ? AND resolved_at IS NULL`,
		errorMessage, id)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrFailureNotFound
	}
	var count int
	if err := r.DB.QueryRowContext(ctx,
		`SELECT retry_count FROM email_failures WHERE id = ?`, id).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// Resolve stamps resolved_at.  Resolving an already-resolved row is a no-op
// rather than an error so the operation stays idempotent for operators.
func (r *FailureRepo) Resolve(ctx context.Context, id string, resolvedAtMs int64) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE email_failures SET resolved_at = ? WHERE id = ? AND resolved_at IS NULL`,
		resolvedAtMs, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Distinguish "missing" from "already resolved".
		var one int
		err := r.DB.QueryRowContext(ctx,
			`SELECT 1 FROM email_failures WHERE id = ?`, id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrFailureNotFound
		}
		return err
	}
	return nil
}

// ListUnresolved returns outstanding failures, oldest first.
func (r *FailureRepo) ListUnresolved(ctx context.Context, limit int) ([]model.EmailFailure, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+failureColumns+`
		   FROM email_failures WHERE resolved_at IS NULL
		  ORDER BY created_at LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.EmailFailure
	for rows.Next() {
		var row failureRow
		if err := rows.Scan(&row.ID, &row.EmailType, &row.Provider, &row.Recipient, &row.Subject,
			&row.ErrorMessage, &row.RetryCount, &row.CreatedAt, &row.ResolvedAt); err != nil {
			return nil, err
		}
		out = append(out, row.toModel())
	}
	return out, rows.Err()
}

// DeleteResolvedBefore purges rows that are both resolved and older than the
// cutoff.  Unresolved rows are never touched.
func (r *FailureRepo) DeleteResolvedBefore(ctx context.Context, cutoffMs int64) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		`DELETE FROM email_failures WHERE resolved_at IS NOT NULL AND resolved_at < ?`, cutoffMs)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
