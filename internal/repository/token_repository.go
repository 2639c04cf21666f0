package repository

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"

	"github.com/afterword/afterword/internal/model"
)

// TokenRepo persists single-use check-in tokens.  The one rule that matters
// here is that the deadline reset is exactly-once: Consume is a conditional
// update keyed on "used_at IS NULL", so of N concurrent consumers exactly
// one observes an affected row.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// tokenRow mirrors the check_in_tokens row shape; toModel is the single
// mapping point between the nullable column and the model pointer.
type tokenRow struct {
	Token     string
	SecretID  string
	ExpiresAt int64
	UsedAt    sql.NullInt64
	CreatedAt int64
}

func (r tokenRow) toModel() model.CheckInToken {
	t := model.CheckInToken{
		Token:     r.Token,
		SecretID:  r.SecretID,
		ExpiresAt: r.ExpiresAt,
		CreatedAt: r.CreatedAt,
	}
	if r.UsedAt.Valid {
		used := r.UsedAt.Int64
		t.UsedAt = &used
	}
	return t
}

// Get loads a token by its opaque string.
func (r *TokenRepo) Get(ctx context.Context, token string) (*model.CheckInToken, error) {
	var row tokenRow
	err := r.DB.QueryRowContext(ctx,
		`SELECT token, secret_id, expires_at, used_at, created_at
		   FROM check_in_tokens WHERE token = ?`, token,
	).Scan(&row.Token, &row.SecretID, &row.ExpiresAt, &row.UsedAt, &row.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	t := row.toModel()
	return &t, nil
}

// Consume atomically claims the token's single deadline reset.  It returns
// false when another request already set used_at; callers must treat that
// exactly like a token that arrived used.
func (r *TokenRepo) Consume(ctx context.Context, token string, nowMs int64) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE check_in_tokens SET used_at = ? WHERE token = ? AND used_at IS NULL`,
		nowMs, token)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Issue creates a fresh token for a secret.  The token string is a 64-char
// hex credential from crypto/rand; expiry is supplied by the caller (the
// scheduler uses the secret's own deadline).
func (r *TokenRepo) Issue(ctx context.Context, secretID string, nowMs, expiresAtMs int64) (*model.CheckInToken, error) {
	tok, err := randomToken(32)
	if err != nil {
		return nil, err
	}
	_, err = r.DB.ExecContext(ctx,
		`INSERT INTO check_in_tokens (token, secret_id, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		tok, secretID, expiresAtMs, nowMs)
	if err != nil {
		return nil, err
	}
	return &model.CheckInToken{Token: tok, SecretID: secretID, ExpiresAt: expiresAtMs, CreatedAt: nowMs}, nil
}

// DeleteExpiredBefore is the maintenance pass: it purges tokens whose expiry
// is older than the cutoff.  Callers keep the cutoff clear of the 24-hour
// grace window so a recently consumed token's share read still resolves.
func (r *TokenRepo) DeleteExpiredBefore(ctx context.Context, cutoffMs int64) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		`DELETE FROM check_in_tokens WHERE expires_at < ?`, cutoffMs)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// randomToken generates a random hexadecimal string of n bytes (2n chars).
func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
