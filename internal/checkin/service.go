// Package checkin implements the single-use token protocol that resets a
// secret's disclosure deadline, plus the bounded grace-window read used by
// the share-retrieval path.
package checkin

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/afterword/afterword/internal/model"
	"github.com/afterword/afterword/internal/repository"
)

// Errors returned by Consume and ShareRead.  Handlers map each to its own
// user-facing message; none of them carry internal detail.
var (
	ErrInvalidToken   = errors.New("invalid check-in token")
	ErrTokenExpired   = errors.New("check-in token expired")
	ErrTokenUsed      = errors.New("check-in token already used")
	ErrSecretNotFound = errors.New("secret not found")
)

// TokenStore is the token persistence surface.  Implemented by
// repository.TokenRepo.
type TokenStore interface {
	Get(ctx context.Context, token string) (*model.CheckInToken, error)
	Consume(ctx context.Context, token string, nowMs int64) (bool, error)
}

// SecretStore is the secret persistence surface.  Implemented by
// repository.SecretRepo.
type SecretStore interface {
	GetByID(ctx context.Context, id string) (*model.Secret, error)
	RecordCheckIn(ctx context.Context, id string, lastMs, nextMs int64) error
}

// Auditor receives lifecycle events after a successful check-in.  May be
// nil when no broker is configured.
type Auditor interface {
	CheckedIn(ctx context.Context, secretID string, atMs int64)
}

// Result is the user-facing confirmation of a successful check-in.
type Result struct {
	SecretTitle string
	NextCheckIn int64 // ms epoch of the new deadline
}

// ShareResult reports what the grace-window read may reveal.
type ShareResult struct {
	SecretTitle      string
	PayloadAvailable bool // false means the disabled condition, not an error
}

// Service validates, consumes and reads check-in tokens.
type Service struct {
	tokens  TokenStore
	secrets SecretStore
	audit   Auditor
}

func NewService(tokens TokenStore, secrets SecretStore, audit Auditor) *Service {
	return &Service{tokens: tokens, secrets: secrets, audit: audit}
}

// Consume spends the token's one deadline reset.  A used token is always
// rejected here regardless of the grace window: that privilege belongs to
// the share path only, never to a second reset.  Concurrent duplicates are
// settled by the conditional update in the store; losers observe the
// already-set used_at and fail exactly like a late arrival.
func (s *Service) Consume(ctx context.Context, token string, now time.Time) (*Result, error) {
	nowMs := now.UnixMilli()

	t, err := s.tokens.Get(ctx, token)
	if errors.Is(err, repository.ErrTokenNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("checkin: load token: %w", err)
	}
	if t.ExpiresAt < nowMs {
		return nil, ErrTokenExpired
	}
	if t.Consumed() {
		return nil, ErrTokenUsed
	}

	ok, err := s.tokens.Consume(ctx, token, nowMs)
	if err != nil {
		return nil, fmt.Errorf("checkin: consume token: %w", err)
	}
	if !ok {
		// Lost the race; the winner's reset stands.
		return nil, ErrTokenUsed
	}

	secret, err := s.secrets.GetByID(ctx, t.SecretID)
	if errors.Is(err, repository.ErrSecretNotFound) {
		return nil, ErrSecretNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("checkin: load secret: %w", err)
	}

	next := model.NextCheckInFor(nowMs, secret.CheckInIntervalDays)
	if err := s.secrets.RecordCheckIn(ctx, secret.ID, nowMs, next); err != nil {
		if errors.Is(err, repository.ErrSecretNotFound) {
			return nil, ErrSecretNotFound
		}
		return nil, fmt.Errorf("checkin: record check-in: %w", err)
	}

	log.Printf("checkin: secret %s checked in, next deadline in %d days", secret.ID, secret.CheckInIntervalDays)
	if s.audit != nil {
		s.audit.CheckedIn(ctx, secret.ID, nowMs)
	}
	return &Result{SecretTitle: secret.Title, NextCheckIn: next}, nil
}

// ShareRead is the read-only secondary use of a consumed token.  It never
// resets the deadline; it only answers whether disclosure content can be
// retrieved.  The privilege opens at consumption and closes 24 hours later.
// Expired tokens never succeed, consumed or not.
func (s *Service) ShareRead(ctx context.Context, token string, now time.Time) (*ShareResult, error) {
	nowMs := now.UnixMilli()

	t, err := s.tokens.Get(ctx, token)
	if errors.Is(err, repository.ErrTokenNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("checkin: load token: %w", err)
	}
	if t.ExpiresAt < nowMs {
		return nil, ErrTokenExpired
	}
	if !t.Consumed() {
		// The share link only materializes through a check-in.
		return nil, ErrInvalidToken
	}
	if !t.InGraceWindow(nowMs) {
		return nil, ErrTokenUsed
	}

	secret, err := s.secrets.GetByID(ctx, t.SecretID)
	if errors.Is(err, repository.ErrSecretNotFound) {
		return nil, ErrSecretNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("checkin: load secret: %w", err)
	}
	return &ShareResult{SecretTitle: secret.Title, PayloadAvailable: secret.HasPayload}, nil
}
