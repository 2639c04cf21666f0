package checkin

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afterword/afterword/internal/model"
	"github.com/afterword/afterword/internal/repository"
)

// ---- fakes ----

// fakeTokenStore keeps tokens in a map and enforces the same
// first-writer-wins rule the SQL conditional update provides.
type fakeTokenStore struct {
	mu     sync.Mutex
	tokens map[string]*model.CheckInToken
}

func newFakeTokenStore(tokens ...*model.CheckInToken) *fakeTokenStore {
	f := &fakeTokenStore{tokens: map[string]*model.CheckInToken{}}
	for _, t := range tokens {
		f.tokens[t.Token] = t
	}
	return f
}

func (f *fakeTokenStore) Get(ctx context.Context, token string) (*model.CheckInToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[token]
	if !ok {
		return nil, repository.ErrTokenNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTokenStore) Consume(ctx context.Context, token string, nowMs int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[token]
	if !ok || t.UsedAt != nil {
		return false, nil
	}
	used := nowMs
	t.UsedAt = &used
	return true, nil
}

type fakeSecretStore struct {
	mu       sync.Mutex
	secrets  map[string]*model.Secret
	checkIns int
}

func (f *fakeSecretStore) GetByID(ctx context.Context, id string) (*model.Secret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.secrets[id]
	if !ok {
		return nil, repository.ErrSecretNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSecretStore) RecordCheckIn(ctx context.Context, id string, lastMs, nextMs int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.secrets[id]
	if !ok || s.Status != model.StatusActive {
		return repository.ErrSecretNotFound
	}
	s.LastCheckIn, s.NextCheckIn = lastMs, nextMs
	f.checkIns++
	return nil
}

func activeSecret() *model.Secret {
	return &model.Secret{
		ID:                  "sec-1",
		Title:               "letters to june",
		CheckInIntervalDays: 14,
		Status:              model.StatusActive,
		HasPayload:          true,
	}
}

func freshToken(now time.Time) *model.CheckInToken {
	return &model.CheckInToken{
		Token:     "tok-1",
		SecretID:  "sec-1",
		ExpiresAt: now.Add(14 * 24 * time.Hour).UnixMilli(),
		CreatedAt: now.UnixMilli(),
	}
}

// ---- tests ----

func TestConsumeResetsDeadline(t *testing.T) {
	now := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	secrets := &fakeSecretStore{secrets: map[string]*model.Secret{"sec-1": activeSecret()}}
	svc := NewService(newFakeTokenStore(freshToken(now)), secrets, nil)

	res, err := svc.Consume(context.Background(), "tok-1", now)
	require.NoError(t, err)

	assert.Equal(t, "letters to june", res.SecretTitle)
	assert.Equal(t, now.UnixMilli()+14*model.MillisPerDay, res.NextCheckIn)
	assert.Equal(t, 1, secrets.checkIns)
	// The stored deadline is derived from the stored last check-in, exactly.
	stored := secrets.secrets["sec-1"]
	assert.Equal(t, int64(14)*model.MillisPerDay, stored.NextCheckIn-stored.LastCheckIn)
}

func TestConsumeUnknownToken(t *testing.T) {
	svc := NewService(newFakeTokenStore(), &fakeSecretStore{}, nil)
	_, err := svc.Consume(context.Background(), "nope", time.Now())
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestConsumeExpiredTokenNeverSucceeds(t *testing.T) {
	now := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	tok := freshToken(now)
	tok.ExpiresAt = now.Add(-time.Second).UnixMilli()
	secrets := &fakeSecretStore{secrets: map[string]*model.Secret{"sec-1": activeSecret()}}
	svc := NewService(newFakeTokenStore(tok), secrets, nil)

	_, err := svc.Consume(context.Background(), "tok-1", now)
	assert.ErrorIs(t, err, ErrTokenExpired)

	// Even a consumed-but-expired token stays expired.
	used := now.Add(-time.Hour).UnixMilli()
	tok.UsedAt = &used
	_, err = svc.Consume(context.Background(), "tok-1", now)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestConsumeUsedTokenRejectedEvenInGraceWindow(t *testing.T) {
	now := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	tok := freshToken(now)
	used := now.Add(-time.Hour).UnixMilli() // well inside the 24h window
	tok.UsedAt = &used
	secrets := &fakeSecretStore{secrets: map[string]*model.Secret{"sec-1": activeSecret()}}
	svc := NewService(newFakeTokenStore(tok), secrets, nil)

	_, err := svc.Consume(context.Background(), "tok-1", now)
	assert.ErrorIs(t, err, ErrTokenUsed)
	assert.Equal(t, 0, secrets.checkIns, "grace window must never re-reset the deadline")
}

func TestConsumeIsExactlyOnceUnderConcurrency(t *testing.T) {
	now := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	secrets := &fakeSecretStore{secrets: map[string]*model.Secret{"sec-1": activeSecret()}}
	svc := NewService(newFakeTokenStore(freshToken(now)), secrets, nil)

	const n = 32
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Consume(context.Background(), "tok-1", now)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var wins, rejections int
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case assert.ErrorIs(t, err, ErrTokenUsed):
			rejections++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, rejections)
	assert.Equal(t, 1, secrets.checkIns)
}

func TestConsumeSecretGone(t *testing.T) {
	now := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	svc := NewService(newFakeTokenStore(freshToken(now)), &fakeSecretStore{secrets: map[string]*model.Secret{}}, nil)

	_, err := svc.Consume(context.Background(), "tok-1", now)
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestShareReadWithinGraceWindow(t *testing.T) {
	now := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	tok := freshToken(now)
	used := now.Add(-23 * time.Hour).UnixMilli()
	tok.UsedAt = &used
	secrets := &fakeSecretStore{secrets: map[string]*model.Secret{"sec-1": activeSecret()}}
	svc := NewService(newFakeTokenStore(tok), secrets, nil)

	res, err := svc.ShareRead(context.Background(), "tok-1", now)
	require.NoError(t, err)
	assert.Equal(t, "letters to june", res.SecretTitle)
	assert.True(t, res.PayloadAvailable)
	assert.Equal(t, 0, secrets.checkIns, "share read is read-only")
}

func TestShareReadRejections(t *testing.T) {
	now := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	secrets := &fakeSecretStore{secrets: map[string]*model.Secret{"sec-1": activeSecret()}}

	t.Run("grace window elapsed", func(t *testing.T) {
		tok := freshToken(now)
		used := now.Add(-25 * time.Hour).UnixMilli()
		tok.UsedAt = &used
		svc := NewService(newFakeTokenStore(tok), secrets, nil)
		_, err := svc.ShareRead(context.Background(), "tok-1", now)
		assert.ErrorIs(t, err, ErrTokenUsed)
	})

	t.Run("unconsumed token has no share privilege", func(t *testing.T) {
		svc := NewService(newFakeTokenStore(freshToken(now)), secrets, nil)
		_, err := svc.ShareRead(context.Background(), "tok-1", now)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired token never succeeds", func(t *testing.T) {
		tok := freshToken(now)
		tok.ExpiresAt = now.Add(-time.Minute).UnixMilli()
		used := now.Add(-time.Hour).UnixMilli()
		tok.UsedAt = &used
		svc := NewService(newFakeTokenStore(tok), secrets, nil)
		_, err := svc.ShareRead(context.Background(), "tok-1", now)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})
}

func TestShareReadDisabledPayload(t *testing.T) {
	now := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	sec := activeSecret()
	sec.HasPayload = false
	tok := freshToken(now)
	used := now.UnixMilli()
	tok.UsedAt = &used
	svc := NewService(newFakeTokenStore(tok), &fakeSecretStore{secrets: map[string]*model.Secret{"sec-1": sec}}, nil)

	res, err := svc.ShareRead(context.Background(), "tok-1", now)
	require.NoError(t, err)
	assert.False(t, res.PayloadAvailable, "absent payload is a disabled condition, not an error")
}
