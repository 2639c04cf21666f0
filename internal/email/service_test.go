package email

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(p Provider) *Service {
	s := NewService(p, "no-reply@afterword.dev")
	s.sleep = func(ctx context.Context, d time.Duration) error { return nil } // no real backoff in tests
	return s
}

func TestSendValidationNeverReachesProvider(t *testing.T) {
	tests := []struct {
		name string
		data EmailData
	}{
		{"missing recipient", EmailData{Subject: "s", Body: "b"}},
		{"malformed recipient", EmailData{To: "not-an-address", Subject: "s", Body: "b"}},
		{"missing subject", EmailData{To: "a@b.co", Body: "b"}},
		{"missing body", EmailData{To: "a@b.co", Subject: "s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMockProvider()
			res := newTestService(mock).Send(context.Background(), tt.data)

			assert.False(t, res.Success)
			assert.False(t, res.Retryable)
			assert.Equal(t, 0, res.Attempts, "validation failures must not count attempts")
			assert.Empty(t, mock.Sent(), "no network attempt may be made")
		})
	}
}

func TestSendSucceedsFirstAttempt(t *testing.T) {
	mock := NewMockProvider()
	res := newTestService(mock).Send(context.Background(), EmailData{
		To: "alice@example.com", Subject: "hello", Body: "hi", Tracking: true,
	})

	require.True(t, res.Success)
	assert.Equal(t, 1, res.Attempts)
	assert.NotEmpty(t, res.MessageID)
	assert.True(t, res.TrackingHonored)
	require.Len(t, mock.Sent(), 1)
	assert.Equal(t, "no-reply@afterword.dev", mock.Sent()[0].From)
}

func TestSendRetriesTransientErrors(t *testing.T) {
	mock := NewMockProvider()
	var controls TestControls = mock // explicit downcast at the test boundary
	controls.FailNext(&SendError{Kind: KindNetwork, Msg: "connection reset"})
	controls.FailNext(&SendError{Kind: KindTimeout, Msg: "i/o timeout"})

	res := newTestService(mock).Send(context.Background(), EmailData{
		To: "alice@example.com", Subject: "hello", Body: "hi",
	})

	require.True(t, res.Success)
	assert.Equal(t, 3, res.Attempts)
	assert.Len(t, mock.Sent(), 1)
}

func TestSendExhaustsRetries(t *testing.T) {
	mock := NewMockProvider()
	for i := 0; i < 3; i++ {
		mock.FailNext(&SendError{Kind: KindNetwork, Msg: "unreachable"})
	}

	res := newTestService(mock).Send(context.Background(), EmailData{
		To: "alice@example.com", Subject: "hello", Body: "hi",
	})

	assert.False(t, res.Success)
	assert.True(t, res.Retryable)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, "unreachable", res.Error)
	assert.Empty(t, mock.Sent())
}

func TestSendAuthErrorAbortsImmediately(t *testing.T) {
	mock := NewMockProvider()
	mock.FailNext(&SendError{Kind: KindAuth, Msg: "invalid credentials"})

	res := newTestService(mock).Send(context.Background(), EmailData{
		To: "alice@example.com", Subject: "hello", Body: "hi",
	})

	assert.False(t, res.Success)
	assert.False(t, res.Retryable)
	assert.Equal(t, 1, res.Attempts)
}

func TestSendRateLimitCarriesRetryAfter(t *testing.T) {
	mock := NewMockProvider()
	for i := 0; i < 3; i++ {
		mock.FailNext(&SendError{Kind: KindRateLimit, Msg: "throttled", RetryAfter: 42, Remaining: 0})
	}

	var waits []time.Duration
	svc := NewService(mock, "no-reply@afterword.dev")
	svc.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	res := svc.Send(context.Background(), EmailData{To: "a@b.co", Subject: "s", Body: "b"})

	assert.False(t, res.Success)
	assert.True(t, res.Retryable)
	assert.Equal(t, 42, res.RetryAfter)
	require.Len(t, waits, 2)
	for _, w := range waits {
		assert.Equal(t, maxRetryAfter, w, "suggested wait above the cap is clamped")
	}
}

func TestClassifyUnknownErrorsAreRetryable(t *testing.T) {
	se := classify(assert.AnError)
	assert.Equal(t, KindUnknown, se.Kind)
	assert.True(t, se.Retryable())
}
