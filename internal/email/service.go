package email

import (
	"context"
	"log"
	"math/rand"
	"time"
)

const (
	maxAttempts     = 3
	baseBackoff     = 500 * time.Millisecond
	maxJitter       = 250 * time.Millisecond
	maxRetryAfter   = 30 * time.Second // cap on provider-suggested waits
	attemptDeadline = 20 * time.Second
)

// Service wraps a Provider with validation, retry and classification.  Every
// call returns a terminal EmailResult; callers never see a raw provider
// error.
type Service struct {
	provider Provider
	from     string
	sleep    func(ctx context.Context, d time.Duration) error // swapped in tests
}

func NewService(p Provider, from string) *Service {
	return &Service{provider: p, from: from, sleep: sleepCtx}
}

// ProviderName identifies the underlying provider for failure records.
func (s *Service) ProviderName() string { return s.provider.Name() }

// Send validates, then attempts delivery up to three times with exponential
// backoff plus jitter.  Permanent failures (bad credentials, rejected
// recipient) abort immediately; rate-limit responses stretch the backoff to
// the provider's suggested wait.  Validation failures never reach the
// network and report zero attempts.
func (s *Service) Send(ctx context.Context, data EmailData) EmailResult {
	if msg := validate(data); msg != "" {
		return EmailResult{Error: msg, Retryable: false, Attempts: 0}
	}

	msg := Message{
		From:     s.from,
		To:       data.To,
		Subject:  data.Subject,
		Body:     data.Body,
		HTMLBody: data.HTMLBody,
		Headers:  data.Headers,
		Tracking: data.Tracking,
	}

	var last *SendError
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, attemptDeadline)
		res, err := s.provider.Send(attemptCtx, msg)
		cancel()
		if err == nil {
			return EmailResult{
				Success:         true,
				MessageID:       res.MessageID,
				Attempts:        attempt,
				TrackingHonored: res.TrackingHonored,
			}
		}

		last = classify(err)
		if !last.Retryable() {
			return EmailResult{Error: last.Msg, Retryable: false, Attempts: attempt}
		}
		if attempt == maxAttempts {
			break
		}

		delay := backoff(attempt)
		if last.Kind == KindRateLimit && last.RetryAfter > 0 {
			if suggested := time.Duration(last.RetryAfter) * time.Second; suggested > delay {
				delay = min(suggested, maxRetryAfter)
			}
		}
		log.Printf("mailer: attempt %d/%d to %s failed (%s); retrying in %s",
			attempt, maxAttempts, data.To, last.Msg, delay)
		if err := s.sleep(ctx, delay); err != nil {
			return EmailResult{Error: "send cancelled: " + err.Error(), Retryable: true, Attempts: attempt}
		}
	}

	return EmailResult{
		Error:      last.Msg,
		Retryable:  true,
		RetryAfter: last.RetryAfter,
		Attempts:   maxAttempts,
	}
}

// backoff doubles from the base each attempt and adds jitter so retries from
// concurrent workers do not align.
func backoff(attempt int) time.Duration {
	d := baseBackoff << (attempt - 1)
	return d + time.Duration(rand.Int63n(int64(maxJitter)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
