// Package scheduler implements the periodic scan that turns due secrets into
// reminder and disclosure sends.  One external trigger runs one scan to
// completion; per-secret work runs on a bounded worker pool because secrets
// are independent, while all per-row mutations stay serialized through the
// store's conditional updates.
package scheduler

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/afterword/afterword/internal/email"
	"github.com/afterword/afterword/internal/escalation"
	"github.com/afterword/afterword/internal/lifecycle"
	"github.com/afterword/afterword/internal/model"
	"github.com/afterword/afterword/internal/queue"
)

// SecretStore is the scheduler's view of secret persistence.  Implemented by
// repository.SecretRepo.
type SecretStore interface {
	DueWithinWindow(ctx context.Context, nowMs, lookaheadMs int64) ([]model.Secret, error)
	MarkTriggered(ctx context.Context, id string, nowMs int64) (bool, error)
}

// TokenIssuer mints the single-use check-in token embedded in each reminder.
// Implemented by repository.TokenRepo.
type TokenIssuer interface {
	Issue(ctx context.Context, secretID string, nowMs, expiresAtMs int64) (*model.CheckInToken, error)
}

// DedupeStore is the per-cycle reminder log.  Implemented by
// repository.ReminderLogRepo.
type DedupeStore interface {
	WasSent(ctx context.Context, secretID, tier string, cycleMs int64) (bool, error)
	MarkSent(ctx context.Context, secretID, tier string, cycleMs, sentAtMs int64) error
}

// Mailer is the delivery layer.  Implemented by email.Service.
type Mailer interface {
	Send(ctx context.Context, data email.EmailData) email.EmailResult
	ProviderName() string
}

// Escalator receives delivery failures, and recoveries that close earlier
// failure records.  Implemented by escalation.Service.
type Escalator interface {
	Record(ctx context.Context, data escalation.FailureData) error
	Delivered(ctx context.Context, emailType email.EmailType, recipient, subject string) error
}

// Publisher emits lifecycle audit events; may be nil.
type Publisher interface {
	PublishLifecycle(ctx context.Context, event queue.LifecycleEvent) error
}

// Summary is the aggregate result of one run.  Per-item failures are counted
// here, never propagated: a single bad record must not abort the batch.
type Summary struct {
	RemindersProcessed   int `json:"remindersProcessed"`
	RemindersSent        int `json:"remindersSent"`
	RemindersFailed      int `json:"remindersFailed"`
	DisclosuresTriggered int `json:"disclosuresTriggered"`
}

// Options bound a run.
type Options struct {
	LookaheadDays int           // candidate scan window, defaults to the furthest tier
	Workers       int           // worker pool size, default 8
	RunTimeout    time.Duration // wall clock cap so a stuck provider cannot hang the batch
}

// Scheduler scans secrets for due check-ins and due disclosures and emits
// the corresponding work.
type Scheduler struct {
	secrets SecretStore
	tokens  TokenIssuer
	dedupe  DedupeStore
	mailer  Mailer
	esc     Escalator
	render  Renderer
	pub     Publisher
	opts    Options
}

func New(secrets SecretStore, tokens TokenIssuer, dedupe DedupeStore, mailer Mailer,
	esc Escalator, render Renderer, pub Publisher, opts Options) *Scheduler {
	if opts.LookaheadDays <= 0 {
		opts.LookaheadDays = lifecycle.MaxLookaheadDays
	}
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 4 * time.Minute
	}
	return &Scheduler{
		secrets: secrets, tokens: tokens, dedupe: dedupe,
		mailer: mailer, esc: esc, render: render, pub: pub, opts: opts,
	}
}

// RunOnce executes one scan.  The returned error is reserved for
// infrastructure failures (the candidate query itself); everything per
// secret is isolated and counted in the Summary.
func (s *Scheduler) RunOnce(ctx context.Context, now time.Time) (Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.RunTimeout)
	defer cancel()

	nowMs := now.UnixMilli()
	candidates, err := s.secrets.DueWithinWindow(ctx, nowMs, int64(s.opts.LookaheadDays)*model.MillisPerDay)
	if err != nil {
		return Summary{}, err
	}
	log.Printf("scheduler: scanning %d candidate secrets", len(candidates))

	var processed, sent, failed, triggered atomic.Int64
	sem := make(chan struct{}, s.opts.Workers)
	var wg sync.WaitGroup
	for i := range candidates {
		sec := candidates[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					log.Printf("scheduler: panic processing secret %s: %v", sec.ID, r)
					failed.Add(1)
				}
			}()

			switch {
			case lifecycle.IsDisclosureDue(&sec, now):
				if s.disclose(ctx, &sec, now) {
					triggered.Add(1)
				}
			default:
				tier, due := lifecycle.DueReminderTier(&sec, now)
				if !due {
					return
				}
				already, err := s.dedupe.WasSent(ctx, sec.ID, tier.Name, sec.LastCheckIn)
				if err != nil {
					log.Printf("scheduler: dedupe lookup for secret %s failed: %v", sec.ID, err)
					failed.Add(1)
					return
				}
				if already {
					return
				}
				processed.Add(1)
				if s.remind(ctx, &sec, tier, now) {
					sent.Add(1)
				} else {
					failed.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	summary := Summary{
		RemindersProcessed:   int(processed.Load()),
		RemindersSent:        int(sent.Load()),
		RemindersFailed:      int(failed.Load()),
		DisclosuresTriggered: int(triggered.Load()),
	}
	log.Printf("scheduler: run complete processed=%d sent=%d failed=%d disclosed=%d",
		summary.RemindersProcessed, summary.RemindersSent, summary.RemindersFailed, summary.DisclosuresTriggered)
	return summary, nil
}

// remind sends one tier reminder to the secret's owner.  The dedupe entry is
// recorded only after a terminal outcome (success, or failure handed to the
// escalation service) so a crashed run retries instead of silently skipping.
func (s *Scheduler) remind(ctx context.Context, sec *model.Secret, tier lifecycle.Tier, now time.Time) bool {
	nowMs := now.UnixMilli()

	tok, err := s.tokens.Issue(ctx, sec.ID, nowMs, sec.NextCheckIn)
	if err != nil {
		// Without a token the reminder is useless; leave the tier unsent so
		// the next run retries it.
		log.Printf("scheduler: issue token for secret %s failed: %v", sec.ID, err)
		return false
	}

	subject, body := s.render.Reminder(sec, tier, now, tok.Token)
	res := s.mailer.Send(ctx, email.EmailData{
		To:      sec.OwnerEmail,
		Subject: subject,
		Body:    body,
		Type:    email.TypeReminder,
	})

	if !res.Success {
		s.recordFailure(ctx, email.TypeReminder, sec.OwnerEmail, subject, res.Error)
	} else {
		s.recordRecovery(ctx, email.TypeReminder, sec.OwnerEmail, subject)
		s.publish(ctx, queue.LifecycleEvent{
			Kind: queue.KindReminderSent, SecretID: sec.ID, Tier: tier.Name,
			OccurredAt: now.UTC().Format(time.RFC3339),
		})
	}

	// Terminal either way: mark the tier so this cycle never re-sends it.
	if err := s.dedupe.MarkSent(ctx, sec.ID, tier.Name, sec.LastCheckIn, nowMs); err != nil {
		log.Printf("scheduler: mark tier %s sent for secret %s failed: %v", tier.Name, sec.ID, err)
	}
	return res.Success
}

// disclose sends the disclosure to every recipient, then performs the
// terminal transition.  The deadline has truly passed, so send failures are
// escalated rather than blocking the transition; the secret must not stay
// active and leak reminders forever.
func (s *Scheduler) disclose(ctx context.Context, sec *model.Secret, now time.Time) bool {
	occurred := now.UTC().Format(time.RFC3339)
	for _, rcpt := range sec.Recipients {
		if rcpt.Email == "" {
			continue // SMS recipients belong to a different delivery core
		}
		subject, body := s.render.Disclosure(sec, rcpt)
		res := s.mailer.Send(ctx, email.EmailData{
			To:      rcpt.Email,
			Subject: subject,
			Body:    body,
			Type:    email.TypeDisclosure,
		})
		if !res.Success {
			s.recordFailure(ctx, email.TypeDisclosure, rcpt.Email, subject, res.Error)
			s.publish(ctx, queue.LifecycleEvent{
				Kind: queue.KindDisclosureFailed, SecretID: sec.ID, Recipient: rcpt.Email,
				Detail: res.Error, OccurredAt: occurred,
			})
		} else {
			s.recordRecovery(ctx, email.TypeDisclosure, rcpt.Email, subject)
		}
	}

	ok, err := s.secrets.MarkTriggered(ctx, sec.ID, now.UnixMilli())
	if err != nil {
		log.Printf("scheduler: mark secret %s triggered failed: %v", sec.ID, err)
		return false
	}
	if !ok {
		// A concurrent run already triggered it, or a check-in slipped in
		// and moved the deadline; either way the transition is not ours.
		return false
	}
	s.publish(ctx, queue.LifecycleEvent{
		Kind: queue.KindDisclosed, SecretID: sec.ID, OccurredAt: occurred,
	})
	return true
}

func (s *Scheduler) recordFailure(ctx context.Context, typ email.EmailType, recipient, subject, errMsg string) {
	err := s.esc.Record(ctx, escalation.FailureData{
		Type:         typ,
		Provider:     s.mailer.ProviderName(),
		Recipient:    recipient,
		Subject:      subject,
		ErrorMessage: errMsg,
	})
	if err != nil {
		log.Printf("scheduler: record %s failure for %s failed: %v", typ, recipient, err)
	}
}

// recordRecovery gives the escalation service a chance to close an earlier
// failure record for the same logical send.  Best-effort.
func (s *Scheduler) recordRecovery(ctx context.Context, typ email.EmailType, recipient, subject string) {
	if err := s.esc.Delivered(ctx, typ, recipient, subject); err != nil {
		log.Printf("scheduler: resolve recovered %s send to %s failed: %v", typ, recipient, err)
	}
}

func (s *Scheduler) publish(ctx context.Context, ev queue.LifecycleEvent) {
	if s.pub == nil {
		return
	}
	_ = s.pub.PublishLifecycle(ctx, ev) // audit is best-effort
}
