// Package escalation turns delivery failures into durable records and, for
// severe cases, immediate operator notifications.  Severity is a pure
// function of the email type and how often the same logical send has failed.
package escalation

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/afterword/afterword/internal/email"
	"github.com/afterword/afterword/internal/model"
)

// Severity orders failures for operator attention.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// FailureData describes one failed logical send.
type FailureData struct {
	Type         email.EmailType
	Provider     string
	Recipient    string
	Subject      string
	ErrorMessage string
}

// Store is the persistence surface the service needs.  Implemented by
// repository.FailureRepo.
type Store interface {
	Create(ctx context.Context, f *model.EmailFailure) error
	FindUnresolved(ctx context.Context, emailType, recipient, subject string) (*model.EmailFailure, error)
	IncrementRetry(ctx context.Context, id, errorMessage string) (int, error)
	Resolve(ctx context.Context, id string, resolvedAtMs int64) error
	ListUnresolved(ctx context.Context, limit int) ([]model.EmailFailure, error)
	DeleteResolvedBefore(ctx context.Context, cutoffMs int64) (int64, error)
}

// Notifier sends the operator email.  Implemented by email.Service.
type Notifier interface {
	Send(ctx context.Context, data email.EmailData) email.EmailResult
}

// Service records failures, escalates the severe ones, and supports
// operator resolution and retention cleanup.
type Service struct {
	store      Store
	notifier   Notifier
	notifyAddr string
	now        func() time.Time
}

func NewService(store Store, notifier Notifier, notifyAddr string) *Service {
	return &Service{store: store, notifier: notifier, notifyAddr: notifyAddr, now: time.Now}
}

// ComputeSeverity classifies a failure.  Disclosure failures are always
// critical: a missed disclosure is the one mistake this system exists to
// avoid.  Reminder failures escalate to high once retries pile up.
func ComputeSeverity(emailType email.EmailType, retryCount int) Severity {
	switch emailType {
	case email.TypeDisclosure:
		return SeverityCritical
	case email.TypeReminder:
		if retryCount > 3 {
			return SeverityHigh
		}
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Record persists the failure, bumping RetryCount when the same logical send
// has already failed, and notifies operators for critical/high severity.
// Recording never returns a notification error; operator notification is
// best-effort on top of the durable record.
func (s *Service) Record(ctx context.Context, data FailureData) error {
	nowMs := s.now().UnixMilli()

	retryCount := 0
	existing, err := s.store.FindUnresolved(ctx, string(data.Type), data.Recipient, data.Subject)
	if err != nil {
		return fmt.Errorf("escalation: lookup failure record: %w", err)
	}
	if existing != nil {
		retryCount, err = s.store.IncrementRetry(ctx, existing.ID, data.ErrorMessage)
		if err != nil {
			return fmt.Errorf("escalation: increment retry: %w", err)
		}
	} else {
		f := &model.EmailFailure{
			EmailType:    string(data.Type),
			Provider:     data.Provider,
			Recipient:    data.Recipient,
			Subject:      data.Subject,
			ErrorMessage: data.ErrorMessage,
			CreatedAt:    nowMs,
		}
		if err := s.store.Create(ctx, f); err != nil {
			return fmt.Errorf("escalation: create failure record: %w", err)
		}
	}

	severity := ComputeSeverity(data.Type, retryCount)
	log.Printf("escalation: %s send to %s failed (severity=%s retries=%d): %s",
		data.Type, data.Recipient, severity, retryCount, data.ErrorMessage)

	if severity == SeverityCritical || severity == SeverityHigh {
		s.notifyOperators(ctx, data, severity, retryCount)
	}
	return nil
}

func (s *Service) notifyOperators(ctx context.Context, data FailureData, severity Severity, retryCount int) {
	body := fmt.Sprintf(
		"A %s email could not be delivered.\n\nSeverity: %s\nProvider: %s\nRecipient: %s\nSubject: %s\nRetries: %d\nError: %s\n",
		data.Type, severity, data.Provider, data.Recipient, data.Subject, retryCount, data.ErrorMessage)

	res := s.notifier.Send(ctx, email.EmailData{
		To:      s.notifyAddr,
		Subject: fmt.Sprintf("[%s] email delivery failure: %s", severity, data.Type),
		Body:    body,
		Type:    email.TypeAdminNotification,
		Headers: map[string]string{
			"X-Priority": "1",
			"Importance": "high",
		},
	})
	if !res.Success {
		log.Printf("escalation: operator notification to %s failed after %d attempts: %s",
			s.notifyAddr, res.Attempts, res.Error)
	}
}

// Delivered closes the open failure record for a logical send after a later
// attempt got through.  Most sends have no open record, which is a no-op.
func (s *Service) Delivered(ctx context.Context, emailType email.EmailType, recipient, subject string) error {
	existing, err := s.store.FindUnresolved(ctx, string(emailType), recipient, subject)
	if err != nil {
		return fmt.Errorf("escalation: lookup failure record: %w", err)
	}
	if existing == nil {
		return nil
	}
	if err := s.store.Resolve(ctx, existing.ID, s.now().UnixMilli()); err != nil {
		return fmt.Errorf("escalation: resolve failure record: %w", err)
	}
	log.Printf("escalation: %s send to %s recovered, failure %s resolved",
		emailType, recipient, existing.ID)
	return nil
}

// Resolve marks a failure as handled, either because delivery eventually
// succeeded or because an operator dealt with it.
func (s *Service) Resolve(ctx context.Context, id string) error {
	return s.store.Resolve(ctx, id, s.now().UnixMilli())
}

// ListUnresolved returns outstanding failures for the ops surface.
func (s *Service) ListUnresolved(ctx context.Context, limit int) ([]model.EmailFailure, error) {
	return s.store.ListUnresolved(ctx, limit)
}

// Cleanup purges failures that are both resolved and older than the
// retention window.  Unresolved rows are never purged automatically.
func (s *Service) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	cutoff := s.now().UnixMilli() - int64(retentionDays)*model.MillisPerDay
	return s.store.DeleteResolvedBefore(ctx, cutoff)
}
