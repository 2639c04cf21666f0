package email

import (
	"context"
	"fmt"
)

// Message is the provider-level send request, built by the Service after
// validation.
type Message struct {
	From     string
	To       string
	Subject  string
	Body     string
	HTMLBody string
	Headers  map[string]string
	Tracking bool
}

// ProviderResult reports a successful hand-off to the provider.
type ProviderResult struct {
	MessageID       string
	TrackingHonored bool
}

// Provider performs one delivery attempt.  Implementations classify their
// failures by returning a *SendError so the Service can decide whether to
// retry; any other error type is treated as retryable-unknown.
type Provider interface {
	Name() string
	Send(ctx context.Context, msg Message) (ProviderResult, error)
}

// ErrorKind buckets provider failures for the retry policy.
type ErrorKind int

const (
	KindUnknown          ErrorKind = iota // unclassified, retried cautiously
	KindAuth                              // bad credentials, permanent
	KindInvalidRecipient                  // rejected address, permanent
	KindNetwork                           // connect/transport failure, transient
	KindTimeout                           // deadline exceeded, transient
	KindRateLimit                         // provider throttling, transient with hint
)

// SendError is a classified provider failure.
type SendError struct {
	Kind       ErrorKind
	Msg        string
	RetryAfter int // seconds until the provider wants another attempt, rate limits only
	Remaining  int // remaining quota reported alongside a rate limit, if any
}

func (e *SendError) Error() string { return e.Msg }

// Retryable reports whether another attempt could plausibly succeed.
func (e *SendError) Retryable() bool {
	switch e.Kind {
	case KindAuth, KindInvalidRecipient:
		return false
	default:
		return true
	}
}

// classify normalizes an arbitrary provider error into a *SendError.
func classify(err error) *SendError {
	if se, ok := err.(*SendError); ok {
		return se
	}
	return &SendError{Kind: KindUnknown, Msg: fmt.Sprintf("provider error: %v", err)}
}
