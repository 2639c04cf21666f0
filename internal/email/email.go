// Package email is the provider-abstracted delivery layer.  A Service wraps
// a Provider with input validation, bounded retry with exponential backoff,
// and error classification, so callers only ever see a terminal EmailResult.
package email

import "regexp"

// EmailType tags the purpose of a send.  Failure escalation severity is a
// function of this type.
type EmailType string

const (
	TypeReminder          EmailType = "reminder"
	TypeDisclosure        EmailType = "disclosure"
	TypeAdminNotification EmailType = "admin_notification"
	TypeVerification      EmailType = "verification"
)

// EmailData is the caller-facing send request.
type EmailData struct {
	To       string
	Subject  string
	Body     string
	HTMLBody string            // optional HTML alternative
	Type     EmailType         //
	Headers  map[string]string // extra headers, e.g. priority markers
	Tracking bool              // ask the provider for open/click tracking
}

// EmailResult is the terminal outcome of a send after validation and all
// retries.  Attempts counts provider calls actually made: a validation
// failure never reaches the network and reports 0.
type EmailResult struct {
	Success         bool
	MessageID       string
	Error           string
	Retryable       bool // whether the caller could usefully retry later
	RetryAfter      int  // provider-suggested wait in seconds, 0 if none
	Attempts        int
	TrackingHonored bool
}

// Loose RFC shape: printable local part, an @, and a dotted domain.  Full
// RFC 5322 validation is the provider's problem.
var addressRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// validate rejects structurally hopeless sends before any network attempt.
// Returns an empty string when the data is sendable.
func validate(d EmailData) string {
	switch {
	case d.To == "":
		return "recipient address is required"
	case !addressRe.MatchString(d.To):
		return "recipient address is not a valid email"
	case d.Subject == "":
		return "subject is required"
	case d.Body == "" && d.HTMLBody == "":
		return "message body is required"
	}
	return ""
}
