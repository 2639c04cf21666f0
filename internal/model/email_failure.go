package model

// EmailFailure records one logical send that could not be delivered.  The
// same logical send (type + recipient + subject) accumulates RetryCount
// across scheduler runs instead of producing duplicate rows.  ResolvedAt is
// set when delivery eventually succeeds or an operator marks the row
// resolved; only resolved rows older than the retention window are purged.
//
// Fields:
//  ID           – primary key (UUID).
//  EmailType    – reminder | disclosure | admin_notification | verification.
//  Provider     – name of the provider that failed (e.g. "smtp", "mock").
//  Recipient    – destination address of the failed send.
//  Subject      – subject line of the failed send.
//  ErrorMessage – most recent provider error.
//  RetryCount   – failures observed after the first one.
//  CreatedAt    – ms epoch of the first failure.
//  ResolvedAt   – ms epoch of resolution; nil while outstanding.
type EmailFailure struct {
	ID           string // email_failures.id
	EmailType    string // email_failures.email_type
	Provider     string // email_failures.provider
	Recipient    string // email_failures.recipient
	Subject      string // email_failures.subject
	ErrorMessage string // email_failures.error_message
	RetryCount   int    // email_failures.retry_count
	CreatedAt    int64  // email_failures.created_at (ms epoch)
	ResolvedAt   *int64 // email_failures.resolved_at (nullable ms epoch)
}
