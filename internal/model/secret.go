package model

// MillisPerDay is the length of one day in milliseconds.  All deadline
// arithmetic in this codebase is done on millisecond epochs so that an
// interval of N days is always exactly N*86400000 ms, regardless of DST
// or calendar irregularities in the server's locale.
const MillisPerDay int64 = 86_400_000

// SecretStatus enumerates the lifecycle states of a secret.
type SecretStatus string

const (
	StatusActive    SecretStatus = "active"    // scheduled for reminders and disclosure
	StatusPaused    SecretStatus = "paused"    // excluded from scheduling until resumed
	StatusTriggered SecretStatus = "triggered" // disclosed; terminal, never re-evaluated
)

// Secret is a deposited secret governed by the dead man's switch.  The
// encrypted payload itself is opaque to this core; HasPayload only records
// whether disclosure content is retrievable.  A secret without a payload is
// in a distinct "disabled" condition, not an error.
//
// Fields:
//  ID                  – primary key (UUID).
//  UserID              – external owner identifier.
//  OwnerEmail          – where check-in reminders are delivered.
//  Title               – user-facing label, echoed on check-in confirmation.
//  CheckInIntervalDays – positive cadence configured by the owner.
//  LastCheckIn         – ms epoch of the most recent check-in.
//  NextCheckIn         – ms epoch of the disclosure deadline; always derived
//                        as LastCheckIn + CheckInIntervalDays*MillisPerDay.
//  Status              – active | paused | triggered.
//  HasPayload          – whether encrypted disclosure content exists.
//  Recipients          – ordered disclosure recipients, at least one.
type Secret struct {
	ID                  string       // secrets.id
	UserID              string       // secrets.user_id
	OwnerEmail          string       // secrets.owner_email
	Title               string       // secrets.title
	CheckInIntervalDays int          // secrets.check_in_interval_days
	LastCheckIn         int64        // secrets.last_check_in (ms epoch)
	NextCheckIn         int64        // secrets.next_check_in (ms epoch)
	Status              SecretStatus // secrets.status
	HasPayload          bool         // secrets.encrypted_payload IS NOT NULL
	Recipients          []Recipient  // ordered by recipients.position
}

// Recipient is one designated receiver of a disclosed secret.  Email is the
// delivery channel used by this core; Phone is carried for collaborators
// that deliver over SMS.
type Recipient struct {
	ID       string // recipients.id (UUID)
	SecretID string // recipients.secret_id
	Position int    // recipients.position (order within the secret)
	Name     string // recipients.name
	Email    string // recipients.email
	Phone    string // recipients.phone
}

// NextCheckInFor computes the deadline that follows a check-in at lastMs.
// Millisecond arithmetic keeps the interval exact across DST transitions.
func NextCheckInFor(lastMs int64, intervalDays int) int64 {
	return lastMs + int64(intervalDays)*MillisPerDay
}
