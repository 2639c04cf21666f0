package model

// GraceWindowMillis is how long a consumed check-in token remains valid for
// the read-only share-retrieval path.  The first consumption both resets the
// check-in deadline and authorizes this limited-time materialized read; the
// window never authorizes a second deadline reset.
const GraceWindowMillis int64 = 24 * 60 * 60 * 1000

// CheckInToken is a single-use credential mailed to a secret's owner.
// Presenting it resets the secret's check-in deadline exactly once; the
// first writer to set UsedAt wins and every concurrent duplicate fails.
//
// Fields:
//  Token     – opaque random credential, primary key.
//  SecretID  – secret whose deadline this token resets.
//  ExpiresAt – ms epoch after which the token is rejected outright.
//  UsedAt    – ms epoch of consumption; nil until consumed.
//  CreatedAt – ms epoch of issuance.
type CheckInToken struct {
	Token     string // check_in_tokens.token
	SecretID  string // check_in_tokens.secret_id
	ExpiresAt int64  // check_in_tokens.expires_at (ms epoch)
	UsedAt    *int64 // check_in_tokens.used_at (nullable ms epoch)
	CreatedAt int64  // check_in_tokens.created_at (ms epoch)
}

// Consumed reports whether the token's one deadline reset has been spent.
func (t *CheckInToken) Consumed() bool { return t.UsedAt != nil }

// InGraceWindow reports whether nowMs still falls inside the 24-hour
// share-retrieval window that opens at consumption.  Always false for an
// unconsumed token.
func (t *CheckInToken) InGraceWindow(nowMs int64) bool {
	return t.UsedAt != nil && nowMs <= *t.UsedAt+GraceWindowMillis
}
