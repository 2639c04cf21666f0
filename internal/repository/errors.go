// Package repository owns all SQL against the MySQL store.  These sentinel
// values let higher layers distinguish failure scenarios without leaking
// database/sql details: the check-in service maps ErrTokenNotFound to an
// invalid-token response and ErrSecretNotFound to a 404, for example.
package repository

import "errors"

// ErrSecretNotFound is returned when a secret id does not exist or a
// conditional update matched no active row.
var ErrSecretNotFound = errors.New("secret not found")

// ErrTokenNotFound is returned when a check-in token does not exist.
var ErrTokenNotFound = errors.New("check-in token not found")

// ErrFailureNotFound is returned when an email-failure id does not exist.
var ErrFailureNotFound = errors.New("email failure not found")
