// Package rvErrors defines the abstract error taxonomy shared by every
// rowvault component: name validation, lookup failures, schema
// violations, crypto failures and I/O failures all resolve to one of
// the sentinels below so callers can dispatch with errors.Is instead
// of string matching.
package rvErrors

import "github.com/pkg/errors"

var (
	// ErrNameInvalid is returned when a database, table or row
	// identifier does not match [A-Za-z0-9]+.
	ErrNameInvalid = errors.New("rowvault: name must be alphanumeric")

	// ErrNotFound is returned when a referenced database, table, row
	// or column does not exist.
	ErrNotFound = errors.New("rowvault: not found")

	// ErrAlreadyExists is returned when a create target already
	// exists. Most call sites report this as a bool instead of
	// raising it; it exists for the call sites that can't.
	ErrAlreadyExists = errors.New("rowvault: already exists")

	// ErrSchemaViolation is returned when a value fails a column's
	// type, required or enum-membership check.
	ErrSchemaViolation = errors.New("rowvault: schema violation")

	// ErrCryptoRequired is returned when an operation touches an
	// encrypted column but no KEK was supplied to the database.
	ErrCryptoRequired = errors.New("rowvault: kek required")

	// ErrCryptoFailed is returned when a KEK fails to unwrap a DEK,
	// or an HMAC tag fails to verify on read.
	ErrCryptoFailed = errors.New("rowvault: decryption failed")

	// ErrIOFailure is returned when a lock acquisition, write,
	// rename or remove fails.
	ErrIOFailure = errors.New("rowvault: io failure")

	// ErrQueryMalformed is returned for a missing from(), a bad sort
	// order or an invalid limit.
	ErrQueryMalformed = errors.New("rowvault: malformed query")

	// ErrInternal marks an invariant violation that should be
	// unreachable in correct code.
	ErrInternal = errors.New("rowvault: internal invariant violated")
)

// Wrap attaches context to err while preserving errors.Is matching
// against the sentinels above.
func Wrap(err error, kind error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(joinKind(err, kind), "%s", msg)
}

// joinKind lets errors.Is(result, kind) succeed even though the
// underlying err may carry unrelated detail (e.g. an *os.PathError).
func joinKind(err, kind error) error {
	return &kindError{kind: kind, cause: err}
}

type kindError struct {
	kind  error
	cause error
}

func (e *kindError) Error() string { return e.cause.Error() }
func (e *kindError) Unwrap() error { return e.cause }
func (e *kindError) Is(target error) bool {
	return target == e.kind
}
