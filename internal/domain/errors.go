package domain

import "errors"

var (
	// ErrValidation marks malformed or schema-invalid input. Permanent,
	// never retried.
	ErrValidation = errors.New("invalid input")

	// ErrDuplicateTransaction is returned by the conditional scored
	// transaction insert when the id already exists. Not a failure: the
	// record was already processed.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrVersionConflict signals that a concurrent update advanced the
	// profile version between read and write. Local to the profile update
	// loop; callers re-read and retry.
	ErrVersionConflict = errors.New("profile version conflict")

	// ErrTransientStore covers timeouts and temporary unavailability.
	// Retried with backoff up to the attempt budget.
	ErrTransientStore = errors.New("transient store failure")

	// ErrPermanentStore covers non-retryable store failures such as
	// authorization errors.
	ErrPermanentStore = errors.New("permanent store failure")

	// ErrNotFound is returned by keyed lookups for absent entities.
	ErrNotFound = errors.New("not found")
)
