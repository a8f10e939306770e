package session

import "errors"

var (
	// ErrInvalidIdentifier indicates no session identifier could be resolved
	ErrInvalidIdentifier = errors.New("session.invalid_identifier")

	// ErrLockTimeout indicates the per-session lock was not acquired within the wait bound
	ErrLockTimeout = errors.New("session.lock_timeout")

	// ErrIOFailure wraps failures of the underlying storage medium
	ErrIOFailure = errors.New("session.io_failure")

	// ErrRecordNotFound indicates the session record is absent
	ErrRecordNotFound = errors.New("session.record_not_found")

	// ErrRecordExists indicates an insert collided with an existing record
	ErrRecordExists = errors.New("session.record_exists")

	// ErrEnvironmentUnavailable indicates the storage medium cannot be used at all
	ErrEnvironmentUnavailable = errors.New("session.environment_unavailable")

	// ErrNotOpened indicates a lifecycle call before Open
	ErrNotOpened = errors.New("session.not_opened")

	// ErrNotLocked indicates a write without holding the session lock
	ErrNotLocked = errors.New("session.not_locked")

	// ErrPayloadMismatch indicates an unchanged fingerprint but differing cached payload
	ErrPayloadMismatch = errors.New("session.payload_mismatch")

	// ErrNoSession indicates the request context carries no session
	ErrNoSession = errors.New("session.no_session")
)
