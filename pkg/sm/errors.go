package sm

import "errors"

// Error kinds (spec.md §7). The engine never retries; every failure is
// surfaced to the caller as one of these, wrapped with context via
// fmt.Errorf("...: %w", ...) the way the teacher's iso7816 package does.
var (
	// ErrMalformedAPDU is returned when the classifier rejects a command;
	// Wrap aborts without mutating the session's SSC.
	ErrMalformedAPDU = errors.New("sm: malformed command apdu")

	// ErrMissingDO99 is returned when a response lacks the mandatory
	// DO99; Unwrap aborts.
	ErrMissingDO99 = errors.New("sm: response missing mandatory DO99")

	// ErrBadMAC is returned when the computed MAC does not match DO8E;
	// Unwrap aborts and the session moves to Failed.
	ErrBadMAC = errors.New("sm: mac verification failed")

	// ErrCipherFailure wraps an error reported by the Provider; Wrap or
	// Unwrap aborts and the session moves to Failed.
	ErrCipherFailure = errors.New("sm: cipher provider failure")

	// ErrUnsupportedOperation is returned for optional features this
	// engine does not implement (e.g. auxiliary authenticated data,
	// tag 0x67).
	ErrUnsupportedOperation = errors.New("sm: unsupported operation")

	// ErrSessionFailed is returned by Wrap/Unwrap when the session has
	// already transitioned to the Failed state (spec.md §4.4.5, §9 open
	// question resolution: failure is terminal, no implicit recovery).
	ErrSessionFailed = errors.New("sm: session is in the failed state")
)
