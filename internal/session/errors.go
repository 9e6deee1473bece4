package session

import "errors"

// Protocol error taxonomy. These are rejected before any native call and
// surfaced to the client as distinct statuses; native-call failures after
// dispatch are reported as data flags on the step outcome instead.
var (
	// ErrPhaseViolation reports a call made in the wrong lifecycle state,
	// e.g. step before init or a second init on the same session.
	ErrPhaseViolation = errors.New("phase violation")

	// ErrSessionDead reports a session whose native engine is unrecoverable
	// (stale after a non-cancellable timeout, or faulted). Every call except
	// close fails with this until the client opens a new session.
	ErrSessionDead = errors.New("session dead")

	// ErrUnknownSession reports a session id the manager does not track.
	ErrUnknownSession = errors.New("unknown session")

	// ErrSessionLimit reports that the manager's session cap is reached.
	ErrSessionLimit = errors.New("session limit reached")
)
