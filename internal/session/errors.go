package session

import "errors"

// Operational fault sentinels (spec §7). All three terminate the
// originating driver's connection; callers should never retry on these.
var (
	// ErrInvalidOperation covers a malformed op, a wrong base_len, or an
	// impossible rebase against the session's history.
	ErrInvalidOperation = errors.New("session: invalid operation")

	// ErrRevisionAhead means the submitted parent revision exceeds the
	// session's current log length.
	ErrRevisionAhead = errors.New("session: parent revision ahead of log")

	// ErrUnknownParticipant means the call names a participant id that
	// has never attached, or has already detached.
	ErrUnknownParticipant = errors.New("session: unknown participant")
)
