package review

import "errors"

// Session and bridge errors surfaced to callers as structured JSON-RPC
// error objects, never as crashes.
var (
	// ErrSessionDead means the session's worker process exited or the
	// stdio framing was violated. Pending requests fail with this.
	ErrSessionDead = errors.New("session dead")

	// ErrSessionClosed means the session is draining and accepts no new
	// requests.
	ErrSessionClosed = errors.New("session closed")

	// ErrSessionNotFound means no session with the given ID exists.
	ErrSessionNotFound = errors.New("session not found")

	// ErrStartupTimeout means the worker never emitted its readiness
	// line within the startup deadline.
	ErrStartupTimeout = errors.New("worker startup timeout")

	// ErrFramingViolation means the worker wrote a line exceeding the
	// defensive size bound or otherwise broke the NDJSON framing.
	ErrFramingViolation = errors.New("framing violation")

	// ErrRequestTimeout means the correlated response did not arrive
	// within the per-request deadline.
	ErrRequestTimeout = errors.New("request timeout")
)
