package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every component. The dispatcher converts all of
// these into user-facing envelopes; nothing below it raises past that
// boundary to a transport.
var (
	// ErrPersonaNotFound means an unknown persona was addressed.
	ErrPersonaNotFound = errors.New("persona not found")

	// ErrResourceNotFound means a named project or repository is unknown.
	ErrResourceNotFound = errors.New("resource not found")

	// ErrNotConnected means a service action was attempted without credentials.
	ErrNotConnected = errors.New("service not connected")

	// ErrConnectionFailed means credential validation against the service failed.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrUpstream means the chat-completion or service call failed.
	ErrUpstream = errors.New("upstream call failed")

	// ErrUpstreamTimeout means the upstream call exceeded its deadline.
	ErrUpstreamTimeout = errors.New("upstream call timed out")

	// ErrUnknownCommand means the action token was not recognized.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrThreadBusy means the per-thread lock could not be acquired in time.
	ErrThreadBusy = errors.New("thread busy")
)

// MalformedArgumentsError reports that the parser could not extract required
// arguments. Usage carries the hint shown to the user.
type MalformedArgumentsError struct {
	Usage string
}

func (e *MalformedArgumentsError) Error() string {
	return "malformed arguments"
}

// ServiceError carries an HTTP-like status from an external service call.
type ServiceError struct {
	Service string
	Status  int
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Service, e.Status, e.Message)
}

// Unwrap maps authentication failures onto ErrConnectionFailed so callers
// can detect stale credentials with errors.Is.
func (e *ServiceError) Unwrap() error {
	if e.Status == 401 || e.Status == 403 {
		return ErrConnectionFailed
	}
	return ErrUpstream
}
