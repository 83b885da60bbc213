// Package ticket implements the support-ticket core: the durable store,
// the creation rate limiter, and the lifecycle workflow
// (create → claim → reply ↔ reply → transfer → close).
package ticket

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for the ticket lifecycle. Checked with errors.Is.
var (
	// ErrNotFound: the ticket (or requested message) does not exist.
	ErrNotFound = errors.New("ticket: not found")

	// ErrUnclaimed: a staff-only operation was attempted on a ticket with
	// no assigned staff member.
	ErrUnclaimed = errors.New("ticket: unclaimed")

	// ErrAlreadyClaimed: the claim race was lost; another staff member
	// holds the ticket.
	ErrAlreadyClaimed = errors.New("ticket: already claimed")

	// ErrDMUnavailable: the user cannot receive direct messages, so a
	// ticket cannot be created for them.
	ErrDMUnavailable = errors.New("ticket: user cannot receive direct messages")
)

// ValidationError carries every violated subject/body rule so the user can
// fix all of them at once.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "ticket: validation failed: " + strings.Join(e.Violations, "; ")
}

// RateLimitedError reports how long the user must wait before creating
// another ticket.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("ticket: rate limited, retry in %s", e.RetryAfter.Round(time.Second))
}

// PersistenceError wraps a storage failure. It is fatal for the current
// operation and always surfaced to the caller, never swallowed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ticket: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
