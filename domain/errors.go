package domain

import "fmt"

// Error is a coded domain error. Errors compare by code through errors.Is,
// so callers can match a sentinel while the reason carries the
// human-readable explanation for audit and display.
type Error struct {
	Code   string
	Reason string
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// WithReason returns a copy carrying a specific reason; the copy still
// matches its sentinel through errors.Is.
func (e *Error) WithReason(format string, args ...any) *Error {
	return &Error{Code: e.Code, Reason: fmt.Sprintf(format, args...)}
}

// Admission errors: expected, user-facing, never retried automatically.
var (
	ErrOutOfSchedule      = &Error{Code: "OUT_OF_SCHEDULE", Reason: "requested window is outside the spot's availability"}
	ErrFullyBooked        = &Error{Code: "FULLY_BOOKED", Reason: "spot capacity is exhausted for the requested window"}
	ErrInsufficientBuffer = &Error{Code: "INSUFFICIENT_BUFFER", Reason: "requested window is too close to an existing reservation"}
	ErrSpotInactive       = &Error{Code: "SPOT_INACTIVE", Reason: "spot is not accepting reservations"}
)

// State errors: the caller holds a stale view of the reservation.
var (
	ErrInvalidState = &Error{Code: "INVALID_STATE", Reason: "operation not allowed in the current status"}
	ErrNotCheckedIn = &Error{Code: "NOT_CHECKED_IN", Reason: "reservation has no check-in record"}
	ErrTooEarly     = &Error{Code: "TOO_EARLY", Reason: "check-in window has not opened yet"}
	ErrNoShow       = &Error{Code: "NO_SHOW", Reason: "check-in window has closed"}
)

// Input errors: programming or caller mistakes, not operational failures.
var (
	ErrInvalidWindow  = &Error{Code: "INVALID_WINDOW", Reason: "endTime must be after startTime"}
	ErrInvalidRequest = &Error{Code: "INVALID_REQUEST", Reason: "request failed validation"}
)

// Storage errors.
var (
	ErrNotFound = &Error{Code: "NOT_FOUND", Reason: "reservation not found"}
	ErrConflict = &Error{Code: "CONFLICT", Reason: "storage rejected a conflicting insert"}
)
