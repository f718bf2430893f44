// Package services defines the business logic of the adherence engine:
// session lifecycle, dose recording, missed-dose sweeping, and adherence
// statistics. This file centralizes common service-level error values so
// that they can be consistently returned by service methods and checked by
// callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler layer.
package services

import "errors"

var (
	// ErrActiveSessionExists indicates the patient already has an active
	// observation window. Whether to end it first is the caller's policy
	// decision, not the engine's.
	ErrActiveSessionExists = errors.New("patient already has an active session")

	// ErrSessionNotFound indicates that the requested session does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrCellNotFound indicates the (date, slot) pair falls outside the
	// session's materialized window. Because the grid is created eagerly, a
	// missing cell always means out-of-window, never "not yet created".
	ErrCellNotFound = errors.New("no tracking cell for that date and slot")

	// ErrInvalidPatient is returned when a patient identifier is blank.
	ErrInvalidPatient = errors.New("invalid patient id")

	// ErrInvalidDate is returned when a date is not a YYYY-MM-DD value.
	ErrInvalidDate = errors.New("invalid date")

	// ErrInvalidSlot is returned when a slot is outside the canonical set.
	ErrInvalidSlot = errors.New("invalid slot")

	// ErrInvalidTimezone is returned when a timezone is not an IANA zone id.
	ErrInvalidTimezone = errors.New("invalid timezone")

	// ErrInvalidRange is returned when a stats date range is inverted or
	// malformed.
	ErrInvalidRange = errors.New("invalid date range")

	// ErrContention is returned when a dose recording exhausted its
	// optimistic-retry budget on a hot cell. The cell state is still
	// consistent; the caller should re-query and try again.
	ErrContention = errors.New("cell update contention, try again")
)
