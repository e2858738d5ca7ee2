package models

import "errors"

// Domain sentinel errors. Services wrap these with %w so the HTTP layer can
// map them to status codes with errors.Is.
var (
	// ErrNotFound indicates the referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates the request was well-formed but violates a
	// domain rule (oversell, overdraw, bad asset class).
	ErrValidation = errors.New("validation failed")

	// ErrConflict indicates the operation collides with existing state,
	// such as a second snapshot on the same calendar day.
	ErrConflict = errors.New("conflict")
)
