package shared

import "errors"

var (
	// ErrNotFound indicates a referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness violation (username, IMEI, plate, ...).
	ErrConflict = errors.New("conflict")
	// ErrInvalidState indicates an operation against an inactive or retired record.
	ErrInvalidState = errors.New("invalid state")
	// ErrPermissionDenied indicates the actor is not authorized for the operation.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrValidation indicates a malformed request.
	ErrValidation = errors.New("validation failed")
)
