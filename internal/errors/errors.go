package errors

import "errors"

// Application errors for type-safe error handling.
// Check them with errors.Is instead of comparing error strings.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("resource not found")
	ErrConflict   = errors.New("conflict")

	// photo lifecycle
	ErrExpired         = errors.New("photo expired")
	ErrAlreadyReceived = errors.New("photo already received")
	ErrAlreadyClaimed  = errors.New("photo already claimed by another user")
	ErrNotYetReceived  = errors.New("photo not yet received")

	// ErrReceiveRejected is the single outward signal of a failed receive.
	// It is joined with the concrete cause (ErrNotFound, ErrExpired or
	// ErrAlreadyReceived) so logs can still tell them apart.
	ErrReceiveRejected = errors.New("photo not found or already received")

	ErrUnauthorized = errors.New("unauthorized")
	ErrUnavailable  = errors.New("storage unavailable")
)
