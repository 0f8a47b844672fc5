package service

import "errors"

var (
	// ErrValidationFailed signals malformed input, including destinations
	// rejected by the safety validator. Never retried.
	ErrValidationFailed = errors.New("validation failed")
	// ErrInvalidCode signals a custom code that breaks the format rules.
	ErrInvalidCode = errors.New("invalid short code")
	// ErrReservedCode signals a custom code on the reserved-word list.
	ErrReservedCode = errors.New("short code is reserved")
	// ErrCodeTaken signals a collision on a caller-supplied code. Terminal;
	// the caller picks a different code.
	ErrCodeTaken = errors.New("short code is already taken")
	// ErrAllocationExhausted signals that random-code generation ran out of
	// retry attempts. Transient; the caller may try again.
	ErrAllocationExhausted = errors.New("could not allocate a unique code")
)
