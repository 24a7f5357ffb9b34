package service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
)

var (
	ErrQueueNotFound     = fmt.Errorf("queue %w", ErrNotFound)
	ErrMessageNotFound   = fmt.Errorf("message %w", ErrNotFound)
	ErrHandRaiseNotFound = fmt.Errorf("hand raise %w", ErrNotFound)

	ErrMissingSecret     = fmt.Errorf("host secret is required: %w", ErrUnauthorized)
	ErrInvalidSecret     = fmt.Errorf("invalid host secret: %w", ErrUnauthorized)
	ErrSecretMismatch    = fmt.Errorf("host secret does not match: %w", ErrForbidden)
	ErrInvalidUserToken  = fmt.Errorf("invalid user token: %w", ErrUnauthorized)
	ErrMissingCredential = fmt.Errorf("host secret or user token is required: %w", ErrUnauthorized)
	ErrNotAuthor         = fmt.Errorf("only the host or the author may do this: %w", ErrUnauthorized)

	ErrAlreadyVoted    = fmt.Errorf("already voted: %w", ErrConflict)
	ErrActiveHandRaise = fmt.Errorf("user already has an active hand raise: %w", ErrConflict)
)

// ValidationError reports one rejected input field. It matches
// ErrInvalidInput under errors.Is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Reason
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
