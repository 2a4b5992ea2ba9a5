package core

import (
	"errors"
	"fmt"
)

// Error kinds returned by the document and payment services.
// Callers match them with errors.Is; detail types below unwrap to them.
var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidState       = errors.New("invalid state")
	ErrInvalidToken       = errors.New("invalid approval token")
	ErrTokenExpired       = errors.New("approval token expired")
	ErrDuplicateOperation = errors.New("duplicate operation")
	ErrExternalProcessor  = errors.New("payment processor error")
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation failed")
)

// StateError reports a transition attempted from a status that forbids it.
type StateError struct {
	Entity string // "quote", "invoice", "payment"
	ID     int
	Status string
	Op     string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s %d cannot %s: status is %s", e.Entity, e.ID, e.Op, e.Status)
}

func (e *StateError) Unwrap() error { return ErrInvalidState }

func stateError(entity string, id int, status, op string) error {
	return &StateError{Entity: entity, ID: id, Status: status, Op: op}
}

// ProcessorError carries the processor's own message for a failed create or capture.
type ProcessorError struct {
	Op      string // "create", "capture"
	Message string
	Err     error
}

func (e *ProcessorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payment processor %s failed: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("payment processor %s failed: %s", e.Op, e.Message)
}

func (e *ProcessorError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrExternalProcessor, e.Err}
	}
	return []error{ErrExternalProcessor}
}

// DeclinedError is returned by a Processor when the payer's approval is
// missing or the processor definitively refused the capture. Transport
// failures must not use it: those leave the payment pending for a retry.
type DeclinedError struct {
	Reason string
}

func (e *DeclinedError) Error() string { return "payment declined: " + e.Reason }

func invalidAmount(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidAmount, fmt.Sprintf(format, args...))
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func notFound(entity string, ref any) error {
	return fmt.Errorf("%s %v: %w", entity, ref, ErrNotFound)
}
