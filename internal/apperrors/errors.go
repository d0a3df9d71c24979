package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

// RetryableError indicates an error that might be resolved by retrying.
type RetryableError struct {
	Err error
}

// Error implements the error interface.
func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable: %v", e.Err)
}

// Unwrap returns the wrapped error.
func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryable wraps the given error as a RetryableError, adding a message.
// It uses fmt.Errorf with %w to maintain the error chain.
func NewRetryable(err error, message string, args ...interface{}) error {
	format := message + ": %w"
	allArgs := append(args, err)
	return &RetryableError{Err: fmt.Errorf(format, allArgs...)}
}

// FatalError indicates an error that is unlikely to be resolved by retrying.
type FatalError struct {
	Err error
}

// Error implements the error interface.
func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %v", e.Err)
}

// Unwrap returns the wrapped error.
func (e *FatalError) Unwrap() error {
	return e.Err
}

// NewFatal wraps the given error as a FatalError, adding a message.
func NewFatal(err error, message string, args ...interface{}) error {
	format := message + ": %w"
	allArgs := append(args, err)
	return &FatalError{Err: fmt.Errorf(format, allArgs...)}
}

// --- Standard Error Definitions ---

// These sentinel errors define common application-level error conditions.
// They can be checked using errors.Is and potentially wrapped by
// RetryableError or FatalError depending on where they are handled.
var (
	// ErrNotFound indicates a requested resource was not found.
	ErrNotFound = errors.New("resource not found")
	// ErrValidation indicates failure during submission validation.
	ErrValidation = errors.New("validation failed")
	// ErrHoneypot indicates the hidden honeypot field was filled. It is a
	// bot signal, not a user-facing validation error.
	ErrHoneypot = errors.New("honeypot triggered")
	// ErrDatabase indicates a general database interaction error.
	ErrDatabase = errors.New("database error")
	// ErrNATS indicates a general NATS communication error.
	ErrNATS = errors.New("nats communication error")
	// ErrDuplicate indicates an idempotent replay of an already processed request.
	ErrDuplicate = errors.New("duplicate request")
	// ErrConflict indicates loss of an optimistic-concurrency claim
	// (lead already claimed by another assignment attempt).
	ErrConflict = errors.New("resource conflict")
	// ErrBadRequest indicates a malformed or invalid request from the caller.
	ErrBadRequest = errors.New("bad request")
	// ErrTimeout indicates an operation timed out.
	ErrTimeout = errors.New("operation timeout")
	// ErrRateLimited indicates an operation was rate limited.
	ErrRateLimited = errors.New("rate limited")
	// ErrIllegalTransition indicates a lead status change the lifecycle
	// state machine does not permit.
	ErrIllegalTransition = errors.New("illegal status transition")
	// ErrStoreUnavailable indicates the backing store could not be consulted.
	// Rate limiting fails closed on this error.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// FieldError describes a single field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries the full list of field-level errors for a
// rejected submission. It wraps ErrValidation so callers can use errors.Is.
type ValidationError struct {
	Fields []FieldError
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return fmt.Sprintf("%v: %s", ErrValidation, strings.Join(msgs, "; "))
}

// Unwrap returns ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidation builds a ValidationError from field errors.
func NewValidation(fields []FieldError) error {
	return &ValidationError{Fields: fields}
}

// RateLimitError reports a denied request together with the retry hint.
// It wraps ErrRateLimited.
type RateLimitError struct {
	Limit      int
	Count      int
	RetryAfter int // seconds remaining in the window
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%v: %d/%d requests, retry after %ds", ErrRateLimited, e.Count, e.Limit, e.RetryAfter)
}

// Unwrap returns ErrRateLimited.
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// TransitionError reports an illegal lifecycle transition together with
// the legal destinations from the current status. It wraps ErrIllegalTransition.
type TransitionError struct {
	From    string
	To      string
	Allowed []string
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("%v: %s is terminal, no transitions allowed (attempted %s)", ErrIllegalTransition, e.From, e.To)
	}
	return fmt.Sprintf("%v: %s -> %s, legal destinations: %s", ErrIllegalTransition, e.From, e.To, strings.Join(e.Allowed, ", "))
}

// Unwrap returns ErrIllegalTransition.
func (e *TransitionError) Unwrap() error {
	return ErrIllegalTransition
}

// --- Helper functions for checking ---

// IsRetryable checks if the error is a RetryableError or wraps one.
func IsRetryable(err error) bool {
	var target *RetryableError
	return errors.As(err, &target)
}

// IsFatal checks if the error is a FatalError or wraps one.
func IsFatal(err error) bool {
	var target *FatalError
	return errors.As(err, &target)
}

// --- Specific Standard Error Checkers ---

// IsNotFoundError checks if the error is or wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidationError checks if the error is or wraps ErrValidation.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsHoneypotError checks if the error is or wraps ErrHoneypot.
func IsHoneypotError(err error) bool {
	return errors.Is(err, ErrHoneypot)
}

// IsDatabaseError checks if the error is or wraps ErrDatabase.
func IsDatabaseError(err error) bool {
	return errors.Is(err, ErrDatabase)
}

// IsNATSError checks if the error is or wraps ErrNATS.
func IsNATSError(err error) bool {
	return errors.Is(err, ErrNATS)
}

// IsDuplicateError checks if the error is or wraps ErrDuplicate.
func IsDuplicateError(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// IsConflictError checks if the error is or wraps ErrConflict.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsBadRequestError checks if the error is or wraps ErrBadRequest.
func IsBadRequestError(err error) bool {
	return errors.Is(err, ErrBadRequest)
}

// IsTimeoutError checks if the error is or wraps ErrTimeout.
func IsTimeoutError(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsRateLimitedError checks if the error is or wraps ErrRateLimited.
func IsRateLimitedError(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsIllegalTransitionError checks if the error is or wraps ErrIllegalTransition.
func IsIllegalTransitionError(err error) bool {
	return errors.Is(err, ErrIllegalTransition)
}

// IsStoreUnavailableError checks if the error is or wraps ErrStoreUnavailable.
func IsStoreUnavailableError(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
