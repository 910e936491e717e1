package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers deciding whether to retry and how to
// report it.
type Kind string

const (
	KindNotFound   Kind = "not_found"
	KindBadRequest Kind = "bad_request"
	KindForbidden  Kind = "forbidden"
	KindConflict   Kind = "conflict"
	KindInternal   Kind = "internal"
)

// Retryable reports whether an operation failing with this kind may be
// retried by the caller.
func (k Kind) Retryable() bool {
	return k == KindConflict || k == KindInternal
}

// Error is a typed engine error carrying a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

func newError(kind Kind, sentinel error, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	if msg == "" && sentinel != nil {
		msg = sentinel.Error()
	}
	return &Error{Kind: kind, Message: msg, Err: sentinel}
}

// NotFound builds a KindNotFound error wrapping sentinel.
func NotFound(sentinel error, format string, args ...any) error {
	return newError(KindNotFound, sentinel, format, args...)
}

// BadRequest builds a KindBadRequest error wrapping sentinel.
func BadRequest(sentinel error, format string, args ...any) error {
	return newError(KindBadRequest, sentinel, format, args...)
}

// Forbidden builds a KindForbidden error wrapping sentinel.
func Forbidden(sentinel error, format string, args ...any) error {
	return newError(KindForbidden, sentinel, format, args...)
}

// Conflict builds a KindConflict error wrapping cause.
func Conflict(cause error, format string, args ...any) error {
	return newError(KindConflict, cause, format, args...)
}

var (
	// Lookup errors
	ErrMovementNotFound    = errors.New("movement not found")
	ErrAreaNotFound        = errors.New("area not found")
	ErrDepartmentNotFound  = errors.New("department not found")
	ErrBankAccountNotFound = errors.New("bank account not found")

	// Access errors
	ErrNoAreaAccess = errors.New("user has no access to area")

	// Split errors
	ErrTooFewAllocations       = errors.New("too few allocations")
	ErrSplitSumMismatch        = errors.New("allocation sum does not match parent amount")
	ErrAlreadySplit            = errors.New("movement is already split")
	ErrSplitChild              = errors.New("movement is a split child")
	ErrNotSplit                = errors.New("movement is not split")
	ErrDepartmentAreaMismatch  = errors.New("department does not belong to area")
	ErrDeleteChildOfSplit      = errors.New("cannot delete a child of a split movement")
	ErrDistributionNotExpense  = errors.New("only expense movements can be distributed")
	ErrNoDistributionTargets   = errors.New("no distribution targets")
	ErrAlreadyDistributed      = errors.New("movement is already distributed")
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already used")

	// Input errors
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrInvalidCurrency    = errors.New("invalid currency code")
	ErrCurrencyMismatch   = errors.New("currency does not match area currency")
	ErrInvalidType        = errors.New("invalid movement type")
	ErrInvalidDestination = errors.New("destination account is only allowed on transfers")
	ErrMissingUser        = errors.New("user id is required")
	ErrInvalidCursor      = errors.New("invalid cursor")
	ErrDescriptionTooLong = errors.New("description too long")
	ErrConcurrentMutation = errors.New("movement is being modified concurrently")
)
