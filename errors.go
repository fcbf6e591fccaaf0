package membership

import (
	"errors"
	"fmt"

	"go-membership/database"
)

// Code classifies engine errors for callers.
type Code string

const (
	// CodeConflict means the user already holds an active membership in another community.
	CodeConflict Code = "CONFLICT"
	// CodeNotFound means a community, record or user does not exist (or is not eligible).
	CodeNotFound Code = "NOT_FOUND"
	// CodeUnauthorized means the acting user may not perform the operation.
	CodeUnauthorized Code = "UNAUTHORIZED"
	// CodeValidation means the request is malformed or not allowed in this context.
	CodeValidation Code = "VALIDATION"
	// CodeState means the record is not in a state that allows the transition.
	CodeState Code = "STATE"
	// CodeTransient means the store hit contention or lost its connection; the caller may retry.
	CodeTransient Code = "TRANSIENT"
	// CodeStore means the store rejected the operation in a way retrying will not fix.
	CodeStore Code = "STORE"
)

// Sentinels for errors.Is. They match any *Error with the same code.
var (
	ErrConflict     = &Error{Code: CodeConflict, Message: "active membership exists"}
	ErrNotFound     = &Error{Code: CodeNotFound, Message: "not found"}
	ErrUnauthorized = &Error{Code: CodeUnauthorized, Message: "unauthorized"}
	ErrValidation   = &Error{Code: CodeValidation, Message: "invalid request"}
	ErrState        = &Error{Code: CodeState, Message: "invalid state"}
	ErrTransient    = &Error{Code: CodeTransient, Message: "store unavailable"}
	ErrStore        = &Error{Code: CodeStore, Message: "store failure"}
)

// Conflict identifies the membership that blocked a request.
type Conflict struct {
	CommunityID string
	Status      Status
}

// Error is the engine's error type.
type Error struct {
	Code     Code
	Message  string
	Conflict *Conflict // set for CodeConflict
	Status   Status    // current record status, set for CodeState
	Cause    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

func newError(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

func conflictError(userID string, active *Record) *Error {
	return &Error{
		Code:    CodeConflict,
		Message: fmt.Sprintf("user %s already has a %s membership in community %s", userID, active.Status, active.CommunityID),
		Conflict: &Conflict{
			CommunityID: active.CommunityID,
			Status:      active.Status,
		},
	}
}

func stateError(recordID string, current Status) *Error {
	return &Error{
		Code:    CodeState,
		Message: fmt.Sprintf("membership %s is %s", recordID, current),
		Status:  current,
	}
}

// storeError wraps a store failure as CodeTransient when retrying can help and as
// CodeStore otherwise. Errors that are already engine errors pass through.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}

	var engineErr *Error
	if errors.As(err, &engineErr) {
		return err
	}

	// A unique violation means a concurrent writer won; a retry sees its row.
	var code = CodeStore
	if database.IsRetryable(err) || database.IsUniqueViolation(err) {
		code = CodeTransient
	}

	return &Error{
		Code:    code,
		Message: "failed to " + op,
		Cause:   err,
	}
}

// IsConflict reports whether err is a conflict error.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsUnauthorized reports whether err is an authorization error.
func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsState reports whether err is an invalid-state error.
func IsState(err error) bool { return errors.Is(err, ErrState) }

// IsTransient reports whether err is a retryable store error.
func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }

// IsStore reports whether err is a store error that retrying will not fix.
func IsStore(err error) bool { return errors.Is(err, ErrStore) }

// ConflictOf returns the conflicting membership carried by err, if any.
func ConflictOf(err error) (*Conflict, bool) {
	var engineErr *Error
	if errors.As(err, &engineErr) && engineErr.Conflict != nil {
		return engineErr.Conflict, true
	}
	return nil, false
}
