// Package apperr defines the error taxonomy shared by the points, attendance
// and redemption services. Handlers translate these into HTTP responses.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrLimitReached       = errors.New("points already awarded to this member today")
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrNotFound           = errors.New("not found")
	ErrAlreadyCollected   = errors.New("reward already collected")
	ErrCodeMismatch       = errors.New("redeem code does not match")
	ErrOperationFailed    = errors.New("operation failed")
	ErrForbidden          = errors.New("forbidden")
)

// ValidationError reports a missing or invalid input field. It is returned
// before any store call is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Invalid is shorthand for building a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// InsufficientPointsError carries the balance and cost so callers can show
// the shortfall. It matches ErrInsufficientPoints.
type InsufficientPointsError struct {
	Balance int
	Cost    int
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient points: need %d, have %d (short by %d)", e.Cost, e.Balance, e.Shortfall())
}

func (e *InsufficientPointsError) Shortfall() int {
	return e.Cost - e.Balance
}

func (e *InsufficientPointsError) Is(target error) bool {
	return target == ErrInsufficientPoints
}

// OperationError wraps an underlying store failure. Callers must not assume
// which effects of the operation, if any, were applied unless the operation
// documents that it is transactional.
type OperationError struct {
	Op  string
	Err error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

func (e *OperationError) Is(target error) bool {
	return target == ErrOperationFailed
}

// Failed wraps err as an OperationError unless it already belongs to the
// taxonomy, in which case it is returned unchanged.
func Failed(op string, err error) error {
	if err == nil {
		return nil
	}
	var oe *OperationError
	if errors.As(err, &oe) || IsDomain(err) {
		return err
	}
	return &OperationError{Op: op, Err: err}
}

// IsDomain reports whether err is one of the expected business outcomes
// rather than an infrastructure failure.
func IsDomain(err error) bool {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return true
	}
	for _, target := range []error{
		ErrLimitReached, ErrInsufficientPoints, ErrNotFound,
		ErrAlreadyCollected, ErrCodeMismatch, ErrForbidden,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
