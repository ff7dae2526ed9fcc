package utils

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrorRecordNotFound = errors.New("record not found")

// ValidationError rejects bad input before any write happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// InsufficientStockError reports a consumption request exceeding what the
// eligible batches can cover. No batch is mutated when this is returned.
type InsufficientStockError struct {
	SheetId   int
	BatchId   int // 0 unless an explicit batch was targeted
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	if e.BatchId > 0 {
		return fmt.Sprintf("insufficient stock for sheet_id=%d batch_id=%d requested=%s available=%s",
			e.SheetId, e.BatchId, e.Requested.String(), e.Available.String())
	}
	return fmt.Sprintf("insufficient stock for sheet_id=%d requested=%s available=%s",
		e.SheetId, e.Requested.String(), e.Available.String())
}

// ConflictError surfaces an optimistic-lock version mismatch after retries
// were exhausted.
type ConflictError struct {
	EntityType string
	EntityId   int
	Attempts   int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict on %s id=%d after %d attempts", e.EntityType, e.EntityId, e.Attempts)
}

// TransactionAbortedError wraps any failure that forced a transaction (or
// savepoint) rollback.
type TransactionAbortedError struct {
	Cause error
}

func (e *TransactionAbortedError) Error() string {
	return fmt.Sprintf("transaction aborted: %v", e.Cause)
}

func (e *TransactionAbortedError) Unwrap() error { return e.Cause }

// PersistenceError reports a failed background flush. The committed engine
// state stands; this is a warning to the caller, not a rollback.
type PersistenceError struct {
	Cause error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence flush failed: %v", e.Cause)
}

func (e *PersistenceError) Unwrap() error { return e.Cause }

func IsValidationError(err error) bool {
	var t *ValidationError
	return errors.As(err, &t)
}

func IsInsufficientStock(err error) bool {
	var t *InsufficientStockError
	return errors.As(err, &t)
}

func IsConflict(err error) bool {
	var t *ConflictError
	return errors.As(err, &t)
}

// Result is the envelope every public engine operation returns across the
// module boundary. Internal primitives may return raw errors (or panic);
// Guard converts both into a Result at the operation entry point.
type Result[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   error  `json:"-"`
	Warning string `json:"warning,omitempty"`
}

func Ok[T any](data T) Result[T] {
	return Result[T]{Success: true, Data: data}
}

func Fail[T any](err error) Result[T] {
	return Result[T]{Success: false, Error: err}
}

// Guard runs fn and converts errors and panics into a Result. A panic is
// treated as an aborted transaction, never rethrown across the boundary.
func Guard[T any](fn func() (T, error)) (res Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			res = Fail[T](&TransactionAbortedError{Cause: fmt.Errorf("panic: %v", r)})
		}
	}()
	data, err := fn()
	if err != nil {
		return Fail[T](err)
	}
	return Ok(data)
}
