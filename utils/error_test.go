package utils_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/zmsaddi/metalflow_backend/utils"
)

func TestErrorClassifiersSeeThroughWrapping(t *testing.T) {
	stock := &utils.InsufficientStockError{SheetId: 3, Requested: dec(t, "9"), Available: dec(t, "4")}
	wrapped := &utils.TransactionAbortedError{Cause: fmt.Errorf("allocate: %w", stock)}

	if !utils.IsInsufficientStock(wrapped) {
		t.Fatal("IsInsufficientStock should unwrap through TransactionAbortedError")
	}
	if utils.IsValidationError(wrapped) {
		t.Fatal("wrapped stock error misclassified as validation error")
	}
	if !errors.As(wrapped, new(*utils.TransactionAbortedError)) {
		t.Fatal("errors.As should find the aborted envelope")
	}
}

func TestGuardConvertsErrorsAndPanics(t *testing.T) {
	ok := utils.Guard(func() (int, error) { return 7, nil })
	if !ok.Success || ok.Data != 7 {
		t.Fatalf("Guard success = %+v", ok)
	}

	boom := errors.New("boom")
	failed := utils.Guard(func() (int, error) { return 0, boom })
	if failed.Success || !errors.Is(failed.Error, boom) {
		t.Fatalf("Guard failure = %+v", failed)
	}

	panicked := utils.Guard(func() (int, error) { panic("unexpected") })
	if panicked.Success {
		t.Fatal("Guard should fail on panic")
	}
	var aborted *utils.TransactionAbortedError
	if !errors.As(panicked.Error, &aborted) {
		t.Fatalf("panic should surface as TransactionAbortedError, got %v", panicked.Error)
	}
}
