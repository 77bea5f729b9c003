package service

import (
	"errors"
	"fmt"
)

// Payment-path errors. All are terminal for the request and leave the ledger
// unchanged; the HTTP layer maps them to transport codes with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrAlreadyPaid  = errors.New("installment already paid")
	ErrInvalidState = errors.New("invalid state")
)

// PlanCreationError wraps a failure inside the atomic create-plan transaction.
// No partial plan or installment rows are ever observable behind it.
type PlanCreationError struct {
	Err error
}

func (e *PlanCreationError) Error() string {
	return fmt.Sprintf("plan creation failed: %v", e.Err)
}

func (e *PlanCreationError) Unwrap() error {
	return e.Err
}
