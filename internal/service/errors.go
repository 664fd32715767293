package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/commercetools/commercetools-payone-integration-sub001/internal/repository"
)

// ErrConcurrentExecution signals that another attempt presumably owns the
// transaction right now. Callers must not retry synchronously.
var ErrConcurrentExecution = errors.New("transaction execution already in progress")

// ValidationError rejects a notification or API request outright. It is
// never retried and never touches the ledger.
type ValidationError struct {
	Fields []string
	Reason string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s (%s)", e.Reason, strings.Join(e.Fields, ", "))
}

// ConflictError reports an optimistic concurrency conflict. Retryable tells
// the caller whether picking the payment up again later is expected to help;
// it is false once the notification dispatcher has used up its single retry.
type ConflictError struct {
	PaymentID string
	Retryable bool
	Err       error
}

func (e *ConflictError) Error() string {
	if e.Retryable {
		return fmt.Sprintf("payment %s changed concurrently, retry later: %v", e.PaymentID, e.Err)
	}
	return fmt.Sprintf("payment %s changed concurrently, giving up: %v", e.PaymentID, e.Err)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// UnknownStatusError is raised for a gateway status outside
// REDIRECT/APPROVED/ERROR/PENDING. Nothing is assumed about the outcome.
type UnknownStatusError struct {
	Status        string
	PaymentID     string
	TransactionID string
}

func (e *UnknownStatusError) Error() string {
	return fmt.Sprintf("unknown gateway status %q for payment %s transaction %s",
		e.Status, e.PaymentID, e.TransactionID)
}

// IllegalStateError is raised by a notification processor that cannot
// classify the notification it was handed.
type IllegalStateError struct {
	Action string
	Reason string
}

func (e *IllegalStateError) Error() string {
	return fmt.Sprintf("illegal state processing %s notification: %s", e.Action, e.Reason)
}

// isConflict reports whether err is worth a fresh read: a version mismatch or
// a lost race creating the same payment.
func isConflict(err error) bool {
	return errors.Is(err, repository.ErrVersionConflict) || errors.Is(err, repository.ErrAlreadyExists)
}
