package ledger

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAccountNotFound is returned when a referenced account id does not
	// resolve. No state has changed.
	ErrAccountNotFound = errors.New("account not found")

	// ErrNotOwner is returned when a referenced record belongs to a
	// different owner than the caller. No state has changed.
	ErrNotOwner = errors.New("record owned by another user")

	// ErrBalanceContention is returned after the conditional balance write
	// kept conflicting across all retries. No state has changed.
	ErrBalanceContention = errors.New("account balance under contention, retry")
)

// ValidationError reports a malformed or missing input field. It is raised
// before any write, so a caller receiving it knows nothing changed.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid field %q: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a field validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// PartialWriteError reports that some writes of a multi-step operation
// succeeded before a later one failed. Account balances may now be
// inconsistent with the transaction set, so a blind retry is not safe; the
// caller must surface this distinctly from a clean failure.
type PartialWriteError struct {
	Op        string   // "create", "edit" or "delete"
	Completed []string // steps that succeeded, in order
	Failed    string   // the step that failed
	Err       error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("%s: %s failed after [%s]: %v",
		e.Op, e.Failed, strings.Join(e.Completed, ", "), e.Err)
}

func (e *PartialWriteError) Unwrap() error { return e.Err }

// OrphanedTransactionWarning is the non-fatal outcome of deleting a
// transaction whose account no longer exists: the record was removed but no
// balance was touched.
type OrphanedTransactionWarning struct {
	TransactionID string
	AccountID     string
}

func (w *OrphanedTransactionWarning) Error() string {
	return fmt.Sprintf("transaction %s deleted without balance reversal: account %s no longer exists",
		w.TransactionID, w.AccountID)
}
