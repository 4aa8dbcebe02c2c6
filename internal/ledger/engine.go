// Package ledger implements the engine that keeps account balances
// consistent with the sum of their transactions' effects.
//
// The engine is pure request/response: it depends only on store.LedgerStore
// and carries no subscription or transport concerns, so it is unit-testable
// against in-memory fakes. Within one operation the account balance write is
// always attempted before the transaction record write; a failure after an
// earlier write succeeded is reported as *PartialWriteError because the
// balance invariant may now be violated.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"pecunia/internal/core"
	"pecunia/internal/store"
)

// balanceRetries bounds the read-compute-write cycles under contention.
const balanceRetries = 3

// Engine applies transaction intents against the store.
type Engine struct {
	store store.LedgerStore
}

func New(st store.LedgerStore) *Engine {
	return &Engine{store: st}
}

// TransactionInput is the raw field set of a create/edit intent. Amount is
// the user-entered decimal string; it is normalized to cents before any
// arithmetic.
type TransactionInput struct {
	OwnerID   string
	Type      core.TransactionType
	Amount    string
	Date      core.Date
	Category  string
	AccountID string
	Note      string
}

// ApplyResult reports the outcome of a successful create.
type ApplyResult struct {
	TransactionID string
	NewBalance    core.Money
}

// AccountBalance pairs an account id with its post-operation balance.
type AccountBalance struct {
	AccountID string
	Balance   core.Money
}

// EditResult reports the outcome of a successful edit. For a same-account
// edit OldAccount and NewAccount carry the same entry.
type EditResult struct {
	OldAccount AccountBalance
	NewAccount AccountBalance
}

// DeleteResult reports the outcome of a delete. Warning is non-nil when the
// record was removed without a balance reversal because its account no
// longer exists.
type DeleteResult struct {
	NewBalance core.Money
	Warning    *OrphanedTransactionWarning
}

// normalize validates the input field by field and returns the transaction
// record to persist, with the amount in cents.
func (in TransactionInput) normalize() (core.Transaction, error) {
	if strings.TrimSpace(in.OwnerID) == "" {
		return core.Transaction{}, &ValidationError{Field: "owner", Err: core.ErrEmptyOwner}
	}
	if !in.Type.Valid() {
		return core.Transaction{}, &ValidationError{Field: "type", Err: core.ErrInvalidType}
	}
	cents, err := core.ParseAmountToCents(in.Amount)
	if err != nil {
		return core.Transaction{}, &ValidationError{Field: "amount", Err: err}
	}
	if err := in.Date.Validate(); err != nil {
		return core.Transaction{}, &ValidationError{Field: "date", Err: err}
	}
	if strings.TrimSpace(in.Category) == "" {
		return core.Transaction{}, &ValidationError{Field: "category", Err: core.ErrEmptyCategory}
	}
	if strings.TrimSpace(in.AccountID) == "" {
		return core.Transaction{}, &ValidationError{Field: "account", Err: core.ErrEmptyAccountID}
	}
	if len(in.Note) > 200 {
		return core.Transaction{}, &ValidationError{Field: "note", Err: core.ErrNoteTooLong}
	}
	return core.Transaction{
		OwnerID:   in.OwnerID,
		Type:      in.Type,
		Amount:    core.Money{Cents: cents},
		Date:      in.Date,
		Category:  strings.TrimSpace(in.Category),
		AccountID: in.AccountID,
		Note:      strings.TrimSpace(in.Note),
	}, nil
}

// ApplyNewTransaction validates the intent, applies the signed effect to the
// referenced account and persists the transaction record. Validation and
// account resolution happen before any write.
func (e *Engine) ApplyNewTransaction(ctx context.Context, in TransactionInput) (ApplyResult, error) {
	tx, err := in.normalize()
	if err != nil {
		return ApplyResult{}, err
	}

	acct, err := e.ownedAccount(ctx, tx.AccountID, tx.OwnerID)
	if err != nil {
		return ApplyResult{}, err
	}

	newBal, err := e.applyDelta(ctx, acct, tx.SignedEffect())
	if err != nil {
		// Nothing was written; a retry is safe.
		return ApplyResult{}, fmt.Errorf("apply balance delta: %w", err)
	}

	id, err := e.store.CreateTransaction(ctx, tx)
	if err != nil {
		return ApplyResult{}, &PartialWriteError{
			Op:        "create",
			Completed: []string{"account balance update"},
			Failed:    "transaction write",
			Err:       err,
		}
	}

	slog.InfoContext(ctx, "Transaction applied",
		"transaction_id", id,
		"account_id", acct.ID,
		"type", string(tx.Type),
		"amount_cents", tx.Amount.Cents,
		"new_balance_cents", newBal.Cents)

	return ApplyResult{TransactionID: id, NewBalance: newBal}, nil
}

// EditTransaction reverses the original transaction's effect and applies the
// updated one. The caller supplies the known-good prior state; the engine
// does not re-read it, which avoids read-after-write races against a
// reactive store. When the account changed, both balance writes are
// attempted even if one fails.
func (e *Engine) EditTransaction(ctx context.Context, id string, in TransactionInput, original core.Transaction) (EditResult, error) {
	upd, err := in.normalize()
	if err != nil {
		return EditResult{}, err
	}
	if original.OwnerID != upd.OwnerID {
		return EditResult{}, ErrNotOwner
	}
	upd.ID = id

	reversal := original.SignedEffect().Neg()
	forward := upd.SignedEffect()

	if original.AccountID == upd.AccountID {
		return e.editSameAccount(ctx, upd, reversal.Add(forward))
	}
	return e.editAcrossAccounts(ctx, upd, original.AccountID, reversal, forward)
}

func (e *Engine) editSameAccount(ctx context.Context, upd core.Transaction, delta core.Money) (EditResult, error) {
	acct, err := e.ownedAccount(ctx, upd.AccountID, upd.OwnerID)
	if err != nil {
		return EditResult{}, err
	}

	newBal, err := e.applyDelta(ctx, acct, delta)
	if err != nil {
		return EditResult{}, fmt.Errorf("apply balance delta: %w", err)
	}

	if err := e.store.UpdateTransaction(ctx, upd); err != nil {
		return EditResult{}, &PartialWriteError{
			Op:        "edit",
			Completed: []string{"account balance update"},
			Failed:    "transaction write",
			Err:       err,
		}
	}

	entry := AccountBalance{AccountID: acct.ID, Balance: newBal}
	return EditResult{OldAccount: entry, NewAccount: entry}, nil
}

func (e *Engine) editAcrossAccounts(ctx context.Context, upd core.Transaction, oldAccountID string, reversal, forward core.Money) (EditResult, error) {
	// Resolve both accounts before writing anything, so a bad reference
	// fails cleanly.
	oldAcct, err := e.ownedAccount(ctx, oldAccountID, upd.OwnerID)
	if err != nil {
		return EditResult{}, err
	}
	newAcct, err := e.ownedAccount(ctx, upd.AccountID, upd.OwnerID)
	if err != nil {
		return EditResult{}, err
	}

	oldBal, oldErr := e.applyDelta(ctx, oldAcct, reversal)
	newBal, newErr := e.applyDelta(ctx, newAcct, forward)

	switch {
	case oldErr != nil && newErr != nil:
		// Neither write landed; a retry is safe.
		return EditResult{}, fmt.Errorf("apply balance deltas: %w", errors.Join(oldErr, newErr))
	case oldErr != nil:
		return EditResult{}, &PartialWriteError{
			Op:        "edit",
			Completed: []string{"new account balance update"},
			Failed:    "old account balance update",
			Err:       oldErr,
		}
	case newErr != nil:
		return EditResult{}, &PartialWriteError{
			Op:        "edit",
			Completed: []string{"old account balance update"},
			Failed:    "new account balance update",
			Err:       newErr,
		}
	}

	if err := e.store.UpdateTransaction(ctx, upd); err != nil {
		return EditResult{}, &PartialWriteError{
			Op:        "edit",
			Completed: []string{"old account balance update", "new account balance update"},
			Failed:    "transaction write",
			Err:       err,
		}
	}

	return EditResult{
		OldAccount: AccountBalance{AccountID: oldAcct.ID, Balance: oldBal},
		NewAccount: AccountBalance{AccountID: newAcct.ID, Balance: newBal},
	}, nil
}

// DeleteTransaction reverses the transaction's effect and removes its
// record. The balance reversal is attempted first, mirroring the create
// ordering. When the account no longer exists, the record is removed anyway
// and the result carries a non-fatal orphan warning.
func (e *Engine) DeleteTransaction(ctx context.Context, t core.Transaction) (DeleteResult, error) {
	if strings.TrimSpace(t.ID) == "" {
		return DeleteResult{}, &ValidationError{Field: "id", Err: errors.New("empty transaction id")}
	}

	acct, err := e.store.GetAccount(ctx, t.AccountID)
	if errors.Is(err, store.ErrNotFound) {
		if derr := e.store.DeleteTransactionRecord(ctx, t.ID); derr != nil {
			return DeleteResult{}, fmt.Errorf("delete orphaned transaction: %w", derr)
		}
		warn := &OrphanedTransactionWarning{TransactionID: t.ID, AccountID: t.AccountID}
		slog.WarnContext(ctx, "Deleted transaction without balance reversal",
			"transaction_id", t.ID, "account_id", t.AccountID)
		return DeleteResult{Warning: warn}, nil
	}
	if err != nil {
		return DeleteResult{}, fmt.Errorf("get account: %w", err)
	}
	if acct.OwnerID != t.OwnerID {
		return DeleteResult{}, ErrNotOwner
	}

	newBal, err := e.applyDelta(ctx, acct, t.SignedEffect().Neg())
	if err != nil {
		return DeleteResult{}, fmt.Errorf("apply balance reversal: %w", err)
	}

	if err := e.store.DeleteTransactionRecord(ctx, t.ID); err != nil {
		return DeleteResult{}, &PartialWriteError{
			Op:        "delete",
			Completed: []string{"balance reversal"},
			Failed:    "transaction delete",
			Err:       err,
		}
	}

	return DeleteResult{NewBalance: newBal}, nil
}

// ownedAccount resolves an account and checks it belongs to the caller.
func (e *Engine) ownedAccount(ctx context.Context, accountID, ownerID string) (core.Account, error) {
	acct, err := e.store.GetAccount(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return core.Account{}, ErrAccountNotFound
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("get account: %w", err)
	}
	if acct.OwnerID != ownerID {
		return core.Account{}, ErrNotOwner
	}
	return acct, nil
}

// applyDelta writes balance+delta conditionally on the version read, retrying
// the read-compute-write cycle on conflict. This closes the lost-update
// window between two sessions editing the same account.
func (e *Engine) applyDelta(ctx context.Context, acct core.Account, delta core.Money) (core.Money, error) {
	for attempt := 0; attempt < balanceRetries; attempt++ {
		newBal := acct.Balance.Add(delta)
		err := e.store.SetAccountBalance(ctx, acct.ID, newBal, acct.Version)
		if err == nil {
			return newBal, nil
		}
		if !errors.Is(err, store.ErrBalanceConflict) {
			return core.Money{}, err
		}
		slog.DebugContext(ctx, "Balance write conflict, retrying",
			"account_id", acct.ID, "attempt", attempt+1)
		acct, err = e.store.GetAccount(ctx, acct.ID)
		if errors.Is(err, store.ErrNotFound) {
			return core.Money{}, ErrAccountNotFound
		}
		if err != nil {
			return core.Money{}, fmt.Errorf("re-read account: %w", err)
		}
	}
	return core.Money{}, ErrBalanceContention
}
