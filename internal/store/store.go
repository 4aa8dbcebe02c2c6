// Package store defines the ports the ledger engine and services write
// through. Implementations live in internal/storage.
package store

import (
	"context"
	"errors"

	"pecunia/internal/core"
)

var (
	// ErrNotFound is returned when a record id does not resolve.
	ErrNotFound = errors.New("record not found")

	// ErrBalanceConflict is returned by SetAccountBalance when the stored
	// version no longer matches the one read at computation time. The caller
	// is expected to re-read and retry.
	ErrBalanceConflict = errors.New("account balance changed concurrently")

	// ErrAccountInUse blocks account deletion while transactions still
	// reference the account.
	ErrAccountInUse = errors.New("account still has transactions")
)

// LedgerStore is the slice of the store the ledger engine needs: account
// reads, conditional balance writes, and transaction record writes.
type LedgerStore interface {
	GetAccount(ctx context.Context, id string) (core.Account, error)

	// SetAccountBalance writes the new balance only if the stored version
	// still equals version; otherwise it returns ErrBalanceConflict.
	SetAccountBalance(ctx context.Context, id string, balance core.Money, version int64) error

	CreateTransaction(ctx context.Context, t core.Transaction) (string, error)
	UpdateTransaction(ctx context.Context, t core.Transaction) error
	DeleteTransactionRecord(ctx context.Context, id string) error
}

// AccountStore is the full account lifecycle used by the service layer.
type AccountStore interface {
	GetAccount(ctx context.Context, id string) (core.Account, error)
	CreateAccount(ctx context.Context, a core.Account) (string, error)
	UpdateAccount(ctx context.Context, a core.Account) error

	// DeleteAccount removes the account; it fails with ErrAccountInUse while
	// any transaction references it.
	DeleteAccount(ctx context.Context, id string) error
	ListAccounts(ctx context.Context, ownerID string) ([]core.Account, error)
}

// TransactionStore is the read side used for listings and breakdowns.
type TransactionStore interface {
	GetTransaction(ctx context.Context, id string) (core.Transaction, error)

	// ListTransactions returns the owner's transactions for a year+month,
	// optionally restricted to one account, newest first.
	ListTransactions(ctx context.Context, ownerID string, year, month int, accountID string) ([]core.Transaction, error)
}

// CategoryStore is plain CRUD over the owner's custom categories.
type CategoryStore interface {
	GetCategory(ctx context.Context, id string) (core.Category, error)
	CreateCategory(ctx context.Context, c core.Category) (string, error)
	UpdateCategory(ctx context.Context, c core.Category) error
	DeleteCategory(ctx context.Context, id string) error
	ListCategories(ctx context.Context, ownerID string) ([]core.Category, error)
}
