// Package storage implements the store ports on SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"pecunia/internal/core"
	"pecunia/internal/store"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping verifies the database connection is alive.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// GetAccount implements store.LedgerStore and store.AccountStore.
func (r *SQLiteRepository) GetAccount(ctx context.Context, id string) (core.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, name, balance_cents, version FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

// SetAccountBalance writes the balance only if the stored version still
// matches, bumping the version on success. A zero-row update is either a
// concurrent write or a vanished account; the follow-up read tells them
// apart.
func (r *SQLiteRepository) SetAccountBalance(ctx context.Context, id string, balance core.Money, version int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts
		 SET balance_cents = ?, version = version + 1, updated_at = datetime('now')
		 WHERE id = ? AND version = ?`,
		balance.Cents, id, version)
	if err != nil {
		return fmt.Errorf("update account balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		var exists int
		err := r.db.QueryRowContext(ctx, `SELECT 1 FROM accounts WHERE id = ?`, id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("check account existence: %w", err)
		}
		return store.ErrBalanceConflict
	}
	return nil
}

func (r *SQLiteRepository) CreateAccount(ctx context.Context, a core.Account) (string, error) {
	id := a.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, owner_id, name, balance_cents) VALUES (?, ?, ?, ?)`,
		id, a.OwnerID, a.Name, a.Balance.Cents)
	if err != nil {
		return "", fmt.Errorf("insert account: %w", err)
	}

	slog.InfoContext(ctx, "Account created",
		"account_id", id,
		"name", a.Name,
		"balance_cents", a.Balance.Cents)

	return id, nil
}

// UpdateAccount renames the account. Balances only move through
// SetAccountBalance so the version guard is never bypassed.
func (r *SQLiteRepository) UpdateAccount(ctx context.Context, a core.Account) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET name = ?, updated_at = datetime('now') WHERE id = ?`,
		a.Name, a.ID)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return oneRowOrNotFound(res)
}

// DeleteAccount refuses to remove an account that transactions still
// reference, so no transaction is ever silently orphaned by account removal.
func (r *SQLiteRepository) DeleteAccount(ctx context.Context, id string) error {
	var refs int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE account_id = ?`, id).Scan(&refs)
	if err != nil {
		return fmt.Errorf("count account transactions: %w", err)
	}
	if refs > 0 {
		return fmt.Errorf("account has %d transactions: %w", refs, store.ErrAccountInUse)
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return oneRowOrNotFound(res)
}

func (r *SQLiteRepository) ListAccounts(ctx context.Context, ownerID string) ([]core.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, name, balance_cents, version
		 FROM accounts WHERE owner_id = ? ORDER BY created_at, name`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []core.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// CreateTransaction implements store.LedgerStore. New records start in the
// pending export state so the worker picks them up.
func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) (string, error) {
	id := t.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (id, owner_id, type, amount_cents, date, category, account_id, note)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, t.OwnerID, string(t.Type), t.Amount.Cents, t.Date.Format(dateLayout),
		t.Category, t.AccountID, t.Note)
	if err != nil {
		return "", fmt.Errorf("insert transaction: %w", err)
	}
	return id, nil
}

// UpdateTransaction rewrites the mutable fields and resets the export state,
// so edited records are re-exported.
func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions
		 SET type = ?, amount_cents = ?, date = ?, category = ?, account_id = ?, note = ?,
		     export_status = 'pending', updated_at = datetime('now')
		 WHERE id = ?`,
		string(t.Type), t.Amount.Cents, t.Date.Format(dateLayout),
		t.Category, t.AccountID, t.Note, t.ID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return oneRowOrNotFound(res)
}

func (r *SQLiteRepository) DeleteTransactionRecord(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return oneRowOrNotFound(res)
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, type, amount_cents, date, category, account_id, note
		 FROM transactions WHERE id = ?`, id)
	return scanTransaction(row)
}

// ListTransactions returns the owner's transactions within the given month,
// newest first. The month window is computed here rather than in SQL so the
// date column stays a plain sortable string.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, ownerID string, year, month int, accountID string) ([]core.Transaction, error) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	query := `SELECT id, owner_id, type, amount_cents, date, category, account_id, note
	          FROM transactions
	          WHERE owner_id = ? AND date >= ? AND date < ?`
	args := []any{ownerID, start.Format(dateLayout), end.Format(dateLayout)}
	if accountID != "" {
		query += ` AND account_id = ?`
		args = append(args, accountID)
	}
	query += ` ORDER BY date DESC, created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, id string) (core.Category, error) {
	var c core.Category
	var typ string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, name, type FROM categories WHERE id = ?`, id).
		Scan(&c.ID, &c.OwnerID, &c.Name, &typ)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, store.ErrNotFound
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	c.Type = core.TransactionType(typ)
	return c, nil
}

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) (string, error) {
	id := c.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (id, owner_id, name, type) VALUES (?, ?, ?, ?)`,
		id, c.OwnerID, c.Name, string(c.Type))
	if err != nil {
		return "", fmt.Errorf("insert category: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) UpdateCategory(ctx context.Context, c core.Category) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE categories SET name = ?, type = ? WHERE id = ?`,
		c.Name, string(c.Type), c.ID)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	return oneRowOrNotFound(res)
}

func (r *SQLiteRepository) DeleteCategory(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return oneRowOrNotFound(res)
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, ownerID string) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, name, type FROM categories
		 WHERE owner_id = ? ORDER BY type, created_at`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []core.Category
	for rows.Next() {
		var c core.Category
		var typ string
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Name, &typ); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Type = core.TransactionType(typ)
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// PendingExports returns up to limit transactions waiting for spreadsheet
// export, oldest first.
func (r *SQLiteRepository) PendingExports(ctx context.Context, limit int) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, type, amount_cents, date, category, account_id, note
		 FROM transactions WHERE export_status = 'pending'
		 ORDER BY created_at LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending exports: %w", err)
	}
	defer rows.Close()

	var txs []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// CountPendingExports reports how many transactions still wait for export.
func (r *SQLiteRepository) CountPendingExports(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE export_status = 'pending'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending exports: %w", err)
	}
	return n, nil
}

// MarkExported marks a transaction as successfully exported.
func (r *SQLiteRepository) MarkExported(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET export_status = 'exported', updated_at = datetime('now') WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark transaction exported: %w", err)
	}
	if err := oneRowOrNotFound(res); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Transaction marked as exported", "transaction_id", id)
	return nil
}

// MarkExportError marks a transaction as having failed export.
func (r *SQLiteRepository) MarkExportError(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET export_status = 'error', updated_at = datetime('now') WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark transaction export error: %w", err)
	}
	if err := oneRowOrNotFound(res); err != nil {
		return err
	}
	slog.WarnContext(ctx, "Transaction marked with export error", "transaction_id", id)
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (core.Account, error) {
	var a core.Account
	err := row.Scan(&a.ID, &a.OwnerID, &a.Name, &a.Balance.Cents, &a.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, store.ErrNotFound
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("scan account: %w", err)
	}
	return a, nil
}

func scanTransaction(row scanner) (core.Transaction, error) {
	var t core.Transaction
	var typ, date string
	err := row.Scan(&t.ID, &t.OwnerID, &typ, &t.Amount.Cents, &date, &t.Category, &t.AccountID, &t.Note)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, store.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	t.Type = core.TransactionType(typ)
	parsed, err := time.Parse(dateLayout, date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse transaction date %q: %w", date, err)
	}
	t.Date = core.Date{Time: parsed}
	return t, nil
}

func oneRowOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
