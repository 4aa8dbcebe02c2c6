// Package services orchestrates the ledger engine, storage, change
// notifications and the export queue behind one facade the HTTP layer calls.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pecunia/internal/amqp"
	"pecunia/internal/cache"
	"pecunia/internal/core"
	"pecunia/internal/ledger"
	"pecunia/internal/pubsub"
	"pecunia/internal/storage"
	"pecunia/internal/store"
)

const (
	breakdownCacheSize = 256
	breakdownCacheTTL  = 5 * time.Minute
)

// LedgerService is the write and read facade over the ledger engine. Change
// notifications and export messages are emitted only after the authoritative
// write succeeded, and their failures never fail the request.
type LedgerService struct {
	repo       *storage.SQLiteRepository
	engine     *ledger.Engine
	hub        *pubsub.Hub
	amqpClient *amqp.Client

	breakdowns *cache.LRUCache[core.MonthBreakdown]
	cacheMgr   *cache.Manager
}

func NewLedgerService(repo *storage.SQLiteRepository, hub *pubsub.Hub, amqpClient *amqp.Client) *LedgerService {
	s := &LedgerService{
		repo:       repo,
		engine:     ledger.New(repo),
		hub:        hub,
		amqpClient: amqpClient,
		breakdowns: cache.NewLRUCache[core.MonthBreakdown](breakdownCacheSize, breakdownCacheTTL),
		cacheMgr:   cache.NewManager(),
	}
	s.cacheMgr.Register(s.breakdowns)
	s.cacheMgr.StartCleanup(time.Minute)
	return s
}

// CreateTransaction applies a new transaction and notifies subscribers.
func (s *LedgerService) CreateTransaction(ctx context.Context, in ledger.TransactionInput) (ledger.ApplyResult, error) {
	res, err := s.engine.ApplyNewTransaction(ctx, in)
	if err != nil {
		return ledger.ApplyResult{}, err
	}

	s.invalidateBreakdowns(in.OwnerID)
	s.notify(ctx, pubsub.Event{
		Entity:  pubsub.EntityTransaction,
		Op:      pubsub.OpCreated,
		OwnerID: in.OwnerID,
		ID:      res.TransactionID,
	})
	s.publishChange(ctx, res.TransactionID, "created")

	return res, nil
}

// EditTransaction loads the prior record and hands both states to the
// engine, which reverses the old effect and applies the new one.
func (s *LedgerService) EditTransaction(ctx context.Context, ownerID, id string, in ledger.TransactionInput) (ledger.EditResult, error) {
	original, err := s.repo.GetTransaction(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return ledger.EditResult{}, store.ErrNotFound
	}
	if err != nil {
		return ledger.EditResult{}, fmt.Errorf("load transaction: %w", err)
	}
	if original.OwnerID != ownerID {
		return ledger.EditResult{}, ledger.ErrNotOwner
	}

	res, err := s.engine.EditTransaction(ctx, id, in, original)
	if err != nil {
		return ledger.EditResult{}, err
	}

	s.invalidateBreakdowns(ownerID)
	s.notify(ctx, pubsub.Event{
		Entity:  pubsub.EntityTransaction,
		Op:      pubsub.OpUpdated,
		OwnerID: ownerID,
		ID:      id,
	})
	s.publishChange(ctx, id, "updated")

	return res, nil
}

// DeleteTransaction reverses and removes a transaction. An orphan warning in
// the result is informational; the delete itself succeeded.
func (s *LedgerService) DeleteTransaction(ctx context.Context, ownerID, id string) (ledger.DeleteResult, error) {
	t, err := s.repo.GetTransaction(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return ledger.DeleteResult{}, store.ErrNotFound
	}
	if err != nil {
		return ledger.DeleteResult{}, fmt.Errorf("load transaction: %w", err)
	}
	if t.OwnerID != ownerID {
		return ledger.DeleteResult{}, ledger.ErrNotOwner
	}

	res, err := s.engine.DeleteTransaction(ctx, t)
	if err != nil {
		return ledger.DeleteResult{}, err
	}

	s.invalidateBreakdowns(ownerID)
	s.notify(ctx, pubsub.Event{
		Entity:  pubsub.EntityTransaction,
		Op:      pubsub.OpDeleted,
		OwnerID: ownerID,
		ID:      id,
	})
	s.publishChange(ctx, id, "deleted")

	return res, nil
}

func (s *LedgerService) GetTransaction(ctx context.Context, ownerID, id string) (core.Transaction, error) {
	t, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	if t.OwnerID != ownerID {
		return core.Transaction{}, ledger.ErrNotOwner
	}
	return t, nil
}

func (s *LedgerService) ListTransactions(ctx context.Context, ownerID string, year, month int, accountID string) ([]core.Transaction, error) {
	return s.repo.ListTransactions(ctx, ownerID, year, month, accountID)
}

// MonthBreakdown aggregates one month's transactions per type and category.
// Results are cached per owner until the next write or the TTL.
func (s *LedgerService) MonthBreakdown(ctx context.Context, ownerID string, year, month int, accountID string) (core.MonthBreakdown, error) {
	key := fmt.Sprintf("%s|%d|%02d|%s", ownerID, year, month, accountID)
	if bd, ok := s.breakdowns.Get(key); ok {
		return bd, nil
	}

	txs, err := s.repo.ListTransactions(ctx, ownerID, year, month, accountID)
	if err != nil {
		return core.MonthBreakdown{}, fmt.Errorf("list transactions: %w", err)
	}
	bd := core.BuildMonthBreakdown(txs, year, month, accountID)
	s.breakdowns.Set(key, bd)
	return bd, nil
}

// CreateAccount creates an account with an optional starting balance.
func (s *LedgerService) CreateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	if err := a.Validate(); err != nil {
		return core.Account{}, &ledger.ValidationError{Field: "account", Err: err}
	}

	id, err := s.repo.CreateAccount(ctx, a)
	if err != nil {
		return core.Account{}, fmt.Errorf("create account: %w", err)
	}
	created, err := s.repo.GetAccount(ctx, id)
	if err != nil {
		return core.Account{}, fmt.Errorf("load created account: %w", err)
	}

	s.notify(ctx, pubsub.Event{
		Entity:  pubsub.EntityAccount,
		Op:      pubsub.OpCreated,
		OwnerID: a.OwnerID,
		ID:      id,
	})
	return created, nil
}

// UpdateAccount renames an account and, when balance is non-nil, sets the
// balance directly. A direct balance set is a correction outside the
// transaction history; it goes through the same conditional write as the
// ledger so a concurrent transaction cannot be silently overwritten.
func (s *LedgerService) UpdateAccount(ctx context.Context, ownerID, id, name string, balance *core.Money) (core.Account, error) {
	a, err := s.ownedAccount(ctx, ownerID, id)
	if err != nil {
		return core.Account{}, err
	}
	a.Name = name
	if err := a.Validate(); err != nil {
		return core.Account{}, &ledger.ValidationError{Field: "account", Err: err}
	}
	if err := s.repo.UpdateAccount(ctx, a); err != nil {
		return core.Account{}, fmt.Errorf("rename account: %w", err)
	}

	if balance != nil {
		err := s.repo.SetAccountBalance(ctx, a.ID, *balance, a.Version)
		if errors.Is(err, store.ErrBalanceConflict) {
			return core.Account{}, ledger.ErrBalanceContention
		}
		if err != nil {
			return core.Account{}, fmt.Errorf("set account balance: %w", err)
		}
		a, err = s.repo.GetAccount(ctx, a.ID)
		if err != nil {
			return core.Account{}, fmt.Errorf("reload account: %w", err)
		}
		s.invalidateBreakdowns(ownerID)
	}

	s.notify(ctx, pubsub.Event{
		Entity:  pubsub.EntityAccount,
		Op:      pubsub.OpUpdated,
		OwnerID: ownerID,
		ID:      id,
	})
	return a, nil
}

// DeleteAccount removes an empty account. While transactions still reference
// it the delete fails with store.ErrAccountInUse; the caller must delete or
// move those transactions first.
func (s *LedgerService) DeleteAccount(ctx context.Context, ownerID, id string) error {
	if _, err := s.ownedAccount(ctx, ownerID, id); err != nil {
		return err
	}
	if err := s.repo.DeleteAccount(ctx, id); err != nil {
		return err
	}

	s.invalidateBreakdowns(ownerID)
	s.notify(ctx, pubsub.Event{
		Entity:  pubsub.EntityAccount,
		Op:      pubsub.OpDeleted,
		OwnerID: ownerID,
		ID:      id,
	})
	return nil
}

func (s *LedgerService) GetAccount(ctx context.Context, ownerID, id string) (core.Account, error) {
	return s.ownedAccount(ctx, ownerID, id)
}

func (s *LedgerService) ListAccounts(ctx context.Context, ownerID string) ([]core.Account, error) {
	return s.repo.ListAccounts(ctx, ownerID)
}

func (s *LedgerService) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if err := c.Validate(); err != nil {
		return core.Category{}, &ledger.ValidationError{Field: "category", Err: err}
	}

	id, err := s.repo.CreateCategory(ctx, c)
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	c.ID = id

	s.notify(ctx, pubsub.Event{
		Entity:  pubsub.EntityCategory,
		Op:      pubsub.OpCreated,
		OwnerID: c.OwnerID,
		ID:      id,
	})
	return c, nil
}

// UpdateCategory renames or retypes an owner's custom category. Existing
// transactions keep their category string; this only changes future options.
func (s *LedgerService) UpdateCategory(ctx context.Context, ownerID, id string, c core.Category) (core.Category, error) {
	existing, err := s.repo.GetCategory(ctx, id)
	if err != nil {
		return core.Category{}, err
	}
	if existing.OwnerID != ownerID {
		return core.Category{}, ledger.ErrNotOwner
	}

	c.ID = id
	c.OwnerID = ownerID
	if err := c.Validate(); err != nil {
		return core.Category{}, &ledger.ValidationError{Field: "category", Err: err}
	}
	if err := s.repo.UpdateCategory(ctx, c); err != nil {
		return core.Category{}, fmt.Errorf("update category: %w", err)
	}

	s.notify(ctx, pubsub.Event{
		Entity:  pubsub.EntityCategory,
		Op:      pubsub.OpUpdated,
		OwnerID: ownerID,
		ID:      id,
	})
	return c, nil
}

func (s *LedgerService) DeleteCategory(ctx context.Context, ownerID, id string) error {
	c, err := s.repo.GetCategory(ctx, id)
	if err != nil {
		return err
	}
	if c.OwnerID != ownerID {
		return ledger.ErrNotOwner
	}
	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		return err
	}

	s.notify(ctx, pubsub.Event{
		Entity:  pubsub.EntityCategory,
		Op:      pubsub.OpDeleted,
		OwnerID: ownerID,
		ID:      id,
	})
	return nil
}

func (s *LedgerService) ListCategories(ctx context.Context, ownerID string) ([]core.Category, error) {
	return s.repo.ListCategories(ctx, ownerID)
}

// CategoryOptions returns the selectable category names for a transaction
// type: the built-in set followed by the owner's custom ones.
func (s *LedgerService) CategoryOptions(ctx context.Context, ownerID string, t core.TransactionType) ([]string, error) {
	if !t.Valid() {
		return nil, &ledger.ValidationError{Field: "type", Err: core.ErrInvalidType}
	}
	custom, err := s.repo.ListCategories(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return core.CategoriesFor(t, custom), nil
}

// Ping reports whether the backing store is reachable.
func (s *LedgerService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// Subscribe returns the owner's change event stream.
func (s *LedgerService) Subscribe(ownerID string, buffer int) (<-chan pubsub.Event, func()) {
	return s.hub.Subscribe(ownerID, buffer)
}

func (s *LedgerService) ownedAccount(ctx context.Context, ownerID, id string) (core.Account, error) {
	a, err := s.repo.GetAccount(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return core.Account{}, ledger.ErrAccountNotFound
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("get account: %w", err)
	}
	if a.OwnerID != ownerID {
		return core.Account{}, ledger.ErrNotOwner
	}
	return a, nil
}

func (s *LedgerService) invalidateBreakdowns(ownerID string) {
	s.breakdowns.DeletePrefix(ownerID + "|")
}

func (s *LedgerService) notify(ctx context.Context, e pubsub.Event) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(e)
	slog.DebugContext(ctx, "Change event published",
		"entity", string(e.Entity), "op", string(e.Op), "id", e.ID)
}

func (s *LedgerService) publishChange(ctx context.Context, transactionID, op string) {
	if s.amqpClient == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping change message")
		return
	}
	if err := s.amqpClient.PublishChange(ctx, amqp.NewChangeMessage(transactionID, op)); err != nil {
		// The write already succeeded; the worker's startup check will
		// pick the record up later.
		slog.ErrorContext(ctx, "Failed to publish change message",
			"transaction_id", transactionID, "op", op, "error", err)
	}
}

// Close releases storage and AMQP resources and stops cache cleanup.
func (s *LedgerService) Close() error {
	var errs []error

	s.cacheMgr.Stop()

	if s.repo != nil {
		if err := s.repo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %v", errs)
	}
	return nil
}
