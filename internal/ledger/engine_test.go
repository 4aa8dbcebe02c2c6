package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"pecunia/internal/core"
	"pecunia/internal/store"
)

// fakeStore is an in-memory store.LedgerStore with injectable failures and
// write counters, so tests can assert exactly which writes happened.
type fakeStore struct {
	accounts map[string]core.Account
	txs      map[string]core.Transaction
	nextID   int

	balanceWrites int
	txWrites      int

	conflictsLeft int              // next N balance writes conflict
	failBalance   map[string]error // per-account balance write failure
	failCreate    error
	failUpdate    error
	failDelete    error
}

func newFakeStore(accounts ...core.Account) *fakeStore {
	s := &fakeStore{
		accounts:    make(map[string]core.Account),
		txs:         make(map[string]core.Transaction),
		failBalance: make(map[string]error),
	}
	for _, a := range accounts {
		s.accounts[a.ID] = a
	}
	return s
}

func (s *fakeStore) GetAccount(_ context.Context, id string) (core.Account, error) {
	a, ok := s.accounts[id]
	if !ok {
		return core.Account{}, store.ErrNotFound
	}
	return a, nil
}

func (s *fakeStore) SetAccountBalance(_ context.Context, id string, balance core.Money, version int64) error {
	if err, ok := s.failBalance[id]; ok {
		return err
	}
	a, ok := s.accounts[id]
	if !ok {
		return store.ErrNotFound
	}
	if s.conflictsLeft > 0 {
		// Simulate a concurrent writer landing first.
		s.conflictsLeft--
		a.Version++
		s.accounts[id] = a
		return store.ErrBalanceConflict
	}
	if version != a.Version {
		return store.ErrBalanceConflict
	}
	a.Balance = balance
	a.Version++
	s.accounts[id] = a
	s.balanceWrites++
	return nil
}

func (s *fakeStore) CreateTransaction(_ context.Context, t core.Transaction) (string, error) {
	if s.failCreate != nil {
		return "", s.failCreate
	}
	s.nextID++
	id := fmt.Sprintf("tx-%d", s.nextID)
	t.ID = id
	s.txs[id] = t
	s.txWrites++
	return id, nil
}

func (s *fakeStore) UpdateTransaction(_ context.Context, t core.Transaction) error {
	if s.failUpdate != nil {
		return s.failUpdate
	}
	if _, ok := s.txs[t.ID]; !ok {
		return store.ErrNotFound
	}
	s.txs[t.ID] = t
	s.txWrites++
	return nil
}

func (s *fakeStore) DeleteTransactionRecord(_ context.Context, id string) error {
	if s.failDelete != nil {
		return s.failDelete
	}
	delete(s.txs, id)
	s.txWrites++
	return nil
}

func (s *fakeStore) balance(id string) int64 {
	return s.accounts[id].Balance.Cents
}

func checking(cents int64) core.Account {
	return core.Account{ID: "acct-1", OwnerID: "owner-1", Name: "Conto corrente", Balance: core.Money{Cents: cents}, Version: 1}
}

func input(typ core.TransactionType, amount, accountID string) TransactionInput {
	return TransactionInput{
		OwnerID:   "owner-1",
		Type:      typ,
		Amount:    amount,
		Date:      core.NewDate(2026, 3, 14),
		Category:  "Spesa",
		AccountID: accountID,
	}
}

func TestApplySignTable(t *testing.T) {
	cases := []struct {
		typ  core.TransactionType
		want int64 // balance after applying 25.00 to a 100.00 account
	}{
		{core.Income, 12500},
		{core.Expense, 7500},
		{core.Saving, 7500},
	}
	for _, tc := range cases {
		t.Run(string(tc.typ), func(t *testing.T) {
			st := newFakeStore(checking(10000))
			eng := New(st)
			res, err := eng.ApplyNewTransaction(context.Background(), input(tc.typ, "25.00", "acct-1"))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.NewBalance.Cents != tc.want {
				t.Fatalf("expected balance %d, got %d", tc.want, res.NewBalance.Cents)
			}
			if st.balance("acct-1") != tc.want {
				t.Fatalf("stored balance: expected %d, got %d", tc.want, st.balance("acct-1"))
			}
		})
	}
}

func TestApplyThenDeleteIsIdentity(t *testing.T) {
	st := newFakeStore(checking(123456))
	eng := New(st)

	res, err := eng.ApplyNewTransaction(context.Background(), input(core.Expense, "78.90", "acct-1"))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	tx := st.txs[res.TransactionID]

	del, err := eng.DeleteTransaction(context.Background(), tx)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if del.Warning != nil {
		t.Fatalf("unexpected warning: %v", del.Warning)
	}
	if st.balance("acct-1") != 123456 {
		t.Fatalf("expected balance restored to 123456, got %d", st.balance("acct-1"))
	}
	if _, ok := st.txs[res.TransactionID]; ok {
		t.Fatalf("transaction record still present after delete")
	}
}

func TestNoOpEditLeavesBalanceUnchanged(t *testing.T) {
	st := newFakeStore(checking(100000))
	eng := New(st)

	in := input(core.Expense, "40.00", "acct-1")
	res, err := eng.ApplyNewTransaction(context.Background(), in)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	original := st.txs[res.TransactionID]

	edit, err := eng.EditTransaction(context.Background(), res.TransactionID, in, original)
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if edit.NewAccount.Balance.Cents != 96000 {
		t.Fatalf("expected balance 96000, got %d", edit.NewAccount.Balance.Cents)
	}
	if st.balance("acct-1") != 96000 {
		t.Fatalf("stored balance changed on no-op edit: %d", st.balance("acct-1"))
	}
}

func TestCrossAccountEditConservesTotal(t *testing.T) {
	a := checking(100000)
	b := core.Account{ID: "acct-2", OwnerID: "owner-1", Name: "Risparmio", Balance: core.Money{Cents: 50000}, Version: 1}
	st := newFakeStore(a, b)
	eng := New(st)

	res, err := eng.ApplyNewTransaction(context.Background(), input(core.Expense, "100.00", "acct-1"))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	original := st.txs[res.TransactionID]
	totalBefore := st.balance("acct-1") + st.balance("acct-2")

	edit, err := eng.EditTransaction(context.Background(), res.TransactionID, input(core.Expense, "100.00", "acct-2"), original)
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if st.balance("acct-1") != 100000 {
		t.Fatalf("old account not fully reversed: %d", st.balance("acct-1"))
	}
	if st.balance("acct-2") != 40000 {
		t.Fatalf("new account: expected 40000, got %d", st.balance("acct-2"))
	}
	if got := st.balance("acct-1") + st.balance("acct-2"); got != totalBefore {
		t.Fatalf("combined balance changed: before %d, after %d", totalBefore, got)
	}
	if edit.OldAccount.AccountID == edit.NewAccount.AccountID {
		t.Fatalf("expected distinct account entries, got %+v", edit)
	}
	if st.txs[res.TransactionID].AccountID != "acct-2" {
		t.Fatalf("record still points at old account")
	}
}

func TestRepeatedApplyReverseIsStable(t *testing.T) {
	st := newFakeStore(checking(0))
	eng := New(st)

	for i := 0; i < 1000; i++ {
		res, err := eng.ApplyNewTransaction(context.Background(), input(core.Expense, "0.10", "acct-1"))
		if err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
		if _, err := eng.DeleteTransaction(context.Background(), st.txs[res.TransactionID]); err != nil {
			t.Fatalf("delete %d: %v", i, err)
		}
	}
	if st.balance("acct-1") != 0 {
		t.Fatalf("expected exact zero after 1000 apply/reverse pairs, got %d", st.balance("acct-1"))
	}
}

func TestCheckingAccountScenario(t *testing.T) {
	st := newFakeStore(checking(100000))
	eng := New(st)
	ctx := context.Background()

	if _, err := eng.ApplyNewTransaction(ctx, input(core.Income, "2500", "acct-1")); err != nil {
		t.Fatalf("income: %v", err)
	}
	if st.balance("acct-1") != 350000 {
		t.Fatalf("after income: expected 350000, got %d", st.balance("acct-1"))
	}

	res, err := eng.ApplyNewTransaction(ctx, input(core.Expense, "150.75", "acct-1"))
	if err != nil {
		t.Fatalf("expense: %v", err)
	}
	if st.balance("acct-1") != 334925 {
		t.Fatalf("after expense: expected 334925, got %d", st.balance("acct-1"))
	}

	original := st.txs[res.TransactionID]
	if _, err := eng.EditTransaction(ctx, res.TransactionID, input(core.Expense, "200.00", "acct-1"), original); err != nil {
		t.Fatalf("edit: %v", err)
	}
	// Reverse the 150.75 expense, apply the 200.00 one:
	// 334925 + 15075 - 20000 = 330000.
	if st.balance("acct-1") != 330000 {
		t.Fatalf("after edit: expected 330000, got %d", st.balance("acct-1"))
	}

	var incomeTx core.Transaction
	for _, tx := range st.txs {
		if tx.Type == core.Income {
			incomeTx = tx
		}
	}
	if _, err := eng.DeleteTransaction(ctx, incomeTx); err != nil {
		t.Fatalf("delete income: %v", err)
	}
	if st.balance("acct-1") != 80000 {
		t.Fatalf("after delete: expected 80000, got %d", st.balance("acct-1"))
	}
}

func TestValidationFailsBeforeAnyWrite(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*TransactionInput)
	}{
		{"empty amount", func(in *TransactionInput) { in.Amount = "" }},
		{"negative amount", func(in *TransactionInput) { in.Amount = "-5" }},
		{"zero amount", func(in *TransactionInput) { in.Amount = "0" }},
		{"bad type", func(in *TransactionInput) { in.Type = "transfer" }},
		{"zero date", func(in *TransactionInput) { in.Date = core.Date{} }},
		{"empty category", func(in *TransactionInput) { in.Category = " " }},
		{"empty account", func(in *TransactionInput) { in.AccountID = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := newFakeStore(checking(10000))
			eng := New(st)
			in := input(core.Expense, "10.00", "acct-1")
			tc.mutate(&in)
			_, err := eng.ApplyNewTransaction(context.Background(), in)
			if !IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if st.balanceWrites != 0 || st.txWrites != 0 {
				t.Fatalf("expected zero writes, got %d balance / %d tx", st.balanceWrites, st.txWrites)
			}
		})
	}
}

func TestAuthorizationFailsBeforeAnyWrite(t *testing.T) {
	st := newFakeStore(checking(10000))
	eng := New(st)

	in := input(core.Expense, "10.00", "acct-1")
	in.OwnerID = "intruder"
	_, err := eng.ApplyNewTransaction(context.Background(), in)
	if !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if st.balanceWrites != 0 || st.txWrites != 0 {
		t.Fatalf("expected zero writes, got %d balance / %d tx", st.balanceWrites, st.txWrites)
	}
}

func TestApplyUnknownAccount(t *testing.T) {
	st := newFakeStore(checking(10000))
	eng := New(st)

	_, err := eng.ApplyNewTransaction(context.Background(), input(core.Expense, "10.00", "missing"))
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if st.balanceWrites != 0 || st.txWrites != 0 {
		t.Fatalf("expected zero writes, got %d balance / %d tx", st.balanceWrites, st.txWrites)
	}
}

func TestBalanceConflictRetries(t *testing.T) {
	st := newFakeStore(checking(10000))
	st.conflictsLeft = 2 // two concurrent writers land first, third attempt wins
	eng := New(st)

	res, err := eng.ApplyNewTransaction(context.Background(), input(core.Income, "10.00", "acct-1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.NewBalance.Cents != 11000 {
		t.Fatalf("expected 11000, got %d", res.NewBalance.Cents)
	}
}

func TestBalanceContentionExhausted(t *testing.T) {
	st := newFakeStore(checking(10000))
	st.conflictsLeft = 100
	eng := New(st)

	_, err := eng.ApplyNewTransaction(context.Background(), input(core.Income, "10.00", "acct-1"))
	if !errors.Is(err, ErrBalanceContention) {
		t.Fatalf("expected ErrBalanceContention, got %v", err)
	}
	if st.txWrites != 0 {
		t.Fatalf("expected no transaction writes, got %d", st.txWrites)
	}
}

func TestPartialWriteOnCreate(t *testing.T) {
	st := newFakeStore(checking(10000))
	st.failCreate = errors.New("disk full")
	eng := New(st)

	_, err := eng.ApplyNewTransaction(context.Background(), input(core.Expense, "10.00", "acct-1"))
	var pw *PartialWriteError
	if !errors.As(err, &pw) {
		t.Fatalf("expected PartialWriteError, got %v", err)
	}
	if pw.Op != "create" || pw.Failed != "transaction write" {
		t.Fatalf("unexpected partial write detail: %+v", pw)
	}
	// The balance write landed and was not rolled back.
	if st.balance("acct-1") != 9000 {
		t.Fatalf("expected balance 9000, got %d", st.balance("acct-1"))
	}
}

func TestPartialWriteOnCrossAccountEdit(t *testing.T) {
	a := checking(100000)
	b := core.Account{ID: "acct-2", OwnerID: "owner-1", Name: "Risparmio", Balance: core.Money{Cents: 50000}, Version: 1}
	st := newFakeStore(a, b)
	eng := New(st)

	res, err := eng.ApplyNewTransaction(context.Background(), input(core.Expense, "100.00", "acct-1"))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	original := st.txs[res.TransactionID]

	st.failBalance["acct-2"] = errors.New("io error")
	_, err = eng.EditTransaction(context.Background(), res.TransactionID, input(core.Expense, "100.00", "acct-2"), original)
	var pw *PartialWriteError
	if !errors.As(err, &pw) {
		t.Fatalf("expected PartialWriteError, got %v", err)
	}
	if pw.Failed != "new account balance update" {
		t.Fatalf("unexpected failed step: %q", pw.Failed)
	}
	// The old account's reversal landed.
	if st.balance("acct-1") != 100000 {
		t.Fatalf("expected old account reversed to 100000, got %d", st.balance("acct-1"))
	}
}

func TestDeleteOrphanedTransaction(t *testing.T) {
	st := newFakeStore(checking(10000))
	eng := New(st)

	res, err := eng.ApplyNewTransaction(context.Background(), input(core.Expense, "10.00", "acct-1"))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	tx := st.txs[res.TransactionID]
	delete(st.accounts, "acct-1")

	del, err := eng.DeleteTransaction(context.Background(), tx)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if del.Warning == nil {
		t.Fatalf("expected orphan warning")
	}
	if del.Warning.AccountID != "acct-1" {
		t.Fatalf("unexpected warning account: %q", del.Warning.AccountID)
	}
	if _, ok := st.txs[res.TransactionID]; ok {
		t.Fatalf("orphaned record still present")
	}
}

func TestDeleteNotOwner(t *testing.T) {
	st := newFakeStore(checking(10000))
	eng := New(st)

	res, err := eng.ApplyNewTransaction(context.Background(), input(core.Expense, "10.00", "acct-1"))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	tx := st.txs[res.TransactionID]
	tx.OwnerID = "intruder"

	if _, err := eng.DeleteTransaction(context.Background(), tx); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
}
