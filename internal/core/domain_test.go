package core

import (
	"errors"
	"strings"
	"testing"
)

func validTransaction() Transaction {
	return Transaction{
		OwnerID:   "owner-1",
		Type:      Expense,
		Amount:    Money{Cents: 1500},
		Date:      NewDate(2026, 3, 14),
		Category:  "Spesa",
		AccountID: "acct-1",
	}
}

func TestTransactionValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Transaction)
		wantErr error
	}{
		{"valid", func(tx *Transaction) {}, nil},
		{"missing owner", func(tx *Transaction) { tx.OwnerID = " " }, ErrEmptyOwner},
		{"bad type", func(tx *Transaction) { tx.Type = "transfer" }, ErrInvalidType},
		{"zero amount", func(tx *Transaction) { tx.Amount = Money{} }, ErrInvalidAmount},
		{"negative amount", func(tx *Transaction) { tx.Amount = Money{Cents: -100} }, ErrInvalidAmount},
		{"zero date", func(tx *Transaction) { tx.Date = Date{} }, ErrInvalidDate},
		{"empty category", func(tx *Transaction) { tx.Category = "" }, ErrEmptyCategory},
		{"empty account", func(tx *Transaction) { tx.AccountID = "" }, ErrEmptyAccountID},
		{"long note", func(tx *Transaction) { tx.Note = strings.Repeat("x", 201) }, ErrNoteTooLong},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tx := validTransaction()
			tc.mutate(&tx)
			err := tx.Validate()
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestSignedEffect(t *testing.T) {
	cases := []struct {
		typ  TransactionType
		want int64
	}{
		{Income, 1500},
		{Expense, -1500},
		{Saving, -1500},
	}
	for _, tc := range cases {
		tx := validTransaction()
		tx.Type = tc.typ
		if got := tx.SignedEffect().Cents; got != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.typ, tc.want, got)
		}
		// Reversal is the exact negation.
		if got := tx.SignedEffect().Neg().Cents; got != -tc.want {
			t.Fatalf("%s: reversal expected %d, got %d", tc.typ, -tc.want, got)
		}
	}
}

func TestAccountValidate(t *testing.T) {
	a := Account{OwnerID: "owner-1", Name: "Conto corrente"}
	if err := a.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a.Name = ""
	if !errors.Is(a.Validate(), ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName")
	}
	a = Account{Name: "x"}
	if !errors.Is(a.Validate(), ErrEmptyOwner) {
		t.Fatalf("expected ErrEmptyOwner")
	}
}

func TestCategoriesFor(t *testing.T) {
	custom := []Category{
		{OwnerID: "o", Name: "Palestra", Type: Expense},
		{OwnerID: "o", Name: "Freelance", Type: Income},
		{OwnerID: "o", Name: "Altro", Type: Expense}, // duplicate of a builtin
	}
	got := CategoriesFor(Expense, custom)
	want := append(append([]string(nil), BuiltinCategories[Expense]...), "Palestra")
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
