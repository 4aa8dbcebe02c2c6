package core

import "testing"

func TestBuildMonthBreakdown(t *testing.T) {
	txs := []Transaction{
		{Type: Income, Amount: Money{Cents: 250000}, Date: NewDate(2026, 3, 1), Category: "Stipendio", AccountID: "a"},
		{Type: Expense, Amount: Money{Cents: 15075}, Date: NewDate(2026, 3, 5), Category: "Spesa", AccountID: "a"},
		{Type: Expense, Amount: Money{Cents: 5000}, Date: NewDate(2026, 3, 9), Category: "Spesa", AccountID: "a"},
		{Type: Expense, Amount: Money{Cents: 80000}, Date: NewDate(2026, 3, 10), Category: "Affitto", AccountID: "b"},
		{Type: Saving, Amount: Money{Cents: 10000}, Date: NewDate(2026, 3, 20), Category: "Fondi", AccountID: "a"},
		// Different month and year, must be excluded.
		{Type: Expense, Amount: Money{Cents: 9999}, Date: NewDate(2026, 4, 1), Category: "Spesa", AccountID: "a"},
		{Type: Expense, Amount: Money{Cents: 9999}, Date: NewDate(2025, 3, 1), Category: "Spesa", AccountID: "a"},
	}

	bd := BuildMonthBreakdown(txs, 2026, 3, "")
	if bd.Income.Total.Cents != 250000 {
		t.Fatalf("income total: expected 250000, got %d", bd.Income.Total.Cents)
	}
	if bd.Expense.Total.Cents != 15075+5000+80000 {
		t.Fatalf("expense total: expected %d, got %d", 15075+5000+80000, bd.Expense.Total.Cents)
	}
	if bd.Saving.Total.Cents != 10000 {
		t.Fatalf("saving total: expected 10000, got %d", bd.Saving.Total.Cents)
	}
	// Grouping preserves first-seen order and merges same-category amounts.
	if len(bd.Expense.ByCategory) != 2 {
		t.Fatalf("expected 2 expense categories, got %d", len(bd.Expense.ByCategory))
	}
	if bd.Expense.ByCategory[0].Name != "Spesa" || bd.Expense.ByCategory[0].Amount.Cents != 20075 {
		t.Fatalf("unexpected first expense category: %+v", bd.Expense.ByCategory[0])
	}

	// Restricting to one account drops the other account's transactions.
	bd = BuildMonthBreakdown(txs, 2026, 3, "a")
	if bd.Expense.Total.Cents != 20075 {
		t.Fatalf("account filter: expected 20075, got %d", bd.Expense.Total.Cents)
	}
}
