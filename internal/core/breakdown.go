package core

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount Money
}

// TypeBreakdown is the per-category aggregation for one transaction type.
type TypeBreakdown struct {
	Type       TransactionType
	Total      Money
	ByCategory []CategoryAmount
}

// MonthBreakdown is the aggregated view for a specific year+month, optionally
// restricted to one account. It carries the data the client's pie charts
// render, one slice per category within each type.
type MonthBreakdown struct {
	Year      int
	Month     int // 1-12
	AccountID string
	Income    TypeBreakdown
	Expense   TypeBreakdown
	Saving    TypeBreakdown
}

// BuildMonthBreakdown filters transactions by year+month (and account, when
// accountID is non-empty) and groups amounts by category within each type,
// preserving first-seen category order.
func BuildMonthBreakdown(txs []Transaction, year, month int, accountID string) MonthBreakdown {
	bd := MonthBreakdown{
		Year:      year,
		Month:     month,
		AccountID: accountID,
		Income:    TypeBreakdown{Type: Income},
		Expense:   TypeBreakdown{Type: Expense},
		Saving:    TypeBreakdown{Type: Saving},
	}
	for _, t := range txs {
		if t.Date.Year() != year || t.Date.Month() != month {
			continue
		}
		if accountID != "" && t.AccountID != accountID {
			continue
		}
		switch t.Type {
		case Income:
			bd.Income.add(t)
		case Expense:
			bd.Expense.add(t)
		case Saving:
			bd.Saving.add(t)
		}
	}
	return bd
}

func (b *TypeBreakdown) add(t Transaction) {
	b.Total = b.Total.Add(t.Amount)
	for i := range b.ByCategory {
		if b.ByCategory[i].Name == t.Category {
			b.ByCategory[i].Amount = b.ByCategory[i].Amount.Add(t.Amount)
			return
		}
	}
	b.ByCategory = append(b.ByCategory, CategoryAmount{Name: t.Category, Amount: t.Amount})
}
