package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Income  TransactionType = "income"  // entrata: adds to the account balance
	Expense TransactionType = "expense" // uscita: subtracts from the account balance
	Saving  TransactionType = "saving"  // risparmio: subtracts from the account balance
)

type (
	TransactionType string

	Date struct {
		time.Time
	}

	// Account is a named balance bucket owned by a user. Version is bumped on
	// every balance write and guards conditional updates.
	Account struct {
		ID      string
		OwnerID string
		Name    string
		Balance Money
		Version int64
	}

	// Transaction is a dated, categorized money movement referencing exactly
	// one account. Amount is always positive; the sign of its effect on the
	// balance comes from Type.
	Transaction struct {
		ID        string
		OwnerID   string
		Type      TransactionType
		Amount    Money
		Date      Date
		Category  string
		AccountID string
		Note      string
	}

	// Category is a user-defined label offered alongside the built-in ones
	// for its transaction type. It plays no role in balance arithmetic.
	Category struct {
		ID      string
		OwnerID string
		Name    string
		Type    TransactionType
	}
)

var (
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrInvalidDate    = errors.New("invalid date")
	ErrInvalidType    = errors.New("invalid transaction type")
	ErrEmptyCategory  = errors.New("empty category")
	ErrEmptyName      = errors.New("empty name")
	ErrEmptyOwner     = errors.New("empty owner id")
	ErrEmptyAccountID = errors.New("empty account id")
	ErrNoteTooLong    = errors.New("note too long (max 200 characters)")
)

// BuiltinCategories lists the categories always offered for each type,
// before the owner's custom ones.
var BuiltinCategories = map[TransactionType][]string{
	Income:  {"Stipendio", "Pensione", "Investimenti", "Crediti", "Altro"},
	Expense: {"Spesa", "Affitto", "Bollette", "Shopping", "Altro"},
	Saving:  {"Crypto", "Azioni", "Fondi"},
}

// Valid reports whether t is one of the three known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case Income, Expense, Saving:
		return true
	}
	return false
}

// NewDate creates a Date from year, month, day (UTC, no time component).
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// Day returns the day of the month.
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month as 1-12.
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year.
func (d Date) Year() int {
	return d.Time.Year()
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.OwnerID) == "" {
		return ErrEmptyOwner
	}
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyName
	}
	if len(a.Name) > 100 {
		return errors.New("name too long (max 100 characters)")
	}
	return nil
}

// SignedEffect is the balance delta this transaction contributes when
// applied: positive for income, negative for expense and saving. Reversing a
// transaction applies the exact negation.
func (t Transaction) SignedEffect() Money {
	if t.Type == Income {
		return t.Amount
	}
	return t.Amount.Neg()
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.OwnerID) == "" {
		return ErrEmptyOwner
	}
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if strings.TrimSpace(t.AccountID) == "" {
		return ErrEmptyAccountID
	}
	if len(t.Note) > 200 {
		return ErrNoteTooLong
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.OwnerID) == "" {
		return ErrEmptyOwner
	}
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if len(c.Name) > 100 {
		return errors.New("name too long (max 100 characters)")
	}
	if !c.Type.Valid() {
		return ErrInvalidType
	}
	return nil
}

// CategoriesFor merges the built-in categories for a type with the owner's
// custom ones of the same type, preserving order and dropping duplicates.
func CategoriesFor(t TransactionType, custom []Category) []string {
	out := append([]string(nil), BuiltinCategories[t]...)
	seen := make(map[string]struct{}, len(out))
	for _, name := range out {
		seen[name] = struct{}{}
	}
	for _, c := range custom {
		if c.Type != t {
			continue
		}
		if _, ok := seen[c.Name]; ok {
			continue
		}
		seen[c.Name] = struct{}{}
		out = append(out, c.Name)
	}
	return out
}
