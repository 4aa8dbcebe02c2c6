package http

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pecunia/internal/core"
	"pecunia/internal/ledger"
	"pecunia/internal/store"
)

// errorResponse is the JSON body for every non-2xx response. RetrySafe is set
// only on write failures: true when nothing was persisted, false when a
// partial write may have left the balance out of sync.
type errorResponse struct {
	Error        string `json:"error"`
	Field        string `json:"field,omitempty"`
	RetrySafe    *bool  `json:"retry_safe,omitempty"`
	BalanceState string `json:"balance_state,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError maps domain errors onto HTTP statuses:
//
//	validation failure        -> 422 (nothing written)
//	unknown record            -> 404
//	record of another owner   -> 403
//	account still referenced  -> 409
//	balance under contention  -> 409, retry safe
//	partial write             -> 500, retry NOT safe
//	any other failure         -> 502, retry safe
func writeError(w http.ResponseWriter, err error) {
	var ve *ledger.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: ve.Error(), Field: ve.Field})
		return
	}

	if errors.Is(err, store.ErrNotFound) || errors.Is(err, ledger.ErrAccountNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
		return
	}
	if errors.Is(err, ledger.ErrNotOwner) {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "forbidden"})
		return
	}
	if errors.Is(err, store.ErrAccountInUse) {
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		return
	}
	if errors.Is(err, ledger.ErrBalanceContention) {
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), RetrySafe: boolPtr(true)})
		return
	}

	var pw *ledger.PartialWriteError
	if errors.As(err, &pw) {
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:        pw.Error(),
			RetrySafe:    boolPtr(false),
			BalanceState: "inconsistent",
		})
		return
	}

	writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error(), RetrySafe: boolPtr(true)})
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func boolPtr(b bool) *bool { return &b }

// decodeBody decodes a JSON request body, rejecting unknown fields.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// accountJSON is the wire shape of an account. Balance is duplicated as cents
// and as a formatted euro string so clients never do float arithmetic.
type accountJSON struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	BalanceCents int64  `json:"balance_cents"`
	Balance      string `json:"balance"`
	Version      int64  `json:"version"`
}

func toAccountJSON(a core.Account) accountJSON {
	return accountJSON{
		ID:           a.ID,
		Name:         a.Name,
		BalanceCents: a.Balance.Cents,
		Balance:      a.Balance.String(),
		Version:      a.Version,
	}
}

type transactionJSON struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	AmountCents int64  `json:"amount_cents"`
	Amount      string `json:"amount"`
	Date        string `json:"date"`
	Category    string `json:"category"`
	AccountID   string `json:"account_id"`
	Note        string `json:"note,omitempty"`
}

func toTransactionJSON(t core.Transaction) transactionJSON {
	return transactionJSON{
		ID:          t.ID,
		Type:        string(t.Type),
		AmountCents: t.Amount.Cents,
		Amount:      t.Amount.String(),
		Date:        t.Date.Format("2006-01-02"),
		Category:    t.Category,
		AccountID:   t.AccountID,
		Note:        t.Note,
	}
}

type categoryAmountJSON struct {
	Name        string `json:"name"`
	AmountCents int64  `json:"amount_cents"`
	Amount      string `json:"amount"`
}

type typeBreakdownJSON struct {
	TotalCents int64                `json:"total_cents"`
	Total      string               `json:"total"`
	ByCategory []categoryAmountJSON `json:"by_category"`
}

type breakdownJSON struct {
	Year      int               `json:"year"`
	Month     int               `json:"month"`
	AccountID string            `json:"account_id,omitempty"`
	Income    typeBreakdownJSON `json:"income"`
	Expense   typeBreakdownJSON `json:"expense"`
	Saving    typeBreakdownJSON `json:"saving"`
}

func toBreakdownJSON(bd core.MonthBreakdown) breakdownJSON {
	return breakdownJSON{
		Year:      bd.Year,
		Month:     bd.Month,
		AccountID: bd.AccountID,
		Income:    toTypeBreakdownJSON(bd.Income),
		Expense:   toTypeBreakdownJSON(bd.Expense),
		Saving:    toTypeBreakdownJSON(bd.Saving),
	}
}

func toTypeBreakdownJSON(tb core.TypeBreakdown) typeBreakdownJSON {
	out := typeBreakdownJSON{
		TotalCents: tb.Total.Cents,
		Total:      tb.Total.String(),
		ByCategory: make([]categoryAmountJSON, 0, len(tb.ByCategory)),
	}
	for _, ca := range tb.ByCategory {
		out.ByCategory = append(out.ByCategory, categoryAmountJSON{
			Name:        ca.Name,
			AmountCents: ca.Amount.Cents,
			Amount:      ca.Amount.String(),
		})
	}
	return out
}

// parseYearMonth extracts year and month from query parameters, defaulting to
// the current month. A malformed or out-of-range value is a validation error,
// not an empty listing.
func parseYearMonth(r *http.Request) (year, month int, err error) {
	now := time.Now()
	year = now.Year()
	month = int(now.Month())

	if v := strings.TrimSpace(r.URL.Query().Get("year")); v != "" {
		y, convErr := strconv.Atoi(v)
		if convErr != nil || y < 1 || y > 9999 {
			return 0, 0, &ledger.ValidationError{Field: "year", Err: fmt.Errorf("invalid year %q", v)}
		}
		year = y
	}
	if v := strings.TrimSpace(r.URL.Query().Get("month")); v != "" {
		m, convErr := strconv.Atoi(v)
		if convErr != nil || m < 1 || m > 12 {
			return 0, 0, &ledger.ValidationError{Field: "month", Err: fmt.Errorf("invalid month %q", v)}
		}
		month = m
	}

	return year, month, nil
}

// parseDate parses a date string in YYYY-MM-DD format. A zero Date is
// returned on failure; downstream validation rejects it.
func parseDate(dateStr string) core.Date {
	parsedTime, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return core.Date{}
	}
	return core.Date{Time: parsedTime}
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}
