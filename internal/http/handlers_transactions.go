package http

import (
	"net/http"

	"pecunia/internal/core"
	"pecunia/internal/ledger"
)

// transactionRequest is shared between create and edit: an edit replaces the
// whole record, so both carry the full field set.
type transactionRequest struct {
	Type      string `json:"type"`
	Amount    string `json:"amount"` // positive decimal, "12.34" or "12,34"
	Date      string `json:"date"`   // YYYY-MM-DD
	Category  string `json:"category"`
	AccountID string `json:"account_id"`
	Note      string `json:"note"`
}

func (req transactionRequest) toInput(ownerID string) ledger.TransactionInput {
	return ledger.TransactionInput{
		OwnerID:   ownerID,
		Type:      core.TransactionType(req.Type),
		Amount:    req.Amount,
		Date:      parseDate(req.Date),
		Category:  sanitizeInput(req.Category),
		AccountID: req.AccountID,
		Note:      sanitizeInput(req.Note),
	}
}

type accountBalanceJSON struct {
	AccountID    string `json:"account_id"`
	BalanceCents int64  `json:"balance_cents"`
	Balance      string `json:"balance"`
}

func toAccountBalanceJSON(ab ledger.AccountBalance) accountBalanceJSON {
	return accountBalanceJSON{
		AccountID:    ab.AccountID,
		BalanceCents: ab.Balance.Cents,
		Balance:      ab.Balance.String(),
	}
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	year, month, err := parseYearMonth(r)
	if err != nil {
		writeError(w, err)
		return
	}
	accountID := r.URL.Query().Get("account_id")

	txs, err := s.svc.ListTransactions(r.Context(), ownerFrom(r), year, month, accountID)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]transactionJSON, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransactionJSON(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"year":         year,
		"month":        month,
		"transactions": out,
	})
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	t, err := s.svc.GetTransaction(r.Context(), ownerFrom(r), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionJSON(t))
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	res, err := s.svc.CreateTransaction(r.Context(), req.toInput(ownerFrom(r)))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"transaction_id":    res.TransactionID,
		"new_balance_cents": res.NewBalance.Cents,
		"new_balance":       res.NewBalance.String(),
	})
}

func (s *Server) handleEditTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	res, err := s.svc.EditTransaction(r.Context(), ownerFrom(r), r.PathValue("id"), req.toInput(ownerFrom(r)))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"old_account": toAccountBalanceJSON(res.OldAccount),
		"new_account": toAccountBalanceJSON(res.NewAccount),
	})
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.DeleteTransaction(r.Context(), ownerFrom(r), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	body := map[string]any{
		"new_balance_cents": res.NewBalance.Cents,
		"new_balance":       res.NewBalance.String(),
	}
	if res.Warning != nil {
		// The record is gone; no balance was touched because its account no
		// longer exists.
		body["warning"] = res.Warning.Error()
	}
	writeJSON(w, http.StatusOK, body)
}
