package http

import (
	"net/http"

	"pecunia/internal/core"
	"pecunia/internal/ledger"
)

type createAccountRequest struct {
	Name    string `json:"name"`
	Balance string `json:"balance"` // optional starting balance, e.g. "1000" or "-12,50"
}

type updateAccountRequest struct {
	Name    string  `json:"name"`
	Balance *string `json:"balance,omitempty"` // set the balance directly when present
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.svc.ListAccounts(r.Context(), ownerFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]accountJSON, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountJSON(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": out})
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	balance := core.Money{}
	if req.Balance != "" {
		cents, err := core.ParseBalanceToCents(req.Balance)
		if err != nil {
			writeError(w, &ledger.ValidationError{Field: "balance", Err: err})
			return
		}
		balance = core.Money{Cents: cents}
	}

	created, err := s.svc.CreateAccount(r.Context(), core.Account{
		OwnerID: ownerFrom(r),
		Name:    sanitizeInput(req.Name),
		Balance: balance,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountJSON(created))
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	a, err := s.svc.GetAccount(r.Context(), ownerFrom(r), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountJSON(a))
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req updateAccountRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	var balance *core.Money
	if req.Balance != nil {
		cents, err := core.ParseBalanceToCents(*req.Balance)
		if err != nil {
			writeError(w, &ledger.ValidationError{Field: "balance", Err: err})
			return
		}
		balance = &core.Money{Cents: cents}
	}

	a, err := s.svc.UpdateAccount(r.Context(), ownerFrom(r), r.PathValue("id"), sanitizeInput(req.Name), balance)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountJSON(a))
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteAccount(r.Context(), ownerFrom(r), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
