package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"mivvo/internal/ledger"
	"mivvo/internal/services"
)

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	ownerID, err := owner(r)
	if err != nil {
		s.writeError(r, w, err)
		return
	}
	balance, err := s.ledger.Account(r.Context(), ownerID)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			s.writeError(r, w, services.Wrap(services.ErrNotFound, "api", "balance", "no credit account", nil))
			return
		}
		s.writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, newBalanceView(balance))
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	ownerID, err := owner(r)
	if err != nil {
		s.writeError(r, w, err)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			s.writeError(r, w, services.Wrap(services.ErrValidation, "api", "transactions",
				"limit must be a positive integer", nil))
			return
		}
		limit = parsed
	}
	transactions, err := s.ledger.Transactions(r.Context(), ownerID, limit)
	if err != nil {
		s.writeError(r, w, err)
		return
	}
	views := make([]transactionView, 0, len(transactions))
	for _, tx := range transactions {
		views = append(views, newTransactionView(tx))
	}
	writeJSON(w, http.StatusOK, views)
}

type grantRequest struct {
	Amount      string `json:"amount"`
	ReferenceID string `json:"reference_id"`
	Note        string `json:"note"`
}

// handleGrant tops up the acting account. Purchases from a payment gateway
// land here with the gateway's charge id as the reference.
func (s *Server) handleGrant(w http.ResponseWriter, r *http.Request) {
	ownerID, err := owner(r)
	if err != nil {
		s.writeError(r, w, err)
		return
	}
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(r, w, services.Wrap(services.ErrValidation, "api", "grant", "invalid JSON body", err))
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		s.writeError(r, w, services.Wrap(services.ErrValidation, "api", "grant", "invalid amount", err))
		return
	}
	balance, err := s.ledger.Grant(r.Context(), ownerID, amount, req.ReferenceID, req.Note)
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidAmount) {
			s.writeError(r, w, services.Wrap(services.ErrValidation, "api", "grant", "amount must be positive", nil))
			return
		}
		s.writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newBalanceView(balance))
}
