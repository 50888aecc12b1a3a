package handler

import (
	"log/slog"
	"net/http"

	"github.com/agberohq/agbero/internal/ledger"
)

// AccountHandler exposes account balances and deposits over HTTP.
type AccountHandler struct {
	ledger *ledger.Ledger
	logger *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(l *ledger.Ledger, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		ledger: l,
		logger: logger.With(slog.String("handler", "account")),
	}
}

// GetBalance handles GET /api/accounts/{id}/balance.
func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	account := r.PathValue("id")
	balance, err := h.ledger.Balance(r.Context(), account)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account": account,
		"balance": balance,
	})
}

type depositRequest struct {
	Amount float64 `json:"amount"`
}

// Deposit handles POST /api/accounts/{id}/deposit. It is the inbound funding
// edge; production deployments put this behind operator credentials.
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	account := r.PathValue("id")

	var req depositRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.ledger.Deposit(r.Context(), account, req.Amount); err != nil {
		writeDomainError(w, err)
		return
	}

	balance, err := h.ledger.Balance(r.Context(), account)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account": account,
		"balance": balance,
	})
}
