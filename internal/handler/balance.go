package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chungtau/ledger-bank/internal/middleware"
)

// BalanceHandler handles balance-related endpoints
type BalanceHandler struct {
	queries Queries
}

func NewBalanceHandler(queries Queries) *BalanceHandler {
	return &BalanceHandler{
		queries: queries,
	}
}

type BalanceResponse struct {
	AccountID   int64  `json:"account_id"`
	AccountType string `json:"account_type"`
	Balance     string `json:"balance"`
}

// Get handles GET /v1/accounts/:id/balance
func (h *BalanceHandler) Get(c *gin.Context) {
	caller, ok := middleware.GetIdentity(c)
	if !ok {
		unauthenticated(c)
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	acc, err := h.queries.Balance(c.Request.Context(), id, caller)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, BalanceResponse{
		AccountID:   acc.ID,
		AccountType: string(acc.Type),
		Balance:     acc.Balance.StringFixed(2),
	})
}
