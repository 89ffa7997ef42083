package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/chungtau/ledger-bank/internal/domain"
	"github.com/chungtau/ledger-bank/internal/middleware"
)

// Accounts is the account lifecycle service.
type Accounts interface {
	Open(ctx context.Context, caller domain.Identity, accountType domain.AccountType, initialBalance decimal.Decimal) (domain.Account, error)
	Get(ctx context.Context, id int64, caller domain.Identity) (domain.Account, error)
	List(ctx context.Context, caller domain.Identity, page domain.Page) ([]domain.Account, error)
	UpdateType(ctx context.Context, id int64, caller domain.Identity, accountType domain.AccountType) (domain.Account, error)
	Delete(ctx context.Context, id int64, caller domain.Identity) (domain.Account, error)
}

// AccountHandler handles account-related endpoints
type AccountHandler struct {
	accounts Accounts
}

func NewAccountHandler(accounts Accounts) *AccountHandler {
	return &AccountHandler{
		accounts: accounts,
	}
}

// CreateAccountRequest represents the request body for creating an account.
// The owner is always the caller.
type CreateAccountRequest struct {
	AccountType    string          `json:"account_type" binding:"required"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
}

type UpdateAccountRequest struct {
	AccountType string `json:"account_type" binding:"required"`
}

type ListAccountsResponse struct {
	Accounts []AccountResponse `json:"accounts"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

// Create handles POST /v1/accounts
func (h *AccountHandler) Create(c *gin.Context) {
	caller, ok := middleware.GetIdentity(c)
	if !ok {
		unauthenticated(c)
		return
	}

	var req CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	accountType, ok := domain.ParseAccountType(req.AccountType)
	if !ok {
		badRequest(c, "account_type must be SAVINGS or CHECKING")
		return
	}
	if req.InitialBalance.IsNegative() || req.InitialBalance.GreaterThan(MaxAmount) {
		badRequest(c, "initial_balance must be between 0 and "+MaxAmount.String())
		return
	}

	acc, err := h.accounts.Open(c.Request.Context(), caller, accountType, req.InitialBalance)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toAccountResponse(acc))
}

// List handles GET /v1/accounts
func (h *AccountHandler) List(c *gin.Context) {
	caller, ok := middleware.GetIdentity(c)
	if !ok {
		unauthenticated(c)
		return
	}
	page := pageFromQuery(c)

	accs, err := h.accounts.List(c.Request.Context(), caller, page)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]AccountResponse, 0, len(accs))
	for _, acc := range accs {
		out = append(out, toAccountResponse(acc))
	}
	c.JSON(http.StatusOK, ListAccountsResponse{
		Accounts: out,
		Page:     page.Number,
		PageSize: page.Limit(),
	})
}

// Get handles GET /v1/accounts/:id
func (h *AccountHandler) Get(c *gin.Context) {
	caller, ok := middleware.GetIdentity(c)
	if !ok {
		unauthenticated(c)
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	acc, err := h.accounts.Get(c.Request.Context(), id, caller)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAccountResponse(acc))
}

// Update handles PATCH /v1/accounts/:id
func (h *AccountHandler) Update(c *gin.Context) {
	caller, ok := middleware.GetIdentity(c)
	if !ok {
		unauthenticated(c)
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req UpdateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	accountType, ok := domain.ParseAccountType(req.AccountType)
	if !ok {
		badRequest(c, "account_type must be SAVINGS or CHECKING")
		return
	}

	acc, err := h.accounts.UpdateType(c.Request.Context(), id, caller, accountType)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAccountResponse(acc))
}

// Delete handles DELETE /v1/accounts/:id
func (h *AccountHandler) Delete(c *gin.Context) {
	caller, ok := middleware.GetIdentity(c)
	if !ok {
		unauthenticated(c)
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	acc, err := h.accounts.Delete(c.Request.Context(), id, caller)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAccountResponse(acc))
}
