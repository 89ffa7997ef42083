package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/chungtau/ledger-bank/internal/domain"
	"github.com/chungtau/ledger-bank/internal/middleware"
)

// Ledger is the mutation side of the ledger engine.
type Ledger interface {
	Deposit(ctx context.Context, accountID int64, amount decimal.Decimal, caller domain.Identity) (domain.Account, error)
	Withdraw(ctx context.Context, accountID int64, amount decimal.Decimal, caller domain.Identity) (domain.Account, error)
	Transfer(ctx context.Context, sourceID, destinationID int64, amount decimal.Decimal, caller domain.Identity) (domain.Transaction, error)
}

// Queries is the read side used by the transaction and balance endpoints.
type Queries interface {
	Transactions(ctx context.Context, caller domain.Identity, page domain.Page) ([]domain.Transaction, error)
	Transaction(ctx context.Context, id int64, caller domain.Identity) (domain.Transaction, error)
	Balance(ctx context.Context, accountID int64, caller domain.Identity) (domain.Account, error)
}

// TransactionHandler handles transaction-related endpoints
type TransactionHandler struct {
	ledger  Ledger
	queries Queries
}

func NewTransactionHandler(ledger Ledger, queries Queries) *TransactionHandler {
	return &TransactionHandler{
		ledger:  ledger,
		queries: queries,
	}
}

// SingleAccountRequest is the body of deposit and withdraw.
type SingleAccountRequest struct {
	SourceAccountID int64           `json:"source_account_id" binding:"required,gt=0"`
	Amount          decimal.Decimal `json:"amount"`
}

type TransferRequest struct {
	SourceAccountID      int64           `json:"source_account_id" binding:"required,gt=0"`
	DestinationAccountID int64           `json:"destination_account_id" binding:"required,gt=0"`
	Amount               decimal.Decimal `json:"amount"`
}

// Deposit handles POST /v1/transactions/deposit
func (h *TransactionHandler) Deposit(c *gin.Context) {
	h.single(c, h.ledger.Deposit)
}

// Withdraw handles POST /v1/transactions/withdraw
func (h *TransactionHandler) Withdraw(c *gin.Context) {
	h.single(c, h.ledger.Withdraw)
}

type singleOp func(ctx context.Context, accountID int64, amount decimal.Decimal, caller domain.Identity) (domain.Account, error)

func (h *TransactionHandler) single(c *gin.Context, apply singleOp) {
	caller, ok := middleware.GetIdentity(c)
	if !ok {
		unauthenticated(c)
		return
	}

	var req SingleAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if err := validateAmount(req.Amount); err != nil {
		badRequest(c, err.Error())
		return
	}

	acc, err := apply(c.Request.Context(), req.SourceAccountID, req.Amount, caller)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toAccountResponse(acc))
}

// Transfer handles POST /v1/transactions/transfer
func (h *TransactionHandler) Transfer(c *gin.Context) {
	caller, ok := middleware.GetIdentity(c)
	if !ok {
		unauthenticated(c)
		return
	}

	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if err := validateAmount(req.Amount); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.SourceAccountID == req.DestinationAccountID {
		badRequest(c, "source_account_id and destination_account_id must differ")
		return
	}

	txn, err := h.ledger.Transfer(c.Request.Context(), req.SourceAccountID, req.DestinationAccountID, req.Amount, caller)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toTransactionResponse(txn))
}

// Get handles GET /v1/transactions/:id
func (h *TransactionHandler) Get(c *gin.Context) {
	caller, ok := middleware.GetIdentity(c)
	if !ok {
		unauthenticated(c)
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	txn, err := h.queries.Transaction(c.Request.Context(), id, caller)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toTransactionResponse(txn))
}

type ListTransactionsResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
	Page         int                   `json:"page"`
	PageSize     int                   `json:"page_size"`
}

// List handles GET /v1/transactions
func (h *TransactionHandler) List(c *gin.Context) {
	caller, ok := middleware.GetIdentity(c)
	if !ok {
		unauthenticated(c)
		return
	}
	page := pageFromQuery(c)

	txns, err := h.queries.Transactions(c.Request.Context(), caller, page)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]TransactionResponse, 0, len(txns))
	for _, txn := range txns {
		out = append(out, toTransactionResponse(txn))
	}
	c.JSON(http.StatusOK, ListTransactionsResponse{
		Transactions: out,
		Page:         page.Number,
		PageSize:     page.Limit(),
	})
}
