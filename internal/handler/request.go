package handler

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/chungtau/ledger-bank/internal/domain"
)

// MaxAmount is the largest amount a single request may move.
var MaxAmount = decimal.NewFromInt(1_000_000)

// validateAmount enforces the request-level shape of a money amount:
// positive, at most MaxAmount, at most two decimal places.
func validateAmount(amount decimal.Decimal) error {
	switch {
	case !amount.IsPositive():
		return fmt.Errorf("amount must be greater than zero")
	case amount.GreaterThan(MaxAmount):
		return fmt.Errorf("amount must not exceed %s", MaxAmount)
	case !amount.Equal(amount.Truncate(2)):
		return fmt.Errorf("amount must have at most two decimal places")
	}
	return nil
}

// pathID parses a positive integer path parameter.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "Invalid "+name+". Must be a positive integer.")
		return 0, false
	}
	return id, true
}

// pageFromQuery reads page and page_size, clamped by domain.NewPage.
func pageFromQuery(c *gin.Context) domain.Page {
	page, size := 0, domain.DefaultPageSize

	if pageStr := c.Query("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p >= 0 {
			page = p
		}
	}
	if sizeStr := c.Query("page_size"); sizeStr != "" {
		if ps, err := strconv.Atoi(sizeStr); err == nil && ps > 0 {
			size = ps
		}
	}
	return domain.NewPage(page, size)
}

type AccountResponse struct {
	ID          int64  `json:"id"`
	OwnerID     int64  `json:"owner_id"`
	Balance     string `json:"balance"`
	AccountType string `json:"account_type"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func toAccountResponse(acc domain.Account) AccountResponse {
	return AccountResponse{
		ID:          acc.ID,
		OwnerID:     acc.OwnerID,
		Balance:     acc.Balance.StringFixed(2),
		AccountType: string(acc.Type),
		CreatedAt:   acc.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   acc.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

type TransactionResponse struct {
	ID                   int64  `json:"id"`
	SourceAccountID      int64  `json:"source_account_id"`
	DestinationAccountID *int64 `json:"destination_account_id,omitempty"`
	Type                 string `json:"type"`
	Amount               string `json:"amount"`
	Status               string `json:"status"`
	CreatedAt            string `json:"created_at"`
	UpdatedAt            string `json:"updated_at"`
}

func toTransactionResponse(txn domain.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:                   txn.ID,
		SourceAccountID:      txn.SourceAccountID,
		DestinationAccountID: txn.DestinationAccountID,
		Type:                 string(txn.Type),
		Amount:               txn.Amount.StringFixed(2),
		Status:               string(txn.Status),
		CreatedAt:            txn.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:            txn.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
