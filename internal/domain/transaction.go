package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the kind of balance-affecting operation a transaction records
type TransactionType string

const (
	TransactionDeposit  TransactionType = "DEPOSIT"
	TransactionWithdraw TransactionType = "WITHDRAW"
	TransactionTransfer TransactionType = "TRANSFER"
)

// TransactionStatus is the lifecycle state of a transaction record.
//
// Transitions:
//
//	PENDING → SUCCESS
//	PENDING → FAILED
//
// SUCCESS and FAILED are terminal.
type TransactionStatus string

const (
	StatusPending TransactionStatus = "PENDING"
	StatusSuccess TransactionStatus = "SUCCESS"
	StatusFailed  TransactionStatus = "FAILED"
)

// IsFinal reports whether the status is terminal.
func (s TransactionStatus) IsFinal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// CanTransition reports whether a record in status s may move to next.
func (s TransactionStatus) CanTransition(next TransactionStatus) bool {
	return s == StatusPending && next.IsFinal()
}

// Transaction is an append-only audit record of one ledger operation.
// DestinationAccountID is set only for transfers.
type Transaction struct {
	ID                   int64
	SourceAccountID      int64
	DestinationAccountID *int64
	Type                 TransactionType
	Amount               decimal.Decimal
	Status               TransactionStatus
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// AccountIDs returns every account the transaction touches.
func (t Transaction) AccountIDs() []int64 {
	if t.DestinationAccountID == nil {
		return []int64{t.SourceAccountID}
	}
	return []int64{t.SourceAccountID, *t.DestinationAccountID}
}
