package events

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/chungtau/ledger-bank/internal/domain"
)

// TransactionEvent is published once a transaction reaches a final status.
type TransactionEvent struct {
	EventID              string `json:"eventId"`
	TransactionID        string `json:"transactionId"`
	Type                 string `json:"type"`
	SourceAccountID      string `json:"sourceAccountId"`
	DestinationAccountID string `json:"destinationAccountId,omitempty"`
	Amount               string `json:"amount"`
	Status               string `json:"status"`
	BookedAt             string `json:"bookedAt"`
}

// FromTransaction builds the wire event for txn.
func FromTransaction(txn domain.Transaction) TransactionEvent {
	ev := TransactionEvent{
		EventID:         uuid.NewString(),
		TransactionID:   strconv.FormatInt(txn.ID, 10),
		Type:            string(txn.Type),
		SourceAccountID: strconv.FormatInt(txn.SourceAccountID, 10),
		Amount:          txn.Amount.StringFixed(2),
		Status:          string(txn.Status),
		BookedAt:        txn.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if txn.DestinationAccountID != nil {
		ev.DestinationAccountID = strconv.FormatInt(*txn.DestinationAccountID, 10)
	}
	return ev
}
