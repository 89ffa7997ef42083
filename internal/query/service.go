// Package query serves read-only views of transactions and balances with
// the caller's visibility applied.
package query

import (
	"context"

	"github.com/chungtau/ledger-bank/internal/authz"
	"github.com/chungtau/ledger-bank/internal/domain"
	"github.com/chungtau/ledger-bank/internal/store"
)

// TransactionSource is the read side of the ledger engine.
type TransactionSource interface {
	GetTransaction(ctx context.Context, id int64, caller domain.Identity) (domain.Transaction, error)
	ListTransactions(ctx context.Context, ownerID int64, page domain.Page) ([]domain.Transaction, error)
	ListAllTransactions(ctx context.Context, page domain.Page) ([]domain.Transaction, error)
}

type Service struct {
	ledger   TransactionSource
	accounts store.AccountReader
}

func NewService(ledger TransactionSource, accounts store.AccountReader) *Service {
	return &Service{ledger: ledger, accounts: accounts}
}

// Transactions lists what the caller may see: everything for an ADMIN, the
// caller's own records otherwise.
func (s *Service) Transactions(ctx context.Context, caller domain.Identity, page domain.Page) ([]domain.Transaction, error) {
	if caller.IsAdmin() {
		return s.ledger.ListAllTransactions(ctx, page)
	}
	return s.ledger.ListTransactions(ctx, caller.UserID, page)
}

func (s *Service) Transaction(ctx context.Context, id int64, caller domain.Identity) (domain.Transaction, error) {
	return s.ledger.GetTransaction(ctx, id, caller)
}

// Balance returns the account when the caller may read it.
func (s *Service) Balance(ctx context.Context, accountID int64, caller domain.Identity) (domain.Account, error) {
	const op = "query.Balance"

	acc, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		if domain.KindOf(err) != "" {
			return domain.Account{}, err
		}
		return domain.Account{}, domain.StoreFailure(op, err, "load account %d", accountID)
	}
	if err := authz.Authorize(caller, acc.OwnerID, authz.OpRead, op); err != nil {
		return domain.Account{}, err
	}
	return acc, nil
}
