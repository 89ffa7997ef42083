// Package account manages the lifecycle of accounts: opening, reading,
// changing type and closing. Balances are only ever changed by the ledger.
package account

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chungtau/ledger-bank/internal/authz"
	"github.com/chungtau/ledger-bank/internal/domain"
	"github.com/chungtau/ledger-bank/internal/store"
)

type Service struct {
	store store.AccountStore
	log   *zap.Logger
}

func NewService(st store.AccountStore, log *zap.Logger) *Service {
	return &Service{store: st, log: log}
}

// Open creates an account owned by the caller.
func (s *Service) Open(ctx context.Context, caller domain.Identity, accountType domain.AccountType, initialBalance decimal.Decimal) (domain.Account, error) {
	const op = "account.Open"
	if initialBalance.IsNegative() {
		return domain.Account{}, domain.Errorf(domain.KindInvalidRequest, op, "initial balance must not be negative")
	}
	if _, ok := domain.ParseAccountType(string(accountType)); !ok {
		return domain.Account{}, domain.Errorf(domain.KindInvalidRequest, op, "unknown account type %q", accountType)
	}

	acc, err := s.store.CreateAccount(ctx, caller.UserID, initialBalance, accountType)
	if err != nil {
		return domain.Account{}, classify(op, err, "create %s account for owner %d", accountType, caller.UserID)
	}

	s.log.Info("account opened",
		zap.Int64("account_id", acc.ID),
		zap.Int64("owner_id", acc.OwnerID),
		zap.String("type", string(acc.Type)))
	return acc, nil
}

func (s *Service) Get(ctx context.Context, id int64, caller domain.Identity) (domain.Account, error) {
	return s.authorized(ctx, "account.Get", id, caller, authz.OpRead)
}

// List returns the caller's accounts, or every account for an ADMIN.
func (s *Service) List(ctx context.Context, caller domain.Identity, page domain.Page) ([]domain.Account, error) {
	const op = "account.List"

	var (
		accs []domain.Account
		err  error
	)
	if caller.IsAdmin() {
		accs, err = s.store.ListAccounts(ctx, page)
	} else {
		accs, err = s.store.ListAccountsByOwner(ctx, caller.UserID, page)
	}
	if err != nil {
		return nil, classify(op, err, "list accounts for %d", caller.UserID)
	}
	return accs, nil
}

func (s *Service) UpdateType(ctx context.Context, id int64, caller domain.Identity, accountType domain.AccountType) (domain.Account, error) {
	const op = "account.UpdateType"
	if _, ok := domain.ParseAccountType(string(accountType)); !ok {
		return domain.Account{}, domain.Errorf(domain.KindInvalidRequest, op, "unknown account type %q", accountType)
	}
	if _, err := s.authorized(ctx, op, id, caller, authz.OpUpdate); err != nil {
		return domain.Account{}, err
	}

	acc, err := s.store.UpdateAccountType(ctx, id, accountType)
	if err != nil {
		return domain.Account{}, classify(op, err, "update account %d", id)
	}
	return acc, nil
}

// Delete closes an account. Accounts referenced by any transaction record
// are kept.
func (s *Service) Delete(ctx context.Context, id int64, caller domain.Identity) (domain.Account, error) {
	const op = "account.Delete"
	if _, err := s.authorized(ctx, op, id, caller, authz.OpDelete); err != nil {
		return domain.Account{}, err
	}

	acc, err := s.store.DeleteAccount(ctx, id)
	if errors.Is(err, store.ErrAccountInUse) {
		return domain.Account{}, domain.Errorf(domain.KindInvalidRequest, op, "account %d has transactions and cannot be deleted", id)
	}
	if err != nil {
		return domain.Account{}, classify(op, err, "delete account %d", id)
	}

	s.log.Info("account deleted", zap.Int64("account_id", id), zap.Int64("by", caller.UserID))
	return acc, nil
}

func (s *Service) authorized(ctx context.Context, op string, id int64, caller domain.Identity, action authz.Operation) (domain.Account, error) {
	acc, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return domain.Account{}, classify(op, err, "load account %d", id)
	}
	if err := authz.Authorize(caller, acc.OwnerID, action, op); err != nil {
		return domain.Account{}, err
	}
	return acc, nil
}

func classify(op string, err error, format string, args ...any) error {
	if domain.KindOf(err) != "" {
		return err
	}
	return domain.StoreFailure(op, err, format, args...)
}
