// Package store defines the persistence contract the ledger engine consumes.
//
// Every balance mutation goes through ConditionalAdjustBalance, which
// re-checks its precondition against the current persisted value and applies
// the delta in one indivisible step. Multi-account mutations run inside
// RunInTx with accounts locked in ascending id order.
package store

import (
	"context"
	"errors"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/chungtau/ledger-bank/internal/domain"
)

var (
	// ErrPreconditionFailed is returned by ConditionalAdjustBalance when the
	// resulting balance would fall below the required minimum.
	ErrPreconditionFailed = errors.New("store: balance precondition failed")
	// ErrAlreadyFinalized is returned when a transaction record has already
	// left PENDING.
	ErrAlreadyFinalized = errors.New("store: transaction already finalized")
	// ErrAccountInUse is returned when deleting an account that transaction
	// records still reference.
	ErrAccountInUse = errors.New("store: account referenced by transactions")
	// ErrLockOrder is returned when a transaction scope tries to lock an
	// account below one it already holds.
	ErrLockOrder = errors.New("store: accounts must be locked in ascending id order")
)

// AccountReader is the read side of the account table
type AccountReader interface {
	GetAccount(ctx context.Context, id int64) (domain.Account, error)
	FindAccountByOwnerAndType(ctx context.Context, ownerID int64, accountType domain.AccountType) (domain.Account, error)
	ListAccountsByOwner(ctx context.Context, ownerID int64, page domain.Page) ([]domain.Account, error)
	ListAccounts(ctx context.Context, page domain.Page) ([]domain.Account, error)
}

// AccountStore is the durable account table.
type AccountStore interface {
	AccountReader

	// CreateAccount fails with domain.ErrDuplicateAccount when the owner
	// already holds an account of that type.
	CreateAccount(ctx context.Context, ownerID int64, initialBalance decimal.Decimal, accountType domain.AccountType) (domain.Account, error)

	// ConditionalAdjustBalance applies balance += delta iff the result is at
	// least requiredMinimum, atomically with respect to every other writer.
	ConditionalAdjustBalance(ctx context.Context, id int64, delta, requiredMinimum decimal.Decimal) (domain.Account, error)

	UpdateAccountType(ctx context.Context, id int64, accountType domain.AccountType) (domain.Account, error)
	DeleteAccount(ctx context.Context, id int64) (domain.Account, error)
}

// TransactionLog is the append-only record of every ledger operation.
// FinalizeTransaction is the only permitted change to an appended record.
type TransactionLog interface {
	AppendTransaction(ctx context.Context, txn domain.Transaction) (domain.Transaction, error)
	GetTransaction(ctx context.Context, id int64) (domain.Transaction, error)
	ListTransactionsByOwner(ctx context.Context, ownerID int64, page domain.Page) ([]domain.Transaction, error)
	ListTransactions(ctx context.Context, page domain.Page) ([]domain.Transaction, error)
	FinalizeTransaction(ctx context.Context, id int64, status domain.TransactionStatus) (domain.Transaction, error)
}

// Tx is the view of the store inside a transaction scope. Changes made
// through it become visible to other readers only when the scope commits.
type Tx interface {
	// LockAccounts takes exclusive row locks in ascending id order.
	LockAccounts(ctx context.Context, ids ...int64) error
	GetAccount(ctx context.Context, id int64) (domain.Account, error)
	ConditionalAdjustBalance(ctx context.Context, id int64, delta, requiredMinimum decimal.Decimal) (domain.Account, error)
	FinalizeTransaction(ctx context.Context, id int64, status domain.TransactionStatus) (domain.Transaction, error)
}

// Store is the handle injected into the ledger engine at construction.
type Store interface {
	AccountStore
	TransactionLog

	// RunInTx runs fn inside one durable transaction scope. The scope commits
	// when fn returns nil and rolls back on error or panic.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	Ping(ctx context.Context) error
	Close() error
}

// LockOrder returns ids deduplicated and sorted ascending, the order every
// implementation acquires row locks in.
func LockOrder(ids ...int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ValidateTransaction checks the shape of a record before it is appended:
// a positive amount, and a destination account exactly when the type is
// TRANSFER.
func ValidateTransaction(op string, txn domain.Transaction) error {
	if !txn.Amount.IsPositive() {
		return domain.Errorf(domain.KindInvalidRequest, op, "amount must be positive")
	}
	switch txn.Type {
	case domain.TransactionTransfer:
		if txn.DestinationAccountID == nil {
			return domain.Errorf(domain.KindInvalidRequest, op, "transfer requires a destination account")
		}
	case domain.TransactionDeposit, domain.TransactionWithdraw:
		if txn.DestinationAccountID != nil {
			return domain.Errorf(domain.KindInvalidRequest, op, "%s must not carry a destination account", txn.Type)
		}
	default:
		return domain.Errorf(domain.KindInvalidRequest, op, "unknown transaction type %q", txn.Type)
	}
	if txn.Status != "" && txn.Status != domain.StatusPending {
		return domain.Errorf(domain.KindInvalidRequest, op, "new records start PENDING, got %s", txn.Status)
	}
	return nil
}
