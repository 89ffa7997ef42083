// Package ledger applies deposits, withdrawals and transfers against the
// account store and records every attempt in the transaction log.
//
// Each operation appends a PENDING record first and then, inside one store
// transaction scope, mutates balances and finalizes the record to SUCCESS.
// When the scope fails the record is finalized to FAILED and no balance
// change survives.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chungtau/ledger-bank/internal/authz"
	"github.com/chungtau/ledger-bank/internal/domain"
	"github.com/chungtau/ledger-bank/internal/store"
)

// EventPublisher receives every finalized transaction. Publishing happens
// after commit and never changes the outcome of the operation.
type EventPublisher interface {
	PublishTransaction(ctx context.Context, txn domain.Transaction) error
}

const (
	defaultStoreTimeout   = 5 * time.Second
	defaultPublishTimeout = 3 * time.Second
)

type Engine struct {
	store          store.Store
	log            *zap.Logger
	publisher      EventPublisher
	storeTimeout   time.Duration
	publishTimeout time.Duration
}

type Option func(*Engine)

func WithPublisher(p EventPublisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithStoreTimeout bounds the mutation phase of every operation. Zero
// disables the bound.
func WithStoreTimeout(d time.Duration) Option {
	return func(e *Engine) { e.storeTimeout = d }
}

// WithPublishTimeout bounds each event publish independently of the store
// work that preceded it. Zero disables the bound.
func WithPublishTimeout(d time.Duration) Option {
	return func(e *Engine) { e.publishTimeout = d }
}

func NewEngine(st store.Store, log *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:          st,
		log:            log,
		storeTimeout:   defaultStoreTimeout,
		publishTimeout: defaultPublishTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Deposit(ctx context.Context, accountID int64, amount decimal.Decimal, caller domain.Identity) (domain.Account, error) {
	const op = "ledger.Deposit"
	if !amount.IsPositive() {
		return domain.Account{}, domain.Errorf(domain.KindInvalidRequest, op, "amount must be positive")
	}

	acc, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return domain.Account{}, classify(op, err, "load account %d", accountID)
	}
	if err := authz.Authorize(caller, acc.OwnerID, authz.OpDeposit, op); err != nil {
		return domain.Account{}, err
	}

	return e.applySingle(ctx, op, domain.TransactionDeposit, acc.ID, amount, amount)
}

func (e *Engine) Withdraw(ctx context.Context, accountID int64, amount decimal.Decimal, caller domain.Identity) (domain.Account, error) {
	const op = "ledger.Withdraw"
	if !amount.IsPositive() {
		return domain.Account{}, domain.Errorf(domain.KindInvalidRequest, op, "amount must be positive")
	}

	acc, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return domain.Account{}, classify(op, err, "load account %d", accountID)
	}
	if err := authz.Authorize(caller, acc.OwnerID, authz.OpWithdraw, op); err != nil {
		return domain.Account{}, err
	}

	// No early balance check: the conditional update is the only one that counts.
	return e.applySingle(ctx, op, domain.TransactionWithdraw, acc.ID, amount, amount.Neg())
}

// applySingle runs the mutation phase shared by deposit and withdraw.
func (e *Engine) applySingle(ctx context.Context, op string, typ domain.TransactionType, accountID int64, amount, delta decimal.Decimal) (domain.Account, error) {
	ctx, cancel := e.detach(ctx)
	defer cancel()

	txn, err := e.store.AppendTransaction(ctx, domain.Transaction{
		SourceAccountID: accountID,
		Type:            typ,
		Amount:          amount,
		Status:          domain.StatusPending,
	})
	if err != nil {
		return domain.Account{}, classify(op, err, "record %s of %s on account %d", typ, amount, accountID)
	}

	var (
		updated domain.Account
		done    domain.Transaction
	)
	err = e.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		acc, err := tx.ConditionalAdjustBalance(ctx, accountID, delta, decimal.Zero)
		if err != nil {
			return err
		}
		if done, err = tx.FinalizeTransaction(ctx, txn.ID, domain.StatusSuccess); err != nil {
			return err
		}
		updated = acc
		return nil
	})
	if err != nil {
		return domain.Account{}, e.fail(ctx, op, txn, err)
	}

	e.log.Info("transaction applied",
		zap.String("op", op),
		zap.Int64("transaction_id", done.ID),
		zap.Int64("account_id", accountID),
		zap.String("amount", amount.String()))
	e.publish(ctx, done)
	return updated, nil
}

// Transfer moves amount from source to destination. The debit is
// conditioned on the source balance at debit time and both rows are locked
// in ascending id order so opposite-direction transfers cannot deadlock.
func (e *Engine) Transfer(ctx context.Context, sourceID, destinationID int64, amount decimal.Decimal, caller domain.Identity) (domain.Transaction, error) {
	const op = "ledger.Transfer"
	if !amount.IsPositive() {
		return domain.Transaction{}, domain.Errorf(domain.KindInvalidRequest, op, "amount must be positive")
	}
	if sourceID == destinationID {
		return domain.Transaction{}, domain.Errorf(domain.KindInvalidRequest, op, "source and destination must differ")
	}

	src, err := e.store.GetAccount(ctx, sourceID)
	if err != nil {
		return domain.Transaction{}, classify(op, err, "load source account %d", sourceID)
	}
	if err := authz.Authorize(caller, src.OwnerID, authz.OpTransfer, op); err != nil {
		return domain.Transaction{}, err
	}
	dst, err := e.store.GetAccount(ctx, destinationID)
	if err != nil {
		return domain.Transaction{}, classify(op, err, "load destination account %d", destinationID)
	}

	ctx, cancel := e.detach(ctx)
	defer cancel()

	dstID := dst.ID
	txn, err := e.store.AppendTransaction(ctx, domain.Transaction{
		SourceAccountID:      src.ID,
		DestinationAccountID: &dstID,
		Type:                 domain.TransactionTransfer,
		Amount:               amount,
		Status:               domain.StatusPending,
	})
	if err != nil {
		return domain.Transaction{}, classify(op, err, "record transfer of %s from %d to %d", amount, src.ID, dst.ID)
	}

	var done domain.Transaction
	err = e.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.LockAccounts(ctx, src.ID, dst.ID); err != nil {
			return err
		}
		if _, err := tx.ConditionalAdjustBalance(ctx, src.ID, amount.Neg(), decimal.Zero); err != nil {
			return err
		}
		if _, err := tx.ConditionalAdjustBalance(ctx, dst.ID, amount, decimal.Zero); err != nil {
			return err
		}
		var err error
		done, err = tx.FinalizeTransaction(ctx, txn.ID, domain.StatusSuccess)
		return err
	})
	if err != nil {
		return domain.Transaction{}, e.fail(ctx, op, txn, err)
	}

	e.log.Info("transfer applied",
		zap.Int64("transaction_id", done.ID),
		zap.Int64("source_account_id", src.ID),
		zap.Int64("destination_account_id", dst.ID),
		zap.String("amount", amount.String()))
	e.publish(ctx, done)
	return done, nil
}

// GetTransaction returns the record when the caller may read at least one
// of the accounts it touches.
func (e *Engine) GetTransaction(ctx context.Context, id int64, caller domain.Identity) (domain.Transaction, error) {
	const op = "ledger.GetTransaction"

	txn, err := e.store.GetTransaction(ctx, id)
	if err != nil {
		return domain.Transaction{}, classify(op, err, "load transaction %d", id)
	}

	owners := make([]int64, 0, 2)
	for _, accountID := range txn.AccountIDs() {
		acc, err := e.store.GetAccount(ctx, accountID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return domain.Transaction{}, classify(op, err, "load account %d of transaction %d", accountID, id)
		}
		owners = append(owners, acc.OwnerID)
	}

	if authz.DecideAny(caller, owners, authz.OpRead) == authz.Deny {
		return domain.Transaction{}, domain.Errorf(domain.KindForbidden, op, "transaction %d is not visible to caller", id)
	}
	return txn, nil
}

// ListTransactions returns every record whose source or destination account
// belongs to ownerID, newest first. Callers decide which owner to ask for.
func (e *Engine) ListTransactions(ctx context.Context, ownerID int64, page domain.Page) ([]domain.Transaction, error) {
	txns, err := e.store.ListTransactionsByOwner(ctx, ownerID, page)
	if err != nil {
		return nil, classify("ledger.ListTransactions", err, "list transactions of owner %d", ownerID)
	}
	return txns, nil
}

func (e *Engine) ListAllTransactions(ctx context.Context, page domain.Page) ([]domain.Transaction, error) {
	txns, err := e.store.ListTransactions(ctx, page)
	if err != nil {
		return nil, classify("ledger.ListAllTransactions", err, "list transactions")
	}
	return txns, nil
}

// detach keeps the mutation phase running when the caller goes away. Once a
// PENDING record exists it must be finalized.
func (e *Engine) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return bounded(ctx, e.storeTimeout)
}

// bounded drops ctx's cancellation and deadline and applies d instead.
func bounded(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// fail finalizes txn as FAILED and returns the classified cause. The scope
// may have failed because ctx expired, so finalizing gets a fresh bound.
func (e *Engine) fail(ctx context.Context, op string, txn domain.Transaction, cause error) error {
	var result error
	switch {
	case errors.Is(cause, store.ErrPreconditionFailed):
		result = domain.Errorf(domain.KindInsufficientFunds, op,
			"account %d cannot cover %s", txn.SourceAccountID, txn.Amount)
	default:
		result = classify(op, cause, "transaction %d on account %d amount %s", txn.ID, txn.SourceAccountID, txn.Amount)
	}

	fctx, cancel := e.detach(ctx)
	defer cancel()
	failed, err := e.store.FinalizeTransaction(fctx, txn.ID, domain.StatusFailed)
	if err != nil {
		e.log.Error("could not mark transaction failed",
			zap.String("op", op),
			zap.Int64("transaction_id", txn.ID),
			zap.NamedError("cause", cause),
			zap.Error(err))
		return errors.Join(result, domain.StoreFailure(op, err, "mark transaction %d failed", txn.ID))
	}

	e.log.Info("transaction failed",
		zap.String("op", op),
		zap.Int64("transaction_id", txn.ID),
		zap.String("kind", string(domain.KindOf(result))))
	e.publish(ctx, failed)
	return result
}

func (e *Engine) publish(ctx context.Context, txn domain.Transaction) {
	if e.publisher == nil {
		return
	}
	ctx, cancel := bounded(ctx, e.publishTimeout)
	defer cancel()
	if err := e.publisher.PublishTransaction(ctx, txn); err != nil {
		e.log.Warn("publish transaction event",
			zap.Int64("transaction_id", txn.ID),
			zap.Error(err))
	}
}

// classify passes ledger errors through and wraps anything else as a store
// failure carrying the operation context.
func classify(op string, err error, format string, args ...any) error {
	if domain.KindOf(err) != "" {
		return err
	}
	return domain.StoreFailure(op, err, format, args...)
}
