package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chungtau/ledger-bank/internal/domain"
	"github.com/chungtau/ledger-bank/internal/store"
)

// RunInTx runs fn in a READ COMMITTED transaction. Row locks taken with
// LockAccounts serialize writers on the same accounts.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	// Rollback after Commit is a no-op. It also runs when fn panics.
	defer func() {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.log.Warn("rollback failed", zap.Error(rbErr))
		}
	}()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

type pgTx struct {
	tx      pgx.Tx
	highest int64
}

var _ store.Tx = (*pgTx)(nil)

func (t *pgTx) LockAccounts(ctx context.Context, ids ...int64) error {
	for _, id := range store.LockOrder(ids...) {
		if id == t.highest {
			continue
		}
		if id < t.highest {
			return fmt.Errorf("%w: %d requested while holding %d", store.ErrLockOrder, id, t.highest)
		}
		if _, err := getAccount(ctx, t.tx, id, " FOR UPDATE"); err != nil {
			return err
		}
		t.highest = id
	}
	return nil
}

func (t *pgTx) GetAccount(ctx context.Context, id int64) (domain.Account, error) {
	return getAccount(ctx, t.tx, id, "")
}

func (t *pgTx) ConditionalAdjustBalance(ctx context.Context, id int64, delta, requiredMinimum decimal.Decimal) (domain.Account, error) {
	return adjustBalance(ctx, t.tx, id, delta, requiredMinimum)
}

func (t *pgTx) FinalizeTransaction(ctx context.Context, id int64, status domain.TransactionStatus) (domain.Transaction, error) {
	return finalizeTransaction(ctx, t.tx, id, status)
}
