package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chungtau/ledger-bank/internal/domain"
	"github.com/chungtau/ledger-bank/internal/store"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seeded(t *testing.T) (*Store, []domain.Account) {
	t.Helper()
	s := New()
	accs, err := s.Seed(t.Context(), DefaultSeed)
	require.NoError(t, err)
	return s, accs
}

func TestCreateAccount_DuplicateOwnerType(t *testing.T) {
	t.Parallel()
	s := New()

	_, err := s.CreateAccount(t.Context(), 5, dec("0"), domain.AccountSavings)
	require.NoError(t, err)

	_, err = s.CreateAccount(t.Context(), 5, dec("10"), domain.AccountSavings)
	assert.True(t, errors.Is(err, domain.ErrDuplicateAccount))

	_, err = s.CreateAccount(t.Context(), 5, dec("10"), domain.AccountChecking)
	assert.NoError(t, err)
}

func TestCreateAccount_NegativeBalance(t *testing.T) {
	t.Parallel()
	s := New()

	_, err := s.CreateAccount(t.Context(), 5, dec("-1"), domain.AccountSavings)
	assert.True(t, errors.Is(err, domain.ErrInvalidRequest))
}

func TestConditionalAdjustBalance(t *testing.T) {
	t.Parallel()
	s, accs := seeded(t)
	id := accs[1].ID // 500.00

	acc, err := s.ConditionalAdjustBalance(t.Context(), id, dec("-200"), decimal.Zero)
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(dec("300")))

	_, err = s.ConditionalAdjustBalance(t.Context(), id, dec("-300.01"), decimal.Zero)
	assert.ErrorIs(t, err, store.ErrPreconditionFailed)

	got, err := s.GetAccount(t.Context(), id)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(dec("300")), "failed adjust must not change balance")

	_, err = s.ConditionalAdjustBalance(t.Context(), 999, dec("1"), decimal.Zero)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestConditionalAdjustBalance_ConcurrentWithdrawals(t *testing.T) {
	t.Parallel()
	s := New()
	acc, err := s.CreateAccount(t.Context(), 1, dec("100"), domain.AccountSavings)
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ConditionalAdjustBalance(context.Background(), acc.ID, dec("-10"), decimal.Zero)
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	got, err := s.GetAccount(t.Context(), acc.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, success)
	assert.True(t, got.Balance.IsZero())
}

func TestAppendAndFinalizeTransaction(t *testing.T) {
	t.Parallel()
	s, accs := seeded(t)

	txn, err := s.AppendTransaction(t.Context(), domain.Transaction{
		SourceAccountID: accs[0].ID,
		Type:            domain.TransactionDeposit,
		Amount:          dec("5"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, txn.Status)
	assert.NotZero(t, txn.ID)

	done, err := s.FinalizeTransaction(t.Context(), txn.ID, domain.StatusSuccess)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, done.Status)

	_, err = s.FinalizeTransaction(t.Context(), txn.ID, domain.StatusFailed)
	assert.ErrorIs(t, err, store.ErrAlreadyFinalized)
}

func TestAppendTransaction_Validation(t *testing.T) {
	t.Parallel()
	s, accs := seeded(t)
	missing := int64(404)

	tests := []struct {
		name string
		txn  domain.Transaction
		want error
	}{
		{"zero amount", domain.Transaction{SourceAccountID: accs[0].ID, Type: domain.TransactionDeposit, Amount: decimal.Zero}, domain.ErrInvalidRequest},
		{"transfer without destination", domain.Transaction{SourceAccountID: accs[0].ID, Type: domain.TransactionTransfer, Amount: dec("1")}, domain.ErrInvalidRequest},
		{"unknown source", domain.Transaction{SourceAccountID: 999, Type: domain.TransactionWithdraw, Amount: dec("1")}, domain.ErrNotFound},
		{"unknown destination", domain.Transaction{SourceAccountID: accs[0].ID, DestinationAccountID: &missing, Type: domain.TransactionTransfer, Amount: dec("1")}, domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.AppendTransaction(t.Context(), tt.txn)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestListTransactionsByOwner(t *testing.T) {
	t.Parallel()
	s, accs := seeded(t)
	dst := accs[2].ID

	_, err := s.AppendTransaction(t.Context(), domain.Transaction{SourceAccountID: accs[0].ID, Type: domain.TransactionDeposit, Amount: dec("1")})
	require.NoError(t, err)
	transfer, err := s.AppendTransaction(t.Context(), domain.Transaction{SourceAccountID: accs[1].ID, DestinationAccountID: &dst, Type: domain.TransactionTransfer, Amount: dec("1")})
	require.NoError(t, err)
	latest, err := s.AppendTransaction(t.Context(), domain.Transaction{SourceAccountID: accs[2].ID, Type: domain.TransactionWithdraw, Amount: dec("1")})
	require.NoError(t, err)

	// owner 3 appears as destination of the transfer and source of the withdrawal
	got, err := s.ListTransactionsByOwner(t.Context(), 3, domain.NewPage(0, 10))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, latest.ID, got[0].ID)
	assert.Equal(t, transfer.ID, got[1].ID)

	all, err := s.ListTransactions(t.Context(), domain.NewPage(1, 2))
	require.NoError(t, err)
	assert.Len(t, all, 1)

	none, err := s.ListTransactionsByOwner(t.Context(), 42, domain.NewPage(0, 10))
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestDeleteAccount_RefusedWhileReferenced(t *testing.T) {
	t.Parallel()
	s, accs := seeded(t)

	_, err := s.AppendTransaction(t.Context(), domain.Transaction{SourceAccountID: accs[0].ID, Type: domain.TransactionDeposit, Amount: dec("1")})
	require.NoError(t, err)

	_, err = s.DeleteAccount(t.Context(), accs[0].ID)
	assert.ErrorIs(t, err, store.ErrAccountInUse)

	deleted, err := s.DeleteAccount(t.Context(), accs[1].ID)
	require.NoError(t, err)
	assert.Equal(t, accs[1].ID, deleted.ID)

	_, err = s.GetAccount(t.Context(), accs[1].ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestUpdateAccountType(t *testing.T) {
	t.Parallel()
	s := New()
	savings, err := s.CreateAccount(t.Context(), 7, dec("0"), domain.AccountSavings)
	require.NoError(t, err)
	_, err = s.CreateAccount(t.Context(), 7, dec("0"), domain.AccountChecking)
	require.NoError(t, err)

	_, err = s.UpdateAccountType(t.Context(), savings.ID, domain.AccountChecking)
	assert.True(t, errors.Is(err, domain.ErrDuplicateAccount))

	same, err := s.UpdateAccountType(t.Context(), savings.ID, domain.AccountSavings)
	require.NoError(t, err)
	assert.Equal(t, domain.AccountSavings, same.Type)
}

func TestRunInTx_CommitsAtomically(t *testing.T) {
	t.Parallel()
	s, accs := seeded(t)
	src, dst := accs[2], accs[1] // 1500.00 -> 500.00

	txn, err := s.AppendTransaction(t.Context(), domain.Transaction{SourceAccountID: src.ID, DestinationAccountID: &dst.ID, Type: domain.TransactionTransfer, Amount: dec("100")})
	require.NoError(t, err)

	err = s.RunInTx(t.Context(), func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, tx.LockAccounts(ctx, src.ID, dst.ID))
		if _, err := tx.ConditionalAdjustBalance(ctx, src.ID, dec("-100"), decimal.Zero); err != nil {
			return err
		}

		// staged writes are invisible outside the scope
		outside, err := s.GetAccount(ctx, src.ID)
		require.NoError(t, err)
		assert.True(t, outside.Balance.Equal(dec("1500")))

		if _, err := tx.ConditionalAdjustBalance(ctx, dst.ID, dec("100"), decimal.Zero); err != nil {
			return err
		}
		_, err = tx.FinalizeTransaction(ctx, txn.ID, domain.StatusSuccess)
		return err
	})
	require.NoError(t, err)

	gotSrc, _ := s.GetAccount(t.Context(), src.ID)
	gotDst, _ := s.GetAccount(t.Context(), dst.ID)
	gotTxn, _ := s.GetTransaction(t.Context(), txn.ID)
	assert.True(t, gotSrc.Balance.Equal(dec("1400")))
	assert.True(t, gotDst.Balance.Equal(dec("600")))
	assert.Equal(t, domain.StatusSuccess, gotTxn.Status)
}

func TestRunInTx_RollsBackOnError(t *testing.T) {
	t.Parallel()
	s, accs := seeded(t)
	boom := errors.New("boom")

	err := s.RunInTx(t.Context(), func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.ConditionalAdjustBalance(ctx, accs[0].ID, dec("-1"), decimal.Zero); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, _ := s.GetAccount(t.Context(), accs[0].ID)
	assert.True(t, got.Balance.Equal(dec("10000")))

	// locks were released: a plain adjust does not block
	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()
	_, err = s.ConditionalAdjustBalance(ctx, accs[0].ID, dec("1"), decimal.Zero)
	assert.NoError(t, err)
}

func TestRunInTx_RollsBackOnPanic(t *testing.T) {
	t.Parallel()
	s, accs := seeded(t)

	assert.Panics(t, func() {
		_ = s.RunInTx(t.Context(), func(ctx context.Context, tx store.Tx) error {
			_, _ = tx.ConditionalAdjustBalance(ctx, accs[0].ID, dec("-1"), decimal.Zero)
			panic("mid-transfer")
		})
	})

	got, _ := s.GetAccount(t.Context(), accs[0].ID)
	assert.True(t, got.Balance.Equal(dec("10000")))

	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()
	_, err := s.ConditionalAdjustBalance(ctx, accs[0].ID, dec("1"), decimal.Zero)
	assert.NoError(t, err)
}

func TestRunInTx_RejectsDescendingLocks(t *testing.T) {
	t.Parallel()
	s, accs := seeded(t)

	err := s.RunInTx(t.Context(), func(ctx context.Context, tx store.Tx) error {
		if err := tx.LockAccounts(ctx, accs[2].ID); err != nil {
			return err
		}
		_, err := tx.ConditionalAdjustBalance(ctx, accs[0].ID, dec("1"), decimal.Zero)
		return err
	})
	assert.ErrorIs(t, err, store.ErrLockOrder)
}

func TestRunInTx_ConflictingFinalizeAbortsCommit(t *testing.T) {
	t.Parallel()
	s, accs := seeded(t)

	txn, err := s.AppendTransaction(t.Context(), domain.Transaction{SourceAccountID: accs[0].ID, Type: domain.TransactionDeposit, Amount: dec("1")})
	require.NoError(t, err)

	err = s.RunInTx(t.Context(), func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.ConditionalAdjustBalance(ctx, accs[0].ID, dec("1"), decimal.Zero); err != nil {
			return err
		}
		if _, err := tx.FinalizeTransaction(ctx, txn.ID, domain.StatusSuccess); err != nil {
			return err
		}
		// someone else finalizes first
		_, err := s.FinalizeTransaction(ctx, txn.ID, domain.StatusFailed)
		return err
	})
	assert.ErrorIs(t, err, store.ErrAlreadyFinalized)

	got, _ := s.GetAccount(t.Context(), accs[0].ID)
	assert.True(t, got.Balance.Equal(dec("10000")))
}

func TestRunInTx_CancelledContext(t *testing.T) {
	t.Parallel()
	s, _ := seeded(t)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	called := false
	err := s.RunInTx(ctx, func(context.Context, store.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
