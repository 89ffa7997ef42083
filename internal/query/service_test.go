package query

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chungtau/ledger-bank/internal/domain"
	"github.com/chungtau/ledger-bank/internal/ledger"
	"github.com/chungtau/ledger-bank/internal/store/memory"
)

func TestService(t *testing.T) {
	t.Parallel()

	st := memory.New()
	accs, err := st.Seed(t.Context(), memory.DefaultSeed)
	require.NoError(t, err)
	eng := ledger.NewEngine(st, zap.NewNop())
	svc := NewService(eng, st)

	adminID := domain.Identity{UserID: 1, Role: domain.RoleAdmin}
	two := domain.Identity{UserID: 2, Role: domain.RoleCustomer}
	three := domain.Identity{UserID: 3, Role: domain.RoleCustomer}

	_, err = eng.Deposit(t.Context(), accs[1].ID, decimal.NewFromInt(5), two)
	require.NoError(t, err)
	_, err = eng.Deposit(t.Context(), accs[2].ID, decimal.NewFromInt(5), three)
	require.NoError(t, err)

	page := domain.NewPage(0, 10)

	t.Run("customer sees own transactions", func(t *testing.T) {
		txns, err := svc.Transactions(t.Context(), two, page)
		require.NoError(t, err)
		require.Len(t, txns, 1)
		assert.Equal(t, accs[1].ID, txns[0].SourceAccountID)
	})

	t.Run("admin sees all transactions", func(t *testing.T) {
		txns, err := svc.Transactions(t.Context(), adminID, page)
		require.NoError(t, err)
		assert.Len(t, txns, 2)
	})

	t.Run("balance of own account", func(t *testing.T) {
		acc, err := svc.Balance(t.Context(), accs[1].ID, two)
		require.NoError(t, err)
		assert.True(t, acc.Balance.Equal(decimal.RequireFromString("505")))
	})

	t.Run("balance of another customer", func(t *testing.T) {
		_, err := svc.Balance(t.Context(), accs[1].ID, three)
		assert.True(t, errors.Is(err, domain.ErrForbidden))
	})

	t.Run("admin reads any balance", func(t *testing.T) {
		_, err := svc.Balance(t.Context(), accs[2].ID, adminID)
		assert.NoError(t, err)
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := svc.Balance(t.Context(), 404, adminID)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}
