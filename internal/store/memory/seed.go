package memory

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/chungtau/ledger-bank/internal/domain"
)

// SeedAccount is one fixture row loaded by Seed.
type SeedAccount struct {
	OwnerID int64
	Type    domain.AccountType
	Balance decimal.Decimal
}

// DefaultSeed mirrors the fixture data used in local development: user 1 is
// the administrator, users 2 and 3 are customers.
var DefaultSeed = []SeedAccount{
	{OwnerID: 1, Type: domain.AccountSavings, Balance: decimal.RequireFromString("10000.00")},
	{OwnerID: 2, Type: domain.AccountChecking, Balance: decimal.RequireFromString("500.00")},
	{OwnerID: 3, Type: domain.AccountSavings, Balance: decimal.RequireFromString("1500.00")},
}

// Seed creates the given accounts in order.
func (s *Store) Seed(ctx context.Context, rows []SeedAccount) ([]domain.Account, error) {
	out := make([]domain.Account, 0, len(rows))
	for _, r := range rows {
		acc, err := s.CreateAccount(ctx, r.OwnerID, r.Balance, r.Type)
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, nil
}
