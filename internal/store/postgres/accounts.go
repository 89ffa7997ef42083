package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/chungtau/ledger-bank/internal/domain"
	"github.com/chungtau/ledger-bank/internal/store"
)

// Balances travel as text so NUMERIC precision survives the round trip.
const accountColumns = `id, owner_id, balance::text, account_type, created_at, updated_at`

func scanAccount(row pgx.Row) (domain.Account, error) {
	var (
		acc     domain.Account
		balance string
		typ     string
	)
	if err := row.Scan(&acc.ID, &acc.OwnerID, &balance, &typ, &acc.CreatedAt, &acc.UpdatedAt); err != nil {
		return domain.Account{}, err
	}
	b, err := decimal.NewFromString(balance)
	if err != nil {
		return domain.Account{}, fmt.Errorf("decode balance %q: %w", balance, err)
	}
	acc.Balance = b
	acc.Type = domain.AccountType(typ)
	return acc, nil
}

func collectAccounts(rows pgx.Rows) ([]domain.Account, error) {
	defer rows.Close()

	out := make([]domain.Account, 0)
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, rows.Err()
}

func (s *Store) GetAccount(ctx context.Context, id int64) (domain.Account, error) {
	return getAccount(ctx, s.pool, id, "")
}

func getAccount(ctx context.Context, q querier, id int64, suffix string) (domain.Account, error) {
	acc, err := scanAccount(q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`+suffix, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Account{}, domain.Errorf(domain.KindNotFound, "postgres.GetAccount", "account %d not found", id)
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("postgres: get account %d: %w", id, err)
	}
	return acc, nil
}

func (s *Store) FindAccountByOwnerAndType(ctx context.Context, ownerID int64, accountType domain.AccountType) (domain.Account, error) {
	acc, err := scanAccount(s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE owner_id = $1 AND account_type = $2`,
		ownerID, string(accountType)))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Account{}, domain.Errorf(domain.KindNotFound, "postgres.FindAccountByOwnerAndType",
			"no %s account for owner %d", accountType, ownerID)
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("postgres: find account: %w", err)
	}
	return acc, nil
}

func (s *Store) ListAccountsByOwner(ctx context.Context, ownerID int64, page domain.Page) ([]domain.Account, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE owner_id = $1 ORDER BY id LIMIT $2 OFFSET $3`,
		ownerID, page.Limit(), page.Offset())
	if err != nil {
		return nil, fmt.Errorf("postgres: list accounts for owner %d: %w", ownerID, err)
	}
	return collectAccounts(rows)
}

func (s *Store) ListAccounts(ctx context.Context, page domain.Page) ([]domain.Account, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+accountColumns+` FROM accounts ORDER BY id LIMIT $1 OFFSET $2`,
		page.Limit(), page.Offset())
	if err != nil {
		return nil, fmt.Errorf("postgres: list accounts: %w", err)
	}
	return collectAccounts(rows)
}

func (s *Store) CreateAccount(ctx context.Context, ownerID int64, initialBalance decimal.Decimal, accountType domain.AccountType) (domain.Account, error) {
	const op = "postgres.CreateAccount"
	if initialBalance.IsNegative() {
		return domain.Account{}, domain.Errorf(domain.KindInvalidRequest, op, "initial balance must not be negative")
	}

	acc, err := scanAccount(s.pool.QueryRow(ctx,
		`INSERT INTO accounts (owner_id, balance, account_type)
		 VALUES ($1, $2::numeric, $3)
		 RETURNING `+accountColumns,
		ownerID, initialBalance.String(), string(accountType)))
	switch {
	case pgCode(err) == codeUniqueViolation:
		return domain.Account{}, domain.Errorf(domain.KindDuplicateAccount, op,
			"owner %d already holds a %s account", ownerID, accountType)
	case pgCode(err) == codeCheckViolation:
		return domain.Account{}, domain.Errorf(domain.KindInvalidRequest, op, "account violates a table constraint")
	case err != nil:
		return domain.Account{}, fmt.Errorf("postgres: create account: %w", err)
	}
	return acc, nil
}

func (s *Store) ConditionalAdjustBalance(ctx context.Context, id int64, delta, requiredMinimum decimal.Decimal) (domain.Account, error) {
	return adjustBalance(ctx, s.pool, id, delta, requiredMinimum)
}

// adjustBalance folds the precondition into the UPDATE so the check and the
// write cannot be separated by another writer.
func adjustBalance(ctx context.Context, q querier, id int64, delta, requiredMinimum decimal.Decimal) (domain.Account, error) {
	acc, err := scanAccount(q.QueryRow(ctx,
		`UPDATE accounts
		    SET balance = balance + $2::numeric, updated_at = now()
		  WHERE id = $1 AND balance + $2::numeric >= $3::numeric
		 RETURNING `+accountColumns,
		id, delta.String(), requiredMinimum.String()))
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		if pgCode(err) == codeCheckViolation {
			return domain.Account{}, store.ErrPreconditionFailed
		}
		return domain.Account{}, fmt.Errorf("postgres: adjust balance of %d: %w", id, err)
	}

	// Nothing updated: either the row is gone or the precondition failed.
	if _, err := getAccount(ctx, q, id, ""); err != nil {
		return domain.Account{}, err
	}
	return domain.Account{}, store.ErrPreconditionFailed
}

func (s *Store) UpdateAccountType(ctx context.Context, id int64, accountType domain.AccountType) (domain.Account, error) {
	const op = "postgres.UpdateAccountType"

	acc, err := scanAccount(s.pool.QueryRow(ctx,
		`UPDATE accounts SET account_type = $2, updated_at = now()
		  WHERE id = $1
		 RETURNING `+accountColumns,
		id, string(accountType)))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return domain.Account{}, domain.Errorf(domain.KindNotFound, op, "account %d not found", id)
	case pgCode(err) == codeUniqueViolation:
		return domain.Account{}, domain.Errorf(domain.KindDuplicateAccount, op,
			"owner of account %d already holds a %s account", id, accountType)
	case err != nil:
		return domain.Account{}, fmt.Errorf("postgres: update account %d: %w", id, err)
	}
	return acc, nil
}

func (s *Store) DeleteAccount(ctx context.Context, id int64) (domain.Account, error) {
	acc, err := scanAccount(s.pool.QueryRow(ctx,
		`DELETE FROM accounts WHERE id = $1 RETURNING `+accountColumns, id))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return domain.Account{}, domain.Errorf(domain.KindNotFound, "postgres.DeleteAccount", "account %d not found", id)
	case pgCode(err) == codeForeignKeyViolation:
		return domain.Account{}, store.ErrAccountInUse
	case err != nil:
		return domain.Account{}, fmt.Errorf("postgres: delete account %d: %w", id, err)
	}
	return acc, nil
}
