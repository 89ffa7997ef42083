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

const transactionColumns = `id, source_account_id, destination_account_id, transaction_type, amount::text, status, created_at, updated_at`

func scanTransaction(row pgx.Row) (domain.Transaction, error) {
	var (
		txn         domain.Transaction
		destination *int64
		typ         string
		amount      string
		status      string
	)
	if err := row.Scan(&txn.ID, &txn.SourceAccountID, &destination, &typ, &amount, &status, &txn.CreatedAt, &txn.UpdatedAt); err != nil {
		return domain.Transaction{}, err
	}
	a, err := decimal.NewFromString(amount)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("decode amount %q: %w", amount, err)
	}
	txn.DestinationAccountID = destination
	txn.Type = domain.TransactionType(typ)
	txn.Amount = a
	txn.Status = domain.TransactionStatus(status)
	return txn, nil
}

func collectTransactions(rows pgx.Rows) ([]domain.Transaction, error) {
	defer rows.Close()

	out := make([]domain.Transaction, 0)
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	return out, rows.Err()
}

func (s *Store) AppendTransaction(ctx context.Context, txn domain.Transaction) (domain.Transaction, error) {
	const op = "postgres.AppendTransaction"
	if err := store.ValidateTransaction(op, txn); err != nil {
		return domain.Transaction{}, err
	}

	out, err := scanTransaction(s.pool.QueryRow(ctx,
		`INSERT INTO transactions (source_account_id, destination_account_id, transaction_type, amount, status)
		 VALUES ($1, $2, $3, $4::numeric, 'PENDING')
		 RETURNING `+transactionColumns,
		txn.SourceAccountID, txn.DestinationAccountID, string(txn.Type), txn.Amount.String()))
	switch {
	case pgCode(err) == codeForeignKeyViolation:
		return domain.Transaction{}, domain.Errorf(domain.KindNotFound, op, "referenced account not found")
	case pgCode(err) == codeCheckViolation:
		return domain.Transaction{}, domain.Errorf(domain.KindInvalidRequest, op, "transaction violates a table constraint")
	case err != nil:
		return domain.Transaction{}, fmt.Errorf("postgres: append transaction: %w", err)
	}
	return out, nil
}

func (s *Store) GetTransaction(ctx context.Context, id int64) (domain.Transaction, error) {
	return getTransaction(ctx, s.pool, id)
}

func getTransaction(ctx context.Context, q querier, id int64) (domain.Transaction, error) {
	txn, err := scanTransaction(q.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Transaction{}, domain.Errorf(domain.KindNotFound, "postgres.GetTransaction", "transaction %d not found", id)
	}
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("postgres: get transaction %d: %w", id, err)
	}
	return txn, nil
}

func (s *Store) ListTransactionsByOwner(ctx context.Context, ownerID int64, page domain.Page) ([]domain.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+transactionColumns+`
		   FROM transactions
		  WHERE source_account_id IN (SELECT id FROM accounts WHERE owner_id = $1)
		     OR destination_account_id IN (SELECT id FROM accounts WHERE owner_id = $1)
		  ORDER BY id DESC
		  LIMIT $2 OFFSET $3`,
		ownerID, page.Limit(), page.Offset())
	if err != nil {
		return nil, fmt.Errorf("postgres: list transactions for owner %d: %w", ownerID, err)
	}
	return collectTransactions(rows)
}

func (s *Store) ListTransactions(ctx context.Context, page domain.Page) ([]domain.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions ORDER BY id DESC LIMIT $1 OFFSET $2`,
		page.Limit(), page.Offset())
	if err != nil {
		return nil, fmt.Errorf("postgres: list transactions: %w", err)
	}
	return collectTransactions(rows)
}

func (s *Store) FinalizeTransaction(ctx context.Context, id int64, status domain.TransactionStatus) (domain.Transaction, error) {
	return finalizeTransaction(ctx, s.pool, id, status)
}

// finalizeTransaction only matches PENDING rows, so a record leaves PENDING
// at most once even under concurrent callers.
func finalizeTransaction(ctx context.Context, q querier, id int64, status domain.TransactionStatus) (domain.Transaction, error) {
	if !domain.StatusPending.CanTransition(status) {
		return domain.Transaction{}, domain.Errorf(domain.KindInvalidRequest, "postgres.FinalizeTransaction",
			"%s is not a final status", status)
	}

	txn, err := scanTransaction(q.QueryRow(ctx,
		`UPDATE transactions SET status = $2, updated_at = now()
		  WHERE id = $1 AND status = 'PENDING'
		 RETURNING `+transactionColumns,
		id, string(status)))
	if err == nil {
		return txn, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Transaction{}, fmt.Errorf("postgres: finalize transaction %d: %w", id, err)
	}

	if _, err := getTransaction(ctx, q, id); err != nil {
		return domain.Transaction{}, err
	}
	return domain.Transaction{}, store.ErrAlreadyFinalized
}
