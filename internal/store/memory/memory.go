// Package memory is an in-process implementation of store.Store used in
// memory mode and in tests.
//
// Row locks are per account. A transaction scope stages its writes and
// publishes them under the table lock on commit, so readers never observe a
// half-applied transfer.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chungtau/ledger-bank/internal/domain"
	"github.com/chungtau/ledger-bank/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store keeps accounts and transactions in maps guarded by mu. Balance
// writers additionally hold the account's row lock.
type Store struct {
	mu           sync.RWMutex
	accounts     map[int64]domain.Account
	transactions map[int64]domain.Transaction
	nextAccount  int64
	nextTxn      int64

	rows *rowLocks
	now  func() time.Time
}

func New() *Store {
	return &Store{
		accounts:     make(map[int64]domain.Account),
		transactions: make(map[int64]domain.Transaction),
		rows:         newRowLocks(),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Close() error {
	return nil
}

// --- accounts ---

func (s *Store) GetAccount(ctx context.Context, id int64) (domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accounts[id]
	if !ok {
		return domain.Account{}, accountNotFound("memory.GetAccount", id)
	}
	return acc, nil
}

func (s *Store) FindAccountByOwnerAndType(ctx context.Context, ownerID int64, accountType domain.AccountType) (domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if acc, ok := s.findByOwnerAndType(ownerID, accountType); ok {
		return acc, nil
	}
	return domain.Account{}, domain.Errorf(domain.KindNotFound, "memory.FindAccountByOwnerAndType",
		"no %s account for owner %d", accountType, ownerID)
}

func (s *Store) ListAccountsByOwner(ctx context.Context, ownerID int64, page domain.Page) ([]domain.Account, error) {
	return s.listAccounts(page, func(a domain.Account) bool { return a.OwnerID == ownerID }), nil
}

func (s *Store) ListAccounts(ctx context.Context, page domain.Page) ([]domain.Account, error) {
	return s.listAccounts(page, func(domain.Account) bool { return true }), nil
}

func (s *Store) CreateAccount(ctx context.Context, ownerID int64, initialBalance decimal.Decimal, accountType domain.AccountType) (domain.Account, error) {
	const op = "memory.CreateAccount"
	if initialBalance.IsNegative() {
		return domain.Account{}, domain.Errorf(domain.KindInvalidRequest, op, "initial balance must not be negative")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.findByOwnerAndType(ownerID, accountType); exists {
		return domain.Account{}, domain.Errorf(domain.KindDuplicateAccount, op,
			"owner %d already holds a %s account", ownerID, accountType)
	}

	s.nextAccount++
	now := s.now()
	acc := domain.Account{
		ID:        s.nextAccount,
		OwnerID:   ownerID,
		Balance:   initialBalance,
		Type:      accountType,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.accounts[acc.ID] = acc
	return acc, nil
}

func (s *Store) ConditionalAdjustBalance(ctx context.Context, id int64, delta, requiredMinimum decimal.Decimal) (domain.Account, error) {
	if err := s.rows.acquire(ctx, id); err != nil {
		return domain.Account{}, err
	}
	defer s.rows.release(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return domain.Account{}, accountNotFound("memory.ConditionalAdjustBalance", id)
	}
	acc, err := adjust(acc, delta, requiredMinimum, s.now())
	if err != nil {
		return domain.Account{}, err
	}
	s.accounts[id] = acc
	return acc, nil
}

func (s *Store) UpdateAccountType(ctx context.Context, id int64, accountType domain.AccountType) (domain.Account, error) {
	const op = "memory.UpdateAccountType"

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return domain.Account{}, accountNotFound(op, id)
	}
	if acc.Type == accountType {
		return acc, nil
	}
	if _, exists := s.findByOwnerAndType(acc.OwnerID, accountType); exists {
		return domain.Account{}, domain.Errorf(domain.KindDuplicateAccount, op,
			"owner %d already holds a %s account", acc.OwnerID, accountType)
	}
	acc.Type = accountType
	acc.UpdatedAt = s.now()
	s.accounts[id] = acc
	return acc, nil
}

func (s *Store) DeleteAccount(ctx context.Context, id int64) (domain.Account, error) {
	if err := s.rows.acquire(ctx, id); err != nil {
		return domain.Account{}, err
	}
	defer s.rows.release(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return domain.Account{}, accountNotFound("memory.DeleteAccount", id)
	}
	for _, txn := range s.transactions {
		if touches(txn, id) {
			return domain.Account{}, store.ErrAccountInUse
		}
	}
	delete(s.accounts, id)
	return acc, nil
}

// --- transactions ---

func (s *Store) AppendTransaction(ctx context.Context, txn domain.Transaction) (domain.Transaction, error) {
	const op = "memory.AppendTransaction"
	if err := store.ValidateTransaction(op, txn); err != nil {
		return domain.Transaction{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range txn.AccountIDs() {
		if _, ok := s.accounts[id]; !ok {
			return domain.Transaction{}, accountNotFound(op, id)
		}
	}

	s.nextTxn++
	now := s.now()
	txn = clone(txn)
	txn.ID = s.nextTxn
	if txn.Status == "" {
		txn.Status = domain.StatusPending
	}
	txn.CreatedAt = now
	txn.UpdatedAt = now
	s.transactions[txn.ID] = txn
	return clone(txn), nil
}

func (s *Store) GetTransaction(ctx context.Context, id int64) (domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txn, ok := s.transactions[id]
	if !ok {
		return domain.Transaction{}, transactionNotFound("memory.GetTransaction", id)
	}
	return clone(txn), nil
}

func (s *Store) ListTransactionsByOwner(ctx context.Context, ownerID int64, page domain.Page) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owned := make(map[int64]struct{})
	for id, acc := range s.accounts {
		if acc.OwnerID == ownerID {
			owned[id] = struct{}{}
		}
	}
	return s.listTransactionsLocked(page, func(t domain.Transaction) bool {
		for _, id := range t.AccountIDs() {
			if _, ok := owned[id]; ok {
				return true
			}
		}
		return false
	}), nil
}

func (s *Store) ListTransactions(ctx context.Context, page domain.Page) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.listTransactionsLocked(page, func(domain.Transaction) bool { return true }), nil
}

func (s *Store) FinalizeTransaction(ctx context.Context, id int64, status domain.TransactionStatus) (domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, ok := s.transactions[id]
	if !ok {
		return domain.Transaction{}, transactionNotFound("memory.FinalizeTransaction", id)
	}
	if !txn.Status.CanTransition(status) {
		return domain.Transaction{}, store.ErrAlreadyFinalized
	}
	txn.Status = status
	txn.UpdatedAt = s.now()
	s.transactions[id] = txn
	return clone(txn), nil
}

// --- helpers ---

func (s *Store) findByOwnerAndType(ownerID int64, accountType domain.AccountType) (domain.Account, bool) {
	for _, acc := range s.accounts {
		if acc.OwnerID == ownerID && acc.Type == accountType {
			return acc, true
		}
	}
	return domain.Account{}, false
}

func (s *Store) listAccounts(page domain.Page, keep func(domain.Account) bool) []domain.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Account, 0)
	for _, acc := range s.accounts {
		if keep(acc) {
			out = append(out, acc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return window(out, page)
}

// listTransactionsLocked returns newest first. Caller holds mu.
func (s *Store) listTransactionsLocked(page domain.Page, keep func(domain.Transaction) bool) []domain.Transaction {
	out := make([]domain.Transaction, 0)
	for _, txn := range s.transactions {
		if keep(txn) {
			out = append(out, clone(txn))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return window(out, page)
}

func window[T any](items []T, page domain.Page) []T {
	start := page.Offset()
	if start >= len(items) {
		return items[:0]
	}
	end := start + page.Limit()
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func adjust(acc domain.Account, delta, requiredMinimum decimal.Decimal, now time.Time) (domain.Account, error) {
	next := acc.Balance.Add(delta)
	if next.LessThan(requiredMinimum) {
		return domain.Account{}, store.ErrPreconditionFailed
	}
	acc.Balance = next
	acc.UpdatedAt = now
	return acc, nil
}

func touches(txn domain.Transaction, accountID int64) bool {
	for _, id := range txn.AccountIDs() {
		if id == accountID {
			return true
		}
	}
	return false
}

func clone(txn domain.Transaction) domain.Transaction {
	if txn.DestinationAccountID != nil {
		dst := *txn.DestinationAccountID
		txn.DestinationAccountID = &dst
	}
	return txn
}

func accountNotFound(op string, id int64) error {
	return domain.Errorf(domain.KindNotFound, op, "account %d not found", id)
}

func transactionNotFound(op string, id int64) error {
	return domain.Errorf(domain.KindNotFound, op, "transaction %d not found", id)
}
