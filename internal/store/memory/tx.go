package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/chungtau/ledger-bank/internal/domain"
	"github.com/chungtau/ledger-bank/internal/store"
)

// rowLocks hands out one single-slot semaphore per account id. A channel is
// used instead of sync.Mutex so waiting honors context cancellation.
type rowLocks struct {
	mu   sync.Mutex
	rows map[int64]chan struct{}
}

func newRowLocks() *rowLocks {
	return &rowLocks{rows: make(map[int64]chan struct{})}
}

func (l *rowLocks) slot(id int64) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.rows[id]
	if !ok {
		ch = make(chan struct{}, 1)
		l.rows[id] = ch
	}
	return ch
}

func (l *rowLocks) acquire(ctx context.Context, id int64) error {
	select {
	case l.slot(id) <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *rowLocks) release(id int64) {
	<-l.slot(id)
}

// RunInTx stages every write made through tx and publishes them together when
// fn returns nil. Row locks are released on every exit path, panics included.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{
		s:        s,
		accounts: make(map[int64]domain.Account),
		txns:     make(map[int64]domain.Transaction),
	}
	defer tx.release()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit()
}

type memTx struct {
	s *Store

	held     []int64 // ascending
	accounts map[int64]domain.Account
	txns     map[int64]domain.Transaction
}

var _ store.Tx = (*memTx)(nil)

func (t *memTx) LockAccounts(ctx context.Context, ids ...int64) error {
	for _, id := range store.LockOrder(ids...) {
		if err := t.lock(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (t *memTx) lock(ctx context.Context, id int64) error {
	if t.holds(id) {
		return nil
	}
	if n := len(t.held); n > 0 && t.held[n-1] > id {
		return fmt.Errorf("%w: %d requested while holding %d", store.ErrLockOrder, id, t.held[n-1])
	}
	if err := t.s.rows.acquire(ctx, id); err != nil {
		return err
	}
	t.held = append(t.held, id)

	if _, err := t.s.GetAccount(ctx, id); err != nil {
		return err
	}
	return nil
}

func (t *memTx) holds(id int64) bool {
	for _, h := range t.held {
		if h == id {
			return true
		}
	}
	return false
}

func (t *memTx) GetAccount(ctx context.Context, id int64) (domain.Account, error) {
	if acc, ok := t.accounts[id]; ok {
		return acc, nil
	}
	return t.s.GetAccount(ctx, id)
}

func (t *memTx) ConditionalAdjustBalance(ctx context.Context, id int64, delta, requiredMinimum decimal.Decimal) (domain.Account, error) {
	if err := t.lock(ctx, id); err != nil {
		return domain.Account{}, err
	}
	acc, err := t.GetAccount(ctx, id)
	if err != nil {
		return domain.Account{}, err
	}
	acc, err = adjust(acc, delta, requiredMinimum, t.s.now())
	if err != nil {
		return domain.Account{}, err
	}
	t.accounts[id] = acc
	return acc, nil
}

func (t *memTx) FinalizeTransaction(ctx context.Context, id int64, status domain.TransactionStatus) (domain.Transaction, error) {
	txn, ok := t.txns[id]
	if !ok {
		var err error
		if txn, err = t.s.GetTransaction(ctx, id); err != nil {
			return domain.Transaction{}, err
		}
	}
	if !txn.Status.CanTransition(status) {
		return domain.Transaction{}, store.ErrAlreadyFinalized
	}
	txn.Status = status
	txn.UpdatedAt = t.s.now()
	t.txns[id] = txn
	return clone(txn), nil
}

// commit validates every staged record before applying any of them so a
// conflicting finalize leaves the committed state untouched.
func (t *memTx) commit() error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range t.txns {
		committed, ok := s.transactions[id]
		if !ok {
			return transactionNotFound("memory.commit", id)
		}
		if committed.Status.IsFinal() {
			return store.ErrAlreadyFinalized
		}
	}
	for id := range t.accounts {
		if _, ok := s.accounts[id]; !ok {
			return accountNotFound("memory.commit", id)
		}
	}

	for id, staged := range t.accounts {
		cur := s.accounts[id]
		cur.Balance = staged.Balance
		cur.UpdatedAt = staged.UpdatedAt
		s.accounts[id] = cur
	}
	for id, staged := range t.txns {
		s.transactions[id] = staged
	}
	return nil
}

func (t *memTx) release() {
	for i := len(t.held) - 1; i >= 0; i-- {
		t.s.rows.release(t.held[i])
	}
	t.held = nil
}
