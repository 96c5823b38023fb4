// Package memory provides an in-memory store used for development and tests.
// A unit of work runs against a private copy of the state under the write
// lock and replaces the state only when it succeeds, so a failed unit of work
// leaves nothing behind.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tinoosan/walletledger/internal/errs"
	"github.com/tinoosan/walletledger/internal/ledger"
	"github.com/tinoosan/walletledger/internal/storage"
)

// Store is an in-memory implementation of storage.Store.
// It is guarded by an RWMutex for concurrent reads/writes.
type Store struct {
	mu  sync.RWMutex
	st  *state
	now func() time.Time
}

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

// WithClock overrides the timestamp source. Used by tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
	return s
}

// WithinTx implements storage.Transactor. Units of work are serialized.
func (s *Store) WithinTx(ctx context.Context, fn func(storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.st.clone()
	work.now = s.now
	if err := fn(&tx{state: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

// tx exposes the working copy of a unit of work as a storage.Tx.
type tx struct{ *state }

// Ready always succeeds.
func (s *Store) Ready(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}

// Reset drops all data.
func (s *Store) Reset() {
	s.mu.Lock()
	s.st = newState()
	s.mu.Unlock()
}

func (s *Store) Wallet(ctx context.Context, id int64) (ledger.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.Wallet(ctx, id)
}

func (s *Store) Wallets(ctx context.Context) ([]ledger.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.Wallets(ctx)
}

func (s *Store) Category(ctx context.Context, id int64) (ledger.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.Category(ctx, id)
}

// Categories returns all categories ordered by name.
func (s *Store) Categories(_ context.Context) ([]ledger.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Category, 0, len(s.st.categories))
	for _, c := range s.st.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) Transaction(_ context.Context, id int64) (ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.st.transactions[id]
	if !ok {
		return ledger.Transaction{}, fmt.Errorf("transaction %d: %w", id, errs.ErrNotFound)
	}
	return copyTransaction(t), nil
}

// Transactions lists matching transactions newest first.
func (s *Store) Transactions(_ context.Context, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Transaction, 0)
	for _, t := range s.st.transactions {
		if f.Match(t) {
			out = append(out, copyTransaction(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID > out[j].ID
	})
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []ledger.Transaction{}, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) Rule(_ context.Context, id int64) (ledger.RecurringRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.st.rules[id]
	if !ok {
		return ledger.RecurringRule{}, fmt.Errorf("recurring rule %d: %w", id, errs.ErrNotFound)
	}
	return r, nil
}

func (s *Store) Rules(_ context.Context) ([]ledger.RecurringRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.RecurringRule, 0, len(s.st.rules))
	for _, r := range s.st.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DueRuleIDs(_ context.Context, today time.Time) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0)
	for id, r := range s.st.rules {
		if r.DueOn(today) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *Store) Budget(_ context.Context, id int64) (ledger.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.st.budgets[id]
	if !ok {
		return ledger.Budget{}, fmt.Errorf("budget %d: %w", id, errs.ErrNotFound)
	}
	return b, nil
}

func (s *Store) Budgets(_ context.Context) ([]ledger.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.sortedBudgets(func(ledger.Budget) bool { return true }), nil
}

func (s *Store) OverlappingBudgets(_ context.Context, categoryID int64, start, end time.Time) ([]ledger.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.sortedBudgets(func(b ledger.Budget) bool {
		return b.Active && b.CategoryID == categoryID && b.Overlaps(start, end)
	}), nil
}

func (s *Store) SpentInCategory(_ context.Context, categoryID int64, kinds []ledger.Kind, from, to time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f := ledger.TransactionFilter{CategoryID: &categoryID, Kinds: kinds, From: &from, To: &to}
	total := decimal.Zero
	for _, t := range s.st.transactions {
		if f.Match(t) {
			total = total.Add(t.Amount)
		}
	}
	return total, nil
}

// Postings returns the posting journal of a wallet in write order.
func (s *Store) Postings(_ context.Context, walletID int64) ([]ledger.Posting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Posting, 0)
	for _, p := range s.st.postings {
		if p.WalletID == walletID {
			out = append(out, p)
		}
	}
	return out, nil
}

// SetIndexPoint records (or clears, with nil) the index handle of a transaction.
func (s *Store) SetIndexPoint(_ context.Context, transactionID int64, pointID *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.st.transactions[transactionID]
	if !ok {
		return fmt.Errorf("transaction %d: %w", transactionID, errs.ErrNotFound)
	}
	t.IndexPointID = copyID(pointID)
	s.st.transactions[transactionID] = t
	return nil
}
