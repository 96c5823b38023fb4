package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tinoosan/walletledger/internal/errs"
	"github.com/tinoosan/walletledger/internal/ledger"
)

// sequences mimic per-table serial columns.
type sequences struct {
	wallet, category, transaction, rule, budget, posting int64
}

// state is one snapshot of every table.
type state struct {
	wallets      map[int64]ledger.Wallet
	categories   map[int64]ledger.Category
	categoryKeys map[string]int64
	transactions map[int64]ledger.Transaction
	rules        map[int64]ledger.RecurringRule
	budgets      map[int64]ledger.Budget
	postings     []ledger.Posting
	seq          sequences
	now          func() time.Time
}

func newState() *state {
	return &state{
		wallets:      make(map[int64]ledger.Wallet),
		categories:   make(map[int64]ledger.Category),
		categoryKeys: make(map[string]int64),
		transactions: make(map[int64]ledger.Transaction),
		rules:        make(map[int64]ledger.RecurringRule),
		budgets:      make(map[int64]ledger.Budget),
		now:          time.Now,
	}
}

func (st *state) clone() *state {
	c := &state{
		wallets:      make(map[int64]ledger.Wallet, len(st.wallets)),
		categories:   make(map[int64]ledger.Category, len(st.categories)),
		categoryKeys: make(map[string]int64, len(st.categoryKeys)),
		transactions: make(map[int64]ledger.Transaction, len(st.transactions)),
		rules:        make(map[int64]ledger.RecurringRule, len(st.rules)),
		budgets:      make(map[int64]ledger.Budget, len(st.budgets)),
		postings:     append([]ledger.Posting(nil), st.postings...),
		seq:          st.seq,
		now:          st.now,
	}
	for k, v := range st.wallets {
		c.wallets[k] = v
	}
	for k, v := range st.categories {
		c.categories[k] = v
	}
	for k, v := range st.categoryKeys {
		c.categoryKeys[k] = v
	}
	for k, v := range st.transactions {
		c.transactions[k] = v
	}
	for k, v := range st.rules {
		c.rules[k] = v
	}
	for k, v := range st.budgets {
		c.budgets[k] = v
	}
	return c
}

func copyID(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyTransaction(t ledger.Transaction) ledger.Transaction {
	t.CategoryID = copyID(t.CategoryID)
	t.RecurringRuleID = copyID(t.RecurringRuleID)
	t.IndexPointID = copyID(t.IndexPointID)
	return t
}

func (st *state) sortedBudgets(keep func(ledger.Budget) bool) []ledger.Budget {
	out := make([]ledger.Budget, 0)
	for _, b := range st.budgets {
		if keep(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// references checks the foreign keys of a row.
func (st *state) references(walletID int64, categoryID *int64) error {
	if walletID != 0 {
		if _, ok := st.wallets[walletID]; !ok {
			return fmt.Errorf("wallet %d: %w", walletID, errs.ErrIntegrity)
		}
	}
	if categoryID != nil {
		if _, ok := st.categories[*categoryID]; !ok {
			return fmt.Errorf("category %d: %w", *categoryID, errs.ErrIntegrity)
		}
	}
	return nil
}

// --- wallets ---

func (st *state) Wallet(_ context.Context, id int64) (ledger.Wallet, error) {
	w, ok := st.wallets[id]
	if !ok {
		return ledger.Wallet{}, fmt.Errorf("wallet %d: %w", id, errs.ErrNotFound)
	}
	return w, nil
}

func (st *state) Wallets(_ context.Context) ([]ledger.Wallet, error) {
	out := make([]ledger.Wallet, 0, len(st.wallets))
	for _, w := range st.wallets {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (st *state) InsertWallet(_ context.Context, w ledger.Wallet) (ledger.Wallet, error) {
	st.seq.wallet++
	w.ID = st.seq.wallet
	w.Balance = decimal.Zero
	w.CreatedAt = st.now()
	w.UpdatedAt = w.CreatedAt
	st.wallets[w.ID] = w
	return w, nil
}

func (st *state) UpdateWallet(_ context.Context, w ledger.Wallet) (ledger.Wallet, error) {
	cur, ok := st.wallets[w.ID]
	if !ok {
		return ledger.Wallet{}, fmt.Errorf("wallet %d: %w", w.ID, errs.ErrNotFound)
	}
	cur.Name = w.Name
	cur.Type = w.Type
	cur.ExcludeFromTotal = w.ExcludeFromTotal
	cur.UpdatedAt = st.now()
	st.wallets[w.ID] = cur
	return cur, nil
}

func (st *state) DeleteWallet(_ context.Context, id int64) ([]int64, error) {
	if _, ok := st.wallets[id]; !ok {
		return nil, fmt.Errorf("wallet %d: %w", id, errs.ErrNotFound)
	}
	removed := make([]int64, 0)
	for tid, t := range st.transactions {
		if t.WalletID == id {
			removed = append(removed, tid)
			delete(st.transactions, tid)
		}
	}
	for rid, r := range st.rules {
		if r.WalletID == id {
			delete(st.rules, rid)
		}
	}
	kept := st.postings[:0:0]
	for _, p := range st.postings {
		if p.WalletID != id {
			kept = append(kept, p)
		}
	}
	st.postings = kept
	delete(st.wallets, id)
	sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })
	return removed, nil
}

// --- categories ---

func (st *state) Category(_ context.Context, id int64) (ledger.Category, error) {
	c, ok := st.categories[id]
	if !ok {
		return ledger.Category{}, fmt.Errorf("category %d: %w", id, errs.ErrNotFound)
	}
	return c, nil
}

func (st *state) InsertCategory(_ context.Context, c ledger.Category, key string) (ledger.Category, error) {
	if _, taken := st.categoryKeys[key]; taken {
		return ledger.Category{}, fmt.Errorf("category %q: %w", c.Name, errs.ErrConflict)
	}
	st.seq.category++
	c.ID = st.seq.category
	c.CreatedAt = st.now()
	c.UpdatedAt = c.CreatedAt
	st.categories[c.ID] = c
	st.categoryKeys[key] = c.ID
	return c, nil
}

func (st *state) UpdateCategory(_ context.Context, c ledger.Category, key string) (ledger.Category, error) {
	cur, ok := st.categories[c.ID]
	if !ok {
		return ledger.Category{}, fmt.Errorf("category %d: %w", c.ID, errs.ErrNotFound)
	}
	if owner, taken := st.categoryKeys[key]; taken && owner != c.ID {
		return ledger.Category{}, fmt.Errorf("category %q: %w", c.Name, errs.ErrConflict)
	}
	for k, owner := range st.categoryKeys {
		if owner == c.ID {
			delete(st.categoryKeys, k)
		}
	}
	st.categoryKeys[key] = c.ID
	cur.Name = c.Name
	cur.Icon = c.Icon
	cur.Description = c.Description
	cur.UpdatedAt = st.now()
	st.categories[c.ID] = cur
	return cur, nil
}

func (st *state) DeleteCategory(_ context.Context, id int64) ([]int64, error) {
	if _, ok := st.categories[id]; !ok {
		return nil, fmt.Errorf("category %d: %w", id, errs.ErrNotFound)
	}
	detached := make([]int64, 0)
	for tid, t := range st.transactions {
		if t.CategoryID != nil && *t.CategoryID == id {
			t.CategoryID = nil
			st.transactions[tid] = t
			detached = append(detached, tid)
		}
	}
	for rid, r := range st.rules {
		if r.CategoryID != nil && *r.CategoryID == id {
			r.CategoryID = nil
			st.rules[rid] = r
		}
	}
	for bid, b := range st.budgets {
		if b.CategoryID == id {
			delete(st.budgets, bid)
		}
	}
	for k, owner := range st.categoryKeys {
		if owner == id {
			delete(st.categoryKeys, k)
		}
	}
	delete(st.categories, id)
	sort.Slice(detached, func(i, j int) bool { return detached[i] < detached[j] })
	return detached, nil
}

// --- transactions ---

func (st *state) InsertTransaction(_ context.Context, t ledger.Transaction) (ledger.Transaction, error) {
	if err := st.references(t.WalletID, t.CategoryID); err != nil {
		return ledger.Transaction{}, err
	}
	st.seq.transaction++
	t = copyTransaction(t)
	t.ID = st.seq.transaction
	t.CreatedAt = st.now()
	t.UpdatedAt = t.CreatedAt
	st.transactions[t.ID] = t
	return copyTransaction(t), nil
}

func (st *state) LockTransaction(_ context.Context, id int64) (ledger.Transaction, error) {
	t, ok := st.transactions[id]
	if !ok {
		return ledger.Transaction{}, fmt.Errorf("transaction %d: %w", id, errs.ErrNotFound)
	}
	return copyTransaction(t), nil
}

func (st *state) UpdateTransaction(_ context.Context, t ledger.Transaction) (ledger.Transaction, error) {
	cur, ok := st.transactions[t.ID]
	if !ok {
		return ledger.Transaction{}, fmt.Errorf("transaction %d: %w", t.ID, errs.ErrNotFound)
	}
	if err := st.references(t.WalletID, t.CategoryID); err != nil {
		return ledger.Transaction{}, err
	}
	t = copyTransaction(t)
	t.CreatedAt = cur.CreatedAt
	t.IndexPointID = copyID(cur.IndexPointID)
	t.UpdatedAt = st.now()
	st.transactions[t.ID] = t
	return copyTransaction(t), nil
}

func (st *state) DeleteTransaction(_ context.Context, id int64) error {
	if _, ok := st.transactions[id]; !ok {
		return fmt.Errorf("transaction %d: %w", id, errs.ErrNotFound)
	}
	delete(st.transactions, id)
	return nil
}

func (st *state) ReplayOrder(_ context.Context) ([]ledger.Transaction, error) {
	out := make([]ledger.Transaction, 0, len(st.transactions))
	for _, t := range st.transactions {
		out = append(out, copyTransaction(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// --- recurring rules ---

func (st *state) InsertRule(_ context.Context, r ledger.RecurringRule) (ledger.RecurringRule, error) {
	if err := st.references(r.WalletID, r.CategoryID); err != nil {
		return ledger.RecurringRule{}, err
	}
	st.seq.rule++
	r.ID = st.seq.rule
	r.CategoryID = copyID(r.CategoryID)
	r.CreatedAt = st.now()
	r.UpdatedAt = r.CreatedAt
	st.rules[r.ID] = r
	return r, nil
}

// LockRule never reports errs.ErrLocked here: units of work are serialized.
func (st *state) LockRule(_ context.Context, id int64) (ledger.RecurringRule, error) {
	r, ok := st.rules[id]
	if !ok {
		return ledger.RecurringRule{}, fmt.Errorf("recurring rule %d: %w", id, errs.ErrNotFound)
	}
	return r, nil
}

func (st *state) UpdateRule(_ context.Context, r ledger.RecurringRule) (ledger.RecurringRule, error) {
	cur, ok := st.rules[r.ID]
	if !ok {
		return ledger.RecurringRule{}, fmt.Errorf("recurring rule %d: %w", r.ID, errs.ErrNotFound)
	}
	if err := st.references(r.WalletID, r.CategoryID); err != nil {
		return ledger.RecurringRule{}, err
	}
	r.CategoryID = copyID(r.CategoryID)
	r.CreatedAt = cur.CreatedAt
	r.UpdatedAt = st.now()
	st.rules[r.ID] = r
	return r, nil
}

func (st *state) DeleteRule(_ context.Context, id int64) error {
	if _, ok := st.rules[id]; !ok {
		return fmt.Errorf("recurring rule %d: %w", id, errs.ErrNotFound)
	}
	delete(st.rules, id)
	for tid, t := range st.transactions {
		if t.RecurringRuleID != nil && *t.RecurringRuleID == id {
			t.RecurringRuleID = nil
			st.transactions[tid] = t
		}
	}
	return nil
}

// --- budgets ---

func (st *state) InsertBudget(_ context.Context, b ledger.Budget) (ledger.Budget, error) {
	if err := st.references(0, &b.CategoryID); err != nil {
		return ledger.Budget{}, err
	}
	st.seq.budget++
	b.ID = st.seq.budget
	b.CreatedAt = st.now()
	b.UpdatedAt = b.CreatedAt
	st.budgets[b.ID] = b
	return b, nil
}

func (st *state) UpdateBudget(_ context.Context, b ledger.Budget) (ledger.Budget, error) {
	cur, ok := st.budgets[b.ID]
	if !ok {
		return ledger.Budget{}, fmt.Errorf("budget %d: %w", b.ID, errs.ErrNotFound)
	}
	if err := st.references(0, &b.CategoryID); err != nil {
		return ledger.Budget{}, err
	}
	b.CreatedAt = cur.CreatedAt
	b.UpdatedAt = st.now()
	st.budgets[b.ID] = b
	return b, nil
}

func (st *state) DeleteBudget(_ context.Context, id int64) error {
	if _, ok := st.budgets[id]; !ok {
		return fmt.Errorf("budget %d: %w", id, errs.ErrNotFound)
	}
	delete(st.budgets, id)
	return nil
}

// --- balances ---

func (st *state) ApplyPostings(_ context.Context, postings []ledger.Posting) error {
	net := make(map[int64]decimal.Decimal, len(postings))
	for _, p := range postings {
		net[p.WalletID] = net[p.WalletID].Add(p.Delta)
	}
	ids := make([]int64, 0, len(net))
	for id := range net {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if _, ok := st.wallets[id]; !ok {
			return fmt.Errorf("wallet %d: %w", id, errs.ErrIntegrity)
		}
	}
	for _, p := range postings {
		st.seq.posting++
		p.ID = st.seq.posting
		st.postings = append(st.postings, p)
	}
	now := st.now()
	for _, id := range ids {
		w := st.wallets[id]
		w.Balance = w.Balance.Add(net[id])
		w.UpdatedAt = now
		st.wallets[id] = w
	}
	return nil
}

func (st *state) ResetBalances(_ context.Context) error {
	for id, w := range st.wallets {
		w.Balance = decimal.Zero
		st.wallets[id] = w
	}
	st.postings = nil
	return nil
}
