package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/tinoosan/walletledger/internal/errs"
	"github.com/tinoosan/walletledger/internal/ledger"
)

// tx implements storage.Tx on an open database transaction.
type tx struct{ q querier }

// --- wallets ---

func (t *tx) Wallet(ctx context.Context, id int64) (ledger.Wallet, error) {
	return getWallet(ctx, t.q, id)
}

func (t *tx) Wallets(ctx context.Context) ([]ledger.Wallet, error) {
	return listWallets(ctx, t.q)
}

func (t *tx) InsertWallet(ctx context.Context, w ledger.Wallet) (ledger.Wallet, error) {
	row := t.q.QueryRow(ctx, `
		insert into wallets (name, type, exclude_from_total)
		values ($1, $2, $3)
		returning `+walletColumns, w.Name, string(w.Type), w.ExcludeFromTotal)
	out, err := scanWallet(row)
	return out, mapErr(err)
}

// UpdateWallet writes the user-editable fields. The balance column is never touched.
func (t *tx) UpdateWallet(ctx context.Context, w ledger.Wallet) (ledger.Wallet, error) {
	row := t.q.QueryRow(ctx, `
		update wallets set name = $2, type = $3, exclude_from_total = $4, updated_at = now()
		where id = $1
		returning `+walletColumns, w.ID, w.Name, string(w.Type), w.ExcludeFromTotal)
	return one(row, scanWallet, "wallet", w.ID)
}

func (t *tx) DeleteWallet(ctx context.Context, id int64) ([]int64, error) {
	rows, err := t.q.Query(ctx, `select id from transactions where wallet_id = $1 order by id`, id)
	if err != nil {
		return nil, err
	}
	removed, err := collectIDs(rows)
	if err != nil {
		return nil, err
	}
	ct, err := t.q.Exec(ctx, `delete from wallets where id = $1`, id)
	if err != nil {
		return nil, mapErr(err)
	}
	if ct.RowsAffected() == 0 {
		return nil, notFound("wallet", id)
	}
	return removed, nil
}

// --- categories ---

func (t *tx) Category(ctx context.Context, id int64) (ledger.Category, error) {
	return getCategory(ctx, t.q, id)
}

func (t *tx) InsertCategory(ctx context.Context, c ledger.Category, key string) (ledger.Category, error) {
	row := t.q.QueryRow(ctx, `
		insert into categories (name, name_key, icon, description)
		values ($1, $2, $3, $4)
		returning `+categoryColumns, c.Name, key, c.Icon, c.Description)
	out, err := scanCategory(row)
	if err != nil {
		return ledger.Category{}, fmt.Errorf("category %q: %w", c.Name, mapErr(err))
	}
	return out, nil
}

func (t *tx) UpdateCategory(ctx context.Context, c ledger.Category, key string) (ledger.Category, error) {
	row := t.q.QueryRow(ctx, `
		update categories set name = $2, name_key = $3, icon = $4, description = $5, updated_at = now()
		where id = $1
		returning `+categoryColumns, c.ID, c.Name, key, c.Icon, c.Description)
	return one(row, scanCategory, "category", c.ID)
}

// DeleteCategory relies on the schema: transactions and rules are set null,
// budgets cascade.
func (t *tx) DeleteCategory(ctx context.Context, id int64) ([]int64, error) {
	rows, err := t.q.Query(ctx, `select id from transactions where category_id = $1 order by id`, id)
	if err != nil {
		return nil, err
	}
	detached, err := collectIDs(rows)
	if err != nil {
		return nil, err
	}
	ct, err := t.q.Exec(ctx, `delete from categories where id = $1`, id)
	if err != nil {
		return nil, mapErr(err)
	}
	if ct.RowsAffected() == 0 {
		return nil, notFound("category", id)
	}
	return detached, nil
}

// --- transactions ---

func (t *tx) InsertTransaction(ctx context.Context, in ledger.Transaction) (ledger.Transaction, error) {
	row := t.q.QueryRow(ctx, `
		insert into transactions (amount, kind, wallet_id, category_id, counterparty, description, date, recurring_rule_id)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		returning `+transactionColumns,
		in.Amount, string(in.Kind), in.WalletID, in.CategoryID, in.Counterparty, in.Description, in.Date, in.RecurringRuleID)
	out, err := scanTransaction(row)
	return out, mapErr(err)
}

func (t *tx) LockTransaction(ctx context.Context, id int64) (ledger.Transaction, error) {
	row := t.q.QueryRow(ctx, `select `+transactionColumns+` from transactions where id = $1 for update`, id)
	return one(row, scanTransaction, "transaction", id)
}

// UpdateTransaction keeps created_at and index_point_id.
func (t *tx) UpdateTransaction(ctx context.Context, in ledger.Transaction) (ledger.Transaction, error) {
	row := t.q.QueryRow(ctx, `
		update transactions
		set amount = $2, kind = $3, wallet_id = $4, category_id = $5, counterparty = $6,
		    description = $7, date = $8, recurring_rule_id = $9, updated_at = now()
		where id = $1
		returning `+transactionColumns,
		in.ID, in.Amount, string(in.Kind), in.WalletID, in.CategoryID, in.Counterparty, in.Description, in.Date, in.RecurringRuleID)
	return one(row, scanTransaction, "transaction", in.ID)
}

func (t *tx) DeleteTransaction(ctx context.Context, id int64) error {
	ct, err := t.q.Exec(ctx, `delete from transactions where id = $1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return notFound("transaction", id)
	}
	return nil
}

// ReplayOrder blocks concurrent writers to transactions and wallets for the
// rest of the unit of work so the replay sees a stable set.
func (t *tx) ReplayOrder(ctx context.Context) ([]ledger.Transaction, error) {
	if _, err := t.q.Exec(ctx, `lock table transactions, wallets in share row exclusive mode`); err != nil {
		return nil, fmt.Errorf("lock for replay: %w", err)
	}
	rows, err := t.q.Query(ctx, `select `+transactionColumns+` from transactions order by date, id`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanTransaction)
}

// --- recurring rules ---

func (t *tx) InsertRule(ctx context.Context, r ledger.RecurringRule) (ledger.RecurringRule, error) {
	row := t.q.QueryRow(ctx, `
		insert into recurring_rules (name, wallet_id, category_id, amount, frequency, next_run_date, active, kind, description)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		returning `+ruleColumns,
		r.Name, r.WalletID, r.CategoryID, r.Amount, string(r.Frequency), ledger.DateIn(r.NextRunDate, time.UTC), r.Active, string(r.Kind), r.Description)
	out, err := scanRule(row)
	return out, mapErr(err)
}

// LockRule skips rows held by another unit of work and reports them as
// errs.ErrLocked.
func (t *tx) LockRule(ctx context.Context, id int64) (ledger.RecurringRule, error) {
	row := t.q.QueryRow(ctx, `select `+ruleColumns+` from recurring_rules where id = $1 for update skip locked`, id)
	r, err := scanRule(row)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return ledger.RecurringRule{}, err
	}
	var exists bool
	if err := t.q.QueryRow(ctx, `select exists(select 1 from recurring_rules where id = $1)`, id).Scan(&exists); err != nil {
		return ledger.RecurringRule{}, err
	}
	if exists {
		return ledger.RecurringRule{}, fmt.Errorf("recurring rule %d: %w", id, errs.ErrLocked)
	}
	return ledger.RecurringRule{}, notFound("recurring rule", id)
}

func (t *tx) UpdateRule(ctx context.Context, r ledger.RecurringRule) (ledger.RecurringRule, error) {
	row := t.q.QueryRow(ctx, `
		update recurring_rules
		set name = $2, wallet_id = $3, category_id = $4, amount = $5, frequency = $6,
		    next_run_date = $7, active = $8, kind = $9, description = $10, updated_at = now()
		where id = $1
		returning `+ruleColumns,
		r.ID, r.Name, r.WalletID, r.CategoryID, r.Amount, string(r.Frequency), ledger.DateIn(r.NextRunDate, time.UTC), r.Active, string(r.Kind), r.Description)
	return one(row, scanRule, "recurring rule", r.ID)
}

func (t *tx) DeleteRule(ctx context.Context, id int64) error {
	ct, err := t.q.Exec(ctx, `delete from recurring_rules where id = $1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return notFound("recurring rule", id)
	}
	return nil
}

// --- budgets ---

func (t *tx) InsertBudget(ctx context.Context, b ledger.Budget) (ledger.Budget, error) {
	row := t.q.QueryRow(ctx, `
		insert into budgets (category_id, amount, period, start_date, end_date, active)
		values ($1, $2, $3, $4, $5, $6)
		returning `+budgetColumns,
		b.CategoryID, b.Amount, string(b.Period), ledger.DateIn(b.StartDate, time.UTC), ledger.DateIn(b.EndDate, time.UTC), b.Active)
	out, err := scanBudget(row)
	return out, mapErr(err)
}

func (t *tx) UpdateBudget(ctx context.Context, b ledger.Budget) (ledger.Budget, error) {
	row := t.q.QueryRow(ctx, `
		update budgets
		set category_id = $2, amount = $3, period = $4, start_date = $5, end_date = $6, active = $7, updated_at = now()
		where id = $1
		returning `+budgetColumns,
		b.ID, b.CategoryID, b.Amount, string(b.Period), ledger.DateIn(b.StartDate, time.UTC), ledger.DateIn(b.EndDate, time.UTC), b.Active)
	return one(row, scanBudget, "budget", b.ID)
}

func (t *tx) DeleteBudget(ctx context.Context, id int64) error {
	ct, err := t.q.Exec(ctx, `delete from budgets where id = $1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return notFound("budget", id)
	}
	return nil
}

// --- balances ---

// ApplyPostings locks each affected wallet in ascending id order with
// FOR NO KEY UPDATE. That mode does not conflict with the KEY SHARE locks
// taken by foreign keys from transaction inserts, so only balance writers
// queue behind each other, always in the same order.
func (t *tx) ApplyPostings(ctx context.Context, postings []ledger.Posting) error {
	if len(postings) == 0 {
		return nil
	}
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
		var locked int64
		err := t.q.QueryRow(ctx, `select id from wallets where id = $1 for no key update`, id).Scan(&locked)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("wallet %d: %w", id, errs.ErrIntegrity)
		}
		if err != nil {
			return fmt.Errorf("lock wallet %d: %w", id, err)
		}
	}

	batch := &pgx.Batch{}
	for _, p := range postings {
		batch.Queue(`insert into wallet_postings (wallet_id, transaction_id, delta, reason) values ($1, $2, $3, $4)`,
			p.WalletID, p.TransactionID, p.Delta, string(p.Reason))
	}
	for _, id := range ids {
		batch.Queue(`update wallets set balance = balance + $2, updated_at = now() where id = $1`, id, net[id])
	}
	if err := t.q.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("apply postings: %w", mapErr(err))
	}
	return nil
}

func (t *tx) ResetBalances(ctx context.Context) error {
	if _, err := t.q.Exec(ctx, `update wallets set balance = 0, updated_at = now()`); err != nil {
		return err
	}
	_, err := t.q.Exec(ctx, `delete from wallet_postings`)
	return err
}
