package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tinoosan/walletledger/internal/ledger"
)

// --- shared by the pool and open transactions ---

func getWallet(ctx context.Context, q querier, id int64) (ledger.Wallet, error) {
	row := q.QueryRow(ctx, `select `+walletColumns+` from wallets where id = $1`, id)
	return one(row, scanWallet, "wallet", id)
}

func listWallets(ctx context.Context, q querier) ([]ledger.Wallet, error) {
	rows, err := q.Query(ctx, `select `+walletColumns+` from wallets order by id`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanWallet)
}

func getCategory(ctx context.Context, q querier, id int64) (ledger.Category, error) {
	row := q.QueryRow(ctx, `select `+categoryColumns+` from categories where id = $1`, id)
	return one(row, scanCategory, "category", id)
}

// --- Reader ---

func (s *Store) Wallet(ctx context.Context, id int64) (ledger.Wallet, error) {
	return getWallet(ctx, s.pool, id)
}

func (s *Store) Wallets(ctx context.Context) ([]ledger.Wallet, error) {
	return listWallets(ctx, s.pool)
}

func (s *Store) Category(ctx context.Context, id int64) (ledger.Category, error) {
	return getCategory(ctx, s.pool, id)
}

// Categories returns all categories ordered by name.
func (s *Store) Categories(ctx context.Context) ([]ledger.Category, error) {
	rows, err := s.pool.Query(ctx, `select `+categoryColumns+` from categories order by name, id`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanCategory)
}

func (s *Store) Transaction(ctx context.Context, id int64) (ledger.Transaction, error) {
	row := s.pool.QueryRow(ctx, `select `+transactionColumns+` from transactions where id = $1`, id)
	return one(row, scanTransaction, "transaction", id)
}

// Transactions lists matching transactions newest first.
func (s *Store) Transactions(ctx context.Context, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.WalletID != nil {
		add("wallet_id = $%d", *f.WalletID)
	}
	if f.CategoryID != nil {
		add("category_id = $%d", *f.CategoryID)
	}
	if len(f.Kinds) > 0 {
		add("kind = any($%d)", kindStrings(f.Kinds))
	}
	if f.From != nil {
		add("date >= $%d", *f.From)
	}
	if f.To != nil {
		add("date < $%d", *f.To)
	}

	var sb strings.Builder
	sb.WriteString(`select ` + transactionColumns + ` from transactions`)
	if len(where) > 0 {
		sb.WriteString(" where " + strings.Join(where, " and "))
	}
	sb.WriteString(" order by date desc, id desc")
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&sb, " limit $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		fmt.Fprintf(&sb, " offset $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanTransaction)
}

func (s *Store) Rule(ctx context.Context, id int64) (ledger.RecurringRule, error) {
	row := s.pool.QueryRow(ctx, `select `+ruleColumns+` from recurring_rules where id = $1`, id)
	return one(row, scanRule, "recurring rule", id)
}

func (s *Store) Rules(ctx context.Context) ([]ledger.RecurringRule, error) {
	rows, err := s.pool.Query(ctx, `select `+ruleColumns+` from recurring_rules order by id`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanRule)
}

func (s *Store) DueRuleIDs(ctx context.Context, today time.Time) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `
		select id from recurring_rules
		where active and next_run_date <= $1
		order by id
	`, ledger.DateIn(today, time.UTC))
	if err != nil {
		return nil, err
	}
	return collectIDs(rows)
}

func (s *Store) Budget(ctx context.Context, id int64) (ledger.Budget, error) {
	row := s.pool.QueryRow(ctx, `select `+budgetColumns+` from budgets where id = $1`, id)
	return one(row, scanBudget, "budget", id)
}

func (s *Store) Budgets(ctx context.Context) ([]ledger.Budget, error) {
	rows, err := s.pool.Query(ctx, `select `+budgetColumns+` from budgets order by id`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanBudget)
}

func (s *Store) OverlappingBudgets(ctx context.Context, categoryID int64, start, end time.Time) ([]ledger.Budget, error) {
	rows, err := s.pool.Query(ctx, `
		select `+budgetColumns+` from budgets
		where active and category_id = $1 and start_date <= $3 and end_date >= $2
		order by id
	`, categoryID, ledger.DateIn(start, time.UTC), ledger.DateIn(end, time.UTC))
	if err != nil {
		return nil, err
	}
	return collect(rows, scanBudget)
}

func (s *Store) SpentInCategory(ctx context.Context, categoryID int64, kinds []ledger.Kind, from, to time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.pool.QueryRow(ctx, `
		select coalesce(sum(amount), 0) from transactions
		where category_id = $1 and kind = any($2) and date >= $3 and date < $4
	`, categoryID, kindStrings(kinds), from, to).Scan(&total)
	return total, err
}

// Postings returns the posting journal of a wallet in write order.
func (s *Store) Postings(ctx context.Context, walletID int64) ([]ledger.Posting, error) {
	rows, err := s.pool.Query(ctx, `select `+postingColumns+` from wallet_postings where wallet_id = $1 order by id`, walletID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPosting)
}

// SetIndexPoint records (or clears, with nil) the index handle of a transaction.
func (s *Store) SetIndexPoint(ctx context.Context, transactionID int64, pointID *int64) error {
	ct, err := s.pool.Exec(ctx, `update transactions set index_point_id = $2 where id = $1`, transactionID, pointID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return notFound("transaction", transactionID)
	}
	return nil
}
