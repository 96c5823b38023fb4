package postgres

import (
	"github.com/jackc/pgx/v5"

	"github.com/tinoosan/walletledger/internal/ledger"
)

const (
	walletColumns      = `id, name, type, balance, exclude_from_total, created_at, updated_at`
	categoryColumns    = `id, name, icon, description, created_at, updated_at`
	transactionColumns = `id, amount, kind, wallet_id, category_id, counterparty, description, date, recurring_rule_id, index_point_id, created_at, updated_at`
	ruleColumns        = `id, name, wallet_id, category_id, amount, frequency, next_run_date, active, kind, description, created_at, updated_at`
	budgetColumns      = `id, category_id, amount, period, start_date, end_date, active, created_at, updated_at`
	postingColumns     = `id, wallet_id, transaction_id, delta, reason`
)

func scanWallet(row pgx.Row) (ledger.Wallet, error) {
	var w ledger.Wallet
	var typ string
	err := row.Scan(&w.ID, &w.Name, &typ, &w.Balance, &w.ExcludeFromTotal, &w.CreatedAt, &w.UpdatedAt)
	w.Type = ledger.WalletType(typ)
	return w, err
}

func scanCategory(row pgx.Row) (ledger.Category, error) {
	var c ledger.Category
	err := row.Scan(&c.ID, &c.Name, &c.Icon, &c.Description, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func scanTransaction(row pgx.Row) (ledger.Transaction, error) {
	var t ledger.Transaction
	var kind string
	err := row.Scan(&t.ID, &t.Amount, &kind, &t.WalletID, &t.CategoryID, &t.Counterparty, &t.Description,
		&t.Date, &t.RecurringRuleID, &t.IndexPointID, &t.CreatedAt, &t.UpdatedAt)
	t.Kind = ledger.Kind(kind)
	return t, err
}

func scanRule(row pgx.Row) (ledger.RecurringRule, error) {
	var r ledger.RecurringRule
	var freq, kind string
	err := row.Scan(&r.ID, &r.Name, &r.WalletID, &r.CategoryID, &r.Amount, &freq, &r.NextRunDate,
		&r.Active, &kind, &r.Description, &r.CreatedAt, &r.UpdatedAt)
	r.Frequency = ledger.Frequency(freq)
	r.Kind = ledger.Kind(kind)
	return r, err
}

func scanBudget(row pgx.Row) (ledger.Budget, error) {
	var b ledger.Budget
	var period string
	err := row.Scan(&b.ID, &b.CategoryID, &b.Amount, &period, &b.StartDate, &b.EndDate, &b.Active, &b.CreatedAt, &b.UpdatedAt)
	b.Period = ledger.Period(period)
	return b, err
}

func scanPosting(row pgx.Row) (ledger.Posting, error) {
	var p ledger.Posting
	var reason string
	err := row.Scan(&p.ID, &p.WalletID, &p.TransactionID, &p.Delta, &reason)
	p.Reason = ledger.PostingReason(reason)
	return p, err
}

func kindStrings(kinds []ledger.Kind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}
