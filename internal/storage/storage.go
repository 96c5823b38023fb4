// Package storage declares the unit of work shared by the ledger services.
// Both the in-memory and the Postgres stores implement it.
package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tinoosan/walletledger/internal/ledger"
)

// Transactor runs fn atomically: the work is committed when fn returns nil
// and rolled back otherwise. Balance mutations only ever happen inside it.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is the set of writes (and the reads that must observe them) available
// inside a unit of work.
type Tx interface {
	WalletTx
	CategoryTx
	TransactionTx
	RuleTx
	BudgetTx
	BalanceTx
}

// WalletTx covers wallet rows. Balances are never written here.
type WalletTx interface {
	Wallet(ctx context.Context, id int64) (ledger.Wallet, error)
	Wallets(ctx context.Context) ([]ledger.Wallet, error)
	InsertWallet(ctx context.Context, w ledger.Wallet) (ledger.Wallet, error)
	UpdateWallet(ctx context.Context, w ledger.Wallet) (ledger.Wallet, error)
	// DeleteWallet removes the wallet with its transactions and recurring
	// rules and returns the ids of the removed transactions.
	DeleteWallet(ctx context.Context, id int64) ([]int64, error)
}

// CategoryTx covers category rows.
type CategoryTx interface {
	Category(ctx context.Context, id int64) (ledger.Category, error)
	// InsertCategory fails with errs.ErrConflict when key is taken.
	InsertCategory(ctx context.Context, c ledger.Category, key string) (ledger.Category, error)
	UpdateCategory(ctx context.Context, c ledger.Category, key string) (ledger.Category, error)
	// DeleteCategory detaches transactions and rules, deletes the category's
	// budgets, and returns the ids of the detached transactions.
	DeleteCategory(ctx context.Context, id int64) ([]int64, error)
}

// TransactionTx covers transaction rows.
type TransactionTx interface {
	InsertTransaction(ctx context.Context, t ledger.Transaction) (ledger.Transaction, error)
	// LockTransaction reads the stored row and holds it until the unit of work ends.
	LockTransaction(ctx context.Context, id int64) (ledger.Transaction, error)
	UpdateTransaction(ctx context.Context, t ledger.Transaction) (ledger.Transaction, error)
	DeleteTransaction(ctx context.Context, id int64) error
	// ReplayOrder returns every transaction ordered by (date, id).
	ReplayOrder(ctx context.Context) ([]ledger.Transaction, error)
}

// RuleTx covers recurring rule rows.
type RuleTx interface {
	InsertRule(ctx context.Context, r ledger.RecurringRule) (ledger.RecurringRule, error)
	// LockRule returns errs.ErrLocked when another worker holds the row.
	LockRule(ctx context.Context, id int64) (ledger.RecurringRule, error)
	UpdateRule(ctx context.Context, r ledger.RecurringRule) (ledger.RecurringRule, error)
	DeleteRule(ctx context.Context, id int64) error
}

// BudgetTx covers budget rows.
type BudgetTx interface {
	InsertBudget(ctx context.Context, b ledger.Budget) (ledger.Budget, error)
	UpdateBudget(ctx context.Context, b ledger.Budget) (ledger.Budget, error)
	DeleteBudget(ctx context.Context, id int64) error
}

// BalanceTx is the only way wallet balances change.
type BalanceTx interface {
	// ApplyPostings merges the postings per wallet, locks the wallets in
	// ascending id order, records every posting and adds the merged delta to
	// each balance. A missing wallet fails with errs.ErrIntegrity.
	ApplyPostings(ctx context.Context, postings []ledger.Posting) error
	// ResetBalances zeroes every wallet and truncates the posting journal.
	ResetBalances(ctx context.Context) error
}

// Reader is the read side of a store, used outside units of work.
type Reader interface {
	Wallet(ctx context.Context, id int64) (ledger.Wallet, error)
	Wallets(ctx context.Context) ([]ledger.Wallet, error)
	Category(ctx context.Context, id int64) (ledger.Category, error)
	Categories(ctx context.Context) ([]ledger.Category, error)
	Transaction(ctx context.Context, id int64) (ledger.Transaction, error)
	Transactions(ctx context.Context, f ledger.TransactionFilter) ([]ledger.Transaction, error)
	Rule(ctx context.Context, id int64) (ledger.RecurringRule, error)
	Rules(ctx context.Context) ([]ledger.RecurringRule, error)
	// DueRuleIDs lists active rules with next_run_date <= today, by id.
	DueRuleIDs(ctx context.Context, today time.Time) ([]int64, error)
	Budget(ctx context.Context, id int64) (ledger.Budget, error)
	Budgets(ctx context.Context) ([]ledger.Budget, error)
	// OverlappingBudgets lists active budgets of the category whose window
	// intersects [start, end], by id.
	OverlappingBudgets(ctx context.Context, categoryID int64, start, end time.Time) ([]ledger.Budget, error)
	// SpentInCategory sums amounts of the given kinds in [from, to).
	SpentInCategory(ctx context.Context, categoryID int64, kinds []ledger.Kind, from, to time.Time) (decimal.Decimal, error)
	Postings(ctx context.Context, walletID int64) ([]ledger.Posting, error)
}

// IndexMarker records the vector index handle of a transaction.
type IndexMarker interface {
	SetIndexPoint(ctx context.Context, transactionID int64, pointID *int64) error
}

// Store is everything a backing store provides.
type Store interface {
	Transactor
	Reader
	IndexMarker
	Ready(ctx context.Context) error
	Close()
}
