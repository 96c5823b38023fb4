// Package journal owns the transaction lifecycle. Every write runs the
// balance synchronizer in the same unit of work as the row change and
// dispatches an index event only after that unit of work commits.
package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tinoosan/walletledger/internal/errs"
	"github.com/tinoosan/walletledger/internal/events"
	"github.com/tinoosan/walletledger/internal/ledger"
	"github.com/tinoosan/walletledger/internal/service/balance"
	"github.com/tinoosan/walletledger/internal/service/budget"
	"github.com/tinoosan/walletledger/internal/storage"
)

// Repo defines read operations needed by the service.
type Repo interface {
	Transaction(ctx context.Context, id int64) (ledger.Transaction, error)
	Transactions(ctx context.Context, f ledger.TransactionFilter) ([]ledger.Transaction, error)
}

// BudgetChecker is the advisory budget evaluation run before spend is recorded.
type BudgetChecker interface {
	CheckBudget(ctx context.Context, categoryID int64, candidate decimal.Decimal, start, end time.Time) (budget.Check, error)
}

// Result is a created transaction plus the budget evaluation it triggered, if any.
type Result struct {
	Transaction ledger.Transaction
	Budget      *budget.Check
}

// Service exposes the transaction lifecycle.
type Service interface {
	Create(ctx context.Context, t ledger.Transaction) (Result, error)
	// CreateWithin inserts t and applies its balance effect inside a unit of
	// work owned by the caller. The caller dispatches the index event after
	// its commit.
	CreateWithin(ctx context.Context, tx storage.Tx, t ledger.Transaction) (ledger.Transaction, error)
	Update(ctx context.Context, t ledger.Transaction) (ledger.Transaction, error)
	// Delete removes the transaction and reverts its effect. A missing id
	// returns errs.ErrNotFound and changes no balance.
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (ledger.Transaction, error)
	List(ctx context.Context, f ledger.TransactionFilter) ([]ledger.Transaction, error)
}

// Config tunes date handling.
type Config struct {
	// Location decides which calendar month a transaction's budget check uses.
	Location *time.Location
	Now      func() time.Time
}

type service struct {
	tx      storage.Transactor
	repo    Repo
	budgets BudgetChecker
	events  events.Dispatcher
	sync    balance.Synchronizer
	cfg     Config
	log     *slog.Logger
}

// New wires the journal. budgets may be nil to skip budget evaluation and
// dispatcher may be nil when indexing is disabled.
func New(tx storage.Transactor, repo Repo, budgets BudgetChecker, dispatcher events.Dispatcher, cfg Config, log *slog.Logger) Service {
	if dispatcher == nil {
		dispatcher = events.Nop{}
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &service{tx: tx, repo: repo, budgets: budgets, events: dispatcher, cfg: cfg, log: log}
}

func validate(t ledger.Transaction) error {
	if t.Amount.IsNegative() {
		return fmt.Errorf("amount must be >= 0: %w", errs.ErrInvalid)
	}
	if !t.Kind.Valid() {
		return fmt.Errorf("kind %q: %w", t.Kind, errs.ErrInvalid)
	}
	if t.WalletID == 0 {
		return fmt.Errorf("wallet_id required: %w", errs.ErrInvalid)
	}
	return nil
}

func (s *service) Create(ctx context.Context, t ledger.Transaction) (Result, error) {
	if err := validate(t); err != nil {
		return Result{}, err
	}
	if t.Date.IsZero() {
		t.Date = s.cfg.Now()
	}
	res := Result{Budget: s.checkBudget(ctx, t)}
	err := s.tx.WithinTx(ctx, func(tx storage.Tx) error {
		var err error
		res.Transaction, err = s.CreateWithin(ctx, tx, t)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	s.log.Info("transaction created",
		"transaction_id", res.Transaction.ID,
		"wallet_id", res.Transaction.WalletID,
		"kind", res.Transaction.Kind,
		"amount", res.Transaction.Amount.String())
	s.events.Dispatch(ctx, events.Upsert(res.Transaction.ID))
	return res, nil
}

// checkBudget runs the advisory check over the calendar month of the
// transaction. Failures are logged and yield no result.
func (s *service) checkBudget(ctx context.Context, t ledger.Transaction) *budget.Check {
	if s.budgets == nil || t.CategoryID == nil || !t.Kind.CountsAsSpend() {
		return nil
	}
	start, end := ledger.PeriodMonthly.Bounds(t.Date.In(s.cfg.Location))
	c, err := s.budgets.CheckBudget(ctx, *t.CategoryID, t.Amount, start, end)
	if err != nil {
		s.log.Warn("budget check failed", "category_id", *t.CategoryID, "err", err)
		return nil
	}
	if !c.HasBudget {
		return nil
	}
	if c.Tier != budget.TierOK {
		s.log.Info("budget threshold reached", "category_id", *t.CategoryID, "budget_id", c.BudgetID, "tier", c.Tier, "percentage", c.Percentage.StringFixed(1))
	}
	return &c
}

func (s *service) CreateWithin(ctx context.Context, tx storage.Tx, t ledger.Transaction) (ledger.Transaction, error) {
	if err := validate(t); err != nil {
		return ledger.Transaction{}, err
	}
	if t.Date.IsZero() {
		t.Date = s.cfg.Now()
	}
	if err := checkReferences(ctx, tx, t); err != nil {
		return ledger.Transaction{}, err
	}
	t.ID = 0
	t.IndexPointID = nil
	created, err := tx.InsertTransaction(ctx, t)
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	if err := s.sync.OnCreate(ctx, tx, created); err != nil {
		return ledger.Transaction{}, err
	}
	return created, nil
}

func checkReferences(ctx context.Context, tx storage.Tx, t ledger.Transaction) error {
	if _, err := tx.Wallet(ctx, t.WalletID); err != nil {
		return errs.AsIntegrity(err)
	}
	if t.CategoryID != nil {
		if _, err := tx.Category(ctx, *t.CategoryID); err != nil {
			return errs.AsIntegrity(err)
		}
	}
	return nil
}

func (s *service) Update(ctx context.Context, t ledger.Transaction) (ledger.Transaction, error) {
	if t.ID == 0 {
		return ledger.Transaction{}, fmt.Errorf("id required: %w", errs.ErrInvalid)
	}
	if err := validate(t); err != nil {
		return ledger.Transaction{}, err
	}
	var out ledger.Transaction
	err := s.tx.WithinTx(ctx, func(tx storage.Tx) error {
		prev, err := tx.LockTransaction(ctx, t.ID)
		if err != nil {
			return err
		}
		if t.Date.IsZero() {
			t.Date = prev.Date
		}
		t.RecurringRuleID = prev.RecurringRuleID
		if err := checkReferences(ctx, tx, t); err != nil {
			return err
		}
		next, err := tx.UpdateTransaction(ctx, t)
		if err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}
		if err := s.sync.OnUpdate(ctx, tx, prev, next); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return ledger.Transaction{}, err
	}
	s.log.Info("transaction updated", "transaction_id", out.ID, "wallet_id", out.WalletID)
	s.events.Dispatch(ctx, events.Upsert(out.ID))
	return out, nil
}

func (s *service) Delete(ctx context.Context, id int64) error {
	err := s.tx.WithinTx(ctx, func(tx storage.Tx) error {
		prev, err := tx.LockTransaction(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteTransaction(ctx, id); err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
		return s.sync.OnDelete(ctx, tx, prev)
	})
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return err
	}
	// The index may still hold a point for an id the ledger no longer has.
	s.events.Dispatch(ctx, events.Remove(id))
	if err == nil {
		s.log.Info("transaction deleted", "transaction_id", id)
	}
	return err
}

func (s *service) Get(ctx context.Context, id int64) (ledger.Transaction, error) {
	return s.repo.Transaction(ctx, id)
}

func (s *service) List(ctx context.Context, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	if f.Limit < 0 || f.Offset < 0 {
		return nil, fmt.Errorf("limit and offset must be >= 0: %w", errs.ErrInvalid)
	}
	return s.repo.Transactions(ctx, f)
}
