package recurring

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tinoosan/walletledger/internal/errs"
	"github.com/tinoosan/walletledger/internal/events"
	"github.com/tinoosan/walletledger/internal/ledger"
	"github.com/tinoosan/walletledger/internal/storage"
)

// Service exposes the scheduler and rule maintenance.
type Service interface {
	RunDue(ctx context.Context, today time.Time) (Report, error)
	Run(ctx context.Context, interval time.Duration) error

	Create(ctx context.Context, r ledger.RecurringRule) (ledger.RecurringRule, error)
	Update(ctx context.Context, r ledger.RecurringRule) (ledger.RecurringRule, error)
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (ledger.RecurringRule, error)
	List(ctx context.Context) ([]ledger.RecurringRule, error)
}

// Config tunes the scheduler clock.
type Config struct {
	// Location decides what "today" is for Run.
	Location *time.Location
	Now      func() time.Time
}

type service struct {
	tx      storage.Transactor
	repo    Repo
	journal Creator
	events  events.Dispatcher
	cfg     Config
	log     *slog.Logger
}

func New(tx storage.Transactor, repo Repo, journal Creator, dispatcher events.Dispatcher, cfg Config, log *slog.Logger) Service {
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
	return &service{tx: tx, repo: repo, journal: journal, events: dispatcher, cfg: cfg, log: log}
}

func validate(r *ledger.RecurringRule) error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return fmt.Errorf("name required: %w", errs.ErrInvalid)
	}
	if r.WalletID == 0 {
		return fmt.Errorf("wallet_id required: %w", errs.ErrInvalid)
	}
	if r.Amount.IsNegative() {
		return fmt.Errorf("amount must be >= 0: %w", errs.ErrInvalid)
	}
	if r.Frequency == "" {
		r.Frequency = ledger.FrequencyMonthly
	}
	if !r.Frequency.Valid() {
		return fmt.Errorf("frequency %q: %w", r.Frequency, errs.ErrInvalid)
	}
	if r.Kind == "" {
		r.Kind = ledger.KindExpense
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("kind %q: %w", r.Kind, errs.ErrInvalid)
	}
	if r.NextRunDate.IsZero() {
		return fmt.Errorf("next_run_date required: %w", errs.ErrInvalid)
	}
	r.NextRunDate = ledger.DateIn(r.NextRunDate, time.UTC)
	return nil
}

func checkReferences(ctx context.Context, tx storage.Tx, r ledger.RecurringRule) error {
	if _, err := tx.Wallet(ctx, r.WalletID); err != nil {
		return errs.AsIntegrity(err)
	}
	if r.CategoryID != nil {
		if _, err := tx.Category(ctx, *r.CategoryID); err != nil {
			return errs.AsIntegrity(err)
		}
	}
	return nil
}

// Create stores a new rule. New rules are always active.
func (s *service) Create(ctx context.Context, r ledger.RecurringRule) (ledger.RecurringRule, error) {
	if err := validate(&r); err != nil {
		return ledger.RecurringRule{}, err
	}
	r.Active = true
	var out ledger.RecurringRule
	err := s.tx.WithinTx(ctx, func(tx storage.Tx) error {
		if err := checkReferences(ctx, tx, r); err != nil {
			return err
		}
		var err error
		out, err = tx.InsertRule(ctx, r)
		return err
	})
	if err != nil {
		return ledger.RecurringRule{}, err
	}
	s.log.Info("recurring rule created", "rule_id", out.ID, "frequency", out.Frequency, "next_run_date", out.NextRunDate.Format(time.DateOnly))
	return out, nil
}

func (s *service) Update(ctx context.Context, r ledger.RecurringRule) (ledger.RecurringRule, error) {
	if r.ID == 0 {
		return ledger.RecurringRule{}, fmt.Errorf("id required: %w", errs.ErrInvalid)
	}
	if err := validate(&r); err != nil {
		return ledger.RecurringRule{}, err
	}
	var out ledger.RecurringRule
	err := s.tx.WithinTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.LockRule(ctx, r.ID); err != nil {
			return err
		}
		if err := checkReferences(ctx, tx, r); err != nil {
			return err
		}
		var err error
		out, err = tx.UpdateRule(ctx, r)
		return err
	})
	return out, err
}

// Delete removes the rule. Transactions it spawned stay and lose the link.
func (s *service) Delete(ctx context.Context, id int64) error {
	return s.tx.WithinTx(ctx, func(tx storage.Tx) error { return tx.DeleteRule(ctx, id) })
}

func (s *service) Get(ctx context.Context, id int64) (ledger.RecurringRule, error) {
	return s.repo.Rule(ctx, id)
}

func (s *service) List(ctx context.Context) ([]ledger.RecurringRule, error) {
	return s.repo.Rules(ctx)
}
