// Package recurring turns due recurring rules into transactions and manages
// the rules themselves.
package recurring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tinoosan/walletledger/internal/errs"
	"github.com/tinoosan/walletledger/internal/events"
	"github.com/tinoosan/walletledger/internal/ledger"
	"github.com/tinoosan/walletledger/internal/metrics"
	"github.com/tinoosan/walletledger/internal/storage"
)

// Repo defines read operations needed by the service.
type Repo interface {
	Rule(ctx context.Context, id int64) (ledger.RecurringRule, error)
	Rules(ctx context.Context) ([]ledger.RecurringRule, error)
	DueRuleIDs(ctx context.Context, today time.Time) ([]int64, error)
}

// Creator records a transaction inside an existing unit of work.
type Creator interface {
	CreateWithin(ctx context.Context, tx storage.Tx, t ledger.Transaction) (ledger.Transaction, error)
}

// Spawned is one transaction created by a pass.
type Spawned struct {
	RuleID        int64     `json:"rule_id"`
	TransactionID int64     `json:"transaction_id"`
	NextRunDate   time.Time `json:"next_run_date"`
}

// Failure is a rule whose unit of work was rolled back.
type Failure struct {
	RuleID int64  `json:"rule_id"`
	Error  string `json:"error"`
}

// Report summarizes one scheduler pass.
type Report struct {
	RunID   string    `json:"run_id"`
	Today   time.Time `json:"today"`
	Spawned []Spawned `json:"spawned"`
	// Skipped rules were locked by another worker, no longer due, or gone.
	Skipped []int64   `json:"skipped"`
	Failed  []Failure `json:"failed"`
}

var errNotDue = errors.New("rule not due")

// RunDue materializes every rule due on today. Each rule runs in its own unit
// of work: the rule row is locked, dueness is re-checked, one transaction is
// created and next_run_date advances by exactly one frequency unit from its
// stored value. A failing rule is rolled back and the pass continues.
func (s *service) RunDue(ctx context.Context, today time.Time) (Report, error) {
	today = ledger.DateOf(today)
	report := Report{RunID: uuid.NewString(), Today: today, Spawned: []Spawned{}, Skipped: []int64{}, Failed: []Failure{}}
	log := s.log.With("run_id", report.RunID)

	ids, err := s.repo.DueRuleIDs(ctx, today)
	if err != nil {
		return report, fmt.Errorf("list due rules: %w", err)
	}
	log.Info("processing recurring rules", "due", len(ids), "today", today.Format(time.DateOnly))

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		sp, err := s.runOne(ctx, id, today)
		switch {
		case err == nil:
			report.Spawned = append(report.Spawned, sp)
			metrics.RecurringSpawned.Inc()
			log.Info("created transaction from recurring rule",
				"rule_id", id,
				"transaction_id", sp.TransactionID,
				"next_run_date", sp.NextRunDate.Format(time.DateOnly))
			s.events.Dispatch(ctx, events.Upsert(sp.TransactionID))
		case errors.Is(err, errs.ErrLocked), errors.Is(err, errNotDue), errors.Is(err, errs.ErrNotFound):
			report.Skipped = append(report.Skipped, id)
			metrics.RecurringSkipped.Inc()
			log.Debug("recurring rule skipped", "rule_id", id, "reason", err)
		default:
			report.Failed = append(report.Failed, Failure{RuleID: id, Error: err.Error()})
			metrics.RecurringFailures.Inc()
			log.Error("recurring rule failed", "rule_id", id, "err", err)
		}
	}

	log.Info("recurring processing complete",
		"spawned", len(report.Spawned),
		"skipped", len(report.Skipped),
		"failed", len(report.Failed))
	return report, nil
}

func (s *service) runOne(ctx context.Context, id int64, today time.Time) (Spawned, error) {
	var sp Spawned
	err := s.tx.WithinTx(ctx, func(tx storage.Tx) error {
		rule, err := tx.LockRule(ctx, id)
		if err != nil {
			return err
		}
		if !rule.DueOn(today) {
			return errNotDue
		}
		if !rule.Frequency.Valid() {
			return fmt.Errorf("rule %d frequency %q: %w", rule.ID, rule.Frequency, errs.ErrInvalid)
		}
		description := rule.Description
		if description == "" {
			description = rule.Name
		}
		ruleID := rule.ID
		created, err := s.journal.CreateWithin(ctx, tx, ledger.Transaction{
			WalletID:        rule.WalletID,
			CategoryID:      rule.CategoryID,
			Amount:          rule.Amount,
			Kind:            rule.Kind,
			Description:     description,
			Date:            today,
			RecurringRuleID: &ruleID,
		})
		if err != nil {
			return err
		}
		rule.NextRunDate = rule.Frequency.Advance(ledger.DateIn(rule.NextRunDate, time.UTC))
		if _, err := tx.UpdateRule(ctx, rule); err != nil {
			return fmt.Errorf("advance rule: %w", err)
		}
		sp = Spawned{RuleID: rule.ID, TransactionID: created.ID, NextRunDate: rule.NextRunDate}
		return nil
	})
	return sp, err
}

// Run performs a pass immediately and then every interval until ctx ends.
func (s *service) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("scheduler interval must be > 0: %w", errs.ErrInvalid)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.pass(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.pass(ctx)
		}
	}
}

func (s *service) pass(ctx context.Context) {
	if _, err := s.RunDue(ctx, s.cfg.Now().In(s.cfg.Location)); err != nil && ctx.Err() == nil {
		s.log.Error("recurring pass failed", "err", err)
	}
}
