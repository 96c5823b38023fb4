// Package budget evaluates spending against category budgets. Evaluation is
// advisory: it reports a tier and a message and never blocks a write.
package budget

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tinoosan/walletledger/internal/errs"
	"github.com/tinoosan/walletledger/internal/ledger"
	"github.com/tinoosan/walletledger/internal/metrics"
	"github.com/tinoosan/walletledger/internal/storage"
)

// Repo defines read operations needed by the service.
type Repo interface {
	Category(ctx context.Context, id int64) (ledger.Category, error)
	Budget(ctx context.Context, id int64) (ledger.Budget, error)
	Budgets(ctx context.Context) ([]ledger.Budget, error)
	OverlappingBudgets(ctx context.Context, categoryID int64, start, end time.Time) ([]ledger.Budget, error)
	SpentInCategory(ctx context.Context, categoryID int64, kinds []ledger.Kind, from, to time.Time) (decimal.Decimal, error)
}

// Check is the outcome of evaluating a candidate amount against a budget.
type Check struct {
	HasBudget      bool            `json:"has_budget"`
	BudgetID       int64           `json:"budget_id,omitempty"`
	BudgetAmount   decimal.Decimal `json:"budget_amount"`
	CurrentSpent   decimal.Decimal `json:"current_spent"`
	ProjectedTotal decimal.Decimal `json:"projected_total"`
	Percentage     decimal.Decimal `json:"percentage"`
	Remaining      decimal.Decimal `json:"remaining"`
	Tier           Tier            `json:"tier"`
	Message        string          `json:"message,omitempty"`
}

// Status is a budget's standing from actual spend only.
type Status struct {
	Budget     ledger.Budget   `json:"budget"`
	Category   string          `json:"category"`
	Spent      decimal.Decimal `json:"spent"`
	Remaining  decimal.Decimal `json:"remaining"`
	Percentage decimal.Decimal `json:"percentage"`
	Tier       Tier            `json:"tier"`
}

// Service exposes budget evaluation and budget maintenance.
type Service interface {
	// CheckBudget evaluates adding candidate to the spend of the first active
	// budget of the category (lowest id) overlapping [start, end].
	CheckBudget(ctx context.Context, categoryID int64, candidate decimal.Decimal, start, end time.Time) (Check, error)
	GetStatus(ctx context.Context, b ledger.Budget) (Status, error)
	Statuses(ctx context.Context) ([]Status, error)

	Create(ctx context.Context, b ledger.Budget) (ledger.Budget, error)
	Update(ctx context.Context, b ledger.Budget) (ledger.Budget, error)
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (ledger.Budget, error)
	List(ctx context.Context) ([]ledger.Budget, error)
}

// Config tunes how amounts and dates are interpreted.
type Config struct {
	// Currency is used in messages. Defaults to ledger.DefaultCurrency.
	Currency string
	// Location anchors budget dates to local midnights. Defaults to UTC.
	Location *time.Location
	// Now defaults to time.Now.
	Now func() time.Time
}

type service struct {
	tx   storage.Transactor
	repo Repo
	cfg  Config
	log  *slog.Logger
}

func New(tx storage.Transactor, repo Repo, cfg Config, log *slog.Logger) Service {
	if cfg.Currency == "" {
		cfg.Currency = ledger.DefaultCurrency
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
	return &service{tx: tx, repo: repo, cfg: cfg, log: log}
}

func (s *service) CheckBudget(ctx context.Context, categoryID int64, candidate decimal.Decimal, start, end time.Time) (Check, error) {
	budgets, err := s.repo.OverlappingBudgets(ctx, categoryID, ledger.DateOf(start), ledger.DateOf(end))
	if err != nil {
		return Check{}, fmt.Errorf("find budget: %w", err)
	}
	if len(budgets) == 0 {
		return Check{Tier: TierOK}, nil
	}
	b := budgets[0]
	spent, err := s.spent(ctx, b)
	if err != nil {
		return Check{}, err
	}
	projected := spent.Add(candidate)
	pct := percentOf(projected, b.Amount)
	c := Check{
		HasBudget:      true,
		BudgetID:       b.ID,
		BudgetAmount:   b.Amount,
		CurrentSpent:   spent,
		ProjectedTotal: projected,
		Percentage:     pct,
		Remaining:      b.Amount.Sub(projected),
		Tier:           TierFor(pct),
	}
	c.Message = s.message(c)
	metrics.BudgetChecks.WithLabelValues(string(c.Tier)).Inc()
	return c, nil
}

func (s *service) message(c Check) string {
	pct := c.Percentage.StringFixed(1)
	switch c.Tier {
	case TierCritical:
		return fmt.Sprintf("Critical: this transaction brings spending to %s, %s%% of the %s budget.",
			s.format(c.ProjectedTotal), pct, s.format(c.BudgetAmount))
	case TierWarning:
		return fmt.Sprintf("Warning: this transaction exceeds the %s budget (projected %s, %s%%).",
			s.format(c.BudgetAmount), s.format(c.ProjectedTotal), pct)
	case TierCaution:
		return fmt.Sprintf("Caution: %s%% of the budget used (projected %s). %s remaining.",
			pct, s.format(c.ProjectedTotal), s.format(c.Remaining))
	default:
		return ""
	}
}

func (s *service) format(d decimal.Decimal) string { return ledger.FormatAmount(s.cfg.Currency, d) }

// spent sums spend kinds over the budget's own window, end day included.
func (s *service) spent(ctx context.Context, b ledger.Budget) (decimal.Decimal, error) {
	from := ledger.DateIn(b.StartDate, s.cfg.Location)
	to := ledger.EndOfDay(ledger.DateIn(b.EndDate, s.cfg.Location))
	spent, err := s.repo.SpentInCategory(ctx, b.CategoryID, ledger.SpendKinds, from, to)
	if err != nil {
		return decimal.Zero, fmt.Errorf("budget %d spent: %w", b.ID, err)
	}
	return spent, nil
}

func (s *service) GetStatus(ctx context.Context, b ledger.Budget) (Status, error) {
	spent, err := s.spent(ctx, b)
	if err != nil {
		return Status{}, err
	}
	pct := percentOf(spent, b.Amount)
	st := Status{
		Budget:     b,
		Spent:      spent,
		Remaining:  b.Amount.Sub(spent),
		Percentage: pct,
		Tier:       TierFor(pct),
	}
	if c, err := s.repo.Category(ctx, b.CategoryID); err == nil {
		st.Category = c.Name
	}
	return st, nil
}

func (s *service) Statuses(ctx context.Context) ([]Status, error) {
	budgets, err := s.repo.Budgets(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Status, 0, len(budgets))
	for _, b := range budgets {
		if !b.Active {
			continue
		}
		st, err := s.GetStatus(ctx, b)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *service) validate(b *ledger.Budget) error {
	if b.CategoryID == 0 {
		return fmt.Errorf("category_id required: %w", errs.ErrInvalid)
	}
	if b.Amount.IsNegative() {
		return fmt.Errorf("amount must be >= 0: %w", errs.ErrInvalid)
	}
	if b.Period == "" {
		b.Period = ledger.PeriodMonthly
	}
	if !b.Period.Valid() {
		return fmt.Errorf("period %q: %w", b.Period, errs.ErrInvalid)
	}
	if b.StartDate.IsZero() && b.EndDate.IsZero() {
		b.StartDate, b.EndDate = b.Period.Bounds(s.cfg.Now().In(s.cfg.Location))
	}
	if b.StartDate.IsZero() || b.EndDate.IsZero() {
		return fmt.Errorf("start_date and end_date required: %w", errs.ErrInvalid)
	}
	b.StartDate, b.EndDate = ledger.DateIn(b.StartDate, time.UTC), ledger.DateIn(b.EndDate, time.UTC)
	if b.StartDate.After(b.EndDate) {
		return fmt.Errorf("start_date after end_date: %w", errs.ErrInvalid)
	}
	return nil
}

func (s *service) Create(ctx context.Context, b ledger.Budget) (ledger.Budget, error) {
	if err := s.validate(&b); err != nil {
		return ledger.Budget{}, err
	}
	var out ledger.Budget
	err := s.tx.WithinTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.Category(ctx, b.CategoryID); err != nil {
			return errs.AsIntegrity(err)
		}
		var err error
		out, err = tx.InsertBudget(ctx, b)
		return err
	})
	return out, err
}

func (s *service) Update(ctx context.Context, b ledger.Budget) (ledger.Budget, error) {
	if b.ID == 0 {
		return ledger.Budget{}, errs.ErrInvalid
	}
	if err := s.validate(&b); err != nil {
		return ledger.Budget{}, err
	}
	var out ledger.Budget
	err := s.tx.WithinTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.Category(ctx, b.CategoryID); err != nil {
			return errs.AsIntegrity(err)
		}
		var err error
		out, err = tx.UpdateBudget(ctx, b)
		return err
	})
	return out, err
}

func (s *service) Delete(ctx context.Context, id int64) error {
	return s.tx.WithinTx(ctx, func(tx storage.Tx) error { return tx.DeleteBudget(ctx, id) })
}

func (s *service) Get(ctx context.Context, id int64) (ledger.Budget, error) {
	return s.repo.Budget(ctx, id)
}

func (s *service) List(ctx context.Context) ([]ledger.Budget, error) {
	return s.repo.Budgets(ctx)
}
