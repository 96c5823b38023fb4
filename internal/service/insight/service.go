// Package insight derives read-only summaries from the ledger: the debt and
// lending position, and categories whose spending jumped this month.
package insight

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/shopspring/decimal"

	"github.com/tinoosan/walletledger/internal/ledger"
)

// Repo defines read operations needed by the service.
type Repo interface {
	Categories(ctx context.Context) ([]ledger.Category, error)
	Transactions(ctx context.Context, f ledger.TransactionFilter) ([]ledger.Transaction, error)
}

// Narrator writes prose. Implemented by the Gemini client.
type Narrator interface {
	GenerateText(ctx context.Context, prompt, systemPrompt string) (string, error)
}

// DebtSummary is the position across all debt kinds.
type DebtSummary struct {
	Borrowed   decimal.Decimal `json:"total_debt_borrow"`
	Repaid     decimal.Decimal `json:"total_debt_repay"`
	NetDebt    decimal.Decimal `json:"net_debt"`
	Lent       decimal.Decimal `json:"total_loan"`
	Collected  decimal.Decimal `json:"total_collect"`
	NetLending decimal.Decimal `json:"net_lending"`
}

// Anomaly is a category spending notably more than its recent average.
type Anomaly struct {
	CategoryID   int64           `json:"category_id"`
	Category     string          `json:"category"`
	CurrentMonth decimal.Decimal `json:"current_month"`
	Average      decimal.Decimal `json:"average"`
	// Increase is the relative increase over Average in percent.
	Increase decimal.Decimal `json:"increase_percentage"`
	Message  string          `json:"message"`
}

// Digest is the anomaly list with an optional generated commentary.
type Digest struct {
	Month     string    `json:"month"`
	Anomalies []Anomaly `json:"anomalies"`
	Summary   string    `json:"summary,omitempty"`
}

type Service interface {
	DebtSummary(ctx context.Context) (DebtSummary, error)
	// Anomalies compares each category's expense so far this month against
	// the average monthly expense of the three previous months.
	Anomalies(ctx context.Context, now time.Time) ([]Anomaly, error)
	Digest(ctx context.Context, now time.Time) (Digest, error)
}

type Config struct {
	// Threshold is the relative increase that counts as an anomaly (0.4 = 40%).
	Threshold float64
	CacheTTL  time.Duration
	Currency  string
	Location  *time.Location
}

type service struct {
	repo     Repo
	narrator Narrator
	cfg      Config
	cache    *expirable.LRU[string, []Anomaly]
	log      *slog.Logger
}

// New builds the service. narrator may be nil.
func New(repo Repo, narrator Narrator, cfg Config, log *slog.Logger) Service {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.4
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	if cfg.Currency == "" {
		cfg.Currency = ledger.DefaultCurrency
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	return &service{
		repo:     repo,
		narrator: narrator,
		cfg:      cfg,
		cache:    expirable.NewLRU[string, []Anomaly](16, nil, cfg.CacheTTL),
		log:      log,
	}
}

func (s *service) DebtSummary(ctx context.Context) (DebtSummary, error) {
	txns, err := s.repo.Transactions(ctx, ledger.TransactionFilter{
		Kinds: []ledger.Kind{ledger.KindDebtBorrow, ledger.KindDebtRepay, ledger.KindDebtLoan, ledger.KindDebtCollect},
	})
	if err != nil {
		return DebtSummary{}, err
	}
	sums := make(map[ledger.Kind]decimal.Decimal, 4)
	for _, t := range txns {
		sums[t.Kind] = sums[t.Kind].Add(t.Amount)
	}
	d := DebtSummary{
		Borrowed:  sums[ledger.KindDebtBorrow],
		Repaid:    sums[ledger.KindDebtRepay],
		Lent:      sums[ledger.KindDebtLoan],
		Collected: sums[ledger.KindDebtCollect],
	}
	d.NetDebt = d.Borrowed.Sub(d.Repaid)
	d.NetLending = d.Lent.Sub(d.Collected)
	return d, nil
}

var three = decimal.NewFromInt(3)

func (s *service) Anomalies(ctx context.Context, now time.Time) ([]Anomaly, error) {
	now = now.In(s.cfg.Location)
	monthStart, _ := ledger.PeriodMonthly.Bounds(now)
	key := monthStart.Format("2006-01")
	if cached, ok := s.cache.Get(key); ok {
		return cached, nil
	}

	from := monthStart.AddDate(0, -3, 0)
	to := now
	txns, err := s.repo.Transactions(ctx, ledger.TransactionFilter{
		Kinds: []ledger.Kind{ledger.KindExpense},
		From:  &from,
		To:    &to,
	})
	if err != nil {
		return nil, err
	}
	current := make(map[int64]decimal.Decimal)
	previous := make(map[int64]decimal.Decimal)
	for _, t := range txns {
		if t.CategoryID == nil {
			continue
		}
		if t.Date.Before(monthStart) {
			previous[*t.CategoryID] = previous[*t.CategoryID].Add(t.Amount)
		} else {
			current[*t.CategoryID] = current[*t.CategoryID].Add(t.Amount)
		}
	}

	cats, err := s.repo.Categories(ctx)
	if err != nil {
		return nil, err
	}
	threshold := decimal.NewFromFloat(s.cfg.Threshold)
	out := make([]Anomaly, 0)
	for _, c := range cats {
		avg := previous[c.ID].Div(three)
		cur := current[c.ID]
		if avg.IsZero() || !cur.IsPositive() {
			continue
		}
		increase := cur.Sub(avg).Div(avg)
		if increase.LessThan(threshold) {
			continue
		}
		pct := increase.Mul(decimal.NewFromInt(100))
		out = append(out, Anomaly{
			CategoryID:   c.ID,
			Category:     c.Name,
			CurrentMonth: cur,
			Average:      avg.Round(2),
			Increase:     pct.Round(1),
			Message: fmt.Sprintf("%s spending this month is up %s%% on the previous three-month average (%s vs %s).",
				c.Name, pct.StringFixed(1), ledger.FormatAmount(s.cfg.Currency, cur), ledger.FormatAmount(s.cfg.Currency, avg)),
		})
	}
	s.cache.Add(key, out)
	return out, nil
}

const digestSystemPrompt = "You are a personal finance assistant. Summarize spending anomalies in two or three short sentences with one practical suggestion. Do not invent numbers."

func (s *service) Digest(ctx context.Context, now time.Time) (Digest, error) {
	anomalies, err := s.Anomalies(ctx, now)
	if err != nil {
		return Digest{}, err
	}
	monthStart, _ := ledger.PeriodMonthly.Bounds(now.In(s.cfg.Location))
	d := Digest{Month: monthStart.Format("2006-01"), Anomalies: anomalies}
	if s.narrator == nil || len(anomalies) == 0 {
		return d, nil
	}
	var b strings.Builder
	for _, a := range anomalies {
		b.WriteString("- ")
		b.WriteString(a.Message)
		b.WriteByte('\n')
	}
	summary, err := s.narrator.GenerateText(ctx, b.String(), digestSystemPrompt)
	if err != nil {
		s.log.Warn("anomaly digest generation failed", "err", err)
		return d, nil
	}
	d.Summary = strings.TrimSpace(summary)
	return d, nil
}
