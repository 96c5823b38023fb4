package balance

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/tinoosan/walletledger/internal/ledger"
	"github.com/tinoosan/walletledger/internal/metrics"
	"github.com/tinoosan/walletledger/internal/storage"
)

// Repo defines read operations needed by the service.
type Repo interface {
	Wallets(ctx context.Context) ([]ledger.Wallet, error)
	Transactions(ctx context.Context, f ledger.TransactionFilter) ([]ledger.Transaction, error)
}

// WalletDrift compares a stored balance with the one derived from transactions.
type WalletDrift struct {
	WalletID int64           `json:"wallet_id"`
	Name     string          `json:"name"`
	Stored   decimal.Decimal `json:"stored"`
	Expected decimal.Decimal `json:"expected"`
}

// Drifted reports whether the stored balance was wrong.
func (d WalletDrift) Drifted() bool { return !d.Stored.Equal(d.Expected) }

// RecomputeReport describes a full rebuild.
type RecomputeReport struct {
	Wallets      []WalletDrift `json:"wallets"`
	Replayed     int           `json:"replayed"`
	DriftedCount int           `json:"drifted"`
}

// Service rebuilds and audits wallet balances.
type Service interface {
	// RecomputeAll zeroes every wallet and replays all transactions in
	// (date, id) order inside one unit of work.
	RecomputeAll(ctx context.Context) (RecomputeReport, error)
	// Audit compares stored balances against transaction sums without writing.
	Audit(ctx context.Context) ([]WalletDrift, error)
}

type service struct {
	tx   storage.Transactor
	repo Repo
	log  *slog.Logger
}

func New(tx storage.Transactor, repo Repo, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &service{tx: tx, repo: repo, log: log}
}

func (s *service) RecomputeAll(ctx context.Context) (RecomputeReport, error) {
	var report RecomputeReport
	err := s.tx.WithinTx(ctx, func(tx storage.Tx) error {
		report = RecomputeReport{}
		txns, err := tx.ReplayOrder(ctx)
		if err != nil {
			return err
		}
		// Read stored balances only once writers are blocked.
		before, err := tx.Wallets(ctx)
		if err != nil {
			return err
		}
		if err := tx.ResetBalances(ctx); err != nil {
			return fmt.Errorf("reset balances: %w", err)
		}
		for _, t := range txns {
			p := ledger.ApplyPosting(t)
			p.Reason = ledger.PostingReplay
			if err := tx.ApplyPostings(ctx, []ledger.Posting{p}); err != nil {
				return fmt.Errorf("replay transaction %d: %w", t.ID, err)
			}
		}
		after, err := tx.Wallets(ctx)
		if err != nil {
			return err
		}
		expected := make(map[int64]decimal.Decimal, len(after))
		for _, w := range after {
			expected[w.ID] = w.Balance
		}
		for _, w := range before {
			d := WalletDrift{WalletID: w.ID, Name: w.Name, Stored: w.Balance, Expected: expected[w.ID]}
			if d.Drifted() {
				report.DriftedCount++
			}
			report.Wallets = append(report.Wallets, d)
		}
		report.Replayed = len(txns)
		return nil
	})
	if err != nil {
		return RecomputeReport{}, err
	}
	metrics.BalanceMutations.WithLabelValues("replay").Add(float64(report.Replayed))
	metrics.BalanceDrift.Set(float64(report.DriftedCount))
	s.log.Info("balances recomputed", "wallets", len(report.Wallets), "replayed", report.Replayed, "drifted", report.DriftedCount)
	return report, nil
}

func (s *service) Audit(ctx context.Context) ([]WalletDrift, error) {
	wallets, err := s.repo.Wallets(ctx)
	if err != nil {
		return nil, err
	}
	txns, err := s.repo.Transactions(ctx, ledger.TransactionFilter{})
	if err != nil {
		return nil, err
	}
	sums := make(map[int64]decimal.Decimal, len(wallets))
	for _, t := range txns {
		sums[t.WalletID] = sums[t.WalletID].Add(t.Effect())
	}
	out := make([]WalletDrift, 0)
	for _, w := range wallets {
		d := WalletDrift{WalletID: w.ID, Name: w.Name, Stored: w.Balance, Expected: sums[w.ID]}
		if d.Drifted() {
			s.log.Warn("wallet balance drift", "wallet_id", w.ID, "stored", d.Stored.String(), "expected", d.Expected.String())
			out = append(out, d)
		}
	}
	metrics.BalanceDrift.Set(float64(len(out)))
	return out, nil
}
