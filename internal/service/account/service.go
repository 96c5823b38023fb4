// Package account implements the wallet rules: balances are derived and never
// user-editable, deleting a wallet takes its transactions and recurring rules
// with it, and totals split spendable money from savings.
package account

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tinoosan/walletledger/internal/errs"
	"github.com/tinoosan/walletledger/internal/events"
	"github.com/tinoosan/walletledger/internal/ledger"
	"github.com/tinoosan/walletledger/internal/storage"
)

// Repo defines read operations needed by the service.
type Repo interface {
	Wallet(ctx context.Context, id int64) (ledger.Wallet, error)
	Wallets(ctx context.Context) ([]ledger.Wallet, error)
}

// Totals aggregates wallet balances.
type Totals struct {
	// Total sums every wallet.
	Total decimal.Decimal `json:"total"`
	// Available excludes wallets flagged exclude_from_total.
	Available decimal.Decimal `json:"available"`
	Savings   decimal.Decimal `json:"savings"`
	Currency  string          `json:"currency"`
	Wallets   int             `json:"wallets"`
}

// Display renders the totals in the ledger currency.
func (t Totals) Display() map[string]string {
	return map[string]string{
		"total":     ledger.FormatAmount(t.Currency, t.Total),
		"available": ledger.FormatAmount(t.Currency, t.Available),
		"savings":   ledger.FormatAmount(t.Currency, t.Savings),
	}
}

type Service interface {
	ValidateCreate(w ledger.Wallet) error
	Create(ctx context.Context, w ledger.Wallet) (ledger.Wallet, error)
	// Update changes name, type and the exclude flag. Balance is ignored.
	Update(ctx context.Context, w ledger.Wallet) (ledger.Wallet, error)
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (ledger.Wallet, error)
	List(ctx context.Context) ([]ledger.Wallet, error)
	Totals(ctx context.Context) (Totals, error)
}

type service struct {
	tx       storage.Transactor
	repo     Repo
	events   events.Dispatcher
	currency string
	log      *slog.Logger
}

func New(tx storage.Transactor, repo Repo, dispatcher events.Dispatcher, currency string, log *slog.Logger) Service {
	if dispatcher == nil {
		dispatcher = events.Nop{}
	}
	if currency == "" {
		currency = ledger.DefaultCurrency
	}
	if log == nil {
		log = slog.Default()
	}
	return &service{tx: tx, repo: repo, events: dispatcher, currency: strings.ToUpper(currency), log: log}
}

func (s *service) ValidateCreate(w ledger.Wallet) error {
	if strings.TrimSpace(w.Name) == "" {
		return fmt.Errorf("name required: %w", errs.ErrInvalid)
	}
	if w.Type != "" && !w.Type.Valid() {
		return fmt.Errorf("wallet type %q: %w", w.Type, errs.ErrInvalid)
	}
	return nil
}

func (s *service) Create(ctx context.Context, w ledger.Wallet) (ledger.Wallet, error) {
	if err := s.ValidateCreate(w); err != nil {
		return ledger.Wallet{}, err
	}
	w.Name = strings.TrimSpace(w.Name)
	if w.Type == "" {
		w.Type = ledger.WalletTypeCash
	}
	w.Balance = decimal.Zero
	var out ledger.Wallet
	err := s.tx.WithinTx(ctx, func(tx storage.Tx) error {
		var err error
		out, err = tx.InsertWallet(ctx, w)
		return err
	})
	if err != nil {
		return ledger.Wallet{}, err
	}
	s.log.Info("wallet created", "wallet_id", out.ID, "type", out.Type)
	return out, nil
}

func (s *service) Update(ctx context.Context, w ledger.Wallet) (ledger.Wallet, error) {
	if w.ID == 0 {
		return ledger.Wallet{}, fmt.Errorf("id required: %w", errs.ErrInvalid)
	}
	if err := s.ValidateCreate(w); err != nil {
		return ledger.Wallet{}, err
	}
	w.Name = strings.TrimSpace(w.Name)
	var out ledger.Wallet
	err := s.tx.WithinTx(ctx, func(tx storage.Tx) error {
		cur, err := tx.Wallet(ctx, w.ID)
		if err != nil {
			return err
		}
		if w.Type == "" {
			w.Type = cur.Type
		}
		out, err = tx.UpdateWallet(ctx, w)
		return err
	})
	return out, err
}

func (s *service) Delete(ctx context.Context, id int64) error {
	var removed []int64
	err := s.tx.WithinTx(ctx, func(tx storage.Tx) error {
		var err error
		removed, err = tx.DeleteWallet(ctx, id)
		return err
	})
	if err != nil {
		return err
	}
	s.log.Info("wallet deleted", "wallet_id", id, "removed_transactions", len(removed))
	for _, tid := range removed {
		s.events.Dispatch(ctx, events.Remove(tid))
	}
	return nil
}

func (s *service) Get(ctx context.Context, id int64) (ledger.Wallet, error) {
	return s.repo.Wallet(ctx, id)
}

func (s *service) List(ctx context.Context) ([]ledger.Wallet, error) {
	return s.repo.Wallets(ctx)
}

func (s *service) Totals(ctx context.Context) (Totals, error) {
	wallets, err := s.repo.Wallets(ctx)
	if err != nil {
		return Totals{}, err
	}
	t := Totals{Total: decimal.Zero, Available: decimal.Zero, Savings: decimal.Zero, Currency: s.currency, Wallets: len(wallets)}
	for _, w := range wallets {
		t.Total = t.Total.Add(w.Balance)
		if w.ExcludeFromTotal {
			t.Savings = t.Savings.Add(w.Balance)
		} else {
			t.Available = t.Available.Add(w.Balance)
		}
	}
	return t, nil
}
