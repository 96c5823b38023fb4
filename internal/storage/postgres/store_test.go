package postgres

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tinoosan/walletledger/internal/errs"
	"github.com/tinoosan/walletledger/internal/ledger"
	"github.com/tinoosan/walletledger/internal/service/journal"
	"github.com/tinoosan/walletledger/internal/storage"
)

func getTestDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping Postgres store tests")
	}
	return dsn
}

func mustOpen(t *testing.T, dsn string) *Store {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := MigrateUp(dsn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	truncateAll(t, s)
	t.Cleanup(s.Close)
	return s
}

func truncateAll(t *testing.T, s *Store) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.pool.Exec(ctx, `truncate table wallet_postings, budgets, transactions, recurring_rules, categories, wallets restart identity cascade`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

func mustWallet(t *testing.T, s *Store, name string) ledger.Wallet {
	t.Helper()
	var w ledger.Wallet
	err := s.WithinTx(context.Background(), func(tx storage.Tx) error {
		var err error
		w, err = tx.InsertWallet(context.Background(), ledger.Wallet{Name: name, Type: ledger.WalletTypeBank})
		return err
	})
	if err != nil {
		t.Fatalf("insert wallet: %v", err)
	}
	return w
}

func TestMigrateURL(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@localhost:5432/db?sslmode=disable": "pgx5://u:p@localhost:5432/db?sslmode=disable",
		"postgresql://localhost/db":                        "pgx5://localhost/db",
		"pgx5://localhost/db":                              "pgx5://localhost/db",
	}
	for in, want := range cases {
		if got := migrateURL(in); got != want {
			t.Fatalf("migrateURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStore_TransactionsAndPostings(t *testing.T) {
	s := mustOpen(t, getTestDSN(t))
	ctx := context.Background()
	w := mustWallet(t, s, "Bank")

	var catID int64
	var created ledger.Transaction
	err := s.WithinTx(ctx, func(tx storage.Tx) error {
		c, err := tx.InsertCategory(ctx, ledger.Category{Name: "Food"}, "food")
		if err != nil {
			return err
		}
		catID = c.ID
		created, err = tx.InsertTransaction(ctx, ledger.Transaction{
			WalletID: w.ID, CategoryID: &catID, Kind: ledger.KindExpense,
			Amount: decimal.RequireFromString("125.50"), Description: "lunch",
			Date: time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC),
		})
		if err != nil {
			return err
		}
		return tx.ApplyPostings(ctx, []ledger.Posting{ledger.ApplyPosting(created)})
	})
	if err != nil {
		t.Fatalf("unit of work: %v", err)
	}

	got, err := s.Wallet(ctx, w.ID)
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	if !got.Balance.Equal(decimal.RequireFromString("-125.50")) {
		t.Fatalf("expected balance -125.50, got %s", got.Balance)
	}
	postings, err := s.Postings(ctx, w.ID)
	if err != nil || len(postings) != 1 || postings[0].Reason != ledger.PostingApply {
		t.Fatalf("unexpected postings %+v (err %v)", postings, err)
	}

	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	spent, err := s.SpentInCategory(ctx, catID, ledger.SpendKinds, from, to)
	if err != nil || !spent.Equal(decimal.RequireFromString("125.50")) {
		t.Fatalf("spent = %s (err %v)", spent, err)
	}
	list, err := s.Transactions(ctx, ledger.TransactionFilter{WalletID: &w.ID, From: &from, To: &to})
	if err != nil || len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("unexpected listing %+v (err %v)", list, err)
	}

	point := created.ID
	if err := s.SetIndexPoint(ctx, created.ID, &point); err != nil {
		t.Fatalf("set index point: %v", err)
	}
	txn, _ := s.Transaction(ctx, created.ID)
	if txn.IndexPointID == nil || *txn.IndexPointID != point {
		t.Fatalf("index point not stored: %+v", txn.IndexPointID)
	}
}

func TestStore_IntegrityAndConflict(t *testing.T) {
	s := mustOpen(t, getTestDSN(t))
	ctx := context.Background()

	err := s.WithinTx(ctx, func(tx storage.Tx) error {
		_, err := tx.InsertTransaction(ctx, ledger.Transaction{WalletID: 999, Kind: ledger.KindIncome, Amount: decimal.NewFromInt(1), Date: time.Now()})
		return err
	})
	if !errors.Is(err, errs.ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity, got %v", err)
	}

	err = s.WithinTx(ctx, func(tx storage.Tx) error {
		return tx.ApplyPostings(ctx, []ledger.Posting{{WalletID: 999, Delta: decimal.NewFromInt(1), Reason: ledger.PostingApply}})
	})
	if !errors.Is(err, errs.ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity for missing wallet posting, got %v", err)
	}

	insert := func() error {
		return s.WithinTx(ctx, func(tx storage.Tx) error {
			_, err := tx.InsertCategory(ctx, ledger.Category{Name: "Rent"}, "rent")
			return err
		})
	}
	if err := insert(); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := insert(); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestStore_LockRuleSkipsHeldRow(t *testing.T) {
	s := mustOpen(t, getTestDSN(t))
	ctx := context.Background()
	w := mustWallet(t, s, "Cash")

	var rule ledger.RecurringRule
	err := s.WithinTx(ctx, func(tx storage.Tx) error {
		var err error
		rule, err = tx.InsertRule(ctx, ledger.RecurringRule{
			Name: "Rent", WalletID: w.ID, Amount: decimal.NewFromInt(100), Frequency: ledger.FrequencyMonthly,
			NextRunDate: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), Active: true, Kind: ledger.KindExpense,
		})
		return err
	})
	if err != nil {
		t.Fatalf("insert rule: %v", err)
	}

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.WithinTx(ctx, func(tx storage.Tx) error {
			if _, err := tx.LockRule(ctx, rule.ID); err != nil {
				return err
			}
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	err = s.WithinTx(ctx, func(tx storage.Tx) error {
		_, err := tx.LockRule(ctx, rule.ID)
		return err
	})
	close(release)
	if !errors.Is(err, errs.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("holder: %v", err)
	}

	err = s.WithinTx(ctx, func(tx storage.Tx) error {
		_, err := tx.LockRule(ctx, rule.ID+1000)
		return err
	})
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_OppositeMovesDoNotDeadlock(t *testing.T) {
	s := mustOpen(t, getTestDSN(t))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	a := mustWallet(t, s, "A")
	b := mustWallet(t, s, "B")

	move := func(from, to int64) error {
		return s.WithinTx(ctx, func(tx storage.Tx) error {
			return tx.ApplyPostings(ctx, []ledger.Posting{
				{WalletID: from, Delta: decimal.NewFromInt(-1), Reason: ledger.PostingRevert},
				{WalletID: to, Delta: decimal.NewFromInt(1), Reason: ledger.PostingApply},
			})
		})
	}

	const n = 50
	var wg sync.WaitGroup
	errCh := make(chan error, 2*n)
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); errCh <- move(a.ID, b.ID) }()
		go func() { defer wg.Done(); errCh <- move(b.ID, a.ID) }()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			t.Fatalf("move: %v", err)
		}
	}

	ga, _ := s.Wallet(ctx, a.ID)
	gb, _ := s.Wallet(ctx, b.ID)
	if !ga.Balance.IsZero() || !gb.Balance.IsZero() {
		t.Fatalf("expected both balances zero, got A=%s B=%s", ga.Balance, gb.Balance)
	}
}

func TestStore_DeleteWalletCascades(t *testing.T) {
	s := mustOpen(t, getTestDSN(t))
	ctx := context.Background()
	w := mustWallet(t, s, "Old")

	var ids []int64
	err := s.WithinTx(ctx, func(tx storage.Tx) error {
		for i := 0; i < 2; i++ {
			txn, err := tx.InsertTransaction(ctx, ledger.Transaction{WalletID: w.ID, Kind: ledger.KindIncome, Amount: decimal.NewFromInt(10), Date: time.Now()})
			if err != nil {
				return err
			}
			ids = append(ids, txn.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	var removed []int64
	err = s.WithinTx(ctx, func(tx storage.Tx) error {
		var err error
		removed, err = tx.DeleteWallet(ctx, w.ID)
		return err
	})
	if err != nil {
		t.Fatalf("delete wallet: %v", err)
	}
	if len(removed) != len(ids) || removed[0] != ids[0] || removed[1] != ids[1] {
		t.Fatalf("removed = %v, want %v", removed, ids)
	}
	if _, err := s.Transaction(ctx, ids[0]); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected cascaded transaction to be gone, got %v", err)
	}
}

func TestStore_ConcurrentJournalUpdates(t *testing.T) {
	s := mustOpen(t, getTestDSN(t))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	a := mustWallet(t, s, "A")
	b := mustWallet(t, s, "B")
	jrn := journal.New(s, s, nil, nil, journal.Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	first, err := jrn.Create(ctx, ledger.Transaction{WalletID: a.ID, Kind: ledger.KindIncome, Amount: decimal.NewFromInt(100), Date: time.Now()})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := jrn.Create(ctx, ledger.Transaction{WalletID: b.ID, Kind: ledger.KindExpense, Amount: decimal.NewFromInt(40), Date: time.Now()})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	bounce := func(txn ledger.Transaction, home, away int64) error {
		for i := 0; i < 20; i++ {
			txn.WalletID = away
			if i%2 == 1 {
				txn.WalletID = home
			}
			var err error
			if txn, err = jrn.Update(ctx, txn); err != nil {
				return err
			}
		}
		return nil
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 2)
	wg.Add(2)
	go func() { defer wg.Done(); errCh <- bounce(first.Transaction, a.ID, b.ID) }()
	go func() { defer wg.Done(); errCh <- bounce(second.Transaction, b.ID, a.ID) }()
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			t.Fatalf("update: %v", err)
		}
	}

	ga, _ := s.Wallet(ctx, a.ID)
	gb, _ := s.Wallet(ctx, b.ID)
	if !ga.Balance.Equal(decimal.NewFromInt(100)) || !gb.Balance.Equal(decimal.NewFromInt(-40)) {
		t.Fatalf("expected A=100 B=-40, got A=%s B=%s", ga.Balance, gb.Balance)
	}
}
