package balance

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinoosan/walletledger/internal/errs"
	"github.com/tinoosan/walletledger/internal/ledger"
	"github.com/tinoosan/walletledger/internal/storage"
	"github.com/tinoosan/walletledger/internal/storage/memory"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func wallets(t *testing.T, s *memory.Store, names ...string) []ledger.Wallet {
	t.Helper()
	out := make([]ledger.Wallet, 0, len(names))
	require.NoError(t, s.WithinTx(context.Background(), func(tx storage.Tx) error {
		for _, n := range names {
			w, err := tx.InsertWallet(context.Background(), ledger.Wallet{Name: n, Type: ledger.WalletTypeBank})
			if err != nil {
				return err
			}
			out = append(out, w)
		}
		return nil
	}))
	return out
}

func create(t *testing.T, s *memory.Store, txn ledger.Transaction) ledger.Transaction {
	t.Helper()
	var syncer Synchronizer
	require.NoError(t, s.WithinTx(context.Background(), func(tx storage.Tx) error {
		var err error
		if txn, err = tx.InsertTransaction(context.Background(), txn); err != nil {
			return err
		}
		return syncer.OnCreate(context.Background(), tx, txn)
	}))
	return txn
}

func balanceOf(t *testing.T, s *memory.Store, id int64) decimal.Decimal {
	t.Helper()
	w, err := s.Wallet(context.Background(), id)
	require.NoError(t, err)
	return w.Balance
}

func TestSynchronizer_CreateAndDelete(t *testing.T) {
	s := memory.New()
	w := wallets(t, s, "Bank")[0]
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	income := create(t, s, ledger.Transaction{WalletID: w.ID, Kind: ledger.KindIncome, Amount: decimal.NewFromInt(1000), Date: now})
	create(t, s, ledger.Transaction{WalletID: w.ID, Kind: ledger.KindDebtLoan, Amount: decimal.NewFromInt(300), Date: now})
	create(t, s, ledger.Transaction{WalletID: w.ID, Kind: ledger.KindDebtCollect, Amount: decimal.NewFromInt(100), Date: now})
	assert.True(t, balanceOf(t, s, w.ID).Equal(decimal.NewFromInt(800)))

	var syncer Synchronizer
	require.NoError(t, s.WithinTx(context.Background(), func(tx storage.Tx) error {
		prev, err := tx.LockTransaction(context.Background(), income.ID)
		if err != nil {
			return err
		}
		if err := tx.DeleteTransaction(context.Background(), income.ID); err != nil {
			return err
		}
		return syncer.OnDelete(context.Background(), tx, prev)
	}))
	assert.True(t, balanceOf(t, s, w.ID).Equal(decimal.NewFromInt(-200)))

	drift, err := New(s, s, quiet).Audit(context.Background())
	require.NoError(t, err)
	assert.Empty(t, drift)
}

func TestSynchronizer_UpdateMovesBetweenWallets(t *testing.T) {
	s := memory.New()
	ws := wallets(t, s, "A", "B")
	a, b := ws[0], ws[1]
	txn := create(t, s, ledger.Transaction{WalletID: a.ID, Kind: ledger.KindExpense, Amount: decimal.NewFromInt(100), Date: time.Now()})
	require.True(t, balanceOf(t, s, a.ID).Equal(decimal.NewFromInt(-100)))

	next := txn
	next.WalletID = b.ID
	next.Kind = ledger.KindIncome
	next.Amount = decimal.NewFromInt(50)
	var syncer Synchronizer
	require.NoError(t, s.WithinTx(context.Background(), func(tx storage.Tx) error {
		updated, err := tx.UpdateTransaction(context.Background(), next)
		if err != nil {
			return err
		}
		return syncer.OnUpdate(context.Background(), tx, txn, updated)
	}))

	assert.True(t, balanceOf(t, s, a.ID).IsZero())
	assert.True(t, balanceOf(t, s, b.ID).Equal(decimal.NewFromInt(50)))
	postings, _ := s.Postings(context.Background(), a.ID)
	require.Len(t, postings, 2)
	assert.Equal(t, ledger.PostingRevert, postings[1].Reason)
}

func TestSynchronizer_UpdateWithoutEffectChangeWritesNothing(t *testing.T) {
	s := memory.New()
	w := wallets(t, s, "A")[0]
	txn := create(t, s, ledger.Transaction{WalletID: w.ID, Kind: ledger.KindExpense, Amount: decimal.RequireFromString("10.50"), Date: time.Now()})

	next := txn
	next.Description = "renamed"
	next.Amount = decimal.RequireFromString("10.5")
	var syncer Synchronizer
	require.NoError(t, s.WithinTx(context.Background(), func(tx storage.Tx) error {
		return syncer.OnUpdate(context.Background(), tx, txn, next)
	}))
	postings, _ := s.Postings(context.Background(), w.ID)
	assert.Len(t, postings, 1)
}

func TestSynchronizer_MissingWalletIsIntegrityError(t *testing.T) {
	s := memory.New()
	var syncer Synchronizer
	err := s.WithinTx(context.Background(), func(tx storage.Tx) error {
		return syncer.OnCreate(context.Background(), tx, ledger.Transaction{ID: 1, WalletID: 77, Kind: ledger.KindIncome, Amount: decimal.NewFromInt(1)})
	})
	require.ErrorIs(t, err, errs.ErrIntegrity)
}

func TestRecomputeAllRepairsDrift(t *testing.T) {
	s := memory.New()
	ws := wallets(t, s, "A", "B")
	create(t, s, ledger.Transaction{WalletID: ws[0].ID, Kind: ledger.KindIncome, Amount: decimal.NewFromInt(300), Date: time.Now()})
	create(t, s, ledger.Transaction{WalletID: ws[1].ID, Kind: ledger.KindExpense, Amount: decimal.NewFromInt(20), Date: time.Now()})

	// Corrupt A's balance directly.
	require.NoError(t, s.WithinTx(context.Background(), func(tx storage.Tx) error {
		return tx.ApplyPostings(context.Background(), []ledger.Posting{{WalletID: ws[0].ID, Delta: decimal.NewFromInt(-50), Reason: ledger.PostingApply}})
	}))

	svc := New(s, s, quiet)
	drift, err := svc.Audit(context.Background())
	require.NoError(t, err)
	require.Len(t, drift, 1)
	assert.Equal(t, ws[0].ID, drift[0].WalletID)
	assert.True(t, drift[0].Expected.Equal(decimal.NewFromInt(300)))

	report, err := svc.RecomputeAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Replayed)
	assert.Equal(t, 1, report.DriftedCount)
	assert.Len(t, report.Wallets, 2)
	assert.True(t, balanceOf(t, s, ws[0].ID).Equal(decimal.NewFromInt(300)))
	assert.True(t, balanceOf(t, s, ws[1].ID).Equal(decimal.NewFromInt(-20)))

	postings, _ := s.Postings(context.Background(), ws[0].ID)
	require.Len(t, postings, 1)
	assert.Equal(t, ledger.PostingReplay, postings[0].Reason)

	drift, err = svc.Audit(context.Background())
	require.NoError(t, err)
	assert.Empty(t, drift)
}

func TestConcurrentOppositeMoves(t *testing.T) {
	s := memory.New()
	ws := wallets(t, s, "A", "B")

	move := func(from, to int64) error {
		return s.WithinTx(context.Background(), func(tx storage.Tx) error {
			return tx.ApplyPostings(context.Background(), []ledger.Posting{
				{WalletID: from, Delta: decimal.NewFromInt(-1), Reason: ledger.PostingRevert},
				{WalletID: to, Delta: decimal.NewFromInt(1), Reason: ledger.PostingApply},
			})
		})
	}

	const n = 100
	var wg sync.WaitGroup
	errCh := make(chan error, 2*n)
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); errCh <- move(ws[0].ID, ws[1].ID) }()
		go func() { defer wg.Done(); errCh <- move(ws[1].ID, ws[0].ID) }()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}
	assert.True(t, balanceOf(t, s, ws[0].ID).IsZero())
	assert.True(t, balanceOf(t, s, ws[1].ID).IsZero())
}

// orderedStore records the order of reads inside a unit of work.
type orderedStore struct {
	*memory.Store
	calls *[]string
}

func (s orderedStore) WithinTx(ctx context.Context, fn func(storage.Tx) error) error {
	return s.Store.WithinTx(ctx, func(tx storage.Tx) error { return fn(orderedTx{tx, s.calls}) })
}

type orderedTx struct {
	storage.Tx
	calls *[]string
}

func (t orderedTx) ReplayOrder(ctx context.Context) ([]ledger.Transaction, error) {
	*t.calls = append(*t.calls, "replay")
	return t.Tx.ReplayOrder(ctx)
}

func (t orderedTx) Wallets(ctx context.Context) ([]ledger.Wallet, error) {
	*t.calls = append(*t.calls, "wallets")
	return t.Tx.Wallets(ctx)
}

func TestRecomputeAll_LocksBeforeReadingBalances(t *testing.T) {
	s := memory.New()
	w := wallets(t, s, "Bank")[0]
	create(t, s, ledger.Transaction{WalletID: w.ID, Kind: ledger.KindIncome, Amount: decimal.NewFromInt(10), Date: time.Now()})

	var calls []string
	svc := New(orderedStore{Store: s, calls: &calls}, s, quiet)
	report, err := svc.RecomputeAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.DriftedCount)
	require.NotEmpty(t, calls)
	assert.Equal(t, "replay", calls[0])
}
