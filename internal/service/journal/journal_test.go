package journal

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
	"github.com/tinoosan/walletledger/internal/events"
	"github.com/tinoosan/walletledger/internal/ledger"
	"github.com/tinoosan/walletledger/internal/service/budget"
	"github.com/tinoosan/walletledger/internal/storage"
	"github.com/tinoosan/walletledger/internal/storage/memory"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type fixture struct {
	store  *memory.Store
	rec    *events.Recorder
	svc    Service
	wallet ledger.Wallet
	other  ledger.Wallet
	food   ledger.Category
}

func setup(t *testing.T) fixture {
	t.Helper()
	f := fixture{store: memory.New(), rec: &events.Recorder{}}
	ctx := context.Background()
	require.NoError(t, f.store.WithinTx(ctx, func(tx storage.Tx) error {
		var err error
		if f.wallet, err = tx.InsertWallet(ctx, ledger.Wallet{Name: "Cash", Type: ledger.WalletTypeCash}); err != nil {
			return err
		}
		if f.other, err = tx.InsertWallet(ctx, ledger.Wallet{Name: "Bank", Type: ledger.WalletTypeBank}); err != nil {
			return err
		}
		f.food, err = tx.InsertCategory(ctx, ledger.Category{Name: "Food"}, "food")
		return err
	}))
	budgets := budget.New(f.store, f.store, budget.Config{}, quiet)
	f.svc = New(f.store, f.store, budgets, f.rec, Config{}, quiet)
	return f
}

func (f fixture) balance(t *testing.T, id int64) decimal.Decimal {
	t.Helper()
	w, err := f.store.Wallet(context.Background(), id)
	require.NoError(t, err)
	return w.Balance
}

func TestCreateUpdateDelete(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, ledger.Transaction{WalletID: f.wallet.ID, Kind: ledger.KindExpense, Amount: decimal.NewFromInt(100), Date: time.Now()})
	require.NoError(t, err)
	assert.Nil(t, res.Budget)
	assert.True(t, f.balance(t, f.wallet.ID).Equal(decimal.NewFromInt(-100)))

	upd := res.Transaction
	upd.WalletID = f.other.ID
	upd.Kind = ledger.KindIncome
	upd.Amount = decimal.NewFromInt(50)
	_, err = f.svc.Update(ctx, upd)
	require.NoError(t, err)
	assert.True(t, f.balance(t, f.wallet.ID).IsZero())
	assert.True(t, f.balance(t, f.other.ID).Equal(decimal.NewFromInt(50)))

	require.NoError(t, f.svc.Delete(ctx, upd.ID))
	assert.True(t, f.balance(t, f.other.ID).IsZero())

	assert.Equal(t, []events.Op{events.OpUpsert, events.OpUpsert, events.OpRemove}, ops(f.rec))
}

func ops(r *events.Recorder) []events.Op {
	out := make([]events.Op, 0)
	for _, e := range r.Events() {
		out = append(out, e.Op)
	}
	return out
}

func TestDeleteMissingStillDispatchesRemove(t *testing.T) {
	f := setup(t)
	err := f.svc.Delete(context.Background(), 4242)
	require.ErrorIs(t, err, errs.ErrNotFound)

	evs := f.rec.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, events.OpRemove, evs[0].Op)
	assert.Equal(t, int64(4242), evs[0].TransactionID)
}

func TestCreateRejectsBadInput(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	missing := int64(999)

	cases := map[string]struct {
		txn  ledger.Transaction
		want error
	}{
		"negative amount":  {ledger.Transaction{WalletID: f.wallet.ID, Kind: ledger.KindIncome, Amount: decimal.NewFromInt(-1)}, errs.ErrInvalid},
		"unknown kind":     {ledger.Transaction{WalletID: f.wallet.ID, Kind: "gift", Amount: decimal.NewFromInt(1)}, errs.ErrInvalid},
		"no wallet":        {ledger.Transaction{Kind: ledger.KindIncome, Amount: decimal.NewFromInt(1)}, errs.ErrInvalid},
		"missing wallet":   {ledger.Transaction{WalletID: 999, Kind: ledger.KindIncome, Amount: decimal.NewFromInt(1)}, errs.ErrIntegrity},
		"missing category": {ledger.Transaction{WalletID: f.wallet.ID, CategoryID: &missing, Kind: ledger.KindIncome, Amount: decimal.NewFromInt(1)}, errs.ErrIntegrity},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tc.txn)
			require.ErrorIs(t, err, tc.want)
		})
	}

	list, err := f.svc.List(ctx, ledger.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.True(t, f.balance(t, f.wallet.ID).IsZero())
	assert.Empty(t, f.rec.Events())
}

func TestUpdateToMissingWalletRollsBack(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	res, err := f.svc.Create(ctx, ledger.Transaction{WalletID: f.wallet.ID, Kind: ledger.KindIncome, Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)

	upd := res.Transaction
	upd.WalletID = 555
	_, err = f.svc.Update(ctx, upd)
	require.ErrorIs(t, err, errs.ErrIntegrity)

	got, err := f.svc.Get(ctx, res.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, f.wallet.ID, got.WalletID)
	assert.True(t, f.balance(t, f.wallet.ID).Equal(decimal.NewFromInt(10)))
	assert.Len(t, f.rec.Events(), 1)
}

func TestCreateReportsBudgetCheck(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	date := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, f.store.WithinTx(ctx, func(tx storage.Tx) error {
		_, err := tx.InsertBudget(ctx, ledger.Budget{
			CategoryID: f.food.ID, Amount: decimal.NewFromInt(1_000_000), Period: ledger.PeriodMonthly,
			StartDate: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), EndDate: time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC), Active: true,
		})
		return err
	}))

	res, err := f.svc.Create(ctx, ledger.Transaction{WalletID: f.wallet.ID, CategoryID: &f.food.ID, Kind: ledger.KindExpense, Amount: decimal.NewFromInt(900_000), Date: date})
	require.NoError(t, err)
	require.NotNil(t, res.Budget)
	assert.Equal(t, budget.TierCaution, res.Budget.Tier)

	// Evaluation happens before the insert and never blocks it.
	res, err = f.svc.Create(ctx, ledger.Transaction{WalletID: f.wallet.ID, CategoryID: &f.food.ID, Kind: ledger.KindExpense, Amount: decimal.NewFromInt(400_000), Date: date})
	require.NoError(t, err)
	require.NotNil(t, res.Budget)
	assert.Equal(t, budget.TierCritical, res.Budget.Tier)
	assert.True(t, res.Budget.CurrentSpent.Equal(decimal.NewFromInt(900_000)))

	// Income is never checked.
	res, err = f.svc.Create(ctx, ledger.Transaction{WalletID: f.wallet.ID, CategoryID: &f.food.ID, Kind: ledger.KindIncome, Amount: decimal.NewFromInt(1), Date: date})
	require.NoError(t, err)
	assert.Nil(t, res.Budget)
}

func TestCreateWithinLeavesDispatchToCaller(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	var created ledger.Transaction
	require.NoError(t, f.store.WithinTx(ctx, func(tx storage.Tx) error {
		var err error
		created, err = f.svc.CreateWithin(ctx, tx, ledger.Transaction{WalletID: f.wallet.ID, Kind: ledger.KindDebtBorrow, Amount: decimal.NewFromInt(70)})
		return err
	}))
	assert.NotZero(t, created.ID)
	assert.False(t, created.Date.IsZero())
	assert.True(t, f.balance(t, f.wallet.ID).Equal(decimal.NewFromInt(70)))
	assert.Empty(t, f.rec.Events())
}

func TestUpdateKeepsDateAndRule(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	date := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	res, err := f.svc.Create(ctx, ledger.Transaction{WalletID: f.wallet.ID, Kind: ledger.KindExpense, Amount: decimal.NewFromInt(5), Date: date})
	require.NoError(t, err)

	upd := res.Transaction
	upd.Date = time.Time{}
	upd.Description = "coffee"
	out, err := f.svc.Update(ctx, upd)
	require.NoError(t, err)
	assert.True(t, out.Date.Equal(date))
	assert.Equal(t, "coffee", out.Description)

	_, err = f.svc.Update(ctx, ledger.Transaction{WalletID: f.wallet.ID, Kind: ledger.KindExpense})
	assert.ErrorIs(t, err, errs.ErrInvalid)
	_, err = f.svc.List(ctx, ledger.TransactionFilter{Limit: -1})
	assert.ErrorIs(t, err, errs.ErrInvalid)
}

func TestConcurrentUpdatesMovingOppositeWays(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	now := time.Now()

	a, err := f.svc.Create(ctx, ledger.Transaction{WalletID: f.wallet.ID, Kind: ledger.KindIncome, Amount: decimal.NewFromInt(100), Date: now})
	require.NoError(t, err)
	b, err := f.svc.Create(ctx, ledger.Transaction{WalletID: f.other.ID, Kind: ledger.KindIncome, Amount: decimal.NewFromInt(70), Date: now})
	require.NoError(t, err)

	// Each worker bounces its own transaction between the two wallets, so the
	// two edits always lock the same wallet pair from opposite ends.
	bounce := func(txn ledger.Transaction, home, away int64) error {
		for i := 0; i < 50; i++ {
			txn.WalletID = away
			if i%2 == 1 {
				txn.WalletID = home
			}
			var err error
			if txn, err = f.svc.Update(ctx, txn); err != nil {
				return err
			}
		}
		return nil
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 2)
	wg.Add(2)
	go func() { defer wg.Done(); errCh <- bounce(a.Transaction, f.wallet.ID, f.other.ID) }()
	go func() { defer wg.Done(); errCh <- bounce(b.Transaction, f.other.ID, f.wallet.ID) }()
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}

	assert.True(t, f.balance(t, f.wallet.ID).Equal(decimal.NewFromInt(100)))
	assert.True(t, f.balance(t, f.other.ID).Equal(decimal.NewFromInt(70)))
}
