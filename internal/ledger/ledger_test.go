package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedEffect(t *testing.T) {
	amount := decimal.NewFromInt(100)
	tests := []struct {
		kind Kind
		want int64
	}{
		{KindIncome, 100},
		{KindDebtBorrow, 100},
		{KindDebtCollect, 100},
		{KindExpense, -100},
		{KindDebtLoan, -100},
		{KindDebtRepay, -100},
		{Kind("gift"), 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			got := SignedEffect(tt.kind, amount)
			assert.True(t, got.Equal(decimal.NewFromInt(tt.want)), "got %s", got)
		})
	}
}

func TestPostingsCancelOut(t *testing.T) {
	txn := Transaction{ID: 7, WalletID: 3, Kind: KindExpense, Amount: decimal.RequireFromString("42.10")}
	apply, revert := ApplyPosting(txn), RevertPosting(txn)

	assert.Equal(t, PostingApply, apply.Reason)
	assert.Equal(t, PostingRevert, revert.Reason)
	assert.Equal(t, int64(3), revert.WalletID)
	assert.True(t, apply.Delta.Add(revert.Delta).IsZero())
	assert.True(t, apply.Delta.Equal(decimal.RequireFromString("-42.10")))
}

func TestKindValidation(t *testing.T) {
	for _, k := range Kinds {
		assert.True(t, k.Valid(), k)
	}
	assert.False(t, Kind("transfer").Valid())
	assert.True(t, KindExpense.CountsAsSpend())
	assert.True(t, KindDebtRepay.CountsAsSpend())
	assert.False(t, KindDebtLoan.CountsAsSpend())
	assert.False(t, KindIncome.CountsAsSpend())
}

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func TestFrequencyAdvance(t *testing.T) {
	tests := []struct {
		name string
		f    Frequency
		from time.Time
		want time.Time
	}{
		{"daily", FrequencyDaily, day(2024, 2, 28), day(2024, 2, 29)},
		{"weekly", FrequencyWeekly, day(2024, 12, 28), day(2025, 1, 4)},
		{"monthly", FrequencyMonthly, day(2024, 3, 15), day(2024, 4, 15)},
		{"monthly clamps into leap february", FrequencyMonthly, day(2024, 1, 31), day(2024, 2, 29)},
		{"monthly clamps into short month", FrequencyMonthly, day(2023, 1, 31), day(2023, 2, 28)},
		{"monthly clamps to 30", FrequencyMonthly, day(2024, 3, 31), day(2024, 4, 30)},
		{"monthly over year end", FrequencyMonthly, day(2024, 12, 31), day(2025, 1, 31)},
		{"yearly", FrequencyYearly, day(2023, 6, 1), day(2024, 6, 1)},
		{"yearly from leap day", FrequencyYearly, day(2024, 2, 29), day(2025, 2, 28)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.f.Advance(tt.from))
		})
	}
}

func TestAdvanceCarriesClampedDay(t *testing.T) {
	// Each step starts from the stored date, so a clamped day carries forward.
	d := day(2024, 1, 31)
	d = FrequencyMonthly.Advance(d)
	require.Equal(t, day(2024, 2, 29), d)
	d = FrequencyMonthly.Advance(d)
	assert.Equal(t, day(2024, 3, 29), d)
}

func TestPeriodBounds(t *testing.T) {
	start, end := PeriodMonthly.Bounds(time.Date(2024, 2, 14, 18, 30, 0, 0, time.UTC))
	assert.Equal(t, day(2024, 2, 1), start)
	assert.Equal(t, day(2024, 2, 29), end)

	// 2024-05-15 is a Wednesday.
	start, end = PeriodWeekly.Bounds(day(2024, 5, 15))
	assert.Equal(t, day(2024, 5, 13), start)
	assert.Equal(t, day(2024, 5, 19), end)

	// Sunday belongs to the week that started the previous Monday.
	start, _ = PeriodWeekly.Bounds(day(2024, 5, 19))
	assert.Equal(t, day(2024, 5, 13), start)
}

func TestDateHelpers(t *testing.T) {
	hcm := time.FixedZone("ICT", 7*3600)
	late := time.Date(2024, 3, 10, 23, 15, 0, 0, hcm)

	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, hcm), DateOf(late))
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, hcm), EndOfDay(late))
	assert.Equal(t, day(2024, 3, 10), DateIn(late, time.UTC))
}

func TestRecurringRuleDueOn(t *testing.T) {
	r := RecurringRule{Active: true, NextRunDate: day(2024, 3, 1)}
	hcm := time.FixedZone("ICT", 7*3600)

	assert.True(t, r.DueOn(time.Date(2024, 3, 1, 0, 30, 0, 0, hcm)))
	assert.True(t, r.DueOn(day(2024, 3, 5)))
	assert.False(t, r.DueOn(time.Date(2024, 2, 29, 23, 0, 0, 0, hcm)))

	r.Active = false
	assert.False(t, r.DueOn(day(2024, 3, 5)))
}

func TestTransactionFilterMatch(t *testing.T) {
	cat := int64(2)
	wallet := int64(1)
	from, to := day(2024, 3, 1), day(2024, 4, 1)
	txn := Transaction{WalletID: 1, CategoryID: &cat, Kind: KindExpense, Date: day(2024, 3, 31)}

	assert.True(t, TransactionFilter{}.Match(txn))
	assert.True(t, TransactionFilter{WalletID: &wallet, CategoryID: &cat, Kinds: SpendKinds, From: &from, To: &to}.Match(txn))

	txn.Date = to
	assert.False(t, TransactionFilter{To: &to}.Match(txn), "To is exclusive")
	txn.CategoryID = nil
	assert.False(t, TransactionFilter{CategoryID: &cat}.Match(txn))
	assert.False(t, TransactionFilter{Kinds: []Kind{KindIncome}}.Match(txn))
}

func TestBudgetOverlaps(t *testing.T) {
	b := Budget{StartDate: day(2024, 3, 1), EndDate: day(2024, 3, 31)}
	assert.True(t, b.Overlaps(day(2024, 3, 31), day(2024, 4, 30)))
	assert.True(t, b.Overlaps(day(2024, 2, 1), day(2024, 3, 1)))
	assert.False(t, b.Overlaps(day(2024, 4, 1), day(2024, 4, 30)))

	hcm := time.FixedZone("ICT", 7*3600)
	local := func(m time.Month, d int) time.Time { return time.Date(2024, m, d, 0, 0, 0, 0, hcm) }
	assert.True(t, b.Overlaps(local(2, 1), local(3, 1)), "Mar 1 local is still Mar 1")
	assert.True(t, b.Overlaps(local(3, 31), local(4, 30)))
	assert.False(t, b.Overlaps(local(4, 1), local(4, 30)))
}

func TestFormatAmount(t *testing.T) {
	got := FormatAmount("VND", decimal.NewFromInt(1_500_000))
	assert.Contains(t, got, "VND")
	assert.Contains(t, got, "1500000")

	assert.Equal(t, "12.50 XXZ", FormatAmount("XXZ", decimal.RequireFromString("12.5")))
}
