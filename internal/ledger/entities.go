package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// WalletType enumerates the instrument a wallet represents.
type WalletType string

const (
	WalletTypeCash       WalletType = "cash"
	WalletTypeBank       WalletType = "bank"
	WalletTypeCreditCard WalletType = "credit_card"
	WalletTypeEWallet    WalletType = "e_wallet"
)

// Valid reports whether t is a known wallet type.
func (t WalletType) Valid() bool {
	switch t {
	case WalletTypeCash, WalletTypeBank, WalletTypeCreditCard, WalletTypeEWallet:
		return true
	}
	return false
}

// Kind identifies what a transaction does to its wallet. See SignedEffect.
type Kind string

const (
	// KindExpense is money spent.
	KindExpense Kind = "expense"
	// KindIncome is money earned.
	KindIncome Kind = "income"
	// KindDebtLoan is money lent out to a counterparty.
	KindDebtLoan Kind = "debt_loan"
	// KindDebtBorrow is money borrowed in from a counterparty.
	KindDebtBorrow Kind = "debt_borrow"
	// KindDebtCollect is a loan repayment received.
	KindDebtCollect Kind = "debt_collect"
	// KindDebtRepay is a debt repayment paid.
	KindDebtRepay Kind = "debt_repay"
)

// Kinds lists every transaction kind in a stable order.
var Kinds = []Kind{KindExpense, KindIncome, KindDebtLoan, KindDebtBorrow, KindDebtCollect, KindDebtRepay}

// Valid reports whether k is a known transaction kind.
func (k Kind) Valid() bool {
	for _, v := range Kinds {
		if v == k {
			return true
		}
	}
	return false
}

// CountsAsSpend reports whether transactions of kind k consume budget.
func (k Kind) CountsAsSpend() bool { return k == KindExpense || k == KindDebtRepay }

// SpendKinds are the kinds summed into a budget's spent amount.
var SpendKinds = []Kind{KindExpense, KindDebtRepay}

// Period is the length of a budget window.
type Period string

const (
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// Valid reports whether p is a known period.
func (p Period) Valid() bool { return p == PeriodWeekly || p == PeriodMonthly }

// Frequency is how often a recurring rule fires.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
		return true
	}
	return false
}

// Wallet holds money. Balance is derived: it always equals the sum of the
// signed effects of the transactions attributed to the wallet, and is only
// written through postings.
type Wallet struct {
	ID   int64
	Name string
	Type WalletType
	// Balance is maintained by the balance synchronizer; user edits never set it.
	Balance decimal.Decimal
	// ExcludeFromTotal keeps the wallet (e.g. savings) out of the "available" total.
	ExcludeFromTotal bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Category labels transactions and scopes budgets.
type Category struct {
	ID          int64
	Name        string
	Icon        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Transaction is a single movement of money on one wallet.
type Transaction struct {
	ID     int64
	Amount decimal.Decimal
	Kind   Kind
	// WalletID is required.
	WalletID int64
	// CategoryID is nil when uncategorized or when the category was deleted.
	CategoryID   *int64
	Counterparty string
	Description  string
	Date         time.Time
	// RecurringRuleID links transactions spawned by the scheduler to their rule.
	RecurringRuleID *int64
	// IndexPointID is the vector index handle, set once indexing succeeded.
	IndexPointID *int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Effect returns the signed contribution of t to its wallet.
func (t Transaction) Effect() decimal.Decimal { return SignedEffect(t.Kind, t.Amount) }

// Budget caps spending in a category over an explicit window.
type Budget struct {
	ID         int64
	CategoryID int64
	Amount     decimal.Decimal
	Period     Period
	StartDate  time.Time
	EndDate    time.Time
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Overlaps reports whether the budget window intersects [start, end]. Both
// sides compare as calendar dates, whatever zone they carry.
func (b Budget) Overlaps(start, end time.Time) bool {
	from, to := DateIn(start, time.UTC), DateIn(end, time.UTC)
	return !DateIn(b.StartDate, time.UTC).After(to) && !DateIn(b.EndDate, time.UTC).Before(from)
}

// RecurringRule is a template the scheduler turns into transactions.
type RecurringRule struct {
	ID          int64
	Name        string
	WalletID    int64
	CategoryID  *int64
	Amount      decimal.Decimal
	Frequency   Frequency
	NextRunDate time.Time
	Active      bool
	Kind        Kind
	// Description is copied to spawned transactions; Name is used when empty.
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DueOn reports whether the rule should fire on the given day. Only the
// calendar dates are compared.
func (r RecurringRule) DueOn(today time.Time) bool {
	return r.Active && !DateIn(r.NextRunDate, time.UTC).After(DateIn(today, time.UTC))
}

// TransactionFilter narrows transaction listings. Zero values mean "any".
// From is inclusive and To exclusive. Limit 0 means no limit.
type TransactionFilter struct {
	WalletID   *int64
	CategoryID *int64
	Kinds      []Kind
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

// Match reports whether t passes every set criterion of f.
func (f TransactionFilter) Match(t Transaction) bool {
	if f.WalletID != nil && t.WalletID != *f.WalletID {
		return false
	}
	if f.CategoryID != nil && (t.CategoryID == nil || *t.CategoryID != *f.CategoryID) {
		return false
	}
	if len(f.Kinds) > 0 {
		ok := false
		for _, k := range f.Kinds {
			if k == t.Kind {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.From != nil && t.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && !t.Date.Before(*f.To) {
		return false
	}
	return true
}
