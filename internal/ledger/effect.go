package ledger

import "github.com/shopspring/decimal"

// SignedEffect is the sign table: the contribution a transaction of the given
// kind and non-negative amount makes to its wallet balance. Every balance
// computation goes through here.
func SignedEffect(kind Kind, amount decimal.Decimal) decimal.Decimal {
	switch kind {
	case KindIncome, KindDebtBorrow, KindDebtCollect:
		return amount
	case KindExpense, KindDebtLoan, KindDebtRepay:
		return amount.Neg()
	default:
		return decimal.Zero
	}
}

// PostingReason records why a delta was written to a wallet.
type PostingReason string

const (
	// PostingApply adds a transaction's effect.
	PostingApply PostingReason = "apply"
	// PostingRevert removes a previously applied effect.
	PostingRevert PostingReason = "revert"
	// PostingReplay re-adds an effect during a full recomputation.
	PostingReplay PostingReason = "replay"
)

// Posting is one signed delta against a wallet. Postings are append-only; a
// wallet's stored balance is their running sum.
type Posting struct {
	ID            int64
	WalletID      int64
	TransactionID int64
	Delta         decimal.Decimal
	Reason        PostingReason
}

// ApplyPosting is the posting that adds t's effect to its wallet.
func ApplyPosting(t Transaction) Posting {
	return Posting{WalletID: t.WalletID, TransactionID: t.ID, Delta: t.Effect(), Reason: PostingApply}
}

// RevertPosting is the posting that removes t's effect from its wallet.
func RevertPosting(t Transaction) Posting {
	return Posting{WalletID: t.WalletID, TransactionID: t.ID, Delta: t.Effect().Neg(), Reason: PostingRevert}
}
