// Package balance keeps wallet balances equal to the signed sum of their
// transactions. The Synchronizer runs inside the caller's unit of work on
// every transaction write; Service rebuilds and audits balances offline.
package balance

import (
	"context"
	"fmt"

	"github.com/tinoosan/walletledger/internal/ledger"
	"github.com/tinoosan/walletledger/internal/metrics"
	"github.com/tinoosan/walletledger/internal/storage"
)

// Synchronizer translates transaction writes into postings.
type Synchronizer struct{}

// OnCreate applies t's effect to its wallet.
func (Synchronizer) OnCreate(ctx context.Context, tx storage.BalanceTx, t ledger.Transaction) error {
	if err := tx.ApplyPostings(ctx, []ledger.Posting{ledger.ApplyPosting(t)}); err != nil {
		return fmt.Errorf("apply transaction %d: %w", t.ID, err)
	}
	metrics.BalanceMutations.WithLabelValues("create").Inc()
	return nil
}

// OnUpdate reverts prev's effect and applies next's in one ApplyPostings call,
// so a wallet move locks both wallets together and a same-wallet edit nets out
// on one row. Nothing is written when amount, kind and wallet are unchanged.
func (Synchronizer) OnUpdate(ctx context.Context, tx storage.BalanceTx, prev, next ledger.Transaction) error {
	if prev.WalletID == next.WalletID && prev.Kind == next.Kind && prev.Amount.Equal(next.Amount) {
		return nil
	}
	postings := []ledger.Posting{ledger.RevertPosting(prev), ledger.ApplyPosting(next)}
	if err := tx.ApplyPostings(ctx, postings); err != nil {
		return fmt.Errorf("reapply transaction %d: %w", next.ID, err)
	}
	metrics.BalanceMutations.WithLabelValues("update").Inc()
	return nil
}

// OnDelete reverts t's effect.
func (Synchronizer) OnDelete(ctx context.Context, tx storage.BalanceTx, t ledger.Transaction) error {
	if err := tx.ApplyPostings(ctx, []ledger.Posting{ledger.RevertPosting(t)}); err != nil {
		return fmt.Errorf("revert transaction %d: %w", t.ID, err)
	}
	metrics.BalanceMutations.WithLabelValues("delete").Inc()
	return nil
}
