package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinoosan/walletledger/internal/ledger"
	"github.com/tinoosan/walletledger/internal/metrics"
)

// Bridge writes transactions to the vector index.
type Bridge struct {
	emb     Embedder
	idx     VectorIndex
	timeout time.Duration
	log     *slog.Logger
}

// NewBridge wires an embedder and an index. timeout bounds each embedding call.
func NewBridge(emb Embedder, idx VectorIndex, timeout time.Duration, log *slog.Logger) *Bridge {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{emb: emb, idx: idx, timeout: timeout, log: log}
}

// Upsert indexes t. Transactions without a description are not indexed and
// any point left from an earlier version is removed; indexed reports which
// case happened.
func (b *Bridge) Upsert(ctx context.Context, t ledger.Transaction, category string) (indexed bool, err error) {
	if t.Description == "" {
		if err := b.Remove(ctx, t.ID); err != nil {
			return false, err
		}
		metrics.IndexSync.WithLabelValues("upsert", "skipped").Inc()
		return false, nil
	}
	vec, err := b.embed(ctx, Document(t, category))
	if err != nil {
		metrics.IndexSync.WithLabelValues("upsert", "error").Inc()
		return false, fmt.Errorf("embed transaction %d: %w", t.ID, err)
	}
	if err := b.idx.Upsert(ctx, Point{ID: PointID(t.ID), Vector: vec, Payload: PayloadFor(t, category)}); err != nil {
		metrics.IndexSync.WithLabelValues("upsert", "error").Inc()
		return false, fmt.Errorf("upsert point %d: %w", t.ID, err)
	}
	metrics.IndexSync.WithLabelValues("upsert", "ok").Inc()
	return true, nil
}

// Remove deletes the point of a transaction. An absent point is not an error.
func (b *Bridge) Remove(ctx context.Context, transactionID int64) error {
	if err := b.idx.Delete(ctx, PointID(transactionID)); err != nil {
		metrics.IndexSync.WithLabelValues("remove", "error").Inc()
		return fmt.Errorf("delete point %d: %w", transactionID, err)
	}
	metrics.IndexSync.WithLabelValues("remove", "ok").Inc()
	return nil
}

// Search embeds query and returns the closest transactions scoring at least threshold.
func (b *Bridge) Search(ctx context.Context, query string, limit uint64, threshold float32) ([]Hit, error) {
	if limit == 0 {
		limit = 10
	}
	vec, err := b.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return b.idx.Search(ctx, vec, limit, threshold)
}

func (b *Bridge) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.emb.Embed(ctx, text)
}
