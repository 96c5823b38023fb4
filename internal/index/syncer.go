package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tinoosan/walletledger/internal/errs"
	"github.com/tinoosan/walletledger/internal/events"
	"github.com/tinoosan/walletledger/internal/ledger"
	"github.com/tinoosan/walletledger/internal/storage"
)

// Repo defines read operations needed by the syncer.
type Repo interface {
	Transaction(ctx context.Context, id int64) (ledger.Transaction, error)
	Transactions(ctx context.Context, f ledger.TransactionFilter) ([]ledger.Transaction, error)
	Category(ctx context.Context, id int64) (ledger.Category, error)
}

// Syncer reconciles the index with the ledger's current state for each event.
// Events carry only ids, so handling is idempotent and order-insensitive.
type Syncer struct {
	repo   Repo
	marker storage.IndexMarker
	bridge *Bridge
	log    *slog.Logger
}

func NewSyncer(repo Repo, marker storage.IndexMarker, bridge *Bridge, log *slog.Logger) *Syncer {
	if log == nil {
		log = slog.Default()
	}
	return &Syncer{repo: repo, marker: marker, bridge: bridge, log: log}
}

var _ events.Handler = (*Syncer)(nil)

// Handle applies one event. The returned error is for transports that can
// retry; the ledger never sees it.
func (s *Syncer) Handle(ctx context.Context, e events.Event) error {
	var err error
	switch e.Op {
	case events.OpRemove:
		err = s.bridge.Remove(ctx, e.TransactionID)
	case events.OpUpsert:
		err = s.upsert(ctx, e.TransactionID)
	default:
		err = fmt.Errorf("unknown op %q", e.Op)
	}
	if err != nil {
		s.log.Warn("index sync failed", "op", e.Op, "transaction_id", e.TransactionID, "err", err)
	}
	return err
}

func (s *Syncer) upsert(ctx context.Context, id int64) error {
	t, err := s.repo.Transaction(ctx, id)
	if errors.Is(err, errs.ErrNotFound) {
		return s.bridge.Remove(ctx, id)
	}
	if err != nil {
		return err
	}
	return s.sync(ctx, t)
}

func (s *Syncer) sync(ctx context.Context, t ledger.Transaction) error {
	category := ""
	if t.CategoryID != nil {
		c, err := s.repo.Category(ctx, *t.CategoryID)
		switch {
		case err == nil:
			category = c.Name
		case !errors.Is(err, errs.ErrNotFound):
			return err
		}
	}
	indexed, err := s.bridge.Upsert(ctx, t, category)
	if err != nil {
		return err
	}
	if s.marker == nil {
		return nil
	}
	switch {
	case indexed && t.IndexPointID == nil:
		id := t.ID
		return s.marker.SetIndexPoint(ctx, t.ID, &id)
	case !indexed && t.IndexPointID != nil:
		return s.marker.SetIndexPoint(ctx, t.ID, nil)
	}
	return nil
}

// ReindexReport counts the outcome of a full reindex.
type ReindexReport struct {
	Total  int `json:"total"`
	Failed int `json:"failed"`
}

// Reindex re-upserts every transaction. Individual failures are counted and
// the run continues.
func (s *Syncer) Reindex(ctx context.Context) (ReindexReport, error) {
	txns, err := s.repo.Transactions(ctx, ledger.TransactionFilter{})
	if err != nil {
		return ReindexReport{}, err
	}
	rep := ReindexReport{Total: len(txns)}
	for _, t := range txns {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if err := s.sync(ctx, t); err != nil {
			rep.Failed++
			s.log.Warn("reindex transaction failed", "transaction_id", t.ID, "err", err)
		}
	}
	s.log.Info("reindex complete", "total", rep.Total, "failed", rep.Failed)
	return rep, nil
}
