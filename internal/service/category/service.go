// Package category maintains categories. Names are unique by their folded
// key; deleting a category detaches its transactions and drops its budgets.
package category

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tinoosan/walletledger/internal/dictionary"
	"github.com/tinoosan/walletledger/internal/errs"
	"github.com/tinoosan/walletledger/internal/events"
	"github.com/tinoosan/walletledger/internal/ledger"
	"github.com/tinoosan/walletledger/internal/slug"
	"github.com/tinoosan/walletledger/internal/storage"
)

// Repo defines read operations needed by the service.
type Repo interface {
	Category(ctx context.Context, id int64) (ledger.Category, error)
	Categories(ctx context.Context) ([]ledger.Category, error)
	Transactions(ctx context.Context, f ledger.TransactionFilter) ([]ledger.Transaction, error)
}

// SeedResult counts what EnsureDefaults did.
type SeedResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

type Service interface {
	Create(ctx context.Context, c ledger.Category) (ledger.Category, error)
	Update(ctx context.Context, c ledger.Category) (ledger.Category, error)
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (ledger.Category, error)
	List(ctx context.Context) ([]ledger.Category, error)
	// EnsureDefaults creates the curated categories that are missing. With
	// force, existing ones get the curated icon and description back.
	EnsureDefaults(ctx context.Context, force bool) (SeedResult, error)
}

type service struct {
	tx     storage.Transactor
	repo   Repo
	events events.Dispatcher
	log    *slog.Logger
}

func New(tx storage.Transactor, repo Repo, dispatcher events.Dispatcher, log *slog.Logger) Service {
	if dispatcher == nil {
		dispatcher = events.Nop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &service{tx: tx, repo: repo, events: dispatcher, log: log}
}

func normalize(c *ledger.Category) (string, error) {
	c.Name = strings.TrimSpace(c.Name)
	key := slug.Key(c.Name)
	if key == "" {
		return "", fmt.Errorf("name required: %w", errs.ErrInvalid)
	}
	return key, nil
}

func (s *service) Create(ctx context.Context, c ledger.Category) (ledger.Category, error) {
	key, err := normalize(&c)
	if err != nil {
		return ledger.Category{}, err
	}
	var out ledger.Category
	err = s.tx.WithinTx(ctx, func(tx storage.Tx) error {
		var err error
		out, err = tx.InsertCategory(ctx, c, key)
		return err
	})
	return out, err
}

// Update renames or re-describes a category. Transactions keep their link,
// so their index documents are refreshed.
func (s *service) Update(ctx context.Context, c ledger.Category) (ledger.Category, error) {
	if c.ID == 0 {
		return ledger.Category{}, fmt.Errorf("id required: %w", errs.ErrInvalid)
	}
	key, err := normalize(&c)
	if err != nil {
		return ledger.Category{}, err
	}
	var (
		out     ledger.Category
		renamed bool
	)
	err = s.tx.WithinTx(ctx, func(tx storage.Tx) error {
		prev, err := tx.Category(ctx, c.ID)
		if err != nil {
			return err
		}
		renamed = prev.Name != c.Name
		out, err = tx.UpdateCategory(ctx, c, key)
		return err
	})
	if err != nil {
		return ledger.Category{}, err
	}
	if renamed {
		s.refreshIndex(ctx, out.ID)
	}
	return out, nil
}

func (s *service) refreshIndex(ctx context.Context, categoryID int64) {
	txns, err := s.repo.Transactions(ctx, ledger.TransactionFilter{CategoryID: &categoryID})
	if err != nil {
		s.log.Warn("list category transactions for reindex", "category_id", categoryID, "err", err)
		return
	}
	for _, t := range txns {
		s.events.Dispatch(ctx, events.Upsert(t.ID))
	}
}

func (s *service) Delete(ctx context.Context, id int64) error {
	var detached []int64
	err := s.tx.WithinTx(ctx, func(tx storage.Tx) error {
		var err error
		detached, err = tx.DeleteCategory(ctx, id)
		return err
	})
	if err != nil {
		return err
	}
	s.log.Info("category deleted", "category_id", id, "detached_transactions", len(detached))
	for _, tid := range detached {
		s.events.Dispatch(ctx, events.Upsert(tid))
	}
	return nil
}

func (s *service) Get(ctx context.Context, id int64) (ledger.Category, error) {
	return s.repo.Category(ctx, id)
}

func (s *service) List(ctx context.Context) ([]ledger.Category, error) {
	return s.repo.Categories(ctx)
}

func (s *service) EnsureDefaults(ctx context.Context, force bool) (SeedResult, error) {
	existing, err := s.repo.Categories(ctx)
	if err != nil {
		return SeedResult{}, err
	}
	byKey := make(map[string]ledger.Category, len(existing))
	for _, c := range existing {
		byKey[slug.Key(c.Name)] = c
	}
	var res SeedResult
	err = s.tx.WithinTx(ctx, func(tx storage.Tx) error {
		res = SeedResult{}
		for _, def := range dictionary.Defaults() {
			key := slug.Key(def.Name)
			cur, ok := byKey[key]
			switch {
			case !ok:
				if _, err := tx.InsertCategory(ctx, ledger.Category{Name: def.Name, Icon: def.Icon, Description: def.Description}, key); err != nil {
					if errors.Is(err, errs.ErrConflict) {
						res.Skipped++
						continue
					}
					return err
				}
				res.Created++
			case force:
				cur.Icon, cur.Description = def.Icon, def.Description
				if _, err := tx.UpdateCategory(ctx, cur, key); err != nil {
					return err
				}
				res.Updated++
			default:
				res.Skipped++
			}
		}
		return nil
	})
	if err != nil {
		return SeedResult{}, err
	}
	s.log.Info("default categories ensured", "created", res.Created, "updated", res.Updated, "skipped", res.Skipped)
	return res, nil
}
