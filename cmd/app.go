package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinoosan/walletledger/internal/ai/gemini"
	"github.com/tinoosan/walletledger/internal/amqp"
	"github.com/tinoosan/walletledger/internal/config"
	"github.com/tinoosan/walletledger/internal/events"
	"github.com/tinoosan/walletledger/internal/index"
	"github.com/tinoosan/walletledger/internal/index/qdrant"
	"github.com/tinoosan/walletledger/internal/service/account"
	"github.com/tinoosan/walletledger/internal/service/balance"
	"github.com/tinoosan/walletledger/internal/service/budget"
	"github.com/tinoosan/walletledger/internal/service/category"
	"github.com/tinoosan/walletledger/internal/service/insight"
	"github.com/tinoosan/walletledger/internal/service/journal"
	"github.com/tinoosan/walletledger/internal/service/recurring"
	"github.com/tinoosan/walletledger/internal/storage"
	"github.com/tinoosan/walletledger/internal/storage/memory"
	pgstore "github.com/tinoosan/walletledger/internal/storage/postgres"
)

// app is the wired service graph shared by every command.
type app struct {
	cfg      config.Config
	log      *slog.Logger
	loc      *time.Location
	store    storage.Store
	inMemory bool

	dispatcher events.Dispatcher
	async      *events.Async
	bridge     *index.Bridge
	syncer     *index.Syncer
	narrator   insight.Narrator

	journal    journal.Service
	budgets    budget.Service
	recurring  recurring.Service
	balances   balance.Service
	accounts   account.Service
	categories category.Service
	insights   insight.Service

	closers []func()
}

func buildApp(ctx context.Context, c config.Config, log *slog.Logger) (*app, error) {
	a := &app{cfg: c, log: log, loc: c.Location(), dispatcher: events.Nop{}}

	if c.Database.URL != "" {
		pg, err := pgstore.Open(ctx, c.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.store = pg
		a.closers = append(a.closers, pg.Close)
		log.Info("storage backend: postgres")
	} else {
		a.store = memory.New()
		a.inMemory = true
		log.Warn("storage backend: memory; data is lost on exit")
	}

	if c.Gemini.APIKey != "" {
		g, err := gemini.New(ctx, gemini.Config{
			APIKey:         c.Gemini.APIKey,
			EmbeddingModel: c.Gemini.EmbeddingModel,
			TextModel:      c.Gemini.TextModel,
			Dimension:      int32(c.Embedding.Dimension),
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.narrator = g
		if c.Index.Enabled {
			if err := a.wireIndex(ctx, g); err != nil {
				a.Close()
				return nil, err
			}
		}
	}

	a.budgets = budget.New(a.store, a.store, budget.Config{Currency: c.Ledger.Currency, Location: a.loc}, log)
	a.journal = journal.New(a.store, a.store, a.budgets, a.dispatcher, journal.Config{Location: a.loc}, log)
	a.recurring = recurring.New(a.store, a.store, a.journal, a.dispatcher, recurring.Config{Location: a.loc}, log)
	a.balances = balance.New(a.store, a.store, log)
	a.accounts = account.New(a.store, a.store, a.dispatcher, c.Ledger.Currency, log)
	a.categories = category.New(a.store, a.store, a.dispatcher, log)
	a.insights = insight.New(a.store, a.narrator, insight.Config{
		Threshold: c.Anomaly.Threshold,
		CacheTTL:  c.Anomaly.CacheTTL,
		Currency:  c.Ledger.Currency,
		Location:  a.loc,
	}, log)
	return a, nil
}

// wireIndex connects the vector index and picks the event transport.
func (a *app) wireIndex(ctx context.Context, emb index.Embedder) error {
	c := a.cfg
	idx, err := qdrant.New(qdrant.Config{
		Host:       c.Qdrant.Host,
		Port:       c.Qdrant.Port,
		APIKey:     c.Qdrant.APIKey,
		UseTLS:     c.Qdrant.UseTLS,
		Collection: c.Qdrant.Collection,
		Dimension:  uint64(c.Embedding.Dimension),
	})
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() { _ = idx.Close() })
	if err := idx.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}

	cached := index.NewCachedEmbedder(emb, c.Index.CacheSize, c.Index.CacheTTL)
	a.bridge = index.NewBridge(cached, idx, c.Index.Timeout, a.log)
	a.syncer = index.NewSyncer(a.store, a.store, a.bridge, a.log)

	switch c.Index.Transport {
	case config.TransportAMQP:
		client, err := amqp.NewClient(c.AMQP.URL, c.AMQP.Exchange, c.AMQP.Queue)
		if err != nil {
			return fmt.Errorf("connect amqp: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		a.dispatcher = amqp.NewDispatcher(client, a.log)
	default:
		a.async = events.NewAsync(a.syncer, c.Index.Workers, c.Index.Timeout, a.log)
		a.dispatcher = a.async
	}
	a.log.Info("index sync enabled", "transport", c.Index.Transport, "collection", c.Qdrant.Collection)
	return nil
}

// Close drains in-flight index events, then releases resources in reverse order.
func (a *app) Close() {
	if a.async != nil {
		a.async.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) today() time.Time { return time.Now().In(a.loc) }
