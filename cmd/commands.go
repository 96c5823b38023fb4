package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tinoosan/walletledger/internal/amqp"
	"github.com/tinoosan/walletledger/internal/config"
	"github.com/tinoosan/walletledger/internal/httpapi"
	pgstore "github.com/tinoosan/walletledger/internal/storage/postgres"
)

// withApp builds the service graph for one command run and closes it after.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ops HTTP server and the recurring scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if a.inMemory {
					if _, err := a.categories.EnsureDefaults(ctx, false); err != nil {
						return err
					}
				}

				srv := &http.Server{
					Addr: a.cfg.HTTP.Addr,
					Handler: httpapi.New(httpapi.Deps{
						Store:     a.store,
						Scheduler: a.recurring,
						Balances:  a.balances,
						Budgets:   a.budgets,
						Location:  a.loc,
					}, a.log).Handler(),
					ReadTimeout:       5 * time.Second,
					ReadHeaderTimeout: 5 * time.Second,
					WriteTimeout:      30 * time.Second,
					IdleTimeout:       60 * time.Second,
				}

				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					a.log.Info("ledger ops server listening", "addr", srv.Addr)
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer cancel()
					if err := srv.Shutdown(ctxShutdown); err != nil {
						a.log.Error("server shutdown error", "err", err)
					}
					return nil
				})
				if a.cfg.Scheduler.Enabled {
					g.Go(func() error {
						a.log.Info("recurring scheduler started", "interval", a.cfg.Scheduler.Interval.String())
						if err := a.recurring.Run(gctx, a.cfg.Scheduler.Interval); err != nil && !errors.Is(err, context.Canceled) {
							return err
						}
						return nil
					})
				}
				return g.Wait()
			})
		},
	}
}

func schedulerCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "scheduler", Short: "Recurring transaction scheduler"}
	var date string
	run := &cobra.Command{
		Use:   "run",
		Short: "Run one pass over due recurring rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				today := a.today()
				if date != "" {
					d, err := time.ParseInLocation(time.DateOnly, date, a.loc)
					if err != nil {
						return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
					}
					today = d
				}
				report, err := a.recurring.RunDue(ctx, today)
				if err != nil {
					return err
				}
				return printJSON(cmd, report)
			})
		},
	}
	run.Flags().StringVar(&date, "date", "", "treat this day (YYYY-MM-DD) as today")
	cmd.AddCommand(run)
	return cmd
}

func balancesCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "balances", Short: "Wallet balance maintenance"}
	cmd.AddCommand(&cobra.Command{
		Use:   "recompute",
		Short: "Zero every wallet and replay all transactions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				report, err := a.balances.RecomputeAll(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, report)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "audit",
		Short: "Compare stored balances with their transactions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				drift, err := a.balances.Audit(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, drift)
			})
		},
	})
	return cmd
}

func indexCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "index", Short: "Vector index synchronization"}
	requireIndex := func(a *app) error {
		if a.syncer == nil {
			return errors.New("indexing is disabled; set index.enabled and gemini.api_key")
		}
		return nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "worker",
		Short: "Consume index events from RabbitMQ",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.Index.Transport != config.TransportAMQP {
				return fmt.Errorf("index worker needs index.transport=%s", config.TransportAMQP)
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := requireIndex(a); err != nil {
					return err
				}
				a.log.Info("index worker consuming", "exchange", a.cfg.AMQP.Exchange, "queue", a.cfg.AMQP.Queue)
				err := amqp.ConsumeWithReconnect(ctx, a.cfg.AMQP.URL, a.cfg.AMQP.Exchange, a.cfg.AMQP.Queue, a.syncer)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "reindex",
		Short: "Re-upsert every transaction into the index",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := requireIndex(a); err != nil {
					return err
				}
				report, err := a.syncer.Reindex(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, report)
			})
		},
	})

	var limit uint64
	var threshold float32
	search := &cobra.Command{
		Use:   "search <query>",
		Short: "Semantic search over indexed transactions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := requireIndex(a); err != nil {
					return err
				}
				hits, err := a.bridge.Search(ctx, strings.Join(args, " "), limit, threshold)
				if err != nil {
					return err
				}
				return printJSON(cmd, hits)
			})
		},
	}
	search.Flags().Uint64Var(&limit, "limit", 10, "maximum results")
	search.Flags().Float32Var(&threshold, "threshold", 0.5, "minimum similarity score")
	cmd.AddCommand(search)
	return cmd
}

func migrateCmd() *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.Database.URL == "" {
				return errors.New("database.url is required")
			}
			if down {
				if err := pgstore.MigrateDown(cfg.Database.URL); err != nil {
					return err
				}
				logger.Info("migrations reverted")
				return nil
			}
			if err := pgstore.MigrateUp(cfg.Database.URL); err != nil {
				return err
			}
			logger.Info("migrations applied")
			return nil
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "revert every migration")
	return cmd
}

func seedCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the default categories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				res, err := a.categories.EnsureDefaults(ctx, force)
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite icon and description of existing defaults")
	return cmd
}

func insightsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "insights", Short: "Debt position and spending anomalies"}
	cmd.AddCommand(&cobra.Command{
		Use:   "debts",
		Short: "Summarize borrowed, repaid, lent and collected totals",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				sum, err := a.insights.DebtSummary(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, sum)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "anomalies",
		Short: "List categories spending well above their three-month average",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				out, err := a.insights.Anomalies(ctx, a.today())
				if err != nil {
					return err
				}
				return printJSON(cmd, out)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "digest",
		Short: "Anomalies with a generated summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				d, err := a.insights.Digest(ctx, a.today())
				if err != nil {
					return err
				}
				return printJSON(cmd, d)
			})
		},
	})
	return cmd
}

func walletsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "wallets", Short: "Wallets and totals"}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List wallets with their balances",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				ws, err := a.accounts.List(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, ws)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "totals",
		Short: "Show total, available and savings balances",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				t, err := a.accounts.Totals(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, t.Display())
			})
		},
	})
	return cmd
}
