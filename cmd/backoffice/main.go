package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/hdthieu/seafood-restaurant-be-sub001/cmd/backoffice/cli"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/app"
	audithttp "github.com/hdthieu/seafood-restaurant-be-sub001/internal/audit/http"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/cashbook"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/inventory"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/observability"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/platform/cache"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/platform/db"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/purchasing"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/supplier"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/uom"
	"github.com/hdthieu/seafood-restaurant-be-sub001/jobs"
)

const usage = `usage: backoffice [command]

commands:
  serve                         run the HTTP API (default)
  stock reconcile [-json]       compare stored stock with movement history
  uom convert -from U -to U -qty N
  jobs trigger [-retention D] <task>
                                enqueue inventory:reconcile, idempotency:cleanup or uom:warmup
  jobs stats                    print default queue counters
  jobs scheduled                list scheduled tasks`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	args := os.Args[1:]
	if len(args) == 0 {
		args = []string{"serve"}
	}
	switch args[0] {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "stock":
		os.Exit(runStock(ctx, cfg, logger, args[1:]))
	case "uom":
		os.Exit(runUOM(ctx, cfg, logger, args[1:]))
	case "jobs":
		os.Exit(runJobs(ctx, cfg, args[1:]))
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("backoffice", slog.Any("error", err))
		os.Exit(1)
	}
}

// connect opens Postgres and, when enabled, Redis. Redis failures degrade
// to running without cache and document locks.
func connect(ctx context.Context, cfg *app.Config, logger *slog.Logger) (*pgxpool.Pool, *redis.Client, func(), error) {
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns, ApplicationName: "backoffice"})
	if err != nil {
		return nil, nil, nil, err
	}
	var rdb *redis.Client
	if cfg.RedisEnabled {
		rdb, err = cache.New(ctx, cfg.RedisOptions())
		if err != nil {
			logger.Warn("redis unavailable, running without cache and locks", slog.Any("error", err))
			rdb = nil
		}
	}
	closeAll := func() {
		if rdb != nil {
			if err := rdb.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
		pool.Close()
	}
	return pool, rdb, closeAll, nil
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, rdb, closeAll, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeAll()

	metrics := observability.NewMetrics()
	services := app.BuildServices(cfg, pool, rdb, metrics.Registerer(), logger)
	validate := validator.New()

	jobHandler := jobs.NewHandler(nil, nil, logger)
	if rdb != nil {
		inspector := asynq.NewInspector(cfg.AsynqRedis())
		client := asynq.NewClient(cfg.AsynqRedis())
		defer func() {
			if err := errors.Join(inspector.Close(), client.Close()); err != nil {
				logger.Warn("job queue close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, client, logger)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		Pool:              pool,
		Redis:             rdb,
		UOMHandler:        uom.NewHandler(logger, services.Units, validate),
		InventoryHandler:  inventory.NewHandler(logger, services.Inventory, validate),
		PurchasingHandler: purchasing.NewHandler(logger, services.Purchasing, validate),
		SupplierHandler:   supplier.NewHandler(logger, services.Suppliers, validate),
		CashbookHandler:   cashbook.NewHandler(logger, services.Vouchers),
		AuditHandler:      audithttp.NewHandler(logger, services.Audit),
		JobHandler:        jobHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func runStock(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	if len(args) == 0 || args[0] != "reconcile" {
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}
	fs := flag.NewFlagSet("stock reconcile", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	pool, rdb, closeAll, err := connect(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stock reconcile: %v\n", err)
		return 1
	}
	defer closeAll()
	services := app.BuildServices(cfg, pool, rdb, nil, logger)
	return cli.NewStockCLI(services.Inventory).ReconcileCommand(ctx, cli.ReconcileOptions{JSONOutput: *jsonOut})
}

func runUOM(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	if len(args) == 0 || args[0] != "convert" {
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}
	fs := flag.NewFlagSet("uom convert", flag.ContinueOnError)
	from := fs.String("from", "", "unit to convert from")
	to := fs.String("to", "", "unit to convert to")
	qty := fs.Float64("qty", 1, "quantity")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	pool, rdb, closeAll, err := connect(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "uom convert: %v\n", err)
		return 1
	}
	defer closeAll()
	services := app.BuildServices(cfg, pool, rdb, nil, logger)
	res, err := services.Units.Convert(ctx, *from, *to, *qty)
	if err != nil {
		fmt.Fprintf(os.Stderr, "uom convert: %v\n", err)
		return 1
	}
	_ = json.NewEncoder(os.Stdout).Encode(res)
	return 0
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}
	jobsCLI := cli.NewJobsCLI(cfg.AsynqRedis())
	defer func() { _ = jobsCLI.Close() }()

	switch args[0] {
	case "trigger":
		fs := flag.NewFlagSet("jobs trigger", flag.ContinueOnError)
		retention := fs.Duration("retention", 0, "idempotency key retention for idempotency:cleanup")
		if err := fs.Parse(args[1:]); err != nil || fs.NArg() != 1 {
			fmt.Fprintln(os.Stderr, usage)
			return 2
		}
		info, err := jobsCLI.Trigger(ctx, fs.Arg(0), cli.TriggerOptions{Retention: *retention})
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs trigger: %v\n", err)
			return 1
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs stats: %v\n", err)
			return 1
		}
		_ = json.NewEncoder(os.Stdout).Encode(stats)
	case "scheduled":
		tasks, err := jobsCLI.ListScheduled(ctx, 20)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs scheduled: %v\n", err)
			return 1
		}
		_ = json.NewEncoder(os.Stdout).Encode(tasks)
	default:
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}
	return 0
}
