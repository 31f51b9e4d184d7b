package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/audit"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/cashbook"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/inventory"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/platform/lock"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/purchasing"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/shared"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/supplier"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/uom"
)

// Services holds the domain services shared by the server and the worker.
type Services struct {
	Units       *uom.Service
	Inventory   *inventory.Service
	Purchasing  *purchasing.Service
	Suppliers   *supplier.Service
	Vouchers    *cashbook.Repository
	Audit       *audit.Service
	Idempotency *shared.IdempotencyStore
}

// BuildServices wires repositories and services. rdb may be nil, which
// disables the unit snapshot cache in Redis and document locking.
func BuildServices(cfg *Config, pool *pgxpool.Pool, rdb *redis.Client, registerer prometheus.Registerer, logger *slog.Logger) *Services {
	auditLog := shared.NewAuditWriter(pool)
	idempotency := shared.NewIdempotencyStore(pool)

	units := uom.NewService(
		uom.NewRepository(pool),
		uom.NewSnapshotCache(rdb, cfg.UOMCacheTTL, logger),
		uom.ServiceConfig{StrictConversions: cfg.UOMStrictConversions},
		logger,
	)
	inv := inventory.NewService(inventory.NewRepository(pool), units, auditLog, logger)

	deps := purchasing.Deps{
		Repo:        purchasing.NewRepository(pool),
		Units:       units,
		Ledger:      inventory.NewLedger(),
		Cashbook:    cashbook.NewService(),
		Audit:       auditLog,
		Idempotency: idempotency,
		Metrics:     purchasing.NewMetrics(registerer),
		LockTTL:     cfg.DocumentLockTTL,
		Logger:      logger,
	}
	if locker := lock.New(rdb, logger); locker != nil {
		deps.Locker = locker
	}

	return &Services{
		Units:       units,
		Inventory:   inv,
		Purchasing:  purchasing.NewService(deps),
		Suppliers:   supplier.NewService(supplier.NewRepository(pool), auditLog, logger),
		Vouchers:    cashbook.NewRepository(pool),
		Audit:       audit.NewService(audit.NewRepository(pool)),
		Idempotency: idempotency,
	}
}
