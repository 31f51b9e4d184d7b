package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	audithttp "github.com/hdthieu/seafood-restaurant-be-sub001/internal/audit/http"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/cashbook"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/inventory"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/observability"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/platform/httpx"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/purchasing"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/supplier"
	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/uom"
	"github.com/hdthieu/seafood-restaurant-be-sub001/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	Pool              *pgxpool.Pool
	Redis             *redis.Client
	UOMHandler        *uom.Handler
	InventoryHandler  *inventory.Handler
	PurchasingHandler *purchasing.Handler
	SupplierHandler   *supplier.Handler
	CashbookHandler   *cashbook.Handler
	AuditHandler      *audithttp.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with back-office defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readiness(params.Pool, params.Redis))

	r.Route("/api/v1", func(r chi.Router) {
		if params.UOMHandler != nil {
			r.Route("/uom", params.UOMHandler.MountRoutes)
		}
		if params.InventoryHandler != nil {
			r.Route("/inventory", params.InventoryHandler.MountRoutes)
		}
		if params.PurchasingHandler != nil {
			r.Route("/purchasing", params.PurchasingHandler.MountRoutes)
		}
		if params.SupplierHandler != nil {
			r.Route("/suppliers", params.SupplierHandler.MountRoutes)
		}
		if params.CashbookHandler != nil {
			r.Route("/cashbook", params.CashbookHandler.MountRoutes)
		}
		if params.AuditHandler != nil {
			r.Route("/audit", params.AuditHandler.MountRoutes)
		}
	})
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	return r
}

// readiness pings the database and, when configured, Redis.
func readiness(pool *pgxpool.Pool, rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := map[string]string{"postgres": "skipped", "redis": "skipped"}
		code := http.StatusOK
		if pool != nil {
			status["postgres"] = "ok"
			if err := pool.Ping(ctx); err != nil {
				status["postgres"] = err.Error()
				code = http.StatusServiceUnavailable
			}
		}
		if rdb != nil {
			status["redis"] = "ok"
			if err := rdb.Ping(ctx).Err(); err != nil {
				status["redis"] = err.Error()
				code = http.StatusServiceUnavailable
			}
		}
		httpx.JSON(w, code, status)
	}
}
