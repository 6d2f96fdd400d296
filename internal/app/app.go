// Package app wires the application together and runs the HTTP server.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/coursedesk/sales-assistant/internal/cache"
	"github.com/coursedesk/sales-assistant/internal/domain/coupon"
	"github.com/coursedesk/sales-assistant/internal/domain/course"
	"github.com/coursedesk/sales-assistant/internal/domain/discount"
	"github.com/coursedesk/sales-assistant/internal/domain/order"
	"github.com/coursedesk/sales-assistant/internal/domain/pricing"
	"github.com/coursedesk/sales-assistant/internal/handler"
	"github.com/coursedesk/sales-assistant/internal/repository"
	"github.com/coursedesk/sales-assistant/pkg/health"
	"github.com/coursedesk/sales-assistant/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Repositories.
	courseRepo := repository.NewCourseRepository(pool)
	couponRepo := repository.NewCouponRepository(pool)
	discountRepo := repository.NewDiscountRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	apikeyRepo := repository.NewAPIKeyRepository(pool)

	// Redis cache in front of the course catalog and the valid-coupon list.
	// Optional: without it the repositories serve everything directly.
	var courses course.Repository = courseRepo
	var couponStore handler.CouponStore = couponRepo
	if cfg.RedisAddr != "" {
		rdb, err := cache.NewClient(ctx, cfg.RedisAddr)
		if err != nil {
			return errors.Wrap(err, "create redis client")
		}
		defer func() { _ = rdb.Close() }()

		healthSvc.AddReadinessCheck("redis", 5*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		courses = cache.NewCourseRepository(courseRepo,
			cache.New(rdb, "course", cfg.Cache.CourseTTL, lg.Named("cache")))
		couponStore = cache.NewCouponRepository(couponRepo,
			cache.New(rdb, "coupon", cfg.Cache.CouponTTL, lg.Named("cache")))
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Domain services.
	couponValidator := coupon.NewRepoValidator(couponRepo)
	catalog := discount.DefaultCatalog()
	calculator := pricing.NewCalculator(courses, couponValidator, discountRepo, catalog)
	orderService := order.NewService(courses, couponRepo, couponValidator, discountRepo, orderRepo)

	// Background sweeper: expire stale applied discounts.
	go sweepExpiredDiscounts(ctx, lg.Named("sweeper"), discountRepo, cfg.Sweeper.Interval)

	// HTTP handlers.
	security := handler.NewSecurity(apikeyRepo, cfg.APIKeyPepper)
	h := handler.New(courses, couponValidator, couponStore, calculator, orderService, discountRepo, security)

	router := chi.NewRouter()
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	h.Routes(router)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "X-API-Key"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("sales-assistant", m),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// sweepExpiredDiscounts periodically marks unused applied discounts past
// their validity as expired.
func sweepExpiredDiscounts(ctx context.Context, lg *zap.Logger, ledger discount.Ledger, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := ledger.ExpireStale(ctx)
			if err != nil {
				lg.Error("expire stale discounts", zap.Error(err))
				continue
			}
			if n > 0 {
				lg.Info("expired stale discounts", zap.Int64("count", n))
			}
		}
	}
}
