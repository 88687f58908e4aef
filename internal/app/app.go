package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kvelder/shopcore/internal/arbiter"
	"github.com/kvelder/shopcore/internal/cart"
	"github.com/kvelder/shopcore/internal/checkout"
	"github.com/kvelder/shopcore/internal/event"
	"github.com/kvelder/shopcore/internal/httpapi"
	"github.com/kvelder/shopcore/internal/order"
	"github.com/kvelder/shopcore/internal/productcache"
	storagepg "github.com/kvelder/shopcore/internal/storage/postgres"
	storageredis "github.com/kvelder/shopcore/internal/storage/redis"
	"github.com/kvelder/shopcore/pkg/health"
)

// Run creates all dependencies, starts the HTTP server and the cart flusher,
// and handles graceful shutdown. It is the single wiring point for the
// application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := storagepg.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := storagepg.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Redis cart store.
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddReadinessCheck("redis", 5*time.Second, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories and the process-local product view.
	productRepo := storagepg.NewProductRepository(pool)
	orderRepo := storagepg.NewOrderRepository(pool)
	cartRepo := storageredis.NewCartRepository(rdb)

	cache := productcache.New(productRepo)
	if err := cache.Warm(ctx); err != nil {
		return errors.Wrap(err, "warm product cache")
	}

	statuses, err := storagepg.LoadStatusSet(ctx, pool)
	if err != nil {
		return errors.Wrap(err, "load status set")
	}

	// Optional lifecycle event stream.
	var notifier order.Notifier
	if len(cfg.Kafka.Brokers) > 0 {
		pub := event.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, "shopd", lg)
		defer pub.Close()
		notifier = pub
	}

	// Domain services.
	flusher := cart.NewFlusher(cartRepo, cfg.Cart.QuietPeriod, lg)
	stockArbiter := arbiter.NewPostgres(pool)
	coordinator := checkout.NewCoordinator(stockArbiter, cache, flusher, notifier, lg)
	lifecycle := order.NewLifecycle(orderRepo, cache, statuses, notifier, lg)

	// HTTP surface.
	h := httpapi.NewHandler(cache, orderRepo, cartRepo, flusher, coordinator, lifecycle, lg)
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", h.Router())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           mux,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		flusher.Run(gctx)
		return nil
	})

	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	// Graceful shutdown: readiness off, drain, stop the server. The flusher
	// persists everything still pending when its context ends.
	g.Go(func() error {
		<-gctx.Done()
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
		return nil
	})

	return g.Wait()
}
