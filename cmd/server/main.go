package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kondiv/shop/internal/domain"
	"github.com/kondiv/shop/internal/featureflags"
	"github.com/kondiv/shop/internal/handler"
	"github.com/kondiv/shop/internal/infrastructure/logger"
	"github.com/kondiv/shop/internal/infrastructure/redis"
	"github.com/kondiv/shop/internal/locker"
	"github.com/kondiv/shop/internal/observability/tracing"
	"github.com/kondiv/shop/internal/reliability/retry"
	"github.com/kondiv/shop/internal/repository"
	"github.com/kondiv/shop/internal/repository/memory"
	"github.com/kondiv/shop/internal/security/audit"
	"github.com/kondiv/shop/internal/security/auth"
	"github.com/kondiv/shop/internal/security/ratelimit"
	"github.com/kondiv/shop/internal/service"
	"github.com/kondiv/shop/pkg/config"
	"github.com/kondiv/shop/pkg/database"
)

const (
	purchaseLockKey     = "shop:lock:purchase"
	registrationLockKey = "shop:lock:registration"
)

// storage bundles the repositories of one driver
type storage struct {
	users     domain.UserRepository
	items     domain.ItemRepository
	purchases domain.PurchaseRepository
	tx        domain.Transactor
	health    handler.Pinger
	close     func() error
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "shop: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Initialize structured logger
	log := logger.NewLogger(cfg.LogLevel, cfg.LogFormat)
	log.Info("starting shop server",
		slog.String("environment", cfg.Environment),
		slog.String("storage", cfg.StorageDriver),
		slog.String("lock_backend", cfg.LockBackend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Initialize tracing
	shutdownTracing, err := tracing.Init(ctx, log, cfg.OTELEndpoint, "shop", cfg.Environment)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("tracing shutdown failed", slog.String("error", err.Error()))
		}
	}()

	// 4. Initialize storage
	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.close()

	checks := map[string]handler.Pinger{"storage": store.health}

	// 5. Initialize locks. Purchases and registrations never share one.
	purchaseLock, registrationLock := locker.Locker(locker.NewMutex()), locker.Locker(locker.NewMutex())
	if cfg.LockBackend == config.LockRedis {
		redisClient, err := retry.Do(ctx, retry.DefaultPolicy(), log, "connect redis", func(ctx context.Context) (*redis.Client, error) {
			return redis.NewClient(ctx, cfg.RedisURL, log)
		})
		if err != nil {
			return err
		}
		defer redisClient.Close()

		purchaseLock = locker.NewRedisLock(redisClient, purchaseLockKey, cfg.LockTTL, log)
		registrationLock = locker.NewRedisLock(redisClient, registrationLockKey, cfg.LockTTL, log)
		checks["redis"] = redisClient
	}

	// 6. Initialize services
	tokenManager := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTLifetime)
	authService := service.NewAuthService(store.users, tokenManager, registrationLock, log)
	itemService := service.NewItemService(store.users, store.items, store.tx, log)
	purchaseService := service.NewPurchaseService(store.users, store.items, store.purchases, store.tx, purchaseLock, log)

	// 7. Initialize security components
	authLimiter := ratelimit.NewLimiter(cfg.AuthRateLimit, cfg.AuthRateWindow)
	defer authLimiter.Stop()

	// 8. Setup HTTP routes
	router := handler.NewRouter(handler.RouterConfig{
		Auth:            authService,
		Items:           itemService,
		Purchases:       purchaseService,
		Health:          handler.NewHealthHandler(checks, log),
		Tokens:          tokenManager,
		Audit:           audit.NewLogger(log),
		AuthLimiter:     authLimiter,
		SecureCookies:   cfg.SecureCookies,
		DefaultPageSize: cfg.DefaultPageSize,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		AuditEnabled:    featureflags.EnabledOr(featureflags.Audit, true),
		MetricsEnabled:  featureflags.EnabledOr(featureflags.Metrics, true),
		Logger:          log,
	})

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           tracing.Middleware(router, "shop"),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// 9. Serve until a shutdown signal arrives
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server starting",
			slog.Int("port", cfg.ServerPort),
			slog.Int("auth_rate_limit", cfg.AuthRateLimit),
			slog.Duration("auth_rate_window", cfg.AuthRateWindow),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}

func openStorage(ctx context.Context, cfg *config.Config, log *slog.Logger) (*storage, error) {
	if cfg.StorageDriver != config.StoragePostgres {
		store := memory.NewStore()
		log.Info("using in-memory storage")
		return &storage{
			users:     store.Users(),
			items:     store.Items(),
			purchases: store.Purchases(),
			tx:        store,
			health:    store,
			close:     func() error { return nil },
		}, nil
	}

	pool, err := retry.Do(ctx, retry.DefaultPolicy(), log, "connect postgres", func(ctx context.Context) (*database.ConnectionPool, error) {
		return database.NewConnectionPool(ctx, database.Config{
			URL:             cfg.DatabaseURL,
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
		}, log)
	})
	if err != nil {
		return nil, err
	}
	if err := pool.Migrate(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	db := pool.DB()
	return &storage{
		users:     repository.NewPostgresUserRepository(db, log),
		items:     repository.NewPostgresItemRepository(db, log),
		purchases: repository.NewPostgresPurchaseRepository(db, log),
		tx:        repository.NewTxRunner(db, log),
		health:    pool,
		close:     pool.Close,
	}, nil
}
