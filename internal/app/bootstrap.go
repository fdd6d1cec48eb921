package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"store-core/internal/auth"
	"store-core/internal/cache"
	"store-core/internal/config"
	"store-core/internal/db"
	"store-core/internal/dispatch"
	"store-core/internal/lock"
	"store-core/internal/maintenance"
	"store-core/internal/observability"
	"store-core/internal/product"
)

type Options struct {
	LoadDotEnv bool
	// RunMigrations forces migrations even when RUN_MIGRATIONS_ON_STARTUP is off.
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Config  *config.Config
	Close   func() error
}

// sharedCache is what both the cache-aside reads and the login rate limiter
// need from the cache backend.
type sharedCache interface {
	cache.Store
	cache.Counter
}

// closers runs cleanup functions in reverse registration order.
type closers []func() error

func (c *closers) add(fn func() error) {
	*c = append(*c, fn)
}

func (c closers) close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func Build(options Options) (*Runtime, error) {
	cfg, err := config.Load(config.LoadOptions{DotEnv: options.LoadDotEnv})
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger().With(map[string]any{"env": cfg.AppEnv})

	if err := observability.InitSentry(cfg.SentryDSN, cfg.AppEnv); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	var cleanup closers
	cleanup.add(func() error {
		observability.FlushSentry()
		return nil
	})

	fail := func(err error) (*Runtime, error) {
		_ = cleanup.close()
		return nil, err
	}

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracer("store-core", os.Stdout)
		if err != nil {
			return fail(fmt.Errorf("init tracer: %w", err))
		}
		cleanup.add(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return shutdown(ctx)
		})
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return fail(err)
	}
	cleanup.add(database.Close)

	if options.RunMigrations || cfg.RunMigrationsOnStartup {
		applied, err := db.RunMigrations(context.Background(), database)
		if err != nil {
			return fail(fmt.Errorf("run migrations: %w", err))
		}
		logger.Info("migrations_applied", map[string]any{"versions": applied})
	}

	var redisClient *redis.Client
	if cfg.LockBackend == "redis" || cfg.CacheBackend == "redis" {
		redisClient = cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		cleanup.add(redisClient.Close)
	}

	locks, err := buildLocks(cfg, redisClient, &cleanup)
	if err != nil {
		return fail(err)
	}
	cacheStore := buildCache(cfg, redisClient, &cleanup)
	logger.Info("backends_selected", map[string]any{
		"lock_backend":  cfg.LockBackend,
		"cache_backend": cfg.CacheBackend,
	})

	authRepo := auth.NewRepository(database)
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret:     cfg.JWTSecret,
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		AccessTTL:  cfg.AccessTokenTTL(),
		RefreshTTL: cfg.RefreshTokenTTL(),
	}, authRepo)
	if err != nil {
		return fail(fmt.Errorf("init token service: %w", err))
	}
	authService := auth.NewService(authRepo, tokens, logger)
	authService.WithSecurityConfig(cfg.LoginMaxAttempts, cfg.LoginLockDuration())

	if err := authService.BootstrapAdmin(context.Background(), cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return fail(fmt.Errorf("bootstrap admin: %w", err))
	}

	productService := product.NewService(
		product.NewRepository(database),
		cache.NewAside(cacheStore, logger),
		logger,
		product.Options{
			DefaultPageSize: cfg.ProductDefaultPageSize,
			MaxPageSize:     cfg.ProductMaxPageSize,
		},
	)

	validate := dispatch.NewValidate()
	registry := dispatch.NewRegistry()
	authService.RegisterHandlers(registry, validate)
	productService.RegisterHandlers(registry, validate)

	dispatcher, err := registry.Build(dispatch.Options{
		Locks:       locks,
		DefaultWait: cfg.LockWait(),
		Logger:      logger,
	})
	if err != nil {
		return fail(fmt.Errorf("build dispatcher: %w", err))
	}
	logger.Debug("dispatcher_ready", map[string]any{"requests": registry.Names()})

	mux := routes(routeDeps{
		dispatcher:  dispatcher,
		tokens:      tokens,
		logger:      logger,
		database:    database,
		limiter:     auth.NewLoginRateLimiter(cacheStore, cfg.LoginRateLimitMax, cfg.LoginRateLimitWindow(), logger),
		maintenance: maintenance.NewCleanupHandler(authRepo, logger, cfg.CronSecret, cfg.AuthCleanupBatchSize),
	})

	handler := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux))

	return &Runtime{
		Handler: handler,
		Config:  cfg,
		Close:   cleanup.close,
	}, nil
}

func openDatabase(cfg *config.Config) (*sql.DB, error) {
	database, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(cfg.DBMaxOpenConns)
	database.SetMaxIdleConns(cfg.DBMaxIdleConns)
	database.SetConnMaxLifetime(cfg.DBConnMaxLifetime())
	database.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := database.PingContext(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return database, nil
}

func buildLocks(cfg *config.Config, redisClient *redis.Client, cleanup *closers) (lock.Store, error) {
	switch cfg.LockBackend {
	case "etcd":
		client, err := lock.NewEtcdClient(cfg.EtcdEndpoints, cfg.EtcdDialTimeout)
		if err != nil {
			return nil, fmt.Errorf("connect etcd: %w", err)
		}
		cleanup.add(client.Close)
		return lock.NewEtcdStore(client, "", cfg.LockTTL()), nil
	case "redis":
		return lock.NewRedisStore(redisClient, cfg.KeyPrefix+"locks:", cfg.LockTTL()), nil
	default:
		return lock.NewMemoryStore(), nil
	}
}

func buildCache(cfg *config.Config, redisClient *redis.Client, cleanup *closers) sharedCache {
	if cfg.CacheBackend == "redis" {
		return cache.NewRedisStore(redisClient, cfg.KeyPrefix)
	}

	store := cache.NewMemoryStore()
	cleanup.add(func() error {
		store.Close()
		return nil
	})
	return store
}
