package app

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

	"github.com/redis/go-redis/v9"

	"eventmaster-auth/internal/config"
	"eventmaster-auth/internal/database"
	"eventmaster-auth/internal/event"
	"eventmaster-auth/internal/handler"
	"eventmaster-auth/internal/metrics"
	"eventmaster-auth/internal/middleware"
	"eventmaster-auth/internal/repository"
	"eventmaster-auth/internal/repository/memstore"
	"eventmaster-auth/internal/router"
	"eventmaster-auth/internal/security"
	"eventmaster-auth/internal/service"
)

type App struct {
	server        *http.Server
	metricsServer *http.Server
	cleanupFuncs  []func()
}

type credentialStore struct {
	users  service.UserStore
	roles  service.RoleStore
	tx     service.Transactor
	health func(context.Context) error
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{}

	store, err := a.openStore(ctx, cfg)
	if err != nil {
		a.cleanup()
		return nil, err
	}

	issuer, err := security.NewTokenIssuer(security.TokenConfig{
		Secret:    cfg.JWTSecret,
		Issuer:    cfg.JWTIssuer,
		Audience:  cfg.JWTAudience,
		AccessTTL: cfg.JWTAccessTTL,
	})
	if err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to initialize token issuer: %w", err)
	}
	hasher := security.NewPasswordHasher(cfg.BcryptCost)

	bus := event.NewBus()
	a.startForwarder(cfg, bus)

	appMetrics := metrics.New()

	authService := service.NewAuthService(store.users, store.roles, store.tx, hasher, issuer,
		service.AuthConfig{
			RefreshTTL:    cfg.JWTRefreshTTL,
			RotateRefresh: cfg.RotateRefreshToken,
			DefaultRole:   cfg.DefaultRole,
		},
		service.WithPublisher(bus),
		service.WithRecorder(appMetrics),
	)
	roleService := service.NewRoleService(store.users, store.roles, store.tx,
		service.WithPublisher(bus),
		service.WithRecorder(appMetrics),
	)

	if err := authService.SeedAdmin(ctx, cfg.AdminLogin, cfg.AdminPassword); err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to seed admin user: %w", err)
	}

	appRouter := router.New(cfg, middleware.NewAuthMiddleware(issuer), router.Handlers{
		Auth:   handler.NewAuthHandler(authService),
		User:   handler.NewUserHandler(authService),
		Role:   handler.NewRoleHandler(roleService),
		Health: handler.NewHealthHandler(store.health),
	}, router.Options{
		RateLimit: a.rateLimiter(ctx, cfg),
		Metrics:   appMetrics.Middleware,
	})

	a.server = &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	if cfg.MetricsAddr != "" {
		a.metricsServer = metrics.StartServer(cfg.MetricsAddr, appMetrics, store.health)
	}

	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg *config.Config) (credentialStore, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		slog.Warn("using in-memory credential store; data is lost on restart")
		mem := memstore.New(service.AdminRole, service.ResidentRole, cfg.DefaultRole)
		return credentialStore{users: mem.Users(), roles: mem.Roles(), tx: mem}, nil
	}

	slog.Info("connecting to PostgreSQL")
	db, err := database.New(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return credentialStore{}, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.cleanupFuncs = append(a.cleanupFuncs, db.Close)

	if err := db.Migrate(ctx); err != nil {
		return credentialStore{}, fmt.Errorf("failed to migrate database schema: %w", err)
	}
	slog.Info("database ready")

	return credentialStore{
		users:  repository.NewUserRepository(db.Pool),
		roles:  repository.NewRoleRepository(db.Pool),
		tx:     repository.NewTxManager(db.Pool),
		health: db.Health,
	}, nil
}

// rateLimiter prefers Redis so replicas share buckets, and falls back to
// per-process buckets when Redis is not configured or unreachable.
func (a *App) rateLimiter(ctx context.Context, cfg *config.Config) *middleware.RateLimitMiddleware {
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()

		if err == nil {
			slog.Info("rate limiting backed by redis", "addr", cfg.RedisAddr)
			a.cleanupFuncs = append(a.cleanupFuncs, func() { _ = client.Close() })
			return middleware.NewRateLimitMiddleware(
				middleware.NewRedisLimiter(client, "ratelimit", cfg.RateLimitRPM),
				middleware.NewRedisLimiter(client, "ratelimit", cfg.AuthRateLimitRPM),
			)
		}

		slog.Warn("redis unavailable; using in-process rate limiting", "addr", cfg.RedisAddr, "error", err)
		_ = client.Close()
	}

	return middleware.NewRateLimitMiddleware(
		middleware.NewLocalLimiter(cfg.RateLimitRPM),
		middleware.NewLocalLimiter(cfg.AuthRateLimitRPM),
	)
}

func (a *App) startForwarder(cfg *config.Config, bus event.Bus) {
	if cfg.AMQPURL == "" {
		return
	}

	forwarder, err := event.DialForwarder(cfg.AMQPURL, cfg.AMQPExchange)
	if err != nil {
		slog.Warn("event forwarding disabled", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	go forwarder.Run(ctx, bus)

	a.cleanupFuncs = append(a.cleanupFuncs, func() {
		cancel()
		if err := forwarder.Close(); err != nil {
			slog.Warn("closing event forwarder", "error", err)
		}
	})
}

func (a *App) Handler() http.Handler {
	return a.server.Handler
}

func (a *App) Run() error {
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	return a.Shutdown()
}

func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var shutdownErr error
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}
	if a.metricsServer != nil {
		_ = a.metricsServer.Shutdown(ctx)
	}

	a.cleanup()

	slog.Info("server stopped")
	return shutdownErr
}

func (a *App) cleanup() {
	for i := len(a.cleanupFuncs) - 1; i >= 0; i-- {
		a.cleanupFuncs[i]()
	}
	a.cleanupFuncs = nil
}
