// @title Event Registration API
// @version 1.0
// @description Event catalog and seat reservations.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"eventregistration/config"
	_ "eventregistration/docs"
	"eventregistration/internal/adapters/auth"
	redisadapter "eventregistration/internal/adapters/redis"
	deliveryhttp "eventregistration/internal/delivery/http"
	"eventregistration/internal/delivery/http/controllers"
	"eventregistration/internal/delivery/http/middleware"
	"eventregistration/internal/domain"
	"eventregistration/internal/repository/memory"
	"eventregistration/internal/repository/postgres"
	"eventregistration/internal/retry"
	"eventregistration/internal/services"
	"eventregistration/internal/telemetry"
)

const shutdownTimeout = 15 * time.Second

// stores is the storage backend selected by STORE_DRIVER.
type stores struct {
	events domain.EventStore
	regs   domain.RegistrationStore
	users  domain.UserRepository
	roles  domain.RoleRepository
	tx     domain.Transactor
	checks map[string]controllers.HealthCheck
	close  func() error
}

func main() {
	logger := config.NewLogger()
	if err := run(logger); err != nil {
		logger.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, telemetry.TracingConfig{
		Enabled:        cfg.OTelEnabled,
		ServiceName:    "eventregistration",
		ServiceVersion: "1.0",
		Environment:    cfg.Environment,
		CollectorAddr:  cfg.OTelEndpoint,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown failed", "err", err)
		}
	}()

	metrics, err := telemetry.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.close(); err != nil {
			logger.Warn("closing store failed", "err", err)
		}
	}()

	idempotency := middleware.IdempotencyConfig{TTL: cfg.IdempotencyTTL, Logger: logger}
	if cfg.RedisAddr != "" {
		rdb, err := openRedis(ctx, cfg)
		if err != nil {
			// registrations still work without replay protection
			logger.Warn("redis unavailable, idempotency keys disabled", "addr", cfg.RedisAddr, "err", err)
		} else {
			defer rdb.Close()
			idempotency.Redis = rdb
			st.checks["redis"] = redisadapter.HealthCheck(rdb)
			logger.Info("redis connected", "addr", cfg.RedisAddr)
		}
	}

	ledgerRetry := retry.Config{
		MaxAttempts:     cfg.LedgerMaxAttempts,
		InitialInterval: cfg.LedgerRetryBackoff,
		MaxInterval:     20 * cfg.LedgerRetryBackoff,
		Multiplier:      2,
		JitterFactor:    0.2,
	}
	serviceRetry := ledgerRetry
	serviceRetry.MaxAttempts = cfg.ServiceMaxAttempts
	serviceRetry.InitialInterval = 4 * cfg.LedgerRetryBackoff

	jwt := auth.NewJWT(cfg.JWTSecret)
	ledger := services.NewSeatLedger(st.tx, st.regs, logger, metrics, ledgerRetry)
	authSvc := services.NewAuthService(st.users, st.roles, auth.NewBcryptHasher(bcrypt.DefaultCost), jwt, cfg.JWTExpiry)
	eventSvc := services.NewEventService(st.events, st.tx, ledger, logger, cfg.RequestTimeout)
	regSvc := services.NewRegistrationService(ledger, st.events, serviceRetry, logger)

	handler := deliveryhttp.NewHandler(deliveryhttp.RouterDeps{
		Logger:                 logger,
		Metrics:                metrics,
		MetricsHandler:         promhttp.Handler(),
		Verifier:               jwt,
		Idempotency:            idempotency,
		CORSAllowedOrigins:     cfg.CORSAllowedOrigins,
		AuthController:         controllers.NewAuthController(logger, authSvc),
		EventController:        controllers.NewEventController(logger, eventSvc),
		RegistrationController: controllers.NewRegistrationController(logger, regSvc),
		HealthController:       controllers.NewHealthController(logger, st.checks, 2*time.Second),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", srv.Addr, "env", cfg.Environment, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stores, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		logger.Warn("using in-memory store, data is lost on restart")
		store := memory.New()
		return &stores{
			events: store.Events(),
			regs:   store.Registrations(),
			users:  store.Users(),
			roles:  store.Roles(),
			tx:     store,
			checks: map[string]controllers.HealthCheck{},
			close:  func() error { return nil },
		}, nil
	}

	db, err := sql.Open("postgres", cfg.DBUrl)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("database connected")

	return &stores{
		events: postgres.NewEventRepository(db),
		regs:   postgres.NewRegistrationRepository(db),
		users:  postgres.NewUserRepository(db),
		roles:  postgres.NewRoleRepository(db),
		tx:     postgres.NewTransactor(db, cfg.LedgerTxTimeout),
		checks: map[string]controllers.HealthCheck{"database": db.PingContext},
		close:  db.Close,
	}, nil
}

func openRedis(ctx context.Context, cfg *config.Config) (*goredis.Client, error) {
	rc := redisadapter.DefaultConfig()
	rc.Addr = cfg.RedisAddr
	rc.Password = cfg.RedisPassword
	rc.DB = cfg.RedisDB
	return redisadapter.NewClient(ctx, rc)
}
