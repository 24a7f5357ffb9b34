package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	httpapi "github.com/immxrtalbeast/filap/internal/api/http"
	"github.com/immxrtalbeast/filap/internal/config"
	"github.com/immxrtalbeast/filap/internal/events"
	"github.com/immxrtalbeast/filap/internal/gateway"
	"github.com/immxrtalbeast/filap/internal/identity"
	"github.com/immxrtalbeast/filap/internal/reaper"
	"github.com/immxrtalbeast/filap/internal/repository"
	"github.com/immxrtalbeast/filap/internal/service"
	"github.com/immxrtalbeast/filap/lib/logger/sl"
	"github.com/immxrtalbeast/filap/lib/logger/slogpretty"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	_ = godotenv.Load(".env")

	cfg := config.MustLoad()
	log := setupLogger(cfg.Env)
	if cfg.Env == config.EnvProd {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := setupStore(cfg.Storage)
	if err != nil {
		log.Error("failed to set up storage", slog.String("driver", cfg.Storage.Driver), sl.Err(err))
		os.Exit(1)
	}

	tokens, err := identity.NewTokenIssuer(cfg.Auth.TokenSigningKey, cfg.Auth.TokenIssuer, nil)
	if err != nil {
		log.Error("failed to set up token issuer", sl.Err(err))
		os.Exit(1)
	}

	broadcaster := events.NewBroadcaster(log, cfg.SSE.BufferSize)
	var publisher events.Publisher = broadcaster

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		relay := events.NewRedisRelay(rdb, cfg.Redis.Channel, broadcaster, log)
		if err := relay.Start(ctx); err != nil {
			log.Error("failed to start redis relay", slog.String("addr", cfg.Redis.Address), sl.Err(err))
			os.Exit(1)
		}
		defer relay.Close()
		defer rdb.Close()
		publisher = relay
	}

	deps := service.Deps{
		Store:     store,
		Secrets:   identity.NewSecretHasher(cfg.Auth.SecretPepper),
		Tokens:    tokens,
		Publisher: publisher,
		Log:       log,
	}
	queueService := service.NewQueueService(deps, cfg.Queue.TTL)
	messageService := service.NewMessageService(deps, service.VoteMode(cfg.Votes.Mode))
	handRaiseService := service.NewHandRaiseService(deps)

	streams := gateway.New(broadcaster, log, gateway.Options{
		HeartbeatInterval: cfg.SSE.HeartbeatInterval,
		Retry:             cfg.SSE.Retry,
	})

	cleaner := reaper.New(store.Queues, broadcaster, log, nil, cfg.Reaper.Schedule)
	if err := cleaner.Start(ctx); err != nil {
		log.Error("failed to start reaper", sl.Err(err))
		os.Exit(1)
	}
	defer cleaner.Stop()

	router := httpapi.SetupRouter(log, httpapi.RouterConfig{
		AllowOrigins: cfg.CORS.AllowOrigins,
		AdminToken:   cfg.System.AdminToken,
	}, httpapi.Controllers{
		Queues:     httpapi.NewQueueController(queueService, log),
		Messages:   httpapi.NewMessageController(messageService, log),
		HandRaises: httpapi.NewHandRaiseController(handRaiseService, log),
		Events:     httpapi.NewEventController(queueService, streams, log),
		System:     httpapi.NewSystemController(queueService, broadcaster, cleaner, log),
	})

	// No write timeout: event streams stay open for the life of a queue.
	srv := &http.Server{
		Addr:        cfg.HTTP.Address,
		Handler:     router,
		ReadTimeout: cfg.HTTP.ReadTimeout,
		IdleTimeout: cfg.HTTP.IdleTimeout,
	}

	go func() {
		log.Info("starting application",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("env", cfg.Env),
			slog.String("storage", cfg.Storage.Driver),
			slog.String("votes_mode", cfg.Votes.Mode),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped", sl.Err(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	// Streams only end when their subscriptions close.
	broadcaster.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", sl.Err(err))
	}
	log.Info("stopped")
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case config.EnvLocal:
		log = setupPrettySlog()
	case config.EnvDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case config.EnvProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = setupPrettySlog()
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}

func setupStore(cfg config.StorageConfig) (*repository.Store, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case config.DriverMemory:
		return repository.NewInMemoryStore(), nil
	case config.DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	case config.DriverSQLite:
		dialector = sqlite.Open(repository.SQLiteDSN(cfg.DSN))
	default:
		return nil, errors.New("unknown storage driver " + cfg.Driver)
	}

	db, err := connectDatabase(dialector, cfg)
	if err != nil {
		return nil, err
	}
	return repository.NewGormStore(db), nil
}

func connectDatabase(dialector gorm.Dialector, cfg config.StorageConfig) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database dsn is empty")
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, err
	}

	if err := repository.Migrate(db); err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return db, nil
}
