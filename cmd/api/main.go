package main

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fiemcasals/controlador/internal/camera"
	"github.com/fiemcasals/controlador/internal/config"
	"github.com/fiemcasals/controlador/internal/db"
	"github.com/fiemcasals/controlador/internal/logging"
	"github.com/fiemcasals/controlador/internal/server"
	"github.com/fiemcasals/controlador/internal/trajectory"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var mainDepsProvider = defaultDeps
var mainRunner = realMain

func main() {
	mainRunner(mainDepsProvider())
}

type mainDeps struct {
	loadConfig      func() config.Config
	newLogger       func(config.Config) zerolog.Logger
	connectPostgres func(config.Config) (*pgxpool.Pool, error)
	openSQLite      func(config.Config) (*sql.DB, error)
	connectRedis    func(config.Config) *redis.Client
	openCamera      func(config.Config, zerolog.Logger) (camera.FrameSource, camera.Detector)
	notify          func(chan<- os.Signal, ...os.Signal)
	run             func(context.Context, config.Config, server.Deps, <-chan os.Signal, ListenFunc) error
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig:      config.Load,
		newLogger:       newLogger,
		connectPostgres: db.ConnectPostgres,
		openSQLite:      db.OpenSQLite,
		connectRedis:    db.ConnectRedis,
		openCamera:      openCamera,
		notify:          signal.Notify,
		run:             Run,
	}
}

func newLogger(cfg config.Config) zerolog.Logger {
	return logging.New(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
}

func openCamera(cfg config.Config, logger zerolog.Logger) (camera.FrameSource, camera.Detector) {
	detector, err := camera.LoadDetector(cfg.DetectionPrototxt, cfg.DetectionModel)
	if err != nil {
		logger.Info().Err(err).Msg("detection overlay disabled")
	}
	return camera.OpenDefaultSource(), detector
}

func realMain(deps mainDeps) {
	cfg := deps.loadConfig()
	logger := deps.newLogger(cfg)

	store := openStore(context.Background(), cfg, deps, logger)
	rdb := deps.connectRedis(cfg)
	source, detector := deps.openCamera(cfg, logger)

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	srvDeps := server.Deps{
		Store:    store,
		Redis:    rdb,
		Source:   source,
		Detector: detector,
		Logger:   logger,
	}
	if err := deps.run(context.Background(), cfg, srvDeps, signals, nil); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
	}
}

// openStore picks the trajectory store named by STORE_DRIVER. A store that
// cannot be reached degrades to memory so the relay and camera still serve.
func openStore(ctx context.Context, cfg config.Config, deps mainDeps, logger zerolog.Logger) trajectory.Store {
	switch cfg.StoreDriver {
	case "memory":
		logger.Info().Msg("using in-memory trajectory store")
		return trajectory.NewMemoryStore()

	case "sqlite":
		conn, err := deps.openSQLite(cfg)
		if err != nil {
			logger.Error().Err(err).Str("path", cfg.SQLitePath).Msg("sqlite unavailable, using in-memory store")
			return trajectory.NewMemoryStore()
		}
		store := trajectory.NewSQLiteStore(conn)
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			logger.Error().Err(err).Msg("sqlite schema failed, using in-memory store")
			return trajectory.NewMemoryStore()
		}
		logger.Info().Str("path", cfg.SQLitePath).Msg("using sqlite trajectory store")
		return store

	default:
		pool, err := deps.connectPostgres(cfg)
		if err != nil {
			logger.Warn().Err(err).Msg("postgres connection failed, using in-memory store")
			return trajectory.NewMemoryStore()
		}
		store := trajectory.NewPostgresStore(pool, pool.Close)
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			logger.Error().Err(err).Msg("postgres schema failed, using in-memory store")
			return trajectory.NewMemoryStore()
		}
		logger.Info().Msg("using postgres trajectory store")
		return store
	}
}

type ListenFunc func(app *fiber.App, addr string) error

var defaultListen ListenFunc = func(app *fiber.App, addr string) error {
	return app.Listen(addr)
}

var shutdownFn = func(app *fiber.App, ctx context.Context) error {
	return app.ShutdownWithContext(ctx)
}

// Run starts the HTTP server and waits for termination signals. The store
// and redis client in deps are closed on return.
func Run(ctx context.Context, cfg config.Config, deps server.Deps, signals <-chan os.Signal, listen ListenFunc) error {
	srv, err := server.NewServer(cfg, deps)
	if err != nil {
		return err
	}
	defer closeResources(srv, deps)

	if listen == nil {
		listen = defaultListen
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- listen(srv.App, cfg.ServerPort)
	}()

	select {
	case <-signals:
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return shutdownFn(srv.App, shutdownCtx)
}

func closeResources(srv *server.Server, deps server.Deps) {
	logger := deps.Logger
	if err := srv.Close(); err != nil {
		logger.Warn().Err(err).Msg("close server")
	}
	if srv.Store != nil {
		if err := srv.Store.Close(); err != nil {
			logger.Warn().Err(err).Msg("close trajectory store")
		}
	}
	if deps.Redis != nil {
		if err := deps.Redis.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			logger.Warn().Err(err).Msg("close redis")
		}
	}
}
