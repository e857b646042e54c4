package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"todoapi/internal/auth"
	"todoapi/internal/cache"
	"todoapi/internal/health"
	"todoapi/internal/logger"
	"todoapi/internal/server"
	"todoapi/internal/service"
	db "todoapi/repository/db"
	"todoapi/repository/gormstore"
	inmemory "todoapi/repository/inmemory"
)

const shutdownTimeout = 30 * time.Second

type apiServer interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// Backend is an open repository together with what health reports show
// about it.
type Backend struct {
	Repo   service.Repository
	Target string
	Kind   string
	close  func()
}

func (b *Backend) Close() {
	if b.close != nil {
		b.close()
	}
}

func memoryBackend() *Backend {
	return &Backend{Repo: inmemory.NewStorage(), Target: server.StoreMemory, Kind: server.StoreMemory}
}

func RunMigrations(cfg *server.Config) error {
	return db.Migration(cfg.DBStr, cfg.MigratePath)
}

// OpenRepository opens the configured store. An unreachable Postgres falls
// back to in-memory storage; a broken SQLite file is an error.
func OpenRepository(cfg *server.Config) (*Backend, error) {
	switch cfg.Store {
	case server.StoreMemory:
		logger.Info("using in-memory storage")
		return memoryBackend(), nil
	case server.StoreSQLite:
		s, err := gormstore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		logger.Info("using sqlite storage", "path", cfg.SQLitePath)
		return &Backend{Repo: s, Target: cfg.SQLitePath, Kind: server.StoreSQLite, close: func() { _ = s.Close() }}, nil
	}

	if err := RunMigrations(cfg); err != nil {
		logger.Warn("failed to apply migrations, using in-memory storage", "error", err)
		return memoryBackend(), nil
	}
	s, err := db.NewStorage(cfg.DBStr)
	if err != nil {
		logger.Warn("failed to connect to database, using in-memory storage", "error", err)
		return memoryBackend(), nil
	}
	return &Backend{Repo: s, Target: health.Target(cfg.DBStr), Kind: server.StorePostgres, close: s.Close}, nil
}

// StartServer runs api in the background. The returned channels deliver
// SIGINT/SIGTERM and a failed Start respectively.
func StartServer(api apiServer) (chan os.Signal, chan error) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		if err := api.Start(); err != nil {
			serverErr <- err
		}
	}()
	return sigChan, serverErr
}

func HandleShutdown(api apiServer, sig os.Signal) error {
	logger.Info("shutting down", "signal", sig.String())
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := api.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logger.Info("graceful shutdown complete")
	return nil
}

func run() error {
	cfg, err := server.ReadConfig()
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := logger.Init(cfg.Log); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.Info("starting todo service", "version", cfg.Version, "environment", cfg.Environment, "store", cfg.Store)

	backend, err := OpenRepository(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	opts := health.Options{
		StartTime:      time.Now().UTC(),
		Version:        cfg.Version,
		Environment:    cfg.Environment,
		Database:       backend.Repo,
		DatabaseTarget: backend.Target,
	}
	if cfg.RedisURL != "" {
		client, err := cache.NewClient(cfg.RedisURL)
		if err != nil {
			logger.Warn("redis disabled", "error", err)
		} else {
			defer client.Close()
			opts.Cache = client
		}
	}

	tokens, err := auth.NewJWTManager(auth.JWTConfig{SecretKey: cfg.JWTSecret, TokenTTL: cfg.TokenTTL})
	if err != nil {
		return fmt.Errorf("init tokens: %w", err)
	}

	api := server.NewTodoAPI(cfg, backend.Repo, tokens, health.NewReporter(opts))
	if api == nil {
		return stderrors.New("failed to initialize API")
	}

	sigChan, serverErr := StartServer(api)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		return HandleShutdown(api, sig)
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	}
}

func main() {
	if err := run(); err != nil {
		logger.Error("service stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("service stopped")
}
