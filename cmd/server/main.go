// Package main is the entry point for the graduation photo registration server.
//
// The main package is kept minimal. Its job is to:
//  1. Read configuration (.env file, then environment variables)
//  2. Create the outside-world dependencies (logger, store, SSO client, rate limiter)
//  3. Start the application
//
// All actual logic lives in the internal/ packages.
package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/sakif/graduation-photo/internal/auth"
	"github.com/sakif/graduation-photo/internal/config"
	"github.com/sakif/graduation-photo/internal/ratelimit"
	"github.com/sakif/graduation-photo/internal/repository"
	"github.com/sakif/graduation-photo/internal/repository/postgres"
	"github.com/sakif/graduation-photo/internal/repository/sqlite"
	"github.com/sakif/graduation-photo/internal/server"
)

func main() {
	// === 1. READ CONFIGURATION ===
	// A .env file is optional; real environment variables win over it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to read .env", slog.String("error", err.Error()))
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	if cfg.InsecureJWTSecret() {
		logger.Warn("JWT_SECRET not set, using the built-in development secret; anyone can forge tokens")
	}

	// === 3. OPEN THE STORE ===
	store, err := openStore(cfg, logger)
	if err != nil {
		logger.Error("failed to open database",
			slog.String("driver", cfg.DBDriver),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// === 4. LOGIN RATE LIMITER ===
	// Redis shares the limit across replicas; without it each process keeps
	// its own buckets.
	var limiter ratelimit.Limiter
	if cfg.RedisAddr != "" {
		client := ratelimit.NewRedisClient(cfg.RedisAddr)
		defer client.Close()
		limiter = ratelimit.NewRedis(client, "gradphoto:login:", cfg.LoginRatePerMin)
		logger.Info("login rate limit backed by redis", slog.String("addr", cfg.RedisAddr))
	} else {
		limiter = ratelimit.NewMemory(cfg.LoginRatePerMin)
	}

	// === 5. CREATE AND START THE SERVER ===
	srv, err := server.New(cfg, server.Deps{
		Store:    store,
		Identity: auth.NewCASClient(cfg.CASBaseURL, cfg.CASServiceURL, nil, logger),
		Limiter:  limiter,
	}, logger)
	if err != nil {
		store.Close()
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func openStore(cfg config.Config, logger *slog.Logger) (repository.Store, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return postgres.New(ctx, cfg.DatabaseURL)
	default:
		// os.MkdirAll creates the data directory if needed (like `mkdir -p`).
		if cfg.DBPath != ":memory:" {
			dir := filepath.Dir(cfg.DBPath)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
		logger.Info("using sqlite", slog.String("path", cfg.DBPath))
		return sqlite.New(cfg.DBPath)
	}
}
