package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "crimesleuth/docs" // swagger docs

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"crimesleuth/internal/auth"
	"crimesleuth/internal/cache"
	"crimesleuth/internal/config"
	"crimesleuth/internal/db"
	"crimesleuth/internal/handler"
	"crimesleuth/internal/logging"
	"crimesleuth/internal/mlclient"
	"crimesleuth/internal/repository"
	"crimesleuth/internal/router"
	"crimesleuth/internal/service"
	"crimesleuth/internal/storage"
)

const shutdownTimeout = 15 * time.Second

// @title CrimeSleuth API
// @version 1.0
// @description Case, evidence and chain-of-custody management with JWT authentication.
// @host localhost:8080
// @BasePath /api
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gormDB, err := db.Open(cfg.DBDriver, cfg.DatabaseDSN, logger)
	if err != nil {
		return err
	}
	if cfg.ResetDB {
		logger.Warn("RESET_DB set, dropping all tables")
		if err := db.Reset(gormDB); err != nil {
			return err
		}
	}
	if err := db.Migrate(gormDB); err != nil {
		return err
	}

	cacheClient := cache.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer cacheClient.Close()
	if err := cacheClient.Ping(ctx); err != nil {
		logger.Warn("redis unavailable, running without cache and token revocation", "addr", cfg.RedisAddr, "error", err)
	}

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	mlClient := mlclient.New(cfg.MLServiceURL, cfg.MLTimeout, logger.With("component", "mlclient"))
	if !mlClient.Configured() {
		logger.Info("ML_SERVICE_URL not set, image analysis disabled")
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(gormDB)
	caseRepo := repository.NewCaseRepository(gormDB)
	evidenceRepo := repository.NewEvidenceRepository(gormDB)

	// Initialize auth components
	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL)
	tokenStore := auth.NewTokenStore(cacheClient)

	// Initialize services
	authService := service.NewAuthService(userRepo, jwtService, tokenStore, logger)
	userService := service.NewUserService(userRepo, cacheClient)
	caseService := service.NewCaseService(caseRepo, userRepo, cacheClient, logger)
	evidenceService := service.NewEvidenceService(evidenceRepo, caseRepo, store, mlClient, cacheClient, logger)
	mlService := service.NewMLService(mlClient, logger)

	deps := router.Deps{
		Config:      cfg,
		Logger:      logger,
		AuthService: authService,
		Auth:        handler.NewAuthHandler(authService, !cfg.IsProduction()),
		User:        handler.NewUserHandler(userService, authService),
		Case:        handler.NewCaseHandler(caseService),
		Evidence:    handler.NewEvidenceHandler(evidenceService),
		ML:          handler.NewMLHandler(mlService),
	}
	if disk, ok := store.(*storage.DiskStore); ok {
		deps.Uploads = disk
	}

	e := echo.New()
	router.Register(e, deps)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.ServerPort
		logger.Info("server listening", "addr", addr, "env", cfg.Environment, "docs", "/swagger/index.html")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		_ = sqlDB.Close()
	}
	return nil
}
