package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fleetgate/fleetgate/internal/app"
	"github.com/fleetgate/fleetgate/internal/auth"
	"github.com/fleetgate/fleetgate/internal/authz"
	"github.com/fleetgate/fleetgate/internal/devices"
	"github.com/fleetgate/fleetgate/internal/observability"
	"github.com/fleetgate/fleetgate/internal/platform/cache"
	"github.com/fleetgate/fleetgate/internal/platform/db"
	"github.com/fleetgate/fleetgate/internal/permissions"
	"github.com/fleetgate/fleetgate/internal/roles"
	"github.com/fleetgate/fleetgate/internal/shared"
	"github.com/fleetgate/fleetgate/internal/users"
	"github.com/fleetgate/fleetgate/internal/vehicles"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	directory := authz.NewStore(dbpool)
	engine := authz.NewEngine(directory, logger, authz.EngineConfig{Observer: metrics})

	auditLogger := shared.NewAuditLogger(dbpool)

	tokenIssuer := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	revoker := auth.NewRevoker(redisClient)
	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo, tokenIssuer, revoker, logger)
	authHandler := auth.NewHandler(logger, authService, tokenIssuer)
	authMiddleware := auth.Middleware{Issuer: tokenIssuer, Revoker: revoker, Logger: logger}

	rolesRepo := roles.NewPGRepository(dbpool)
	rolesService := roles.NewService(rolesRepo, engine, auditLogger, logger)
	rolesHandler := roles.NewHandler(logger, rolesService)

	permissionsRepo := permissions.NewPGRepository(dbpool)
	permissionsService := permissions.NewService(permissionsRepo, engine, auditLogger, logger)
	permissionsHandler := permissions.NewHandler(logger, permissionsService)

	devicesRepo := devices.NewPGRepository(dbpool)
	devicesService := devices.NewService(devicesRepo, engine, auditLogger, logger)
	devicesHandler := devices.NewHandler(logger, devicesService)

	vehiclesRepo := vehicles.NewPGRepository(dbpool)
	vehiclesService := vehicles.NewService(vehiclesRepo, engine, auditLogger, logger)
	vehiclesHandler := vehicles.NewHandler(logger, vehiclesService)

	usersRepo := users.NewPGRepository(dbpool)
	usersService := users.NewService(usersRepo, rolesRepo, devicesRepo, vehiclesRepo, engine, auditLogger, logger)
	usersHandler := users.NewHandler(logger, usersService)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		AuthHandler:        authHandler,
		AuthMiddleware:     authMiddleware,
		UsersHandler:       usersHandler,
		RolesHandler:       rolesHandler,
		PermissionsHandler: permissionsHandler,
		DevicesHandler:     devicesHandler,
		VehiclesHandler:    vehiclesHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
