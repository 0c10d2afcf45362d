package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"posdrawer/backend/internal/cache"
	"posdrawer/backend/internal/config"
	"posdrawer/backend/internal/httpapi"
	"posdrawer/backend/internal/service"
	"posdrawer/backend/internal/settings"
	"posdrawer/backend/internal/store"
	"posdrawer/backend/internal/store/memory"
	pgstore "posdrawer/backend/internal/store/postgres"
)

func newServeCommand() *cobra.Command {
	var skipMigrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), config.Load(), skipMigrate)
		},
	}
	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not apply schema migrations on startup")
	return cmd
}

func runServe(parent context.Context, cfg config.Config, skipMigrate bool) error {
	logger, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if err := validateSecurityConfig(cfg); err != nil {
		logger.Error("invalid security configuration", zap.Error(err))
		return err
	}
	reportLoc, _ := cfg.ReportLocation()

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
			return err
		}
		closers = append(closers, pg.Close)
		if !skipMigrate {
			if err := pg.Migrate(ctx); err != nil {
				_ = pg.Close()
				return err
			}
		}
		repo = pg
		logger.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded(logger)
		logger.Info("repository: in-memory")
	}

	var settingsCache cache.SettingsCache = cache.NewMemorySettingsCache()
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisSettingsCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, using in-process settings cache", zap.Error(err))
			_ = redisCache.Close()
		} else {
			settingsCache = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info("cache: redis")
		}
	} else {
		logger.Info("cache: memory")
	}

	settingsSvc := settings.New(repo, settingsCache, cfg.SettingsTTL(), settings.Defaults{
		CurrencyCode:   cfg.DefaultCurrency,
		CurrencySymbol: cfg.DefaultCurrencySymbol,
		MinorUnits:     cfg.DefaultMinorUnits,
	}, logger)
	svc := service.New(repo, settingsSvc, logger, service.WithReportLocation(reportLoc))
	auth := httpapi.NewAuthManager(ctx, cfg.AuthSecret, cfg.AccessTokenTTL(), repo, logger)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, logger)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("drawer backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("server error", zap.Error(err))
			closeAll(logger, closers)
			return err
		}
	case <-sigCtx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
	closeAll(logger, closers)

	logger.Info("server stopped")
	return nil
}

func closeAll(logger *zap.Logger, closers []func() error) {
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Warn("close error", zap.Error(err))
		}
	}
}
