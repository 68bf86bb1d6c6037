package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"license-lease-system/internal/config"
	"license-lease-system/internal/database"
	"license-lease-system/internal/handler"
	"license-lease-system/internal/metrics"
	"license-lease-system/internal/service"
	"license-lease-system/internal/storage"
	"license-lease-system/internal/token"
)

func main() {
	cfg := config.FromEnv()
	cfg.BindFlags(pflag.CommandLine)
	pflag.Parse()

	log := newLogger(cfg)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.LeaseSigningSecret == "" {
		log.Warn("LEASE_SIGNING_SECRET is not set, lease issuance and resolution will fail with CONFIG_ERROR")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 初始化数据库
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	if created, err := database.EnsureBootstrapAdmin(db, cfg.BootstrapTenantID, cfg.BootstrapAdminUsername, cfg.BootstrapAdminPassword); err != nil {
		return err
	} else if created {
		log.Info("bootstrap admin created", "tenant_id", cfg.BootstrapTenantID, "username", cfg.BootstrapAdminUsername)
	}

	provider, err := storage.NewFromConfig(ctx, cfg)
	if err != nil {
		return err
	}
	if closer, ok := provider.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	var mirror service.AuditMirror
	sheet, err := service.NewAuditSheetMirror(cfg.SheetSyncEnabled, cfg.SheetCredentialPath, cfg.SheetSpreadsheetID, cfg.SheetName, log)
	if err != nil {
		return err
	}
	if sheet != nil {
		mirror = sheet
	}

	m := metrics.New()
	opts := []service.Option{service.WithLogger(log), service.WithMetrics(m)}

	codec := token.NewCodec(cfg.LeaseSigningSecret)
	vms := service.NewVmRegistry(db, opts...)
	licenses := service.NewLicenseEntitlementGuard(db, opts...)
	resolver := service.NewLeaseResolver(db, codec, opts...)
	releases := service.NewReleaseCatalog(db, opts...)
	assignments := service.NewArtifactAssignmentResolver(db, opts...)
	audit := service.NewAuditStore(db, mirror, opts...)

	h := handler.New(handler.Deps{
		Config:      cfg,
		DB:          db,
		Issuer:      service.NewLeaseIssuer(db, cfg, codec, service.NewVmOwnershipGuard(vms, opts...), licenses, opts...),
		Lifecycle:   service.NewLeaseLifecycleManager(db, opts...),
		Vms:         vms,
		Releases:    releases,
		Assignments: assignments,
		Downloads:   service.NewArtifactDownloadOrchestrator(cfg, resolver, assignments, releases, provider, audit, opts...),
		Audit:       audit,
		Logger:      log,
		Metrics:     adaptor.HTTPHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})),
	})

	// 中间件
	app := handler.NewApp(h, logger.New(), cors.New())

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.ListenAddr, "storage", cfg.StorageProvider)
		errCh <- app.Listen(cfg.ListenAddr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
