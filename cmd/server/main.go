package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	appcustody "github.com/vaultbridge/backend/internal/application/custody"
	"github.com/vaultbridge/backend/internal/domain/custody"
	"github.com/vaultbridge/backend/internal/domain/shared/valueobject"
	"github.com/vaultbridge/backend/internal/infrastructure/config"
	"github.com/vaultbridge/backend/internal/infrastructure/event"
	"github.com/vaultbridge/backend/internal/infrastructure/ledger"
	"github.com/vaultbridge/backend/internal/infrastructure/logger"
	"github.com/vaultbridge/backend/internal/infrastructure/persistence"
	"github.com/vaultbridge/backend/internal/infrastructure/telemetry"
	"github.com/vaultbridge/backend/internal/interfaces/http/handler"
	"github.com/vaultbridge/backend/internal/interfaces/http/middleware"
	"github.com/vaultbridge/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting vaultbridge",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	ctx := context.Background()

	// Telemetry
	providers, err := telemetry.NewProviders(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
		MetricInterval:    cfg.Telemetry.MetricInterval,
		ExportLogs:        cfg.Telemetry.ExportLogs,
		SpanProfiles:      cfg.Telemetry.ProfilingEnabled,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	if level, err := logger.ParseLevel(cfg.Log.Level); err == nil {
		log = providers.Bridge(log, cfg.Telemetry.ServiceName, level)
	}
	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilingEnabled,
		ServerAddress:   cfg.Telemetry.ProfilingServer,
		ApplicationName: cfg.Telemetry.ServiceName,
		Tags:            map[string]string{"env": cfg.App.Env, "version": version},
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	meter := providers.Meter(telemetry.TracerName)
	custodyMetrics, err := telemetry.NewCustodyMetrics(meter)
	if err != nil {
		log.Fatal("Failed to create custody metrics", zap.Error(err))
	}

	// Operation journal
	db, err := persistence.NewDatabase(cfg.Database, cfg.Log.Level, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected", zap.String("driver", cfg.Database.Driver))
	journal := persistence.NewGormOperationJournal(db.DB)

	// Event bus: completion events feed the journal
	bus := event.NewInMemoryEventBus(log)
	journalHandler := persistence.NewJournalHandler(journal)
	bus.Subscribe(journalHandler, journalHandler.EventTypes()...)
	if err := bus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	// Execution environment
	l := ledger.New(log)
	if err := seedLedger(ctx, l, cfg.Ledger); err != nil {
		log.Fatal("Failed to seed ledger", zap.Error(err))
	}
	log.Info("Ledger seeded",
		zap.Int("tokens", len(cfg.Ledger.Tokens)),
		zap.Int("vaults", len(cfg.Ledger.Vaults)),
		zap.Int("balances", len(cfg.Ledger.Balances)),
	)

	// Custodian
	self := valueobject.MustParseAddress(cfg.Custody.Address)
	owner := valueobject.ZeroAddress
	if cfg.Custody.Owner != "" {
		owner = valueobject.MustParseAddress(cfg.Custody.Owner)
	}
	custodian, err := custody.NewCustodian(self, l, l, custody.NewPolicy(owner, cfg.Custody.DefaultMinShares))
	if err != nil {
		log.Fatal("Failed to create custodian", zap.Error(err))
	}
	service := appcustody.NewService(custodian, bus, journal, custodyMetrics)

	// Set Gin mode based on environment
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := middleware.SetupValidator(); err != nil {
		log.Fatal("Failed to set up request validation", zap.Error(err))
	}

	routerCfg := router.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		TracingEnabled: providers.Enabled(),
		MaxBodySize:    cfg.HTTP.MaxBodySize,

		ProfilingEnabled: profiler.Enabled(),
	}
	if cfg.HTTP.TokenSecret != "" {
		if routerCfg.Tokens, err = middleware.NewTokenVerifier(cfg.HTTP.TokenSecret, cfg.HTTP.TokenIssuer); err != nil {
			log.Fatal("Failed to create token verifier", zap.Error(err))
		}
		log.Info("Caller authentication: bearer tokens")
	} else {
		log.Warn("Caller authentication: unauthenticated " + middleware.CallerHeader + " header")
	}

	engine := router.NewEngine(routerCfg, log, meter, router.Handlers{
		Custody: handler.NewCustodyHandler(service),
		Ledger:  handler.NewLedgerHandler(l),
		System:  handler.NewSystemHandler(cfg.App.Name, version, db),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      engine,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting",
			zap.String("addr", srv.Addr),
			zap.String("custodian", self.String()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := bus.Stop(shutdownCtx); err != nil {
		log.Warn("Event bus did not drain", zap.Error(err))
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Warn("Telemetry shutdown failed", zap.Error(err))
	}
	if err := profiler.Stop(); err != nil {
		log.Warn("Profiler shutdown failed", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
