package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/leozw/inbound-guardian/internal/api"
	"github.com/leozw/inbound-guardian/internal/api/handlers"
	"github.com/leozw/inbound-guardian/internal/api/middleware"
	"github.com/leozw/inbound-guardian/internal/checker"
	"github.com/leozw/inbound-guardian/internal/config"
	"github.com/leozw/inbound-guardian/internal/metrics"
	"github.com/leozw/inbound-guardian/internal/planner"
	"github.com/leozw/inbound-guardian/internal/queue"
	"github.com/leozw/inbound-guardian/internal/receipt"
	"github.com/leozw/inbound-guardian/internal/ses"
	"github.com/leozw/inbound-guardian/internal/storage/memory"
	"github.com/leozw/inbound-guardian/internal/storage/postgres"
	"github.com/leozw/inbound-guardian/internal/storage/redis"
	"github.com/leozw/inbound-guardian/internal/usage"
	"github.com/leozw/inbound-guardian/internal/verification"
	"github.com/leozw/inbound-guardian/pkg/keycloak"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	readiness := map[string]handlers.ReadinessCheck{}

	// Store
	var store verification.Store
	if cfg.Database.URL != "" {
		db, err := postgres.NewConnection(cfg.Database.URL, cfg.Database.MaxConnections, cfg.Database.MaxIdleConns)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		if cfg.Database.AutoMigrate {
			if err := postgres.Migrate(db.DB.DB); err != nil {
				logger.Fatal("Failed to run migrations", zap.Error(err))
			}
			logger.Info("Database migrations applied")
		}

		store = db
		readiness["database"] = db.PingContext
	} else {
		logger.Warn("No database configured, using in-memory store")
		store = memory.NewStore()
	}

	// Redis: report cache and usage queue
	var (
		reportCache verification.ReportCache
		tracker     verification.UsageTracker
	)
	if cfg.Redis.URL != "" {
		client := redis.NewClient(cfg.Redis.URL)
		defer client.Close()

		reportCache = redis.NewReportCache(client, cfg.Redis.ReportTTL)
		if cfg.Usage.Enabled {
			tracker = usage.NewTracker(queue.NewRedisQueue(client.Client, cfg.Usage.Queue), collector, logger)
		}
		readiness["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}

	// DNS
	resolver := checker.NewDNSResolver(checker.ResolverConfig{
		Nameserver: cfg.DNS.Nameserver,
		Timeout:    cfg.DNS.Timeout,
	}, collector)

	var registrar checker.RegistrarLookup
	if cfg.DNS.WhoisEnabled {
		registrar = checker.NewWhoisRegistrar(cfg.DNS.WhoisTimeout)
	}
	detector := checker.NewProviderDetector(resolver, registrar, logger)

	plan := planner.New(planner.Config{
		VerificationPrefix: cfg.Mail.VerificationPrefix,
		InboundMXHost:      cfg.Mail.InboundMXHost,
		MXPriority:         cfg.Mail.MXPriority,
		SPFInclude:         cfg.Mail.SPFInclude,
		DKIMTarget:         cfg.Mail.DKIMTarget,
	}, resolver)

	// Mail provider
	sesClient, err := ses.NewFromConfig(ctx, cfg.AWS, cfg.Mail, collector, logger)
	if err != nil {
		logger.Fatal("Failed to create SES client", zap.Error(err))
	}

	service := verification.NewService(verification.Dependencies{
		Store:    store,
		Resolver: resolver,
		Planner:  plan,
		Detector: detector,
		Identity: sesClient,
		Rules:    receipt.NewManager(sesClient, collector, logger),
		Cache:    reportCache,
		Usage:    tracker,
		Metrics:  collector,
	}, logger)

	// Auth
	var validator middleware.TokenValidator
	if cfg.Keycloak.URL != "" && cfg.Keycloak.Realm != "" {
		validator = keycloak.NewClient(cfg.Keycloak, logger)
	} else {
		if cfg.Auth.JWTSecret == "" {
			logger.Fatal("Either keycloak or auth.jwtsecret must be configured")
		}
		validator = middleware.SecretValidator{Secret: []byte(cfg.Auth.JWTSecret)}
	}

	if cfg.Mimir.Enabled && cfg.Mimir.URL != "" {
		writer := metrics.NewRemoteWriter(cfg.Mimir, registry, logger)
		go writer.Start(ctx)
		logger.Info("Metrics remote write enabled", zap.String("url", cfg.Mimir.URL))
	}

	server := api.NewServer(cfg, handlers.NewHandler(service, readiness, logger), validator, registry, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           server.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("API server started", zap.String("port", cfg.Server.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
