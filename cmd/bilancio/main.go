package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"bilancio/internal/aggregate"
	"bilancio/internal/amqp"
	"bilancio/internal/cache"
	"bilancio/internal/cli"
	"bilancio/internal/dashboard"
	"bilancio/internal/events"
	apphttp "bilancio/internal/http"
	"bilancio/internal/log"
	"bilancio/internal/metrics"
	"bilancio/internal/scheduler"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type mountable interface {
	Name() string
	Mount(ctx context.Context) error
	Unmount()
}

func main() {
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		log.New(log.DefaultConfig()).Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg)
	logger.Info("Starting bilancio", "backend", cfg.DataBackend, "port", cfg.Port)

	m := metrics.New()
	bus := events.New(events.WithLogger(logger), events.WithObserver(m))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res, err := cli.OpenBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err)
		os.Exit(1)
	}

	// Every write and every event clears the cache; the invalidator must
	// subscribe before the panels so they refetch fresh data.
	cached := cache.NewSource(res.Source, cfg.CacheSize, cfg.CacheTTL)
	cacheManager := cache.NewManager(logger)
	cached.Register(cacheManager)
	cacheManager.StartCleanup(cfg.CacheTTL)
	invalidator := cache.NewInvalidator(cacheManager, logger)
	invalidator.Attach(bus)

	snapshots := dashboard.NewSnapshots()
	deps := dashboard.Deps{Bus: bus, Source: cached, Logger: logger, Observer: m}
	panels := []mountable{
		dashboard.NewSuppliersPanel(deps, dashboard.SnapshotRenderer[dashboard.PartyView](snapshots)),
		dashboard.NewCustomersPanel(deps, dashboard.SnapshotRenderer[dashboard.PartyView](snapshots)),
		dashboard.NewProfitLossPanel(deps, aggregate.ByMonth, dashboard.SnapshotRenderer[dashboard.ProfitLossView](snapshots)),
		dashboard.NewTaxPanel(deps, cfg.Rate(), aggregate.ByQuarter, dashboard.SnapshotRenderer[dashboard.TaxView](snapshots)),
	}
	for _, p := range panels {
		// a failed first fetch is rendered; the panel stays mounted
		if err := p.Mount(ctx); err != nil {
			logger.Warn("Initial panel refresh failed", log.FieldPanel, p.Name(), log.FieldError, err)
		}
	}

	service := dashboard.NewService(cached, bus, logger)

	var amqpClient *amqp.Client
	var bridge *amqp.Bridge
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		bridge = amqp.NewBridge(amqpClient, bus, instanceID(), logger)
		bridge.Attach()
		go func() {
			if err := amqpClient.Consume(ctx, bridge.HandleRemote); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("AMQP consumption stopped", log.FieldError, err)
			}
		}()
		logger.Info("AMQP bridge started", "exchange", cfg.AMQPExchange)
	} else {
		logger.Info("AMQP bridge disabled - no AMQP_URL provided")
	}

	syncService := scheduler.NewSyncService(bus, cfg.SyncInterval, logger)
	if err := syncService.Start(ctx); err != nil {
		logger.Error("Failed to start periodic sync", log.FieldError, err)
		os.Exit(1)
	}

	httpDeps := apphttp.Deps{
		Source:    cached,
		Service:   service,
		Snapshots: snapshots,
		Metrics:   m,
		Logger:    logger,
		VATRate:   cfg.Rate(),
	}
	if p, ok := res.Source.(pinger); ok {
		httpDeps.Ready = p.Ping
	}
	srv := apphttp.NewServer(":"+cfg.Port, httpDeps)

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		syncService.Stop()
		if bridge != nil {
			bridge.Detach()
		}
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("AMQP close failed", log.FieldError, err)
			}
		}
		for _, p := range panels {
			p.Unmount()
		}
		invalidator.Detach(bus)
		cacheManager.Stop()
		if err := res.Cleanup(); err != nil {
			logger.Warn("Backend cleanup failed", log.FieldError, err)
		}
	})
	go func() {
		<-shutdownCtx.Done()
		cancel()
	}()

	logger.Info("HTTP server listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}

// instanceID names this process on the AMQP exchange so its own messages
// can be recognised and dropped.
func instanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "bilancio"
	}
	return host + "-" + uuid.NewString()[:8]
}
