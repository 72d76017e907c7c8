package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/chopchop-backend/config"
	"github.com/yeremiapane/chopchop-backend/database"
	"github.com/yeremiapane/chopchop-backend/live"
	"github.com/yeremiapane/chopchop-backend/notify"
	"github.com/yeremiapane/chopchop-backend/router"
	"github.com/yeremiapane/chopchop-backend/services"
	"github.com/yeremiapane/chopchop-backend/status"
	"github.com/yeremiapane/chopchop-backend/tracing"
	"github.com/yeremiapane/chopchop-backend/utils"
	"gorm.io/gorm"
)

func main() {
	cfg := config.Load()
	utils.InitLogger(cfg.LogLevel, cfg.LogFormat)

	if cfg.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracing.InitTracer(tracing.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
		SampleRate:  cfg.TraceSampleRate,
	})
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to initialize tracing: %v", err)
	}

	// Initialize DB
	db, err := config.InitDB(cfg)
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		utils.ErrorLogger.Fatalf("Failed to AutoMigrate: %v", err)
	}

	table, err := status.LoadTable(cfg.StatusTableFile)
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to load status table: %v", err)
	}

	var publisher notify.Publisher = notify.NopPublisher{}
	if cfg.AMQPURL != "" {
		amqpPublisher, err := notify.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			utils.ErrorLogger.Printf("Order events disabled: %v", err)
		} else {
			publisher = amqpPublisher
		}
	}
	defer publisher.Close()

	store := services.NewOrderStore(db, services.NewOrderTransformer(table))
	resolver := services.NewVendorResolver(store, cfg.BroadcastUnmatchedVendors)

	projector := services.NewProjectionWorker(store)
	projector.Interval = cfg.ProjectionInterval
	projector.MaxAttempts = cfg.ProjectionMaxAttempts

	syncService := services.NewOrderSyncService(store, resolver, projector, publisher)
	queries := services.NewOrderQueryService(store, cfg.CacheTTL)
	syncService.Cache = queries

	menuverse := services.NewMenuverseService(services.MenuverseConfig{
		URL:     cfg.MenuverseURL,
		APIKey:  cfg.MenuverseAPIKey,
		Timeout: cfg.MenuverseTimeout,
	})
	reconciler := services.NewOrderReconciler(store, syncService, menuverse)

	hub := live.NewHub()
	monitor := services.NewChangeMonitor(store, hub)
	monitor.Interval = cfg.ChangeMonitorInterval

	projector.Start(ctx)
	defer projector.Stop()
	monitor.Start(ctx)
	defer monitor.Stop()
	if cfg.SyncInterval > 0 {
		go services.NewSyncWorker(reconciler, cfg.SyncInterval).Run(ctx)
	}
	go pruneChanges(ctx, db)

	r := router.SetupRouter(router.Dependencies{
		Config:      cfg,
		DB:          db,
		Store:       store,
		Sync:        syncService,
		Queries:     queries,
		Reconciler:  reconciler,
		Restaurants: menuverse,
		Upstream:    menuverse,
		Hub:         hub,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           tracing.WrapHTTPHandler(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		utils.InfoLogger.Printf("Listening on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.ErrorLogger.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	utils.InfoLogger.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.ErrorLogger.Printf("Server shutdown failed: %v", err)
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		utils.ErrorLogger.Printf("Tracer shutdown failed: %v", err)
	}
}

// pruneChanges clears processed change rows once an hour.
func pruneChanges(ctx context.Context, db *gorm.DB) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := database.PruneChanges(db, 24*time.Hour); err != nil {
				utils.ErrorLogger.Printf("Error pruning changes: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
