package main

import (
	"context"
	"log"
	"net"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tillworks/fiscal-pos-api/internal/application/service"
	"github.com/tillworks/fiscal-pos-api/internal/config"
	"github.com/tillworks/fiscal-pos-api/internal/domain/repository"
	"github.com/tillworks/fiscal-pos-api/internal/fiscal/devicesim"
	"github.com/tillworks/fiscal-pos-api/internal/fiscal/driver"
	"github.com/tillworks/fiscal-pos-api/internal/fiscal/queue"
	"github.com/tillworks/fiscal-pos-api/internal/infrastructure/database"
	infraRepo "github.com/tillworks/fiscal-pos-api/internal/infrastructure/repository"
	"github.com/tillworks/fiscal-pos-api/internal/infrastructure/repository/memory"
	"github.com/tillworks/fiscal-pos-api/internal/presentation/http/handler"
	"github.com/tillworks/fiscal-pos-api/internal/presentation/http/routes"
	"github.com/tillworks/fiscal-pos-api/pkg/alert"
	"github.com/tillworks/fiscal-pos-api/pkg/transport"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize logger
	var logger *zap.Logger
	var err error
	if cfg.App.Debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize repositories
	var saleRepo repository.SaleRepository
	var sessionRepo repository.CashSessionRepository
	var jobRepo repository.PrintJobRepository

	switch cfg.Database.Driver {
	case "memory":
		store := memory.NewStore()
		saleRepo = store.Sales()
		sessionRepo = store.Sessions()
		jobRepo = store.Jobs()
		logger.Info("Using in-memory store")
	default:
		db, err := database.NewPostgresDB(&cfg.Database)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		if err := database.AutoMigrate(db); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
		saleRepo = infraRepo.NewSaleRepository(db)
		sessionRepo = infraRepo.NewCashSessionRepository(db)
		jobRepo = infraRepo.NewPrintJobRepository(db)
	}

	// Initialize printer transport
	var tr transport.Transport
	switch cfg.Printer.Type {
	case "simulated":
		sim := devicesim.New()
		tr = transport.NewLoopback(func(conn net.Conn) { sim.Handle(conn) })
		logger.Info("Using simulated fiscal printer")
	default:
		tr = transport.NewTCP(cfg.Printer.Address, 5*time.Second)
		logger.Info("Using network fiscal printer", zap.String("address", cfg.Printer.Address))
	}

	// Initialize alert notifier, driver and print queue
	alerts := alert.NewZapNotifier(logger)
	drv := driver.New(driver.Config{
		DeviceID:       cfg.Printer.DeviceID,
		CommandTimeout: cfg.Driver.CommandTimeout,
		MaxAttempts:    cfg.Driver.MaxAttempts,
		BackoffBase:    cfg.Driver.BackoffBase,
		BackoffCap:     cfg.Driver.BackoffCap,
		ReconnectEvery: cfg.Driver.ReconnectEvery,
	}, tr, alerts, logger)
	printQueue := queue.New(drv, jobRepo, alerts, logger)

	// Initialize services
	sessionService := service.NewSessionService(sessionRepo, logger)
	saleService := service.NewSaleService(saleRepo, printQueue, sessionService, logger)
	deviceService := service.NewDeviceService(drv, printQueue, jobRepo, logger)

	// The sale service settles sales as their print jobs finish.
	printQueue.SetObserver(saleService)

	ctx := context.Background()
	if err := sessionService.Load(ctx); err != nil {
		logger.Fatal("Failed to load open cash sessions", zap.Error(err))
	}
	if err := printQueue.Start(ctx); err != nil {
		logger.Fatal("Failed to start print queue", zap.Error(err))
	}
	defer printQueue.Stop()

	// Initialize handlers
	handlers := &routes.Handlers{
		Session: handler.NewSessionHandler(sessionService),
		Sale:    handler.NewSaleHandler(saleService),
		Device:  handler.NewDeviceHandler(deviceService),
	}

	// Setup routes
	router := routes.Setup(handlers, &routes.Deps{
		Cfg: cfg,
		Log: logger,
	})

	// Get port from environment or use default
	port := cfg.App.Port
	if port == "" {
		port = "8080"
	}

	logger.Info("Starting server",
		zap.String("service", cfg.App.Name),
		zap.String("port", port),
		zap.String("env", cfg.App.Env),
	)

	if err := router.Run(":" + port); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
		os.Exit(1)
	}
}
