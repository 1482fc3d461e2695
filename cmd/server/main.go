// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"shade-service/internal/config"
	"shade-service/internal/database"
	"shade-service/internal/handler"
	"shade-service/internal/repository"
	"shade-service/internal/routes"
	"shade-service/internal/service"
	"shade-service/internal/utils"
)

// Application represents the main application
type Application struct {
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
	database *database.DB

	// Services
	controllerService *service.ControllerService
	commandService    *service.CommandService

	// Repositories
	commandRepo repository.CommandRepository
	targetRepo  repository.TargetRepository

	cleanupStop chan struct{}
}

func main() {
	flags := pflag.NewFlagSet("shade-service", pflag.ExitOnError)
	flags.String("config", "", "path to configuration file")
	flags.String("log-level", "", "override configured log level")
	flags.Parse(os.Args[1:])

	app, err := NewApplication(flags)
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Start(); err != nil {
		app.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication(flags *pflag.FlagSet) (*Application, error) {
	cfg, err := config.Load(flags)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if level, err := flags.GetString("log-level"); err == nil && level != "" {
		cfg.Logging.Level = level
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, "shade-service")
	serviceLogger.LogServiceStart(cfg.App.Version)

	app := &Application{
		config:      cfg,
		logger:      logger,
		cleanupStop: make(chan struct{}),
	}

	if err := app.initializeDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initializeRepositories(); err != nil {
		return nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := app.initializeServer(); err != nil {
		return nil, fmt.Errorf("failed to initialize server: %w", err)
	}

	return app, nil
}

// initializeDatabase sets up database connection and runs migrations
func (app *Application) initializeDatabase() error {
	db, err := database.NewConnection(&app.config.Database, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}

	app.database = db

	migrator := database.NewMigrator(db, app.logger, &app.config.Database)
	if err := migrator.Up(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	app.logger.Info("Database initialized successfully")
	return nil
}

// initializeRepositories creates repository instances
func (app *Application) initializeRepositories() error {
	app.commandRepo = repository.NewCommandRepository(app.database, app.logger)
	app.targetRepo = repository.NewTargetRepository(app.database, app.logger)

	app.logger.Info("Repositories initialized successfully")
	return nil
}

// initializeServices creates service instances
func (app *Application) initializeServices() error {
	controllerService, err := service.NewControllerService(app.config, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create controller service: %w", err)
	}
	app.controllerService = controllerService

	app.commandService = service.NewCommandService(
		app.controllerService,
		app.commandRepo,
		app.targetRepo,
		app.config,
		app.logger,
	)

	app.logger.Info("Services initialized successfully")
	return nil
}

// initializeServer wires handlers, events and the HTTP server
func (app *Application) initializeServer() error {
	wsHandler := handler.NewWebSocketHandler(
		app.controllerService,
		app.commandService,
		app.logger,
	)

	// Controller events flow to WebSocket clients
	eventHandler := handler.NewControllerEventHandler(wsHandler, app.logger)
	app.controllerService.SetEventPublisher(eventHandler)
	app.commandService.SetEventPublisher(eventHandler)

	routerManager := routes.NewRouter(
		app.config,
		app.logger,
		app.database,
		app.controllerService,
		app.commandService,
		app.targetRepo,
		wsHandler,
	)

	router := routerManager.SetupRouter()

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized",
		zap.String("address", app.config.GetServerAddr()),
	)

	return nil
}

// startCleanupService periodically removes old command records
func (app *Application) startCleanupService() {
	ticker := time.NewTicker(app.config.History.CleanupInterval)
	defer ticker.Stop()

	app.logger.Info("Cleanup service started",
		zap.Duration("interval", app.config.History.CleanupInterval),
		zap.Duration("retention", app.config.History.Retention),
	)

	for {
		select {
		case <-app.cleanupStop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			if _, err := app.commandService.CleanupOldCommands(ctx); err != nil {
				app.logger.Error("Failed to cleanup old commands", zap.Error(err))
			}
			cancel()
		}
	}
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func (app *Application) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	app.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	app.shutdown()
}

// shutdown performs graceful shutdown
func (app *Application) shutdown() {
	serviceLogger := utils.NewServiceLogger(app.logger, "shade-service")
	serviceLogger.LogServiceStop("shutdown signal received")

	close(app.cleanupStop)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}

	if err := app.controllerService.Stop(ctx); err != nil {
		app.logger.Error("Controller service stop error", zap.Error(err))
	}

	if app.database != nil {
		if err := app.database.Close(); err != nil {
			app.logger.Error("Database close error", zap.Error(err))
		} else {
			app.logger.Info("Database connection closed")
		}
	}

	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Printf("Logger close error: %v\n", err)
	}
}

// Start runs the application until a shutdown signal arrives
func (app *Application) Start() error {
	// Establish the controller session. With supervision enabled a
	// failed first attempt is retried in the background; without it a
	// failure is fatal.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err := app.controllerService.Start(ctx)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to start controller service: %w", err)
	}

	go func() {
		app.logger.Info("Starting HTTP server",
			zap.String("address", app.server.Addr),
		)

		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	go app.startCleanupService()

	app.waitForShutdown()

	return nil
}
