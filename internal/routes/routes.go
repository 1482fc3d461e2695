// internal/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"shade-service/internal/config"
	"shade-service/internal/database"
	"shade-service/internal/handler"
	"shade-service/internal/middleware"
	"shade-service/internal/repository"
	"shade-service/internal/service"
	"shade-service/internal/utils"
)

// Router holds all dependencies for routing
type Router struct {
	config         *config.Config
	logger         *zap.Logger
	db             *database.DB
	controller     *service.ControllerService
	commandService *service.CommandService
	targetRepo     repository.TargetRepository
	wsHandler      *handler.WebSocketHandler
}

// NewRouter creates a new router instance
func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	db *database.DB,
	controller *service.ControllerService,
	commandService *service.CommandService,
	targetRepo repository.TargetRepository,
	wsHandler *handler.WebSocketHandler,
) *Router {
	return &Router{
		config:         cfg,
		logger:         logger,
		db:             db,
		controller:     controller,
		commandService: commandService,
		targetRepo:     targetRepo,
		wsHandler:      wsHandler,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	// Set Gin mode
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	r.addMiddleware(router)
	r.addRoutes(router)

	return router
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	router.Use(middleware.RecoveryMiddleware(r.logger))
	router.Use(middleware.RequestIDMiddleware())

	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.LoggingMiddleware(serviceLogger))

	router.Use(middleware.CORSMiddleware(&r.config.Security))

	r.logger.Info("Middleware configured")
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	healthHandler := handler.NewHealthHandler(r.db, r.controller, r.config, r.logger)
	commandHandler := handler.NewCommandHandler(r.commandService, r.controller, r.logger)
	targetHandler := handler.NewTargetHandler(r.targetRepo, r.commandService, r.logger)

	// Health check routes
	healthHandler.RegisterRoutes(router.Group(""))

	// API v1 routes
	apiV1 := router.Group("/api/v1")
	commandHandler.RegisterRoutes(apiV1)
	targetHandler.RegisterRoutes(apiV1)

	// WebSocket routes
	r.wsHandler.RegisterRoutes(router.Group("/ws"))

	r.logger.Info("All routes configured successfully")
}
