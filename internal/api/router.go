package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/Conceptual-Machines/jam-api/internal/api/handlers"
	apimiddleware "github.com/Conceptual-Machines/jam-api/internal/api/middleware"
	"github.com/Conceptual-Machines/jam-api/internal/config"
	"github.com/Conceptual-Machines/jam-api/internal/jam"
)

func SetupRouter(orch *jam.Orchestrator, db *gorm.DB, cfg *config.Config) *gin.Engine {
	router := gin.New()

	// Recovery middleware (must be first)
	router.Use(apimiddleware.RecoverWithSentry())

	// Sentry middleware for error tracking
	router.Use(apimiddleware.SentryMiddleware())

	// Request tracking and structured logging
	router.Use(apimiddleware.RequestTracking())

	// CORS middleware
	router.Use(apimiddleware.CORS(cfg.AllowedOrigins))

	// Health check
	healthHandler := handlers.NewHealthHandler(db)
	router.GET("/health", healthHandler.HealthCheck)

	// Push channel
	wsHandler := handlers.NewWSHandler(orch.Broadcaster(), cfg.AllowedOrigins)
	router.GET("/ws", wsHandler.Serve)

	// Jam session commands
	v1 := router.Group("/api/v1")
	{
		jamHandler := handlers.NewJamHandler(orch)
		v1.POST("/jam/start", jamHandler.Start)
		v1.POST("/jam/stop", jamHandler.Stop)
		v1.POST("/jam/directive", jamHandler.Directive)
		v1.POST("/jam/preset", jamHandler.SetPreset)
		v1.POST("/jam/audio", jamHandler.AudioFeedback)
		v1.GET("/jam/state", jamHandler.State)
	}

	return router
}
