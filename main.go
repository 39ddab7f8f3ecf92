package main

import (
	"context"
	"log"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/Conceptual-Machines/jam-api/internal/api"
	"github.com/Conceptual-Machines/jam-api/internal/config"
	"github.com/Conceptual-Machines/jam-api/internal/database"
	"github.com/Conceptual-Machines/jam-api/internal/jam"
	"github.com/Conceptual-Machines/jam-api/internal/llm"
	"github.com/Conceptual-Machines/jam-api/internal/metrics"
	"github.com/Conceptual-Machines/jam-api/internal/models"
	"github.com/Conceptual-Machines/jam-api/internal/observability"
)

const (
	sentryFlushTimeout    = 2 * time.Second
	environmentProduction = "production"
)

// releaseVersion is set via ldflags during build
var releaseVersion = "dev"

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := config.Load()

	// Initialize Sentry
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			Release:          "jam-api@" + releaseVersion,
			EnableTracing:    true,
			TracesSampleRate: 1.0,
			Debug:            cfg.Environment != environmentProduction,
		}); err != nil {
			log.Printf("Failed to initialize Sentry: %v", err)
		} else {
			log.Printf("✅ Sentry initialized (environment: %s, release: %s)", cfg.Environment, releaseVersion)
			defer sentry.Flush(sentryFlushTimeout)
		}
	} else {
		log.Println("⚠️  Sentry not configured (SENTRY_DSN not set)")
	}

	ctx := context.Background()

	// Initialize the usage ledger (optional)
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal("Failed to connect to database:", err)
	}
	if err := database.Migrate(db); err != nil {
		sentry.CaptureException(err)
		log.Fatal("Failed to run migrations:", err)
	}

	// Turn observers: CloudWatch metrics, Langfuse traces, usage ledger
	var observers []jam.TurnObserver

	cwMetrics, err := metrics.NewClient(ctx, cfg.Environment)
	if err != nil {
		log.Printf("Failed to initialize CloudWatch metrics: %v", err)
	} else {
		observers = append(observers, cwMetrics)
	}

	langfuseClient := observability.InitializeLangfuse(ctx, cfg)
	if langfuseClient.IsEnabled() {
		observers = append(observers, langfuseClient)
	}

	if recorder := database.NewUsageRecorder(db); recorder != nil {
		observers = append(observers, recorder)
	}

	// Load the genre preset catalog
	presets, err := jam.LoadPresets()
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal("Failed to load preset catalog:", err)
	}

	// Wire the orchestrator
	runner := llm.NewRunner(cfg.LLMBinary, cfg.LLMProfile, cfg.LLMOverrides, models.AgentTimeout)
	orch := jam.NewOrchestrator(jam.Config{
		Runner:       runner,
		DefaultModel: cfg.DefaultModel,
		Presets:      presets,
		Observers:    observers,
	})
	defer orch.Close()

	// Set Gin mode
	if cfg.Environment == environmentProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize router
	router := api.SetupRouter(orch, db, cfg)

	// Start server
	log.Printf("🚀 Starting server on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		sentry.CaptureException(err)
		log.Fatal("Failed to start server:", err)
	}
}
