package database

import (
	"fmt"
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Conceptual-Machines/jam-api/internal/models"
)

// Connect opens the Postgres usage ledger. An empty URL means the
// ledger is disabled; callers get a nil DB and no error.
func Connect(databaseURL string) (*gorm.DB, error) {
	if databaseURL == "" {
		log.Println("⚠️  Usage ledger disabled (DATABASE_URL not set)")
		return nil, nil
	}

	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Println("✅ Database connected")
	return db, nil
}

// Migrate runs schema migrations for the usage ledger
func Migrate(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	if err := db.AutoMigrate(&models.TurnUsage{}); err != nil {
		return fmt.Errorf("failed to migrate usage ledger: %w", err)
	}
	return nil
}

// UsageRecorder persists per-agent-turn usage rows. Recording is
// best-effort; a write failure never disturbs the jam.
type UsageRecorder struct {
	db *gorm.DB
}

// NewUsageRecorder returns a recorder backed by db, or nil when the
// ledger is disabled.
func NewUsageRecorder(db *gorm.DB) *UsageRecorder {
	if db == nil {
		return nil
	}
	return &UsageRecorder{db: db}
}

// ObserveTurn inserts one usage row
func (r *UsageRecorder) ObserveTurn(usage models.TurnUsage) {
	if r == nil || r.db == nil {
		return
	}
	if err := r.db.Create(&usage).Error; err != nil {
		log.Printf("Failed to record turn usage for %s: %v", usage.Agent, err)
	}
}
