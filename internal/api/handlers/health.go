package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HealthHandler reports service liveness
type HealthHandler struct {
	db *gorm.DB
}

// NewHealthHandler creates a health check handler
func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// HealthCheck returns the health status of the API
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ledgerStatus := "disabled"
	if h.db != nil {
		ledgerStatus = "healthy"
		if sqlDB, err := h.db.DB(); err != nil || sqlDB.Ping() != nil {
			ledgerStatus = "unhealthy"
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"usage_ledger": gin.H{
			"status": ledgerStatus,
		},
	})
}
