package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/vaultline/vault-service/internal/infrastructure/database"
	"github.com/vaultline/vault-service/pkg/logger"
)

// HealthHandlers handles liveness and readiness endpoints
type HealthHandlers struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// NewHealthHandlers creates health handlers
func NewHealthHandlers(db *sqlx.DB, logger *logger.Logger) *HealthHandlers {
	return &HealthHandlers{db: db, logger: logger}
}

// Health reports process liveness
func (h *HealthHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready reports whether dependencies are reachable
func (h *HealthHandlers) Ready(c *gin.Context) {
	if err := database.HealthCheck(h.db); err != nil {
		h.logger.Error("readiness check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "reason": "database"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
