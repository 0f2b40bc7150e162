package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/twentyfive/authgate/internal/monitoring"
)

// Health reports readiness of the database and the optional shared cache.
func Health(manager *monitoring.HealthManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := manager.EvaluateReadiness(requestContext(c))
		status := http.StatusOK
		if !report.Success {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"success":    report.Success,
			"status":     report.Status,
			"checks":     report.Checks,
			"checked_at": report.CheckedAt,
		})
	}
}

// Liveness always succeeds while the process serves requests.
func Liveness(manager *monitoring.HealthManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := manager.EvaluateLiveness(requestContext(c))
		c.JSON(http.StatusOK, gin.H{
			"success": report.Success,
			"status":  report.Status,
		})
	}
}
