package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/Ayash-Bera/reviewboard/backend/internal/health"
	"github.com/Ayash-Bera/reviewboard/backend/internal/models"
	"github.com/gin-gonic/gin"
)

// HealthReporter is satisfied by health.HealthChecker.
type HealthReporter interface {
	CheckAll(ctx context.Context) health.OverallHealth
	CheckCached(ctx context.Context) (*health.OverallHealth, error)
}

type HealthHandler struct {
	checker HealthReporter
	service string
}

func NewHealthHandler(checker HealthReporter, service string) *HealthHandler {
	return &HealthHandler{checker: checker, service: service}
}

// HandleLiveness always answers 200 while the process is serving.
func (h *HealthHandler) HandleLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, models.HealthResponse{
		Status:    health.StatusHealthy,
		Service:   h.service,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// HandleDetailed runs live checks unless ?cached=true and a cached result exists.
func (h *HealthHandler) HandleDetailed(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if c.Query("cached") == "true" {
		if cached, err := h.checker.CheckCached(ctx); err == nil {
			c.JSON(statusCode(cached.Status), cached)
			return
		}
	}

	overall := h.checker.CheckAll(ctx)
	c.JSON(statusCode(overall.Status), overall)
}

func statusCode(status string) int {
	if status == health.StatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}
