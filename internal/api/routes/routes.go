package routes

import (
	"github.com/Ayash-Bera/reviewboard/backend/internal/api/handlers"
	"github.com/gin-gonic/gin"
)

// Dependencies are the handlers mounted by Setup.
type Dependencies struct {
	Reviews *handlers.ReviewHandler
	Health  *handlers.HealthHandler
}

// Setup configures all routes
func Setup(router gin.IRouter, deps *Dependencies) {
	router.GET("/health", deps.Health.HandleLiveness)
	router.GET("/health/detailed", deps.Health.HandleDetailed)

	records := router.Group("/records")
	{
		records.GET("", deps.Reviews.HandleList)
		records.POST("", deps.Reviews.HandleCreate)
		records.GET("/:id", deps.Reviews.HandleGet)
		records.PUT("/:id", deps.Reviews.HandleUpdate)
		records.DELETE("/:id", deps.Reviews.HandleDelete)
	}
}
