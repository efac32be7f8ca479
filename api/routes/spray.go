package routes

import (
	"authfuzz/internal/handlers"
	"authfuzz/internal/services"

	"github.com/gin-gonic/gin"
)

func InitSprayRoutes(router *gin.RouterGroup, sprayService services.SprayServiceMethods) {
	handlers := handlers.NewSprayHandler(sprayService)

	sprayRoutes := router.Group("/spray")
	{
		sprayRoutes.POST("", handlers.StartSpray)
		sprayRoutes.GET("/metrics", handlers.GetMetrics)
		sprayRoutes.GET("/:id", handlers.GetSpray)
	}
}
