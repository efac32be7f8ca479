package routes

import (
	"authfuzz/internal/handlers"
	"authfuzz/internal/services"

	"github.com/gin-gonic/gin"
)

func InitScanRoutes(router *gin.RouterGroup, scanService services.ScanServiceMethods) {
	handlers := handlers.NewScanHandler(scanService)

	scanRoutes := router.Group("/scans")
	{
		scanRoutes.POST("", handlers.StartScan)
		scanRoutes.GET("", handlers.ListScans)
		scanRoutes.GET("/history", handlers.History)
		scanRoutes.GET("/:id", handlers.GetScan)
		scanRoutes.GET("/:id/report", handlers.GetReport)
		scanRoutes.DELETE("/:id", handlers.CancelScan)
	}
}
