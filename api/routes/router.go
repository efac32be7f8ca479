package routes

import (
	"net/http"

	"authfuzz/internal/services"
	"authfuzz/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// Services bundles what the HTTP API is served from.
type Services struct {
	Scans   services.ScanServiceMethods
	Configs services.ConfigServiceMethods
	Spray   services.SprayServiceMethods
	Metrics *metrics.Collector
}

func InitRouter(svc Services) *gin.Engine {
	router := gin.Default()

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if svc.Metrics != nil {
		router.GET("/metrics", gin.WrapH(svc.Metrics.Handler()))
	}

	api := router.Group("/api")
	{
		InitScanRoutes(api, svc.Scans)
		InitConfigRoutes(api, svc.Configs)
		InitSprayRoutes(api, svc.Spray)
	}

	return router
}
