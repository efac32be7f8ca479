package routes

import (
	"authfuzz/internal/handlers"
	"authfuzz/internal/services"

	"github.com/gin-gonic/gin"
)

func InitConfigRoutes(router *gin.RouterGroup, configService services.ConfigServiceMethods) {
	handlers := handlers.NewConfigHandler(configService)

	router.GET("/targets", handlers.GetTargets)
	router.GET("/strategies", handlers.GetStrategies)
}
