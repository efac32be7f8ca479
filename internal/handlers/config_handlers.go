package handlers

import (
	"net/http"

	"authfuzz/internal/services"
	"authfuzz/pkg/logger"

	"github.com/gin-gonic/gin"
)

type ConfigHandler struct {
	configService services.ConfigServiceMethods
	logger        *logger.Logger
}

func NewConfigHandler(configService services.ConfigServiceMethods) *ConfigHandler {
	return &ConfigHandler{
		configService: configService,
		logger:        logger.Default(),
	}
}

func (h *ConfigHandler) GetTargets(c *gin.Context) {
	targets := h.configService.Targets()
	h.logger.WithField("target_count", len(targets)).Debug("Targets listed")
	c.JSON(http.StatusOK, targets)
}

func (h *ConfigHandler) GetStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, h.configService.Strategies())
}
