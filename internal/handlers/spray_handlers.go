package handlers

import (
	"net/http"

	"authfuzz/internal/services"
	"authfuzz/pkg/logger"

	"github.com/gin-gonic/gin"
)

type SprayHandler struct {
	sprayService services.SprayServiceMethods
	logger       *logger.Logger
}

func NewSprayHandler(sprayService services.SprayServiceMethods) *SprayHandler {
	return &SprayHandler{sprayService: sprayService, logger: logger.Default()}
}

func (h *SprayHandler) StartSpray(c *gin.Context) {
	var req SprayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}

	id, err := h.sprayService.StartSpray(services.SprayRequest{
		Mode:          req.Mode,
		BaseURL:       req.BaseURL,
		LoginPath:     req.LoginPath,
		Username:      req.Username,
		CheckPath:     req.CheckPath,
		Limit:         req.Limit,
		Attempts:      req.Attempts,
		SessionCookie: req.SessionCookie,
	})
	if err != nil {
		h.logger.WithError(err).Warn("Failed to start spray")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, SprayResponse{SprayID: id, Status: services.SprayRunning})
}

func (h *SprayHandler) GetSpray(c *gin.Context) {
	job, err := h.sprayService.GetSpray(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Spray not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *SprayHandler) GetMetrics(c *gin.Context) {
	m, err := h.sprayService.Metrics()
	if err != nil {
		h.logger.WithError(err).Error("Failed to compute spray metrics")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute metrics"})
		return
	}
	c.JSON(http.StatusOK, m)
}
