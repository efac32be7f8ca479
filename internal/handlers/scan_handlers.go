package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"authfuzz/internal/dao"
	"authfuzz/internal/services"
	apperrors "authfuzz/pkg/errors"
	"authfuzz/pkg/logger"

	"github.com/gin-gonic/gin"
)

type ScanHandler struct {
	scanService services.ScanServiceMethods
	logger      *logger.Logger
}

func NewScanHandler(scanService services.ScanServiceMethods) *ScanHandler {
	return &ScanHandler{scanService: scanService, logger: logger.Default()}
}

func (h *ScanHandler) StartScan(c *gin.Context) {
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Warn("Failed to bind scan request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}

	id, err := h.scanService.StartScan(services.StartScanRequest{
		ScanID:  req.ScanID,
		Target:  req.Target,
		BaseURL: req.BaseURL,
	})
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrScanExists):
		c.JSON(http.StatusConflict, gin.H{"error": "Scan id already in use"})
		return
	case errors.Is(err, apperrors.ErrInvalidScanID), errors.Is(err, apperrors.ErrInvalidConfig):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	default:
		h.logger.WithError(err).Error("Failed to start scan")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start scan"})
		return
	}

	h.logger.WithFields(logger.Fields{"scan_id": id, "target": req.Target}).Info("Scan started via API")
	c.JSON(http.StatusOK, ScanResponse{ScanID: id, Status: "started"})
}

func (h *ScanHandler) GetScan(c *gin.Context) {
	scanID := c.Param("id")
	state, err := h.scanService.GetScan(scanID)
	if err != nil {
		if errors.Is(err, apperrors.ErrScanNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Scan not found"})
			return
		}
		h.logger.WithScan(scanID).WithError(err).Error("Failed to get scan")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get scan"})
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *ScanHandler) GetReport(c *gin.Context) {
	scanID := c.Param("id")
	rep, err := h.scanService.GetReport(scanID)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, rep)
	case errors.Is(err, apperrors.ErrScanNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Scan not found"})
	case errors.Is(err, apperrors.ErrReportNotAvailable):
		c.JSON(http.StatusNotFound, gin.H{"error": "report not yet available"})
	default:
		h.logger.WithScan(scanID).WithError(err).Error("Failed to load report")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load report"})
	}
}

func (h *ScanHandler) ListScans(c *gin.Context) {
	c.JSON(http.StatusOK, ScanListResponse{
		Scans: h.scanService.ListScans(),
		Queue: h.scanService.QueueStatus(),
	})
}

func (h *ScanHandler) CancelScan(c *gin.Context) {
	scanID := c.Param("id")
	err := h.scanService.CancelScan(scanID)
	switch {
	case err == nil:
		c.Status(http.StatusAccepted)
	case errors.Is(err, apperrors.ErrScanNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Scan not found"})
	case errors.Is(err, apperrors.ErrScanTerminal):
		c.JSON(http.StatusConflict, gin.H{"error": "Scan already finished"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel scan"})
	}
}

// History pages through persisted scans.
func (h *ScanHandler) History(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	scans, total, err := h.scanService.History(dao.HistoryQuery{
		Page:   page,
		Limit:  limit,
		Status: c.Query("status"),
		Target: c.Query("target"),
	})
	if err != nil {
		if errors.Is(err, services.ErrHistoryDisabled) {
			c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
			return
		}
		h.logger.WithError(err).Error("Failed to list scan history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list scans"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"scans": scans, "total": total, "page": page, "limit": limit})
}
