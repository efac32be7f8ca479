package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"authfuzz/pkg/engine"
	"authfuzz/pkg/logger"
)

type ScanExecutor struct {
	scanService *scanService
}

func newScanExecutor(s *scanService) *ScanExecutor {
	return &ScanExecutor{scanService: s}
}

// failer is implemented by state stores that can force a scan into the
// error state outside the engine.
type failer interface {
	MarkFailedWithReason(scanID, reason string)
}

// Execute waits for a queue slot and runs the scan. It never panics: a
// panic inside the engine leaves the scan in the error state.
func (e *ScanExecutor) Execute(ctx context.Context, scanID, target, baseURL string) {
	svc := e.scanService
	defer svc.done(scanID)

	defer func() {
		if r := recover(); r != nil {
			panicMsg := fmt.Sprintf("panic in background scan: %v", r)
			svc.logger.WithScan(scanID).Error(panicMsg)
			e.markFailed(scanID, target, baseURL, panicMsg)
		}
	}()

	err := svc.queue.Execute(ctx, scanID, func() error {
		svc.logger.WithFields(logger.Fields{
			"scan_id": scanID,
			"target":  target,
		}).Info("Starting scan execution")

		_, runErr := svc.engine.Run(ctx, scanID, target, baseURL)
		return runErr
	})

	switch {
	case err == nil:
		svc.logger.WithScan(scanID).Info("Scan completed successfully")
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		// Cancelled before the engine created the state.
		if _, ok := svc.engine.States().Get(scanID); !ok {
			e.markFailed(scanID, target, baseURL, engine.ReasonCancelled)
		}
		svc.logger.WithScan(scanID).Warn("Scan cancelled")
	default:
		svc.logger.WithScan(scanID).WithError(err).Error("Scan execution failed")
	}
}

// markFailed records reason on the scan, creating its state first when the
// engine never got to.
func (e *ScanExecutor) markFailed(scanID, target, baseURL, reason string) {
	states := e.scanService.engine.States()
	if _, ok := states.Get(scanID); !ok {
		pending, _ := e.scanService.pendingState(scanID)
		pending.ScanID, pending.Target, pending.BaseURL = scanID, target, baseURL
		pending.Status = engine.StatusRunning
		if err := states.Create(pending); err != nil {
			e.scanService.logger.WithScan(scanID).WithError(err).Warn("Could not record failed scan")
			return
		}
	}
	if f, ok := states.(failer); ok {
		f.MarkFailedWithReason(scanID, reason)
		return
	}
	now := time.Now().UTC()
	_ = states.Update(scanID, func(s *engine.ScanState) {
		s.Status = engine.StatusError
		s.Error = reason
		s.FinishedAt = &now
	})
}
