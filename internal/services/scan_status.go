package services

import (
	"sync"
	"time"

	"authfuzz/internal/dao"
	"authfuzz/internal/models"
	"authfuzz/pkg/engine"
	"authfuzz/pkg/logger"
)

// ScanStatusManager is the engine's state store. The in-memory store stays
// authoritative; every change is mirrored into the scan table when a DAO is
// configured. Mirror failures are logged and never reach the engine.
type ScanStatusManager struct {
	inner       engine.StateStore
	scanDao     dao.ScanDAO
	logger      *logger.Logger
	scanMutexes *sync.Map
}

func NewScanStatusManager(inner engine.StateStore, scanDao dao.ScanDAO, l *logger.Logger, scanMutexes *sync.Map) *ScanStatusManager {
	if inner == nil {
		inner = engine.NewMemoryStateStore()
	}
	if l == nil {
		l = logger.Default()
	}
	if scanMutexes == nil {
		scanMutexes = &sync.Map{}
	}
	return &ScanStatusManager{
		inner:       inner,
		scanDao:     scanDao,
		logger:      l,
		scanMutexes: scanMutexes,
	}
}

func (m *ScanStatusManager) getScanMutex(scanID string) *sync.Mutex {
	value, _ := m.scanMutexes.LoadOrStore(scanID, &sync.Mutex{})
	return value.(*sync.Mutex)
}

func (m *ScanStatusManager) Create(s engine.ScanState) error {
	if err := m.inner.Create(s); err != nil {
		return err
	}
	if m.scanDao == nil {
		return nil
	}

	mu := m.getScanMutex(s.ScanID)
	mu.Lock()
	defer mu.Unlock()

	scan := &models.Scan{UUID: s.ScanID, CreatedAt: s.StartedAt.Unix()}
	applyState(scan, s)
	if err := m.scanDao.SaveScan(scan); err != nil {
		m.logger.WithScan(s.ScanID).WithError(err).Warn("Failed to persist new scan")
	}
	return nil
}

func (m *ScanStatusManager) Update(scanID string, fn func(*engine.ScanState)) error {
	if err := m.inner.Update(scanID, fn); err != nil {
		return err
	}
	if m.scanDao == nil {
		return nil
	}
	state, ok := m.inner.Get(scanID)
	if !ok {
		return nil
	}
	m.mirror(state)
	return nil
}

func (m *ScanStatusManager) Get(scanID string) (engine.ScanState, bool) {
	return m.inner.Get(scanID)
}

func (m *ScanStatusManager) List() []engine.ScanState {
	return m.inner.List()
}

// MarkFailedWithReason moves a scan that never reached the engine, or was
// abandoned by a panic, into the error state.
func (m *ScanStatusManager) MarkFailedWithReason(scanID, reason string) {
	now := time.Now().UTC()
	err := m.Update(scanID, func(s *engine.ScanState) {
		s.Status = engine.StatusError
		s.Error = reason
		s.FinishedAt = &now
	})
	if err != nil {
		m.logger.WithScan(scanID).WithError(err).Debug("Scan not marked failed")
		return
	}
	m.logger.WithFields(logger.Fields{
		"scan_id": scanID,
		"reason":  reason,
	}).Error("Scan marked as failed")
}

func (m *ScanStatusManager) mirror(s engine.ScanState) {
	mu := m.getScanMutex(s.ScanID)
	mu.Lock()
	defer mu.Unlock()

	scan, err := m.scanDao.GetScanByUUID(s.ScanID)
	if err != nil {
		m.logger.WithScan(s.ScanID).WithError(err).Warn("Failed to load scan for status update")
		return
	}
	applyState(scan, s)
	if err := m.scanDao.UpdateScan(scan); err != nil {
		m.logger.WithScan(s.ScanID).WithError(err).Warn("Failed to persist scan status")
	}
}

func applyState(scan *models.Scan, s engine.ScanState) {
	scan.Target = s.Target
	scan.BaseURL = s.BaseURL
	scan.Status = string(s.Status)
	scan.Done = s.Done
	scan.Total = s.Total
	scan.Progress = s.Progress
	scan.Findings = s.Findings
	scan.ErrorMessage = s.Error
	scan.UpdatedAt = time.Now().Unix()
	if s.FinishedAt != nil {
		scan.FinishedAt = s.FinishedAt.Unix()
	}
}
