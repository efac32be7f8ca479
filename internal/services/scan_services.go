package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"authfuzz/internal/dao"
	"authfuzz/internal/models"
	"authfuzz/pkg/engine"
	apperrors "authfuzz/pkg/errors"
	"authfuzz/pkg/logger"
	"authfuzz/pkg/report"

	"github.com/google/uuid"
)

var ErrHistoryDisabled = errors.New("scan history requires a database")

type StartScanRequest struct {
	ScanID  string
	Target  string
	BaseURL string
}

type ScanServiceMethods interface {
	StartScan(req StartScanRequest) (string, error)
	GetScan(id string) (engine.ScanState, error)
	GetReport(id string) (*report.Report, error)
	ListScans() []engine.ScanState
	History(q dao.HistoryQuery) ([]models.Scan, int64, error)
	CancelScan(id string) error
	QueueStatus() engine.QueueStatus
}

type scanService struct {
	engine   *engine.Engine
	queue    *engine.EngineQueue
	scanDao  dao.ScanDAO
	logger   *logger.Logger
	executor *ScanExecutor

	mu      sync.Mutex
	pending map[string]engine.ScanState
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewScanService runs scans on eng, at most as many at once as queue allows.
// scanDao may be nil, which disables History.
func NewScanService(eng *engine.Engine, queue *engine.EngineQueue, scanDao dao.ScanDAO, l *logger.Logger) ScanServiceMethods {
	if l == nil {
		l = logger.Default()
	}
	if queue == nil {
		queue = engine.GetGlobalQueue()
	}
	s := &scanService{
		engine:  eng,
		queue:   queue,
		scanDao: scanDao,
		logger:  l,
		pending: make(map[string]engine.ScanState),
		cancels: make(map[string]context.CancelFunc),
	}
	s.executor = newScanExecutor(s)
	return s
}

// StartScan registers the scan and returns its id at once; the scan itself
// runs in the background.
func (s *scanService) StartScan(req StartScanRequest) (string, error) {
	if req.Target == "" || req.BaseURL == "" {
		return "", fmt.Errorf("%w: target and base url are required", apperrors.ErrInvalidConfig)
	}
	id := req.ScanID
	if id == "" {
		id = uuid.New().String()
	}
	if !report.ValidScanID(id) {
		return "", fmt.Errorf("%w: %q", apperrors.ErrInvalidScanID, id)
	}

	s.mu.Lock()
	_, queued := s.pending[id]
	_, known := s.engine.States().Get(id)
	if queued || known {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %s", apperrors.ErrScanExists, id)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.pending[id] = engine.ScanState{
		ScanID:    id,
		Target:    req.Target,
		BaseURL:   req.BaseURL,
		Status:    engine.StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	s.cancels[id] = cancel
	s.mu.Unlock()

	s.logger.WithFields(logger.Fields{
		"scan_id":  id,
		"target":   req.Target,
		"base_url": req.BaseURL,
	}).Info("Scan accepted")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.executor.Execute(ctx, id, req.Target, req.BaseURL)
	}()
	return id, nil
}

// GetScan returns the live state. A scan still waiting for a queue slot is
// reported as running with no progress.
func (s *scanService) GetScan(id string) (engine.ScanState, error) {
	if st, ok := s.engine.States().Get(id); ok {
		return st, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.pending[id]; ok {
		return st, nil
	}
	return engine.ScanState{}, fmt.Errorf("%w: %s", apperrors.ErrScanNotFound, id)
}

// GetReport returns the stored report of a finished scan.
func (s *scanService) GetReport(id string) (*report.Report, error) {
	st, err := s.GetScan(id)
	if err != nil {
		return nil, err
	}
	if st.Status != engine.StatusFinished {
		return nil, fmt.Errorf("%w: scan %s is %s", apperrors.ErrReportNotAvailable, id, st.Status)
	}
	rep, err := s.engine.Reports().Load(id)
	if err != nil {
		return nil, err
	}
	if rep == nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrReportNotAvailable, id)
	}
	return rep, nil
}

func (s *scanService) ListScans() []engine.ScanState {
	states := s.engine.States().List()
	s.mu.Lock()
	for id, st := range s.pending {
		if _, ok := s.engine.States().Get(id); !ok {
			states = append(states, st)
		}
	}
	s.mu.Unlock()
	return states
}

func (s *scanService) History(q dao.HistoryQuery) ([]models.Scan, int64, error) {
	if s.scanDao == nil {
		return nil, 0, ErrHistoryDisabled
	}
	return s.scanDao.ListHistory(q)
}

// CancelScan stops a queued or running scan. Finished scans are unaffected.
func (s *scanService) CancelScan(id string) error {
	s.mu.Lock()
	cancel, ok := s.cancels[id]
	s.mu.Unlock()
	if !ok {
		if _, known := s.engine.States().Get(id); known {
			return fmt.Errorf("%w: %s", apperrors.ErrScanTerminal, id)
		}
		return fmt.Errorf("%w: %s", apperrors.ErrScanNotFound, id)
	}
	s.logger.WithScan(id).Info("Scan cancellation requested")
	cancel()
	return nil
}

func (s *scanService) QueueStatus() engine.QueueStatus {
	return s.queue.Status()
}

// Wait blocks until every background scan has returned.
func (s *scanService) Wait() {
	s.wg.Wait()
}

func (s *scanService) done(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	delete(s.cancels, id)
	s.mu.Unlock()
}

func (s *scanService) pendingState(id string) (engine.ScanState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.pending[id]
	return st, ok
}
