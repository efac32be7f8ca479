package services

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"sync"
	"time"

	"authfuzz/internal/dao"
	"authfuzz/pkg/logger"

	"github.com/fsnotify/fsnotify"
)

// ScanMonitor counts the capture records a scan's traffic generator appends
// to the capture log. It satisfies engine.CaptureWatcher.
type ScanMonitor struct {
	scanDao     dao.ScanDAO
	logger      *logger.Logger
	scanMutexes *sync.Map
	interval    time.Duration

	mu       sync.Mutex
	captured map[string]int
}

func NewScanMonitor(scanDao dao.ScanDAO, l *logger.Logger, scanMutexes *sync.Map) *ScanMonitor {
	if l == nil {
		l = logger.Default()
	}
	if scanMutexes == nil {
		scanMutexes = &sync.Map{}
	}
	return &ScanMonitor{
		scanDao:     scanDao,
		logger:      l,
		scanMutexes: scanMutexes,
		interval:    2 * time.Second,
		captured:    make(map[string]int),
	}
}

// Captured returns how many records were observed for scanID so far.
func (m *ScanMonitor) Captured(scanID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.captured[scanID]
}

func (m *ScanMonitor) getScanMutex(scanID string) *sync.Mutex {
	value, _ := m.scanMutexes.LoadOrStore(scanID, &sync.Mutex{})
	return value.(*sync.Mutex)
}

// Watch follows capturePath from its current end until ctx is done. The
// capture log is shared, so only lines written while the scan generates
// traffic are counted.
func (m *ScanMonitor) Watch(ctx context.Context, scanID, capturePath string) {
	var offset int64
	if stat, err := os.Stat(capturePath); err == nil {
		offset = stat.Size()
	} else if !m.waitForFile(ctx, capturePath) {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		m.logger.WithScan(scanID).WithError(err).Error("Failed to create capture watcher")
		return
	}
	defer watcher.Close()

	if err := watcher.Add(capturePath); err != nil {
		m.logger.WithFields(logger.Fields{"scan_id": scanID, "file": capturePath}).WithError(err).Error("Error adding capture log to watcher")
		return
	}

	m.logger.WithFields(logger.Fields{"scan_id": scanID, "file": capturePath}).Debug("Started monitoring capture log")

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	updatePending := false
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Write == fsnotify.Write {
				updatePending = true
			}

		case <-ticker.C:
			if updatePending {
				m.processCaptureUpdate(scanID, capturePath, &offset)
				updatePending = false
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.logger.WithFields(logger.Fields{"scan_id": scanID, "file": capturePath}).WithError(err).Error("Capture watcher error")

		case <-ctx.Done():
			m.processCaptureUpdate(scanID, capturePath, &offset)
			m.logger.WithFields(logger.Fields{
				"scan_id":  scanID,
				"captured": m.Captured(scanID),
			}).Info("Stopped monitoring capture log")
			return
		}
	}
}

func (m *ScanMonitor) waitForFile(ctx context.Context, path string) bool {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := os.Stat(path); err == nil {
				return true
			}
		case <-ctx.Done():
			return false
		}
	}
}

// processCaptureUpdate counts complete, non-empty lines after offset and
// advances offset past them. A trailing partial line is left for the next
// pass.
func (m *ScanMonitor) processCaptureUpdate(scanID, path string, offset *int64) {
	file, err := os.Open(path)
	if err != nil {
		m.logger.WithScan(scanID).WithError(err).Warn("Failed to open capture log")
		return
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return
	}
	if stat.Size() < *offset {
		// truncated underneath us
		*offset = 0
	}
	if stat.Size() == *offset {
		return
	}
	if _, err := file.Seek(*offset, io.SeekStart); err != nil {
		m.logger.WithScan(scanID).WithError(err).Warn("Failed to seek capture log")
		return
	}

	reader := bufio.NewReader(file)
	count := 0
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			break
		}
		*offset += int64(len(line))
		if len(bytes.TrimSpace(line)) > 0 {
			count++
		}
	}
	if count == 0 {
		return
	}

	m.mu.Lock()
	m.captured[scanID] += count
	total := m.captured[scanID]
	m.mu.Unlock()

	m.logger.WithFields(logger.Fields{
		"scan_id": scanID,
		"new":     count,
		"total":   total,
	}).Debug("Captured records")

	if m.scanDao == nil {
		return
	}

	mu := m.getScanMutex(scanID)
	mu.Lock()
	defer mu.Unlock()

	if err := m.scanDao.SetCapturedRecords(scanID, total); err != nil {
		m.logger.WithScan(scanID).WithError(err).Warn("Failed to update captured record count")
	}
}
