package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ScanLogger mirrors a single scan's log stream into <dir>/<scan_id>.log and
// keeps strategy failures in a separate <scan_id>.errors.log.
type ScanLogger struct {
	*Logger
	scanID    string
	dir       string
	logFile   *os.File
	errorFile *os.File
	mu        sync.Mutex
}

func NewScanLogger(scanID, dir string, level logrus.Level) (*ScanLogger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create scan log dir: %w", err)
	}

	base := NewLogger(level)

	logFile, err := os.OpenFile(filepath.Join(dir, scanID+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create scan log file: %w", err)
	}

	errorFile, err := os.OpenFile(filepath.Join(dir, scanID+".errors.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("failed to create error log file: %w", err)
	}

	fmt.Fprintf(logFile, "\n=== scan %s started %s ===\n", scanID, time.Now().Format(time.RFC3339))
	base.Logger.SetOutput(io.MultiWriter(base.Logger.Out, logFile))

	return &ScanLogger{
		Logger:    base,
		scanID:    scanID,
		dir:       dir,
		logFile:   logFile,
		errorFile: errorFile,
	}, nil
}

// LogStrategyFailure records an absorbed strategy failure. The scan keeps going.
func (sl *ScanLogger) LogStrategyFailure(strategy, endpoint string, err error) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	sl.WithFields(Fields{
		"scan_id":  sl.scanID,
		"strategy": strategy,
		"endpoint": endpoint,
	}).WithError(err).Warn("strategy failed, treating as zero findings")

	fmt.Fprintf(sl.errorFile, "[%s] %s on %s: %v\n", time.Now().Format(time.RFC3339), strategy, endpoint, err)
}

func (sl *ScanLogger) LogScanFailure(reason string, err error, info map[string]interface{}) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	fields := Fields{"scan_id": sl.scanID, "reason": reason}
	for k, v := range info {
		fields[k] = v
	}

	msg := fmt.Sprintf("=== scan %s failed %s: %s", sl.scanID, time.Now().Format(time.RFC3339), reason)
	if err != nil {
		msg += fmt.Sprintf(" (%v)", err)
	}
	msg += " ===\n"
	sl.logFile.WriteString(msg)
	sl.errorFile.WriteString(msg)

	sl.WithFields(fields).WithError(err).Error("scan failed")
}

func (sl *ScanLogger) LogScanSuccess(findings, total int) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	fmt.Fprintf(sl.logFile, "=== scan %s finished %s: %d findings over %d work units ===\n",
		sl.scanID, time.Now().Format(time.RFC3339), findings, total)

	sl.WithFields(Fields{
		"scan_id":  sl.scanID,
		"findings": findings,
		"total":    total,
	}).Info("scan finished")
}

func (sl *ScanLogger) Close() error {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	var errs []error
	if sl.logFile != nil {
		if err := sl.logFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close log file: %w", err))
		}
	}
	if sl.errorFile != nil {
		if err := sl.errorFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close error file: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing scan logger: %v", errs)
	}
	return nil
}

func (sl *ScanLogger) LogFilePath() string {
	return filepath.Join(sl.dir, sl.scanID+".log")
}

func (sl *ScanLogger) ErrorLogFilePath() string {
	return filepath.Join(sl.dir, sl.scanID+".errors.log")
}
