// Package report aggregates attack results into per-scan reports and keeps
// the per-attempt records of the spray modes.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"authfuzz/pkg/attacks"
	apperrors "authfuzz/pkg/errors"
)

// Aggregator collects results in arrival order. Safe for concurrent use.
type Aggregator struct {
	mu      sync.Mutex
	results []attacks.Result
}

func NewAggregator() *Aggregator {
	return &Aggregator{}
}

func (a *Aggregator) Add(results ...attacks.Result) {
	if len(results) == 0 {
		return
	}
	a.mu.Lock()
	a.results = append(a.results, results...)
	a.mu.Unlock()
}

// Results returns a snapshot copy.
func (a *Aggregator) Results() []attacks.Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]attacks.Result, len(a.results))
	copy(out, a.results)
	return out
}

func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.results)
}

type Report struct {
	ScanID      string           `json:"scan_id"`
	Target      string           `json:"target"`
	BaseURL     string           `json:"base_url"`
	GeneratedAt time.Time        `json:"generated"`
	Issues      []attacks.Result `json:"issues"`
	Total       int              `json:"total"`
}

// Build snapshots the aggregator into a report.
func (a *Aggregator) Build(scanID, target, baseURL string) *Report {
	issues := a.Results()
	return &Report{
		ScanID:      scanID,
		Target:      target,
		BaseURL:     baseURL,
		GeneratedAt: time.Now().UTC(),
		Issues:      issues,
		Total:       len(issues),
	}
}

// Store persists reports keyed by scan id.
type Store interface {
	Save(r *Report) error
	Load(scanID string) (*Report, error)
}

var scanIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidScanID reports whether id is safe to use as a file name.
func ValidScanID(id string) bool {
	return scanIDPattern.MatchString(id)
}

// FileStore writes one JSON document per scan into Dir.
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

func (s *FileStore) path(scanID string) (string, error) {
	if !ValidScanID(scanID) {
		return "", fmt.Errorf("%w: %q", apperrors.ErrInvalidScanID, scanID)
	}
	return filepath.Join(s.Dir, scanID+".json"), nil
}

// Save writes the report atomically: readers see either nothing or the
// complete document.
func (s *FileStore) Save(r *Report) error {
	p, err := s.path(r.ScanID)
	if err != nil {
		return err
	}
	if r.Issues == nil {
		r.Issues = []attacks.Result{}
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return apperrors.NewPersistenceError("encode report", p, err)
	}
	if err := writeAtomic(p, data); err != nil {
		return apperrors.NewPersistenceError("write report", p, err)
	}
	return nil
}

// Load returns (nil, nil) while the report does not exist yet.
func (s *FileStore) Load(scanID string) (*Report, error) {
	p, err := s.path(scanID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read report: %w", err)
	}

	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", p, err)
	}
	return &r, nil
}

// writeAtomic writes data to a temp file in the target directory and renames
// it into place.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
