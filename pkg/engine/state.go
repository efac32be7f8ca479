package engine

import (
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "authfuzz/pkg/errors"
)

type Status string

const (
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
	StatusError    Status = "error"
)

func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusError
}

// ScanState is the live progress of one scan.
type ScanState struct {
	ScanID     string     `json:"scan_id"`
	Target     string     `json:"target"`
	BaseURL    string     `json:"base_url"`
	Status     Status     `json:"status"`
	Done       int        `json:"done"`
	Total      int        `json:"total"`
	Progress   float64    `json:"progress"`
	Findings   int        `json:"findings"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// StateStore holds scan states keyed by scan id. Update must refuse to
// mutate a state that already reached a terminal status.
type StateStore interface {
	Create(state ScanState) error
	Update(scanID string, fn func(*ScanState)) error
	Get(scanID string) (ScanState, bool)
	List() []ScanState
}

// MemoryStateStore keeps states for the lifetime of the process. Entries are
// never removed so a scan id can never be reused.
type MemoryStateStore struct {
	mu     sync.RWMutex
	states map[string]*ScanState
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]*ScanState)}
}

func (m *MemoryStateStore) Create(state ScanState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[state.ScanID]; ok {
		return fmt.Errorf("%w: %s", apperrors.ErrScanExists, state.ScanID)
	}
	s := state
	m.states[state.ScanID] = &s
	return nil
}

func (m *MemoryStateStore) Update(scanID string, fn func(*ScanState)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[scanID]
	if !ok {
		return fmt.Errorf("%w: %s", apperrors.ErrScanNotFound, scanID)
	}
	if s.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", apperrors.ErrScanTerminal, scanID, s.Status)
	}
	fn(s)
	return nil
}

// Get returns a copy so callers can read it without holding the lock.
func (m *MemoryStateStore) Get(scanID string) (ScanState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[scanID]
	if !ok {
		return ScanState{}, false
	}
	return *s, true
}

// List returns every state, oldest first.
func (m *MemoryStateStore) List() []ScanState {
	m.mu.RLock()
	out := make([]ScanState, 0, len(m.states))
	for _, s := range m.states {
		out = append(out, *s)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ScanID < out[j].ScanID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}
