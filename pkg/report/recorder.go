package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

// Spray modes recorded by the attempt recorder.
const (
	ModePassword = "password"
	ModeJWT      = "jwt"
	ModeFixation = "fixation"
	ModeReplay   = "replay"
	ModeLogout   = "logout"
	ModeTTL      = "ttl"
)

// Attempt is one flat spray record. Only the identifying fields of the
// attempt's mode are set.
type Attempt struct {
	Mode         string   `json:"mode"`
	Username     string   `json:"username,omitempty"`
	Password     string   `json:"password,omitempty"`
	TokenVariant string   `json:"token_variant,omitempty"`
	PreCookie    string   `json:"pre_cookie,omitempty"`
	LoginStatus  int      `json:"login_status,omitempty"`
	Status       int      `json:"status,omitempty"`
	Length       int      `json:"len,omitempty"`
	OK           bool     `json:"ok"`
	Duration     float64  `json:"duration"`
	Error        string   `json:"error,omitempty"`
	ObservedTTL  *float64 `json:"observed_ttl,omitempty"`
	ConfigTTL    *float64 `json:"config_ttl,omitempty"`
}

// Recorder buffers attempts in memory and overwrites its file on Save.
type Recorder struct {
	path     string
	mu       sync.Mutex
	attempts []Attempt
}

func NewRecorder(path string) *Recorder {
	return &Recorder{path: path}
}

func (r *Recorder) Path() string { return r.path }

func (r *Recorder) Add(a Attempt) {
	r.mu.Lock()
	r.attempts = append(r.attempts, a)
	r.mu.Unlock()
}

func (r *Recorder) Attempts() []Attempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Attempt, len(r.attempts))
	copy(out, r.attempts)
	return out
}

// Save atomically replaces the results file with every attempt so far.
func (r *Recorder) Save() error {
	attempts := r.Attempts()
	if attempts == nil {
		attempts = []Attempt{}
	}
	data, err := json.MarshalIndent(attempts, "", "  ")
	if err != nil {
		return fmt.Errorf("encode attempts: %w", err)
	}
	if err := writeAtomic(r.path, data); err != nil {
		return fmt.Errorf("save attempts to %s: %w", r.path, err)
	}
	return nil
}

// LoadAttempts reads a results file. A missing file holds no attempts.
func LoadAttempts(path string) ([]Attempt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read attempts: %w", err)
	}
	var attempts []Attempt
	if err := json.Unmarshal(data, &attempts); err != nil {
		return nil, fmt.Errorf("decode attempts %s: %w", path, err)
	}
	return attempts, nil
}
