// Package testutil provides testing helpers shared across authfuzz packages
package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"authfuzz/pkg/transport"
)

// RecordingDoer implements transport.Doer, remembers every request and
// answers with Respond (200 "ok" when nil).
type RecordingDoer struct {
	mu       sync.Mutex
	requests []*transport.Request
	Respond  func(req *transport.Request) (*transport.Response, error)
}

func NewRecordingDoer(respond func(req *transport.Request) (*transport.Response, error)) *RecordingDoer {
	return &RecordingDoer{Respond: respond}
}

func (d *RecordingDoer) Do(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	d.mu.Lock()
	d.requests = append(d.requests, req)
	d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.Respond == nil {
		return Status(http.StatusOK, "ok"), nil
	}
	return d.Respond(req)
}

func (d *RecordingDoer) Requests() []*transport.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*transport.Request, len(d.requests))
	copy(out, d.requests)
	return out
}

// Status builds a canned response.
func Status(code int, body string) *transport.Response {
	return &transport.Response{StatusCode: code, Header: http.Header{}, Body: []byte(body)}
}

// ErrConnRefused is returned by FailingDoer.
var ErrConnRefused = errors.New("connection refused")

// FailingDoer fails every request.
func FailingDoer() *RecordingDoer {
	return NewRecordingDoer(func(*transport.Request) (*transport.Response, error) {
		return nil, ErrConnRefused
	})
}

// WriteCaptureLog writes records as JSON lines into dir/proxy_log.jsonl.
func WriteCaptureLog(t *testing.T, dir string, records ...map[string]interface{}) string {
	t.Helper()

	var sb strings.Builder
	for _, r := range records {
		b, err := json.Marshal(r)
		if err != nil {
			t.Fatalf("marshal capture record: %v", err)
		}
		sb.Write(b)
		sb.WriteByte('\n')
	}
	return CreateTestFile(t, dir, "proxy_log.jsonl", sb.String())
}

// CaptureRecord is a shorthand for a request-stage capture line.
func CaptureRecord(method, host, path string, headers map[string]string) map[string]interface{} {
	return map[string]interface{}{
		"t":           float64(time.Now().Unix()),
		"stage":       "request",
		"method":      method,
		"host":        host,
		"path":        path,
		"req_headers": headers,
	}
}

// CreateTestFile creates a test file with the given content
func CreateTestFile(t *testing.T, dir, filename, content string) string {
	t.Helper()

	filePath := filepath.Join(dir, filename)
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		t.Fatalf("Failed to create dir for %s: %v", filePath, err)
	}
	if err := os.WriteFile(filePath, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to create test file %s: %v", filePath, err)
	}
	return filePath
}

// WithTimeout creates a context with timeout for tests
func WithTimeout(t *testing.T, timeout time.Duration) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), timeout)
}

// MockCommandExecutor records external command invocations.
type MockCommandExecutor struct {
	mu       sync.Mutex
	Commands []ExecutedCommand
	Err      error
}

type ExecutedCommand struct {
	Command string
	Args    []string
}

func (m *MockCommandExecutor) Run(ctx context.Context, command string, args []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Commands = append(m.Commands, ExecutedCommand{Command: command, Args: append([]string(nil), args...)})
	return m.Err
}
