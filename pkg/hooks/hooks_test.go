package hooks

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"authfuzz/internal/notification"
	"authfuzz/pkg/attacks"
	"authfuzz/pkg/engine"
	"authfuzz/pkg/report"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []notification.Message
	err  error
}

func (f *fakeSender) Send(msg notification.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return f.err
}

func (f *fakeSender) Close() error { return nil }

func sampleHookContext() engine.HookContext {
	return engine.HookContext{
		State: engine.ScanState{ScanID: "s1", Status: engine.StatusFinished, Total: 6},
		Report: &report.Report{
			ScanID:  "s1",
			Target:  "juice-shop",
			BaseURL: "http://lab",
			Total:   3,
			Issues: []attacks.Result{
				{Vulnerability: attacks.VulnJWTReplay, Endpoint: "GET http://lab/a", Severity: attacks.SeverityHigh, Evidence: map[string]interface{}{"status_code": 200, "token_prefix": "eyJ"}},
				{Vulnerability: attacks.VulnJWTReplay, Endpoint: "GET http://lab/a", Severity: attacks.SeverityHigh},
				{Vulnerability: attacks.VulnSessionFixation, Endpoint: "GET http://lab/b", Severity: attacks.SeverityMedium},
			},
		},
	}
}

func TestFindingNotifierSendsSummaryAndFindings(t *testing.T) {
	sender := &fakeSender{}
	n := NewFindingNotifier(sender)
	n.throttle = 0

	require.NoError(t, n.Execute(context.Background(), sampleHookContext()))
	require.Len(t, sender.sent, 4)
	assert.Equal(t, "Scan s1 finished", sender.sent[0].Title)

	var high int
	for _, m := range sender.sent[1:] {
		if m.Severity == "high" {
			high++
			assert.Equal(t, "s1", m.Fields["scan"])
		}
	}
	assert.Equal(t, 2, high)
}

func TestFindingNotifierReportsFailures(t *testing.T) {
	n := NewFindingNotifier(&fakeSender{err: errors.New("rate limited")})
	n.throttle = 0
	assert.Error(t, n.Execute(context.Background(), sampleHookContext()))
}

func TestSummaryHookGroupsEndpoints(t *testing.T) {
	dir := t.TempDir()
	h := &SummaryHook{Dir: dir}
	require.NoError(t, h.Execute(context.Background(), sampleHookContext()))

	data, err := os.ReadFile(filepath.Join(dir, "s1.summary.txt"))
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "[jwt_replay_possible] 1 endpoint(s)")
	assert.Contains(t, text, "[session_fixation_candidate] 1 endpoint(s)")
	assert.Contains(t, text, "findings 3  work units 6")
}

func TestBuild(t *testing.T) {
	hs, err := Build(Options{}, "summary", " ")
	require.NoError(t, err)
	require.Len(t, hs, 1)
	assert.Equal(t, "summary", hs[0].Name())
	assert.Equal(t, defaultSummaryDir, hs[0].(*SummaryHook).Dir)

	_, err = Build(Options{}, "pagerduty")
	assert.ErrorContains(t, err, "unknown hook")

	assert.Contains(t, Registered(), "discord")
}

func TestBuildKeepsReportsDirPerCall(t *testing.T) {
	t.Parallel()

	first, err := Build(Options{ReportsDir: "reports-a"}, "summary")
	require.NoError(t, err)
	second, err := Build(Options{ReportsDir: "reports-b"}, "summary")
	require.NoError(t, err)

	assert.Equal(t, "reports-a", first[0].(*SummaryHook).Dir)
	assert.Equal(t, "reports-b", second[0].(*SummaryHook).Dir)
}
