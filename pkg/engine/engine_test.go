package engine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"authfuzz/pkg/attacks"
	"authfuzz/pkg/capture"
	apperrors "authfuzz/pkg/errors"
	"authfuzz/pkg/report"
	"authfuzz/pkg/runner"
	"authfuzz/pkg/testutil"
	"authfuzz/pkg/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStrategy is a scriptable strategy for orchestration tests.
type fakeStrategy struct {
	name       string
	applicable bool
	run        func(ctx context.Context, ep *capture.Endpoint) ([]attacks.Result, error)
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Applicable(*capture.Endpoint, *capture.AuthContext) bool {
	return f.applicable
}

func (f *fakeStrategy) Run(ctx context.Context, ep *capture.Endpoint, _ *capture.AuthContext, _ transport.Doer) ([]attacks.Result, error) {
	if f.run == nil {
		return nil, nil
	}
	return f.run(ctx, ep)
}

func finding(vuln string) func(context.Context, *capture.Endpoint) ([]attacks.Result, error) {
	return func(_ context.Context, ep *capture.Endpoint) ([]attacks.Result, error) {
		return []attacks.Result{{Vulnerability: vuln, Endpoint: ep.Descriptor(), Severity: attacks.SeverityLow}}, nil
	}
}

type failingStore struct{}

func (failingStore) Save(r *report.Report) error {
	return apperrors.NewPersistenceError("write report", "/nowhere", errors.New("disk full"))
}

func (failingStore) Load(string) (*report.Report, error) { return nil, nil }

type recordingHook struct {
	mu    sync.Mutex
	calls []HookContext
	err   error
}

func (h *recordingHook) Name() string { return "recording" }

func (h *recordingHook) Execute(_ context.Context, hc HookContext) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, hc)
	return h.err
}

type countingWatcher struct {
	mu    sync.Mutex
	paths []string
}

func (w *countingWatcher) Watch(ctx context.Context, scanID, path string) {
	w.mu.Lock()
	w.paths = append(w.paths, path)
	w.mu.Unlock()
	<-ctx.Done()
}

func twoEndpointCapture(t *testing.T, dir, host string) string {
	t.Helper()
	return testutil.WriteCaptureLog(t, dir,
		testutil.CaptureRecord("GET", host, "/rest/user/whoami", map[string]string{"Authorization": "Bearer tok-one"}),
		testutil.CaptureRecord("GET", host, "/rest/orders", map[string]string{"Authorization": "Bearer tok-two"}),
	)
}

func newTestEngine(t *testing.T, capturePath string, opts ...OptFunc) *Engine {
	t.Helper()
	base := []OptFunc{
		WithTransport(testutil.NewRecordingDoer(nil)),
		WithCapturePath(capturePath),
		WithReportStore(report.NewFileStore(filepath.Join(t.TempDir(), "reports"))),
	}
	return NewEngine(append(base, opts...)...)
}

func TestRunProgressAdvancesOncePerTriple(t *testing.T) {
	dir := t.TempDir()
	capturePath := twoEndpointCapture(t, dir, "lab")

	var mu sync.Mutex
	var observed []int
	var eng *Engine
	observe := func(_ context.Context, _ *capture.Endpoint) ([]attacks.Result, error) {
		s, _ := eng.States().Get("progress")
		mu.Lock()
		observed = append(observed, s.Done)
		mu.Unlock()
		return nil, nil
	}

	eng = newTestEngine(t, capturePath, WithCatalog(attacks.Catalog{
		&fakeStrategy{name: "a", applicable: true, run: observe},
		&fakeStrategy{name: "skipped", applicable: false},
		&fakeStrategy{name: "c", applicable: true, run: observe},
	}))

	rep, err := eng.Run(context.Background(), "progress", "lab", "http://lab")
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Total)

	// done already counts the running triple: a and c see 1,3 then 4,6
	assert.Equal(t, []int{1, 3, 4, 6}, observed)

	state, ok := eng.States().Get("progress")
	require.True(t, ok)
	assert.Equal(t, StatusFinished, state.Status)
	assert.Equal(t, 6, state.Total)
	assert.Equal(t, 6, state.Done)
	assert.Equal(t, 1.0, state.Progress)
	assert.NotNil(t, state.FinishedAt)
}

func TestRunIsolatesStrategyFailures(t *testing.T) {
	dir := t.TempDir()
	capturePath := twoEndpointCapture(t, dir, "lab")

	eng := newTestEngine(t, capturePath,
		WithScanLogDir(filepath.Join(dir, "logs")),
		WithCatalog(attacks.Catalog{
			&fakeStrategy{name: "panics", applicable: true, run: func(context.Context, *capture.Endpoint) ([]attacks.Result, error) {
				panic("boom")
			}},
			&fakeStrategy{name: "errors", applicable: true, run: func(context.Context, *capture.Endpoint) ([]attacks.Result, error) {
				return []attacks.Result{{Vulnerability: "partial"}}, errors.New("broken")
			}},
			&fakeStrategy{name: "finds", applicable: true, run: finding("found")},
		}))

	rep, err := eng.Run(context.Background(), "isolation", "lab", "http://lab")
	require.NoError(t, err)

	require.Equal(t, 2, rep.Total)
	for _, issue := range rep.Issues {
		assert.Equal(t, "found", issue.Vulnerability)
	}
	assert.Equal(t, "GET http://lab/rest/user/whoami", rep.Issues[0].Endpoint)
	assert.Equal(t, "GET http://lab/rest/orders", rep.Issues[1].Endpoint)

	state, _ := eng.States().Get("isolation")
	assert.Equal(t, StatusFinished, state.Status)
	assert.Equal(t, 2, state.Findings)

	errLog, err := os.ReadFile(filepath.Join(dir, "logs", "isolation.errors.log"))
	require.NoError(t, err)
	assert.Contains(t, string(errLog), "panics")
	assert.Contains(t, string(errLog), "broken")
}

func TestRunAgainstLiveTarget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"user":"me"}`))
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	dir := t.TempDir()
	capturePath := twoEndpointCapture(t, dir, u.Host)
	client, err := transport.New(transport.Config{})
	require.NoError(t, err)

	reports := report.NewFileStore(filepath.Join(dir, "reports"))
	eng := NewEngine(
		WithTransport(client),
		WithCapturePath(capturePath),
		WithReportStore(reports),
	)

	rep, err := eng.Run(context.Background(), "live", "juice-shop", srv.URL)
	require.NoError(t, err)

	// two endpoints times two replayed tokens; role escalation skips the
	// opaque tokens and there are no session cookies to fix
	require.Equal(t, 4, rep.Total)
	for _, issue := range rep.Issues {
		assert.Equal(t, attacks.VulnJWTReplay, issue.Vulnerability)
		assert.Equal(t, attacks.SeverityHigh, issue.Severity)
		assert.Equal(t, http.StatusOK, issue.Evidence["status_code"])
	}

	stored, err := reports.Load("live")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 4, stored.Total)

	state, _ := eng.States().Get("live")
	assert.Equal(t, 6, state.Total)
	assert.Equal(t, 6, state.Done)
}

func TestRunWithEmptyCapture(t *testing.T) {
	eng := newTestEngine(t, filepath.Join(t.TempDir(), "missing.jsonl"))

	rep, err := eng.Run(context.Background(), "empty", "dvwa", "http://lab")
	require.NoError(t, err)
	assert.Empty(t, rep.Issues)

	state, _ := eng.States().Get("empty")
	assert.Equal(t, StatusFinished, state.Status)
	assert.Equal(t, 0, state.Total)
	assert.Equal(t, 1.0, state.Progress)
}

func TestRunGeneratorFailures(t *testing.T) {
	reg := runner.NewRegistry()
	reg.Register("broken", runner.GeneratorFunc(func(context.Context, string) error {
		return errors.New("login failed")
	}))

	testCases := []struct {
		name    string
		target  string
		wantErr error
	}{
		{name: "unknown target", target: "webgoat", wantErr: apperrors.ErrUnknownTarget},
		{name: "runner error", target: "broken"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			eng := newTestEngine(t, filepath.Join(t.TempDir(), "proxy_log.jsonl"), WithRunners(reg))

			rep, err := eng.Run(context.Background(), "gen-"+tc.target, tc.target, "http://lab")
			require.Error(t, err)
			assert.Nil(t, rep)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			}

			state, _ := eng.States().Get("gen-" + tc.target)
			assert.Equal(t, StatusError, state.Status)
			assert.Equal(t, ReasonGenerator, state.Error)
		})
	}
}

func TestRunGeneratesTrafficBeforeNormalizing(t *testing.T) {
	dir := t.TempDir()
	capturePath := filepath.Join(dir, "proxy_log.jsonl")

	reg := runner.NewRegistry()
	reg.Register("lab", runner.GeneratorFunc(func(_ context.Context, baseURL string) error {
		twoEndpointCapture(t, dir, "lab")
		return nil
	}))
	watcher := &countingWatcher{}

	eng := newTestEngine(t, capturePath,
		WithRunners(reg),
		WithCaptureWatcher(watcher),
		WithCatalog(attacks.Catalog{&fakeStrategy{name: "finds", applicable: true, run: finding("x")}}),
	)

	rep, err := eng.Run(context.Background(), "generated", "lab", "http://lab")
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Total)
	assert.Equal(t, []string{capturePath}, watcher.paths)
}

func TestRunPersistenceFailureMarksError(t *testing.T) {
	capturePath := twoEndpointCapture(t, t.TempDir(), "lab")
	hook := &recordingHook{}
	eng := newTestEngine(t, capturePath, WithReportStore(failingStore{}), WithHooks(hook))

	_, err := eng.Run(context.Background(), "persist", "lab", "http://lab")
	var pe *apperrors.PersistenceError
	require.ErrorAs(t, err, &pe)

	state, _ := eng.States().Get("persist")
	assert.Equal(t, StatusError, state.Status)
	assert.Equal(t, ReasonPersistence, state.Error)
	assert.Empty(t, hook.calls, "hooks only run for finished scans")
}

func TestRunCancellation(t *testing.T) {
	capturePath := twoEndpointCapture(t, t.TempDir(), "lab")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	eng := newTestEngine(t, capturePath, WithCatalog(attacks.Catalog{
		&fakeStrategy{name: "cancels", applicable: true, run: func(context.Context, *capture.Endpoint) ([]attacks.Result, error) {
			calls++
			cancel()
			return nil, nil
		}},
	}))

	_, err := eng.Run(ctx, "cancel", "lab", "http://lab")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)

	state, _ := eng.States().Get("cancel")
	assert.Equal(t, StatusError, state.Status)
	assert.Equal(t, ReasonCancelled, state.Error)
	assert.Equal(t, 1, state.Done)
}

func TestRunHooksSeeFinishedState(t *testing.T) {
	capturePath := twoEndpointCapture(t, t.TempDir(), "lab")
	ok := &recordingHook{}
	bad := &recordingHook{err: errors.New("webhook down")}

	eng := newTestEngine(t, capturePath,
		WithCatalog(attacks.Catalog{&fakeStrategy{name: "finds", applicable: true, run: finding("x")}}),
		WithHooks(bad, ok),
	)

	_, err := eng.Run(context.Background(), "hooks", "lab", "http://lab")
	require.NoError(t, err)

	require.Len(t, ok.calls, 1)
	assert.Equal(t, StatusFinished, ok.calls[0].State.Status)
	assert.Equal(t, 2, ok.calls[0].Report.Total)

	state, _ := eng.States().Get("hooks")
	assert.Equal(t, StatusFinished, state.Status)
}

func TestRunRejectsReusedAndInvalidIDs(t *testing.T) {
	eng := newTestEngine(t, filepath.Join(t.TempDir(), "none.jsonl"))

	_, err := eng.Run(context.Background(), "once", "lab", "http://lab")
	require.NoError(t, err)

	_, err = eng.Run(context.Background(), "once", "lab", "http://lab")
	assert.ErrorIs(t, err, apperrors.ErrScanExists)

	_, err = eng.Run(context.Background(), "../escape", "lab", "http://lab")
	assert.ErrorIs(t, err, apperrors.ErrInvalidScanID)
}
