package report

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"authfuzz/pkg/attacks"
	apperrors "authfuzz/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregatorPreservesOrder(t *testing.T) {
	agg := NewAggregator()
	agg.Add(attacks.Result{Vulnerability: "a"})
	agg.Add()
	agg.Add(attacks.Result{Vulnerability: "b"}, attacks.Result{Vulnerability: "c"})

	got := agg.Results()
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].Vulnerability)
	assert.Equal(t, "c", got[2].Vulnerability)

	got[0].Vulnerability = "mutated"
	assert.Equal(t, "a", agg.Results()[0].Vulnerability)
}

func TestFileStoreRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	store := NewFileStore(dir)

	missing, err := store.Load("scan-1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	agg := NewAggregator()
	agg.Add(attacks.Result{
		Vulnerability: attacks.VulnJWTReplay,
		Endpoint:      "GET http://lab/whoami",
		Severity:      attacks.SeverityHigh,
		Evidence:      map[string]interface{}{"status_code": 200},
	})
	r := agg.Build("scan-1", "juice-shop", "http://lab")
	require.NoError(t, store.Save(r))

	loaded, err := store.Load("scan-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "juice-shop", loaded.Target)
	assert.Equal(t, 1, loaded.Total)
	assert.Equal(t, attacks.VulnJWTReplay, loaded.Issues[0].Vulnerability)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestFileStoreEmptyReportHasIssueList(t *testing.T) {
	store := NewFileStore(t.TempDir())
	require.NoError(t, store.Save(NewAggregator().Build("empty", "dvwa", "http://lab")))

	data, err := os.ReadFile(filepath.Join(store.Dir, "empty.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"issues": []`)
	assert.Contains(t, string(data), `"total": 0`)
}

func TestFileStoreRejectsUnsafeIDs(t *testing.T) {
	store := NewFileStore(t.TempDir())
	_, err := store.Load("../etc/passwd")
	assert.ErrorIs(t, err, apperrors.ErrInvalidScanID)

	err = store.Save(&Report{ScanID: "a/b"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidScanID)
}

func TestFileStoreSaveFailureIsPersistenceError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	err := NewFileStore(blocker).Save(&Report{ScanID: "s"})
	var pe *apperrors.PersistenceError
	assert.ErrorAs(t, err, &pe)
}

func TestRecorderConcurrentAddAndSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outputs", "results.json")
	rec := NewRecorder(path)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec.Add(Attempt{Mode: ModePassword, Password: "p", OK: i%10 == 0})
		}(i)
	}
	wg.Wait()
	require.NoError(t, rec.Save())

	attempts, err := LoadAttempts(path)
	require.NoError(t, err)
	assert.Len(t, attempts, 50)

	none, err := LoadAttempts(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestComputeMetrics(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	attempts := []Attempt{
		{Mode: ModePassword, OK: true},
		{Mode: ModePassword},
		{Mode: ModePassword},
		{Mode: ModePassword},
		{Mode: ModeJWT, OK: true},
		{Mode: "fix", OK: true},
		{Mode: ModeFixation},
		{Mode: ModeTTL, ObservedTTL: f(900), ConfigTTL: f(1000)},
		{Mode: ModeTTL, ObservedTTL: f(1000), ConfigTTL: f(1000)},
		{Mode: ModeTTL, ObservedTTL: f(5)},
		{Mode: "unknown", OK: true},
	}

	m := ComputeMetrics(attempts)
	require.NotNil(t, m.UAR)
	assert.InDelta(t, 0.25, *m.UAR, 1e-9)
	assert.Equal(t, ModeStats{TotalAttempts: 4, Successful: 1}, m.UARDetails)
	require.NotNil(t, m.UAFT)
	assert.InDelta(t, 1.0, *m.UAFT, 1e-9)
	require.NotNil(t, m.USFX)
	assert.InDelta(t, 0.5, *m.USFX, 1e-9)
	require.NotNil(t, m.UTLA)
	assert.InDelta(t, 0.95, *m.UTLA, 1e-9)

	assert.Nil(t, m.URPR, "zero attempts is undefined, not zero")
	assert.Nil(t, m.ULIR)
}

func TestComputeMetricsEmpty(t *testing.T) {
	m := ComputeMetrics(nil)
	assert.Nil(t, m.UAR)
	assert.Nil(t, m.UAFT)
	assert.Nil(t, m.USFX)
	assert.Nil(t, m.UTLA)
	assert.Equal(t, 0, m.UARDetails.TotalAttempts)
}
