package logger

import (
	"errors"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanLoggerWritesFiles(t *testing.T) {
	dir := t.TempDir()

	sl, err := NewScanLogger("scan-1", dir, logrus.InfoLevel)
	require.NoError(t, err)

	sl.LogStrategyFailure("jwt_replay", "GET http://lab/whoami", errors.New("boom"))
	sl.LogScanSuccess(2, 9)
	require.NoError(t, sl.Close())

	logData, err := os.ReadFile(sl.LogFilePath())
	require.NoError(t, err)
	assert.Contains(t, string(logData), "scan scan-1 started")
	assert.Contains(t, string(logData), "2 findings over 9 work units")

	errData, err := os.ReadFile(sl.ErrorLogFilePath())
	require.NoError(t, err)
	assert.Contains(t, string(errData), "jwt_replay on GET http://lab/whoami: boom")
}

func TestWithRotationIgnoresEmptyPath(t *testing.T) {
	l := NewLogger(logrus.DebugLevel)
	out := l.Out
	assert.Same(t, l, l.WithRotation(RotateOptions{}))
	assert.Equal(t, out, l.Out)
}
