package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogFilePath(t *testing.T) {
	sessionStart := time.Date(2026, 2, 12, 21, 38, 36, 0, time.UTC)

	tests := []struct {
		name    string
		logsDir string
		want    string
	}{
		{"basic path", "logs", filepath.Join("logs", "gcs_planner.20260212_213836.log")},
		{"relative path with dot", "./logs", filepath.Join(".", "logs", "gcs_planner.20260212_213836.log")},
		{"absolute path", filepath.Join("/var", "log", "gcs"), filepath.Join("/var", "log", "gcs", "gcs_planner.20260212_213836.log")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LogFilePath(tt.logsDir, "gcs_planner", sessionStart))
		})
	}
}

func TestOpenLogFile_MovesExistingAside(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	f, path, err := OpenLogFile(dir, "app", start)
	require.NoError(t, err)
	_, err = f.WriteString("first session\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f2, path2, err := OpenLogFile(dir, "app", start)
	require.NoError(t, err)
	defer f2.Close()

	assert.Equal(t, path, path2)
	old, err := os.ReadFile(path + ".old")
	require.NoError(t, err)
	assert.Equal(t, "first session\n", string(old))
}
