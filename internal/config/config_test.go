package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"db": { "host": "10.0.0.1", "port": "5433" },
		"api": { "serverUrl": "http://planner:9000" }
	}`)

	require.NoError(t, Load(dir))

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, "10.0.0.1", viper.GetString("db.host"))
	assert.Equal(t, "5433", viper.GetString("db.port"))
	assert.Equal(t, "http://planner:9000", GetAPIConfig().ServerURL)

	db := GetDatabaseConfig()
	assert.Equal(t, "10.0.0.1", db.Host)
	assert.Equal(t, "5433", db.Port)
	assert.Equal(t, "postgres", db.Username)
	assert.Equal(t, "gcs", db.Database)
	assert.Equal(t, GraylogConfig{Address: "localhost:12201"}, GetGraylogConfig())
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./logs", viper.GetString("logsDir"))
	assert.Equal(t, "localhost", viper.GetString("db.host"))
	assert.Equal(t, "5432", viper.GetString("db.port"))
	assert.Equal(t, "gcs", viper.GetString("db.database"))
	assert.Equal(t, false, viper.GetBool("graylog.enabled"))
	assert.Equal(t, "localhost:12201", viper.GetString("graylog.address"))
	assert.Equal(t, false, viper.GetBool("influx.enabled"))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load("/nonexistent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestGetStorageConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetStorageConfig()
	assert.Equal(t, "file", cfg.Type)
	assert.True(t, cfg.Fallback)
	assert.Equal(t, "./waypoints.json", cfg.File.Path)
	assert.Equal(t, "./waypoints.db", cfg.SQLite.Path)
}

func TestGetStorageConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"storage": {
			"type": "sqlite",
			"fallback": false,
			"sqlite": { "path": "/tmp/wp.db" }
		}
	}`)))

	cfg := GetStorageConfig()
	assert.Equal(t, "sqlite", cfg.Type)
	assert.False(t, cfg.Fallback)
	assert.Equal(t, "/tmp/wp.db", cfg.SQLite.Path)
}

func TestGetSyncConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{"sync": {"interval": "2s"}}`)))

	cfg := GetSyncConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 2*time.Second, cfg.Interval)
}

func TestGetAPIAndTelemetryDefaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	SetDefaults()

	api := GetAPIConfig()
	assert.Equal(t, "http://localhost:8000", api.ServerURL)
	assert.Equal(t, "/command", api.CommandPath)
	assert.Equal(t, "/waypoints", api.BatchPath)
	assert.Equal(t, "/health", api.HealthPath)
	assert.Equal(t, 60*time.Second, api.Timeout)

	tel := GetTelemetryConfig()
	assert.False(t, tel.Enabled)
	assert.Equal(t, "ws://localhost:8000/ws/telemetry", tel.URL)

	capture := GetCaptureConfig()
	assert.Equal(t, 0.0, capture.DefaultAltitude)
	assert.Equal(t, 64, capture.CircleSegments)

	items := GetItemFileConfig()
	assert.Equal(t, "./waypoints", items.Dir)
	assert.Equal(t, "gcs-planner", items.Source)

	otel := GetOTelConfig()
	assert.False(t, otel.Enabled)
	assert.Equal(t, "gcs-planner", otel.ServiceName)
	assert.Equal(t, 30*time.Second, otel.ExportInterval)
}
