package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "gcs_planner.cfg.json"

// FileStoreConfig holds settings for the JSON aggregate store.
type FileStoreConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// SQLiteConfig holds settings for the SQLite store.
type SQLiteConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// StorageConfig selects and configures the durable store.
type StorageConfig struct {
	Type     string          `json:"type" mapstructure:"type"`
	Fallback bool            `json:"fallback" mapstructure:"fallback"`
	File     FileStoreConfig `json:"file" mapstructure:"file"`
	SQLite   SQLiteConfig    `json:"sqlite" mapstructure:"sqlite"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

// GraylogConfig configures the GELF log sink.
type GraylogConfig struct {
	Enabled bool
	Address string
}

// ItemFileConfig configures the per-waypoint document directory.
type ItemFileConfig struct {
	Dir    string
	Source string
}

// SyncConfig configures the synchronization monitor.
type SyncConfig struct {
	Enabled  bool
	Interval time.Duration
}

// APIConfig configures the mission backend client.
type APIConfig struct {
	ServerURL   string
	CommandPath string
	BatchPath   string
	HealthPath  string
	Timeout     time.Duration
}

// TelemetryConfig configures the live drone feed.
type TelemetryConfig struct {
	Enabled bool
	URL     string
}

// CaptureConfig configures geometry capture.
type CaptureConfig struct {
	DefaultAltitude float64
	CircleSegments  int
}

// OTelConfig configures metrics export.
type OTelConfig struct {
	Enabled        bool
	ServiceName    string
	ExportInterval time.Duration
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// SetDefaults registers every default value. Load calls it; callers that run
// without a config file call it directly.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("storage.type", "file")
	viper.SetDefault("storage.fallback", true)
	viper.SetDefault("storage.file.path", "./waypoints.json")
	viper.SetDefault("storage.sqlite.path", "./waypoints.db")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "gcs")

	viper.SetDefault("items.dir", "./waypoints")
	viper.SetDefault("items.source", "gcs-planner")

	viper.SetDefault("sync.enabled", true)
	viper.SetDefault("sync.interval", "10s")

	viper.SetDefault("api.serverUrl", "http://localhost:8000")
	viper.SetDefault("api.commandPath", "/command")
	viper.SetDefault("api.batchPath", "/waypoints")
	viper.SetDefault("api.healthPath", "/health")
	viper.SetDefault("api.timeout", "60s")

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.url", "ws://localhost:8000/ws/telemetry")

	viper.SetDefault("capture.defaultAltitude", 0.0)
	viper.SetDefault("capture.circleSegments", 64)

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "gcs-metrics")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "gcs-planner")
	viper.SetDefault("otel.exportInterval", "30s")
}

// GetStorageConfig returns the durable store settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type:     viper.GetString("storage.type"),
		Fallback: viper.GetBool("storage.fallback"),
		File:     FileStoreConfig{Path: viper.GetString("storage.file.path")},
		SQLite:   SQLiteConfig{Path: viper.GetString("storage.sqlite.path")},
	}
}

// GetItemFileConfig returns the per-waypoint file settings.
func GetItemFileConfig() ItemFileConfig {
	return ItemFileConfig{
		Dir:    viper.GetString("items.dir"),
		Source: viper.GetString("items.source"),
	}
}

// GetSyncConfig returns the monitor settings.
func GetSyncConfig() SyncConfig {
	return SyncConfig{
		Enabled:  viper.GetBool("sync.enabled"),
		Interval: viper.GetDuration("sync.interval"),
	}
}

// GetAPIConfig returns the mission backend settings.
func GetAPIConfig() APIConfig {
	return APIConfig{
		ServerURL:   viper.GetString("api.serverUrl"),
		CommandPath: viper.GetString("api.commandPath"),
		BatchPath:   viper.GetString("api.batchPath"),
		HealthPath:  viper.GetString("api.healthPath"),
		Timeout:     viper.GetDuration("api.timeout"),
	}
}

// GetTelemetryConfig returns the live feed settings.
func GetTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled: viper.GetBool("telemetry.enabled"),
		URL:     viper.GetString("telemetry.url"),
	}
}

// GetCaptureConfig returns geometry capture settings.
func GetCaptureConfig() CaptureConfig {
	return CaptureConfig{
		DefaultAltitude: viper.GetFloat64("capture.defaultAltitude"),
		CircleSegments:  viper.GetInt("capture.circleSegments"),
	}
}

// GetOTelConfig returns metrics export settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:        viper.GetBool("otel.enabled"),
		ServiceName:    viper.GetString("otel.serviceName"),
		ExportInterval: viper.GetDuration("otel.exportInterval"),
	}
}

// GetDatabaseConfig returns the PostgreSQL settings.
func GetDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

// GetGraylogConfig returns the GELF sink settings.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}
