package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/gcsplan/planner/internal/config"
	"github.com/gcsplan/planner/internal/engine"
	"github.com/gcsplan/planner/internal/logging"
	intOtel "github.com/gcsplan/planner/internal/otel"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.0.1"
	BuildDate      string = "unknown"

	AppName string = "gcs_planner"
)

// global variables
var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// OTelProvider handles OpenTelemetry metrics
	OTelProvider *intOtel.Provider

	LogFilePath string
	LogFile     *os.File

	SessionStartTime time.Time = time.Now()

	// currentEngine feeds live state into every log record once built
	currentEngine atomic.Pointer[engine.Engine]

	configDir string
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   AppName,
	Short: "Waypoint planning and synchronization engine for a drone ground station",
	Long: `gcs_planner keeps the waypoint collection, its durable store, the
per-waypoint files and the map scene in sync, and talks to the mission
planning backend.`,
	Version:           fmt.Sprintf("%s (built %s)", CurrentVersion, BuildDate),
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) { teardown() },
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", ".", "directory containing "+config.FileName)
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logLevel from config")

	rootCmd.AddCommand(runCmd, listCmd, renameCmd, deleteCmd, clearCmd, reconcileCmd, sendCmd, batchCmd, healthCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads config and brings up logging and metrics.
func setup(cmd *cobra.Command, args []string) error {
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(os.Stderr, "info")
	Logger = SlogManager.Logger()

	if err := config.Load(configDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Debug("Loaded config", "dir", configDir)
	}
	if logLevel != "" {
		viper.Set("logLevel", logLevel)
	}

	var err error
	LogFile, LogFilePath, err = logging.OpenLogFile(viper.GetString("logsDir"), AppName, SessionStartTime)
	if err != nil {
		Logger.Error("Failed to create/open log file!", "error", err, "path", LogFilePath)
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled && LogFile != nil {
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:        otelCfg.Enabled,
			ServiceName:    otelCfg.ServiceName,
			ExportInterval: otelCfg.ExportInterval,
			Writer:         LogFile,
		})
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			Logger.Info("OTel provider initialized", "file", LogFilePath)
		}
	}

	var extra []slog.Handler
	if gl := config.GetGraylogConfig(); gl.Enabled {
		h, err := logging.NewGELFHandler(gl.Address, viper.GetString("logLevel"))
		if err != nil {
			Logger.Error("Failed to connect to Graylog", "error", err, "address", gl.Address)
		} else {
			extra = append(extra, h)
		}
	}

	// Re-setup logging with file output and engine state
	SlogManager.Context = engineLogAttrs
	SlogManager.Setup(logWriter(), viper.GetString("logLevel"), extra...)
	Logger = SlogManager.Logger()
	Logger.Info("Logging to file", "path", LogFilePath, "command", cmd.Name(), "version", CurrentVersion)
	return nil
}

func teardown() {
	if OTelProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := OTelProvider.Shutdown(ctx); err != nil {
			Logger.Warn("Failed to shut down OTel provider", "error", err)
		}
	}
	if LogFile != nil {
		_ = LogFile.Close()
	}
}

func engineLogAttrs() []slog.Attr {
	if e := currentEngine.Load(); e != nil {
		return e.LogAttrs()
	}
	return nil
}

func logWriter() io.Writer {
	if LogFile != nil {
		return LogFile
	}
	return os.Stderr
}
