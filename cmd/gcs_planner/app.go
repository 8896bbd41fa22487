package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/gcsplan/planner/internal/api"
	"github.com/gcsplan/planner/internal/config"
	"github.com/gcsplan/planner/internal/engine"
	"github.com/gcsplan/planner/internal/influx"
	"github.com/gcsplan/planner/internal/itemfile"
	"github.com/gcsplan/planner/internal/logging"
	"github.com/gcsplan/planner/internal/monitor"
	"github.com/gcsplan/planner/internal/scene"
	"github.com/spf13/viper"
)

// services bundles what a command needs. Every command builds one engine.
type services struct {
	Engine *engine.Engine
	Influx *influx.Manager // nil unless influx.enabled
}

type engineOptions struct {
	sync bool // start the monitor loop
}

func newServices(ctx context.Context, opts engineOptions) (*services, error) {
	zlog := logging.NewZerolog(logWriter(), viper.GetString("logLevel"))

	store, err := createStorageBackend(config.GetStorageConfig(), config.GetDatabaseConfig(), Logger, zlog)
	if err != nil {
		return nil, err
	}

	itemCfg := config.GetItemFileConfig()
	items := itemfile.New(itemfile.Config{Dir: itemCfg.Dir, Source: itemCfg.Source}, Logger.With("component", "items"))

	svc := &services{}
	if viper.GetBool("influx.enabled") {
		backup := filepath.Join(viper.GetString("logsDir"),
			fmt.Sprintf("%s_%s.influx.gz", AppName, SessionStartTime.Format("20060102_150405")))
		m := influx.NewManager(zlog.With().Str("component", "influx").Logger(), backup)
		if err := m.Connect(ctx); err != nil {
			Logger.Warn("InfluxDB unavailable, not recording", "error", err)
		} else {
			svc.Influx = m
		}
	}

	syncCfg := config.GetSyncConfig()
	captureCfg := config.GetCaptureConfig()
	monitorDeps := monitor.Dependencies{Interval: syncCfg.Interval}
	if OTelProvider != nil {
		monitorDeps.Meter = OTelProvider.Meter("github.com/gcsplan/planner/internal/monitor")
	}
	if svc.Influx != nil {
		rec := svc.Influx
		monitorDeps.OnTick = func(rep monitor.TickReport) {
			if err := rec.RecordTick(rep); err != nil {
				Logger.Debug("Failed to record sync tick", "error", err)
			}
		}
	}

	eng, err := engine.New(engine.Dependencies{
		Store:        store,
		Items:        items,
		Scene:        scene.NewMemoryScene(),
		API:          api.New(config.GetAPIConfig(), Logger.With("component", "api")),
		Logger:       Logger,
		SceneOptions: scene.Options{CircleSegments: captureCfg.CircleSegments},
		Sync:         monitorDeps,
		SyncEnabled:  opts.sync && syncCfg.Enabled,
	})
	if err != nil {
		return nil, err
	}
	svc.Engine = eng
	currentEngine.Store(eng)

	if err := eng.Start(ctx); err != nil {
		svc.Close()
		return nil, err
	}
	return svc, nil
}

func (s *services) Close() {
	currentEngine.Store(nil)
	if err := s.Engine.Close(); err != nil {
		Logger.Error("Engine shutdown incomplete", "error", err)
	}
	if s.Influx != nil {
		if err := s.Influx.Close(); err != nil {
			Logger.Warn("Failed to close InfluxDB", "error", err)
		}
	}
}
