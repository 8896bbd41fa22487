package main

import (
	"fmt"
	"log/slog"

	"github.com/gcsplan/planner/internal/config"
	"github.com/gcsplan/planner/internal/database"
	"github.com/gcsplan/planner/internal/storage"
	"github.com/gcsplan/planner/internal/storage/file"
	gormstorage "github.com/gcsplan/planner/internal/storage/gorm"
	"github.com/gcsplan/planner/internal/storage/memory"
	"github.com/rs/zerolog"
)

// createStorageBackend builds the configured durable store. With fallback
// enabled the store degrades to memory when it fails.
func createStorageBackend(cfg config.StorageConfig, dbCfg config.DatabaseConfig, log *slog.Logger, zlog zerolog.Logger) (storage.Backend, error) {
	primary, err := createPrimaryBackend(cfg, dbCfg, log, zlog)
	if err != nil {
		if !cfg.Fallback {
			return nil, err
		}
		log.Warn("Storage backend unavailable, using memory", "type", cfg.Type, "error", err)
		return memory.New(), nil
	}
	if !cfg.Fallback || cfg.Type == "memory" {
		return primary, nil
	}
	return storage.NewFallback(primary, memory.New(), log.With("component", "storage")), nil
}

func createPrimaryBackend(cfg config.StorageConfig, dbCfg config.DatabaseConfig, log *slog.Logger, zlog zerolog.Logger) (storage.Backend, error) {
	switch cfg.Type {
	case "file", "":
		log.Info("File storage backend selected", "path", cfg.File.Path)
		return file.New(file.Config{Path: cfg.File.Path}, log.With("component", "storage")), nil

	case "sqlite":
		mgr := database.NewManager(zlog)
		if err := mgr.ConnectSqlite(cfg.SQLite.Path); err != nil {
			return nil, fmt.Errorf("failed to open SQLite store: %w", err)
		}
		log.Info("SQLite storage backend selected", "path", cfg.SQLite.Path)
		return gormstorage.New(gormstorage.Dependencies{
			DB: mgr.DB, Logger: log.With("component", "storage"), CloseDB: mgr.Close, Migrate: mgr.Migrate,
		}), nil

	case "postgres":
		mgr := database.NewManager(zlog)
		err := mgr.ConnectPostgres(database.PostgresConfig{
			Host:     dbCfg.Host,
			Port:     dbCfg.Port,
			Username: dbCfg.Username,
			Password: dbCfg.Password,
			Database: dbCfg.Database,
		})
		if err != nil {
			return nil, err
		}
		log.Info("Postgres storage backend selected", "host", dbCfg.Host, "database", dbCfg.Database)
		return gormstorage.New(gormstorage.Dependencies{
			DB: mgr.DB, Logger: log.With("component", "storage"), CloseDB: mgr.Close, Migrate: mgr.Migrate,
		}), nil

	case "memory":
		log.Info("Memory storage backend selected")
		return memory.New(), nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
