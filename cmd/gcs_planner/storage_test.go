package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/gcsplan/planner/internal/config"
	"github.com/gcsplan/planner/internal/storage"
	"github.com/gcsplan/planner/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCreateStorageBackend(t *testing.T) {
	dir := t.TempDir()
	base := config.StorageConfig{
		File:   config.FileStoreConfig{Path: filepath.Join(dir, "waypoints.json")},
		SQLite: config.SQLiteConfig{Path: filepath.Join(dir, "waypoints.db")},
	}

	tests := []struct {
		typ      string
		fallback bool
		want     string
	}{
		{"file", false, "file"},
		{"", false, "file"},
		{"memory", true, "memory"},
		{"sqlite", false, "sqlite"},
		{"file", true, "fallback(file)"},
		{"sqlite", true, "fallback(sqlite)"},
	}
	for _, tt := range tests {
		t.Run(tt.typ+"/"+tt.want, func(t *testing.T) {
			cfg := base
			cfg.Type = tt.typ
			cfg.Fallback = tt.fallback
			b, err := createStorageBackend(cfg, config.DatabaseConfig{}, testLogger(), zerolog.Nop())
			require.NoError(t, err)
			t.Cleanup(func() { _ = b.Close() })
			assert.Equal(t, tt.want, storage.NameOf(b))
		})
	}
}

func TestSqliteBackendMigratesThroughManager(t *testing.T) {
	cfg := config.StorageConfig{Type: "sqlite", SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "w.db")}}
	b, err := createStorageBackend(cfg, config.DatabaseConfig{}, testLogger(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	require.NoError(t, b.Init())
	ws := []core.Waypoint{{ID: "wp_1", Name: "A", Kind: core.KindPoint, Coordinates: []core.Coordinate{{Latitude: 1, Longitude: 2}}}}
	require.NoError(t, b.Save(context.Background(), ws))
	got, err := b.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].Name)
}

func TestCreateStorageBackendUnknownType(t *testing.T) {
	_, err := createStorageBackend(config.StorageConfig{Type: "cassette"}, config.DatabaseConfig{}, testLogger(), zerolog.Nop())
	assert.Error(t, err)

	b, err := createStorageBackend(config.StorageConfig{Type: "cassette", Fallback: true}, config.DatabaseConfig{}, testLogger(), zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "memory", storage.NameOf(b))
}
