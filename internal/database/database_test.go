package database

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	ID   uint
	Name string
}

func TestPostgresDSN(t *testing.T) {
	cfg := PostgresConfig{Host: "db", Port: "5432", Username: "u", Password: "p", Database: "gcs"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=gcs sslmode=disable", cfg.DSN())
}

func TestConnectSqliteFile(t *testing.T) {
	m := NewManager(zerolog.New(io.Discard))
	path := filepath.Join(t.TempDir(), "test.db")

	require.NoError(t, m.ConnectSqlite(path))
	t.Cleanup(func() { _ = m.Close() })
	assert.True(t, m.IsValid)

	require.NoError(t, m.Migrate(&row{}))
	require.NoError(t, m.DB.Create(&row{Name: "a"}).Error)

	var count int64
	require.NoError(t, m.DB.Model(&row{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.FileExists(t, path)
}

func TestConnectSqliteMemory(t *testing.T) {
	m := NewManager(zerolog.New(io.Discard))
	require.NoError(t, m.ConnectSqlite(""))
	require.NoError(t, m.Migrate(&row{}))
	require.NoError(t, m.Close())
	assert.False(t, m.IsValid)
}

func TestMigrateWithoutConnection(t *testing.T) {
	m := NewManager(zerolog.New(io.Discard))
	assert.Error(t, m.Migrate(&row{}))
	assert.NoError(t, m.Close())
}
