package storage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/gcsplan/planner/internal/storage"
	"github.com/gcsplan/planner/internal/storage/memory"
	"github.com/gcsplan/planner/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBroken = errors.New("disk on fire")

type brokenBackend struct {
	initErr, loadErr, saveErr error
	saves                     int
}

func (b *brokenBackend) Init() error  { return b.initErr }
func (b *brokenBackend) Close() error { return nil }
func (b *brokenBackend) Load(context.Context) ([]core.Waypoint, error) {
	return []core.Waypoint{}, b.loadErr
}
func (b *brokenBackend) Save(context.Context, []core.Waypoint) error {
	b.saves++
	return b.saveErr
}

// Compile-time interface checks
var (
	_ storage.Backend = (*storage.Fallback)(nil)
	_ storage.Backend = (*memory.Backend)(nil)
)

func TestFallbackUsesPrimaryWhileHealthy(t *testing.T) {
	primary := &brokenBackend{}
	fb := memory.New()
	f := storage.NewFallback(primary, fb, nil)

	require.NoError(t, f.Init())
	require.NoError(t, f.Save(context.Background(), []core.Waypoint{{ID: "wp_1"}}))
	assert.False(t, f.Degraded())
	assert.Equal(t, 1, primary.saves)
	assert.Equal(t, 0, fb.Saves())
}

func TestFallbackSwitchesOnInitFailure(t *testing.T) {
	f := storage.NewFallback(&brokenBackend{initErr: errBroken}, memory.New(), nil)
	require.NoError(t, f.Init())
	assert.True(t, f.Degraded())
	assert.Equal(t, "fallback(memory)", f.Name())
}

func TestFallbackSwitchesOnSaveFailure(t *testing.T) {
	fb := memory.New()
	f := storage.NewFallback(&brokenBackend{saveErr: errBroken}, fb, nil)
	require.NoError(t, f.Init())

	ws := []core.Waypoint{{ID: "wp_1", Name: "A"}}
	require.NoError(t, f.Save(context.Background(), ws))
	assert.True(t, f.Degraded())

	got, err := f.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 1, fb.Saves())
}

func TestFallbackSwitchesOnLoadFailure(t *testing.T) {
	fb := memory.New(core.Waypoint{ID: "wp_9"})
	f := storage.NewFallback(&brokenBackend{loadErr: errBroken}, fb, nil)
	require.NoError(t, f.Init())

	got, err := f.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "wp_9", got[0].ID)
}

func TestFallbackLoadFailureKeepsSavedCollection(t *testing.T) {
	ctx := context.Background()
	primary := &brokenBackend{}
	fb := memory.New()
	f := storage.NewFallback(primary, fb, nil)
	require.NoError(t, f.Init())

	ws := []core.Waypoint{{ID: "wp_1", Name: "A"}, {ID: "wp_2", Name: "B"}, {ID: "wp_3", Name: "C"}}
	require.NoError(t, f.Save(ctx, ws))
	assert.Equal(t, 0, fb.Saves())

	primary.loadErr = errBroken
	got, err := f.Load(ctx)
	require.NoError(t, err)
	assert.True(t, f.Degraded())
	assert.Equal(t, ws, got)

	// later saves stay on the fallback
	require.NoError(t, f.Save(ctx, ws[:1]))
	assert.Equal(t, 1, primary.saves)
	got, err = f.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestNameOfUnnamed(t *testing.T) {
	assert.Equal(t, "unknown", storage.NameOf(&brokenBackend{}))
	assert.Equal(t, "memory", storage.NameOf(memory.New()))
}
