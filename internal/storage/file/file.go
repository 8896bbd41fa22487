// Package file stores the waypoint collection as a single JSON document.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gcsplan/planner/pkg/core"
	"github.com/gcsplan/planner/pkg/protocol"
)

// Config holds file backend configuration.
type Config struct {
	Path string
}

// Backend reads and writes the aggregate store document.
type Backend struct {
	cfg Config
	log *slog.Logger
	now func() time.Time

	mu sync.Mutex
}

// New creates a file backend. A nil logger uses slog.Default.
func New(cfg Config, log *slog.Logger) *Backend {
	if log == nil {
		log = slog.Default()
	}
	return &Backend{cfg: cfg, log: log, now: time.Now}
}

// Name identifies the backend in logs.
func (b *Backend) Name() string { return "file" }

// Init makes sure the parent directory exists.
func (b *Backend) Init() error {
	if b.cfg.Path == "" {
		return fmt.Errorf("store file path not set")
	}
	if err := os.MkdirAll(filepath.Dir(b.cfg.Path), 0o755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	return nil
}

// Close is a no-op.
func (b *Backend) Close() error {
	return nil
}

// Load reads the store document. Missing or malformed files yield an empty
// collection; other read errors are returned.
func (b *Backend) Load(_ context.Context) ([]core.Waypoint, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := os.ReadFile(b.cfg.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return []core.Waypoint{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", core.ErrPersistence, b.cfg.Path, err)
	}

	var doc protocol.StoreDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		b.log.Warn("Store file is malformed, starting empty", "path", b.cfg.Path, "error", err)
		return []core.Waypoint{}, nil
	}
	if doc.Waypoints == nil {
		return []core.Waypoint{}, nil
	}
	return doc.Waypoints, nil
}

// Save writes the store document to a temp file and renames it into place.
func (b *Backend) Save(_ context.Context, ws []core.Waypoint) error {
	data, err := json.MarshalIndent(protocol.NewStoreDocument(ws, b.now()), "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode store: %v", core.ErrPersistence, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := writeAtomic(b.cfg.Path, data); err != nil {
		return fmt.Errorf("%w: %v", core.ErrPersistence, err)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
