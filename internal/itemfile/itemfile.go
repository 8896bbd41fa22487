// Package itemfile keeps one JSON document per waypoint in a directory,
// keyed by the waypoint's sanitized name, for external tooling.
package itemfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gcsplan/planner/pkg/core"
	"github.com/gcsplan/planner/pkg/protocol"
)

const ext = ".json"

// Config holds per-item directory settings.
type Config struct {
	Dir    string
	Source string // written into each document's metadata
}

// Store reads and writes per-waypoint documents.
type Store struct {
	cfg Config
	log *slog.Logger
	now func() time.Time

	mu sync.Mutex
}

// New creates a Store. A nil logger uses slog.Default.
func New(cfg Config, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Source == "" {
		cfg.Source = "gcs-planner"
	}
	return &Store{cfg: cfg, log: log, now: time.Now}
}

// Dir returns the managed directory.
func (s *Store) Dir() string {
	return s.cfg.Dir
}

// PathFor returns the document path for a waypoint name.
func (s *Store) PathFor(name string) string {
	return filepath.Join(s.cfg.Dir, SanitizeName(name)+ext)
}

// Write serializes w into its document, overwriting any existing one.
func (s *Store) Write(w core.Waypoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(w)
}

func (s *Store) write(w core.Waypoint) error {
	data, err := json.MarshalIndent(protocol.NewItemDocument(w, s.cfg.Source, s.now()), "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode %q: %v", core.ErrPersistence, w.Name, err)
	}
	if err := os.MkdirAll(s.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %v", core.ErrPersistence, s.cfg.Dir, err)
	}

	path := s.PathFor(w.Name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %v", core.ErrPersistence, path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: write %s: %v", core.ErrPersistence, path, err)
	}
	return nil
}

// Remove deletes the document for name. A missing document is not an error.
func (s *Store) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remove(name)
}

func (s *Store) remove(name string) error {
	path := s.PathFor(name)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: remove %s: %v", core.ErrPersistence, path, err)
	}
	return nil
}

// Rename removes the document for oldName and writes w under its new name.
// Both steps are attempted; any failure is logged and returned.
func (s *Store) Rename(oldName, newName string, w core.Waypoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w.Name = newName
	removeErr := s.remove(oldName)
	writeErr := s.write(w)
	if removeErr == nil && writeErr == nil {
		return nil
	}

	err := errors.Join(removeErr, writeErr)
	s.log.Error("Per-item rename incomplete",
		"from", oldName,
		"to", newName,
		"removeOk", removeErr == nil,
		"writeOk", writeErr == nil,
		"error", err)
	return fmt.Errorf("%w: rename %q to %q: %w", core.ErrPersistence, oldName, newName, err)
}

// Reconcile deletes every document whose stem does not match a sanitized
// current name and returns the removed file names in directory order.
// A missing directory has nothing to reconcile.
func (s *Store) Reconcile(currentNames []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.cfg.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: scan %s: %v", core.ErrPersistence, s.cfg.Dir, err)
	}

	keep := make(map[string]struct{}, len(currentNames))
	for _, n := range currentNames {
		keep[SanitizeName(n)] = struct{}{}
	}

	var removed []string
	var errs []error
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ext {
			continue
		}
		if _, ok := keep[strings.TrimSuffix(e.Name(), ext)]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(s.cfg.Dir, e.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, e.Name())
	}

	if len(removed) > 0 {
		s.log.Info("Removed orphaned waypoint files", "count", len(removed), "files", removed)
	}
	if len(errs) > 0 {
		return removed, fmt.Errorf("%w: reconcile: %w", core.ErrPersistence, errors.Join(errs...))
	}
	return removed, nil
}

// SanitizeName maps a waypoint name to a portable file stem. Characters
// reserved on common filesystems and control characters become '_';
// trailing dots and spaces are trimmed. An empty result becomes "_".
func SanitizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r < 0x20 || r == 0x7f:
			b.WriteByte('_')
		case strings.ContainsRune(`<>:"/\|?*`, r):
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	out := strings.TrimRight(b.String(), ". ")
	if out == "" {
		return "_"
	}
	return out
}
