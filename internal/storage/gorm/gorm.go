// Package gormstorage stores waypoints in SQLite or PostgreSQL through GORM,
// one row per waypoint plus a header row mirroring the store envelope.
package gormstorage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gcsplan/planner/pkg/core"
	"github.com/gcsplan/planner/pkg/protocol"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB     *gorm.DB
	Logger *slog.Logger
	// CloseDB closes the connection on Close. Nil leaves it open.
	CloseDB func() error
	// Migrate applies the schema. Nil uses DB.AutoMigrate.
	Migrate func(models ...any) error
}

// Backend implements storage.Backend on a relational database.
type Backend struct {
	deps Dependencies
	log  *slog.Logger
	now  func() time.Time
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Backend{deps: deps, log: log, now: time.Now}
}

// Name identifies the backend in logs.
func (b *Backend) Name() string {
	if b.deps.DB == nil {
		return "gorm"
	}
	return b.deps.DB.Dialector.Name()
}

// Init migrates the schema.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return fmt.Errorf("database not connected")
	}
	if b.deps.Migrate != nil {
		return b.deps.Migrate(Models...)
	}
	if err := b.deps.DB.AutoMigrate(Models...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Close releases the connection if the backend owns it.
func (b *Backend) Close() error {
	if b.deps.CloseDB != nil {
		return b.deps.CloseDB()
	}
	return nil
}

// Load returns every stored waypoint in insertion order. Rows that fail to
// decode are skipped with a warning.
func (b *Backend) Load(ctx context.Context) ([]core.Waypoint, error) {
	var records []WaypointRecord
	err := b.deps.DB.WithContext(ctx).Order("position ASC").Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("%w: load waypoints: %v", core.ErrPersistence, err)
	}

	ws := make([]core.Waypoint, 0, len(records))
	for _, r := range records {
		w, err := toWaypoint(r)
		if err != nil {
			b.log.Warn("Skipping unreadable waypoint row", "id", r.ID, "error", err)
			continue
		}
		ws = append(ws, w)
	}
	return ws, nil
}

// Save replaces all rows in a single transaction.
func (b *Backend) Save(ctx context.Context, ws []core.Waypoint) error {
	records := make([]WaypointRecord, 0, len(ws))
	for i, w := range ws {
		r, err := toRecord(w, i)
		if err != nil {
			return fmt.Errorf("%w: %v", core.ErrPersistence, err)
		}
		records = append(records, r)
	}

	doc := protocol.NewStoreDocument(ws, b.now())
	types, _ := json.Marshal(doc.Metadata.Types)
	info := StoreInfo{
		ID:             1,
		Version:        doc.Version,
		Created:        doc.Created,
		TotalWaypoints: doc.Metadata.TotalWaypoints,
		Types:          datatypes.JSON(types),
	}

	err := b.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&WaypointRecord{}).Error; err != nil {
			return fmt.Errorf("clear waypoints: %w", err)
		}
		if len(records) > 0 {
			if err := tx.CreateInBatches(records, 500).Error; err != nil {
				return fmt.Errorf("insert waypoints: %w", err)
			}
		}
		if err := tx.Save(&info).Error; err != nil {
			return fmt.Errorf("write store info: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrPersistence, err)
	}
	return nil
}

// Info returns the stored envelope header, if any.
func (b *Backend) Info(ctx context.Context) (StoreInfo, bool, error) {
	var info StoreInfo
	res := b.deps.DB.WithContext(ctx).Limit(1).Find(&info, 1)
	if res.Error != nil {
		return StoreInfo{}, false, res.Error
	}
	return info, res.RowsAffected > 0, nil
}
