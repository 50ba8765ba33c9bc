package resource

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// resourceRow is the GORM model backing SQLiteBackend, following the same
// AutoMigrate-on-open pattern as the teacher's config/database.go.
type resourceRow struct {
	ID              string `gorm:"primaryKey"`
	ReferenceFrame  string `gorm:"index"`
	Group           string
	ResourceID      string
	GeneratorType   string
	GeneratorDriver string
	DefinitionJSON  string
	Revision        int
	LODMin, LODMax  int
	TileMinX        int
	TileMinY        int
	TileMaxX        int
	TileMaxY        int
	CreditsJSON     string
	FileClassJSON   string
	LastError       string
}

// SQLiteBackend is a Backend implementation persisting the authoritative
// resource set in a local SQLite database, mirroring the teacher's
// texture.db pattern (a single AutoMigrate()'d table opened once at
// startup) rather than reaching for Postgres/MySQL, which have no
// SPEC_FULL component to serve here.
type SQLiteBackend struct {
	db  *gorm.DB
	mu  sync.Mutex
	log *logrus.Entry
}

// NewSQLiteBackend opens (creating if absent) the SQLite database at path.
func NewSQLiteBackend(path string, log *logrus.Entry) (*SQLiteBackend, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create backend directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open resource backend: %w", err)
	}
	if err := db.AutoMigrate(&resourceRow{}); err != nil {
		return nil, fmt.Errorf("migrate resource backend: %w", err)
	}

	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &SQLiteBackend{db: db, log: log.WithField("component", "resource_backend")}, nil
}

// Put upserts a resource definition, the counterpart to Load used by
// whatever out-of-scope control plane owns resource authoring.
func (b *SQLiteBackend) Put(ctx context.Context, r Resource) error {
	defJSON, err := ToSerialized(r.Definition)
	if err != nil {
		return fmt.Errorf("serialize definition: %w", err)
	}
	credits, err := json.Marshal(r.Credits)
	if err != nil {
		return err
	}
	fc, err := json.Marshal(r.FileClasses)
	if err != nil {
		return err
	}

	row := resourceRow{
		ID:              r.ID.String(),
		ReferenceFrame:  r.ID.ReferenceFrame,
		Group:           r.ID.Group,
		ResourceID:      r.ID.ID,
		GeneratorType:   string(r.Generator.Type),
		GeneratorDriver: r.Generator.Driver,
		DefinitionJSON:  string(defJSON),
		Revision:        r.Revision,
		LODMin:          r.LODRange.Min,
		LODMax:          r.LODRange.Max,
		TileMinX:        r.TileRange.MinX,
		TileMinY:        r.TileRange.MinY,
		TileMaxX:        r.TileRange.MaxX,
		TileMaxY:        r.TileRange.MaxY,
		CreditsJSON:     string(credits),
		FileClassJSON:   string(fc),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.db.WithContext(ctx).Save(&row).Error
}

// Delete removes a resource from the backend.
func (b *SQLiteBackend) Delete(ctx context.Context, id ID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.db.WithContext(ctx).Delete(&resourceRow{}, "id = ?", id.String()).Error
}

func (b *SQLiteBackend) Load(ctx context.Context) (Map, error) {
	var rows []resourceRow
	b.mu.Lock()
	err := b.db.WithContext(ctx).Find(&rows).Error
	b.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("load resources: %w", err)
	}

	out := make(Map, len(rows))
	for _, row := range rows {
		def, err := FromSerialized([]byte(row.DefinitionJSON))
		if err != nil {
			b.log.WithError(err).WithField("resource_id", row.ID).Warn("skipping resource with unparseable definition")
			continue
		}
		var credits []string
		_ = json.Unmarshal([]byte(row.CreditsJSON), &credits)
		var fc FileClassSettings
		_ = json.Unmarshal([]byte(row.FileClassJSON), &fc)

		id := ID{ReferenceFrame: row.ReferenceFrame, Group: row.Group, ID: row.ResourceID}
		out[id] = Resource{
			ID:          id,
			Generator:   Generator{Type: GeneratorType(row.GeneratorType), Driver: row.GeneratorDriver},
			Definition:  def,
			Revision:    row.Revision,
			LODRange:    LODRange{Min: row.LODMin, Max: row.LODMax},
			TileRange:   TileRange{MinX: row.TileMinX, MinY: row.TileMinY, MaxX: row.TileMaxX, MaxY: row.TileMaxY},
			Credits:     credits,
			FileClasses: fc,
		}
	}
	return out, nil
}

func (b *SQLiteBackend) Error(_ context.Context, id ID, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.db.Model(&resourceRow{}).Where("id = ?", id.String()).
		Update("last_error", message)
	b.log.WithField("resource_id", id.String()).Warn(message)
}
