// Package storage is the narrate library: the entries that can be played,
// per-source interest weights, and persisted settings, kept in SQLite.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/narrate/internal/narration"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Entry is a library article. Its text lives in the file at Path.
type Entry struct {
	ID         string     `gorm:"primaryKey"`
	Title      string     `gorm:"not null"`
	Source     string     `gorm:"index"`
	Summary    string     `gorm:"type:text"`
	Path       string     `gorm:"index"`
	ListenedAt *time.Time `gorm:"index"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Interest is the accumulated weight of a source. Every enqueue of one of
// its articles adds one.
type Interest struct {
	Source    string `gorm:"primaryKey"`
	Weight    float64
	UpdatedAt time.Time
}

// Setting is a persisted key/value pair.
type Setting struct {
	Key       string `gorm:"primaryKey"`
	Value     string `gorm:"type:text"`
	UpdatedAt time.Time
}

// unknownSource is the interest bucket for articles without a source.
const unknownSource = "unknown"

// DB is the library database.
type DB struct {
	db     *gorm.DB
	logger *log.Logger
}

// Open opens (creating if needed) the SQLite database at path. path may
// also be a SQLite DSN such as "file:x?mode=memory".
func Open(path string, l *log.Logger) (*DB, error) {
	if l == nil {
		l = log.Default()
	}
	if !strings.HasPrefix(path, "file:") && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create library directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open library: %w", err)
	}
	if err := db.AutoMigrate(&Entry{}, &Interest{}, &Setting{}); err != nil {
		return nil, fmt.Errorf("failed to migrate library: %w", err)
	}

	l.Debug("library opened", "path", path)
	return &DB{db: db, logger: l}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// MarkAsListened records that the entry with id was narrated to the end.
// Articles that are not in the library are ignored.
func (d *DB) MarkAsListened(ctx context.Context, id string) error {
	now := time.Now()
	res := d.db.WithContext(ctx).Model(&Entry{}).Where("id = ?", id).Update("listened_at", &now)
	if res.Error != nil {
		return fmt.Errorf("mark %s as listened: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		d.logger.Debug("listened article is not in the library", "id", id)
	}
	return nil
}

// UpdateInterest bumps the weight of the article's source.
func (d *DB) UpdateInterest(ctx context.Context, a narration.Article) error {
	source := strings.TrimSpace(a.Source)
	if source == "" {
		source = unknownSource
	}
	now := time.Now()
	err := d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "source"}},
		DoUpdates: clause.Assignments(map[string]any{
			"weight":     gorm.Expr("weight + ?", 1),
			"updated_at": now,
		}),
	}).Create(&Interest{Source: source, Weight: 1, UpdatedAt: now}).Error
	if err != nil {
		return fmt.Errorf("update interest in %s: %w", source, err)
	}
	return nil
}

// Interests returns every source weight, heaviest first.
func (d *DB) Interests(ctx context.Context) ([]Interest, error) {
	var out []Interest
	if err := d.db.WithContext(ctx).Order("weight DESC").Order("source").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Upsert adds an entry or refreshes its metadata. The listened state of an
// existing entry is kept.
func (d *DB) Upsert(ctx context.Context, e Entry) error {
	err := d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "source", "summary", "path", "updated_at"}),
	}).Create(&e).Error
	if err != nil {
		return fmt.Errorf("save entry %s: %w", e.ID, err)
	}
	return nil
}

// Entry returns the entry with id.
func (d *DB) Entry(ctx context.Context, id string) (Entry, error) {
	var e Entry
	err := d.db.WithContext(ctx).First(&e, "id = ?", id).Error
	return e, err
}

// Unlistened returns the entries not yet listened to. Entries from sources
// with more interest come first, then oldest first.
func (d *DB) Unlistened(ctx context.Context) ([]Entry, error) {
	var out []Entry
	err := d.db.WithContext(ctx).
		Model(&Entry{}).
		Select("entries.*").
		Joins("LEFT JOIN interests ON interests.source = entries.source").
		Where("entries.listened_at IS NULL").
		Order("COALESCE(interests.weight, 0) DESC").
		Order("entries.created_at").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list unlistened entries: %w", err)
	}
	return out, nil
}

// Get returns the setting stored under key and whether it exists.
func (d *DB) Get(ctx context.Context, key string) (string, bool, error) {
	var s Setting
	err := d.db.WithContext(ctx).First(&s, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read setting %s: %w", key, err)
	}
	return s.Value, true, nil
}

// Set stores value under key.
func (d *DB) Set(ctx context.Context, key, value string) error {
	err := d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&Setting{Key: key, Value: value}).Error
	if err != nil {
		return fmt.Errorf("write setting %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (d *DB) Delete(ctx context.Context, key string) error {
	if err := d.db.WithContext(ctx).Delete(&Setting{}, "key = ?", key).Error; err != nil {
		return fmt.Errorf("delete setting %s: %w", key, err)
	}
	return nil
}
