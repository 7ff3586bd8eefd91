package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KVEntry is one row of the kv_entries table. Values must be JSON. The column
// is json, not jsonb, so the stored text comes back exactly as written.
type KVEntry struct {
	Key       string         `gorm:"primaryKey;size:255"`
	Value     datatypes.JSON `gorm:"type:json;not null"`
	Version   string         `gorm:"size:64;not null"`
	UpdatedAt time.Time
}

func (KVEntry) TableName() string {
	return "kv_entries"
}

// Postgres keeps keys in kv_entries and performs compare-and-swap with a
// conditional UPDATE on the version column.
type Postgres struct {
	db *gorm.DB
}

func NewPostgres(db *gorm.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Get(ctx context.Context, key string) ([]byte, Version, error) {
	var entry KVEntry
	err := p.db.WithContext(ctx).Where("key = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	return []byte(entry.Value), Version(entry.Version), nil
}

func (p *Postgres) CompareAndSwap(ctx context.Context, key string, expected Version, value []byte) error {
	db := p.db.WithContext(ctx)
	next := uuid.NewString()

	if expected == "" {
		res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&KVEntry{
			Key:     key,
			Value:   datatypes.JSON(value),
			Version: next,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return conflict(key)
		}
		return nil
	}

	res := db.Model(&KVEntry{}).
		Where("key = ? AND version = ?", key, string(expected)).
		Updates(map[string]interface{}{
			"value":      datatypes.JSON(value),
			"version":    next,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return conflict(key)
	}
	return nil
}
