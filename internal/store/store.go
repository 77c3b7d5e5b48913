package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"coffee-fleet-console/internal/model"
)

// Store defines the durable key/value storage used for client state.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	GetMany(ctx context.Context, keys ...string) (map[string]string, error)
	Set(ctx context.Context, key, value string) error
	SetMany(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// Get returns the value stored under key and whether it exists.
func (s *gormStore) Get(ctx context.Context, key string) (string, bool, error) {
	values, err := s.GetMany(ctx, key)
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

// GetMany returns every present key of keys. Missing keys are absent from the map.
func (s *gormStore) GetMany(ctx context.Context, keys ...string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	var rows []model.StoredValue
	if err := s.db.WithContext(ctx).Where("key IN ?", keys).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read stored values: %w", err)
	}
	for _, r := range rows {
		result[r.Key] = r.Value
	}
	return result, nil
}

// Set upserts a single key.
func (s *gormStore) Set(ctx context.Context, key, value string) error {
	return s.SetMany(ctx, map[string]string{key: value})
}

// SetMany upserts all values in one transaction.
func (s *gormStore) SetMany(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([]model.StoredValue, 0, len(values))
	for k, v := range values {
		rows = append(rows, model.StoredValue{Key: k, Value: v, UpdatedAt: now})
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&rows).Error; err != nil {
			return fmt.Errorf("batch upsert stored values failed: %w", err)
		}
		return nil
	})
}

// Delete removes the given keys. Deleting absent keys is not an error.
func (s *gormStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Where("key IN ?", keys).Delete(&model.StoredValue{}).Error; err != nil {
		return fmt.Errorf("failed to delete stored values: %w", err)
	}
	return nil
}
