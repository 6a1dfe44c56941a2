// Package repo implements the persistent store adapter for the relay,
// backed by GORM. This file provides the flat global settings table.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-relay-bot/internal/domain"
)

// GetSetting returns the stored value of key, or ErrNotFound.
func GetSetting(ctx context.Context, db *gorm.DB, key string) (string, error) {
	var s domain.Setting
	if err := db.WithContext(ctx).Where("key = ?", key).First(&s).Error; err != nil {
		return "", err
	}
	return s.Value, nil
}

// PutSetting upserts key=value.
func PutSetting(ctx context.Context, db *gorm.DB, key, value string) error {
	s := &domain.Setting{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(s).Error
}

// SeedSettings inserts defaults for keys that do not exist yet, leaving
// existing values untouched.
func SeedSettings(ctx context.Context, db *gorm.DB, defaults map[string]string) error {
	now := time.Now().UTC()
	for k, v := range defaults {
		s := &domain.Setting{Key: k, Value: v, UpdatedAt: now}
		if err := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(s).Error; err != nil {
			return err
		}
	}
	return nil
}
