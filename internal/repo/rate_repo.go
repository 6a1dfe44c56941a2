// Package repo implements the persistent store adapter for the relay,
// backed by GORM. This file provides repository helpers for fixed-window
// rate counters keyed by (chat_id, kind).
package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-relay-bot/internal/domain"
)

// GetRateWindow returns the window for (chatID, kind), or ErrNotFound.
func GetRateWindow(ctx context.Context, db *gorm.DB, chatID int64, kind domain.RateKind) (*domain.RateWindow, error) {
	var w domain.RateWindow
	err := db.WithContext(ctx).
		Where("chat_id = ? AND kind = ?", chatID, kind).
		First(&w).Error
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// UpsertRateWindow writes count and window_start for (chat_id, kind).
func UpsertRateWindow(ctx context.Context, db *gorm.DB, w *domain.RateWindow) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chat_id"}, {Name: "kind"}},
			DoUpdates: clause.AssignmentColumns([]string{"count", "window_start"}),
		}).
		Create(w).Error
}
