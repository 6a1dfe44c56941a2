// Package repo implements the persistent store adapter for the relay,
// backed by GORM. This file provides repository functions for ChatSession
// rows and the batched session+rate cleanup used by staff reset/delete.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a row is not found, functions return ErrNotFound
//     (an alias of gorm.ErrRecordNotFound).
//   - On DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-relay-bot/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the cache and service layers.
var ErrNotFound = gorm.ErrRecordNotFound

// GetSession fetches the session for chatID, or ErrNotFound.
func GetSession(ctx context.Context, db *gorm.DB, chatID int64) (*domain.ChatSession, error) {
	var s domain.ChatSession
	err := db.WithContext(ctx).Where("chat_id = ?", chatID).First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpsertSession inserts the session or overwrites every column of the
// existing row. Nil pointer fields are written as NULL.
func UpsertSession(ctx context.Context, db *gorm.DB, s *domain.ChatSession) error {
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "chat_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"is_blocked", "is_verified", "verified_expiry", "is_first_verification",
				"is_rate_limited", "is_verifying", "verification_code", "code_expiry",
				"last_challenge_message_id", "updated_at",
			}),
		}).
		Create(s).Error
}

// ListBlockedSessions returns every blocked chat ordered by chat id.
func ListBlockedSessions(ctx context.Context, db *gorm.DB) ([]domain.ChatSession, error) {
	var out []domain.ChatSession
	err := db.WithContext(ctx).
		Where("is_blocked = ?", true).
		Order("chat_id asc").
		Find(&out).Error
	return out, err
}

// DeleteChatState removes the session and all rate windows of chatID in one
// transaction. The topic mapping is intentionally left in place. Deleting a
// chat that has no state is not an error.
func DeleteChatState(ctx context.Context, db *gorm.DB, chatID int64) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chat_id = ?", chatID).Delete(&domain.ChatSession{}).Error; err != nil {
			return err
		}
		return tx.Where("chat_id = ?", chatID).Delete(&domain.RateWindow{}).Error
	})
}

// IsNotFound reports whether err is a missing-row error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
