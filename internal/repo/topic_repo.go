// Package repo implements the persistent store adapter for the relay,
// backed by GORM. This file provides repository functions for the
// chat↔thread TopicMapping.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-relay-bot/internal/domain"
)

// ErrDuplicate indicates that the chat or the thread is already mapped.
var ErrDuplicate = errors.New("duplicate")

// GetTopicByChat returns the mapping for a private chat, or ErrNotFound.
func GetTopicByChat(ctx context.Context, db *gorm.DB, chatID int64) (*domain.TopicMapping, error) {
	var m domain.TopicMapping
	if err := db.WithContext(ctx).Where("chat_id = ?", chatID).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// GetTopicByThread returns the mapping for a staff thread, or ErrNotFound.
func GetTopicByThread(ctx context.Context, db *gorm.DB, threadID int64) (*domain.TopicMapping, error) {
	var m domain.TopicMapping
	if err := db.WithContext(ctx).Where("thread_id = ?", threadID).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateTopic inserts a new mapping and returns ErrDuplicate on a unique
// violation of either side.
func CreateTopic(ctx context.Context, db *gorm.DB, chatID, threadID int64) (*domain.TopicMapping, error) {
	m := &domain.TopicMapping{
		ChatID:    chatID,
		ThreadID:  threadID,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") ||
			strings.Contains(low, "duplicate key value") {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return m, nil
}

// DeleteTopic removes the mapping of chatID (used when the remote thread
// has disappeared). Missing rows are not an error.
func DeleteTopic(ctx context.Context, db *gorm.DB, chatID int64) error {
	return db.WithContext(ctx).Where("chat_id = ?", chatID).Delete(&domain.TopicMapping{}).Error
}
