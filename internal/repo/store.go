// Package repo implements the persistent store adapter for the relay.
// This file exposes the free repository functions as methods on Store so the
// cache and service layers can depend on a narrow interface instead of the
// concrete package.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-relay-bot/internal/domain"
)

// Store is the GORM-backed store of record.
type Store struct {
	DB *gorm.DB
}

// NewStore wraps db.
func NewStore(db *gorm.DB) *Store { return &Store{DB: db} }

// GetSession proxies GetSession.
func (s *Store) GetSession(ctx context.Context, chatID int64) (*domain.ChatSession, error) {
	return GetSession(ctx, s.DB, chatID)
}

// SaveSession proxies UpsertSession.
func (s *Store) SaveSession(ctx context.Context, sess *domain.ChatSession) error {
	return UpsertSession(ctx, s.DB, sess)
}

// ListBlocked proxies ListBlockedSessions.
func (s *Store) ListBlocked(ctx context.Context) ([]domain.ChatSession, error) {
	return ListBlockedSessions(ctx, s.DB)
}

// DeleteChatState proxies DeleteChatState.
func (s *Store) DeleteChatState(ctx context.Context, chatID int64) error {
	return DeleteChatState(ctx, s.DB, chatID)
}

// GetRateWindow proxies GetRateWindow.
func (s *Store) GetRateWindow(ctx context.Context, chatID int64, kind domain.RateKind) (*domain.RateWindow, error) {
	return GetRateWindow(ctx, s.DB, chatID, kind)
}

// SaveRateWindow proxies UpsertRateWindow.
func (s *Store) SaveRateWindow(ctx context.Context, w *domain.RateWindow) error {
	return UpsertRateWindow(ctx, s.DB, w)
}

// GetTopicByChat proxies GetTopicByChat.
func (s *Store) GetTopicByChat(ctx context.Context, chatID int64) (*domain.TopicMapping, error) {
	return GetTopicByChat(ctx, s.DB, chatID)
}

// GetTopicByThread proxies GetTopicByThread.
func (s *Store) GetTopicByThread(ctx context.Context, threadID int64) (*domain.TopicMapping, error) {
	return GetTopicByThread(ctx, s.DB, threadID)
}

// CreateTopic proxies CreateTopic.
func (s *Store) CreateTopic(ctx context.Context, chatID, threadID int64) (*domain.TopicMapping, error) {
	return CreateTopic(ctx, s.DB, chatID, threadID)
}

// DeleteTopic proxies DeleteTopic.
func (s *Store) DeleteTopic(ctx context.Context, chatID int64) error {
	return DeleteTopic(ctx, s.DB, chatID)
}

// GetSetting proxies GetSetting.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	return GetSetting(ctx, s.DB, key)
}

// PutSetting proxies PutSetting.
func (s *Store) PutSetting(ctx context.Context, key, value string) error {
	return PutSetting(ctx, s.DB, key, value)
}
