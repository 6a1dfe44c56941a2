package services

import (
	"context"

	"github.com/tbourn/go-relay-bot/internal/domain"
	"github.com/tbourn/go-relay-bot/internal/telegram"
)

// Store is the persistence surface used by the services. It is satisfied by
// *repo.Store and by the *cache.Store decorator. Missing rows are reported
// with repo.ErrNotFound; a reused thread id with repo.ErrDuplicate.
type Store interface {
	GetSession(ctx context.Context, chatID int64) (*domain.ChatSession, error)
	SaveSession(ctx context.Context, s *domain.ChatSession) error
	ListBlocked(ctx context.Context) ([]domain.ChatSession, error)
	DeleteChatState(ctx context.Context, chatID int64) error

	GetRateWindow(ctx context.Context, chatID int64, kind domain.RateKind) (*domain.RateWindow, error)
	SaveRateWindow(ctx context.Context, w *domain.RateWindow) error

	GetTopicByChat(ctx context.Context, chatID int64) (*domain.TopicMapping, error)
	GetTopicByThread(ctx context.Context, threadID int64) (*domain.TopicMapping, error)
	CreateTopic(ctx context.Context, chatID, threadID int64) (*domain.TopicMapping, error)
	DeleteTopic(ctx context.Context, chatID int64) error

	SettingsStore
}

// SettingsStore is the slice of Store the settings cache needs.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	PutSetting(ctx context.Context, key, value string) error
}

// Bot is the outbound gateway surface (*telegram.Client).
type Bot interface {
	SendMessage(ctx context.Context, p telegram.SendMessageParams) (*domain.Message, error)
	CopyMessage(ctx context.Context, p telegram.CopyMessageParams) (int64, error)
	CreateForumTopic(ctx context.Context, chatID int64, name string) (*telegram.ForumTopic, error)
	PinChatMessage(ctx context.Context, chatID, messageID int64) error
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	GetChatMember(ctx context.Context, chatID, userID int64) (*telegram.ChatMember, error)
	GetChat(ctx context.Context, chatID int64) (*domain.Chat, error)
	AnswerCallbackQuery(ctx context.Context, callbackID, text string) error
}

// Content fetches a remote text document (*content.Fetcher).
type Content interface {
	Text(ctx context.Context, url, fallback string) string
}
