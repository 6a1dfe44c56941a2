// Package cache provides the ephemeral, process-local cache layer that sits
// in front of the store of record.
//
// Store is a decorator over any Backend (normally *repo.Store):
//   - reads go to the cache first and fall back to the backend on a miss;
//   - writes go to the backend first and only then refresh the cache, so no
//     reader of this process observes a value the backend has not accepted;
//   - a failed write evicts the entry so the next read goes to the backend.
//
// Entries expire after a fixed TTL and capacity is bounded (otter, S3-FIFO
// eviction). The cache is never the source of truth: a cold or evicted cache
// only costs an extra store round-trip.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/maypok86/otter"

	"github.com/tbourn/go-relay-bot/internal/domain"
)

// Backend is the store of record wrapped by Store.
type Backend interface {
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

	GetSetting(ctx context.Context, key string) (string, error)
	PutSetting(ctx context.Context, key, value string) error
}

// Options sizes the caches.
type Options struct {
	Capacity int
	TTL      time.Duration
}

type rateKey struct {
	chatID int64
	kind   domain.RateKind
}

// Store is a read-through/write-through cache over a Backend. It is safe for
// concurrent use; concurrent writers of the same key are last-writer-wins.
type Store struct {
	next Backend

	sessions      otter.Cache[int64, domain.ChatSession]
	rates         otter.Cache[rateKey, domain.RateWindow]
	topicByChat   otter.Cache[int64, domain.TopicMapping]
	topicByThread otter.Cache[int64, domain.TopicMapping]
}

// New builds the caches. Capacity <= 0 defaults to 10000 and TTL <= 0 to one
// minute.
func New(next Backend, opts Options) (*Store, error) {
	if opts.Capacity <= 0 {
		opts.Capacity = 10000
	}
	if opts.TTL <= 0 {
		opts.TTL = time.Minute
	}
	s := &Store{next: next}
	var err error
	if s.sessions, err = otter.MustBuilder[int64, domain.ChatSession](opts.Capacity).WithTTL(opts.TTL).Build(); err != nil {
		return nil, fmt.Errorf("build session cache: %w", err)
	}
	if s.rates, err = otter.MustBuilder[rateKey, domain.RateWindow](opts.Capacity).WithTTL(opts.TTL).Build(); err != nil {
		return nil, fmt.Errorf("build rate cache: %w", err)
	}
	if s.topicByChat, err = otter.MustBuilder[int64, domain.TopicMapping](opts.Capacity).WithTTL(opts.TTL).Build(); err != nil {
		return nil, fmt.Errorf("build topic cache: %w", err)
	}
	if s.topicByThread, err = otter.MustBuilder[int64, domain.TopicMapping](opts.Capacity).WithTTL(opts.TTL).Build(); err != nil {
		return nil, fmt.Errorf("build thread cache: %w", err)
	}
	return s, nil
}

// Close stops the caches' background maintenance.
func (s *Store) Close() {
	s.sessions.Close()
	s.rates.Close()
	s.topicByChat.Close()
	s.topicByThread.Close()
}

// GetSession returns a copy of the cached session or loads it.
func (s *Store) GetSession(ctx context.Context, chatID int64) (*domain.ChatSession, error) {
	if v, ok := s.sessions.Get(chatID); ok {
		return &v, nil
	}
	sess, err := s.next.GetSession(ctx, chatID)
	if err != nil {
		return nil, err
	}
	s.sessions.Set(chatID, *sess)
	return sess, nil
}

// SaveSession writes through.
func (s *Store) SaveSession(ctx context.Context, sess *domain.ChatSession) error {
	if err := s.next.SaveSession(ctx, sess); err != nil {
		s.sessions.Delete(sess.ChatID)
		return err
	}
	s.sessions.Set(sess.ChatID, *sess)
	return nil
}

// ListBlocked always asks the backend; it is a staff-only listing.
func (s *Store) ListBlocked(ctx context.Context) ([]domain.ChatSession, error) {
	return s.next.ListBlocked(ctx)
}

// DeleteChatState deletes in the backend, then evicts session and windows.
func (s *Store) DeleteChatState(ctx context.Context, chatID int64) error {
	err := s.next.DeleteChatState(ctx, chatID)
	s.sessions.Delete(chatID)
	s.rates.Delete(rateKey{chatID, domain.RateMessage})
	s.rates.Delete(rateKey{chatID, domain.RateStart})
	return err
}

// GetRateWindow returns a copy of the cached window or loads it.
func (s *Store) GetRateWindow(ctx context.Context, chatID int64, kind domain.RateKind) (*domain.RateWindow, error) {
	k := rateKey{chatID, kind}
	if v, ok := s.rates.Get(k); ok {
		return &v, nil
	}
	w, err := s.next.GetRateWindow(ctx, chatID, kind)
	if err != nil {
		return nil, err
	}
	s.rates.Set(k, *w)
	return w, nil
}

// SaveRateWindow writes through.
func (s *Store) SaveRateWindow(ctx context.Context, w *domain.RateWindow) error {
	k := rateKey{w.ChatID, w.Kind}
	if err := s.next.SaveRateWindow(ctx, w); err != nil {
		s.rates.Delete(k)
		return err
	}
	s.rates.Set(k, *w)
	return nil
}

// GetTopicByChat returns the cached mapping or loads it.
func (s *Store) GetTopicByChat(ctx context.Context, chatID int64) (*domain.TopicMapping, error) {
	if v, ok := s.topicByChat.Get(chatID); ok {
		return &v, nil
	}
	m, err := s.next.GetTopicByChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	s.remember(*m)
	return m, nil
}

// GetTopicByThread returns the cached mapping or loads it.
func (s *Store) GetTopicByThread(ctx context.Context, threadID int64) (*domain.TopicMapping, error) {
	if v, ok := s.topicByThread.Get(threadID); ok {
		return &v, nil
	}
	m, err := s.next.GetTopicByThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	s.remember(*m)
	return m, nil
}

// CreateTopic writes through to both directions.
func (s *Store) CreateTopic(ctx context.Context, chatID, threadID int64) (*domain.TopicMapping, error) {
	m, err := s.next.CreateTopic(ctx, chatID, threadID)
	if err != nil {
		return nil, err
	}
	s.remember(*m)
	return m, nil
}

// DeleteTopic deletes in the backend and evicts both directions.
func (s *Store) DeleteTopic(ctx context.Context, chatID int64) error {
	if v, ok := s.topicByChat.Get(chatID); ok {
		s.topicByThread.Delete(v.ThreadID)
	}
	s.topicByChat.Delete(chatID)
	return s.next.DeleteTopic(ctx, chatID)
}

// GetSetting passes through; settings are cached by services.Settings under
// its own lock.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	return s.next.GetSetting(ctx, key)
}

// PutSetting passes through.
func (s *Store) PutSetting(ctx context.Context, key, value string) error {
	return s.next.PutSetting(ctx, key, value)
}

func (s *Store) remember(m domain.TopicMapping) {
	s.topicByChat.Set(m.ChatID, m)
	s.topicByThread.Set(m.ThreadID, m)
}
