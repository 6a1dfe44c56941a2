package services

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/tbourn/go-relay-bot/internal/domain"
	"github.com/tbourn/go-relay-bot/internal/repo"
	"github.com/tbourn/go-relay-bot/internal/sysutil"
)

// DefaultSettings are seeded into the store and used when a key is missing.
var DefaultSettings = map[string]string{
	domain.SettingVerificationEnabled: "true",
	domain.SettingUserRawEnabled:      "true",
}

// Settings caches the global flags. Writers hold the write lock across the
// store write and the cache update, so a reader never sees a value the store
// has not accepted. With a positive TTL a cached flag is re-read from the store
// once it is older than TTL, which bounds how long a change made by another
// process goes unseen.
type Settings struct {
	store SettingsStore

	TTL time.Duration
	Now func() time.Time

	mu   sync.RWMutex
	vals map[string]flag
}

type flag struct {
	on bool
	at time.Time
}

// NewSettings returns an empty cache over store; call Load to warm it.
func NewSettings(store SettingsStore) *Settings {
	return &Settings{store: store, vals: make(map[string]flag)}
}

func (s *Settings) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// fresh must be called with mu held.
func (s *Settings) fresh(key string) (bool, bool) {
	f, ok := s.vals[key]
	if !ok {
		return false, false
	}
	if s.TTL > 0 && s.now().Sub(f.at) >= s.TTL {
		return false, false
	}
	return f.on, true
}

// Load reads every known key from the store.
func (s *Settings) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range DefaultSettings {
		v, err := s.read(ctx, key)
		if err != nil {
			return err
		}
		s.vals[key] = flag{on: v, at: s.now()}
	}
	return nil
}

// read must be called with mu held.
func (s *Settings) read(ctx context.Context, key string) (bool, error) {
	raw, err := s.store.GetSetting(ctx, key)
	if repo.IsNotFound(err) {
		return sysutil.IsTruthy(DefaultSettings[key]), nil
	}
	if err != nil {
		return false, fmt.Errorf("read setting %s: %w", key, err)
	}
	return sysutil.IsTruthy(raw), nil
}

// Enabled returns the cached flag, loading it from the store on a miss or
// after expiry. A store failure keeps the stale value if there is one, the
// default otherwise.
func (s *Settings) Enabled(ctx context.Context, key string) bool {
	s.mu.RLock()
	v, ok := s.fresh(key)
	s.mu.RUnlock()
	if ok {
		return v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.fresh(key); ok {
		return v
	}
	v, err := s.read(ctx, key)
	if err != nil {
		if f, ok := s.vals[key]; ok {
			return f.on
		}
		return sysutil.IsTruthy(DefaultSettings[key])
	}
	s.vals[key] = flag{on: v, at: s.now()}
	return v
}

// VerificationEnabled reports the verification_enabled flag.
func (s *Settings) VerificationEnabled(ctx context.Context) bool {
	return s.Enabled(ctx, domain.SettingVerificationEnabled)
}

// UserRawEnabled reports the user_raw_enabled flag.
func (s *Settings) UserRawEnabled(ctx context.Context) bool {
	return s.Enabled(ctx, domain.SettingUserRawEnabled)
}

// Set writes key=on through to the store, then the cache.
func (s *Settings) Set(ctx context.Context, key string, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.PutSetting(ctx, key, strconv.FormatBool(on)); err != nil {
		return fmt.Errorf("write setting %s: %w", key, err)
	}
	s.vals[key] = flag{on: on, at: s.now()}
	return nil
}

// Toggle flips key based on the store's current value (another process may
// have changed it) and returns the new value.
func (s *Settings) Toggle(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.read(ctx, key)
	if err != nil {
		return false, err
	}
	next := !cur
	if err := s.store.PutSetting(ctx, key, strconv.FormatBool(next)); err != nil {
		return cur, fmt.Errorf("write setting %s: %w", key, err)
	}
	s.vals[key] = flag{on: next, at: s.now()}
	return next, nil
}
