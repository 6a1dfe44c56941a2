package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/go-relay-bot/internal/domain"
	"github.com/tbourn/go-relay-bot/internal/repo"
)

type flakySettingsStore struct {
	mu      sync.Mutex
	vals    map[string]string
	failPut bool
	failGet bool
	reads   int
}

func (f *flakySettingsStore) GetSetting(_ context.Context, k string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.failGet {
		return "", errors.New("connection reset")
	}
	v, ok := f.vals[k]
	if !ok {
		return "", repo.ErrNotFound
	}
	return v, nil
}

func (f *flakySettingsStore) PutSetting(_ context.Context, k, v string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPut {
		return errors.New("disk full")
	}
	f.vals[k] = v
	return nil
}

func TestSettings_LoadDefaults(t *testing.T) {
	ctx := context.Background()
	s := NewSettings(&flakySettingsStore{vals: map[string]string{}})
	if err := s.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !s.VerificationEnabled(ctx) || !s.UserRawEnabled(ctx) {
		t.Fatalf("defaults should be on")
	}
}

func TestSettings_LoadFromStore(t *testing.T) {
	ctx := context.Background()
	store := &flakySettingsStore{vals: map[string]string{domain.SettingVerificationEnabled: "false"}}
	s := NewSettings(store)
	_ = s.Load(ctx)
	if s.VerificationEnabled(ctx) {
		t.Fatalf("stored false not honoured")
	}
	before := store.reads
	_ = s.VerificationEnabled(ctx)
	if store.reads != before {
		t.Fatalf("cached read hit the store")
	}
}

func TestSettings_ExpiredFlagIsReread(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	store := &flakySettingsStore{vals: map[string]string{}}
	s := NewSettings(store)
	s.TTL = time.Minute
	s.Now = clock.Now
	if err := s.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}

	// Another process switched it off.
	store.mu.Lock()
	store.vals[domain.SettingVerificationEnabled] = "false"
	store.mu.Unlock()

	clock.Advance(30 * time.Second)
	if !s.VerificationEnabled(ctx) {
		t.Fatalf("flag re-read before its TTL")
	}
	clock.Advance(30 * time.Second)
	if s.VerificationEnabled(ctx) {
		t.Fatalf("expired flag not re-read from the store")
	}

	// A failed re-read keeps the last known value.
	store.mu.Lock()
	store.vals[domain.SettingVerificationEnabled] = "true"
	store.failGet = true
	store.mu.Unlock()
	clock.Advance(time.Minute)
	if s.VerificationEnabled(ctx) {
		t.Fatalf("store failure replaced the last known value")
	}
}

func TestSettings_MissReadsThrough(t *testing.T) {
	ctx := context.Background()
	store := &flakySettingsStore{vals: map[string]string{domain.SettingUserRawEnabled: "0"}}
	s := NewSettings(store) // not loaded
	if s.UserRawEnabled(ctx) {
		t.Fatalf("miss must fall back to the store")
	}
}

func TestSettings_ToggleWritesThrough(t *testing.T) {
	ctx := context.Background()
	store := repo.NewStore(newTestDB(t))
	s := NewSettings(store)
	_ = s.Load(ctx)

	on, err := s.Toggle(ctx, domain.SettingVerificationEnabled)
	if err != nil || on {
		t.Fatalf("Toggle = %v, %v; want false", on, err)
	}
	if v, _ := store.GetSetting(ctx, domain.SettingVerificationEnabled); v != "false" {
		t.Fatalf("store value = %q", v)
	}
	if s.VerificationEnabled(ctx) {
		t.Fatalf("cache not updated")
	}
}

func TestSettings_ToggleUsesStoreValue(t *testing.T) {
	ctx := context.Background()
	store := &flakySettingsStore{vals: map[string]string{}}
	s := NewSettings(store)
	_ = s.Load(ctx) // cache: true

	// Another process switched it off.
	store.vals[domain.SettingVerificationEnabled] = "false"
	on, err := s.Toggle(ctx, domain.SettingVerificationEnabled)
	if err != nil || !on {
		t.Fatalf("Toggle = %v, %v; want true", on, err)
	}
}

func TestSettings_FailedWriteKeepsCache(t *testing.T) {
	ctx := context.Background()
	store := &flakySettingsStore{vals: map[string]string{}, failPut: true}
	s := NewSettings(store)
	_ = s.Load(ctx)

	if _, err := s.Toggle(ctx, domain.SettingVerificationEnabled); err == nil {
		t.Fatalf("expected write error")
	}
	if !s.VerificationEnabled(ctx) {
		t.Fatalf("cache changed although the store rejected the write")
	}
	if err := s.Set(ctx, domain.SettingUserRawEnabled, false); err == nil {
		t.Fatalf("expected write error from Set")
	}
	if !s.UserRawEnabled(ctx) {
		t.Fatalf("cache changed by failed Set")
	}
}

func TestSettings_ConcurrentReadersAndToggles(t *testing.T) {
	ctx := context.Background()
	store := &flakySettingsStore{vals: map[string]string{}}
	s := NewSettings(store)
	_ = s.Load(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = s.Toggle(ctx, domain.SettingUserRawEnabled)
		}()
		go func() {
			defer wg.Done()
			_ = s.UserRawEnabled(ctx)
		}()
	}
	wg.Wait()
	// An even number of toggles lands back on the default.
	if !s.UserRawEnabled(ctx) {
		t.Fatalf("expected true after 8 toggles")
	}
	if got := store.vals[domain.SettingUserRawEnabled]; got != "true" {
		t.Fatalf("store = %q; cache and store diverged", got)
	}
}
