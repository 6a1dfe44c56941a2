package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-relay-bot/internal/domain"
)

func newStoreDB(t *testing.T) *gorm.DB {
	t.Helper()
	// Use a unique in-memory database per test to avoid schema leakage across tests.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestSession_GetMissing(t *testing.T) {
	s := NewStore(newStoreDB(t))
	if _, err := s.GetSession(context.Background(), 1); !IsNotFound(err) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSession_UpsertRoundTripAndNulls(t *testing.T) {
	ctx := context.Background()
	s := NewStore(newStoreDB(t))

	code := "12"
	exp := time.Now().UTC().Add(5 * time.Minute).Truncate(time.Second)
	msgID := int64(99)
	sess := &domain.ChatSession{
		ChatID:                 42,
		IsVerifying:            true,
		VerificationCode:       &code,
		CodeExpiry:             &exp,
		LastChallengeMessageID: &msgID,
	}
	if err := s.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession insert: %v", err)
	}

	got, err := s.GetSession(ctx, 42)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.VerificationCode == nil || *got.VerificationCode != "12" || !got.IsVerifying {
		t.Fatalf("unexpected challenge state: %+v", got)
	}
	if got.LastChallengeMessageID == nil || *got.LastChallengeMessageID != 99 {
		t.Fatalf("unexpected last challenge id: %+v", got.LastChallengeMessageID)
	}

	// Clearing pointer fields must write NULLs on update.
	got.ClearChallenge()
	got.LastChallengeMessageID = nil
	got.IsBlocked = true
	if err := s.SaveSession(ctx, got); err != nil {
		t.Fatalf("SaveSession update: %v", err)
	}
	again, err := s.GetSession(ctx, 42)
	if err != nil {
		t.Fatalf("GetSession again: %v", err)
	}
	if again.VerificationCode != nil || again.CodeExpiry != nil || again.LastChallengeMessageID != nil {
		t.Fatalf("expected cleared pointers, got %+v", again)
	}
	if !again.IsBlocked || again.IsVerifying {
		t.Fatalf("unexpected flags after update: %+v", again)
	}
}

func TestListBlocked_Ordered(t *testing.T) {
	ctx := context.Background()
	s := NewStore(newStoreDB(t))
	for _, id := range []int64{30, 10, 20} {
		if err := s.SaveSession(ctx, &domain.ChatSession{ChatID: id, IsBlocked: id != 20}); err != nil {
			t.Fatalf("seed %d: %v", id, err)
		}
	}
	out, err := s.ListBlocked(ctx)
	if err != nil {
		t.Fatalf("ListBlocked: %v", err)
	}
	if len(out) != 2 || out[0].ChatID != 10 || out[1].ChatID != 30 {
		t.Fatalf("unexpected blocked list: %+v", out)
	}
}

func TestDeleteChatState_KeepsMapping(t *testing.T) {
	ctx := context.Background()
	s := NewStore(newStoreDB(t))
	now := time.Now().UTC()

	if err := s.SaveSession(ctx, &domain.ChatSession{ChatID: 5, IsBlocked: true}); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	for _, k := range []domain.RateKind{domain.RateMessage, domain.RateStart} {
		if err := s.SaveRateWindow(ctx, &domain.RateWindow{ChatID: 5, Kind: k, Count: 3, WindowStart: now}); err != nil {
			t.Fatalf("seed window: %v", err)
		}
	}
	if _, err := s.CreateTopic(ctx, 5, 500); err != nil {
		t.Fatalf("seed topic: %v", err)
	}

	if err := s.DeleteChatState(ctx, 5); err != nil {
		t.Fatalf("DeleteChatState: %v", err)
	}
	if _, err := s.GetSession(ctx, 5); !IsNotFound(err) {
		t.Fatalf("expected session gone, got %v", err)
	}
	if _, err := s.GetRateWindow(ctx, 5, domain.RateMessage); !IsNotFound(err) {
		t.Fatalf("expected rate window gone, got %v", err)
	}
	if m, err := s.GetTopicByChat(ctx, 5); err != nil || m.ThreadID != 500 {
		t.Fatalf("expected mapping retained, got %+v %v", m, err)
	}

	// Deleting again is a no-op.
	if err := s.DeleteChatState(ctx, 5); err != nil {
		t.Fatalf("second DeleteChatState: %v", err)
	}
}

func TestRateWindow_Upsert(t *testing.T) {
	ctx := context.Background()
	s := NewStore(newStoreDB(t))
	start := time.Now().UTC().Truncate(time.Second)

	if err := s.SaveRateWindow(ctx, &domain.RateWindow{ChatID: 1, Kind: domain.RateMessage, Count: 1, WindowStart: start}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.SaveRateWindow(ctx, &domain.RateWindow{ChatID: 1, Kind: domain.RateMessage, Count: 4, WindowStart: start}); err != nil {
		t.Fatalf("update: %v", err)
	}
	w, err := s.GetRateWindow(ctx, 1, domain.RateMessage)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if w.Count != 4 || !w.WindowStart.Equal(start) {
		t.Fatalf("unexpected window: %+v", w)
	}
	if _, err := s.GetRateWindow(ctx, 1, domain.RateStart); !IsNotFound(err) {
		t.Fatalf("start window must be independent, got %v", err)
	}
}

func TestTopic_Bijection(t *testing.T) {
	ctx := context.Background()
	s := NewStore(newStoreDB(t))

	if _, err := s.CreateTopic(ctx, 1, 100); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.CreateTopic(ctx, 2, 100); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for reused thread, got %v", err)
	}
	if _, err := s.CreateTopic(ctx, 1, 101); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for remapped chat, got %v", err)
	}

	byThread, err := s.GetTopicByThread(ctx, 100)
	if err != nil || byThread.ChatID != 1 {
		t.Fatalf("GetTopicByThread: %+v %v", byThread, err)
	}
	if _, err := s.GetTopicByThread(ctx, 999); !IsNotFound(err) {
		t.Fatalf("expected not found for unknown thread, got %v", err)
	}

	if err := s.DeleteTopic(ctx, 1); err != nil {
		t.Fatalf("DeleteTopic: %v", err)
	}
	if _, err := s.CreateTopic(ctx, 1, 102); err != nil {
		t.Fatalf("recreate after delete: %v", err)
	}
}

func TestSettings_SeedAndPut(t *testing.T) {
	ctx := context.Background()
	db := newStoreDB(t)
	s := NewStore(db)

	if err := s.PutSetting(ctx, domain.SettingVerificationEnabled, "false"); err != nil {
		t.Fatalf("PutSetting: %v", err)
	}
	defaults := map[string]string{
		domain.SettingVerificationEnabled: "true",
		domain.SettingUserRawEnabled:      "true",
	}
	if err := SeedSettings(ctx, db, defaults); err != nil {
		t.Fatalf("SeedSettings: %v", err)
	}
	if v, _ := s.GetSetting(ctx, domain.SettingVerificationEnabled); v != "false" {
		t.Fatalf("seed must not overwrite existing value, got %q", v)
	}
	if v, _ := s.GetSetting(ctx, domain.SettingUserRawEnabled); v != "true" {
		t.Fatalf("expected seeded default, got %q", v)
	}
	if _, err := s.GetSetting(ctx, "nope"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}
