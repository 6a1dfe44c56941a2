package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-relay-bot/internal/dedup"
	"github.com/tbourn/go-relay-bot/internal/domain"
	"github.com/tbourn/go-relay-bot/internal/repo"
	"github.com/tbourn/go-relay-bot/internal/telegram"
)

const (
	groupID   int64 = -1001
	adminID   int64 = 900
	staffID   int64 = 901
	botUserID int64 = 999
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// Use a unique in-memory database per test to avoid schema leakage across tests.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock { return &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type sentMessage struct {
	ChatID    int64
	ThreadID  int64
	ID        int64
	Text      string
	ParseMode string
	Markup    *telegram.InlineKeyboard
}

// fakeBot records every outbound call and plays a forum supergroup.
type fakeBot struct {
	mu         sync.Mutex
	nextMsg    int64
	nextThread int64

	sent     []sentMessage
	copies   []telegram.CopyMessageParams
	topics   []string
	pins     []int64
	deletes  []int64
	answered []string
	admins   map[int64]bool

	goneThreads map[int64]bool
	failSendTo  map[int64]bool
	failCopyTo  map[int64]bool
}

func newFakeBot() *fakeBot {
	return &fakeBot{
		nextMsg:     100,
		nextThread:  500,
		admins:      map[int64]bool{adminID: true},
		goneThreads: map[int64]bool{},
		failSendTo:  map[int64]bool{},
		failCopyTo:  map[int64]bool{},
	}
}

var errThreadGone = &telegram.APIError{Method: "sendMessage", Code: 400, Description: "Bad Request: message thread not found"}

func (b *fakeBot) SendMessage(_ context.Context, p telegram.SendMessageParams) (*domain.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failSendTo[p.ChatID] {
		return nil, &telegram.APIError{Method: "sendMessage", Code: 403, Description: "Forbidden: bot was blocked by the user"}
	}
	if p.ChatID == groupID && b.goneThreads[p.MessageThreadID] {
		return nil, errThreadGone
	}
	b.nextMsg++
	b.sent = append(b.sent, sentMessage{
		ChatID: p.ChatID, ThreadID: p.MessageThreadID, ID: b.nextMsg,
		Text: p.Text, ParseMode: p.ParseMode, Markup: p.ReplyMarkup,
	})
	return &domain.Message{MessageID: b.nextMsg, Chat: &domain.Chat{ID: p.ChatID}}, nil
}

func (b *fakeBot) CopyMessage(_ context.Context, p telegram.CopyMessageParams) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p.ChatID == groupID && b.goneThreads[p.MessageThreadID] {
		return 0, errThreadGone
	}
	if b.failCopyTo[p.ChatID] {
		return 0, &telegram.APIError{Method: "copyMessage", Code: 403, Description: "Forbidden: bot was blocked by the user"}
	}
	b.nextMsg++
	b.copies = append(b.copies, p)
	return b.nextMsg, nil
}

func (b *fakeBot) CreateForumTopic(_ context.Context, chatID int64, name string) (*telegram.ForumTopic, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if chatID != groupID {
		return nil, errors.New("not the staff group")
	}
	b.nextThread++
	b.topics = append(b.topics, name)
	return &telegram.ForumTopic{MessageThreadID: b.nextThread, Name: name}, nil
}

func (b *fakeBot) PinChatMessage(_ context.Context, _, messageID int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pins = append(b.pins, messageID)
	return nil
}

func (b *fakeBot) DeleteMessage(_ context.Context, _, messageID int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deletes = append(b.deletes, messageID)
	return nil
}

func (b *fakeBot) GetChatMember(_ context.Context, chatID, userID int64) (*telegram.ChatMember, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	status := telegram.StatusMember
	if chatID == groupID && b.admins[userID] {
		status = telegram.StatusAdministrator
	}
	return &telegram.ChatMember{Status: status, User: &domain.User{ID: userID}}, nil
}

func (b *fakeBot) GetChat(_ context.Context, chatID int64) (*domain.Chat, error) {
	return &domain.Chat{ID: chatID, Type: "private", FirstName: "Fetched"}, nil
}

func (b *fakeBot) AnswerCallbackQuery(_ context.Context, id, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.answered = append(b.answered, id)
	return nil
}

// textsTo returns the texts sent to chatID (and thread, when non-zero).
func (b *fakeBot) textsTo(chatID, thread int64) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, m := range b.sent {
		if m.ChatID == chatID && (thread == 0 || m.ThreadID == thread) {
			out = append(out, m.Text)
		}
	}
	return out
}

func (b *fakeBot) lastTextTo(chatID int64) string {
	texts := b.textsTo(chatID, 0)
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

// lastChallenge returns the newest challenge message sent to chatID.
func (b *fakeBot) lastChallenge(t *testing.T, chatID int64) sentMessage {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.sent) - 1; i >= 0; i-- {
		m := b.sent[i]
		if m.ChatID == chatID && m.Markup != nil && strings.HasPrefix(m.Text, "Please solve") {
			return m
		}
	}
	t.Fatalf("no challenge sent to %d", chatID)
	return sentMessage{}
}

func (b *fakeBot) challengeCount(chatID int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, m := range b.sent {
		if m.ChatID == chatID && strings.HasPrefix(m.Text, "Please solve") {
			n++
		}
	}
	return n
}

func (b *fakeBot) groupPosts() []sentMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []sentMessage
	for _, m := range b.sent {
		if m.ChatID == groupID {
			out = append(out, m)
		}
	}
	return out
}

func (b *fakeBot) relayedInto(thread int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, m := range b.sent {
		if m.ChatID == groupID && m.ThreadID == thread && m.ParseMode == telegram.ParseMarkdown {
			n++
		}
	}
	for _, c := range b.copies {
		if c.ChatID == groupID && c.MessageThreadID == thread {
			n++
		}
	}
	return n
}

// button returns the callback data of the correct (or a wrong) option.
func button(t *testing.T, m sentMessage, correct bool) string {
	t.Helper()
	suffix := "_wrong"
	if correct {
		suffix = "_correct"
	}
	for _, row := range m.Markup.InlineKeyboard {
		for _, btn := range row {
			if strings.HasSuffix(btn.CallbackData, suffix) {
				return btn.CallbackData
			}
		}
	}
	t.Fatalf("no %s button in %+v", suffix, m.Markup)
	return ""
}

type fakeContent struct{ body string }

func (f fakeContent) Text(_ context.Context, url, fallback string) string {
	if url == "" || f.body == "" {
		return fallback
	}
	return f.body
}

type harness struct {
	store *repo.Store
	bot   *fakeBot
	clock *fakeClock
	d     *Dispatcher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := repo.NewStore(newTestDB(t))
	settings := NewSettings(store)
	if err := settings.Load(context.Background()); err != nil {
		t.Fatalf("settings.Load: %v", err)
	}
	ledger, err := dedup.NewLRU(128)
	if err != nil {
		t.Fatalf("NewLRU: %v", err)
	}
	bot := newFakeBot()
	clock := newClock()
	d := NewDispatcher(Options{
		GroupID:      groupID,
		MessageLimit: 3,
		WelcomeURL:   "https://example.test/welcome.md",
		ThreadURL:    "https://example.test/notice.md",
		Now:          clock.Now,
		Rand:         rand.New(rand.NewPCG(1, 2)),
	}, store, bot, fakeContent{body: "Remote notice"}, ledger, settings)
	return &harness{store: store, bot: bot, clock: clock, d: d}
}

func (h *harness) dispatch(t *testing.T, ev domain.Event) {
	t.Helper()
	if err := h.d.Dispatch(context.Background(), ev); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
}

func (h *harness) session(t *testing.T, chatID int64) *domain.ChatSession {
	t.Helper()
	s, err := h.store.GetSession(context.Background(), chatID)
	if err != nil {
		t.Fatalf("GetSession(%d): %v", chatID, err)
	}
	return s
}

func privateMsg(chatID, msgID int64, text string) domain.Event {
	return domain.Event{Kind: domain.EventMessage, UpdateID: msgID, Message: &domain.Message{
		MessageID: msgID,
		From:      &domain.User{ID: chatID, FirstName: "Ann", LastName: "Lee", Username: "ann"},
		Chat:      &domain.Chat{ID: chatID, Type: "private"},
		Text:      text,
	}}
}

func privatePhoto(chatID, msgID int64) domain.Event {
	ev := privateMsg(chatID, msgID, "")
	ev.Message.Caption = "a photo"
	return ev
}

func groupMsg(fromID, thread, msgID int64, text string) domain.Event {
	return domain.Event{Kind: domain.EventMessage, UpdateID: msgID, Message: &domain.Message{
		MessageID:       msgID,
		MessageThreadID: thread,
		From:            &domain.User{ID: fromID, FirstName: "Staff"},
		Chat:            &domain.Chat{ID: groupID, Type: "supergroup", IsForum: true},
		Text:            text,
		IsTopicMessage:  thread != 0,
	}}
}

func press(chatID, fromID, thread, msgID int64, cbID, data string) domain.Event {
	return domain.Event{Kind: domain.EventCallback, Callback: &domain.CallbackQuery{
		ID:   cbID,
		From: &domain.User{ID: fromID},
		Data: data,
		Message: &domain.Message{
			MessageID:       msgID,
			MessageThreadID: thread,
			Chat:            &domain.Chat{ID: chatID},
		},
	}}
}
