package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Inbound payload errors. The webhook maps all of them to 400.
var (
	ErrEmptyUpdate       = errors.New("update carries neither message nor callback_query")
	ErrMissingChat       = errors.New("message without chat")
	ErrMissingMessageID  = errors.New("message without message_id")
	ErrMissingCallbackID = errors.New("callback_query without id")
	ErrMissingCallbackTo = errors.New("callback_query without originating message")
)

// ErrUnhandledUpdate marks a well-formed update of a type the relay does not
// act on (edited_message, my_chat_member, channel_post...). It is acknowledged,
// not rejected.
var ErrUnhandledUpdate = errors.New("update type not handled")

// User is the provider's account object.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// DisplayName joins first and last name.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Handle returns the username, falling back to the first name.
func (u *User) Handle() string {
	if u == nil {
		return ""
	}
	if u.Username != "" {
		return u.Username
	}
	return u.FirstName
}

// Chat is the provider's chat object (private chat or staff group).
type Chat struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	Title     string `json:"title,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	IsForum   bool   `json:"is_forum,omitempty"`
}

// AsUser projects a private chat onto the User shape used for thread labels.
func (c *Chat) AsUser() *User {
	if c == nil {
		return nil
	}
	return &User{ID: c.ID, FirstName: c.FirstName, LastName: c.LastName, Username: c.Username}
}

// Message is the subset of the provider's message object the relay reads.
// Non-text content (photos, stickers, files…) is never inspected: it is
// duplicated with copyMessage, so the raw fields are not modelled.
type Message struct {
	MessageID       int64  `json:"message_id"`
	MessageThreadID int64  `json:"message_thread_id,omitempty"`
	From            *User  `json:"from,omitempty"`
	SenderChat      *Chat  `json:"sender_chat,omitempty"`
	Chat            *Chat  `json:"chat"`
	Date            int64  `json:"date"`
	Text            string `json:"text,omitempty"`
	Caption         string `json:"caption,omitempty"`
	IsTopicMessage  bool   `json:"is_topic_message,omitempty"`
}

// ChatID returns the chat identifier or 0.
func (m *Message) ChatID() int64 {
	if m == nil || m.Chat == nil {
		return 0
	}
	return m.Chat.ID
}

// SentAsChat reports whether the message was posted on behalf of chatID, as
// anonymous group admins do.
func (m *Message) SentAsChat(chatID int64) bool {
	return m != nil && m.SenderChat != nil && m.SenderChat.ID == chatID
}

// IsCommand reports whether the text starts with the given bot command.
// "/start" matches "/start", "/start payload" and "/start@bot".
func (m *Message) IsCommand(cmd string) bool {
	if m == nil || !strings.HasPrefix(m.Text, cmd) {
		return false
	}
	rest := m.Text[len(cmd):]
	return rest == "" || rest[0] == ' ' || rest[0] == '@'
}

// CallbackQuery is a button press on an inline keyboard.
type CallbackQuery struct {
	ID      string   `json:"id"`
	From    *User    `json:"from"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data,omitempty"`
}

// Update is the inbound webhook envelope.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

// EventKind tags the variant held by an Event.
type EventKind int

const (
	// EventMessage is a message in a private chat or the staff group.
	EventMessage EventKind = iota + 1
	// EventCallback is an inline button press.
	EventCallback
)

// String implements fmt.Stringer for metric labels and logs.
func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventCallback:
		return "callback"
	default:
		return "unknown"
	}
}

// Event is the validated tagged union the dispatcher works on. Exactly one of
// Message and Callback is set, matching Kind.
type Event struct {
	Kind     EventKind
	UpdateID int64
	Message  *Message
	Callback *CallbackQuery
}

// ChatID returns the chat the event belongs to.
func (e Event) ChatID() int64 {
	switch e.Kind {
	case EventMessage:
		return e.Message.ChatID()
	case EventCallback:
		return e.Callback.Message.ChatID()
	}
	return 0
}

// DecodeEvent parses a raw webhook body and validates the per-variant
// required fields.
func DecodeEvent(body []byte) (Event, error) {
	var u Update
	if err := json.Unmarshal(body, &u); err != nil {
		return Event{}, fmt.Errorf("decode update: %w", err)
	}
	ev, err := EventFromUpdate(u)
	if errors.Is(err, ErrEmptyUpdate) && carriesOtherType(body) {
		return Event{UpdateID: u.UpdateID}, ErrUnhandledUpdate
	}
	return ev, err
}

// carriesOtherType reports whether the envelope holds an update object other
// than message and callback_query.
func carriesOtherType(body []byte) bool {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return false
	}
	for k, v := range fields {
		if k == "update_id" || k == "message" || k == "callback_query" {
			continue
		}
		if len(v) > 0 && string(v) != "null" {
			return true
		}
	}
	return false
}

// EventFromUpdate classifies an already decoded Update.
func EventFromUpdate(u Update) (Event, error) {
	switch {
	case u.Message != nil:
		if u.Message.Chat == nil {
			return Event{}, ErrMissingChat
		}
		if u.Message.MessageID == 0 {
			return Event{}, ErrMissingMessageID
		}
		return Event{Kind: EventMessage, UpdateID: u.UpdateID, Message: u.Message}, nil
	case u.CallbackQuery != nil:
		cq := u.CallbackQuery
		if cq.ID == "" {
			return Event{}, ErrMissingCallbackID
		}
		if cq.Message == nil || cq.Message.Chat == nil {
			return Event{}, ErrMissingCallbackTo
		}
		return Event{Kind: EventCallback, UpdateID: u.UpdateID, Callback: cq}, nil
	default:
		return Event{}, ErrEmptyUpdate
	}
}
