package telegram

import "github.com/tbourn/go-relay-bot/internal/domain"

// Parse modes accepted by sendMessage.
const (
	ParseMarkdown = "Markdown"
	ParseHTML     = "HTML"
)

// Chat member statuses returned by getChatMember.
const (
	StatusCreator       = "creator"
	StatusAdministrator = "administrator"
	StatusMember        = "member"
	StatusLeft          = "left"
	StatusKicked        = "kicked"
)

// InlineButton is one inline keyboard button carrying callback data.
type InlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}

// InlineKeyboard is a reply_markup of rows of buttons.
type InlineKeyboard struct {
	InlineKeyboard [][]InlineButton `json:"inline_keyboard"`
}

// Row builds a keyboard row.
func Row(b ...InlineButton) []InlineButton { return b }

// Keyboard builds an inline keyboard from rows.
func Keyboard(rows ...[]InlineButton) *InlineKeyboard {
	return &InlineKeyboard{InlineKeyboard: rows}
}

// SendMessageParams mirrors the sendMessage request body.
type SendMessageParams struct {
	ChatID          int64           `json:"chat_id"`
	MessageThreadID int64           `json:"message_thread_id,omitempty"`
	Text            string          `json:"text"`
	ParseMode       string          `json:"parse_mode,omitempty"`
	ReplyMarkup     *InlineKeyboard `json:"reply_markup,omitempty"`
	DisableNotify   bool            `json:"disable_notification,omitempty"`
}

// CopyMessageParams mirrors the copyMessage request body.
type CopyMessageParams struct {
	ChatID          int64 `json:"chat_id"`
	MessageThreadID int64 `json:"message_thread_id,omitempty"`
	FromChatID      int64 `json:"from_chat_id"`
	MessageID       int64 `json:"message_id"`
}

// ForumTopic is the result of createForumTopic.
type ForumTopic struct {
	MessageThreadID int64  `json:"message_thread_id"`
	Name            string `json:"name"`
}

// ChatMember is the subset of getChatMember's result the relay reads.
type ChatMember struct {
	Status string       `json:"status"`
	User   *domain.User `json:"user"`
}

// IsAdmin reports administrator or creator status.
func (m ChatMember) IsAdmin() bool {
	return m.Status == StatusAdministrator || m.Status == StatusCreator
}

type messageID struct {
	MessageID int64 `json:"message_id"`
}

type responseParameters struct {
	RetryAfter      int   `json:"retry_after,omitempty"`
	MigrateToChatID int64 `json:"migrate_to_chat_id,omitempty"`
}

// envelope is the common Bot API reply wrapper.
type envelope[T any] struct {
	OK          bool                `json:"ok"`
	Result      T                   `json:"result"`
	ErrorCode   int                 `json:"error_code,omitempty"`
	Description string              `json:"description,omitempty"`
	Parameters  *responseParameters `json:"parameters,omitempty"`
}
