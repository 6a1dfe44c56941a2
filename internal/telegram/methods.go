package telegram

import (
	"context"

	"github.com/tbourn/go-relay-bot/internal/domain"
)

// SendMessage posts text and returns the sent message.
func (c *Client) SendMessage(ctx context.Context, p SendMessageParams) (*domain.Message, error) {
	var m domain.Message
	if err := c.call(ctx, "sendMessage", p, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// CopyMessage duplicates any message (text or media) and returns the new id.
func (c *Client) CopyMessage(ctx context.Context, p CopyMessageParams) (int64, error) {
	var out messageID
	if err := c.call(ctx, "copyMessage", p, &out); err != nil {
		return 0, err
	}
	return out.MessageID, nil
}

// CreateForumTopic opens a thread in a forum supergroup.
func (c *Client) CreateForumTopic(ctx context.Context, chatID int64, name string) (*ForumTopic, error) {
	var t ForumTopic
	body := map[string]any{"chat_id": chatID, "name": name}
	if err := c.call(ctx, "createForumTopic", body, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// PinChatMessage pins messageID silently.
func (c *Client) PinChatMessage(ctx context.Context, chatID, messageID int64) error {
	body := map[string]any{"chat_id": chatID, "message_id": messageID, "disable_notification": true}
	return c.call(ctx, "pinChatMessage", body, nil)
}

// DeleteMessage removes a message.
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	body := map[string]any{"chat_id": chatID, "message_id": messageID}
	return c.call(ctx, "deleteMessage", body, nil)
}

// GetChatMember returns userID's membership in chatID.
func (c *Client) GetChatMember(ctx context.Context, chatID, userID int64) (*ChatMember, error) {
	var m ChatMember
	body := map[string]any{"chat_id": chatID, "user_id": userID}
	if err := c.call(ctx, "getChatMember", body, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// GetChat returns chat metadata.
func (c *Client) GetChat(ctx context.Context, chatID int64) (*domain.Chat, error) {
	var ch domain.Chat
	if err := c.call(ctx, "getChat", map[string]any{"chat_id": chatID}, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// AnswerCallbackQuery acknowledges a button press, optionally with a toast.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID, text string) error {
	body := map[string]any{"callback_query_id": callbackID}
	if text != "" {
		body["text"] = text
	}
	return c.call(ctx, "answerCallbackQuery", body, nil)
}
