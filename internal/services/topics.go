package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/go-relay-bot/internal/domain"
	"github.com/tbourn/go-relay-bot/internal/repo"
	"github.com/tbourn/go-relay-bot/internal/telegram"
)

// maxThreadNameRunes is the provider's limit on forum topic names.
const maxThreadNameRunes = 128

// Router owns the chat↔thread mapping and moves messages across it.
type Router struct {
	Store   Store
	Bot     Bot
	GroupID int64
	Notices *Notices
	Now     func() time.Time
}

func (r *Router) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// ResolveDestination returns the thread mapped to the user, creating it (with
// a pinned intro) on first use.
func (r *Router) ResolveDestination(ctx context.Context, u *domain.User) (int64, error) {
	m, err := r.Store.GetTopicByChat(ctx, u.ID)
	if err == nil {
		return m.ThreadID, nil
	}
	if !repo.IsNotFound(err) {
		return 0, fmt.Errorf("lookup thread for %d: %w", u.ID, err)
	}
	return r.createThread(ctx, u)
}

func (r *Router) createThread(ctx context.Context, u *domain.User) (int64, error) {
	tr := otel.Tracer("services/Router")
	ctx, span := tr.Start(ctx, "createThread",
		trace.WithAttributes(attribute.Int64("chat.id", u.ID)),
	)
	defer span.End()
	log := zerolog.Ctx(ctx).With().Int64("chat_id", u.ID).Logger()

	topic, err := r.Bot.CreateForumTopic(ctx, r.GroupID, ThreadName(u))
	if err != nil {
		return 0, fmt.Errorf("create thread: %w", err)
	}
	thread := topic.MessageThreadID
	span.SetAttributes(attribute.Int64("thread.id", thread))

	intro := fmt.Sprintf(textIntro,
		u.DisplayName(), u.Handle(), u.ID,
		r.now().UTC().Format("2006-01-02 15:04:05"),
		r.Notices.ThreadNotice(ctx),
	)
	msg, err := r.Bot.SendMessage(ctx, telegram.SendMessageParams{
		ChatID:          r.GroupID,
		MessageThreadID: thread,
		Text:            strings.TrimSpace(intro),
	})
	if err != nil {
		log.Warn().Err(err).Int64("thread_id", thread).Msg("send thread intro")
	} else if err := r.Bot.PinChatMessage(ctx, r.GroupID, msg.MessageID); err != nil {
		log.Warn().Err(err).Int64("thread_id", thread).Msg("pin thread intro")
	}

	if _, err := r.Store.CreateTopic(ctx, u.ID, thread); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			// A concurrent invocation mapped this chat first; use its thread.
			if m, gerr := r.Store.GetTopicByChat(ctx, u.ID); gerr == nil {
				log.Info().Int64("orphan_thread_id", thread).Int64("thread_id", m.ThreadID).Msg("thread already mapped")
				return m.ThreadID, nil
			}
		}
		return 0, fmt.Errorf("save mapping: %w", err)
	}
	log.Info().Int64("thread_id", thread).Msg("thread created")
	return thread, nil
}

// Relay posts a user's message into their thread. Text is sent as a formatted
// copy; anything else is duplicated with copyMessage. A thread the provider
// no longer knows is recreated once and the post retried once.
func (r *Router) Relay(ctx context.Context, u *domain.User, msg *domain.Message) error {
	tr := otel.Tracer("services/Router")
	ctx, span := tr.Start(ctx, "Relay",
		trace.WithAttributes(attribute.Int64("chat.id", u.ID)),
	)
	defer span.End()

	thread, err := r.ResolveDestination(ctx, u)
	if err != nil {
		return err
	}
	err = r.post(ctx, thread, u, msg)
	if !errors.Is(err, telegram.ErrThreadNotFound) {
		return err
	}

	zerolog.Ctx(ctx).Warn().Int64("chat_id", u.ID).Int64("thread_id", thread).Msg("thread gone; recreating")
	if derr := r.Store.DeleteTopic(ctx, u.ID); derr != nil {
		return fmt.Errorf("drop stale mapping: %w", derr)
	}
	if thread, err = r.createThread(ctx, u); err != nil {
		return err
	}
	return r.post(ctx, thread, u, msg)
}

func (r *Router) post(ctx context.Context, thread int64, u *domain.User, msg *domain.Message) error {
	if msg.Text != "" {
		_, err := r.Bot.SendMessage(ctx, telegram.SendMessageParams{
			ChatID:          r.GroupID,
			MessageThreadID: thread,
			Text:            fmt.Sprintf(textRelayHead, markdownEscaper.Replace(u.DisplayName()), markdownEscaper.Replace(msg.Text)),
			ParseMode:       telegram.ParseMarkdown,
		})
		return err
	}
	_, err := r.Bot.CopyMessage(ctx, telegram.CopyMessageParams{
		ChatID:          r.GroupID,
		MessageThreadID: thread,
		FromChatID:      msg.ChatID(),
		MessageID:       msg.MessageID,
	})
	return err
}

// RelayReply copies a staff message from a thread into the mapped user's
// private chat. A thread without a mapped user is ignored.
func (r *Router) RelayReply(ctx context.Context, threadID int64, msg *domain.Message) error {
	m, err := r.Store.GetTopicByThread(ctx, threadID)
	if repo.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup chat for thread %d: %w", threadID, err)
	}
	_, err = r.Bot.CopyMessage(ctx, telegram.CopyMessageParams{
		ChatID:     m.ChatID,
		FromChatID: msg.ChatID(),
		MessageID:  msg.MessageID,
	})
	return err
}

// UserOf returns the sender of a private message, asking the provider for the
// chat's profile when the message carries no sender.
func (r *Router) UserOf(ctx context.Context, msg *domain.Message) *domain.User {
	if msg.From != nil {
		return msg.From
	}
	if ch, err := r.Bot.GetChat(ctx, msg.ChatID()); err == nil {
		return ch.AsUser()
	}
	return msg.Chat.AsUser()
}

// ThreadName is the NFC-normalised display name clipped to the provider's
// limit, or "User <id>" when the user has no name.
func ThreadName(u *domain.User) string {
	name := norm.NFC.String(strings.TrimSpace(u.DisplayName()))
	if name == "" {
		name = "User " + strconv.FormatInt(u.ID, 10)
	}
	if utf8.RuneCountInString(name) > maxThreadNameRunes {
		runes := []rune(name)
		name = string(runes[:maxThreadNameRunes])
	}
	return name
}
