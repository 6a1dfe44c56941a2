package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-relay-bot/internal/dedup"
	"github.com/tbourn/go-relay-bot/internal/domain"
	"github.com/tbourn/go-relay-bot/internal/repo"
)

// Dispatcher drops redelivered events and routes the rest: staff group
// traffic to the admin controls or back to the user, private traffic
// through the block, rate and verification gates to the staff thread.
type Dispatcher struct {
	Ledger   dedup.Ledger
	Store    Store
	Bot      Bot
	GroupID  int64
	Limiter  *RateLimiter
	Verifier *Verifier
	Router   *Router
	Admin    *Admin
	Settings *Settings
	Notices  *Notices
	Now      func() time.Time
}

// Options wires a Dispatcher and its components.
type Options struct {
	GroupID      int64
	MessageLimit int
	VerifiedTTL  time.Duration
	ChallengeTTL time.Duration
	WelcomeURL   string
	ThreadURL    string
	Now          func() time.Time
	Rand         Rand
}

// NewDispatcher builds the full relay over the given collaborators.
func NewDispatcher(opts Options, store Store, bot Bot, content Content, ledger dedup.Ledger, settings *Settings) *Dispatcher {
	notices := &Notices{Content: content, Settings: settings, WelcomeURL: opts.WelcomeURL, ThreadURL: opts.ThreadURL}
	limiter := &RateLimiter{Store: store, MessageLimit: opts.MessageLimit, Now: opts.Now}
	return &Dispatcher{
		Ledger:  ledger,
		Store:   store,
		Bot:     bot,
		GroupID: opts.GroupID,
		Limiter: limiter,
		Verifier: &Verifier{
			Store: store, Bot: bot, Limiter: limiter, Notices: notices,
			VerifiedTTL: opts.VerifiedTTL, ChallengeTTL: opts.ChallengeTTL,
			Now: opts.Now, Rand: opts.Rand,
		},
		Router:   &Router{Store: store, Bot: bot, GroupID: opts.GroupID, Notices: notices, Now: opts.Now},
		Admin:    &Admin{Store: store, Bot: bot, GroupID: opts.GroupID, Settings: settings},
		Settings: settings,
		Notices:  notices,
		Now:      opts.Now,
	}
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Dispatch handles one decoded event. Redeliveries (same chat and message
// id, or same chat and callback id) are discarded. The returned error is for
// logging only; the caller still acknowledges the delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, ev domain.Event) error {
	tr := otel.Tracer("services/Dispatcher")
	ctx, span := tr.Start(ctx, "Dispatch",
		trace.WithAttributes(
			attribute.String("event.kind", ev.Kind.String()),
			attribute.Int64("update.id", ev.UpdateID),
			attribute.Int64("chat.id", ev.ChatID()),
		),
	)
	defer span.End()

	logger := zerolog.Ctx(ctx).With().
		Int64("update_id", ev.UpdateID).
		Int64("chat_id", ev.ChatID()).
		Str("kind", ev.Kind.String()).
		Logger()
	ctx = logger.WithContext(ctx)

	var key string
	switch ev.Kind {
	case domain.EventMessage:
		key = dedup.MessageKey(ev.ChatID(), ev.Message.MessageID)
	case domain.EventCallback:
		key = dedup.CallbackKey(ev.ChatID(), ev.Callback.ID)
	default:
		return fmt.Errorf("dispatch: unknown event kind %d", ev.Kind)
	}
	if d.Ledger != nil {
		seen, err := d.Ledger.Seen(ctx, key)
		if err != nil {
			// Fail open: a duplicate effect beats a dropped message.
			logger.Warn().Err(err).Msg("dedup ledger unavailable")
		} else if seen {
			duplicatesTotal.WithLabelValues(ev.Kind.String()).Inc()
			logger.Debug().Str("key", key).Msg("duplicate event dropped")
			return nil
		}
	}

	var (
		outcome string
		err     error
	)
	if ev.Kind == domain.EventMessage {
		outcome, err = d.onMessage(ctx, ev.Message)
	} else {
		outcome, err = d.onCallback(ctx, ev.Callback)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error().Err(err).Str("outcome", outcome).Msg("event handling failed")
	}
	updatesTotal.WithLabelValues(ev.Kind.String(), outcome).Inc()
	return err
}

func (d *Dispatcher) onMessage(ctx context.Context, msg *domain.Message) (string, error) {
	if msg.ChatID() == d.GroupID {
		return d.onGroupMessage(ctx, msg)
	}
	if msg.Chat.Type != "" && msg.Chat.Type != "private" {
		return outcomeIgnored, nil
	}
	return d.onPrivateMessage(ctx, msg)
}

func (d *Dispatcher) onGroupMessage(ctx context.Context, msg *domain.Message) (string, error) {
	// Anonymous admins post as the group itself; other bots are not staff.
	asGroup := msg.SentAsChat(d.GroupID)
	if !asGroup && (msg.From == nil || msg.From.IsBot) {
		return outcomeIgnored, nil
	}
	if msg.IsCommand("/reset_user") {
		return outcomeAdmin, d.Admin.HandleReset(ctx, msg)
	}
	thread := msg.MessageThreadID
	if thread == 0 {
		return outcomeIgnored, nil
	}
	m, err := d.Store.GetTopicByThread(ctx, thread)
	if err != nil {
		if repo.IsNotFound(err) {
			return outcomeIgnored, nil
		}
		return outcomeFailed, err
	}
	if handled, err := d.Admin.HandleThreadCommand(ctx, msg, m.ChatID); handled {
		return outcomeAdmin, err
	}
	if err := d.Router.RelayReply(ctx, thread, msg); err != nil {
		tell(ctx, d.Bot, d.GroupID, thread, fmt.Sprintf(textReplyFailed, m.ChatID))
		return outcomeFailed, err
	}
	return outcomeReplied, nil
}

func (d *Dispatcher) onPrivateMessage(ctx context.Context, msg *domain.Message) (string, error) {
	chatID := msg.ChatID()
	sess, err := loadSession(ctx, d.Store, chatID)
	if err != nil {
		tell(ctx, d.Bot, chatID, 0, textTryLater)
		return outcomeFailed, err
	}
	if sess.IsBlocked {
		tell(ctx, d.Bot, chatID, 0, textBlocked)
		return outcomeBlocked, nil
	}

	verifyOn := d.Settings.VerificationEnabled(ctx)
	now := d.now()

	if msg.IsCommand("/start") {
		return d.onStart(ctx, sess, verifyOn, now)
	}

	if verifyOn && !sess.VerifiedAt(now) {
		tell(ctx, d.Bot, chatID, 0, fmt.Sprintf(textNeedVerify, preview(msg)))
		if err := d.Verifier.begin(ctx, sess); err != nil {
			tell(ctx, d.Bot, chatID, 0, textTryLater)
			return outcomeFailed, err
		}
		return outcomeChallenged, nil
	}

	tripped, err := d.Limiter.Check(ctx, chatID, domain.RateMessage)
	if err != nil {
		tell(ctx, d.Bot, chatID, 0, textTryLater)
		return outcomeFailed, err
	}
	if tripped {
		return d.onRateTrip(ctx, sess, msg, verifyOn)
	}

	if err := d.Router.Relay(ctx, d.Router.UserOf(ctx, msg), msg); err != nil {
		tell(ctx, d.Bot, chatID, 0, textRelayFailed)
		return outcomeFailed, err
	}
	return outcomeRelayed, nil
}

// onStart re-evaluates verification instead of being gated by it.
func (d *Dispatcher) onStart(ctx context.Context, sess *domain.ChatSession, verifyOn bool, now time.Time) (string, error) {
	chatID := sess.ChatID
	limited, err := d.Limiter.Check(ctx, chatID, domain.RateStart)
	if err != nil {
		tell(ctx, d.Bot, chatID, 0, textTryLater)
		return outcomeFailed, err
	}
	if limited {
		tell(ctx, d.Bot, chatID, 0, textStartThrottled)
		return outcomeRateLimited, nil
	}
	if !verifyOn || sess.VerifiedAt(now) {
		tell(ctx, d.Bot, chatID, 0, d.Notices.Welcome(ctx)+"\n"+textGreeting)
		return outcomeStart, nil
	}

	sess.IsFirstVerification = true
	tell(ctx, d.Bot, chatID, 0, textGreeting)
	if err := d.Verifier.begin(ctx, sess); err != nil {
		tell(ctx, d.Bot, chatID, 0, textTryLater)
		return outcomeFailed, err
	}
	return outcomeChallenged, nil
}

// onRateTrip handles a message over the per-window threshold. With
// verification on the chat loses its verification and is challenged again;
// otherwise the user is asked to slow down. The message is not relayed.
func (d *Dispatcher) onRateTrip(ctx context.Context, sess *domain.ChatSession, msg *domain.Message, verifyOn bool) (string, error) {
	chatID := sess.ChatID
	zerolog.Ctx(ctx).Info().Msg("message rate exceeded")
	if !verifyOn {
		tell(ctx, d.Bot, chatID, 0, fmt.Sprintf(textSlowDown, preview(msg)))
		return outcomeRateLimited, nil
	}

	sess.IsVerified = false
	sess.VerifiedExpiry = nil
	sess.IsRateLimited = true
	text := textTooFrequent
	if sess.IsFirstVerification {
		text = textNeedVerify
	}
	tell(ctx, d.Bot, chatID, 0, fmt.Sprintf(text, preview(msg)))
	if err := d.Verifier.begin(ctx, sess); err != nil {
		tell(ctx, d.Bot, chatID, 0, textTryLater)
		return outcomeFailed, err
	}
	return outcomeRateLimited, nil
}

func (d *Dispatcher) onCallback(ctx context.Context, cq *domain.CallbackQuery) (string, error) {
	chatID := cq.Message.ChatID()
	if chatID == d.GroupID {
		return outcomeAdmin, d.Admin.HandleCallback(ctx, cq)
	}

	a, ok := ParseAnswer(cq.Data)
	if !ok || a.ChatID != chatID {
		if err := d.Bot.AnswerCallbackQuery(ctx, cq.ID, ""); err != nil {
			zerolog.Ctx(ctx).Debug().Err(err).Msg("answer callback")
		}
		return outcomeIgnored, nil
	}
	a.CallbackID = cq.ID
	a.MessageID = cq.Message.MessageID

	if blocked, err := d.Admin.IsBlocked(ctx, chatID); err == nil && blocked {
		_ = d.Bot.AnswerCallbackQuery(ctx, cq.ID, "")
		return outcomeBlocked, nil
	}
	if _, err := d.Verifier.SubmitAnswer(ctx, a); err != nil {
		tell(ctx, d.Bot, chatID, 0, textTryLater)
		return outcomeFailed, err
	}
	return outcomeAnswered, nil
}

// preview is the text echoed back in "not delivered" notices.
func preview(msg *domain.Message) string {
	if t := strings.TrimSpace(msg.Text); t != "" {
		return t
	}
	return textNonText
}
