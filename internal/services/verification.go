package services

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-relay-bot/internal/domain"
	"github.com/tbourn/go-relay-bot/internal/repo"
	"github.com/tbourn/go-relay-bot/internal/telegram"
)

// Default horizons.
const (
	DefaultVerifiedTTL  = 24 * time.Hour
	DefaultChallengeTTL = 5 * time.Minute
)

const verifyPrefix = "verify_"

// Rand is the randomness source for challenges. *rand.Rand satisfies it.
type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// Challenge is a two-operand arithmetic question with four distinct options,
// exactly one of which equals Answer.
type Challenge struct {
	A, B    int
	Op      string
	Answer  int
	Options [4]int
}

// Question renders the challenge prompt.
func (c Challenge) Question() string { return fmt.Sprintf(textQuestion, c.A, c.Op, c.B) }

// NewChallenge draws operands from 0–9 and + or - uniformly. Decoys are the
// answer shifted by three distinct offsets from {-2,-1,1,2}; the four values
// are shuffled.
func NewChallenge(r Rand) Challenge {
	if r == nil {
		r = globalRand{}
	}
	c := Challenge{A: r.IntN(10), B: r.IntN(10), Op: "+"}
	c.Answer = c.A + c.B
	if r.IntN(2) == 1 {
		c.Op = "-"
		c.Answer = c.A - c.B
	}

	deltas := [4]int{-2, -1, 1, 2}
	for i := len(deltas) - 1; i > 0; i-- {
		j := r.IntN(i + 1)
		deltas[i], deltas[j] = deltas[j], deltas[i]
	}
	c.Options = [4]int{c.Answer, c.Answer + deltas[0], c.Answer + deltas[1], c.Answer + deltas[2]}
	for i := len(c.Options) - 1; i > 0; i-- {
		j := r.IntN(i + 1)
		c.Options[i], c.Options[j] = c.Options[j], c.Options[i]
	}
	return c
}

// Keyboard lays the options out as one row of buttons whose callback data is
// verify_<chat>_<option>_<correct|wrong>.
func (c Challenge) Keyboard(chatID int64) *telegram.InlineKeyboard {
	row := make([]telegram.InlineButton, 0, len(c.Options))
	for _, o := range c.Options {
		verdict := "wrong"
		if o == c.Answer {
			verdict = "correct"
		}
		row = append(row, telegram.InlineButton{
			Text:         "(" + strconv.Itoa(o) + ")",
			CallbackData: fmt.Sprintf("%s%d_%d_%s", verifyPrefix, chatID, o, verdict),
		})
	}
	return telegram.Keyboard(row)
}

// Answer is one submitted challenge response.
type Answer struct {
	ChatID  int64
	Value   int
	Correct bool
	// CallbackID and MessageID identify the button press and the challenge
	// message it came from; both are cleaned up best-effort.
	CallbackID string
	MessageID  int64
}

// ParseAnswer decodes verify_<chat>_<value>_<correct|wrong>.
func ParseAnswer(data string) (Answer, bool) {
	if !strings.HasPrefix(data, verifyPrefix) {
		return Answer{}, false
	}
	parts := strings.Split(strings.TrimPrefix(data, verifyPrefix), "_")
	if len(parts) != 3 {
		return Answer{}, false
	}
	chatID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Answer{}, false
	}
	v, err := strconv.Atoi(parts[1])
	if err != nil {
		return Answer{}, false
	}
	switch parts[2] {
	case "correct":
		return Answer{ChatID: chatID, Value: v, Correct: true}, true
	case "wrong":
		return Answer{ChatID: chatID, Value: v}, true
	}
	return Answer{}, false
}

// AnswerResult is the transition SubmitAnswer took.
type AnswerResult int

const (
	// AnswerExpired: no challenge stored or it expired; nothing re-issued.
	AnswerExpired AnswerResult = iota + 1
	// AnswerAccepted: Challenged → Verified.
	AnswerAccepted
	// AnswerRejected: Challenged → Challenged with a fresh challenge.
	AnswerRejected
)

// Verifier is the per-chat challenge/response state machine.
type Verifier struct {
	Store   Store
	Bot     Bot
	Limiter *RateLimiter
	Notices *Notices

	VerifiedTTL  time.Duration
	ChallengeTTL time.Duration
	Now          func() time.Time
	Rand         Rand
}

func (v *Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

func (v *Verifier) verifiedTTL() time.Duration {
	if v.VerifiedTTL > 0 {
		return v.VerifiedTTL
	}
	return DefaultVerifiedTTL
}

func (v *Verifier) challengeTTL() time.Duration {
	if v.ChallengeTTL > 0 {
		return v.ChallengeTTL
	}
	return DefaultChallengeTTL
}

// BeginVerification issues a fresh challenge to chatID, replacing any
// outstanding one. Only store failures are returned; a failed send is logged.
func (v *Verifier) BeginVerification(ctx context.Context, chatID int64) error {
	tr := otel.Tracer("services/Verifier")
	ctx, span := tr.Start(ctx, "BeginVerification",
		trace.WithAttributes(attribute.Int64("chat.id", chatID)),
	)
	defer span.End()

	sess, err := loadSession(ctx, v.Store, chatID)
	if err != nil {
		return err
	}
	return v.begin(ctx, sess)
}

func (v *Verifier) begin(ctx context.Context, sess *domain.ChatSession) error {
	log := zerolog.Ctx(ctx).With().Int64("chat_id", sess.ChatID).Logger()

	sess.ClearChallenge()
	if sess.LastChallengeMessageID != nil {
		if err := v.Bot.DeleteMessage(ctx, sess.ChatID, *sess.LastChallengeMessageID); err != nil {
			log.Warn().Err(err).Msg("delete previous challenge")
		}
		sess.LastChallengeMessageID = nil
	}

	ch := NewChallenge(v.Rand)
	code := strconv.Itoa(ch.Answer)
	exp := v.now().Add(v.challengeTTL())
	sess.IsVerifying = true
	sess.VerificationCode = &code
	sess.CodeExpiry = &exp
	if err := v.Store.SaveSession(ctx, sess); err != nil {
		return fmt.Errorf("save challenge: %w", err)
	}

	msg, err := v.Bot.SendMessage(ctx, telegram.SendMessageParams{
		ChatID:      sess.ChatID,
		Text:        ch.Question(),
		ReplyMarkup: ch.Keyboard(sess.ChatID),
	})
	if err != nil {
		challengesTotal.WithLabelValues("send_failed").Inc()
		log.Error().Err(err).Msg("send challenge")
		return nil
	}
	id := msg.MessageID
	sess.LastChallengeMessageID = &id
	if err := v.Store.SaveSession(ctx, sess); err != nil {
		return fmt.Errorf("save challenge message id: %w", err)
	}
	challengesTotal.WithLabelValues("issued").Inc()
	return nil
}

// SubmitAnswer applies one answer to the chat's outstanding challenge. The
// answer is accepted only when it is flagged correct and equals the stored
// code. The challenge message is deleted and the callback acknowledged
// afterwards in every case, best-effort.
func (v *Verifier) SubmitAnswer(ctx context.Context, a Answer) (AnswerResult, error) {
	tr := otel.Tracer("services/Verifier")
	ctx, span := tr.Start(ctx, "SubmitAnswer",
		trace.WithAttributes(
			attribute.Int64("chat.id", a.ChatID),
			attribute.Bool("answer.flagged_correct", a.Correct),
		),
	)
	defer span.End()

	log := zerolog.Ctx(ctx).With().Int64("chat_id", a.ChatID).Logger()
	defer func() {
		if a.MessageID != 0 {
			if err := v.Bot.DeleteMessage(ctx, a.ChatID, a.MessageID); err != nil {
				log.Debug().Err(err).Msg("delete answered challenge")
			}
		}
		if a.CallbackID != "" {
			if err := v.Bot.AnswerCallbackQuery(ctx, a.CallbackID, ""); err != nil {
				log.Debug().Err(err).Msg("answer callback")
			}
		}
	}()

	sess, err := loadSession(ctx, v.Store, a.ChatID)
	if err != nil {
		return 0, err
	}
	// The pressed message is deleted above; do not delete it twice.
	if sess.LastChallengeMessageID != nil && *sess.LastChallengeMessageID == a.MessageID {
		sess.LastChallengeMessageID = nil
	}

	now := v.now()
	if cerr := checkChallenge(sess, now); cerr != nil {
		log.Info().Err(cerr).Msg("answer without live challenge")
		challengesTotal.WithLabelValues("expired").Inc()
		sess.ClearChallenge()
		if err := v.Store.SaveSession(ctx, sess); err != nil {
			return 0, err
		}
		v.tell(ctx, a.ChatID, textExpired)
		return AnswerExpired, nil
	}

	if a.Correct && strconv.Itoa(a.Value) == *sess.VerificationCode {
		// First verification wins over rate-limit verification when both
		// flags are set; both are cleared.
		first := sess.IsFirstVerification
		exp := now.Add(v.verifiedTTL())
		sess.IsVerified = true
		sess.VerifiedExpiry = &exp
		sess.ClearChallenge()
		sess.IsFirstVerification = false
		sess.IsRateLimited = false
		if err := v.Store.SaveSession(ctx, sess); err != nil {
			return 0, err
		}
		if v.Limiter != nil {
			if err := v.Limiter.Reset(ctx, a.ChatID, domain.RateMessage); err != nil {
				log.Warn().Err(err).Msg("reset message rate")
			}
		}
		challengesTotal.WithLabelValues("accepted").Inc()
		if first {
			v.tell(ctx, a.ChatID, v.Notices.Welcome(ctx)+"\n"+textGreeting)
		} else {
			v.tell(ctx, a.ChatID, textVerifiedResend)
		}
		return AnswerAccepted, nil
	}

	challengesTotal.WithLabelValues("rejected").Inc()
	v.tell(ctx, a.ChatID, textFailed)
	if err := v.begin(ctx, sess); err != nil {
		return 0, err
	}
	return AnswerRejected, nil
}

func checkChallenge(s *domain.ChatSession, now time.Time) error {
	if s.VerificationCode == nil {
		return ErrChallengeMissing
	}
	if !s.ChallengeValidAt(now) {
		return ErrChallengeExpired
	}
	return nil
}

func (v *Verifier) tell(ctx context.Context, chatID int64, text string) {
	tell(ctx, v.Bot, chatID, 0, text)
}

// tell sends plain text and logs a failure.
func tell(ctx context.Context, bot Bot, chatID, threadID int64, text string) {
	if _, err := bot.SendMessage(ctx, telegram.SendMessageParams{ChatID: chatID, MessageThreadID: threadID, Text: text}); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Int64("chat_id", chatID).Msg("send notice")
	}
}

// loadSession returns the chat's session, creating and persisting a fresh one
// (inside its first verification flow) when none exists.
func loadSession(ctx context.Context, store Store, chatID int64) (*domain.ChatSession, error) {
	sess, err := store.GetSession(ctx, chatID)
	if err == nil {
		return sess, nil
	}
	if !repo.IsNotFound(err) {
		return nil, fmt.Errorf("load session %d: %w", chatID, err)
	}
	sess = &domain.ChatSession{ChatID: chatID, IsFirstVerification: true}
	if err := store.SaveSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session %d: %w", chatID, err)
	}
	return sess, nil
}
