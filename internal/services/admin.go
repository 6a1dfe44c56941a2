package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-relay-bot/internal/domain"
	"github.com/tbourn/go-relay-bot/internal/repo"
	"github.com/tbourn/go-relay-bot/internal/telegram"
)

// Panel actions carried in callback data as <action>_<chat id>.
const (
	ActionBlock              = "block"
	ActionUnblock            = "unblock"
	ActionToggleVerification = "toggle_verification"
	ActionCheckBlocklist     = "check_blocklist"
	ActionToggleUserRaw      = "toggle_user_raw"
	ActionDeleteUser         = "delete_user"
)

var panelActions = map[string]bool{
	ActionBlock: true, ActionUnblock: true, ActionToggleVerification: true,
	ActionCheckBlocklist: true, ActionToggleUserRaw: true, ActionDeleteUser: true,
}

// ParseAction splits panel callback data into action and target chat.
func ParseAction(data string) (string, int64, bool) {
	i := strings.LastIndexByte(data, '_')
	if i <= 0 {
		return "", 0, false
	}
	action := data[:i]
	if !panelActions[action] {
		return "", 0, false
	}
	id, err := strconv.ParseInt(data[i+1:], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return action, id, true
}

// Admin implements the staff controls. Every entry point checks the caller's
// role in the staff group remotely; the answer is never cached.
type Admin struct {
	Store    Store
	Bot      Bot
	GroupID  int64
	Settings *Settings
}

// IsAdmin reports whether userID administers or owns the staff group.
func (a *Admin) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	m, err := a.Bot.GetChatMember(ctx, a.GroupID, userID)
	if err != nil {
		return false, err
	}
	return m.IsAdmin(), nil
}

func (a *Admin) authorize(ctx context.Context, u *domain.User) error {
	if u == nil {
		return ErrNotAdmin
	}
	ok, err := a.IsAdmin(ctx, u.ID)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Int64("user_id", u.ID).Msg("admin check failed")
		return ErrNotAdmin
	}
	if !ok {
		return ErrNotAdmin
	}
	return nil
}

// Block marks chatID blocked.
func (a *Admin) Block(ctx context.Context, chatID int64) error {
	sess, err := loadSession(ctx, a.Store, chatID)
	if err != nil {
		return err
	}
	sess.IsBlocked = true
	return a.Store.SaveSession(ctx, sess)
}

// Unblock lifts the block and drops the verification so the chat goes
// through its first verification again.
func (a *Admin) Unblock(ctx context.Context, chatID int64) error {
	sess, err := loadSession(ctx, a.Store, chatID)
	if err != nil {
		return err
	}
	sess.IsBlocked = false
	sess.IsVerified = false
	sess.VerifiedExpiry = nil
	sess.IsFirstVerification = true
	return a.Store.SaveSession(ctx, sess)
}

// IsBlocked reports chatID's block flag; an unknown chat is not blocked.
func (a *Admin) IsBlocked(ctx context.Context, chatID int64) (bool, error) {
	sess, err := a.Store.GetSession(ctx, chatID)
	if err != nil {
		if repo.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return sess.IsBlocked, nil
}

// ListBlocked returns the blocked chat ids in ascending order.
func (a *Admin) ListBlocked(ctx context.Context) ([]int64, error) {
	rows, err := a.Store.ListBlocked(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]int64, 0, len(rows))
	for _, s := range rows {
		out = append(out, s.ChatID)
	}
	return out, nil
}

// DeleteUser removes chatID's session and rate windows; its thread mapping
// stays so staff history is kept.
func (a *Admin) DeleteUser(ctx context.Context, chatID int64) error {
	return a.Store.DeleteChatState(ctx, chatID)
}

// SendPanel posts a fresh control panel for chatID into threadID.
func (a *Admin) SendPanel(ctx context.Context, threadID, chatID int64) error {
	text := fmt.Sprintf(textPanel, chatID,
		onOff(a.Settings.VerificationEnabled(ctx)),
		onOff(a.Settings.UserRawEnabled(ctx)),
	)
	btn := func(label, action string) telegram.InlineButton {
		return telegram.InlineButton{Text: label, CallbackData: action + "_" + strconv.FormatInt(chatID, 10)}
	}
	kb := telegram.Keyboard(
		telegram.Row(btn("Block", ActionBlock), btn("Unblock", ActionUnblock)),
		telegram.Row(
			btn("Verification: "+onOff(a.Settings.VerificationEnabled(ctx)), ActionToggleVerification),
			btn("Blocked list", ActionCheckBlocklist),
		),
		telegram.Row(
			btn("Remote welcome: "+onOff(a.Settings.UserRawEnabled(ctx)), ActionToggleUserRaw),
			btn("Delete user", ActionDeleteUser),
		),
	)
	_, err := a.Bot.SendMessage(ctx, telegram.SendMessageParams{
		ChatID:          a.GroupID,
		MessageThreadID: threadID,
		Text:            text,
		ReplyMarkup:     kb,
	})
	return err
}

// HandleThreadCommand runs /admin, /block, /unblock or /checkblock sent in
// the thread mapped to chatID. It reports whether msg was a command.
func (a *Admin) HandleThreadCommand(ctx context.Context, msg *domain.Message, chatID int64) (bool, error) {
	var cmd string
	for _, c := range []string{"/admin", "/block", "/unblock", "/checkblock"} {
		if msg.IsCommand(c) {
			cmd = c
			break
		}
	}
	if cmd == "" {
		return false, nil
	}

	thread := msg.MessageThreadID
	if err := a.authorize(ctx, msg.From); err != nil {
		tell(ctx, a.Bot, a.GroupID, thread, textAdminsOnly)
		return true, nil
	}

	var err error
	switch cmd {
	case "/admin":
		if err = a.SendPanel(ctx, thread, chatID); err == nil {
			a.deleteBestEffort(ctx, msg.MessageID)
		}
	case "/block":
		if err = a.Block(ctx, chatID); err == nil {
			tell(ctx, a.Bot, a.GroupID, thread, fmt.Sprintf(textBlockedUser, chatID))
		}
	case "/unblock":
		if err = a.Unblock(ctx, chatID); err == nil {
			tell(ctx, a.Bot, a.GroupID, thread, fmt.Sprintf(textUnblockedUser, chatID))
		}
	case "/checkblock":
		var blocked bool
		if blocked, err = a.IsBlocked(ctx, chatID); err == nil {
			tell(ctx, a.Bot, a.GroupID, thread, fmt.Sprintf(textBlockStatus, chatID, yesNo(blocked)))
		}
	}
	if err != nil {
		tell(ctx, a.Bot, a.GroupID, thread, textTryLater)
	}
	return true, err
}

// HandleReset runs /reset_user <chat_id>, accepted anywhere in the group.
func (a *Admin) HandleReset(ctx context.Context, msg *domain.Message) error {
	thread := msg.MessageThreadID
	if err := a.authorize(ctx, msg.From); err != nil {
		tell(ctx, a.Bot, a.GroupID, thread, textAdminsOnly)
		return nil
	}
	target, err := resetTarget(msg.Text)
	if err != nil {
		tell(ctx, a.Bot, a.GroupID, thread, textBadTarget)
		return nil
	}
	if err := a.DeleteUser(ctx, target); err != nil {
		tell(ctx, a.Bot, a.GroupID, thread, textTryLater)
		return err
	}
	tell(ctx, a.Bot, a.GroupID, thread, fmt.Sprintf(textResetUser, target))
	return nil
}

func resetTarget(text string) (int64, error) {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return 0, ErrBadTarget
	}
	id, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0, ErrBadTarget
	}
	return id, nil
}

// HandleCallback runs a panel button press. After the action the pressed
// panel is deleted and a fresh one sent, both best-effort.
func (a *Admin) HandleCallback(ctx context.Context, cq *domain.CallbackQuery) error {
	tr := otel.Tracer("services/Admin")
	ctx, span := tr.Start(ctx, "HandleCallback",
		trace.WithAttributes(attribute.String("callback.data", cq.Data)),
	)
	defer span.End()

	thread := cq.Message.MessageThreadID
	ack := func(text string) {
		if err := a.Bot.AnswerCallbackQuery(ctx, cq.ID, text); err != nil {
			zerolog.Ctx(ctx).Debug().Err(err).Msg("answer callback")
		}
	}

	if err := a.authorize(ctx, cq.From); err != nil {
		tell(ctx, a.Bot, a.GroupID, thread, textAdminsOnly)
		ack(textAdminsOnly)
		return nil
	}
	action, chatID, ok := ParseAction(cq.Data)
	if !ok {
		tell(ctx, a.Bot, a.GroupID, thread, textUnknownAction)
		ack(textUnknownAction)
		return ErrUnknownAction
	}

	reply, err := a.apply(ctx, action, chatID)
	if err != nil {
		tell(ctx, a.Bot, a.GroupID, thread, textTryLater)
		ack("")
		return err
	}
	tell(ctx, a.Bot, a.GroupID, thread, reply)
	a.deleteBestEffort(ctx, cq.Message.MessageID)
	if err := a.SendPanel(ctx, thread, chatID); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("send panel")
	}
	ack("")
	return nil
}

func (a *Admin) apply(ctx context.Context, action string, chatID int64) (string, error) {
	switch action {
	case ActionBlock:
		return fmt.Sprintf(textBlockedUser, chatID), a.Block(ctx, chatID)
	case ActionUnblock:
		return fmt.Sprintf(textUnblockedUser, chatID), a.Unblock(ctx, chatID)
	case ActionToggleVerification:
		on, err := a.Settings.Toggle(ctx, domain.SettingVerificationEnabled)
		return fmt.Sprintf(textVerification, onOff(on)), err
	case ActionToggleUserRaw:
		on, err := a.Settings.Toggle(ctx, domain.SettingUserRawEnabled)
		return fmt.Sprintf(textUserRaw, onOff(on)), err
	case ActionCheckBlocklist:
		ids, err := a.ListBlocked(ctx)
		if err != nil {
			return "", err
		}
		if len(ids) == 0 {
			return textBlockListEmpty, nil
		}
		lines := make([]string, len(ids))
		for i, id := range ids {
			lines[i] = strconv.FormatInt(id, 10)
		}
		return fmt.Sprintf(textBlockList, strings.Join(lines, "\n")), nil
	case ActionDeleteUser:
		return fmt.Sprintf(textDeletedUser, chatID), a.DeleteUser(ctx, chatID)
	}
	return "", ErrUnknownAction
}

func (a *Admin) deleteBestEffort(ctx context.Context, messageID int64) {
	if err := a.Bot.DeleteMessage(ctx, a.GroupID, messageID); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("delete panel trigger")
	}
}
