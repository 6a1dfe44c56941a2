package services

import (
	"context"
	"strings"
)

// User- and staff-facing strings.
const (
	textGreeting        = "Hello, welcome to the private chat bot!"
	textWelcomeFallback = "Verification passed! You can now chat with the support team."
	textNonText         = "non-text message"
	textNeedVerify      = "Message not delivered: %s\nPlease complete verification first."
	textTooFrequent     = "Message not delivered: %s\nYou are sending messages too quickly. Please complete verification, then send it again."
	textSlowDown        = "Message not delivered: %s\nYou are sending messages too quickly. Please wait a minute and try again."
	textQuestion        = "Please solve: %d %s %d = ? (tap the answer below)"
	textExpired         = "The verification code has expired. Please resend your message to get a new one."
	textVerifiedResend  = "Verified! Please resend your message."
	textFailed          = "Verification failed, please try again."
	textBlocked         = "You have been blocked. Your messages will not be delivered."
	textStartThrottled  = "Please wait a few minutes before sending /start again."
	textRelayFailed     = "Your message could not be delivered right now. Please try again later or contact staff."
	textTryLater        = "Something went wrong on our side. Please try again later."

	textAdminsOnly     = "Only admins can use this command."
	textUnknownAction  = "Unknown action."
	textBadTarget      = "Usage: /reset_user <chat_id>"
	textBlockedUser    = "User %d has been blocked. Their messages will no longer be relayed."
	textUnblockedUser  = "User %d has been unblocked and will be verified again."
	textBlockStatus    = "Is user %d blocked: %s"
	textBlockList      = "Blocked users:\n%s"
	textBlockListEmpty = "No users are blocked."
	textVerification   = "Verification is now %s."
	textUserRaw        = "Remote welcome text is now %s."
	textDeletedUser    = "State of user %d has been deleted. Their thread is kept."
	textResetUser      = "User %d has been reset."
	textReplyFailed    = "Could not deliver this reply to user %d. Please try again later."
	textPanel          = "Admin panel for user %d\nVerification: %s\nRemote welcome text: %s"

	textIntro     = "Nickname: %s\nUsername: %s\nUserID: %d\nStarted: %s\n\n%s"
	textRelayHead = "*%s:*\n------------------------------------------------\n\n%s"
)

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// markdownEscaper escapes the legacy Markdown entities sendMessage parses.
var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

// Notices resolves the two remote documents, falling back to built-in text.
type Notices struct {
	Content    Content
	Settings   *Settings
	WelcomeURL string
	ThreadURL  string
}

// Welcome is the text shown after a first successful verification. The remote
// document is only consulted while user_raw_enabled is on.
func (n *Notices) Welcome(ctx context.Context) string {
	if n == nil || n.Content == nil || n.WelcomeURL == "" {
		return textWelcomeFallback
	}
	if n.Settings != nil && !n.Settings.UserRawEnabled(ctx) {
		return textWelcomeFallback
	}
	return n.Content.Text(ctx, n.WelcomeURL, textWelcomeFallback)
}

// ThreadNotice is appended to each thread's pinned intro; empty on failure.
func (n *Notices) ThreadNotice(ctx context.Context) string {
	if n == nil || n.Content == nil || n.ThreadURL == "" {
		return ""
	}
	return n.Content.Text(ctx, n.ThreadURL, "")
}
