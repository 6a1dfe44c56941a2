// Package domain defines the persistence models for the relay: per-chat
// session state, fixed rate windows, chat↔thread mappings, and global
// settings. These types are mapped with GORM and form the core data layer
// shared by the repository, cache, and service layers.
package domain

import (
	"time"
)

// ChatSession is the per-chat verification and moderation state of a single
// end-user's private conversation with the relay.
//
// Invariants:
//   - VerificationCode != nil implies CodeExpiry != nil and IsVerifying.
//   - IsVerified implies VerifiedExpiry != nil.
//
// Fields:
//   - ChatID: the private chat identifier (primary key).
//   - IsBlocked: staff blocked this chat; pre-empts every other state.
//   - IsVerified / VerifiedExpiry: current verification and its horizon.
//   - IsFirstVerification: the chat is inside its first-ever verification
//     flow (triggered by /start); wins over rate-limit verification.
//   - IsRateLimited: the message limiter tripped and forced re-verification.
//   - IsVerifying / VerificationCode / CodeExpiry: outstanding challenge.
//   - LastChallengeMessageID: the challenge message to delete on re-issue.
type ChatSession struct {
	ChatID                 int64      `json:"chat_id"                   gorm:"primaryKey;autoIncrement:false"`
	IsBlocked              bool       `json:"is_blocked"                gorm:"not null;default:false;index"`
	IsVerified             bool       `json:"is_verified"               gorm:"not null;default:false"`
	VerifiedExpiry         *time.Time `json:"verified_expiry,omitempty"`
	IsFirstVerification    bool       `json:"is_first_verification"     gorm:"not null;default:false"`
	IsRateLimited          bool       `json:"is_rate_limited"           gorm:"not null;default:false"`
	IsVerifying            bool       `json:"is_verifying"              gorm:"not null;default:false"`
	VerificationCode       *string    `json:"verification_code,omitempty" gorm:"type:varchar(16)"`
	CodeExpiry             *time.Time `json:"code_expiry,omitempty"`
	LastChallengeMessageID *int64     `json:"last_challenge_message_id,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// TableName returns the database table name for ChatSession.
func (ChatSession) TableName() string { return "chat_sessions" }

// VerifiedAt reports whether the session holds a verification that is still
// valid at now. An elapsed VerifiedExpiry counts as unverified.
func (s *ChatSession) VerifiedAt(now time.Time) bool {
	if s == nil || !s.IsVerified || s.VerifiedExpiry == nil {
		return false
	}
	return now.Before(*s.VerifiedExpiry)
}

// ChallengeValidAt reports whether an outstanding challenge exists and has
// not expired at now.
func (s *ChatSession) ChallengeValidAt(now time.Time) bool {
	if s == nil || s.VerificationCode == nil || s.CodeExpiry == nil {
		return false
	}
	return now.Before(*s.CodeExpiry)
}

// ClearChallenge drops the outstanding challenge fields.
func (s *ChatSession) ClearChallenge() {
	s.IsVerifying = false
	s.VerificationCode = nil
	s.CodeExpiry = nil
}

// RateKind selects one of the independent fixed windows kept per chat.
type RateKind string

const (
	// RateMessage counts general message volume (60s window).
	RateMessage RateKind = "message"
	// RateStart counts the "begin conversation" command (300s window).
	RateStart RateKind = "start"
)

// RateWindow is a fixed-window counter for one (chat, kind) pair.
type RateWindow struct {
	ChatID      int64     `json:"chat_id"      gorm:"primaryKey;autoIncrement:false"`
	Kind        RateKind  `json:"kind"         gorm:"primaryKey;type:varchar(16)"`
	Count       int       `json:"count"        gorm:"not null;default:0"`
	WindowStart time.Time `json:"window_start" gorm:"not null"`
}

// TableName returns the database table name for RateWindow.
func (RateWindow) TableName() string { return "rate_windows" }

// TopicMapping links a private chat to its discussion thread in the staff
// group. Both columns are unique so the relation stays a bijection.
type TopicMapping struct {
	ChatID    int64     `json:"chat_id"   gorm:"primaryKey;autoIncrement:false"`
	ThreadID  int64     `json:"thread_id" gorm:"not null;uniqueIndex:ux_topic_thread"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for TopicMapping.
func (TopicMapping) TableName() string { return "topic_mappings" }

// Setting is a row of the flat global key→value table.
type Setting struct {
	Key       string    `json:"key"   gorm:"primaryKey;type:varchar(64)"`
	Value     string    `json:"value" gorm:"type:varchar(255);not null"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Setting.
func (Setting) TableName() string { return "settings" }

// Known global setting keys.
const (
	SettingVerificationEnabled = "verification_enabled"
	SettingUserRawEnabled      = "user_raw_enabled"
)
