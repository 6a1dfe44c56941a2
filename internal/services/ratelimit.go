package services

import (
	"context"
	"time"

	"github.com/tbourn/go-relay-bot/internal/domain"
	"github.com/tbourn/go-relay-bot/internal/repo"
)

// Fixed windows and thresholds.
const (
	MessageWindow       = 60 * time.Second
	StartWindow         = 300 * time.Second
	StartLimit          = 1
	DefaultMessageLimit = 40
)

// RateLimiter keeps two independent fixed-window counters per chat.
type RateLimiter struct {
	Store Store
	// MessageLimit is the per-window message threshold; <= 0 uses 40.
	MessageLimit int
	Now          func() time.Time
}

func (l *RateLimiter) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func (l *RateLimiter) limits(kind domain.RateKind) (time.Duration, int) {
	if kind == domain.RateStart {
		return StartWindow, StartLimit
	}
	if l.MessageLimit <= 0 {
		return MessageWindow, DefaultMessageLimit
	}
	return MessageWindow, l.MessageLimit
}

// Check counts one event for (chatID, kind) and reports whether the updated
// count exceeds the threshold. A window older than its length restarts at 1.
func (l *RateLimiter) Check(ctx context.Context, chatID int64, kind domain.RateKind) (bool, error) {
	window, limit := l.limits(kind)
	now := l.now()

	w, err := l.Store.GetRateWindow(ctx, chatID, kind)
	switch {
	case repo.IsNotFound(err):
		w = &domain.RateWindow{ChatID: chatID, Kind: kind, Count: 1, WindowStart: now}
	case err != nil:
		return false, err
	case now.Sub(w.WindowStart) > window:
		w.Count = 1
		w.WindowStart = now
	default:
		w.Count++
	}
	if err := l.Store.SaveRateWindow(ctx, w); err != nil {
		return false, err
	}
	return w.Count > limit, nil
}

// Reset zeroes the (chatID, kind) counter and restarts its window.
func (l *RateLimiter) Reset(ctx context.Context, chatID int64, kind domain.RateKind) error {
	return l.Store.SaveRateWindow(ctx, &domain.RateWindow{ChatID: chatID, Kind: kind, Count: 0, WindowStart: l.now()})
}
