package services

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/go-relay-bot/internal/domain"
	"github.com/tbourn/go-relay-bot/internal/repo"
)

func newLimiter(t *testing.T, limit int) (*RateLimiter, *fakeClock) {
	clock := newClock()
	return &RateLimiter{Store: repo.NewStore(newTestDB(t)), MessageLimit: limit, Now: clock.Now}, clock
}

func TestCheck_TripsOnThresholdPlusOne(t *testing.T) {
	ctx := context.Background()
	l, clock := newLimiter(t, 5)
	for i := 1; i <= 5; i++ {
		tripped, err := l.Check(ctx, 1, domain.RateMessage)
		if err != nil || tripped {
			t.Fatalf("message %d: tripped=%v err=%v", i, tripped, err)
		}
		clock.Advance(time.Second)
	}
	tripped, err := l.Check(ctx, 1, domain.RateMessage)
	if err != nil || !tripped {
		t.Fatalf("message 6 should trip: tripped=%v err=%v", tripped, err)
	}
}

func TestCheck_StraddlingWindowsDoesNotTrip(t *testing.T) {
	ctx := context.Background()
	l, clock := newLimiter(t, 4)

	// Two messages at the end of one window...
	for i := 0; i < 2; i++ {
		if tripped, _ := l.Check(ctx, 1, domain.RateMessage); tripped {
			t.Fatalf("unexpected trip")
		}
	}
	clock.Advance(MessageWindow + time.Millisecond)
	// ...and two more in the next one: the counter restarted.
	for i := 0; i < 2; i++ {
		if tripped, _ := l.Check(ctx, 1, domain.RateMessage); tripped {
			t.Fatalf("unexpected trip after window rollover")
		}
	}
	w, _ := l.Store.GetRateWindow(ctx, 1, domain.RateMessage)
	if w.Count != 2 {
		t.Fatalf("count = %d; want 2 after rollover", w.Count)
	}
}

func TestCheck_WindowBoundaryIsInclusive(t *testing.T) {
	ctx := context.Background()
	l, clock := newLimiter(t, 1)
	_, _ = l.Check(ctx, 1, domain.RateMessage)
	// Exactly one window later still counts into the same window.
	clock.Advance(MessageWindow)
	if tripped, _ := l.Check(ctx, 1, domain.RateMessage); !tripped {
		t.Fatalf("elapsed == window must not reset")
	}
}

func TestCheck_StartWindowIndependent(t *testing.T) {
	ctx := context.Background()
	l, clock := newLimiter(t, 100)

	if tripped, _ := l.Check(ctx, 1, domain.RateStart); tripped {
		t.Fatalf("first /start must pass")
	}
	if tripped, _ := l.Check(ctx, 1, domain.RateStart); !tripped {
		t.Fatalf("second /start inside 300s must trip")
	}
	if tripped, _ := l.Check(ctx, 1, domain.RateMessage); tripped {
		t.Fatalf("message window must be independent of start window")
	}
	clock.Advance(StartWindow + time.Second)
	if tripped, _ := l.Check(ctx, 1, domain.RateStart); tripped {
		t.Fatalf("/start after the window must pass")
	}
}

func TestCheck_DefaultLimit(t *testing.T) {
	ctx := context.Background()
	l, _ := newLimiter(t, 0)
	for i := 0; i < DefaultMessageLimit; i++ {
		if tripped, _ := l.Check(ctx, 1, domain.RateMessage); tripped {
			t.Fatalf("tripped at %d with default limit", i+1)
		}
	}
	if tripped, _ := l.Check(ctx, 1, domain.RateMessage); !tripped {
		t.Fatalf("expected trip at %d", DefaultMessageLimit+1)
	}
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	l, _ := newLimiter(t, 1)
	_, _ = l.Check(ctx, 1, domain.RateMessage)
	if err := l.Reset(ctx, 1, domain.RateMessage); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if tripped, _ := l.Check(ctx, 1, domain.RateMessage); tripped {
		t.Fatalf("counter should restart from zero")
	}
}
