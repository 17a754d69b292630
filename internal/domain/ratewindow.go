package domain

import "time"

// RateWindow is a per-(session, kind) sliding counter. Capacity is the
// effective limit, which defensive throttling may shrink below the configured
// one after an observed block.
type RateWindow struct {
	WindowStart time.Time
	Count       int
	Capacity    int
}

func (w RateWindow) Remaining() int {
	remaining := w.Capacity - w.Count
	if remaining < 0 {
		return 0
	}

	return remaining
}

func (w RateWindow) ResetAt(duration time.Duration) time.Time {
	return w.WindowStart.Add(duration)
}

func (w RateWindow) Elapsed(now time.Time, duration time.Duration) bool {
	if w.WindowStart.IsZero() {
		return true
	}

	return !now.Before(w.ResetAt(duration))
}

// RateStateEntry is the persisted form of one window, keyed by session and
// action kind.
type RateStateEntry struct {
	SessionID SessionID
	Kind      ActionKind
	Window    RateWindow
}
