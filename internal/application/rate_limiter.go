package application

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/quietreach/reach-cli/internal/domain"
	"github.com/quietreach/reach-cli/internal/ports"
)

type RateLimiterConfig struct {
	// Window is the sliding-window duration shared by all action kinds.
	Window time.Duration
	// Capacity maps each action kind to its per-session window limit.
	// Kinds absent from the map are always denied.
	Capacity map[domain.ActionKind]int
}

// Decision is the result of a capacity check. RetryAt is set on denials: the
// earliest future time the window frees up.
type Decision struct {
	Granted bool
	RetryAt time.Time
}

type rateKey struct {
	session domain.SessionID
	kind    domain.ActionKind
}

// RateLimiter tracks per-(session, kind) sliding windows. Check-and-increment
// is atomic under one lock; exceeding platform-observed thresholds risks
// account suspension, so a lost race here is the one bug this component must
// never have.
type RateLimiter struct {
	cfg   RateLimiterConfig
	state ports.RateStateRepository
	clock ports.Clock

	mu      sync.Mutex
	windows map[rateKey]*domain.RateWindow
}

// NewRateLimiter builds a limiter with empty windows. state may be nil for
// memory-only operation; otherwise Hydrate/Flush round-trip the windows.
func NewRateLimiter(cfg RateLimiterConfig, state ports.RateStateRepository, clock ports.Clock) *RateLimiter {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &RateLimiter{
		cfg:     cfg,
		state:   state,
		clock:   clock,
		windows: map[rateKey]*domain.RateWindow{},
	}
}

func (l *RateLimiter) TryAcquire(session domain.SessionID, kind domain.ActionKind) Decision {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	window := l.windowLocked(session, kind)
	if window.Elapsed(now, l.cfg.Window) {
		// Capacity carries over: a penalty applied in one window keeps
		// throttling subsequent ones.
		window.WindowStart = now
		window.Count = 0
	}

	if window.Count >= window.Capacity {
		return Decision{RetryAt: window.ResetAt(l.cfg.Window)}
	}

	window.Count++

	return Decision{Granted: true}
}

// Penalize halves the effective capacity for the pair, floor 1. Called by the
// executor when the platform blocks an action: a block means the configured
// limit is already too aggressive for current platform sensitivity.
func (l *RateLimiter) Penalize(session domain.SessionID, kind domain.ActionKind) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	window := l.windowLocked(session, kind)
	window.Capacity /= 2
	if window.Capacity < 1 {
		window.Capacity = 1
	}

	return window.Capacity
}

func (l *RateLimiter) windowLocked(session domain.SessionID, kind domain.ActionKind) *domain.RateWindow {
	key := rateKey{session: session, kind: kind}
	window, ok := l.windows[key]
	if !ok {
		window = &domain.RateWindow{Capacity: l.cfg.Capacity[kind]}
		l.windows[key] = window
	}

	return window
}

// Hydrate loads persisted windows. Without a state repository the limiter
// simply starts empty.
func (l *RateLimiter) Hydrate(ctx context.Context) error {
	if l.state == nil {
		return nil
	}

	entries, err := l.state.Load(ctx)
	if err != nil {
		return fmt.Errorf("load rate state: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, entry := range entries {
		window := entry.Window
		l.windows[rateKey{session: entry.SessionID, kind: entry.Kind}] = &window
	}

	return nil
}

func (l *RateLimiter) Flush(ctx context.Context) error {
	if l.state == nil {
		return nil
	}

	if err := l.state.Save(ctx, l.Snapshot()); err != nil {
		return fmt.Errorf("save rate state: %w", err)
	}

	return nil
}

// Snapshot returns all windows in a stable order.
func (l *RateLimiter) Snapshot() []domain.RateStateEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := make([]domain.RateStateEntry, 0, len(l.windows))
	for key, window := range l.windows {
		entries = append(entries, domain.RateStateEntry{
			SessionID: key.session,
			Kind:      key.kind,
			Window:    *window,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].SessionID != entries[j].SessionID {
			return entries[i].SessionID < entries[j].SessionID
		}
		return entries[i].Kind < entries[j].Kind
	})

	return entries
}

// RateBudget is the caller-facing view of one (session, kind) window.
type RateBudget struct {
	Kind     domain.ActionKind
	Used     int
	Capacity int
	ResetsAt time.Time
}

// Budgets reports the current budget for every action kind of a session.
func (l *RateLimiter) Budgets(session domain.SessionID) []RateBudget {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	budgets := make([]RateBudget, 0, len(domain.ActionKinds()))
	for _, kind := range domain.ActionKinds() {
		budget := RateBudget{Kind: kind, Capacity: l.cfg.Capacity[kind]}
		if window, ok := l.windows[rateKey{session: session, kind: kind}]; ok {
			budget.Capacity = window.Capacity
			if !window.Elapsed(now, l.cfg.Window) {
				budget.Used = window.Count
				budget.ResetsAt = window.ResetAt(l.cfg.Window)
			}
		}
		budgets = append(budgets, budget)
	}

	return budgets
}
