package application

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietreach/reach-cli/internal/domain"
)

func connectRequest() domain.ActionRequest {
	return domain.ActionRequest{
		ID:        "req-1",
		Kind:      domain.ActionConnect,
		AccountID: "acc-1",
		Target:    "https://www.linkedin.com/in/some-profile",
	}
}

func newTestExecutor(t *testing.T, sessions sessionProvider, limiter capacityGate, platform *fakePlatform, cfg ExecutorConfig) (*Executor, *[]time.Duration) {
	t.Helper()

	exec := NewExecutor(sessions, limiter, platform, cfg, fixedClock{now: time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)}, zerolog.Nop())
	sleeps := &[]time.Duration{}
	exec.sleep = func(_ context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}

	return exec, sleeps
}

func TestExecutorSucceedsFirstAttempt(t *testing.T) {
	t.Parallel()

	platform := &fakePlatform{}
	limiter := NewRateLimiter(limiterConfig(24*time.Hour, 10), nil, fixedClock{now: time.Now()})
	exec, sleeps := newTestExecutor(t, &fakeSessions{session: domain.Session{ID: "sess-1"}}, limiter, platform, ExecutorConfig{MaxRetries: 3, BaseBackoff: time.Second, MaxBackoff: time.Minute})

	outcome := exec.Execute(context.Background(), connectRequest())

	assert.Equal(t, domain.StatusSucceeded, outcome.Status)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, 1, platform.executeCalls)
	assert.Empty(t, *sleeps)
}

func TestExecutorSucceededOutcomeCarriesPlatformDetail(t *testing.T) {
	t.Parallel()

	platform := &fakePlatform{executeResult: domain.RawResult{StatusCode: 200, Detail: "invitation sent"}}
	limiter := NewRateLimiter(limiterConfig(24*time.Hour, 10), nil, fixedClock{now: time.Now()})
	exec, _ := newTestExecutor(t, &fakeSessions{session: domain.Session{ID: "sess-1"}}, limiter, platform, ExecutorConfig{MaxRetries: 3, BaseBackoff: time.Second, MaxBackoff: time.Minute})

	outcome := exec.Execute(context.Background(), connectRequest())

	assert.Equal(t, domain.StatusSucceeded, outcome.Status)
	assert.Equal(t, "invitation sent", outcome.Reason)
	assert.Empty(t, outcome.ErrorKind)
}

func TestExecutorExhaustsTransientRetryBudget(t *testing.T) {
	t.Parallel()

	transient := func() error { return domain.NewPlatformError(domain.PlatformTransientNetwork, "connection reset") }
	platform := &fakePlatform{executeErrs: []error{transient(), transient(), transient(), transient(), transient()}}
	limiter := NewRateLimiter(limiterConfig(24*time.Hour, 10), nil, fixedClock{now: time.Now()})
	exec, sleeps := newTestExecutor(t, &fakeSessions{session: domain.Session{ID: "sess-1"}}, limiter, platform, ExecutorConfig{MaxRetries: 3, BaseBackoff: time.Second, MaxBackoff: time.Minute})

	outcome := exec.Execute(context.Background(), connectRequest())

	assert.Equal(t, domain.StatusTransientFailure, outcome.Status)
	assert.Equal(t, "retry_budget_exhausted", outcome.ErrorKind)
	assert.Equal(t, 3, outcome.Attempts, "exactly maxRetries attempts")
	assert.Equal(t, 3, platform.executeCalls)
	assert.Len(t, *sleeps, 2, "backoff between attempts only")
}

func TestExecutorBackoffDoublesWithJitter(t *testing.T) {
	t.Parallel()

	transient := func() error { return domain.NewPlatformError(domain.PlatformTransientNetwork, "timeout") }
	platform := &fakePlatform{executeErrs: []error{transient(), transient(), transient()}}
	limiter := NewRateLimiter(limiterConfig(24*time.Hour, 10), nil, fixedClock{now: time.Now()})
	exec, sleeps := newTestExecutor(t, &fakeSessions{session: domain.Session{ID: "sess-1"}}, limiter, platform, ExecutorConfig{MaxRetries: 3, BaseBackoff: time.Second, MaxBackoff: time.Minute})

	exec.Execute(context.Background(), connectRequest())

	require.Len(t, *sleeps, 2)
	assert.InDelta(t, float64(time.Second), float64((*sleeps)[0]), float64(time.Second)*0.25)
	assert.InDelta(t, float64(2*time.Second), float64((*sleeps)[1]), float64(2*time.Second)*0.25)
}

func TestExecutorRefreshesOnAuthExpiredWithoutSpendingTransientBudget(t *testing.T) {
	t.Parallel()

	platform := &fakePlatform{executeErrs: []error{domain.NewPlatformError(domain.PlatformAuthExpired, "li_at rejected")}}
	sessions := &fakeSessions{
		session:        domain.Session{ID: "sess-1"},
		refreshSession: domain.Session{ID: "sess-1", RefreshedAt: time.Now()},
	}
	limiter := NewRateLimiter(limiterConfig(24*time.Hour, 10), nil, fixedClock{now: time.Now()})
	exec, sleeps := newTestExecutor(t, sessions, limiter, platform, ExecutorConfig{MaxRetries: 1, BaseBackoff: time.Second, MaxBackoff: time.Minute})

	outcome := exec.Execute(context.Background(), connectRequest())

	assert.Equal(t, domain.StatusSucceeded, outcome.Status)
	assert.Equal(t, 2, outcome.Attempts)
	assert.Equal(t, 1, sessions.refreshCalls)
	assert.Empty(t, *sleeps, "refresh retry is immediate")
}

func TestExecutorFailsWhenRefreshFails(t *testing.T) {
	t.Parallel()

	platform := &fakePlatform{executeErrs: []error{domain.NewPlatformError(domain.PlatformAuthExpired, "li_at rejected")}}
	sessions := &fakeSessions{
		session:    domain.Session{ID: "sess-1"},
		refreshErr: domain.ErrRefreshFailed,
	}
	limiter := NewRateLimiter(limiterConfig(24*time.Hour, 10), nil, fixedClock{now: time.Now()})
	exec, _ := newTestExecutor(t, sessions, limiter, platform, ExecutorConfig{MaxRetries: 3, BaseBackoff: time.Second, MaxBackoff: time.Minute})

	outcome := exec.Execute(context.Background(), connectRequest())

	assert.Equal(t, domain.StatusPermanentFailure, outcome.Status)
	assert.Equal(t, "refresh_failed", outcome.ErrorKind)
}

func TestExecutorFailsWhenAuthExpiresTwice(t *testing.T) {
	t.Parallel()

	authExpired := func() error { return domain.NewPlatformError(domain.PlatformAuthExpired, "li_at rejected") }
	platform := &fakePlatform{executeErrs: []error{authExpired(), authExpired()}}
	sessions := &fakeSessions{
		session:        domain.Session{ID: "sess-1"},
		refreshSession: domain.Session{ID: "sess-1"},
	}
	limiter := NewRateLimiter(limiterConfig(24*time.Hour, 10), nil, fixedClock{now: time.Now()})
	exec, _ := newTestExecutor(t, sessions, limiter, platform, ExecutorConfig{MaxRetries: 3, BaseBackoff: time.Second, MaxBackoff: time.Minute})

	outcome := exec.Execute(context.Background(), connectRequest())

	assert.Equal(t, domain.StatusPermanentFailure, outcome.Status)
	assert.Equal(t, string(domain.PlatformAuthExpired), outcome.ErrorKind)
	assert.Equal(t, 1, sessions.refreshCalls)
}

func TestExecutorBlockedTightensRateLimit(t *testing.T) {
	t.Parallel()

	platform := &fakePlatform{executeErrs: []error{domain.NewPlatformError(domain.PlatformBlocked, "challenge page")}}
	limiter := NewRateLimiter(limiterConfig(24*time.Hour, 8), nil, fixedClock{now: time.Now()})
	exec, _ := newTestExecutor(t, &fakeSessions{session: domain.Session{ID: "sess-1"}}, limiter, platform, ExecutorConfig{MaxRetries: 3, BaseBackoff: time.Second, MaxBackoff: time.Minute})

	outcome := exec.Execute(context.Background(), connectRequest())

	assert.Equal(t, domain.StatusPermanentFailure, outcome.Status)
	assert.Equal(t, string(domain.PlatformBlocked), outcome.ErrorKind)

	budgets := limiter.Budgets("sess-1")
	for _, budget := range budgets {
		if budget.Kind == domain.ActionConnect {
			// One grant was consumed before the block; capacity halved after.
			assert.Equal(t, 4, budget.Capacity)
		}
	}
}

func TestExecutorNotFoundIsPermanent(t *testing.T) {
	t.Parallel()

	platform := &fakePlatform{executeErrs: []error{domain.NewPlatformError(domain.PlatformNotFound, "profile gone")}}
	limiter := NewRateLimiter(limiterConfig(24*time.Hour, 10), nil, fixedClock{now: time.Now()})
	exec, _ := newTestExecutor(t, &fakeSessions{session: domain.Session{ID: "sess-1"}}, limiter, platform, ExecutorConfig{MaxRetries: 3, BaseBackoff: time.Second, MaxBackoff: time.Minute})

	outcome := exec.Execute(context.Background(), connectRequest())

	assert.Equal(t, domain.StatusPermanentFailure, outcome.Status)
	assert.Equal(t, string(domain.PlatformNotFound), outcome.ErrorKind)
	assert.Equal(t, 1, platform.executeCalls)
}

func TestExecutorRateDeniedWithoutWaiting(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	platform := &fakePlatform{}
	limiter := NewRateLimiter(limiterConfig(24*time.Hour, 1), nil, fixedClock{now: start})
	require.True(t, limiter.TryAcquire("sess-1", domain.ActionConnect).Granted)

	exec, _ := newTestExecutor(t, &fakeSessions{session: domain.Session{ID: "sess-1"}}, limiter, platform, ExecutorConfig{MaxRetries: 3, BaseBackoff: time.Second, MaxBackoff: time.Minute})

	outcome := exec.Execute(context.Background(), connectRequest())

	assert.Equal(t, domain.StatusRateLimited, outcome.Status)
	assert.Equal(t, "rate_denied", outcome.ErrorKind)
	assert.Equal(t, start.Add(24*time.Hour), outcome.RetryAt)
	assert.Zero(t, platform.executeCalls)
}

func TestExecutorWaitsForCapacityWhenRequested(t *testing.T) {
	t.Parallel()

	gate := &scriptedGate{decisions: []Decision{
		{RetryAt: time.Date(2026, 8, 31, 13, 0, 0, 0, time.UTC)},
		{Granted: true},
	}}
	platform := &fakePlatform{}
	exec, sleeps := newTestExecutor(t, &fakeSessions{session: domain.Session{ID: "sess-1"}}, gate, platform, ExecutorConfig{MaxRetries: 3, BaseBackoff: time.Second, MaxBackoff: time.Minute})

	request := connectRequest()
	request.WaitForCapacity = true
	outcome := exec.Execute(context.Background(), request)

	assert.Equal(t, domain.StatusSucceeded, outcome.Status)
	require.Len(t, *sleeps, 1)
	assert.Equal(t, time.Hour, (*sleeps)[0])
}

func TestExecutorSessionNotFoundIsPermanent(t *testing.T) {
	t.Parallel()

	platform := &fakePlatform{}
	limiter := NewRateLimiter(limiterConfig(24*time.Hour, 10), nil, fixedClock{now: time.Now()})
	exec, _ := newTestExecutor(t, &fakeSessions{getErr: domain.ErrSessionNotFound}, limiter, platform, ExecutorConfig{MaxRetries: 3, BaseBackoff: time.Second, MaxBackoff: time.Minute})

	outcome := exec.Execute(context.Background(), connectRequest())

	assert.Equal(t, domain.StatusPermanentFailure, outcome.Status)
	assert.Equal(t, "session_not_found", outcome.ErrorKind)
	assert.Zero(t, platform.executeCalls)
}

func TestExecutorCanceledContextResolvesCanceled(t *testing.T) {
	t.Parallel()

	platform := &fakePlatform{}
	limiter := NewRateLimiter(limiterConfig(24*time.Hour, 10), nil, fixedClock{now: time.Now()})
	exec, _ := newTestExecutor(t, &fakeSessions{session: domain.Session{ID: "sess-1"}}, limiter, platform, ExecutorConfig{MaxRetries: 3, BaseBackoff: time.Second, MaxBackoff: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcome := exec.Execute(ctx, connectRequest())

	assert.Equal(t, domain.StatusCanceled, outcome.Status)
	assert.Zero(t, platform.executeCalls)
}

func TestExecutorInvalidRequestIsPermanent(t *testing.T) {
	t.Parallel()

	platform := &fakePlatform{}
	limiter := NewRateLimiter(limiterConfig(24*time.Hour, 10), nil, fixedClock{now: time.Now()})
	exec, _ := newTestExecutor(t, &fakeSessions{session: domain.Session{ID: "sess-1"}}, limiter, platform, ExecutorConfig{MaxRetries: 3, BaseBackoff: time.Second, MaxBackoff: time.Minute})

	outcome := exec.Execute(context.Background(), domain.ActionRequest{ID: "req-1", Kind: "poke"})

	assert.Equal(t, domain.StatusPermanentFailure, outcome.Status)
	assert.Equal(t, "invalid_request", outcome.ErrorKind)
}

type fakeSessions struct {
	session        domain.Session
	getErr         error
	refreshSession domain.Session
	refreshErr     error
	refreshCalls   int
}

func (f *fakeSessions) Get(_ context.Context, account domain.AccountID) (domain.Session, error) {
	if f.getErr != nil {
		return domain.Session{}, f.getErr
	}
	session := f.session
	session.AccountID = account
	return session, nil
}

func (f *fakeSessions) Refresh(_ context.Context, session domain.Session) (domain.Session, error) {
	f.refreshCalls++
	if f.refreshErr != nil {
		return domain.Session{}, f.refreshErr
	}
	refreshed := f.refreshSession
	refreshed.AccountID = session.AccountID
	return refreshed, nil
}

type scriptedGate struct {
	decisions []Decision
	penalized int
}

func (g *scriptedGate) TryAcquire(_ domain.SessionID, _ domain.ActionKind) Decision {
	if len(g.decisions) == 0 {
		return Decision{Granted: true}
	}
	decision := g.decisions[0]
	g.decisions = g.decisions[1:]
	return decision
}

func (g *scriptedGate) Penalize(_ domain.SessionID, _ domain.ActionKind) int {
	g.penalized++
	return 1
}
