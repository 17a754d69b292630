package application

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/quietreach/reach-cli/internal/domain"
	"github.com/quietreach/reach-cli/internal/ports"
)

type ExecutorConfig struct {
	// MaxRetries bounds how many attempts a transiently failing action gets
	// before it resolves as a failure.
	MaxRetries int
	// BaseBackoff is doubled per transient attempt up to MaxBackoff, with
	// jitter, so retries across sessions never synchronize.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

type sessionProvider interface {
	Get(ctx context.Context, account domain.AccountID) (domain.Session, error)
	Refresh(ctx context.Context, session domain.Session) (domain.Session, error)
}

type capacityGate interface {
	TryAcquire(session domain.SessionID, kind domain.ActionKind) Decision
	Penalize(session domain.SessionID, kind domain.ActionKind) int
}

// Executor drives one request through rate check, platform call and retry
// policy. It is the only place low-level session and platform errors turn
// into terminal outcomes; nothing crosses to the caller unclassified.
type Executor struct {
	sessions sessionProvider
	limiter  capacityGate
	platform ports.PlatformClient
	cfg      ExecutorConfig
	clock    ports.Clock
	log      zerolog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewExecutor(sessions sessionProvider, limiter capacityGate, platform ports.PlatformClient, cfg ExecutorConfig, clock ports.Clock, log zerolog.Logger) *Executor {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &Executor{
		sessions: sessions,
		limiter:  limiter,
		platform: platform,
		cfg:      cfg,
		clock:    clock,
		log:      log,
		sleep:    sleepContext,
	}
}

// Execute resolves the request to exactly one outcome. It never returns an
// error: cancellation, denial and every platform failure are all outcomes.
func (e *Executor) Execute(ctx context.Context, request domain.ActionRequest) domain.ActionOutcome {
	if err := request.Validate(); err != nil {
		return e.outcome(request, domain.StatusPermanentFailure, 0, "invalid_request", err.Error())
	}

	session, err := e.sessions.Get(ctx, request.AccountID)
	if err != nil {
		return e.sessionFailure(request, err)
	}

	for {
		decision := e.limiter.TryAcquire(session.ID, request.Kind)
		if decision.Granted {
			break
		}

		if !request.WaitForCapacity {
			out := e.outcome(request, domain.StatusRateLimited, 0, "rate_denied", "window capacity exhausted")
			out.RetryAt = decision.RetryAt
			return out
		}

		wait := decision.RetryAt.Sub(e.clock.Now())
		e.log.Debug().
			Str("request", string(request.ID)).
			Str("kind", string(request.Kind)).
			Time("retry_at", decision.RetryAt).
			Msg("rate denied, waiting for capacity")

		if err := e.sleep(ctx, wait); err != nil {
			return e.canceled(request, 0)
		}
	}

	return e.attempt(ctx, request, session)
}

func (e *Executor) attempt(ctx context.Context, request domain.ActionRequest, session domain.Session) domain.ActionOutcome {
	bo := e.newBackOff()
	attempts := 0
	transientAttempts := 0
	refreshed := false

	for {
		if ctx.Err() != nil {
			return e.canceled(request, attempts)
		}

		attempts++
		result, err := e.platform.Execute(ctx, request, session)
		if err == nil {
			e.log.Info().
				Str("request", string(request.ID)).
				Str("kind", string(request.Kind)).
				Int("attempts", attempts).
				Str("detail", result.Detail).
				Msg("action succeeded")
			return e.outcome(request, domain.StatusSucceeded, attempts, "", result.Detail)
		}

		if ctx.Err() != nil {
			// The in-flight call cannot be taken back; its result is
			// discarded and the action is not retried.
			return e.canceled(request, attempts)
		}

		perr, ok := domain.AsPlatformError(err)
		if !ok {
			return e.outcome(request, domain.StatusPermanentFailure, attempts, string(domain.PlatformUnknown), err.Error())
		}

		switch perr.Kind {
		case domain.PlatformAuthExpired:
			if refreshed {
				return e.outcome(request, domain.StatusPermanentFailure, attempts, string(perr.Kind), "session expired again after refresh")
			}
			refreshed = true

			fresh, rerr := e.sessions.Refresh(ctx, session)
			if rerr != nil {
				return e.outcome(request, domain.StatusPermanentFailure, attempts, "refresh_failed", rerr.Error())
			}
			session = fresh
			// Refreshed-auth retry happens immediately and does not touch
			// the transient budget.

		case domain.PlatformTransientNetwork:
			transientAttempts++
			if transientAttempts >= e.cfg.MaxRetries {
				return e.outcome(request, domain.StatusTransientFailure, attempts, "retry_budget_exhausted", perr.Detail)
			}

			delay := bo.NextBackOff()
			e.log.Debug().
				Str("request", string(request.ID)).
				Int("attempt", attempts).
				Dur("backoff", delay).
				Msg("transient failure, backing off")

			if err := e.sleep(ctx, delay); err != nil {
				return e.canceled(request, attempts)
			}

		case domain.PlatformBlocked:
			capacity := e.limiter.Penalize(session.ID, request.Kind)
			e.log.Warn().
				Str("session", string(session.ID)).
				Str("kind", string(request.Kind)).
				Int("effective_capacity", capacity).
				Msg("platform block observed, tightening rate limit")
			return e.outcome(request, domain.StatusPermanentFailure, attempts, string(perr.Kind), perr.Detail)

		default:
			return e.outcome(request, domain.StatusPermanentFailure, attempts, string(perr.Kind), perr.Detail)
		}
	}
}

func (e *Executor) sessionFailure(request domain.ActionRequest, err error) domain.ActionOutcome {
	kind := "session_unavailable"
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		kind = "session_not_found"
	case errors.Is(err, domain.ErrRefreshFailed):
		kind = "refresh_failed"
	}

	return e.outcome(request, domain.StatusPermanentFailure, 0, kind, err.Error())
}

func (e *Executor) canceled(request domain.ActionRequest, attempts int) domain.ActionOutcome {
	return e.outcome(request, domain.StatusCanceled, attempts, "canceled", "request canceled")
}

func (e *Executor) outcome(request domain.ActionRequest, status domain.OutcomeStatus, attempts int, errorKind, reason string) domain.ActionOutcome {
	return domain.ActionOutcome{
		RequestID:   request.ID,
		Status:      status,
		Attempts:    attempts,
		CompletedAt: e.clock.Now(),
		ErrorKind:   errorKind,
		Reason:      reason,
	}
}

func (e *Executor) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.cfg.BaseBackoff
	bo.MaxInterval = e.cfg.MaxBackoff
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.25
	bo.MaxElapsedTime = 0
	bo.Reset()

	return bo
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
