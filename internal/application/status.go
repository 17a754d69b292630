package application

import (
	"context"

	"github.com/quietreach/reach-cli/internal/domain"
	"github.com/quietreach/reach-cli/internal/ports"
)

type SessionStatus struct {
	Session domain.Session
	Budgets []RateBudget
}

// StatusService assembles the caller-facing view of stored sessions and
// their remaining action budgets.
type StatusService struct {
	sessions ports.SessionRepository
	limiter  *RateLimiter
}

func NewStatusService(sessions ports.SessionRepository, limiter *RateLimiter) *StatusService {
	return &StatusService{sessions: sessions, limiter: limiter}
}

func (s *StatusService) Overview(ctx context.Context) ([]SessionStatus, error) {
	sessions, err := s.sessions.List(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]SessionStatus, 0, len(sessions))
	for _, session := range sessions {
		statuses = append(statuses, SessionStatus{
			Session: session,
			Budgets: s.limiter.Budgets(session.ID),
		})
	}

	return statuses, nil
}

func (s *StatusService) ByAccount(ctx context.Context, account domain.AccountID) (SessionStatus, error) {
	session, err := s.sessions.GetByAccount(ctx, account)
	if err != nil {
		return SessionStatus{}, err
	}

	return SessionStatus{
		Session: session,
		Budgets: s.limiter.Budgets(session.ID),
	}, nil
}
