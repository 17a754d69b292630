package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietreach/reach-cli/internal/domain"
)

func TestStatusOverviewReportsBudgetsPerSession(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	repo := newInMemorySessionRepo()
	require.NoError(t, repo.Save(context.Background(), domain.Session{ID: "sess-1", AccountID: "acc-1"}))
	require.NoError(t, repo.Save(context.Background(), domain.Session{ID: "sess-2", AccountID: "acc-2"}))

	limiter := NewRateLimiter(limiterConfig(24*time.Hour, 10), nil, fixedClock{now: now})
	limiter.TryAcquire("sess-1", domain.ActionConnect)
	limiter.TryAcquire("sess-1", domain.ActionConnect)

	service := NewStatusService(repo, limiter)

	statuses, err := service.Overview(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 2)

	byAccount := map[domain.AccountID]SessionStatus{}
	for _, status := range statuses {
		byAccount[status.Session.AccountID] = status
	}

	first := byAccount["acc-1"]
	require.Len(t, first.Budgets, len(domain.ActionKinds()))
	for _, budget := range first.Budgets {
		if budget.Kind == domain.ActionConnect {
			assert.Equal(t, 2, budget.Used)
		} else {
			assert.Zero(t, budget.Used)
		}
		assert.Equal(t, 10, budget.Capacity)
	}

	for _, budget := range byAccount["acc-2"].Budgets {
		assert.Zero(t, budget.Used)
	}
}

func TestStatusByAccountMissingSession(t *testing.T) {
	t.Parallel()

	service := NewStatusService(newInMemorySessionRepo(), NewRateLimiter(limiterConfig(time.Hour, 5), nil, nil))

	_, err := service.ByAccount(context.Background(), "ghost")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}
