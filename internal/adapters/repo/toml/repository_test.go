package toml

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietreach/reach-cli/internal/domain"
)

func newTestSessionRepo(t *testing.T) (*SessionRepository, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "sessions.toml")
	config := viper.New()
	config.Set(sessionsPathKey, path)

	repo, err := NewSessionRepository(config)
	require.NoError(t, err)
	return repo, path
}

func TestSessionRepositoryRoundTrip(t *testing.T) {
	t.Parallel()

	repo, _ := newTestSessionRepo(t)

	first := domain.Session{
		ID:        "sess-1",
		AccountID: "acc-1",
		CookieRef: "linkedin/acc-1/cookies",
		IssuedAt:  time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
		ExpiresAt: time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
	}
	second := domain.Session{
		ID:        "sess-2",
		AccountID: "acc-2",
		CookieRef: "linkedin/acc-2/cookies",
		IssuedAt:  time.Date(2026, 8, 2, 10, 0, 0, 0, time.UTC),
		ExpiresAt: time.Date(2026, 9, 2, 10, 0, 0, 0, time.UTC),
	}

	require.NoError(t, repo.Save(context.Background(), first))
	require.NoError(t, repo.Save(context.Background(), second))

	got, err := repo.GetByAccount(context.Background(), first.AccountID)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	sessions, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.Session{first, second}, sessions)
}

func TestSessionRepositorySaveReplacesExistingAccount(t *testing.T) {
	t.Parallel()

	repo, _ := newTestSessionRepo(t)

	session := domain.Session{ID: "sess-1", AccountID: "acc-1", ExpiresAt: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, repo.Save(context.Background(), session))

	session.ID = "sess-1b"
	session.RefreshedAt = time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Save(context.Background(), session))

	sessions, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, domain.SessionID("sess-1b"), sessions[0].ID)
	assert.Equal(t, session.RefreshedAt, sessions[0].RefreshedAt)
}

func TestSessionRepositoryGetMissing(t *testing.T) {
	t.Parallel()

	repo, _ := newTestSessionRepo(t)

	_, err := repo.GetByAccount(context.Background(), "nobody")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSessionRepositoryDelete(t *testing.T) {
	t.Parallel()

	repo, _ := newTestSessionRepo(t)

	require.NoError(t, repo.Save(context.Background(), domain.Session{ID: "sess-1", AccountID: "acc-1"}))
	require.NoError(t, repo.Delete(context.Background(), "acc-1"))

	_, err := repo.GetByAccount(context.Background(), "acc-1")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)

	// Deleting an absent account is fine.
	require.NoError(t, repo.Delete(context.Background(), "acc-1"))
}

func TestSessionRepositoryRejectsNewerSchema(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sessions.toml")
	require.NoError(t, os.WriteFile(path, []byte("version = 99\n"), 0o600))

	config := viper.New()
	config.Set(sessionsPathKey, path)
	repo, err := NewSessionRepository(config)
	require.NoError(t, err)

	_, err = repo.List(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported state schema version")
}

func TestSessionRepositoryFilePermissions(t *testing.T) {
	t.Parallel()

	repo, path := newTestSessionRepo(t)
	require.NoError(t, repo.Save(context.Background(), domain.Session{ID: "sess-1", AccountID: "acc-1"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestRateStateRepositoryRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ratestate.toml")
	config := viper.New()
	config.Set(rateStatePathKey, path)

	repo, err := NewRateStateRepository(config)
	require.NoError(t, err)

	entries := []domain.RateStateEntry{
		{
			SessionID: "sess-1",
			Kind:      domain.ActionConnect,
			Window: domain.RateWindow{
				WindowStart: time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC),
				Count:       7,
				Capacity:    10,
			},
		},
		{
			SessionID: "sess-1",
			Kind:      domain.ActionMessage,
			Window:    domain.RateWindow{Capacity: 25},
		},
	}

	require.NoError(t, repo.Save(context.Background(), entries))

	loaded, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, entries, loaded)
}

func TestRateStateRepositoryLoadMissingFile(t *testing.T) {
	t.Parallel()

	config := viper.New()
	config.Set(rateStatePathKey, filepath.Join(t.TempDir(), "ratestate.toml"))

	repo, err := NewRateStateRepository(config)
	require.NoError(t, err)

	entries, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRepositoryCanceledContext(t *testing.T) {
	t.Parallel()

	repo, _ := newTestSessionRepo(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.Error(t, repo.Save(ctx, domain.Session{ID: "sess-1", AccountID: "acc-1"}))
	_, err := repo.List(ctx)
	require.Error(t, err)
}
