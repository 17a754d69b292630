package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quietreach/reach-cli/internal/domain"
	"github.com/quietreach/reach-cli/internal/ports"
)

// SessionService owns authenticated platform sessions: cookie blobs live in
// the secret store, session metadata in the repository. Nothing else mutates
// a session.
type SessionService struct {
	repo          ports.SessionRepository
	store         ports.SecretStore
	platform      ports.PlatformClient
	clock         ports.Clock
	refreshMargin time.Duration
}

func NewSessionService(repo ports.SessionRepository, store ports.SecretStore, platform ports.PlatformClient, clock ports.Clock, refreshMargin time.Duration) *SessionService {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &SessionService{
		repo:          repo,
		store:         store,
		platform:      platform,
		clock:         clock,
		refreshMargin: refreshMargin,
	}
}

func cookieRef(account domain.AccountID) string {
	return fmt.Sprintf("linkedin/%s/cookies", account)
}

// Login authenticates the account against the platform. When a live session
// is already stored it is returned instead, with resumed set, and no platform
// call is made.
func (s *SessionService) Login(ctx context.Context, account domain.AccountID, email, password string) (session domain.Session, resumed bool, err error) {
	if existing, err := s.repo.GetByAccount(ctx, account); err == nil && !existing.Expired(s.clock.Now()) {
		return existing, true, nil
	}

	session, blob, err := s.platform.Login(ctx, account, email, password)
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("platform login: %w", err)
	}

	ref := cookieRef(account)
	if err := s.store.Put(ctx, ref, blob); err != nil {
		return domain.Session{}, false, fmt.Errorf("store cookie jar: %w", err)
	}

	session.AccountID = account
	session.CookieRef = ref
	if session.IssuedAt.IsZero() {
		session.IssuedAt = s.clock.Now()
	}

	if err := s.repo.Save(ctx, session); err != nil {
		if rollbackErr := s.store.Delete(ctx, ref); rollbackErr != nil {
			return domain.Session{}, false, fmt.Errorf("save session and rollback stored cookie jar: %w", errors.Join(err, rollbackErr))
		}

		return domain.Session{}, false, fmt.Errorf("save session: %w", err)
	}

	return session, false, nil
}

// Get returns the account's session, refreshing it first when it is within
// the refresh margin of expiry.
func (s *SessionService) Get(ctx context.Context, account domain.AccountID) (domain.Session, error) {
	session, err := s.repo.GetByAccount(ctx, account)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return domain.Session{}, err
		}

		return domain.Session{}, fmt.Errorf("get session by account: %w", err)
	}

	if session.ExpiresWithin(s.clock.Now(), s.refreshMargin) {
		return s.Refresh(ctx, session)
	}

	return session, nil
}

// Refresh renews the session against the platform. On rejection the returned
// error matches domain.ErrRefreshFailed and the caller must treat the session
// as invalid.
func (s *SessionService) Refresh(ctx context.Context, session domain.Session) (domain.Session, error) {
	refreshed, blob, err := s.platform.Refresh(ctx, session)
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: %w", domain.ErrRefreshFailed, err)
	}

	// Identity is stable across refreshes: rate windows and block penalties
	// are keyed by the session ID and must keep applying afterwards.
	refreshed.ID = session.ID
	refreshed.AccountID = session.AccountID
	refreshed.CookieRef = session.CookieRef
	if refreshed.RefreshedAt.IsZero() {
		refreshed.RefreshedAt = s.clock.Now()
	}

	if blob != "" {
		if err := s.store.Put(ctx, refreshed.CookieRef, blob); err != nil {
			return domain.Session{}, fmt.Errorf("store refreshed cookie jar: %w", err)
		}
	}

	if err := s.repo.Save(ctx, refreshed); err != nil {
		return domain.Session{}, fmt.Errorf("save refreshed session: %w", err)
	}

	return refreshed, nil
}

// Logout drops the session and its cookie blob. Missing sessions are a no-op.
func (s *SessionService) Logout(ctx context.Context, account domain.AccountID) error {
	session, err := s.repo.GetByAccount(ctx, account)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil
		}

		return fmt.Errorf("get session by account: %w", err)
	}

	if err := s.repo.Delete(ctx, account); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	if err := s.store.Delete(ctx, session.CookieRef); err != nil {
		return fmt.Errorf("delete cookie jar: %w", err)
	}

	return nil
}

func (s *SessionService) List(ctx context.Context) ([]domain.Session, error) {
	sessions, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	return sessions, nil
}
