// Package redis backs the session and rate-limiter stores with Redis for
// deployments where several workers share one set of accounts.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quietreach/reach-cli/internal/domain"
	"github.com/quietreach/reach-cli/internal/ports"
)

const (
	sessionKeyPrefix = "reach:session:"
	rateStateKey     = "reach:ratestate"

	// Sessions without a usable expiry still get evicted eventually.
	fallbackSessionTTL = 30 * 24 * time.Hour
)

// Store wraps a shared Redis connection and hands out the individual
// repositories built on top of it.
type Store struct {
	client *redis.Client
}

func NewStore(ctx context.Context, redisURL string) (*Store, error) {
	if redisURL == "" {
		return nil, errors.New("redis url is empty")
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Store{client: client}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Sessions(clock ports.Clock) *SessionRepository {
	return &SessionRepository{client: s.client, clock: clock}
}

func (s *Store) RateState() *RateStateRepository {
	return &RateStateRepository{client: s.client}
}

type SessionRepository struct {
	client *redis.Client
	clock  ports.Clock
}

var _ ports.SessionRepository = (*SessionRepository)(nil)

type sessionRecord struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"account_id"`
	CookieRef   string    `json:"cookie_ref"`
	IssuedAt    time.Time `json:"issued_at"`
	RefreshedAt time.Time `json:"refreshed_at,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func toSessionRecord(session domain.Session) sessionRecord {
	return sessionRecord{
		ID:          string(session.ID),
		AccountID:   string(session.AccountID),
		CookieRef:   session.CookieRef,
		IssuedAt:    session.IssuedAt,
		RefreshedAt: session.RefreshedAt,
		ExpiresAt:   session.ExpiresAt,
	}
}

func fromSessionRecord(record sessionRecord) domain.Session {
	return domain.Session{
		ID:          domain.SessionID(record.ID),
		AccountID:   domain.AccountID(record.AccountID),
		CookieRef:   record.CookieRef,
		IssuedAt:    record.IssuedAt,
		RefreshedAt: record.RefreshedAt,
		ExpiresAt:   record.ExpiresAt,
	}
}

func sessionKey(id domain.AccountID) string {
	return sessionKeyPrefix + string(id)
}

func (r *SessionRepository) Save(ctx context.Context, session domain.Session) error {
	data, err := json.Marshal(toSessionRecord(session))
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	ttl := fallbackSessionTTL
	if !session.ExpiresAt.IsZero() {
		if remaining := session.ExpiresAt.Sub(r.clock.Now()); remaining > 0 {
			ttl = remaining
		}
	}

	if err := r.client.Set(ctx, sessionKey(session.AccountID), data, ttl).Err(); err != nil {
		return fmt.Errorf("store session: %w", err)
	}

	return nil
}

func (r *SessionRepository) GetByAccount(ctx context.Context, id domain.AccountID) (domain.Session, error) {
	data, err := r.client.Get(ctx, sessionKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Session{}, domain.ErrSessionNotFound
		}
		return domain.Session{}, fmt.Errorf("load session: %w", err)
	}

	var record sessionRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return domain.Session{}, fmt.Errorf("decode session: %w", err)
	}

	return fromSessionRecord(record), nil
}

func (r *SessionRepository) List(ctx context.Context) ([]domain.Session, error) {
	var sessions []domain.Session

	iter := r.client.Scan(ctx, 0, sessionKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		data, err := r.client.Get(ctx, iter.Val()).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				// Expired between SCAN and GET.
				continue
			}
			return nil, fmt.Errorf("load session %q: %w", iter.Val(), err)
		}

		var record sessionRecord
		if err := json.Unmarshal([]byte(data), &record); err != nil {
			return nil, fmt.Errorf("decode session %q: %w", iter.Val(), err)
		}
		sessions = append(sessions, fromSessionRecord(record))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan sessions: %w", err)
	}

	return sessions, nil
}

func (r *SessionRepository) Delete(ctx context.Context, id domain.AccountID) error {
	if err := r.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	return nil
}

type RateStateRepository struct {
	client *redis.Client
}

var _ ports.RateStateRepository = (*RateStateRepository)(nil)

type rateStateRecord struct {
	SessionID   string    `json:"session_id"`
	Kind        string    `json:"kind"`
	WindowStart time.Time `json:"window_start"`
	Count       int       `json:"count"`
	Capacity    int       `json:"capacity"`
}

func (r *RateStateRepository) Load(ctx context.Context) ([]domain.RateStateEntry, error) {
	data, err := r.client.Get(ctx, rateStateKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load rate state: %w", err)
	}

	var records []rateStateRecord
	if err := json.Unmarshal([]byte(data), &records); err != nil {
		return nil, fmt.Errorf("decode rate state: %w", err)
	}

	entries := make([]domain.RateStateEntry, 0, len(records))
	for _, record := range records {
		entries = append(entries, domain.RateStateEntry{
			SessionID: domain.SessionID(record.SessionID),
			Kind:      domain.ActionKind(record.Kind),
			Window: domain.RateWindow{
				WindowStart: record.WindowStart,
				Count:       record.Count,
				Capacity:    record.Capacity,
			},
		})
	}

	return entries, nil
}

func (r *RateStateRepository) Save(ctx context.Context, entries []domain.RateStateEntry) error {
	records := make([]rateStateRecord, 0, len(entries))
	for _, entry := range entries {
		records = append(records, rateStateRecord{
			SessionID:   string(entry.SessionID),
			Kind:        string(entry.Kind),
			WindowStart: entry.Window.WindowStart,
			Count:       entry.Window.Count,
			Capacity:    entry.Window.Capacity,
		})
	}

	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode rate state: %w", err)
	}

	if err := r.client.Set(ctx, rateStateKey, data, 0).Err(); err != nil {
		return fmt.Errorf("store rate state: %w", err)
	}

	return nil
}
