package domain

import "time"

type AccountID string
type SessionID string

type Session struct {
	ID          SessionID
	AccountID   AccountID
	// CookieRef points to a secret-store entry holding the cookie jar blob.
	CookieRef   string
	IssuedAt    time.Time
	RefreshedAt time.Time
	ExpiresAt   time.Time
}

// ExpiresWithin reports whether the session reaches its expiry within the
// given margin of now. Sessions are refreshed ahead of the platform-declared
// expiry so an action never starts on a session about to go invalid.
func (s Session) ExpiresWithin(now time.Time, margin time.Duration) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	if margin < 0 {
		margin = 0
	}

	return !now.Before(s.ExpiresAt.Add(-margin))
}

func (s Session) Expired(now time.Time) bool {
	return s.ExpiresWithin(now, 0)
}
