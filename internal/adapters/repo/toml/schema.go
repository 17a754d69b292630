package toml

import (
	"fmt"
	"time"

	"github.com/quietreach/reach-cli/internal/domain"
)

const currentSchemaVersion = 1

func validateVersion(version int) error {
	if version > currentSchemaVersion {
		return fmt.Errorf("unsupported state schema version %d (current %d)", version, currentSchemaVersion)
	}

	return nil
}

type sessionsFileSchema struct {
	Version  int             `toml:"version"`
	Sessions []sessionSchema `toml:"sessions"`
}

type sessionSchema struct {
	ID          string `toml:"id"`
	AccountID   string `toml:"account_id"`
	CookieRef   string `toml:"cookie_ref"`
	IssuedAt    string `toml:"issued_at"`
	RefreshedAt string `toml:"refreshed_at,omitempty"`
	ExpiresAt   string `toml:"expires_at"`
}

func toSessionSchema(session domain.Session) sessionSchema {
	return sessionSchema{
		ID:          string(session.ID),
		AccountID:   string(session.AccountID),
		CookieRef:   session.CookieRef,
		IssuedAt:    formatTime(session.IssuedAt),
		RefreshedAt: formatTime(session.RefreshedAt),
		ExpiresAt:   formatTime(session.ExpiresAt),
	}
}

func fromSessionSchema(entry sessionSchema) domain.Session {
	return domain.Session{
		ID:          domain.SessionID(entry.ID),
		AccountID:   domain.AccountID(entry.AccountID),
		CookieRef:   entry.CookieRef,
		IssuedAt:    parseTime(entry.IssuedAt),
		RefreshedAt: parseTime(entry.RefreshedAt),
		ExpiresAt:   parseTime(entry.ExpiresAt),
	}
}

type rateFileSchema struct {
	Version int             `toml:"version"`
	Windows []rateWindowRow `toml:"windows"`
}

type rateWindowRow struct {
	SessionID   string `toml:"session_id"`
	Kind        string `toml:"kind"`
	WindowStart string `toml:"window_start"`
	Count       int    `toml:"count"`
	Capacity    int    `toml:"capacity"`
}

func toRateWindowRow(entry domain.RateStateEntry) rateWindowRow {
	return rateWindowRow{
		SessionID:   string(entry.SessionID),
		Kind:        string(entry.Kind),
		WindowStart: formatTime(entry.Window.WindowStart),
		Count:       entry.Window.Count,
		Capacity:    entry.Window.Capacity,
	}
}

func fromRateWindowRow(row rateWindowRow) domain.RateStateEntry {
	return domain.RateStateEntry{
		SessionID: domain.SessionID(row.SessionID),
		Kind:      domain.ActionKind(row.Kind),
		Window: domain.RateWindow{
			WindowStart: parseTime(row.WindowStart),
			Count:       row.Count,
			Capacity:    row.Capacity,
		},
	}
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}

	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}

	return parsed
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}

	return value.Format(time.RFC3339)
}
